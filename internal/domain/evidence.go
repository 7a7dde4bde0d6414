package domain

import (
	"time"
)

// EvidenceType classifies where an evidence item came from.
type EvidenceType string

const (
	EvidenceCriteriaCheck   EvidenceType = "criteria_check"
	EvidenceGuideline       EvidenceType = "guideline_support"
	EvidenceClinical        EvidenceType = "clinical_appropriateness"
	EvidenceDrugInteraction EvidenceType = "drug_interactions"
	EvidenceDrugSafety      EvidenceType = "drug_safety"
	EvidencePatientHistory  EvidenceType = "patient_history"
)

const maxEvidenceContentLen = 200

// EvidenceItem is a single weighted, typed piece of supporting or opposing
// evidence. Items are immutable after construction; weight and confidence are
// clamped to [0,1] and content is truncated to 200 characters.
type EvidenceItem struct {
	Source           string       `json:"source"`
	Type             EvidenceType `json:"type"`
	Content          string       `json:"content"`
	Weight           float64      `json:"weight"`
	SupportsApproval bool         `json:"supports_approval"`
	Confidence       float64      `json:"confidence"`
	Timestamp        time.Time    `json:"timestamp"`
}

// NewEvidenceItem constructs an evidence item with the construction invariants applied.
func NewEvidenceItem(source string, typ EvidenceType, content string, weight float64, supports bool, confidence float64) EvidenceItem {
	if len(content) > maxEvidenceContentLen {
		content = content[:maxEvidenceContentLen]
	}
	return EvidenceItem{
		Source:           source,
		Type:             typ,
		Content:          content,
		Weight:           Clamp01(weight),
		SupportsApproval: supports,
		Confidence:       Clamp01(confidence),
		Timestamp:        time.Now().UTC(),
	}
}

// Clamp01 limits v to the closed interval [0,1].
func Clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// AnalysisContext is the immutable snapshot of all specialist outputs for one
// PA request. It is assembled once by the orchestrator and never mutated.
type AnalysisContext struct {
	PatientID        string             `json:"patient_id"`
	DrugName         string             `json:"drug_name"`
	InsurerID        string             `json:"insurer_id"`
	Urgency          string             `json:"urgency,omitempty"`
	Patient          *PatientRecord     `json:"patient,omitempty"`
	Drug             *DrugInformation   `json:"drug,omitempty"`
	Policy           *InsurerPolicy     `json:"policy,omitempty"`
	Coverage         *CoverageDecision  `json:"coverage,omitempty"`
	Guidelines       []GuidelineEntry   `json:"guidelines,omitempty"`
	Safety           *DrugSafetySummary `json:"safety,omitempty"`
	InteractionCheck *InteractionResult `json:"interaction_check,omitempty"`
	GatheredAt       time.Time          `json:"gathered_at"`
}

// CompletenessFraction reports the fraction of the seven context fields populated.
func (c *AnalysisContext) CompletenessFraction() float64 {
	populated := 0
	if c.Patient != nil {
		populated++
	}
	if c.Drug != nil {
		populated++
	}
	if c.Policy != nil {
		populated++
	}
	if c.Coverage != nil {
		populated++
	}
	if len(c.Guidelines) > 0 {
		populated++
	}
	if c.Safety != nil {
		populated++
	}
	if c.InteractionCheck != nil {
		populated++
	}
	return float64(populated) / 7.0
}

// AuditEntry is one append-only record on a request's audit trail.
type AuditEntry struct {
	EntryID   string    `json:"entry_id"`
	Timestamp time.Time `json:"timestamp"`
	Action    string    `json:"action"`
	Details   string    `json:"details,omitempty"`
	AgentID   string    `json:"agent_id"`
}

// AlternativeOption is a covered substitute suggested alongside a decision.
type AlternativeOption struct {
	DrugName          string `json:"drug_name"`
	CoverageStatus    string `json:"coverage_status"`
	Tier              int    `json:"tier"`
	PriorAuthRequired bool   `json:"prior_auth_required"`
	Rationale         string `json:"rationale"`
}

// AnalysisResult is the final artifact of one PA orchestration.
type AnalysisResult struct {
	DecisionID         string              `json:"decision_id"`
	PatientID          string              `json:"patient_id"`
	DrugName           string              `json:"drug_name"`
	InsurerID          string              `json:"insurer_id"`
	Decision           Decision            `json:"decision"`
	ApprovalLikelihood float64             `json:"approval_likelihood"`
	ConfidenceScore    float64             `json:"confidence_score"`
	ConfidenceLevel    ConfidenceLevel     `json:"confidence_level"`
	ClinicalRationale  string              `json:"clinical_rationale"`
	EvidenceItems      []EvidenceItem      `json:"evidence_items"`
	IdentifiedGaps     []string            `json:"identified_gaps,omitempty"`
	Recommendations    []string            `json:"recommendations"`
	AlternativeOptions []AlternativeOption `json:"alternative_options,omitempty"`
	ProcessingTimeMS   int64               `json:"processing_time_ms"`
	LLMTokensUsed      int                 `json:"llm_tokens_used"`
	ModelTier          string              `json:"model_tier,omitempty"`
	Source             string              `json:"source,omitempty"`
	CacheAgeSeconds    float64             `json:"cache_age_seconds,omitempty"`
	AnalysisTimestamp  time.Time           `json:"analysis_timestamp"`
	AuditTrail         []AuditEntry        `json:"audit_trail"`
}

// Clone returns a deep copy so cached results cannot be mutated by callers.
func (r *AnalysisResult) Clone() *AnalysisResult {
	if r == nil {
		return nil
	}
	cp := *r
	cp.EvidenceItems = append([]EvidenceItem(nil), r.EvidenceItems...)
	cp.IdentifiedGaps = append([]string(nil), r.IdentifiedGaps...)
	cp.Recommendations = append([]string(nil), r.Recommendations...)
	cp.AlternativeOptions = append([]AlternativeOption(nil), r.AlternativeOptions...)
	cp.AuditTrail = append([]AuditEntry(nil), r.AuditTrail...)
	return &cp
}
