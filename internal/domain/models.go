package domain

import (
	"regexp"
	"time"
)

// PatientRecord holds the clinical profile the orchestrator analyzes.
// It is treated as immutable within a single orchestration run.
type PatientRecord struct {
	PatientID         string            `json:"patient_id"`
	Name              string            `json:"name,omitempty"`
	Age               int               `json:"age"`
	Gender            string            `json:"gender"`
	DiagnosesICD10    []string          `json:"diagnoses_icd10"`
	MedicationHistory []string          `json:"medication_history"`
	Labs              map[string]string `json:"labs"`
	Notes             string            `json:"notes,omitempty"`
	ProviderType      string            `json:"provider_type,omitempty"`
	AdherenceScore    *float64          `json:"adherence_score,omitempty"`
	RequestedQuantity *int              `json:"requested_quantity,omitempty"`
	SSN               string            `json:"ssn,omitempty"`
	DOB               string            `json:"dob,omitempty"`
	Address           string            `json:"address,omitempty"`
	Phone             string            `json:"phone,omitempty"`
	CreatedAt         time.Time         `json:"created_at,omitempty"`
	LastUpdated       time.Time         `json:"last_updated"`
}

// Clone returns a deep copy so cached records can never alias caller state.
func (p *PatientRecord) Clone() *PatientRecord {
	if p == nil {
		return nil
	}
	cp := *p
	cp.DiagnosesICD10 = append([]string(nil), p.DiagnosesICD10...)
	cp.MedicationHistory = append([]string(nil), p.MedicationHistory...)
	if p.Labs != nil {
		cp.Labs = make(map[string]string, len(p.Labs))
		for k, v := range p.Labs {
			cp.Labs[k] = v
		}
	}
	if p.AdherenceScore != nil {
		v := *p.AdherenceScore
		cp.AdherenceScore = &v
	}
	if p.RequestedQuantity != nil {
		v := *p.RequestedQuantity
		cp.RequestedQuantity = &v
	}
	return &cp
}

var icd10Pattern = regexp.MustCompile(`^[A-TV-Z][0-9][0-9A-Z](\.[0-9A-TV-Z]{1,4})?$`)

// ValidICD10 reports whether code is a syntactically valid ICD-10 code.
// Codes beginning with U are reserved and rejected.
func ValidICD10(code string) bool {
	return icd10Pattern.MatchString(code)
}

// DrugInformation is the canonical monograph-level description of a drug.
type DrugInformation struct {
	Name                   string            `json:"name"`
	DrugClass              string            `json:"drug_class"`
	Mechanism              string            `json:"mechanism,omitempty"`
	Indications            []string          `json:"indications"`
	Contraindications      []string          `json:"contraindications"`
	Warnings               []string          `json:"warnings"`
	MonitoringRequirements []string          `json:"monitoring_requirements"`
	Dosing                 map[string]string `json:"dosing,omitempty"`
}

// Clone returns a deep copy of the drug information.
func (d *DrugInformation) Clone() *DrugInformation {
	if d == nil {
		return nil
	}
	cp := *d
	cp.Indications = append([]string(nil), d.Indications...)
	cp.Contraindications = append([]string(nil), d.Contraindications...)
	cp.Warnings = append([]string(nil), d.Warnings...)
	cp.MonitoringRequirements = append([]string(nil), d.MonitoringRequirements...)
	if d.Dosing != nil {
		cp.Dosing = make(map[string]string, len(d.Dosing))
		for k, v := range d.Dosing {
			cp.Dosing[k] = v
		}
	}
	return &cp
}

// CriterionType tags the kind of coverage rule a criterion encodes.
type CriterionType string

const (
	CriterionDiagnosis     CriterionType = "diagnosis"
	CriterionStepTherapy   CriterionType = "step_therapy"
	CriterionLabValue      CriterionType = "lab_value"
	CriterionAgeLimit      CriterionType = "age_limit"
	CriterionQuantityLimit CriterionType = "quantity_limit"
	CriterionProviderType  CriterionType = "provider_type"
)

// Criterion is a single coverage rule attached to an insurer policy.
// Parameter fields are populated according to Type; unused fields stay zero.
type Criterion struct {
	ID          string            `json:"id"`
	Type        CriterionType     `json:"type"`
	Description string            `json:"description"`
	Severity    CriterionSeverity `json:"severity"`
	Required    bool              `json:"required"`

	RequiredCodes     []string `json:"required_codes,omitempty"`
	RequiredPriorDrug string   `json:"required_prior_drug,omitempty"`
	DurationDays      *int     `json:"duration_days,omitempty"`
	TestName          string   `json:"test_name,omitempty"`
	MinValue          *float64 `json:"min_value,omitempty"`
	MaxValue          *float64 `json:"max_value,omitempty"`
	MinAge            *int     `json:"min_age,omitempty"`
	MaxAge            *int     `json:"max_age,omitempty"`
	MaxUnitsPerFill   *int     `json:"max_units_per_fill,omitempty"`
	AllowedProviders  []string `json:"allowed_providers,omitempty"`
}

// EvaluationOutcome tags the result of evaluating one criterion.
type EvaluationOutcome string

const (
	OutcomeMet         EvaluationOutcome = "met"
	OutcomeUnmet       EvaluationOutcome = "unmet"
	OutcomeUnparseable EvaluationOutcome = "unparseable"
)

// Evaluation is the deterministic result of checking a criterion against a patient.
type Evaluation struct {
	Criterion Criterion         `json:"criterion"`
	Outcome   EvaluationOutcome `json:"outcome"`
	Details   string            `json:"details"`
}

// Met reports whether the criterion was satisfied.
func (e Evaluation) Met() bool { return e.Outcome == OutcomeMet }

// QuantityLimits is an optional top-level fill restriction on a policy.
type QuantityLimits struct {
	MaxUnitsPerFill int    `json:"max_units_per_fill"`
	PeriodDays      int    `json:"period_days,omitempty"`
	Description     string `json:"description,omitempty"`
}

// PolicyAlternative is a covered substitute listed on a policy.
type PolicyAlternative struct {
	DrugName       string         `json:"drug_name"`
	CoverageStatus CoverageStatus `json:"coverage_status"`
	Tier           int            `json:"tier"`
	RequiresPA     bool           `json:"requires_pa"`
	MonthlyCost    float64        `json:"monthly_cost,omitempty"`
}

// InsurerPolicy is the coverage record for one (insurer, drug) pair.
type InsurerPolicy struct {
	DrugName       string              `json:"drug_name"`
	Insurer        string              `json:"insurer"`
	PolicyVersion  string              `json:"policy_version,omitempty"`
	CoverageStatus CoverageStatus      `json:"coverage_status"`
	Tier           int                 `json:"tier"`
	MonthlyCost    float64             `json:"monthly_cost"`
	Criteria       []Criterion         `json:"criteria"`
	QuantityLimits *QuantityLimits     `json:"quantity_limits,omitempty"`
	Alternatives   []PolicyAlternative `json:"alternatives,omitempty"`
}

// Clone returns a deep copy of the policy.
func (p *InsurerPolicy) Clone() *InsurerPolicy {
	if p == nil {
		return nil
	}
	cp := *p
	cp.Criteria = make([]Criterion, len(p.Criteria))
	for i, c := range p.Criteria {
		cc := c
		cc.RequiredCodes = append([]string(nil), c.RequiredCodes...)
		cc.AllowedProviders = append([]string(nil), c.AllowedProviders...)
		cp.Criteria[i] = cc
	}
	if p.QuantityLimits != nil {
		q := *p.QuantityLimits
		cp.QuantityLimits = &q
	}
	cp.Alternatives = append([]PolicyAlternative(nil), p.Alternatives...)
	return &cp
}

// DrugInteraction describes one interacting pair. Drugs are stored sorted so
// that the record is identical regardless of query order.
type DrugInteraction struct {
	Drugs       [2]string           `json:"drugs"`
	Severity    InteractionSeverity `json:"severity"`
	Description string              `json:"description"`
	Management  string              `json:"management"`
	Direction   string              `json:"direction,omitempty"`
}

// InteractionResult aggregates all pairwise interactions found for a medication list.
type InteractionResult struct {
	Interactions         []DrugInteraction   `json:"interactions"`
	HighestSeverity      InteractionSeverity `json:"highest_severity"`
	ClinicalSignificance string              `json:"clinical_significance"`
	CheckedDrugs         []string            `json:"checked_drugs"`
}

// DrugSafetySummary condenses the safety surface of a drug.
type DrugSafetySummary struct {
	DrugName               string        `json:"drug_name"`
	Warnings               []string      `json:"warnings"`
	Contraindications      []string      `json:"contraindications"`
	MonitoringRequirements []string      `json:"monitoring_requirements"`
	DrugClass              string        `json:"drug_class"`
	SafetyProfile          SafetyProfile `json:"safety_profile"`
}

// GuidelineEntry is one clinical guideline snippet with a provider-supplied
// relevance score. The score is passed through as-is and never rescaled.
type GuidelineEntry struct {
	Text           string  `json:"text"`
	RelevanceScore float64 `json:"relevance_score"`
	Source         string  `json:"source"`
	Year           int     `json:"year"`
}

// CoverageDecision is the output of the policy criteria engine.
type CoverageDecision struct {
	DrugName        string         `json:"drug_name"`
	Insurer         string         `json:"insurer"`
	CoverageStatus  CoverageStatus `json:"coverage_status"`
	RequiresPA      bool           `json:"requires_pa"`
	CriteriaMet     bool           `json:"criteria_met"`
	Evaluations     []Evaluation   `json:"evaluations"`
	UnmetCriteria   []Evaluation   `json:"unmet_criteria"`
	Recommendations []string       `json:"recommendations"`
	EvaluatedAt     time.Time      `json:"evaluated_at"`
}

// Clone returns a deep copy of the coverage decision.
func (c *CoverageDecision) Clone() *CoverageDecision {
	if c == nil {
		return nil
	}
	cp := *c
	cp.Evaluations = append([]Evaluation(nil), c.Evaluations...)
	cp.UnmetCriteria = append([]Evaluation(nil), c.UnmetCriteria...)
	cp.Recommendations = append([]string(nil), c.Recommendations...)
	return &cp
}
