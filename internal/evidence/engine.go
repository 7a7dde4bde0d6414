// Package evidence transforms specialist outputs into weighted, typed
// evidence items and scores them.
package evidence

import (
	"fmt"
	"math"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/pa-decision-orchestrator/internal/domain"
)

// Category weight schedule. The guideline quota is split across the top three
// guidelines; per-criterion penalties are added on top of the criteria quota.
const (
	weightPolicyCriteria  = 0.30
	weightGuidelines      = 0.25
	weightClinical        = 0.20
	weightInteractions    = 0.10
	weightSafety          = 0.10
	weightPatientHistory  = 0.05
	maxGuidelinesWeighted = 3
	confidenceCap         = 0.95
)

var positiveTerms = []string{
	"recommended", "first-line", "second-line", "preferred", "indicated",
	"effective", "beneficial", "appropriate", "evidence supports",
	"guidelines recommend", "standard of care",
}

var negativeTerms = []string{
	"contraindicated", "avoid", "caution", "not recommended", "harmful",
	"adverse", "discontinued", "black box warning", "insufficient evidence",
	"not indicated",
}

// Analysis is the engine's output: the ordered evidence list plus the scalar
// preliminary score and confidence.
type Analysis struct {
	Items            []domain.EvidenceItem
	PreliminaryScore float64
	Confidence       float64
	SupportingCount  int
	OpposingCount    int
}

// Engine builds evidence from an AnalysisContext. Pure CPU; no suspension.
type Engine struct {
	logger *logrus.Logger
}

// NewEngine creates an evidence engine.
func NewEngine(logger *logrus.Logger) *Engine {
	return &Engine{logger: logger}
}

// Analyze produces the weighted evidence set and scores for the context.
func (e *Engine) Analyze(ctx *domain.AnalysisContext) *Analysis {
	var items []domain.EvidenceItem

	items = append(items, e.criteriaEvidence(ctx)...)
	items = append(items, e.guidelineEvidence(ctx)...)
	if item, ok := e.clinicalEvidence(ctx); ok {
		items = append(items, item)
	}
	if item, ok := e.interactionEvidence(ctx); ok {
		items = append(items, item)
	}
	if item, ok := e.safetyEvidence(ctx); ok {
		items = append(items, item)
	}
	if item, ok := e.historyEvidence(ctx); ok {
		items = append(items, item)
	}

	analysis := &Analysis{Items: items}
	analysis.PreliminaryScore = preliminaryScore(items)
	analysis.Confidence = confidenceScore(items, ctx)
	for _, item := range items {
		if item.SupportsApproval {
			analysis.SupportingCount++
		} else {
			analysis.OpposingCount++
		}
	}

	e.logger.WithFields(logrus.Fields{
		"evidence_items":    len(items),
		"supporting":        analysis.SupportingCount,
		"opposing":          analysis.OpposingCount,
		"preliminary_score": fmt.Sprintf("%.3f", analysis.PreliminaryScore),
		"confidence":        fmt.Sprintf("%.3f", analysis.Confidence),
	}).Debug("Evidence analysis complete")

	return analysis
}

// criteriaEvidence emits the policy-criteria aggregate plus one penalty item
// per unmet criterion.
func (e *Engine) criteriaEvidence(ctx *domain.AnalysisContext) []domain.EvidenceItem {
	coverage := ctx.Coverage
	if coverage == nil {
		return nil
	}

	var items []domain.EvidenceItem
	if coverage.CriteriaMet {
		content := fmt.Sprintf("All coverage criteria met for %s under %s (%d evaluated)",
			coverage.DrugName, coverage.Insurer, len(coverage.Evaluations))
		items = append(items, domain.NewEvidenceItem(
			"policy_analysis", domain.EvidenceCriteriaCheck, content,
			weightPolicyCriteria, true, 0.9))
	} else {
		content := fmt.Sprintf("%d of %d coverage criteria unmet for %s under %s",
			len(coverage.UnmetCriteria), len(coverage.Evaluations), coverage.DrugName, coverage.Insurer)
		items = append(items, domain.NewEvidenceItem(
			"policy_analysis", domain.EvidenceCriteriaCheck, content,
			weightPolicyCriteria, false, 0.9))
	}

	for _, unmet := range coverage.UnmetCriteria {
		items = append(items, domain.NewEvidenceItem(
			"policy_analysis", domain.EvidenceCriteriaCheck,
			fmt.Sprintf("Unmet %s criterion: %s", unmet.Criterion.Type, unmet.Details),
			unmet.Criterion.Severity.PenaltyWeight(), false, 0.85))
	}
	return items
}

// guidelineEvidence scores the top three guidelines with the positive and
// negative keyword sets. The guideline quota is split evenly across them.
func (e *Engine) guidelineEvidence(ctx *domain.AnalysisContext) []domain.EvidenceItem {
	if len(ctx.Guidelines) == 0 {
		return nil
	}

	top := ctx.Guidelines
	if len(top) > maxGuidelinesWeighted {
		top = top[:maxGuidelinesWeighted]
	}
	perGuideline := weightGuidelines / float64(len(top))

	var items []domain.EvidenceItem
	for _, guideline := range top {
		positives, negatives := keywordCounts(guideline.Text)
		supports := positives >= negatives

		words := len(strings.Fields(guideline.Text))
		density := 0.0
		if words > 0 {
			density = float64(positives+negatives) / float64(words)
		}
		confidence := math.Min(guideline.RelevanceScore*(1+density), confidenceCap)

		text := guideline.Text
		if len(text) > 150 {
			text = text[:150]
		}
		items = append(items, domain.NewEvidenceItem(
			guideline.Source, domain.EvidenceGuideline, text,
			perGuideline, supports, confidence))
	}
	return items
}

func keywordCounts(text string) (positives, negatives int) {
	lower := strings.ToLower(text)
	for _, term := range positiveTerms {
		positives += strings.Count(lower, term)
	}
	for _, term := range negativeTerms {
		negatives += strings.Count(lower, term)
	}
	return positives, negatives
}

// interactionEvidence emits a single aggregate item; the combination supports
// approval iff the severity risk score stays below 0.5.
func (e *Engine) interactionEvidence(ctx *domain.AnalysisContext) (domain.EvidenceItem, bool) {
	check := ctx.InteractionCheck
	if check == nil {
		return domain.EvidenceItem{}, false
	}

	risk := check.HighestSeverity.RiskScore()
	supports := risk < 0.5
	content := fmt.Sprintf("No significant interactions among %d medications", len(check.CheckedDrugs))
	if len(check.Interactions) > 0 {
		content = fmt.Sprintf("%d interaction(s) found, highest severity %s: %s",
			len(check.Interactions), check.HighestSeverity, check.ClinicalSignificance)
	}
	confidence := 0.85
	if check.HighestSeverity == domain.InteractionUnknown {
		confidence = 0.5
	}
	return domain.NewEvidenceItem(
		"interaction_analysis", domain.EvidenceDrugInteraction, content,
		weightInteractions, supports, confidence), true
}

// safetyEvidence checks the patient against drug contraindications and builds
// a concrete concern list.
func (e *Engine) safetyEvidence(ctx *domain.AnalysisContext) (domain.EvidenceItem, bool) {
	safety := ctx.Safety
	if safety == nil {
		return domain.EvidenceItem{}, false
	}

	concerns := safetyConcerns(ctx.Patient, safety)
	switch {
	case len(concerns) > 0:
		return domain.NewEvidenceItem(
			"safety_analysis", domain.EvidenceDrugSafety,
			"Safety concerns: "+strings.Join(concerns, "; "),
			weightSafety, false, 0.9), true
	case len(safety.Warnings) > 3:
		return domain.NewEvidenceItem(
			"safety_analysis", domain.EvidenceDrugSafety,
			fmt.Sprintf("%s carries %d warnings (%s profile)", safety.DrugName, len(safety.Warnings), safety.SafetyProfile),
			weightSafety, false, 0.7), true
	default:
		return domain.NewEvidenceItem(
			"safety_analysis", domain.EvidenceDrugSafety,
			fmt.Sprintf("No patient-specific contraindications identified for %s", safety.DrugName),
			weightSafety, true, 0.8), true
	}
}

// safetyConcerns inspects demographics and labs against contraindications.
func safetyConcerns(patient *domain.PatientRecord, safety *domain.DrugSafetySummary) []string {
	if patient == nil {
		return nil
	}

	var concerns []string
	for _, contraindication := range safety.Contraindications {
		lower := strings.ToLower(contraindication)

		if strings.Contains(lower, "pregnan") &&
			strings.EqualFold(patient.Gender, "F") &&
			patient.Age >= 15 && patient.Age <= 50 {
			concerns = append(concerns, "pregnancy contraindication in female of childbearing age")
		}

		if strings.Contains(lower, "renal") || strings.Contains(lower, "egfr") {
			if raw, ok := patient.Labs["eGFR"]; ok {
				if value, parsed := domain.ParseLabValue(raw); parsed && value < 30 {
					concerns = append(concerns,
						fmt.Sprintf("severe renal impairment (eGFR %.0f) against renal contraindication", value))
				}
			}
		}

		for _, diagnosis := range patient.DiagnosesICD10 {
			if strings.Contains(lower, strings.ToLower(diagnosis)) {
				concerns = append(concerns,
					fmt.Sprintf("documented diagnosis %s matches contraindication", diagnosis))
			}
		}
	}
	return concerns
}

// historyEvidence scores the patient's treatment history on the additive scale.
func (e *Engine) historyEvidence(ctx *domain.AnalysisContext) (domain.EvidenceItem, bool) {
	patient := ctx.Patient
	if patient == nil {
		return domain.EvidenceItem{}, false
	}

	score := 0.5
	var factors []string

	if tried := prerequisitesTried(patient, ctx.Policy); tried > 0 {
		score += 0.2 * math.Min(float64(tried)/2.0, 1.0)
		factors = append(factors, fmt.Sprintf("%d prerequisite therapy trial(s)", tried))
	}

	if ctx.Drug != nil {
		hits := indicationAlignment(patient, ctx.Drug)
		if hits > 0 {
			score += 0.15 * float64(hits)
			factors = append(factors, fmt.Sprintf("%d diagnosis-indication alignment(s)", hits))
		}
	}

	if raw, ok := patient.Labs["HbA1c"]; ok {
		if value, parsed := domain.ParseLabValue(raw); parsed {
			switch {
			case value > 8.0:
				score += 0.15
				factors = append(factors, fmt.Sprintf("HbA1c %.1f above goal", value))
			case value >= 7.0:
				score += 0.1
				factors = append(factors, fmt.Sprintf("HbA1c %.1f above target", value))
			}
		}
	}
	if raw, ok := patient.Labs["eGFR"]; ok {
		if value, parsed := domain.ParseLabValue(raw); parsed && value >= 30 {
			score += 0.05
			factors = append(factors, "adequate renal function")
		}
	}

	if notesMentionFailure(patient.Notes) {
		score += 0.15
		factors = append(factors, "documented prior therapy failure")
	}
	if patient.AdherenceScore != nil && *patient.AdherenceScore > 0.8 {
		score += 0.10
		factors = append(factors, fmt.Sprintf("strong adherence (%.2f)", *patient.AdherenceScore))
	}

	score = domain.Clamp01(score)
	content := fmt.Sprintf("Patient history score %.2f", score)
	if len(factors) > 0 {
		content += ": " + strings.Join(factors, ", ")
	}
	return domain.NewEvidenceItem(
		"patient_history", domain.EvidencePatientHistory, content,
		weightPatientHistory, score >= 0.5, score), true
}

func prerequisitesTried(patient *domain.PatientRecord, policy *domain.InsurerPolicy) int {
	if policy == nil {
		return 0
	}
	tried := 0
	for _, criterion := range policy.Criteria {
		if criterion.Type != domain.CriterionStepTherapy {
			continue
		}
		required := strings.ToLower(criterion.RequiredPriorDrug)
		for _, med := range patient.MedicationHistory {
			if strings.Contains(strings.ToLower(med), required) {
				tried++
				break
			}
		}
	}
	return tried
}

func indicationAlignment(patient *domain.PatientRecord, drug *domain.DrugInformation) int {
	hits := 0
	for _, indication := range drug.Indications {
		if diagnosisMatchesIndication(patient.DiagnosesICD10, indication) {
			hits++
		}
	}
	return hits
}

// diagnosisMatchesIndication maps ICD-10 chapters onto indication phrases.
var indicationCodePrefixes = map[string][]string{
	"diabetes":             {"E10", "E11", "E13"},
	"heart failure":        {"I50"},
	"hypertension":         {"I10", "I11"},
	"chronic kidney":       {"N18"},
	"rheumatoid arthritis": {"M05", "M06"},
	"psoria":               {"L40"},
	"crohn":                {"K50"},
	"ulcerative colitis":   {"K51"},
	"hyperlipidemia":       {"E78"},
	"gerd":                 {"K21"},
}

func diagnosisMatchesIndication(diagnoses []string, indication string) bool {
	lower := strings.ToLower(indication)
	for phrase, prefixes := range indicationCodePrefixes {
		if !strings.Contains(lower, phrase) {
			continue
		}
		for _, diagnosis := range diagnoses {
			upper := strings.ToUpper(diagnosis)
			for _, prefix := range prefixes {
				if strings.HasPrefix(upper, prefix) {
					return true
				}
			}
		}
	}
	return false
}

var failurePhrases = []string{"failed", "failure", "inadequate", "poor control", "poor glycemic control", "not controlled", "refractory"}

func notesMentionFailure(notes string) bool {
	lower := strings.ToLower(notes)
	for _, phrase := range failurePhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}

// clinicalEvidence scores overall clinical appropriateness on the additive scale.
func (e *Engine) clinicalEvidence(ctx *domain.AnalysisContext) (domain.EvidenceItem, bool) {
	patient := ctx.Patient
	drug := ctx.Drug
	if patient == nil || drug == nil {
		return domain.EvidenceItem{}, false
	}

	score := 0.5
	var factors []string

	switch {
	case patient.Age >= 18 && patient.Age <= 75:
		score += 0.1
		factors = append(factors, "age within typical treatment range")
	case patient.Age > 85 || patient.Age < 12:
		score -= 0.2
		factors = append(factors, "age well outside typical treatment range")
	default:
		score -= 0.1
		factors = append(factors, "age outside typical treatment range")
	}

	if explicitContraindication(patient, drug) {
		score -= 0.3
		factors = append(factors, "explicit contraindication present")
	}

	if specialistProvider(patient.ProviderType) {
		score += 0.15
		factors = append(factors, "specialist management")
	} else if patient.ProviderType != "" {
		score += 0.05
		factors = append(factors, "generalist management")
	}

	if len(patient.MedicationHistory) > 10 {
		score -= 0.05
		factors = append(factors, "significant polypharmacy")
	}

	if priorClassApproval(patient.Notes, drug.DrugClass) {
		score += 0.1
		factors = append(factors, "prior PA approval in same class")
	}

	score = domain.Clamp01(score)
	content := fmt.Sprintf("Clinical appropriateness %.2f", score)
	if len(factors) > 0 {
		content += ": " + strings.Join(factors, ", ")
	}
	return domain.NewEvidenceItem(
		"clinical_analysis", domain.EvidenceClinical, content,
		weightClinical, score >= 0.5, score), true
}

func explicitContraindication(patient *domain.PatientRecord, drug *domain.DrugInformation) bool {
	return len(safetyConcerns(patient, &domain.DrugSafetySummary{
		Contraindications: drug.Contraindications,
	})) > 0
}

var specialistTypes = []string{
	"endocrinologist", "cardiologist", "nephrologist", "rheumatologist",
	"gastroenterologist", "dermatologist", "oncologist", "neurologist",
	"pulmonologist", "specialist",
}

func specialistProvider(providerType string) bool {
	lower := strings.ToLower(providerType)
	for _, specialist := range specialistTypes {
		if strings.Contains(lower, specialist) {
			return true
		}
	}
	return false
}

func priorClassApproval(notes, drugClass string) bool {
	lower := strings.ToLower(notes)
	if !strings.Contains(lower, "pa approved") && !strings.Contains(lower, "prior pa") &&
		!strings.Contains(lower, "prior authorization approved") {
		return false
	}
	return drugClass == "" || strings.Contains(lower, strings.ToLower(drugClass)) ||
		!strings.Contains(lower, "class")
}

// preliminaryScore is the weighted support fraction Σ w·[supports]·conf / Σ w.
func preliminaryScore(items []domain.EvidenceItem) float64 {
	var weighted, total float64
	for _, item := range items {
		total += item.Weight
		if item.SupportsApproval {
			weighted += item.Weight * item.Confidence
		}
	}
	if total == 0 {
		return 0.5
	}
	return weighted / total
}

// confidenceScore combines mean item confidence, context completeness, and a
// consensus factor favoring strong agreement either way. Capped at 0.95.
func confidenceScore(items []domain.EvidenceItem, ctx *domain.AnalysisContext) float64 {
	if len(items) == 0 {
		return 0.3
	}

	var confidenceSum float64
	supporting := 0
	for _, item := range items {
		confidenceSum += item.Confidence
		if item.SupportsApproval {
			supporting++
		}
	}
	meanConfidence := confidenceSum / float64(len(items))
	completeness := ctx.CompletenessFraction()
	supportingFraction := float64(supporting) / float64(len(items))
	// consensus is low near an even split and high at either extreme
	consensus := 2 * math.Abs(0.5-supportingFraction)

	score := 0.4*meanConfidence + 0.4*completeness + 0.2*consensus
	return math.Min(score, confidenceCap)
}
