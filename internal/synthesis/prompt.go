package synthesis

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pa-decision-orchestrator/internal/domain"
	"github.com/pa-decision-orchestrator/internal/evidence"
)

const responseSchema = `Respond with a single JSON object with exactly these fields:
{
  "approval_likelihood_percent": <number 0-100>,
  "decision_prediction": "<Approve | Deny | Pend for More Info>",
  "confidence_score": <number 0-1>,
  "clinical_rationale": "<2-4 sentence justification>",
  "key_approval_factors": ["<factor>", ...],
  "key_risk_factors": ["<factor>", ...]
}`

// estimateTokens approximates the token cost of a prompt as 1.3 per word.
func estimateTokens(text string) int {
	return int(1.3 * float64(len(strings.Fields(text))))
}

// buildAdvancedPrompt renders the full analysis context for the primary model.
func buildAdvancedPrompt(ctx *domain.AnalysisContext, analysis *evidence.Analysis, decisionID string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "You are a prior-authorization clinical reviewer.\n\n")
	fmt.Fprintf(&b, "Case: %s\n", decisionID)
	if ctx.Urgency != "" {
		fmt.Fprintf(&b, "Urgency: %s\n", ctx.Urgency)
	}
	fmt.Fprintf(&b, "Preliminary score: %.1f\n\n", analysis.PreliminaryScore)

	if patient := ctx.Patient; patient != nil {
		fmt.Fprintf(&b, "PATIENT PROFILE\n")
		fmt.Fprintf(&b, "Age %d, gender %s. Diagnoses: %s. Current medications: %s.\n",
			patient.Age, patient.Gender,
			strings.Join(patient.DiagnosesICD10, ", "),
			strings.Join(patient.MedicationHistory, ", "))
		if len(patient.Labs) > 0 {
			fmt.Fprintf(&b, "Labs: %s.\n", formatLabs(patient.Labs))
		}
		if patient.ProviderType != "" {
			fmt.Fprintf(&b, "Managed by: %s.\n", patient.ProviderType)
		}
		if patient.Notes != "" {
			fmt.Fprintf(&b, "Notes: %s\n", patient.Notes)
		}
		b.WriteString("\n")
	}

	if drug := ctx.Drug; drug != nil {
		fmt.Fprintf(&b, "REQUESTED DRUG\n")
		fmt.Fprintf(&b, "%s (%s): %s\n", drug.Name, drug.DrugClass, drug.Mechanism)
		if len(drug.Indications) > 0 {
			fmt.Fprintf(&b, "Indications: %s\n", strings.Join(drug.Indications, "; "))
		}
		b.WriteString("\n")
	}

	if policy := ctx.Policy; policy != nil {
		fmt.Fprintf(&b, "POLICY\n")
		fmt.Fprintf(&b, "%s coverage under %s: %s, tier %d, %d criteria.\n\n",
			policy.DrugName, policy.Insurer, policy.CoverageStatus, policy.Tier, len(policy.Criteria))
	}

	if coverage := ctx.Coverage; coverage != nil {
		fmt.Fprintf(&b, "CRITERIA EVALUATION\n")
		fmt.Fprintf(&b, "Criteria met: %t. Unmet: %d.\n", coverage.CriteriaMet, len(coverage.UnmetCriteria))
		for _, unmet := range coverage.UnmetCriteria {
			fmt.Fprintf(&b, "- [%s/%s] %s\n", unmet.Criterion.Type, unmet.Criterion.Severity, unmet.Details)
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "EVIDENCE SUMMARY\n%s\n", formatEvidenceByType(analysis.Items))

	if safety := ctx.Safety; safety != nil {
		fmt.Fprintf(&b, "SAFETY ASSESSMENT\n")
		fmt.Fprintf(&b, "%s profile: %s. Warnings: %d. Contraindications: %d.\n\n",
			safety.DrugName, safety.SafetyProfile, len(safety.Warnings), len(safety.Contraindications))
	}

	if len(ctx.Guidelines) > 0 {
		fmt.Fprintf(&b, "TOP GUIDELINES\n")
		top := ctx.Guidelines
		if len(top) > 3 {
			top = top[:3]
		}
		for _, guideline := range top {
			fmt.Fprintf(&b, "- (%s %d, relevance %.2f) %s\n",
				guideline.Source, guideline.Year, guideline.RelevanceScore, guideline.Text)
		}
		b.WriteString("\n")
	}

	b.WriteString(responseSchema)
	return b.String()
}

// buildSimplifiedPrompt condenses the context to the score plus the top three
// supporting and top three opposing evidence items.
func buildSimplifiedPrompt(ctx *domain.AnalysisContext, analysis *evidence.Analysis, decisionID string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Prior-authorization review %s: patient %s, drug %s, insurer %s.\n",
		decisionID, ctx.PatientID, ctx.DrugName, ctx.InsurerID)
	fmt.Fprintf(&b, "Preliminary score: %.1f\n\n", analysis.PreliminaryScore)

	supporting, opposing := splitEvidence(analysis.Items, 3)
	if len(supporting) > 0 {
		b.WriteString("Supporting evidence:\n")
		for _, item := range supporting {
			fmt.Fprintf(&b, "- %s\n", item.Content)
		}
	}
	if len(opposing) > 0 {
		b.WriteString("Opposing evidence:\n")
		for _, item := range opposing {
			fmt.Fprintf(&b, "- %s\n", item.Content)
		}
	}
	b.WriteString("\n")
	b.WriteString(responseSchema)
	return b.String()
}

const continuationPrompt = "Your previous response was cut off. Continue exactly where you stopped, completing the JSON object. Do not repeat content already sent."

func formatLabs(labs map[string]string) string {
	keys := make([]string, 0, len(labs))
	for k := range labs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s %s", k, labs[k]))
	}
	return strings.Join(parts, ", ")
}

func formatEvidenceByType(items []domain.EvidenceItem) string {
	grouped := make(map[domain.EvidenceType][]domain.EvidenceItem)
	var order []domain.EvidenceType
	for _, item := range items {
		if _, seen := grouped[item.Type]; !seen {
			order = append(order, item.Type)
		}
		grouped[item.Type] = append(grouped[item.Type], item)
	}

	var b strings.Builder
	for _, typ := range order {
		fmt.Fprintf(&b, "%s:\n", typ)
		for _, item := range grouped[typ] {
			direction := "supports"
			if !item.SupportsApproval {
				direction = "opposes"
			}
			fmt.Fprintf(&b, "- [%s, w=%.2f, conf=%.2f] %s\n", direction, item.Weight, item.Confidence, item.Content)
		}
	}
	return b.String()
}

// splitEvidence returns the highest-weighted supporting and opposing items.
func splitEvidence(items []domain.EvidenceItem, limit int) (supporting, opposing []domain.EvidenceItem) {
	sorted := append([]domain.EvidenceItem(nil), items...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Weight*sorted[i].Confidence > sorted[j].Weight*sorted[j].Confidence
	})
	for _, item := range sorted {
		if item.SupportsApproval && len(supporting) < limit {
			supporting = append(supporting, item)
		} else if !item.SupportsApproval && len(opposing) < limit {
			opposing = append(opposing, item)
		}
	}
	return supporting, opposing
}
