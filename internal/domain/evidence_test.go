package domain

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewEvidenceItemClampsWeightAndConfidence(t *testing.T) {
	item := NewEvidenceItem("policy_analysis", EvidenceCriteriaCheck, "all criteria met", 1.7, true, -0.2)
	assert.Equal(t, 1.0, item.Weight)
	assert.Equal(t, 0.0, item.Confidence)

	item = NewEvidenceItem("policy_analysis", EvidenceCriteriaCheck, "partial", 0.3, false, 0.85)
	assert.Equal(t, 0.3, item.Weight)
	assert.Equal(t, 0.85, item.Confidence)
}

func TestNewEvidenceItemTruncatesContent(t *testing.T) {
	long := strings.Repeat("x", 500)
	item := NewEvidenceItem("guideline_review", EvidenceGuideline, long, 0.1, true, 0.5)
	assert.Len(t, item.Content, 200)
}

func TestAnalysisContextCompleteness(t *testing.T) {
	ctx := &AnalysisContext{}
	assert.InDelta(t, 0.0, ctx.CompletenessFraction(), 1e-9)

	ctx.Patient = &PatientRecord{PatientID: "patient-001"}
	ctx.Drug = &DrugInformation{Name: "empagliflozin"}
	ctx.Policy = &InsurerPolicy{Insurer: "UHC"}
	ctx.Coverage = &CoverageDecision{}
	ctx.Guidelines = []GuidelineEntry{{Text: "recommended"}}
	ctx.Safety = &DrugSafetySummary{}
	ctx.InteractionCheck = &InteractionResult{}
	assert.InDelta(t, 1.0, ctx.CompletenessFraction(), 1e-9)
}

func TestAnalysisResultCloneIsDeep(t *testing.T) {
	original := &AnalysisResult{
		DecisionID:      "PA_patient-001_empagliflozin_1700000000",
		Decision:        DecisionApprove,
		Recommendations: []string{"approve as prescribed"},
		EvidenceItems: []EvidenceItem{
			NewEvidenceItem("policy_analysis", EvidenceCriteriaCheck, "met", 0.3, true, 0.9),
		},
		AuditTrail: []AuditEntry{
			{Action: "decision_finalized", Timestamp: time.Now()},
		},
	}

	clone := original.Clone()
	clone.Recommendations[0] = "mutated"
	clone.EvidenceItems[0].Content = "mutated"
	clone.AuditTrail[0].Action = "mutated"

	assert.Equal(t, "approve as prescribed", original.Recommendations[0])
	assert.Equal(t, "met", original.EvidenceItems[0].Content)
	assert.Equal(t, "decision_finalized", original.AuditTrail[0].Action)
}

func TestPatientRecordCloneIsDeep(t *testing.T) {
	adherence := 0.92
	record := &PatientRecord{
		PatientID:         "patient-001",
		DiagnosesICD10:    []string{"E11.9"},
		MedicationHistory: []string{"Metformin"},
		Labs:              map[string]string{"HbA1c": "9.2%"},
		AdherenceScore:    &adherence,
	}

	clone := record.Clone()
	clone.DiagnosesICD10[0] = "I10"
	clone.Labs["HbA1c"] = "5.0%"
	*clone.AdherenceScore = 0.1

	assert.Equal(t, "E11.9", record.DiagnosesICD10[0])
	assert.Equal(t, "9.2%", record.Labs["HbA1c"])
	assert.Equal(t, 0.92, *record.AdherenceScore)
}
