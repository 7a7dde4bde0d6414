package evidence

import (
	"io"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pa-decision-orchestrator/internal/domain"
)

func newTestEngine() *Engine {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return NewEngine(logger)
}

func diabeticPatient() *domain.PatientRecord {
	return &domain.PatientRecord{
		PatientID:         "patient-001",
		Age:               45,
		Gender:            "M",
		DiagnosesICD10:    []string{"E11.9", "I10"},
		MedicationHistory: []string{"Metformin 1000mg BID", "Lisinopril 10mg"},
		Labs:              map[string]string{"HbA1c": "9.2%", "eGFR": "85 mL/min"},
		Notes:             "Poor glycemic control on metformin.",
		ProviderType:      "Endocrinologist",
	}
}

func TestAnalyzeEmptyContext(t *testing.T) {
	engine := newTestEngine()

	analysis := engine.Analyze(&domain.AnalysisContext{})

	assert.Empty(t, analysis.Items)
	assert.InDelta(t, 0.5, analysis.PreliminaryScore, 1e-9)
	assert.InDelta(t, 0.3, analysis.Confidence, 1e-9)
}

func TestCriteriaEvidenceMet(t *testing.T) {
	engine := newTestEngine()
	ctx := &domain.AnalysisContext{
		Coverage: &domain.CoverageDecision{
			DrugName:    "Empagliflozin",
			Insurer:     "UHC",
			CriteriaMet: true,
			Evaluations: make([]domain.Evaluation, 4),
		},
	}

	analysis := engine.Analyze(ctx)

	require.Len(t, analysis.Items, 1)
	item := analysis.Items[0]
	assert.Equal(t, domain.EvidenceCriteriaCheck, item.Type)
	assert.True(t, item.SupportsApproval)
	assert.InDelta(t, 0.30, item.Weight, 1e-9)
	assert.InDelta(t, 0.9, analysis.PreliminaryScore, 1e-9)
}

func TestCriteriaEvidenceUnmetPenalties(t *testing.T) {
	engine := newTestEngine()
	unmet := domain.Evaluation{
		Criterion: domain.Criterion{
			Type:     domain.CriterionStepTherapy,
			Severity: domain.SeverityCritical,
			Required: true,
		},
		Outcome: domain.OutcomeUnmet,
		Details: "no documented metformin trial",
	}
	ctx := &domain.AnalysisContext{
		Coverage: &domain.CoverageDecision{
			DrugName:      "Empagliflozin",
			Insurer:       "UHC",
			CriteriaMet:   false,
			Evaluations:   []domain.Evaluation{unmet},
			UnmetCriteria: []domain.Evaluation{unmet},
		},
	}

	analysis := engine.Analyze(ctx)

	require.Len(t, analysis.Items, 2)
	assert.False(t, analysis.Items[0].SupportsApproval)
	penalty := analysis.Items[1]
	assert.False(t, penalty.SupportsApproval)
	assert.InDelta(t, 0.20, penalty.Weight, 1e-9)
	assert.Contains(t, penalty.Content, "step_therapy")
	assert.Equal(t, 0, analysis.SupportingCount)
	assert.Equal(t, 2, analysis.OpposingCount)
}

func TestGuidelineEvidenceTopThree(t *testing.T) {
	engine := newTestEngine()
	ctx := &domain.AnalysisContext{
		Guidelines: []domain.GuidelineEntry{
			{Text: "Strongly recommended as preferred therapy", RelevanceScore: 0.9, Source: "ADA"},
			{Text: "Evidence supports use; effective and beneficial", RelevanceScore: 0.8, Source: "ACC"},
			{Text: "Contraindicated in severe renal impairment; avoid", RelevanceScore: 0.7, Source: "KDIGO"},
			{Text: "Fourth guideline never weighted", RelevanceScore: 0.6, Source: "AACE"},
		},
	}

	analysis := engine.Analyze(ctx)

	require.Len(t, analysis.Items, 3)
	for _, item := range analysis.Items {
		assert.Equal(t, domain.EvidenceGuideline, item.Type)
		assert.InDelta(t, 0.25/3.0, item.Weight, 1e-9)
	}
	assert.True(t, analysis.Items[0].SupportsApproval)
	assert.True(t, analysis.Items[1].SupportsApproval)
	assert.False(t, analysis.Items[2].SupportsApproval)
}

func TestInteractionEvidenceSeverityThreshold(t *testing.T) {
	engine := newTestEngine()

	cases := []struct {
		name     string
		severity domain.InteractionSeverity
		supports bool
	}{
		{"none supports", domain.InteractionNone, true},
		{"minor supports", domain.InteractionMinor, true},
		{"moderate opposes", domain.InteractionModerate, false},
		{"major opposes", domain.InteractionMajor, false},
		{"contraindicated opposes", domain.InteractionContraindicated, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ctx := &domain.AnalysisContext{
				InteractionCheck: &domain.InteractionResult{
					HighestSeverity: tc.severity,
					CheckedDrugs:    []string{"empagliflozin", "metformin"},
				},
			}
			analysis := engine.Analyze(ctx)
			require.Len(t, analysis.Items, 1)
			assert.Equal(t, tc.supports, analysis.Items[0].SupportsApproval)
		})
	}
}

func TestSafetyEvidenceConcerns(t *testing.T) {
	engine := newTestEngine()

	t.Run("pregnancy contraindication for female of childbearing age", func(t *testing.T) {
		patient := diabeticPatient()
		patient.Gender = "F"
		patient.Age = 32
		ctx := &domain.AnalysisContext{
			Patient: patient,
			Safety: &domain.DrugSafetySummary{
				DrugName:          "Empagliflozin",
				Contraindications: []string{"Pregnancy"},
			},
		}

		analysis := engine.Analyze(ctx)

		item := findItem(t, analysis.Items, domain.EvidenceDrugSafety)
		assert.False(t, item.SupportsApproval)
		assert.Contains(t, item.Content, "childbearing age")
	})

	t.Run("severe renal impairment", func(t *testing.T) {
		patient := diabeticPatient()
		patient.Labs["eGFR"] = "25 mL/min"
		ctx := &domain.AnalysisContext{
			Patient: patient,
			Safety: &domain.DrugSafetySummary{
				DrugName:          "Empagliflozin",
				Contraindications: []string{"Severe renal impairment (eGFR below 30)"},
			},
		}

		analysis := engine.Analyze(ctx)

		item := findItem(t, analysis.Items, domain.EvidenceDrugSafety)
		assert.False(t, item.SupportsApproval)
		assert.Contains(t, item.Content, "renal")
	})

	t.Run("no concerns supports approval", func(t *testing.T) {
		ctx := &domain.AnalysisContext{
			Patient: diabeticPatient(),
			Safety: &domain.DrugSafetySummary{
				DrugName:          "Empagliflozin",
				Contraindications: []string{"Pregnancy"},
			},
		}

		analysis := engine.Analyze(ctx)

		item := findItem(t, analysis.Items, domain.EvidenceDrugSafety)
		assert.True(t, item.SupportsApproval)
	})
}

func TestHistoryEvidenceFactors(t *testing.T) {
	engine := newTestEngine()
	ctx := &domain.AnalysisContext{
		Patient: diabeticPatient(),
		Policy: &domain.InsurerPolicy{
			Criteria: []domain.Criterion{
				{Type: domain.CriterionStepTherapy, RequiredPriorDrug: "metformin"},
			},
		},
	}

	analysis := engine.Analyze(ctx)

	item := findItem(t, analysis.Items, domain.EvidencePatientHistory)
	assert.True(t, item.SupportsApproval)
	assert.Contains(t, item.Content, "prerequisite therapy")
	assert.Contains(t, item.Content, "HbA1c")
	assert.Contains(t, item.Content, "prior therapy failure")
	assert.Greater(t, item.Confidence, 0.8)
}

func TestClinicalEvidenceSpecialist(t *testing.T) {
	engine := newTestEngine()
	ctx := &domain.AnalysisContext{
		Patient: diabeticPatient(),
		Drug: &domain.DrugInformation{
			Name:        "Empagliflozin",
			DrugClass:   "SGLT2 Inhibitor",
			Indications: []string{"Type 2 diabetes mellitus"},
		},
	}

	analysis := engine.Analyze(ctx)

	item := findItem(t, analysis.Items, domain.EvidenceClinical)
	assert.True(t, item.SupportsApproval)
	assert.Contains(t, item.Content, "specialist management")
	assert.Contains(t, item.Content, "age within typical treatment range")
}

func TestConfidenceCapped(t *testing.T) {
	engine := newTestEngine()
	patient := diabeticPatient()
	ctx := &domain.AnalysisContext{
		Patient: patient,
		Drug: &domain.DrugInformation{
			Name:        "Empagliflozin",
			DrugClass:   "SGLT2 Inhibitor",
			Indications: []string{"Type 2 diabetes mellitus"},
		},
		Policy: &domain.InsurerPolicy{Insurer: "UHC"},
		Coverage: &domain.CoverageDecision{
			DrugName:    "Empagliflozin",
			Insurer:     "UHC",
			CriteriaMet: true,
		},
		Guidelines: []domain.GuidelineEntry{
			{Text: "Recommended and preferred; evidence supports", RelevanceScore: 0.95, Source: "ADA"},
		},
		Safety: &domain.DrugSafetySummary{DrugName: "Empagliflozin"},
		InteractionCheck: &domain.InteractionResult{
			HighestSeverity: domain.InteractionNone,
			CheckedDrugs:    []string{"empagliflozin", "metformin"},
		},
	}

	analysis := engine.Analyze(ctx)

	assert.LessOrEqual(t, analysis.Confidence, 0.95)
	assert.Greater(t, analysis.Confidence, 0.7)
	assert.Greater(t, analysis.PreliminaryScore, 0.7)
	assert.Greater(t, analysis.SupportingCount, analysis.OpposingCount)
}

func TestGuidelineContentTruncated(t *testing.T) {
	engine := newTestEngine()
	ctx := &domain.AnalysisContext{
		Guidelines: []domain.GuidelineEntry{
			{Text: strings.Repeat("recommended ", 30), RelevanceScore: 0.8, Source: "ADA"},
		},
	}

	analysis := engine.Analyze(ctx)

	require.Len(t, analysis.Items, 1)
	assert.LessOrEqual(t, len(analysis.Items[0].Content), 150)
}

func findItem(t *testing.T, items []domain.EvidenceItem, typ domain.EvidenceType) domain.EvidenceItem {
	t.Helper()
	for _, item := range items {
		if item.Type == typ {
			return item
		}
	}
	t.Fatalf("no evidence item of type %s", typ)
	return domain.EvidenceItem{}
}
