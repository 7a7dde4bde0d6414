package service

import (
	"io"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pa-decision-orchestrator/internal/domain"
)

func newTestLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func testPatient001() *domain.PatientRecord {
	adherence := 0.92
	return &domain.PatientRecord{
		PatientID:         "patient-001",
		Age:               52,
		Gender:            "F",
		DiagnosesICD10:    []string{"E11.9", "I10", "E78.5"},
		MedicationHistory: []string{"Metformin", "Lisinopril", "Atorvastatin"},
		Labs:              map[string]string{"HbA1c": "9.2%", "eGFR": "85"},
		ProviderType:      "Endocrinologist",
		AdherenceScore:    &adherence,
	}
}

func newTestPolicyService(t *testing.T) *PolicyService {
	t.Helper()
	svc, err := NewPolicyService(newTestLogger(), "")
	require.NoError(t, err)
	return svc
}

func TestEvaluateCriterion(t *testing.T) {
	patient := testPatient001()

	tests := []struct {
		name      string
		criterion domain.Criterion
		patient   *domain.PatientRecord
		want      domain.EvaluationOutcome
	}{
		{
			name: "diagnosis any-of match",
			criterion: domain.Criterion{
				Type:          domain.CriterionDiagnosis,
				RequiredCodes: []string{"E11.9", "E11.8"},
			},
			patient: patient,
			want:    domain.OutcomeMet,
		},
		{
			name: "diagnosis no match",
			criterion: domain.Criterion{
				Type:          domain.CriterionDiagnosis,
				RequiredCodes: []string{"K21.0"},
			},
			patient: patient,
			want:    domain.OutcomeUnmet,
		},
		{
			name: "step therapy documented",
			criterion: domain.Criterion{
				Type:              domain.CriterionStepTherapy,
				RequiredPriorDrug: "metformin",
			},
			patient: patient,
			want:    domain.OutcomeMet,
		},
		{
			name: "step therapy missing",
			criterion: domain.Criterion{
				Type:              domain.CriterionStepTherapy,
				RequiredPriorDrug: "metformin",
			},
			patient: &domain.PatientRecord{Age: 35},
			want:    domain.OutcomeUnmet,
		},
		{
			name: "lab above minimum",
			criterion: domain.Criterion{
				Type:     domain.CriterionLabValue,
				TestName: "HbA1c",
				MinValue: floatPtr(7.0),
			},
			patient: patient,
			want:    domain.OutcomeMet,
		},
		{
			name: "lab below minimum",
			criterion: domain.Criterion{
				Type:     domain.CriterionLabValue,
				TestName: "HbA1c",
				MinValue: floatPtr(10.0),
			},
			patient: patient,
			want:    domain.OutcomeUnmet,
		},
		{
			name: "lab unparseable",
			criterion: domain.Criterion{
				Type:     domain.CriterionLabValue,
				TestName: "HbA1c",
				MinValue: floatPtr(7.0),
			},
			patient: &domain.PatientRecord{Age: 52, Labs: map[string]string{"HbA1c": "n/a"}},
			want:    domain.OutcomeUnparseable,
		},
		{
			name: "lab case-insensitive name",
			criterion: domain.Criterion{
				Type:     domain.CriterionLabValue,
				TestName: "hba1c",
				MinValue: floatPtr(7.0),
			},
			patient: patient,
			want:    domain.OutcomeMet,
		},
		{
			name: "age within limits",
			criterion: domain.Criterion{
				Type:   domain.CriterionAgeLimit,
				MinAge: intPtr(18),
			},
			patient: patient,
			want:    domain.OutcomeMet,
		},
		{
			name: "age below minimum",
			criterion: domain.Criterion{
				Type:   domain.CriterionAgeLimit,
				MinAge: intPtr(18),
			},
			patient: &domain.PatientRecord{Age: 12},
			want:    domain.OutcomeUnmet,
		},
		{
			name: "quantity within limit",
			criterion: domain.Criterion{
				Type:            domain.CriterionQuantityLimit,
				MaxUnitsPerFill: intPtr(30),
			},
			patient: &domain.PatientRecord{Age: 52, RequestedQuantity: intPtr(30)},
			want:    domain.OutcomeMet,
		},
		{
			name: "quantity exceeds limit",
			criterion: domain.Criterion{
				Type:            domain.CriterionQuantityLimit,
				MaxUnitsPerFill: intPtr(30),
			},
			patient: &domain.PatientRecord{Age: 52, RequestedQuantity: intPtr(60)},
			want:    domain.OutcomeUnmet,
		},
		{
			name: "provider type allowed",
			criterion: domain.Criterion{
				Type:             domain.CriterionProviderType,
				AllowedProviders: []string{"Endocrinologist", "Cardiologist"},
			},
			patient: patient,
			want:    domain.OutcomeMet,
		},
		{
			name: "provider type rejected",
			criterion: domain.Criterion{
				Type:             domain.CriterionProviderType,
				AllowedProviders: []string{"Rheumatologist"},
			},
			patient: patient,
			want:    domain.OutcomeUnmet,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			eval := EvaluateCriterion(tt.criterion, tt.patient)
			assert.Equal(t, tt.want, eval.Outcome)
			assert.NotEmpty(t, eval.Details)
		})
	}
}

func TestEvaluateCriterionDeterministic(t *testing.T) {
	criterion := domain.Criterion{
		Type:     domain.CriterionLabValue,
		TestName: "HbA1c",
		MinValue: floatPtr(7.0),
	}
	patient := testPatient001()

	first := EvaluateCriterion(criterion, patient)
	second := EvaluateCriterion(criterion, patient)
	assert.Equal(t, first, second)
}

func TestCheckCoverageApprovalPath(t *testing.T) {
	svc := newTestPolicyService(t)

	decision, err := svc.CheckCoverage("Empagliflozin", "UHC", testPatient001())
	require.NoError(t, err)

	assert.True(t, decision.RequiresPA)
	assert.True(t, decision.CriteriaMet)
	assert.Empty(t, decision.UnmetCriteria)
	assert.Equal(t, domain.CoveredWithPA, decision.CoverageStatus)
}

func TestCheckCoverageMissingStepTherapy(t *testing.T) {
	svc := newTestPolicyService(t)
	patient := &domain.PatientRecord{
		PatientID:      "patient-002",
		Age:            35,
		Gender:         "M",
		DiagnosesICD10: []string{"E11.9"},
		Labs:           map[string]string{"HbA1c": "7.8%", "eGFR": "95"},
	}

	decision, err := svc.CheckCoverage("empagliflozin", "UHC", patient)
	require.NoError(t, err)

	assert.False(t, decision.CriteriaMet)
	var sawStepTherapy bool
	for _, unmet := range decision.UnmetCriteria {
		if unmet.Criterion.Type == domain.CriterionStepTherapy {
			sawStepTherapy = true
		}
	}
	assert.True(t, sawStepTherapy, "expected an unmet step therapy criterion")
}

func TestCheckCoverageQuantityLimitBreach(t *testing.T) {
	svc := newTestPolicyService(t)
	patient := testPatient001()
	patient.RequestedQuantity = intPtr(60)

	decision, err := svc.CheckCoverage("empagliflozin", "BCBS", patient)
	require.NoError(t, err)

	assert.False(t, decision.CriteriaMet)

	var quantityUnmet bool
	for _, unmet := range decision.UnmetCriteria {
		if unmet.Criterion.Type == domain.CriterionQuantityLimit {
			quantityUnmet = true
			assert.Equal(t, domain.SeverityCritical, unmet.Criterion.Severity)
		}
	}
	assert.True(t, quantityUnmet, "expected an unmet quantity limit criterion")

	var mentions30 bool
	for _, rec := range decision.Recommendations {
		if strings.Contains(rec, "30") {
			mentions30 = true
		}
	}
	assert.True(t, mentions30, "expected a recommendation mentioning the 30 unit limit")
}

func TestCheckCoverageNoPriorAuthShortCircuit(t *testing.T) {
	svc := newTestPolicyService(t)

	decision, err := svc.CheckCoverage("metformin", "UHC", testPatient001())
	require.NoError(t, err)

	assert.False(t, decision.RequiresPA)
	assert.True(t, decision.CriteriaMet)
	assert.Empty(t, decision.Evaluations)
}

func TestCheckCoverageDeterminism(t *testing.T) {
	svc := newTestPolicyService(t)
	patient := testPatient001()

	first, err := svc.CheckCoverage("empagliflozin", "UHC", patient)
	require.NoError(t, err)
	second, err := svc.CheckCoverage("empagliflozin", "UHC", patient)
	require.NoError(t, err)

	assert.Equal(t, first.CriteriaMet, second.CriteriaMet)
	assert.Equal(t, first.Evaluations, second.Evaluations)
}

func TestGetPolicyUnknownInsurer(t *testing.T) {
	svc := newTestPolicyService(t)

	_, err := svc.GetPolicy("empagliflozin", "NOSUCH")
	var notFound *domain.NotFoundError
	assert.ErrorAs(t, err, &notFound)
}

func TestGetPolicyDefensiveCopy(t *testing.T) {
	svc := newTestPolicyService(t)

	first, err := svc.GetPolicy("empagliflozin", "UHC")
	require.NoError(t, err)
	first.Tier = 99
	first.Criteria = nil

	second, err := svc.GetPolicy("empagliflozin", "UHC")
	require.NoError(t, err)
	assert.NotEqual(t, 99, second.Tier)
	assert.NotEmpty(t, second.Criteria)
}

func TestGetPolicyAnyInsurerFallback(t *testing.T) {
	svc := newTestPolicyService(t)

	policy, err := svc.GetPolicy("dapagliflozin", "")
	require.NoError(t, err)
	assert.Equal(t, "AETNA", policy.Insurer)
}

func TestComparePolicies(t *testing.T) {
	svc := newTestPolicyService(t)

	comparisons, best, err := svc.ComparePolicies("empagliflozin", nil)
	require.NoError(t, err)
	require.Len(t, comparisons, 3)
	assert.NotEmpty(t, best)

	var bestScore float64
	for _, c := range comparisons {
		if c.Insurer == best {
			bestScore = c.Score
		}
	}
	for _, c := range comparisons {
		assert.LessOrEqual(t, c.Score, bestScore)
	}
}

func TestCoverageScoreOrdering(t *testing.T) {
	covered := &domain.InsurerPolicy{CoverageStatus: domain.Covered, Tier: 1, MonthlyCost: 10}
	nonPreferred := &domain.InsurerPolicy{CoverageStatus: domain.NonPreferred, Tier: 4, MonthlyCost: 600}
	assert.Greater(t, coverageScore(covered), coverageScore(nonPreferred))
}

func TestSearchFormulary(t *testing.T) {
	svc := newTestPolicyService(t)

	byName := svc.SearchFormulary("empagliflozin", "name")
	assert.NotEmpty(t, byName)
	for _, hit := range byName {
		assert.Equal(t, "Empagliflozin", hit.DrugName)
	}

	byTier := svc.SearchFormulary("3", "tier")
	assert.NotEmpty(t, byTier)
	for _, hit := range byTier {
		assert.Equal(t, 3, hit.Tier)
	}
}

func TestAlternatives(t *testing.T) {
	svc := newTestPolicyService(t)

	alts, err := svc.Alternatives("empagliflozin", "UHC")
	require.NoError(t, err)
	assert.NotEmpty(t, alts)
}
