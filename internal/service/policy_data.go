package service

import (
	"github.com/pa-decision-orchestrator/internal/domain"
)

func intPtr(v int) *int           { return &v }
func floatPtr(v float64) *float64 { return &v }

// loadBuiltinPolicies installs the demo policy set used when no policy file is
// configured. Coverage terms approximate published 2024 commercial formularies.
func (s *PolicyService) loadBuiltinPolicies() {
	s.versions["UHC"] = "2024.1"
	s.versions["BCBS"] = "2024.2"
	s.versions["AETNA"] = "2024.1"

	empagliflozinCriteria := []domain.Criterion{
		{
			ID:            "dx_t2dm",
			Type:          domain.CriterionDiagnosis,
			Description:   "Diagnosis of type 2 diabetes mellitus",
			Severity:      domain.SeverityCritical,
			Required:      true,
			RequiredCodes: []string{"E11.9", "E11.8", "E11.65"},
		},
		{
			ID:                "step_metformin",
			Type:              domain.CriterionStepTherapy,
			Description:       "Trial of metformin unless contraindicated",
			Severity:          domain.SeverityCritical,
			Required:          true,
			RequiredPriorDrug: "metformin",
			DurationDays:      intPtr(90),
		},
		{
			ID:          "lab_hba1c",
			Type:        domain.CriterionLabValue,
			Description: "HbA1c at or above 7.0% on current therapy",
			Severity:    domain.SeverityModerate,
			Required:    true,
			TestName:    "HbA1c",
			MinValue:    floatPtr(7.0),
		},
		{
			ID:          "age_adult",
			Type:        domain.CriterionAgeLimit,
			Description: "Adult patients only",
			Severity:    domain.SeverityModerate,
			Required:    true,
			MinAge:      intPtr(18),
		},
	}

	empagliflozinAlternatives := []domain.PolicyAlternative{
		{DrugName: "Metformin", CoverageStatus: domain.Covered, Tier: 1, RequiresPA: false, MonthlyCost: 12},
		{DrugName: "Glipizide", CoverageStatus: domain.Covered, Tier: 1, RequiresPA: false, MonthlyCost: 15},
		{DrugName: "Dapagliflozin", CoverageStatus: domain.CoveredWithPA, Tier: 3, RequiresPA: true, MonthlyCost: 540},
	}

	s.policies["UHC"] = map[string]*domain.InsurerPolicy{
		"empagliflozin": {
			DrugName:       "Empagliflozin",
			Insurer:        "UHC",
			PolicyVersion:  "2024.1",
			CoverageStatus: domain.CoveredWithPA,
			Tier:           3,
			MonthlyCost:    570,
			Criteria:       empagliflozinCriteria,
			Alternatives:   empagliflozinAlternatives,
		},
		"semaglutide": {
			DrugName:       "Semaglutide",
			Insurer:        "UHC",
			PolicyVersion:  "2024.1",
			CoverageStatus: domain.CoveredWithPA,
			Tier:           3,
			MonthlyCost:    935,
			Criteria: []domain.Criterion{
				{
					ID:            "dx_t2dm",
					Type:          domain.CriterionDiagnosis,
					Description:   "Diagnosis of type 2 diabetes mellitus",
					Severity:      domain.SeverityCritical,
					Required:      true,
					RequiredCodes: []string{"E11.9", "E11.8"},
				},
				{
					ID:                "step_metformin",
					Type:              domain.CriterionStepTherapy,
					Description:       "Trial of metformin",
					Severity:          domain.SeverityCritical,
					Required:          true,
					RequiredPriorDrug: "metformin",
				},
			},
			QuantityLimits: &domain.QuantityLimits{
				MaxUnitsPerFill: 4,
				PeriodDays:      28,
				Description:     "Quantity limited to 4 pens per 28 days",
			},
			Alternatives: []domain.PolicyAlternative{
				{DrugName: "Dulaglutide", CoverageStatus: domain.CoveredWithPA, Tier: 3, RequiresPA: true, MonthlyCost: 830},
				{DrugName: "Metformin", CoverageStatus: domain.Covered, Tier: 1, RequiresPA: false, MonthlyCost: 12},
			},
		},
		"metformin": {
			DrugName:       "Metformin",
			Insurer:        "UHC",
			PolicyVersion:  "2024.1",
			CoverageStatus: domain.Covered,
			Tier:           1,
			MonthlyCost:    12,
		},
		"atorvastatin": {
			DrugName:       "Atorvastatin",
			Insurer:        "UHC",
			PolicyVersion:  "2024.1",
			CoverageStatus: domain.Covered,
			Tier:           1,
			MonthlyCost:    18,
		},
		"adalimumab": {
			DrugName:       "Adalimumab",
			Insurer:        "UHC",
			PolicyVersion:  "2024.1",
			CoverageStatus: domain.CoveredWithRestrictions,
			Tier:           5,
			MonthlyCost:    6800,
			Criteria: []domain.Criterion{
				{
					ID:            "dx_ra",
					Type:          domain.CriterionDiagnosis,
					Description:   "Diagnosis of rheumatoid arthritis or other approved indication",
					Severity:      domain.SeverityCritical,
					Required:      true,
					RequiredCodes: []string{"M05.79", "M06.9", "L40.50", "K50.90"},
				},
				{
					ID:                "step_methotrexate",
					Type:              domain.CriterionStepTherapy,
					Description:       "Trial of methotrexate for at least 90 days",
					Severity:          domain.SeverityCritical,
					Required:          true,
					RequiredPriorDrug: "methotrexate",
					DurationDays:      intPtr(90),
				},
				{
					ID:               "provider_specialist",
					Type:             domain.CriterionProviderType,
					Description:      "Prescribed by a rheumatologist, dermatologist, or gastroenterologist",
					Severity:         domain.SeverityModerate,
					Required:         true,
					AllowedProviders: []string{"Rheumatologist", "Dermatologist", "Gastroenterologist"},
				},
			},
			Alternatives: []domain.PolicyAlternative{
				{DrugName: "Methotrexate", CoverageStatus: domain.Covered, Tier: 1, RequiresPA: false, MonthlyCost: 25},
				{DrugName: "Etanercept", CoverageStatus: domain.CoveredWithPA, Tier: 5, RequiresPA: true, MonthlyCost: 6400},
			},
		},
	}

	s.policies["BCBS"] = map[string]*domain.InsurerPolicy{
		"empagliflozin": {
			DrugName:       "Empagliflozin",
			Insurer:        "BCBS",
			PolicyVersion:  "2024.2",
			CoverageStatus: domain.CoveredWithPA,
			Tier:           3,
			MonthlyCost:    555,
			Criteria:       empagliflozinCriteria,
			QuantityLimits: &domain.QuantityLimits{
				MaxUnitsPerFill: 30,
				PeriodDays:      30,
				Description:     "Quantity limited to 30 tablets per 30 days",
			},
			Alternatives: empagliflozinAlternatives,
		},
		"metformin": {
			DrugName:       "Metformin",
			Insurer:        "BCBS",
			PolicyVersion:  "2024.2",
			CoverageStatus: domain.Covered,
			Tier:           1,
			MonthlyCost:    10,
		},
		"lisinopril": {
			DrugName:       "Lisinopril",
			Insurer:        "BCBS",
			PolicyVersion:  "2024.2",
			CoverageStatus: domain.Covered,
			Tier:           1,
			MonthlyCost:    8,
		},
	}

	s.policies["AETNA"] = map[string]*domain.InsurerPolicy{
		"empagliflozin": {
			DrugName:       "Empagliflozin",
			Insurer:        "AETNA",
			PolicyVersion:  "2024.1",
			CoverageStatus: domain.NonPreferred,
			Tier:           4,
			MonthlyCost:    610,
			Alternatives: []domain.PolicyAlternative{
				{DrugName: "Dapagliflozin", CoverageStatus: domain.CoveredWithPA, Tier: 3, RequiresPA: true, MonthlyCost: 540},
			},
		},
		"dapagliflozin": {
			DrugName:       "Dapagliflozin",
			Insurer:        "AETNA",
			PolicyVersion:  "2024.1",
			CoverageStatus: domain.CoveredWithPA,
			Tier:           3,
			MonthlyCost:    540,
			Criteria: []domain.Criterion{
				{
					ID:            "dx_t2dm",
					Type:          domain.CriterionDiagnosis,
					Description:   "Diagnosis of type 2 diabetes mellitus",
					Severity:      domain.SeverityCritical,
					Required:      true,
					RequiredCodes: []string{"E11.9"},
				},
			},
		},
	}
}
