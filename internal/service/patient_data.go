package service

import (
	"time"

	"github.com/pa-decision-orchestrator/internal/domain"
)

// seedPatients returns the built-in demo cohort loaded when no patient file
// is configured.
func seedPatients() []*domain.PatientRecord {
	created := time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC)

	return []*domain.PatientRecord{
		{
			PatientID:      "patient-001",
			Name:           "Maria Gonzalez",
			Age:            52,
			Gender:         "F",
			DiagnosesICD10: []string{"E11.9", "I10", "E78.5"},
			MedicationHistory: []string{
				"Metformin", "Lisinopril", "Atorvastatin",
			},
			Labs: map[string]string{
				"HbA1c": "9.2%",
				"eGFR":  "85",
			},
			Notes:          "Poor glycemic control on metformin monotherapy for 6 months. Considering SGLT2 inhibitor addition.",
			ProviderType:   "Endocrinologist",
			AdherenceScore: floatPtr(0.92),
			SSN:            "123-45-6789",
			DOB:            "1972-03-18",
			Address:        "218 Maple Ave, Springfield, IL",
			Phone:          "217-555-0114",
			CreatedAt:      created,
			LastUpdated:    created,
		},
		{
			PatientID:         "patient-002",
			Name:              "David Kim",
			Age:               35,
			Gender:            "M",
			DiagnosesICD10:    []string{"E11.9"},
			MedicationHistory: []string{},
			Labs: map[string]string{
				"HbA1c": "7.8%",
				"eGFR":  "95",
			},
			Notes:          "Newly diagnosed type 2 diabetes. No pharmacotherapy started yet.",
			ProviderType:   "Primary Care Physician",
			AdherenceScore: floatPtr(0.80),
			DOB:            "1989-07-02",
			CreatedAt:      created,
			LastUpdated:    created,
		},
		{
			PatientID:      "patient-003",
			Name:           "Ruth Abrams",
			Age:            67,
			Gender:         "F",
			DiagnosesICD10: []string{"K21.0", "K92.1"},
			MedicationHistory: []string{
				"Omeprazole",
			},
			Labs: map[string]string{
				"Hemoglobin": "11.2 g/dL",
			},
			Notes:        "GERD with esophagitis. Recent melena under investigation.",
			ProviderType: "Gastroenterologist",
			CreatedAt:    created,
			LastUpdated:  created,
		},
		{
			PatientID:      "patient-004",
			Name:           "James Okafor",
			Age:            58,
			Gender:         "M",
			DiagnosesICD10: []string{"M06.9", "I10"},
			MedicationHistory: []string{
				"Methotrexate", "Folic Acid", "Lisinopril",
			},
			Labs: map[string]string{
				"CRP": "18 mg/L",
				"ESR": "42 mm/hr",
			},
			Notes:          "Active rheumatoid arthritis despite 6 months of methotrexate. Prior PA approved for etanercept 2022.",
			ProviderType:   "Rheumatologist",
			AdherenceScore: floatPtr(0.88),
			CreatedAt:      created,
			LastUpdated:    created,
		},
		{
			PatientID:      "patient-005",
			Name:           "Elena Petrova",
			Age:            44,
			Gender:         "F",
			DiagnosesICD10: []string{"E11.65", "N18.3"},
			MedicationHistory: []string{
				"Metformin", "Warfarin",
			},
			Labs: map[string]string{
				"HbA1c": "8.4%",
				"eGFR":  "42 mL/min",
				"INR":   "2.4",
			},
			Notes:          "T2DM with CKD stage 3a. On anticoagulation for prior DVT.",
			ProviderType:   "Nephrologist",
			AdherenceScore: floatPtr(0.75),
			CreatedAt:      created,
			LastUpdated:    created,
		},
	}
}
