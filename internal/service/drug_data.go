package service

import (
	"github.com/pa-decision-orchestrator/internal/domain"
)

// builtinDrugs is the embedded monograph set keyed by normalized name.
func builtinDrugs() map[string]*domain.DrugInformation {
	return map[string]*domain.DrugInformation{
		"empagliflozin": {
			Name:      "Empagliflozin",
			DrugClass: "SGLT2 Inhibitor",
			Mechanism: "Inhibits sodium-glucose cotransporter 2 in the proximal tubule, increasing urinary glucose excretion",
			Indications: []string{
				"Type 2 diabetes mellitus",
				"Heart failure with reduced ejection fraction",
				"Chronic kidney disease",
			},
			Contraindications: []string{
				"Severe renal impairment (eGFR below 30)",
				"Pregnancy",
			},
			Warnings: []string{
				"Diabetic ketoacidosis",
				"Genital mycotic infections",
				"Volume depletion and hypotension",
			},
			MonitoringRequirements: []string{
				"Renal function at baseline and periodically",
				"Volume status in elderly patients",
				"Signs of ketoacidosis",
			},
			Dosing: map[string]string{
				"initial":          "10 mg orally once daily in the morning",
				"maximum":          "25 mg once daily",
				"renal_adjustment": "Do not initiate if eGFR below 30 mL/min/1.73m2",
			},
		},
		"dapagliflozin": {
			Name:      "Dapagliflozin",
			DrugClass: "SGLT2 Inhibitor",
			Mechanism: "Inhibits sodium-glucose cotransporter 2, promoting urinary glucose excretion",
			Indications: []string{
				"Type 2 diabetes mellitus",
				"Heart failure",
				"Chronic kidney disease",
			},
			Contraindications: []string{"Dialysis"},
			Warnings: []string{
				"Diabetic ketoacidosis",
				"Urinary tract infections",
			},
			MonitoringRequirements: []string{"Renal function", "Volume status"},
			Dosing: map[string]string{
				"initial": "5 mg once daily",
				"maximum": "10 mg once daily",
			},
		},
		"metformin": {
			Name:      "Metformin",
			DrugClass: "Biguanide",
			Mechanism: "Decreases hepatic glucose production and improves insulin sensitivity",
			Indications: []string{
				"Type 2 diabetes mellitus",
			},
			Contraindications: []string{
				"eGFR below 30 mL/min/1.73m2",
				"Metabolic acidosis",
			},
			Warnings: []string{
				"Lactic acidosis",
			},
			MonitoringRequirements: []string{
				"Renal function annually",
				"Vitamin B12 with long-term use",
			},
			Dosing: map[string]string{
				"initial":          "500 mg twice daily with meals",
				"maximum":          "2550 mg daily in divided doses",
				"renal_adjustment": "Do not initiate if eGFR 30-45; contraindicated below 30",
			},
		},
		"semaglutide": {
			Name:      "Semaglutide",
			DrugClass: "GLP-1 Receptor Agonist",
			Mechanism: "Glucagon-like peptide-1 receptor agonist slowing gastric emptying and enhancing glucose-dependent insulin secretion",
			Indications: []string{
				"Type 2 diabetes mellitus",
				"Chronic weight management",
			},
			Contraindications: []string{
				"Personal or family history of medullary thyroid carcinoma",
				"MEN 2 syndrome",
			},
			Warnings: []string{
				"Thyroid C-cell tumors",
				"Pancreatitis",
				"Diabetic retinopathy complications",
			},
			MonitoringRequirements: []string{"Signs of pancreatitis", "Renal function with GI losses"},
			Dosing: map[string]string{
				"initial": "0.25 mg subcutaneously once weekly",
				"maximum": "2 mg once weekly",
			},
		},
		"glipizide": {
			Name:                   "Glipizide",
			DrugClass:              "Sulfonylurea",
			Mechanism:              "Stimulates insulin release from pancreatic beta cells",
			Indications:            []string{"Type 2 diabetes mellitus"},
			Warnings:               []string{"Hypoglycemia"},
			MonitoringRequirements: []string{"Blood glucose"},
			Dosing: map[string]string{
				"initial": "5 mg once daily before breakfast",
				"maximum": "40 mg daily",
			},
		},
		"lisinopril": {
			Name:        "Lisinopril",
			DrugClass:   "ACE Inhibitor",
			Mechanism:   "Inhibits angiotensin-converting enzyme, reducing angiotensin II formation",
			Indications: []string{"Hypertension", "Heart failure", "Post-myocardial infarction"},
			Contraindications: []string{
				"History of angioedema",
				"Pregnancy",
			},
			Warnings:               []string{"Hyperkalemia", "Renal impairment"},
			MonitoringRequirements: []string{"Serum potassium", "Renal function"},
			Dosing: map[string]string{
				"initial": "10 mg once daily",
				"maximum": "40 mg once daily",
			},
		},
		"atorvastatin": {
			Name:                   "Atorvastatin",
			DrugClass:              "HMG-CoA Reductase Inhibitor",
			Mechanism:              "Inhibits HMG-CoA reductase, lowering LDL cholesterol",
			Indications:            []string{"Hyperlipidemia", "Atherosclerotic cardiovascular disease prevention"},
			Warnings:               []string{"Myopathy and rhabdomyolysis", "Hepatic dysfunction"},
			MonitoringRequirements: []string{"Liver enzymes", "Lipid panel"},
			Dosing: map[string]string{
				"initial": "20 mg once daily",
				"maximum": "80 mg once daily",
			},
		},
		"warfarin": {
			Name:        "Warfarin",
			DrugClass:   "Vitamin K Antagonist",
			Mechanism:   "Inhibits vitamin K epoxide reductase, depleting clotting factors II, VII, IX, X",
			Indications: []string{"Venous thromboembolism", "Atrial fibrillation", "Mechanical heart valves"},
			Contraindications: []string{
				"Active bleeding",
				"Pregnancy",
			},
			Warnings: []string{
				"Major bleeding",
				"Tissue necrosis",
				"Extensive drug and food interactions",
			},
			MonitoringRequirements: []string{"INR at least monthly once stable"},
			Dosing: map[string]string{
				"initial": "5 mg once daily, adjusted to INR",
			},
		},
		"aspirin": {
			Name:              "Aspirin",
			DrugClass:         "Antiplatelet (NSAID)",
			Mechanism:         "Irreversibly inhibits cyclooxygenase-1, reducing thromboxane A2",
			Indications:       []string{"Cardiovascular prophylaxis", "Pain and inflammation"},
			Contraindications: []string{"Active peptic ulcer disease"},
			Warnings: []string{
				"Gastrointestinal bleeding",
				"Reye syndrome in children",
			},
			MonitoringRequirements: []string{"Signs of bleeding"},
			Dosing: map[string]string{
				"initial": "81 mg once daily for prophylaxis",
			},
		},
		"adalimumab": {
			Name:      "Adalimumab",
			DrugClass: "TNF-alpha Inhibitor",
			Mechanism: "Monoclonal antibody binding tumor necrosis factor alpha",
			Indications: []string{
				"Rheumatoid arthritis",
				"Psoriatic arthritis",
				"Crohn disease",
				"Ulcerative colitis",
			},
			Contraindications: []string{"Active serious infection"},
			Warnings: []string{
				"Serious infections including tuberculosis",
				"Lymphoma and other malignancies",
				"Demyelinating disease",
				"Heart failure exacerbation",
			},
			MonitoringRequirements: []string{
				"TB screening before initiation",
				"CBC periodically",
				"Signs of infection",
			},
			Dosing: map[string]string{
				"initial": "40 mg subcutaneously every other week",
			},
		},
		"methotrexate": {
			Name:        "Methotrexate",
			DrugClass:   "Antimetabolite (DMARD)",
			Mechanism:   "Inhibits dihydrofolate reductase, suppressing lymphocyte proliferation",
			Indications: []string{"Rheumatoid arthritis", "Psoriasis", "Certain malignancies"},
			Contraindications: []string{
				"Pregnancy",
				"Significant hepatic impairment",
				"Blood dyscrasias",
			},
			Warnings: []string{
				"Hepatotoxicity",
				"Myelosuppression",
				"Pulmonary toxicity",
			},
			MonitoringRequirements: []string{"CBC, liver enzymes, renal function every 4-8 weeks"},
			Dosing: map[string]string{
				"initial": "7.5 mg once weekly",
				"maximum": "25 mg once weekly for RA",
			},
		},
		"omeprazole": {
			Name:                   "Omeprazole",
			DrugClass:              "Proton Pump Inhibitor",
			Mechanism:              "Irreversibly inhibits the gastric H+/K+ ATPase",
			Indications:            []string{"GERD", "Peptic ulcer disease", "H. pylori eradication"},
			Warnings:               []string{"Hypomagnesemia with long-term use"},
			MonitoringRequirements: []string{"Magnesium with prolonged therapy"},
			Dosing: map[string]string{
				"initial": "20 mg once daily",
			},
		},
	}
}

// builtinInteractions is the adjacency list of known pairwise interactions.
// Pairs are stored under the first drug; lookups are bidirectional.
func builtinInteractions() map[string][]domain.DrugInteraction {
	return map[string][]domain.DrugInteraction{
		"warfarin": {
			{
				Drugs:       [2]string{"warfarin", "aspirin"},
				Severity:    domain.InteractionMajor,
				Description: "Additive anticoagulant and antiplatelet effects markedly increase bleeding risk",
				Management:  "Avoid combination unless a compelling indication exists; monitor INR and for bleeding",
			},
			{
				Drugs:       [2]string{"warfarin", "omeprazole"},
				Severity:    domain.InteractionModerate,
				Description: "Omeprazole may inhibit warfarin metabolism and raise INR",
			},
			{
				Drugs:       [2]string{"warfarin", "methotrexate"},
				Severity:    domain.InteractionModerate,
				Description: "Displacement from protein binding may potentiate both agents",
			},
		},
		"empagliflozin": {
			{
				Drugs:       [2]string{"empagliflozin", "lisinopril"},
				Severity:    domain.InteractionMinor,
				Description: "Additive blood-pressure lowering; rarely clinically significant",
			},
		},
		"metformin": {
			{
				Drugs:       [2]string{"metformin", "empagliflozin"},
				Severity:    domain.InteractionNone,
				Description: "Commonly combined; complementary mechanisms",
			},
		},
		"methotrexate": {
			{
				Drugs:       [2]string{"methotrexate", "aspirin"},
				Severity:    domain.InteractionMajor,
				Description: "Salicylates reduce renal clearance of methotrexate, risking toxicity",
			},
		},
	}
}

// builtinPACriteria lists typical prior-authorization documentation points
// per drug.
func builtinPACriteria() map[string][]string {
	return map[string][]string{
		"empagliflozin": {
			"Confirmed diagnosis of type 2 diabetes mellitus (E11.x)",
			"HbA1c at or above 7.0% on current therapy",
			"Documented trial of metformin for at least 90 days unless contraindicated",
			"Baseline renal function (eGFR at or above 30 mL/min/1.73m2)",
		},
		"semaglutide": {
			"Confirmed diagnosis of type 2 diabetes mellitus",
			"Documented trial of metformin",
			"No personal or family history of medullary thyroid carcinoma",
		},
		"adalimumab": {
			"Confirmed diagnosis of rheumatoid arthritis or other approved indication",
			"Documented trial of methotrexate for at least 90 days",
			"Negative tuberculosis screening within 12 months",
			"Prescribed by or in consultation with a specialist",
		},
		"dapagliflozin": {
			"Confirmed diagnosis of type 2 diabetes mellitus, heart failure, or CKD",
			"Baseline renal function documented",
		},
	}
}
