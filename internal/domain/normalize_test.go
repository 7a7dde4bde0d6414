package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeDrugName(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"lowercase and trim", "  Empagliflozin  ", "empagliflozin"},
		{"trade name synonym", "Jardiance", "empagliflozin"},
		{"hcl suffix", "Metformin HCl", "metformin"},
		{"extended release long suffix", "Metformin Extended Release", "metformin"},
		{"er suffix", "metformin er", "metformin"},
		{"sodium suffix", "Warfarin Sodium", "warfarin"},
		{"synonym after suffix strip", "Glucophage XR", "metformin"},
		{"no change needed", "lisinopril", "lisinopril"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeDrugName(tt.input)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalizeDrugNameIdempotent(t *testing.T) {
	inputs := []string{"Jardiance", "Metformin HCl", "metformin er", "Coumadin", "atorvastatin"}
	for _, input := range inputs {
		once := NormalizeDrugName(input)
		twice := NormalizeDrugName(once)
		assert.Equal(t, once, twice, "normalization of %q is not idempotent", input)
	}
}

func TestNormalizeDrugNameLongestSuffixWins(t *testing.T) {
	// " extended release" must win over " er" even though both could apply.
	assert.Equal(t, "metformin", NormalizeDrugName("metformin extended release"))
}

func TestNormalizeTaskName(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"predict_approval_likelihood", "predict_approval_likelihood"},
		{"Predict Approval", "predict_approval_likelihood"},
		{"get_policy", "get_policy_for_drug"},
		{"retrieve_insurance_policy_for_empagliflozin", "get_policy_for_drug"},
		{"evaluate_if_patient_meets_pa_criteria_for_jardiance", "check_coverage_criteria"},
		{"check-interactions", "check_drug_interactions"},
		{"get_drug_info", "get_drug_info"},
		{"unknown_task", "unknown_task"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeTaskName(tt.input))
		})
	}
}

func TestNormalizeTaskNameIdempotent(t *testing.T) {
	inputs := []string{"retrieve_insurance_policy_for_ozempic", "Check Coverage", "predict"}
	for _, input := range inputs {
		once := NormalizeTaskName(input)
		assert.Equal(t, once, NormalizeTaskName(once))
	}
}

func TestParseLabValue(t *testing.T) {
	tests := []struct {
		input  string
		want   float64
		wantOK bool
	}{
		{"9.2%", 9.2, true},
		{"eGFR 85 mL/min", 85, true},
		{"7.8", 7.8, true},
		{"-2.5 mmol/L", -2.5, true},
		{"n/a", 0, false},
		{"", 0, false},
		{"pending", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, ok := ParseLabValue(tt.input)
			assert.Equal(t, tt.wantOK, ok)
			if ok {
				assert.InDelta(t, tt.want, got, 1e-9)
			}
		})
	}
}

func TestCanonicalID(t *testing.T) {
	assert.Equal(t, "pubmed_article_pmid_12345", CanonicalID(DocPubMedArticle, "PMID 12345"))
	assert.Equal(t, "guideline_ada_2024_standards", CanonicalID(DocGuideline, "ADA-2024/Standards"))
	// Idempotent when re-derived from its own output fragment.
	id := CanonicalID(DocWorkflowSummary, "WF 001")
	assert.Equal(t, "workflow_summary_wf_001", id)
}

func TestMergeContext(t *testing.T) {
	merged := MergeContext([]string{"a", "b"}, "b", "c", "", "a")
	assert.Equal(t, []string{"a", "b", "c"}, merged)
}
