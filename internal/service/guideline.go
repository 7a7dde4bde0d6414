package service

import (
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/pa-decision-orchestrator/internal/domain"
)

// GuidelineService serves clinical guideline snippets for a drug. Relevance
// scores are provider-supplied in [0,1] and returned as-is.
type GuidelineService struct {
	logger     *logrus.Logger
	guidelines map[string][]domain.GuidelineEntry
}

// NewGuidelineService builds the service over the embedded guideline corpus.
func NewGuidelineService(logger *logrus.Logger) *GuidelineService {
	return &GuidelineService{
		logger:     logger,
		guidelines: builtinGuidelines(),
	}
}

// ForDrug returns guidelines for the drug ordered by descending relevance.
func (s *GuidelineService) ForDrug(drugName string) ([]domain.GuidelineEntry, error) {
	if drugName == "" {
		return nil, domain.NewMissingFieldsError("drug_name")
	}
	normalized := domain.NormalizeDrugName(drugName)

	entries, ok := s.guidelines[normalized]
	if !ok {
		return nil, nil
	}
	out := append([]domain.GuidelineEntry(nil), entries...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].RelevanceScore > out[j].RelevanceScore })
	return out, nil
}

func builtinGuidelines() map[string][]domain.GuidelineEntry {
	return map[string][]domain.GuidelineEntry{
		"empagliflozin": {
			{
				Text:           "SGLT2 inhibitors are recommended as second-line therapy after metformin for adults with type 2 diabetes and established cardiovascular disease; evidence supports cardiovascular benefit.",
				RelevanceScore: 0.95,
				Source:         "ADA Standards of Care",
				Year:           2024,
			},
			{
				Text:           "Empagliflozin is indicated and preferred in patients with T2DM and heart failure with reduced ejection fraction; guidelines recommend early addition.",
				RelevanceScore: 0.88,
				Source:         "ACC/AHA Heart Failure Guideline",
				Year:           2023,
			},
			{
				Text:           "Caution in patients with recurrent genital mycotic infections; avoid initiation when eGFR is below 30 mL/min.",
				RelevanceScore: 0.72,
				Source:         "AACE Consensus Statement",
				Year:           2023,
			},
			{
				Text:           "SGLT2 inhibition is effective and beneficial for slowing CKD progression in albuminuric patients.",
				RelevanceScore: 0.65,
				Source:         "KDIGO Diabetes in CKD",
				Year:           2022,
			},
		},
		"semaglutide": {
			{
				Text:           "GLP-1 receptor agonists are recommended for adults with T2DM and atherosclerotic cardiovascular disease; semaglutide is a preferred agent.",
				RelevanceScore: 0.9,
				Source:         "ADA Standards of Care",
				Year:           2024,
			},
			{
				Text:           "Avoid in patients with a personal or family history of medullary thyroid carcinoma; black box warning applies.",
				RelevanceScore: 0.7,
				Source:         "FDA Label",
				Year:           2023,
			},
		},
		"adalimumab": {
			{
				Text:           "TNF inhibitors are recommended for rheumatoid arthritis patients with moderate-to-high disease activity despite conventional DMARD therapy; standard of care after methotrexate failure.",
				RelevanceScore: 0.92,
				Source:         "ACR RA Guideline",
				Year:           2021,
			},
			{
				Text:           "Screen for latent tuberculosis before initiation; caution in patients with heart failure.",
				RelevanceScore: 0.75,
				Source:         "ACR RA Guideline",
				Year:           2021,
			},
		},
		"metformin": {
			{
				Text:           "Metformin remains the preferred first-line pharmacologic agent for type 2 diabetes; guidelines recommend it at diagnosis unless contraindicated.",
				RelevanceScore: 0.95,
				Source:         "ADA Standards of Care",
				Year:           2024,
			},
		},
	}
}
