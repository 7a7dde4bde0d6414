package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/pa-decision-orchestrator/internal/domain"
)

// Search weights for the four research angles.
const (
	weightDirectDrug = 1.0
	weightDrugClass  = 0.8
	weightMechanism  = 0.7
	weightIndication = 0.6
)

// Candidate is one scored document from the combined research searches.
type Candidate struct {
	Document *domain.Document `json:"document"`
	Score    float64          `json:"score"`
	Angle    string           `json:"angle"`
	Distance float64          `json:"distance"`
}

// Recommendations is the research planning output for a set of entities.
type Recommendations struct {
	Strategy                   domain.ResearchStrategy `json:"strategy"`
	ExistingEvidence           []Candidate             `json:"existing_evidence"`
	SimilarDrugs               []string                `json:"similar_drugs"`
	RelatedDocuments           int                     `json:"related_documents"`
	PriorityResearch           []string                `json:"priority_research"`
	GapAddressing              []string                `json:"gap_addressing"`
	CrossWorkflowOpportunities []string                `json:"cross_workflow_opportunities"`
	Confidence                 float64                 `json:"confidence"`
}

// ResearchRecommendations runs the four weighted similarity searches in
// parallel and derives the research strategy from the combined signals.
func (c *Collection) ResearchRecommendations(ctx context.Context, entities Entities) (*Recommendations, error) {
	queries := make(map[string]string)
	if len(entities.DrugNames) > 0 {
		queries["direct"] = strings.Join(entities.DrugNames, " ")
	}
	if entities.DrugClass != "" {
		queries["class"] = entities.DrugClass + " therapy evidence"
	}
	if entities.Mechanism != "" {
		queries["mechanism"] = entities.Mechanism
	}
	if entities.Indication != "" {
		queries["indication"] = entities.Indication + " treatment"
	} else if len(entities.DiseaseNames) > 0 {
		queries["indication"] = strings.Join(entities.DiseaseNames, " ") + " treatment"
	}
	if len(queries) == 0 {
		return nil, domain.NewMissingFieldsError("entities")
	}

	results, err := c.parallelSearch(ctx, queries, 10)
	if err != nil {
		return nil, err
	}

	angleWeights := map[string]float64{
		"direct":     weightDirectDrug,
		"class":      weightDrugClass,
		"mechanism":  weightMechanism,
		"indication": weightIndication,
	}

	// Combine, keeping the best score per document.
	best := make(map[string]Candidate)
	for angle, hits := range results {
		weight := angleWeights[angle]
		for _, hit := range hits {
			score := (1 - hit.Distance) * weight
			existing, seen := best[hit.Document.ID]
			if !seen || score > existing.Score {
				best[hit.Document.ID] = Candidate{
					Document: hit.Document,
					Score:    score,
					Angle:    angle,
					Distance: hit.Distance,
				}
			}
		}
	}

	candidates := make([]Candidate, 0, len(best))
	for _, candidate := range best {
		candidates = append(candidates, candidate)
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score > candidates[j].Score
		}
		return candidates[i].Document.ID < candidates[j].Document.ID
	})

	rec := &Recommendations{
		RelatedDocuments: len(candidates),
		SimilarDrugs:     similarDrugs(candidates, entities.DrugNames),
	}
	if len(candidates) > 10 {
		rec.ExistingEvidence = candidates[:10]
	} else {
		rec.ExistingEvidence = candidates
	}

	bestDistance := 1.0
	if len(candidates) > 0 {
		bestDistance = candidates[0].Distance
	}
	evidenceTypes := distinctTypes(candidates)

	rec.Strategy, rec.Confidence = decideStrategy(strategySignals{
		totalDocs:     len(candidates),
		similarDrugs:  len(rec.SimilarDrugs),
		bestDistance:  bestDistance,
		sglt2Like:     isSGLT2Like(entities.DrugClass),
		evidenceTypes: evidenceTypes,
	})

	rec.PriorityResearch = priorityResearch(rec.Strategy, entities)
	rec.GapAddressing = gapAddressing(candidates, entities)
	rec.CrossWorkflowOpportunities = crossWorkflowOpportunities(candidates)
	return rec, nil
}

type strategySignals struct {
	totalDocs     int
	similarDrugs  int
	bestDistance  float64
	sglt2Like     bool
	evidenceTypes int
}

// decideStrategy accumulates per-strategy scores from the signal table and
// returns the argmax, with ties broken by enum order (comprehensive, focused,
// update). Confidence starts at 0.5 and grows with the winning signals.
func decideStrategy(signals strategySignals) (domain.ResearchStrategy, float64) {
	var comprehensive, focused, update float64

	switch {
	case signals.totalDocs >= 15:
		focused += 0.3
		update += 0.4
	case signals.totalDocs >= 5:
		focused += 0.4
		update += 0.2
	default:
		comprehensive += 0.5
	}

	switch {
	case signals.similarDrugs >= 3:
		focused += 0.4
		update += 0.3
	case signals.similarDrugs >= 1:
		focused += 0.3
		update += 0.2
	}

	switch {
	case signals.bestDistance <= 0.12:
		update += 0.3
	case signals.bestDistance <= 0.20:
		focused += 0.3
	case signals.bestDistance > 0.40:
		comprehensive += 0.2
	}

	if signals.sglt2Like && signals.similarDrugs >= 2 {
		focused += 0.2
		update += 0.1
	}
	if signals.evidenceTypes >= 3 {
		update += 0.1
	}

	strategy := domain.StrategyComprehensive
	bestScore := comprehensive
	if focused > bestScore {
		strategy = domain.StrategyFocused
		bestScore = focused
	}
	if update > bestScore {
		strategy = domain.StrategyUpdate
		bestScore = update
	}

	confidence := 0.5 + bestScore*0.5
	if confidence > 0.95 {
		confidence = 0.95
	}
	return strategy, confidence
}

func isSGLT2Like(drugClass string) bool {
	lower := strings.ToLower(drugClass)
	return strings.Contains(lower, "sglt2") || strings.Contains(lower, "gliflozin")
}

func similarDrugs(candidates []Candidate, requested []string) []string {
	requestedSet := make(map[string]bool, len(requested))
	for _, drug := range requested {
		requestedSet[domain.NormalizeDrugName(drug)] = true
	}

	seen := make(map[string]bool)
	var drugs []string
	for _, candidate := range candidates {
		for _, drug := range candidate.Document.Metadata.DrugNamesContext {
			normalized := domain.NormalizeDrugName(drug)
			if requestedSet[normalized] || seen[normalized] {
				continue
			}
			seen[normalized] = true
			drugs = append(drugs, normalized)
		}
	}
	sort.Strings(drugs)
	return drugs
}

func distinctTypes(candidates []Candidate) int {
	types := make(map[domain.DocumentType]bool)
	for _, candidate := range candidates {
		types[candidate.Document.Metadata.DocumentType] = true
	}
	return len(types)
}

func priorityResearch(strategy domain.ResearchStrategy, entities Entities) []string {
	drug := "the requested drug"
	if len(entities.DrugNames) > 0 {
		drug = entities.DrugNames[0]
	}
	switch strategy {
	case domain.StrategyComprehensive:
		return []string{
			fmt.Sprintf("Broad literature search for %s efficacy and safety", drug),
			"Establish baseline guideline positions",
			"Collect payer coverage precedents",
		}
	case domain.StrategyFocused:
		return []string{
			fmt.Sprintf("Targeted update on %s for the specific indication", drug),
			"Compare against the closest in-class alternatives",
		}
	default:
		return []string{
			fmt.Sprintf("Check for publications on %s newer than the stored evidence", drug),
		}
	}
}

func gapAddressing(candidates []Candidate, entities Entities) []string {
	var gaps []string
	hasGuideline, hasArticle := false, false
	for _, candidate := range candidates {
		switch candidate.Document.Metadata.DocumentType {
		case domain.DocGuideline:
			hasGuideline = true
		case domain.DocPubMedArticle:
			hasArticle = true
		}
	}
	if !hasGuideline {
		gaps = append(gaps, "No guideline documents stored for this therapy area")
	}
	if !hasArticle {
		gaps = append(gaps, "No primary literature stored; seed with a PubMed search")
	}
	if len(entities.DiseaseNames) == 0 && entities.Indication == "" {
		gaps = append(gaps, "Indication not specified; evidence relevance cannot be confirmed")
	}
	return gaps
}

func crossWorkflowOpportunities(candidates []Candidate) []string {
	var opportunities []string
	for _, candidate := range candidates {
		meta := candidate.Document.Metadata
		if meta.ReferenceCount > 1 {
			opportunities = append(opportunities, fmt.Sprintf(
				"%s already referenced by %d workflows", candidate.Document.ID, meta.ReferenceCount))
		}
		if len(opportunities) >= 5 {
			break
		}
	}
	return opportunities
}
