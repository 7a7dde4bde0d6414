package memory

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/pa-decision-orchestrator/internal/domain"
)

// AnalyticalStore layers temporal, contradiction, and gap analyses over a
// base collection. It holds the collection rather than extending it; all
// analyses run on the collection's read surface.
type AnalyticalStore struct {
	logger     *logrus.Logger
	collection *Collection
}

// NewAnalyticalStore wraps a collection with the analytical views.
func NewAnalyticalStore(logger *logrus.Logger, collection *Collection) *AnalyticalStore {
	return &AnalyticalStore{logger: logger, collection: collection}
}

// Collection exposes the underlying store.
func (a *AnalyticalStore) Collection() *Collection {
	return a.collection
}

// TemporalPattern summarizes activity for one drug context over time.
type TemporalPattern struct {
	Drug          string    `json:"drug"`
	FirstActivity time.Time `json:"first_activity"`
	LastActivity  time.Time `json:"last_activity"`
	DocumentCount int       `json:"document_count"`
	WorkflowCount int       `json:"workflow_count"`
	Trend         string    `json:"trend"`
}

// TemporalPatterns reports per-drug activity windows, most active first.
func (a *AnalyticalStore) TemporalPatterns() []TemporalPattern {
	type accumulator struct {
		first, last time.Time
		docs        int
		workflows   map[string]bool
	}

	byDrug := make(map[string]*accumulator)
	a.collection.mu.RLock()
	for _, stored := range a.collection.docs {
		meta := stored.doc.Metadata
		for _, drug := range meta.DrugNamesContext {
			normalized := domain.NormalizeDrugName(drug)
			acc, ok := byDrug[normalized]
			if !ok {
				acc = &accumulator{first: meta.FirstSeen, last: meta.LastSeen, workflows: make(map[string]bool)}
				byDrug[normalized] = acc
			}
			if meta.FirstSeen.Before(acc.first) {
				acc.first = meta.FirstSeen
			}
			if meta.LastSeen.After(acc.last) {
				acc.last = meta.LastSeen
			}
			acc.docs++
			for _, workflow := range meta.ReferencedInWorkflows {
				acc.workflows[workflow] = true
			}
		}
	}
	a.collection.mu.RUnlock()

	now := a.collection.clock()
	patterns := make([]TemporalPattern, 0, len(byDrug))
	for drug, acc := range byDrug {
		trend := "dormant"
		switch {
		case now.Sub(acc.last) < 7*24*time.Hour:
			trend = "active"
		case now.Sub(acc.last) < 30*24*time.Hour:
			trend = "recent"
		}
		patterns = append(patterns, TemporalPattern{
			Drug:          drug,
			FirstActivity: acc.first,
			LastActivity:  acc.last,
			DocumentCount: acc.docs,
			WorkflowCount: len(acc.workflows),
			Trend:         trend,
		})
	}
	sort.Slice(patterns, func(i, j int) bool {
		if patterns[i].DocumentCount != patterns[j].DocumentCount {
			return patterns[i].DocumentCount > patterns[j].DocumentCount
		}
		return patterns[i].Drug < patterns[j].Drug
	})
	return patterns
}

// Contradiction flags two documents in the same drug context whose bodies
// carry opposing signal terms.
type Contradiction struct {
	Drug        string `json:"drug"`
	PositiveDoc string `json:"positive_doc"`
	NegativeDoc string `json:"negative_doc"`
	Detail      string `json:"detail"`
}

var supportSignals = []string{"recommended", "effective", "beneficial", "evidence supports", "preferred"}
var opposeSignals = []string{"contraindicated", "not recommended", "harmful", "avoid", "insufficient evidence"}

// Contradictions scans drug contexts for documents carrying opposing signals.
func (a *AnalyticalStore) Contradictions() []Contradiction {
	type signal struct {
		id       string
		positive bool
		negative bool
	}

	byDrug := make(map[string][]signal)
	a.collection.mu.RLock()
	for _, stored := range a.collection.docs {
		body := strings.ToLower(stored.doc.Body)
		sig := signal{id: stored.doc.ID}
		for _, term := range supportSignals {
			if strings.Contains(body, term) {
				sig.positive = true
				break
			}
		}
		for _, term := range opposeSignals {
			if strings.Contains(body, term) {
				sig.negative = true
				break
			}
		}
		if !sig.positive && !sig.negative {
			continue
		}
		for _, drug := range stored.doc.Metadata.DrugNamesContext {
			normalized := domain.NormalizeDrugName(drug)
			byDrug[normalized] = append(byDrug[normalized], sig)
		}
	}
	a.collection.mu.RUnlock()

	var contradictions []Contradiction
	for drug, signals := range byDrug {
		var positives, negatives []string
		for _, sig := range signals {
			if sig.positive && !sig.negative {
				positives = append(positives, sig.id)
			}
			if sig.negative && !sig.positive {
				negatives = append(negatives, sig.id)
			}
		}
		sort.Strings(positives)
		sort.Strings(negatives)
		if len(positives) > 0 && len(negatives) > 0 {
			contradictions = append(contradictions, Contradiction{
				Drug:        drug,
				PositiveDoc: positives[0],
				NegativeDoc: negatives[0],
				Detail: fmt.Sprintf("%d supporting and %d opposing documents share the %s context",
					len(positives), len(negatives), drug),
			})
		}
	}
	sort.Slice(contradictions, func(i, j int) bool { return contradictions[i].Drug < contradictions[j].Drug })
	return contradictions
}

// KnowledgeGap names a drug context lacking a document type.
type KnowledgeGap struct {
	Drug        string              `json:"drug"`
	MissingType domain.DocumentType `json:"missing_type"`
	Suggestion  string              `json:"suggestion"`
}

// KnowledgeGaps finds drug contexts missing guideline or literature coverage.
func (a *AnalyticalStore) KnowledgeGaps() []KnowledgeGap {
	typesByDrug := make(map[string]map[domain.DocumentType]bool)
	a.collection.mu.RLock()
	for _, stored := range a.collection.docs {
		meta := stored.doc.Metadata
		for _, drug := range meta.DrugNamesContext {
			normalized := domain.NormalizeDrugName(drug)
			if typesByDrug[normalized] == nil {
				typesByDrug[normalized] = make(map[domain.DocumentType]bool)
			}
			typesByDrug[normalized][meta.DocumentType] = true
		}
	}
	a.collection.mu.RUnlock()

	wanted := []domain.DocumentType{domain.DocGuideline, domain.DocPubMedArticle}
	var gaps []KnowledgeGap
	for drug, types := range typesByDrug {
		for _, docType := range wanted {
			if !types[docType] {
				gaps = append(gaps, KnowledgeGap{
					Drug:        drug,
					MissingType: docType,
					Suggestion:  fmt.Sprintf("Collect %s documents for %s", docType, drug),
				})
			}
		}
	}
	sort.Slice(gaps, func(i, j int) bool {
		if gaps[i].Drug != gaps[j].Drug {
			return gaps[i].Drug < gaps[j].Drug
		}
		return gaps[i].MissingType < gaps[j].MissingType
	})
	return gaps
}
