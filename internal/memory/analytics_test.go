package memory

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pa-decision-orchestrator/internal/domain"
)

func newTestAnalyticalStore(t *testing.T) (*AnalyticalStore, *Collection) {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	c := newTestCollection(t)
	return NewAnalyticalStore(logger, c), c
}

func TestTemporalPatterns(t *testing.T) {
	store, c := newTestAnalyticalStore(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c.clock = func() time.Time { return now }

	// empagliflozin: two workflows, last touched yesterday
	_, err := c.UpsertWorkflowOutputs(ctx, "wf-1", "",
		Entities{DrugNames: []string{"empagliflozin"}}, nil, "", now.Add(-10*24*time.Hour))
	require.NoError(t, err)
	_, err = c.UpsertWorkflowOutputs(ctx, "wf-2", "",
		Entities{DrugNames: []string{"empagliflozin"}}, nil, "", now.Add(-24*time.Hour))
	require.NoError(t, err)
	// adalimumab: one workflow two weeks back
	_, err = c.UpsertWorkflowOutputs(ctx, "wf-3", "",
		Entities{DrugNames: []string{"adalimumab"}}, nil, "", now.Add(-14*24*time.Hour))
	require.NoError(t, err)
	// warfarin: long dormant
	_, err = c.UpsertWorkflowOutputs(ctx, "wf-4", "",
		Entities{DrugNames: []string{"warfarin"}}, nil, "", now.Add(-90*24*time.Hour))
	require.NoError(t, err)

	patterns := store.TemporalPatterns()
	require.Len(t, patterns, 3)

	assert.Equal(t, "empagliflozin", patterns[0].Drug)
	assert.Equal(t, 2, patterns[0].DocumentCount)
	assert.Equal(t, 2, patterns[0].WorkflowCount)
	assert.Equal(t, "active", patterns[0].Trend)

	byDrug := make(map[string]TemporalPattern)
	for _, p := range patterns {
		byDrug[p.Drug] = p
	}
	assert.Equal(t, "recent", byDrug["adalimumab"].Trend)
	assert.Equal(t, "dormant", byDrug["warfarin"].Trend)
}

func TestContradictions(t *testing.T) {
	store, c := newTestAnalyticalStore(t)
	ctx := context.Background()

	entities := Entities{DrugNames: []string{"empagliflozin"}}
	_, err := c.UpsertWorkflowOutputs(ctx, "wf-1", "", entities, []Article{
		{ID: "POS", Title: "empagliflozin is recommended as preferred second-line therapy"},
		{ID: "NEG", Title: "empagliflozin is contraindicated in severe renal impairment"},
		{ID: "NEUTRAL", Title: "empagliflozin pharmacokinetics in healthy volunteers"},
	}, "", time.Now())
	require.NoError(t, err)

	contradictions := store.Contradictions()
	require.Len(t, contradictions, 1)
	assert.Equal(t, "empagliflozin", contradictions[0].Drug)
	assert.Equal(t, domain.CanonicalID(domain.DocPubMedArticle, "POS"), contradictions[0].PositiveDoc)
	assert.Equal(t, domain.CanonicalID(domain.DocPubMedArticle, "NEG"), contradictions[0].NegativeDoc)
}

func TestContradictionsMixedSignalDocExcluded(t *testing.T) {
	store, c := newTestAnalyticalStore(t)
	ctx := context.Background()

	_, err := c.UpsertWorkflowOutputs(ctx, "wf-1", "",
		Entities{DrugNames: []string{"warfarin"}}, []Article{
			{ID: "MIXED", Title: "warfarin is effective but contraindicated in active bleeding"},
			{ID: "NEG2", Title: "avoid warfarin with concurrent antiplatelet therapy"},
		}, "", time.Now())
	require.NoError(t, err)

	// a single document carrying both signals is not a contradiction pair
	assert.Empty(t, store.Contradictions())
}

func TestKnowledgeGaps(t *testing.T) {
	store, c := newTestAnalyticalStore(t)
	ctx := context.Background()

	// empagliflozin has literature but no guideline
	_, err := c.UpsertWorkflowOutputs(ctx, "wf-1", "",
		Entities{DrugNames: []string{"empagliflozin"}},
		[]Article{{ID: "A1", Title: "empagliflozin outcomes"}}, "", time.Now())
	require.NoError(t, err)

	gaps := store.KnowledgeGaps()
	require.NotEmpty(t, gaps)

	var missing []domain.DocumentType
	for _, gap := range gaps {
		if gap.Drug == "empagliflozin" {
			missing = append(missing, gap.MissingType)
		}
	}
	assert.Contains(t, missing, domain.DocGuideline)
	assert.NotContains(t, missing, domain.DocPubMedArticle)
}
