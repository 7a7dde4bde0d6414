package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pa-decision-orchestrator/internal/domain"
)

func TestDecideStrategy(t *testing.T) {
	cases := []struct {
		name    string
		signals strategySignals
		want    domain.ResearchStrategy
	}{
		{
			name:    "empty collection goes comprehensive",
			signals: strategySignals{totalDocs: 0, bestDistance: 1.0},
			want:    domain.StrategyComprehensive,
		},
		{
			name: "moderate corpus with close match goes focused",
			signals: strategySignals{
				totalDocs:    6,
				similarDrugs: 1,
				bestDistance: 0.18,
			},
			want: domain.StrategyFocused,
		},
		{
			name: "rich corpus with near-duplicate goes update",
			signals: strategySignals{
				totalDocs:     20,
				similarDrugs:  3,
				bestDistance:  0.10,
				evidenceTypes: 3,
			},
			want: domain.StrategyUpdate,
		},
		{
			name: "in-class familiarity boosts focused",
			signals: strategySignals{
				totalDocs:    6,
				similarDrugs: 2,
				bestDistance: 0.30,
				sglt2Like:    true,
			},
			want: domain.StrategyFocused,
		},
		{
			name: "tie resolves to comprehensive",
			signals: strategySignals{
				totalDocs:    2,
				similarDrugs: 2,
				bestDistance: 0.30,
				sglt2Like:    true,
			},
			want: domain.StrategyComprehensive,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			strategy, confidence := decideStrategy(tc.signals)
			assert.Equal(t, tc.want, strategy)
			assert.GreaterOrEqual(t, confidence, 0.5)
			assert.LessOrEqual(t, confidence, 0.95)
		})
	}
}

func TestIsSGLT2Like(t *testing.T) {
	assert.True(t, isSGLT2Like("SGLT2 Inhibitor"))
	assert.True(t, isSGLT2Like("gliflozin class"))
	assert.False(t, isSGLT2Like("GLP-1 Receptor Agonist"))
}

func TestResearchRecommendationsRequireEntities(t *testing.T) {
	c := newTestCollection(t)

	_, err := c.ResearchRecommendations(context.Background(), Entities{})
	var validation *domain.ValidationError
	assert.ErrorAs(t, err, &validation)
}

func TestResearchRecommendations(t *testing.T) {
	c := newTestCollection(t)
	ctx := context.Background()

	_, err := c.UpsertWorkflowOutputs(ctx, "wf-empa", "empagliflozin PA review",
		Entities{DrugNames: []string{"empagliflozin"}, DrugClass: "SGLT2 Inhibitor"},
		[]Article{{ID: "A1", Title: "empagliflozin cardiovascular outcomes"}}, "", time.Now())
	require.NoError(t, err)
	_, err = c.UpsertWorkflowOutputs(ctx, "wf-dapa", "dapagliflozin PA review",
		Entities{DrugNames: []string{"dapagliflozin"}, DrugClass: "SGLT2 Inhibitor"},
		[]Article{{ID: "A2", Title: "dapagliflozin renal outcomes"}}, "", time.Now())
	require.NoError(t, err)

	rec, err := c.ResearchRecommendations(ctx, Entities{
		DrugNames:  []string{"empagliflozin"},
		DrugClass:  "SGLT2 Inhibitor",
		Indication: "type 2 diabetes",
	})
	require.NoError(t, err)

	assert.Greater(t, rec.RelatedDocuments, 0)
	assert.NotEmpty(t, rec.ExistingEvidence)
	assert.NotEmpty(t, rec.PriorityResearch)
	assert.Contains(t, rec.SimilarDrugs, "dapagliflozin")
	assert.NotContains(t, rec.SimilarDrugs, "empagliflozin")
	assert.GreaterOrEqual(t, rec.Confidence, 0.5)

	// no guideline documents stored yet
	assert.Contains(t, rec.GapAddressing, "No guideline documents stored for this therapy area")
}
