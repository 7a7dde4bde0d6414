package service

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pa-decision-orchestrator/internal/domain"
)

func TestGuidelinesForDrugOrdering(t *testing.T) {
	svc := NewGuidelineService(newTestLogger())

	entries, err := svc.ForDrug("empagliflozin")
	require.NoError(t, err)
	require.Len(t, entries, 4)

	assert.True(t, sort.SliceIsSorted(entries, func(i, j int) bool {
		return entries[i].RelevanceScore > entries[j].RelevanceScore
	}))
	assert.InDelta(t, 0.95, entries[0].RelevanceScore, 1e-9)
	assert.Equal(t, "ADA Standards of Care", entries[0].Source)
}

func TestGuidelinesScoresUnscaled(t *testing.T) {
	svc := NewGuidelineService(newTestLogger())

	entries, err := svc.ForDrug("Jardiance")
	require.NoError(t, err)
	for _, entry := range entries {
		assert.GreaterOrEqual(t, entry.RelevanceScore, 0.0)
		assert.LessOrEqual(t, entry.RelevanceScore, 1.0)
	}
	// Provider scores pass through untouched, so the spread stays intact.
	assert.InDelta(t, 0.65, entries[len(entries)-1].RelevanceScore, 1e-9)
}

func TestGuidelinesUnknownDrug(t *testing.T) {
	svc := NewGuidelineService(newTestLogger())

	entries, err := svc.ForDrug("nonexistium")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestGuidelinesMissingDrugName(t *testing.T) {
	svc := NewGuidelineService(newTestLogger())

	_, err := svc.ForDrug("")
	var validation *domain.ValidationError
	assert.ErrorAs(t, err, &validation)
}
