package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pa-decision-orchestrator/internal/domain"
)

type stubFetcher struct {
	mu      sync.Mutex
	calls   int
	info    *domain.DrugInformation
	failErr error
}

func (f *stubFetcher) FetchMonograph(ctx context.Context, drugName string) (*domain.DrugInformation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.failErr != nil {
		return nil, f.failErr
	}
	return f.info, nil
}

type stubSink struct {
	mu    sync.Mutex
	drugs []string
}

func (s *stubSink) UpsertDrugMonograph(ctx context.Context, info *domain.DrugInformation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.drugs = append(s.drugs, info.Name)
	return nil
}

func newTestDrugService(t *testing.T) *DrugService {
	t.Helper()
	svc, err := NewDrugService(newTestLogger(), "", nil, nil)
	require.NoError(t, err)
	return svc
}

func TestDrugInfoLookup(t *testing.T) {
	svc := newTestDrugService(t)

	t.Run("exact name", func(t *testing.T) {
		info, err := svc.Info(context.Background(), "empagliflozin")
		require.NoError(t, err)
		assert.Equal(t, "Empagliflozin", info.Name)
		assert.Contains(t, info.DrugClass, "SGLT2")
	})

	t.Run("trade name synonym", func(t *testing.T) {
		info, err := svc.Info(context.Background(), "Jardiance")
		require.NoError(t, err)
		assert.Equal(t, "Empagliflozin", info.Name)
	})

	t.Run("formulation suffix stripped", func(t *testing.T) {
		info, err := svc.Info(context.Background(), "Metformin HCl")
		require.NoError(t, err)
		assert.Equal(t, "Metformin", info.Name)
	})

	t.Run("unknown drug", func(t *testing.T) {
		_, err := svc.Info(context.Background(), "nonexistium")
		var notFound *domain.NotFoundError
		assert.ErrorAs(t, err, &notFound)
	})
}

func TestDrugInfoCacheDeepCopy(t *testing.T) {
	svc := newTestDrugService(t)

	first, err := svc.Info(context.Background(), "empagliflozin")
	require.NoError(t, err)
	first.Warnings[0] = "mutated"

	second, err := svc.Info(context.Background(), "empagliflozin")
	require.NoError(t, err)
	assert.NotEqual(t, "mutated", second.Warnings[0])
}

func TestDrugInfoFallsBackToFetcher(t *testing.T) {
	fetcher := &stubFetcher{info: &domain.DrugInformation{
		Name:      "Liraglutide",
		DrugClass: "GLP-1 receptor agonist",
	}}
	svc, err := NewDrugService(newTestLogger(), "", fetcher, nil)
	require.NoError(t, err)

	info, err := svc.Info(context.Background(), "liraglutide")
	require.NoError(t, err)
	assert.Equal(t, "Liraglutide", info.Name)
	assert.Equal(t, 1, fetcher.calls)

	// second lookup must be served from cache
	_, err = svc.Info(context.Background(), "liraglutide")
	require.NoError(t, err)
	assert.Equal(t, 1, fetcher.calls)
}

func TestDrugInfoFetcherFailureIsAbsorbed(t *testing.T) {
	fetcher := &stubFetcher{failErr: errors.New("backend down")}
	svc, err := NewDrugService(newTestLogger(), "", fetcher, nil)
	require.NoError(t, err)

	_, err = svc.Info(context.Background(), "liraglutide")
	var notFound *domain.NotFoundError
	assert.ErrorAs(t, err, &notFound)
}

func TestInteractionsSymmetry(t *testing.T) {
	svc := newTestDrugService(t)

	forward, err := svc.Interactions([]string{"warfarin", "aspirin"})
	require.NoError(t, err)
	reverse, err := svc.Interactions([]string{"aspirin", "warfarin"})
	require.NoError(t, err)

	require.Len(t, forward.Interactions, 1)
	require.Len(t, reverse.Interactions, 1)

	assert.Equal(t, [2]string{"aspirin", "warfarin"}, forward.Interactions[0].Drugs)
	assert.Equal(t, forward.Interactions[0].Drugs, reverse.Interactions[0].Drugs)
	assert.Equal(t, domain.InteractionMajor, forward.HighestSeverity)
	assert.NotEmpty(t, forward.Interactions[0].Management)
	assert.Equal(t, forward.Interactions[0].Severity, reverse.Interactions[0].Severity)
}

func TestInteractionsRequireTwoDrugs(t *testing.T) {
	svc := newTestDrugService(t)

	_, err := svc.Interactions([]string{"warfarin"})
	var validation *domain.ValidationError
	assert.ErrorAs(t, err, &validation)
}

func TestInteractionsAggregateHighestSeverity(t *testing.T) {
	svc := newTestDrugService(t)

	result, err := svc.Interactions([]string{"warfarin", "aspirin", "omeprazole"})
	require.NoError(t, err)
	assert.Equal(t, domain.InteractionMajor, result.HighestSeverity)
	assert.GreaterOrEqual(t, len(result.Interactions), 2)
}

func TestSafetySummary(t *testing.T) {
	svc := newTestDrugService(t)

	summary, err := svc.Safety(context.Background(), "warfarin")
	require.NoError(t, err)
	assert.Equal(t, "Warfarin", summary.DrugName)
	assert.NotEmpty(t, summary.Warnings)
	assert.Equal(t, domain.SafetyHighRisk, summary.SafetyProfile)

	mild, err := svc.Safety(context.Background(), "omeprazole")
	require.NoError(t, err)
	assert.Equal(t, domain.SafetyLow, mild.SafetyProfile)
}

func TestPACriteria(t *testing.T) {
	svc := newTestDrugService(t)

	t.Run("full list", func(t *testing.T) {
		criteria, err := svc.PACriteria("empagliflozin", "")
		require.NoError(t, err)
		assert.NotEmpty(t, criteria)
	})

	t.Run("indication filter falls back to full list", func(t *testing.T) {
		filtered, err := svc.PACriteria("empagliflozin", "no-such-indication")
		require.NoError(t, err)
		full, err2 := svc.PACriteria("empagliflozin", "")
		require.NoError(t, err2)
		assert.Equal(t, full, filtered)
	})
}

func TestDrugSearch(t *testing.T) {
	svc := newTestDrugService(t)

	byClass := svc.Search("SGLT2", "class")
	assert.NotEmpty(t, byClass)
	for _, info := range byClass {
		assert.Contains(t, info.DrugClass, "SGLT2")
	}

	byName := svc.Search("metf", "name")
	require.NotEmpty(t, byName)
	assert.Equal(t, "Metformin", byName[0].Name)
}

func TestDrugInfoNotifiesSink(t *testing.T) {
	sink := &stubSink{}
	svc, err := NewDrugService(newTestLogger(), "", nil, sink)
	require.NoError(t, err)

	_, err = svc.Info(context.Background(), "empagliflozin")
	require.NoError(t, err)
}
