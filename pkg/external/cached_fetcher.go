package external

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/pa-decision-orchestrator/internal/domain"
)

// CachedFetcher fronts the DrugBank client with the shared Redis cache.
// Cache failures degrade to a direct fetch.
type CachedFetcher struct {
	client *DrugBankClient
	cache  *CacheClient
	logger *logrus.Logger
}

// NewCachedFetcher wraps a DrugBank client with a cache layer.
func NewCachedFetcher(client *DrugBankClient, cache *CacheClient, logger *logrus.Logger) *CachedFetcher {
	return &CachedFetcher{client: client, cache: cache, logger: logger}
}

// FetchMonograph returns a cached monograph when present, otherwise fetches
// and populates the cache.
func (f *CachedFetcher) FetchMonograph(ctx context.Context, drugName string) (*domain.DrugInformation, error) {
	if info, ok, err := f.cache.GetDrugInfo(ctx, drugName); err == nil && ok {
		return info, nil
	} else if err != nil {
		f.logger.WithError(err).Debug("Drug cache read failed; fetching directly")
	}

	info, err := f.client.FetchMonograph(ctx, drugName)
	if err != nil {
		return nil, err
	}
	if err := f.cache.SetDrugInfo(ctx, drugName, info); err != nil {
		f.logger.WithError(err).Debug("Drug cache write failed")
	}
	return info, nil
}
