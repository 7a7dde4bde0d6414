package external

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/pa-decision-orchestrator/internal/domain"
)

// CacheClient wraps Redis with caching for specialist lookups so multiple
// orchestrator processes can share warm data.
type CacheClient struct {
	redis      *redis.Client
	defaultTTL time.Duration
	logger     *logrus.Logger
}

// NewCacheClient creates a new cache client and verifies connectivity.
func NewCacheClient(config domain.CacheConfig, logger *logrus.Logger) (*CacheClient, error) {
	opts, err := redis.ParseURL(config.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &CacheClient{
		redis:      client,
		defaultTTL: config.DefaultTTL,
		logger:     logger,
	}, nil
}

// CachedDrugData wraps cached drug information with cache metadata.
type CachedDrugData struct {
	Data      *domain.DrugInformation `json:"data"`
	CachedAt  time.Time               `json:"cached_at"`
	ExpiresAt time.Time               `json:"expires_at"`
}

// CachedPolicyData wraps a cached policy with cache metadata.
type CachedPolicyData struct {
	Data      *domain.InsurerPolicy `json:"data"`
	CachedAt  time.Time             `json:"cached_at"`
	ExpiresAt time.Time             `json:"expires_at"`
}

// GetDrugInfo retrieves cached drug information. The bool reports a hit.
func (c *CacheClient) GetDrugInfo(ctx context.Context, drugName string) (*domain.DrugInformation, bool, error) {
	key := c.drugKey(drugName)

	val, err := c.redis.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get drug cache: %w", err)
	}

	var cached CachedDrugData
	if err := json.Unmarshal([]byte(val), &cached); err != nil {
		c.redis.Del(ctx, key)
		return nil, false, nil
	}
	if time.Now().After(cached.ExpiresAt) {
		c.redis.Del(ctx, key)
		return nil, false, nil
	}
	return cached.Data, true, nil
}

// SetDrugInfo caches drug information under the default TTL.
func (c *CacheClient) SetDrugInfo(ctx context.Context, drugName string, info *domain.DrugInformation) error {
	cached := CachedDrugData{
		Data:      info,
		CachedAt:  time.Now(),
		ExpiresAt: time.Now().Add(c.defaultTTL),
	}
	data, err := json.Marshal(cached)
	if err != nil {
		return fmt.Errorf("failed to marshal drug cache entry: %w", err)
	}
	if err := c.redis.Set(ctx, c.drugKey(drugName), data, c.defaultTTL).Err(); err != nil {
		return fmt.Errorf("failed to set drug cache: %w", err)
	}
	return nil
}

// GetPolicy retrieves a cached policy. The bool reports a hit.
func (c *CacheClient) GetPolicy(ctx context.Context, insurer, drugName string) (*domain.InsurerPolicy, bool, error) {
	key := c.policyKey(insurer, drugName)

	val, err := c.redis.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get policy cache: %w", err)
	}

	var cached CachedPolicyData
	if err := json.Unmarshal([]byte(val), &cached); err != nil {
		c.redis.Del(ctx, key)
		return nil, false, nil
	}
	if time.Now().After(cached.ExpiresAt) {
		c.redis.Del(ctx, key)
		return nil, false, nil
	}
	return cached.Data, true, nil
}

// SetPolicy caches a policy under the default TTL.
func (c *CacheClient) SetPolicy(ctx context.Context, insurer, drugName string, policy *domain.InsurerPolicy) error {
	cached := CachedPolicyData{
		Data:      policy,
		CachedAt:  time.Now(),
		ExpiresAt: time.Now().Add(c.defaultTTL),
	}
	data, err := json.Marshal(cached)
	if err != nil {
		return fmt.Errorf("failed to marshal policy cache entry: %w", err)
	}
	if err := c.redis.Set(ctx, c.policyKey(insurer, drugName), data, c.defaultTTL).Err(); err != nil {
		return fmt.Errorf("failed to set policy cache: %w", err)
	}
	return nil
}

func (c *CacheClient) drugKey(drugName string) string {
	digest := sha256.Sum256([]byte(domain.NormalizeDrugName(drugName)))
	return fmt.Sprintf("pa:drug:%x", digest[:16])
}

func (c *CacheClient) policyKey(insurer, drugName string) string {
	digest := sha256.Sum256([]byte(insurer + ":" + domain.NormalizeDrugName(drugName)))
	return fmt.Sprintf("pa:policy:%x", digest[:16])
}

// Close releases the Redis connection.
func (c *CacheClient) Close() error {
	return c.redis.Close()
}
