package orchestrator

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"
	"time"

	"github.com/pa-decision-orchestrator/internal/domain"
)

// cachedResult is the immutable envelope stored per decision cache slot.
type cachedResult struct {
	result   *domain.AnalysisResult
	cachedAt time.Time
	hitCount int
}

// decisionCache is a TTL-bounded LRU keyed by the request fingerprint.
// Values are deep-copied on insert and on read.
type decisionCache struct {
	mu      sync.Mutex
	entries map[string]*cachedResult
	order   []string
	maxSize int
	ttl     time.Duration
	clock   func() time.Time
}

func newDecisionCache(maxSize int, ttl time.Duration) *decisionCache {
	if maxSize <= 0 {
		maxSize = 1000
	}
	return &decisionCache{
		entries: make(map[string]*cachedResult),
		maxSize: maxSize,
		ttl:     ttl,
		clock:   time.Now,
	}
}

// cacheKey fingerprints one PA request.
func cacheKey(patientID, drugName, insurerID string) string {
	sum := sha256.Sum256([]byte(patientID + ":" + strings.ToLower(drugName) + ":" + insurerID))
	return hex.EncodeToString(sum[:])
}

// get returns a deep copy of an unexpired entry plus its age.
func (c *decisionCache) get(key string) (*domain.AnalysisResult, time.Duration, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return nil, 0, false
	}
	age := c.clock().Sub(entry.cachedAt)
	if c.ttl > 0 && age > c.ttl {
		c.remove(key)
		return nil, 0, false
	}
	entry.hitCount++
	return entry.result.Clone(), age, true
}

// put stores a deep copy, evicting the oldest inserted entry at capacity.
func (c *decisionCache) put(key string, result *domain.AnalysisResult) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists {
		for len(c.entries) >= c.maxSize && len(c.order) > 0 {
			c.remove(c.order[0])
		}
		c.order = append(c.order, key)
	}
	c.entries[key] = &cachedResult{result: result.Clone(), cachedAt: c.clock()}
}

// invalidate drops one entry.
func (c *decisionCache) invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.remove(key)
}

func (c *decisionCache) remove(key string) {
	delete(c.entries, key)
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}

func (c *decisionCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
