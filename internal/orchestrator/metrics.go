package orchestrator

import (
	"sort"
	"sync"
	"time"
)

const latencyRingSize = 1000

// Metrics tracks per-process orchestration counters. A bounded ring of recent
// latencies backs the percentile estimates.
type Metrics struct {
	mu                    sync.Mutex
	totalPredictions      int64
	successfulPredictions int64
	failedPredictions     int64
	cacheHits             int64
	cacheMisses           int64
	totalLLMTokens        int64
	totalProcessingMS     int64

	latencies [latencyRingSize]time.Duration
	ringNext  int
	ringCount int
}

// NewMetrics creates an empty metrics set.
func NewMetrics() *Metrics {
	return &Metrics{}
}

func (m *Metrics) recordCacheHit() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cacheHits++
}

func (m *Metrics) recordCacheMiss() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cacheMisses++
}

func (m *Metrics) recordSuccess(elapsed time.Duration, llmTokens int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.totalPredictions++
	m.successfulPredictions++
	m.totalLLMTokens += int64(llmTokens)
	m.totalProcessingMS += elapsed.Milliseconds()
	m.pushLatency(elapsed)
}

func (m *Metrics) recordFailure(elapsed time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.totalPredictions++
	m.failedPredictions++
	m.totalProcessingMS += elapsed.Milliseconds()
	m.pushLatency(elapsed)
}

func (m *Metrics) pushLatency(elapsed time.Duration) {
	m.latencies[m.ringNext] = elapsed
	m.ringNext = (m.ringNext + 1) % latencyRingSize
	if m.ringCount < latencyRingSize {
		m.ringCount++
	}
}

// MetricsSnapshot is a point-in-time copy of the counters.
type MetricsSnapshot struct {
	TotalPredictions      int64   `json:"total_predictions"`
	SuccessfulPredictions int64   `json:"successful_predictions"`
	FailedPredictions     int64   `json:"failed_predictions"`
	CacheHits             int64   `json:"cache_hits"`
	CacheMisses           int64   `json:"cache_misses"`
	TotalLLMTokens        int64   `json:"total_llm_tokens"`
	ErrorRate             float64 `json:"error_rate"`
	AverageProcessingMS   float64 `json:"average_processing_time_ms"`
	P95LatencyMS          float64 `json:"p95_latency_ms"`
	P99LatencyMS          float64 `json:"p99_latency_ms"`
}

// Snapshot copies the counters and derives rates and percentiles.
func (m *Metrics) Snapshot() MetricsSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := MetricsSnapshot{
		TotalPredictions:      m.totalPredictions,
		SuccessfulPredictions: m.successfulPredictions,
		FailedPredictions:     m.failedPredictions,
		CacheHits:             m.cacheHits,
		CacheMisses:           m.cacheMisses,
		TotalLLMTokens:        m.totalLLMTokens,
	}
	if m.totalPredictions > 0 {
		snap.ErrorRate = float64(m.failedPredictions) / float64(m.totalPredictions)
		snap.AverageProcessingMS = float64(m.totalProcessingMS) / float64(m.totalPredictions)
	}
	if m.ringCount > 0 {
		sorted := make([]time.Duration, m.ringCount)
		copy(sorted, m.latencies[:m.ringCount])
		sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
		snap.P95LatencyMS = float64(percentile(sorted, 95).Milliseconds())
		snap.P99LatencyMS = float64(percentile(sorted, 99).Milliseconds())
	}
	return snap
}

func percentile(sorted []time.Duration, pct int) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := pct * len(sorted) / 100
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
