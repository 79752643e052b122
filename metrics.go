package goSession

import (
	"sync/atomic"
	"time"
)

// MetricID identifies one engine counter or latency histogram.
type MetricID uint16

const (
	// MetricSessionCreated counts sessions opened by CreateSession.
	MetricSessionCreated MetricID = iota
	// MetricSessionCreateFailure counts CreateSession calls that failed.
	MetricSessionCreateFailure
	// MetricRefreshSuccess counts lineage advances.
	MetricRefreshSuccess
	// MetricRefreshFailure counts refreshes rejected for any reason but theft.
	MetricRefreshFailure
	// MetricRefreshRateLimited counts refreshes denied by the throttle.
	MetricRefreshRateLimited
	// MetricTokenTheftDetected counts confirmed replays of superseded refresh tokens.
	MetricTokenTheftDetected
	// MetricVerifySuccess counts accepted access tokens.
	MetricVerifySuccess
	// MetricVerifyTryRefresh counts access tokens that were expired or invalid.
	MetricVerifyTryRefresh
	// MetricVerifyUnauthorized counts anti-CSRF mismatches and blacklisted sessions.
	MetricVerifyUnauthorized
	// MetricAccessTokenReissued counts access tokens re-signed by VerifySession.
	MetricAccessTokenReissued
	// MetricSessionRevoked counts rows removed by revoke or theft handling.
	MetricSessionRevoked
	// MetricKeyRotation counts signing keys replaced by RotateSigningKeys.
	MetricKeyRotation
	// MetricStoreFailure counts store and keyring backend failures.
	MetricStoreFailure
	// MetricVerifyLatency is the VerifySession latency histogram.
	MetricVerifyLatency
	// MetricRefreshLatency is the RefreshSession latency histogram.
	MetricRefreshLatency
	metricIDCount
)

const (
	histBucketCount = 8
	cacheLineSize   = 64
)

type metricHistogram struct {
	buckets [histBucketCount]uint64
}

type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// Metrics holds lock-free counters in cache-line padded slots.
type Metrics struct {
	enabled       bool
	enableLatency bool
	counters      [metricIDCount]paddedCounter
	histograms    [metricIDCount]metricHistogram
}

// MetricsSnapshot is a point-in-time copy of the engine counters.
// Histograms hold 8 non-cumulative buckets (<=5ms ... +Inf).
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
}

// NewMetrics returns counters configured by cfg.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		enabled:       cfg.Enabled,
		enableLatency: cfg.Enabled && cfg.EnableLatencyHistograms,
	}
}

func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

func (m *Metrics) LatencyEnabled() bool {
	return m != nil && m.enableLatency
}

// Inc adds one to counter id. Safe for concurrent use and allocation free.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

func (m *Metrics) add(id MetricID, n uint64) {
	if m == nil || !m.enabled || id >= metricIDCount || n == 0 {
		return
	}
	atomic.AddUint64(&m.counters[id].value, n)
}

// Observe records d in the histogram of a latency metric.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if m == nil || !m.enabled || !m.enableLatency || id >= metricIDCount {
		return
	}
	if !isLatencyMetric(id) {
		return
	}

	b := bucketIndex(d)
	atomic.AddUint64(&m.histograms[id].buckets[b], 1)
}

func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

// Snapshot copies all counters. Disabled metrics yield empty maps.
func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil || !m.enabled {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}

	s := MetricsSnapshot{
		Counters:   make(map[MetricID]uint64, int(metricIDCount)),
		Histograms: make(map[MetricID][]uint64, 2),
	}

	for id := MetricID(0); id < metricIDCount; id++ {
		s.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
	}

	if m.enableLatency {
		for _, id := range []MetricID{MetricVerifyLatency, MetricRefreshLatency} {
			buckets := make([]uint64, histBucketCount)
			for i := 0; i < histBucketCount; i++ {
				buckets[i] = atomic.LoadUint64(&m.histograms[id].buckets[i])
			}
			s.Histograms[id] = buckets
		}
	}

	return s
}

func isLatencyMetric(id MetricID) bool {
	return id == MetricVerifyLatency || id == MetricRefreshLatency
}

func bucketIndex(d time.Duration) int {
	ms := d.Milliseconds()

	switch {
	case ms <= 5:
		return 0
	case ms <= 10:
		return 1
	case ms <= 25:
		return 2
	case ms <= 50:
		return 3
	case ms <= 100:
		return 4
	case ms <= 250:
		return 5
	case ms <= 500:
		return 6
	default:
		return 7
	}
}
