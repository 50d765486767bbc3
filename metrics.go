package teamgate

import (
	"sync/atomic"
	"time"
)

// MetricID identifies one in-process counter or histogram.
type MetricID uint16

const (
	// MetricLoginSuccess counts sign-ins that issued a session directly.
	MetricLoginSuccess MetricID = iota
	// MetricLoginFailure counts sign-ins rejected for a bad password.
	MetricLoginFailure
	// MetricLoginNotFound counts sign-ins against unknown identifiers.
	MetricLoginNotFound
	// MetricEmailConfirmationRequired counts sign-ins halted on an
	// unconfirmed email address.
	MetricEmailConfirmationRequired
	// MetricMfaRequired counts sign-ins that entered the MFA step.
	MetricMfaRequired
	// MetricOtpSent counts one-time codes dispatched on the requested
	// channel.
	MetricOtpSent
	// MetricOtpFallback counts deliveries rerouted to the email channel.
	MetricOtpFallback
	// MetricOtpVerifySuccess counts accepted one-time codes.
	MetricOtpVerifySuccess
	// MetricOtpVerifyFailure counts rejected one-time codes.
	MetricOtpVerifyFailure
	// MetricSessionCreated counts issued session credentials.
	MetricSessionCreated
	// MetricSessionRevoked counts sign-outs and session invalidations.
	MetricSessionRevoked
	// MetricRequestValidationFailed counts requests short-circuited by
	// validation.
	MetricRequestValidationFailed
	// MetricRequestCommitted counts requests whose transaction committed.
	MetricRequestCommitted
	// MetricRequestRolledBack counts requests whose transaction rolled
	// back.
	MetricRequestRolledBack
	// MetricDispatchLatency is the end-to-end request dispatch latency
	// histogram.
	MetricDispatchLatency
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

// Metrics holds the engine's counters and latency histogram. Increments are
// lock-free and allocation-free; a nil *Metrics is a valid no-op receiver.
type Metrics struct {
	enabled       bool
	enableLatency bool
	counters      [metricIDCount]paddedCounter
	histograms    [metricIDCount]metricHistogram
}

// MetricsSnapshot is a point-in-time copy of every counter and histogram.
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
}

// NewMetrics creates the metric store described by cfg.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		enabled:       cfg.Enabled,
		enableLatency: cfg.Enabled && cfg.EnableLatencyHistograms,
	}
}

// Enabled reports whether counters are being recorded.
func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

// Inc increments the counter for id by one.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

// Observe records one latency sample for id.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if m == nil || !m.enabled || !m.enableLatency || id >= metricIDCount {
		return
	}
	if id != MetricDispatchLatency {
		return
	}

	b := bucketIndex(d)
	atomic.AddUint64(&m.histograms[id].buckets[b], 1)
}

// Value returns the current count for id.
func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

// Snapshot copies all counters and histograms. The returned maps are owned
// by the caller.
func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil || !m.enabled {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}

	s := MetricsSnapshot{
		Counters:   make(map[MetricID]uint64, int(metricIDCount)),
		Histograms: make(map[MetricID][]uint64, 1),
	}

	for id := MetricID(0); id < metricIDCount; id++ {
		s.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
	}

	if m.enableLatency {
		buckets := make([]uint64, histBucketCount)
		for i := 0; i < histBucketCount; i++ {
			buckets[i] = atomic.LoadUint64(&m.histograms[MetricDispatchLatency].buckets[i])
		}
		s.Histograms[MetricDispatchLatency] = buckets
	}

	return s
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
