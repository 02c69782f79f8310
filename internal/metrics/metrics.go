package metrics

import (
	"sync/atomic"
	"time"
)

// MetricID indexes one counter.
type MetricID uint16

const (
	MetricRegisterSuccess MetricID = iota
	MetricRegisterDuplicate
	MetricLoginSuccess
	MetricLoginFailure
	MetricLoginRateLimited
	MetricSocialLinked
	MetricSocialCreated
	MetricOTPIssued
	MetricOTPRateLimited
	MetricOTPVerified
	MetricOTPFailed
	MetricTokenIssued
	MetricTokenRefreshed
	MetricTokenInvalid
	MetricTokenRevoked
	MetricLogout
	MetricAuthorizeAllowed
	MetricAuthorizeDenied
	MetricRoleChanged
	MetricAccountDeactivated
	MetricVerifyTokenLatency
	MetricIDCount
)

const (
	// HistogramBuckets is the number of latency buckets, the last being +Inf.
	HistogramBuckets = 8
	cacheLineSize    = 64
)

type histogram struct {
	buckets [HistogramBuckets]uint64
}

type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// Config toggles collection.
type Config struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// Metrics holds every counter in its own cache line.
type Metrics struct {
	enabled       bool
	enableLatency bool
	counters      [MetricIDCount]paddedCounter
	histograms    [MetricIDCount]histogram
}

// Snapshot is a point-in-time copy.
type Snapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
}

func New(cfg Config) *Metrics {
	return &Metrics{
		enabled:       cfg.Enabled,
		enableLatency: cfg.Enabled && cfg.EnableLatencyHistograms,
	}
}

func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= MetricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

// Observe records d into the histogram of id. Only latency ids keep histograms.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if m == nil || !m.enableLatency || id != MetricVerifyTokenLatency {
		return
	}
	atomic.AddUint64(&m.histograms[id].buckets[bucketIndex(d)], 1)
}

func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= MetricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

func (m *Metrics) Snapshot() Snapshot {
	if m == nil || !m.enabled {
		return Snapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}

	s := Snapshot{
		Counters:   make(map[MetricID]uint64, int(MetricIDCount)),
		Histograms: make(map[MetricID][]uint64, 1),
	}
	for id := MetricID(0); id < MetricIDCount; id++ {
		if id == MetricVerifyTokenLatency {
			continue
		}
		s.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
	}
	if m.enableLatency {
		buckets := make([]uint64, HistogramBuckets)
		for i := range buckets {
			buckets[i] = atomic.LoadUint64(&m.histograms[MetricVerifyTokenLatency].buckets[i])
		}
		s.Histograms[MetricVerifyTokenLatency] = buckets
	}
	return s
}

// BucketUpperBounds are the inclusive upper bounds of all but the last bucket.
var BucketUpperBounds = [HistogramBuckets - 1]time.Duration{
	time.Millisecond,
	5 * time.Millisecond,
	10 * time.Millisecond,
	25 * time.Millisecond,
	50 * time.Millisecond,
	100 * time.Millisecond,
	250 * time.Millisecond,
}

func bucketIndex(d time.Duration) int {
	for i, ub := range BucketUpperBounds {
		if d <= ub {
			return i
		}
	}
	return HistogramBuckets - 1
}
