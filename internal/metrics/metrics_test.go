package metrics

import (
	"sync"
	"testing"
	"time"
)

func TestDisabledMetricsAreInert(t *testing.T) {
	m := New(Config{})
	m.Inc(MetricLoginSuccess)
	m.Observe(MetricVerifyTokenLatency, time.Millisecond)

	if m.Value(MetricLoginSuccess) != 0 {
		t.Fatal("disabled metrics must not count")
	}
	if s := m.Snapshot(); len(s.Counters) != 0 || len(s.Histograms) != 0 {
		t.Fatalf("expected empty snapshot, got %+v", s)
	}

	var nilMetrics *Metrics
	nilMetrics.Inc(MetricLoginSuccess)
	if nilMetrics.Enabled() {
		t.Fatal("nil metrics must report disabled")
	}
}

func TestConcurrentIncrements(t *testing.T) {
	m := New(Config{Enabled: true})

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				m.Inc(MetricOTPIssued)
			}
		}()
	}
	wg.Wait()

	if got := m.Snapshot().Counters[MetricOTPIssued]; got != 16000 {
		t.Fatalf("expected 16000, got %d", got)
	}
	m.Inc(MetricIDCount)
}

func TestLatencyBuckets(t *testing.T) {
	m := New(Config{Enabled: true, EnableLatencyHistograms: true})
	for _, d := range []time.Duration{0, time.Millisecond, 3 * time.Millisecond, 200 * time.Millisecond, time.Second} {
		m.Observe(MetricVerifyTokenLatency, d)
	}
	// Non-latency ids are ignored.
	m.Observe(MetricLoginSuccess, time.Second)

	s := m.Snapshot()
	h := s.Histograms[MetricVerifyTokenLatency]
	want := []uint64{2, 1, 0, 0, 0, 0, 1, 1}
	for i := range want {
		if h[i] != want[i] {
			t.Fatalf("bucket %d: got %d want %d (all %v)", i, h[i], want[i], h)
		}
	}
	if _, ok := s.Counters[MetricVerifyTokenLatency]; ok {
		t.Fatal("latency id must not appear as a counter")
	}
}
