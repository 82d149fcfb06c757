package consumer

import (
	"sort"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// LatencyWindowSize bounds the trailing latency sample: a fixed ring
// that overwrites its oldest entry, never an unbounded accumulator.
const LatencyWindowSize = 100

// DefaultReportInterval is how much wall clock elapses between metric
// reports.
const DefaultReportInterval = 10 * time.Second

// Report is one emitted metrics snapshot.
type Report struct {
	Processed      int64
	MessagesPerSec float64
	P95            time.Duration
	DeadLettered   int64
	Elapsed        time.Duration
}

// Metrics is the loop-owned counters and latency window. It is not
// safe for concurrent use; the single consumption loop owns it.
type Metrics struct {
	clock          clockwork.Clock
	reportInterval time.Duration

	latencies [LatencyWindowSize]time.Duration
	next      int
	count     int

	processed    int64
	deadLettered int64
	windowStart  time.Time
}

func NewMetrics(clock clockwork.Clock, reportInterval time.Duration) *Metrics {
	if reportInterval <= 0 {
		reportInterval = DefaultReportInterval
	}
	return &Metrics{
		clock:          clock,
		reportInterval: reportInterval,
		windowStart:    clock.Now(),
	}
}

// ObserveLatency records one end-to-end persist latency, evicting the
// oldest sample once the ring is full.
func (m *Metrics) ObserveLatency(d time.Duration) {
	m.latencies[m.next] = d
	m.next = (m.next + 1) % LatencyWindowSize
	if m.count < LatencyWindowSize {
		m.count++
	}
}

func (m *Metrics) RecordProcessed()    { m.processed++ }
func (m *Metrics) RecordDeadLettered() { m.deadLettered++ }

// Window returns a copy of the current latency sample, oldest first.
func (m *Metrics) Window() []time.Duration {
	out := make([]time.Duration, 0, m.count)
	start := 0
	if m.count == LatencyWindowSize {
		start = m.next
	}
	for i := 0; i < m.count; i++ {
		out = append(out, m.latencies[(start+i)%LatencyWindowSize])
	}
	return out
}

// P95 is the 95th-percentile latency of the current window: samples
// sorted ascending, index floor(0.95 × count).
func (m *Metrics) P95() time.Duration {
	if m.count == 0 {
		return 0
	}
	sorted := m.Window()
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	return sorted[int(float64(m.count)*0.95)]
}

// MaybeReport emits a metrics report if the report interval has
// elapsed, then resets the throughput counter and elapsed-time base.
// The latency window is a continuously-updated trailing sample and is
// not reset. Returns nil when no report was due.
func (m *Metrics) MaybeReport() *Report {
	elapsed := m.clock.Since(m.windowStart)
	if elapsed < m.reportInterval {
		return nil
	}

	r := &Report{
		Processed:      m.processed,
		MessagesPerSec: float64(m.processed) / elapsed.Seconds(),
		P95:            m.P95(),
		DeadLettered:   m.deadLettered,
		Elapsed:        elapsed,
	}

	log.Info().
		Float64("messages_per_sec", r.MessagesPerSec).
		Int64("dlq_count", r.DeadLettered).
		Dur("db_latency_p95", r.P95).
		Dur("elapsed", r.Elapsed).
		Msg("pipeline metrics")

	m.processed = 0
	m.windowStart = m.clock.Now()
	return r
}
