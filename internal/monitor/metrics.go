package monitor

import (
	"runtime"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// SystemMetrics keeps an in-process snapshot of engine activity for the
// status API.
type SystemMetrics struct {
	CycleLatency *LatencyHistogram
	APILatency   *LatencyHistogram

	apiRequests uint64
	apiErrors   uint64
	cycles      uint64
	signals     uint64
	orders      uint64
	failures    uint64
	timeouts    uint64
	brackets    uint64
	lastCycle   atomic.Int64
	startedAt   time.Time
}

// NewSystemMetrics creates a new metrics instance.
func NewSystemMetrics() *SystemMetrics {
	return &SystemMetrics{
		CycleLatency: NewLatencyHistogram(500),
		APILatency:   NewLatencyHistogram(500),
		startedAt:    time.Now(),
	}
}

// LatencyHistogram keeps a sliding window of samples in milliseconds.
type LatencyHistogram struct {
	mu      sync.Mutex
	samples []float64
	maxSize int
}

// NewLatencyHistogram creates a sliding window histogram.
func NewLatencyHistogram(size int) *LatencyHistogram {
	if size <= 0 {
		size = 500
	}
	return &LatencyHistogram{samples: make([]float64, 0, size), maxSize: size}
}

// RecordDuration adds a sample, evicting the oldest once the window is full.
func (h *LatencyHistogram) RecordDuration(d time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.samples) >= h.maxSize {
		h.samples = h.samples[1:]
	}
	h.samples = append(h.samples, float64(d.Nanoseconds())/1e6)
}

// Stats returns min, max, avg and percentiles over the window.
func (h *LatencyHistogram) Stats() LatencyStats {
	h.mu.Lock()
	sorted := append([]float64(nil), h.samples...)
	h.mu.Unlock()

	n := len(sorted)
	if n == 0 {
		return LatencyStats{}
	}
	sort.Float64s(sorted)
	var sum float64
	for _, v := range sorted {
		sum += v
	}
	return LatencyStats{
		Min:   sorted[0],
		Max:   sorted[n-1],
		Avg:   sum / float64(n),
		P50:   sorted[n/2],
		P95:   sorted[int(float64(n-1)*0.95)],
		Count: n,
	}
}

// LatencyStats holds computed latency statistics.
type LatencyStats struct {
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Avg   float64 `json:"avg"`
	P50   float64 `json:"p50"`
	P95   float64 `json:"p95"`
	Count int     `json:"count"`
}

func (m *SystemMetrics) recordCycle(d time.Duration, at time.Time) {
	atomic.AddUint64(&m.cycles, 1)
	m.CycleLatency.RecordDuration(d)
	m.lastCycle.Store(at.UnixMilli())
}

// RecordAPI counts one served request.
func (m *SystemMetrics) RecordAPI(latency time.Duration, failed bool) {
	atomic.AddUint64(&m.apiRequests, 1)
	if failed {
		atomic.AddUint64(&m.apiErrors, 1)
	}
	m.APILatency.RecordDuration(latency)
}

// MetricsSnapshot is the JSON view served by the status API.
type MetricsSnapshot struct {
	Cycles         uint64       `json:"cycles"`
	Signals        uint64       `json:"signals"`
	OrdersSent     uint64       `json:"orders_sent"`
	Failures       uint64       `json:"symbol_failures"`
	Timeouts       uint64       `json:"entry_timeouts"`
	Brackets       uint64       `json:"brackets"`
	CycleLatency   LatencyStats `json:"cycle_latency_ms"`
	APIRequests    uint64       `json:"api_requests"`
	APIErrors      uint64       `json:"api_errors"`
	APILatency     LatencyStats `json:"api_latency_ms"`
	LastCycleAt    *time.Time   `json:"last_cycle_at,omitempty"`
	Uptime         string       `json:"uptime"`
	GoroutineCount int          `json:"goroutines"`
	HeapAlloc      uint64       `json:"heap_alloc_bytes"`
}

// Snapshot returns a point-in-time copy.
func (m *SystemMetrics) Snapshot() MetricsSnapshot {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	s := MetricsSnapshot{
		Cycles:         atomic.LoadUint64(&m.cycles),
		Signals:        atomic.LoadUint64(&m.signals),
		OrdersSent:     atomic.LoadUint64(&m.orders),
		Failures:       atomic.LoadUint64(&m.failures),
		Timeouts:       atomic.LoadUint64(&m.timeouts),
		Brackets:       atomic.LoadUint64(&m.brackets),
		CycleLatency:   m.CycleLatency.Stats(),
		APIRequests:    atomic.LoadUint64(&m.apiRequests),
		APIErrors:      atomic.LoadUint64(&m.apiErrors),
		APILatency:     m.APILatency.Stats(),
		Uptime:         time.Since(m.startedAt).Truncate(time.Second).String(),
		GoroutineCount: runtime.NumGoroutine(),
		HeapAlloc:      mem.HeapAlloc,
	}
	if ms := m.lastCycle.Load(); ms > 0 {
		t := time.UnixMilli(ms)
		s.LastCycleAt = &t
	}
	return s
}
