package monitor

import (
	"context"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signal-core/internal/events"
)

func TestMonitorFoldsEvents(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := events.NewBus()
	rec := NewRecorder()
	stats := NewSystemMetrics()
	m := &Monitor{Bus: bus, Recorder: rec, Stats: stats}
	m.Start(ctx)

	bus.Publish(events.EventSignalRaised, events.Lifecycle{Symbol: "APT_USDT", Timeframe: "Min15", Side: "long", RSI: 25})
	bus.Publish(events.EventOrderSubmitted, events.Lifecycle{Symbol: "APT_USDT", Kind: "entry"})
	bus.Publish(events.EventOrderTimedOut, events.Lifecycle{Symbol: "APT_USDT", Kind: "entry"})
	bus.Publish(events.EventSymbolFailed, events.Lifecycle{Symbol: "BTC_USDT"})
	bus.Publish(events.EventCycleCompleted, events.Cycle{Symbols: 2, Duration: 40 * time.Millisecond, Time: time.Now()})

	require.Eventually(t, func() bool {
		s := stats.Snapshot()
		return s.Signals == 1 && s.OrdersSent == 1 && s.Timeouts == 1 && s.Failures == 1 && s.Cycles == 1
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, 25.0, testutil.ToFloat64(rec.rsi.WithLabelValues("APT_USDT", "Min15")))
	assert.Equal(t, 1.0, testutil.ToFloat64(rec.ordersTotal.WithLabelValues("entry", "timed_out")))
	assert.Equal(t, 1.0, testutil.ToFloat64(rec.failuresTotal.WithLabelValues("BTC_USDT")))
	assert.NotNil(t, stats.Snapshot().LastCycleAt)
}

func TestRecorderHandler(t *testing.T) {
	rec := NewRecorder()
	rec.SetRunning(true)
	rec.RecordSignal("APT_USDT", "long")

	srv := httptest.NewServer(rec.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Contains(t, string(body), "signal_core_running 1")
	assert.Contains(t, string(body), `signal_core_signals_total{side="long",symbol="APT_USDT"} 1`)
}

func TestLatencyHistogramWindow(t *testing.T) {
	h := NewLatencyHistogram(3)
	for _, ms := range []int{10, 20, 30, 40} {
		h.RecordDuration(time.Duration(ms) * time.Millisecond)
	}
	s := h.Stats()
	assert.Equal(t, 3, s.Count)
	assert.Equal(t, 20.0, s.Min)
	assert.Equal(t, 40.0, s.Max)
	assert.Equal(t, 30.0, s.Avg)
	assert.Equal(t, LatencyStats{}, NewLatencyHistogram(0).Stats())
}
