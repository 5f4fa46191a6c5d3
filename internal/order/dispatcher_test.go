package order

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type blockingRunner struct {
	release chan struct{}
	mu      sync.Mutex
	runs    []string
}

func (r *blockingRunner) Run(_ context.Context, sig Signal) Outcome {
	r.mu.Lock()
	r.runs = append(r.runs, sig.Symbol)
	r.mu.Unlock()
	<-r.release
	return Outcome{Signal: sig, State: StateClosed}
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestDispatcherSkipsSymbolInFlight(t *testing.T) {
	r := &blockingRunner{release: make(chan struct{})}
	logs := &syncBuffer{}
	d := NewDispatcher(r, false, zerolog.New(logs))

	ctx := context.Background()
	assert.True(t, d.Dispatch(ctx, Signal{Symbol: "APT_USDT"}))
	assert.False(t, d.Dispatch(ctx, Signal{Symbol: "APT_USDT"}))
	assert.True(t, d.Dispatch(ctx, Signal{Symbol: "BTC_USDT"}))
	assert.Equal(t, 2, d.Active())

	close(r.release)
	d.Wait()
	assert.Zero(t, d.Active())

	assert.True(t, d.Dispatch(ctx, Signal{Symbol: "APT_USDT"}), "symbol is free again")
	d.Close()

	out := logs.String()
	assert.Equal(t, 3, strings.Count(out, `"message":"bracket finished"`))
	assert.Equal(t, 2, strings.Count(out, `"symbol":"APT_USDT","state":"Closed"`))
}

func TestDispatcherAllowsOverlapWhenConfigured(t *testing.T) {
	r := &blockingRunner{release: make(chan struct{})}
	d := NewDispatcher(r, true, zerolog.Nop())

	assert.True(t, d.Dispatch(context.Background(), Signal{Symbol: "APT_USDT"}))
	assert.True(t, d.Dispatch(context.Background(), Signal{Symbol: "APT_USDT"}))
	require.Eventually(t, func() bool {
		r.mu.Lock()
		defer r.mu.Unlock()
		return len(r.runs) == 2
	}, time.Second, 5*time.Millisecond)

	close(r.release)
	d.Close()
	assert.False(t, d.Dispatch(context.Background(), Signal{Symbol: "APT_USDT"}), "closed dispatcher refuses work")
}
