package market

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signal-core/pkg/exchanges/common"
)

type countingFeed struct {
	calls atomic.Int32
	delay time.Duration
	err   error
}

func (c *countingFeed) Candles(_ context.Context, _, _ string, limit int) ([]common.Candle, error) {
	c.calls.Add(1)
	time.Sleep(c.delay)
	if c.err != nil {
		return nil, c.err
	}
	out := make([]common.Candle, limit)
	for i := range out {
		out[i] = common.Candle{Close: float64(i + 1)}
	}
	return out, nil
}

func TestCachedFeedServesWithinTTL(t *testing.T) {
	up := &countingFeed{}
	f := NewCachedFeed(up, time.Minute, zerolog.Nop())

	c1, err := f.Candles(context.Background(), "APT_USDT", "Min15", 10)
	require.NoError(t, err)
	c2, err := f.Candles(context.Background(), "APT_USDT", "Min15", 3)
	require.NoError(t, err)

	assert.Len(t, c1, 10)
	require.Len(t, c2, 3)
	assert.Equal(t, 10.0, c2[2].Close)
	assert.EqualValues(t, 1, up.calls.Load())
}

func TestCachedFeedRefetchesLongerSeries(t *testing.T) {
	up := &countingFeed{}
	f := NewCachedFeed(up, time.Minute, zerolog.Nop())

	_, err := f.Candles(context.Background(), "APT_USDT", "Min15", 3)
	require.NoError(t, err)
	got, err := f.Candles(context.Background(), "APT_USDT", "Min15", 10)
	require.NoError(t, err)
	assert.Len(t, got, 10)
	assert.EqualValues(t, 2, up.calls.Load())
}

func TestCachedFeedZeroTTLAlwaysFetches(t *testing.T) {
	up := &countingFeed{}
	f := NewCachedFeed(up, 0, zerolog.Nop())
	for i := 0; i < 3; i++ {
		_, err := f.Candles(context.Background(), "APT_USDT", "Min15", 5)
		require.NoError(t, err)
	}
	assert.EqualValues(t, 3, up.calls.Load())
}

func TestCachedFeedCollapsesConcurrentMisses(t *testing.T) {
	up := &countingFeed{delay: 50 * time.Millisecond}
	f := NewCachedFeed(up, time.Minute, zerolog.Nop())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.Candles(context.Background(), "APT_USDT", "Min15", 5)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 1, up.calls.Load())
}

func TestCachedFeedPropagatesErrors(t *testing.T) {
	up := &countingFeed{err: common.ErrDataUnavailable}
	f := NewCachedFeed(up, time.Minute, zerolog.Nop())
	_, err := f.Candles(context.Background(), "APT_USDT", "Min15", 5)
	assert.True(t, errors.Is(err, common.ErrDataUnavailable))

	up.err = nil
	got, err := f.Candles(context.Background(), "APT_USDT", "Min15", 5)
	require.NoError(t, err)
	assert.Len(t, got, 5, "failed fetches are not cached")
}

func TestCachedFeedDoesNotShareAcrossLimits(t *testing.T) {
	up := &countingFeed{delay: 50 * time.Millisecond}
	f := NewCachedFeed(up, time.Minute, zerolog.Nop())

	var (
		wg         sync.WaitGroup
		short, big []common.Candle
		errS, errB error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		short, errS = f.Candles(context.Background(), "APT_USDT", "Min15", 1)
	}()
	go func() {
		defer wg.Done()
		time.Sleep(5 * time.Millisecond)
		big, errB = f.Candles(context.Background(), "APT_USDT", "Min15", 100)
	}()
	wg.Wait()

	require.NoError(t, errS)
	require.NoError(t, errB)
	assert.Len(t, short, 1)
	assert.Len(t, big, 100)
	assert.EqualValues(t, 2, up.calls.Load())
}

func TestCachedFeedSharedFetchSurvivesCallerCancel(t *testing.T) {
	up := &countingFeed{delay: 50 * time.Millisecond}
	f := NewCachedFeed(up, time.Minute, zerolog.Nop())

	first, cancel := context.WithCancel(context.Background())
	var (
		wg   sync.WaitGroup
		errA error
		got  []common.Candle
		errB error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, errA = f.Candles(first, "APT_USDT", "Min15", 5)
	}()
	go func() {
		defer wg.Done()
		time.Sleep(5 * time.Millisecond)
		got, errB = f.Candles(context.Background(), "APT_USDT", "Min15", 5)
	}()
	time.Sleep(15 * time.Millisecond)
	cancel()
	wg.Wait()

	assert.ErrorIs(t, errA, context.Canceled)
	require.NoError(t, errB)
	assert.Len(t, got, 5)
}

func TestMockFeedAdvancesOneBarPerCall(t *testing.T) {
	m := &MockFeed{StartPrice: 50, Step: 0.02, Seed: 7}
	first, err := m.Candles(context.Background(), "APT_USDT", "Min15", 30)
	require.NoError(t, err)
	require.Len(t, first, 30)

	second, err := m.Candles(context.Background(), "APT_USDT", "Min15", 30)
	require.NoError(t, err)
	require.Len(t, second, 30)
	assert.Equal(t, first[1:], second[:29])
	assert.Equal(t, 15*time.Minute, second[29].Time.Sub(second[28].Time))

	for _, c := range second {
		assert.Greater(t, c.Close, 0.0)
		assert.GreaterOrEqual(t, c.High, c.Low)
	}
}

func TestMockFeedIsDeterministicPerSeed(t *testing.T) {
	a := &MockFeed{Seed: 42}
	b := &MockFeed{Seed: 42}
	ca, err := a.Candles(context.Background(), "X", "Min1", 20)
	require.NoError(t, err)
	cb, err := b.Candles(context.Background(), "X", "Min1", 20)
	require.NoError(t, err)
	for i := range ca {
		assert.Equal(t, ca[i].Close, cb[i].Close)
	}
}

func TestMockFeedHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := (&MockFeed{}).Candles(ctx, "X", "Min1", 5)
	assert.ErrorIs(t, err, context.Canceled)
}
