package market

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"signal-core/pkg/exchanges/common"
	"signal-core/pkg/exchanges/mexc"
)

const mockHistory = 2000

// MockFeed generates random-walk candles for local development. Every call
// advances the requested series by one bar.
type MockFeed struct {
	StartPrice float64
	// Step is the maximum relative move per bar, e.g. 0.01 = 1%.
	Step float64
	Seed int64

	once   sync.Once
	mu     sync.Mutex
	rng    *rand.Rand
	series map[string][]common.Candle
}

func (m *MockFeed) init() {
	if m.StartPrice <= 0 {
		m.StartPrice = 100
	}
	if m.Step <= 0 {
		m.Step = 0.01
	}
	seed := m.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	m.rng = rand.New(rand.NewSource(seed))
	m.series = make(map[string][]common.Candle)
}

func (m *MockFeed) Candles(ctx context.Context, symbol, timeframe string, limit int) ([]common.Candle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.once.Do(m.init)
	step, ok := mexc.IntervalDuration(timeframe)
	if !ok {
		step = time.Minute
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	key := symbol + "|" + timeframe
	s := m.series[key]
	if len(s) == 0 {
		s = m.seed(limit, step)
	}
	s = append(s, m.next(s[len(s)-1], step))
	if len(s) > mockHistory {
		s = s[len(s)-mockHistory:]
	}
	m.series[key] = s
	return tail(s, limit), nil
}

// seed back-fills enough history for the first indicator computation.
func (m *MockFeed) seed(limit int, step time.Duration) []common.Candle {
	if limit <= 0 {
		limit = 100
	}
	start := time.Now().Add(-time.Duration(limit) * step).Truncate(step)
	first := common.Candle{Time: start, Open: m.StartPrice, High: m.StartPrice, Low: m.StartPrice, Close: m.StartPrice}
	s := []common.Candle{first}
	for len(s) < limit {
		s = append(s, m.next(s[len(s)-1], step))
	}
	return s
}

func (m *MockFeed) next(prev common.Candle, step time.Duration) common.Candle {
	move := (m.rng.Float64()*2 - 1) * m.Step
	closePrice := prev.Close * (1 + move)
	high, low := prev.Close, closePrice
	if closePrice > high {
		high, low = closePrice, prev.Close
	}
	return common.Candle{
		Time:   prev.Time.Add(step),
		Open:   prev.Close,
		High:   high,
		Low:    low,
		Close:  closePrice,
		Volume: 1000 * m.rng.Float64(),
	}
}
