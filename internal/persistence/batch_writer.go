// Package persistence moves journal writes off the trading path.
package persistence

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"signal-core/pkg/db"
)

// TxRunner opens a transaction and hands it a journal writer.
type TxRunner interface {
	InTx(ctx context.Context, fn func(w db.Writer) error) error
}

type writeOp func(ctx context.Context, w db.Writer) error

// BatchJournal queues journal writes and applies them in one transaction per
// flush. Writes keep their enqueue order, so a fill update always lands after
// the insert it refers to. Enqueueing never blocks on SQLite.
type BatchJournal struct {
	store       TxRunner
	log         zerolog.Logger
	buffer      []writeOp
	mu          sync.Mutex
	flushMu     sync.Mutex
	maxSize     int
	flushIntval time.Duration
	done        chan struct{}
	closeOnce   sync.Once
	wg          sync.WaitGroup
	metrics     BatchWriterMetrics
}

// BatchWriterMetrics provides statistics about batch operations.
type BatchWriterMetrics struct {
	TotalWrites   uint64    `json:"total_writes"`
	TotalBatches  uint64    `json:"total_batches"`
	TotalErrors   uint64    `json:"total_errors"`
	Dropped       uint64    `json:"dropped_writes"`
	LastBatchSize int       `json:"last_batch_size"`
	LastFlushTime time.Time `json:"last_flush_time"`
}

// NewBatchJournal starts the background flusher.
// maxSize: max queued writes before an immediate flush
// interval: time-based flush interval
func NewBatchJournal(store TxRunner, maxSize int, interval time.Duration, logger zerolog.Logger) *BatchJournal {
	if maxSize <= 0 {
		maxSize = 50
	}
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}

	bj := &BatchJournal{
		store:       store,
		log:         logger.With().Str("component", "journal").Logger(),
		buffer:      make([]writeOp, 0, maxSize),
		maxSize:     maxSize,
		flushIntval: interval,
		done:        make(chan struct{}),
	}

	bj.wg.Add(1)
	go bj.backgroundFlush()

	return bj
}

func (bj *BatchJournal) RecordOrder(_ context.Context, o db.OrderRecord) error {
	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Now()
	}
	bj.enqueue(func(ctx context.Context, w db.Writer) error { return w.RecordOrder(ctx, o) })
	return nil
}

func (bj *BatchJournal) UpdateOrderFill(_ context.Context, id, status string, filledQty, avgPrice float64) error {
	bj.enqueue(func(ctx context.Context, w db.Writer) error {
		return w.UpdateOrderFill(ctx, id, status, filledQty, avgPrice)
	})
	return nil
}

func (bj *BatchJournal) RecordTransition(_ context.Context, t db.Transition) error {
	if t.At.IsZero() {
		t.At = time.Now()
	}
	bj.enqueue(func(ctx context.Context, w db.Writer) error { return w.RecordTransition(ctx, t) })
	return nil
}

func (bj *BatchJournal) enqueue(op writeOp) {
	bj.mu.Lock()
	bj.buffer = append(bj.buffer, op)
	shouldFlush := len(bj.buffer) >= bj.maxSize
	bj.mu.Unlock()

	if shouldFlush {
		go bj.Flush()
	}
}

// Flush writes all buffered operations in a single transaction. A failing
// write rolls back and drops the whole batch.
func (bj *BatchJournal) Flush() error {
	bj.flushMu.Lock()
	defer bj.flushMu.Unlock()

	bj.mu.Lock()
	if len(bj.buffer) == 0 {
		bj.mu.Unlock()
		return nil
	}
	ops := bj.buffer
	bj.buffer = make([]writeOp, 0, bj.maxSize)
	bj.mu.Unlock()

	return bj.executeBatch(ops)
}

func (bj *BatchJournal) executeBatch(ops []writeOp) error {
	atomic.AddUint64(&bj.metrics.TotalWrites, uint64(len(ops)))
	atomic.AddUint64(&bj.metrics.TotalBatches, 1)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := bj.store.InTx(ctx, func(w db.Writer) error {
		for _, op := range ops {
			if err := op(ctx, w); err != nil {
				return err
			}
		}
		return nil
	})

	bj.mu.Lock()
	bj.metrics.LastBatchSize = len(ops)
	bj.metrics.LastFlushTime = time.Now()
	bj.mu.Unlock()

	if err != nil {
		atomic.AddUint64(&bj.metrics.TotalErrors, 1)
		atomic.AddUint64(&bj.metrics.Dropped, uint64(len(ops)))
		bj.log.Error().Err(err).Int("dropped", len(ops)).Msg("journal batch rolled back")
		return err
	}
	bj.log.Debug().Int("writes", len(ops)).Msg("journal batch flushed")
	return nil
}

func (bj *BatchJournal) backgroundFlush() {
	defer bj.wg.Done()
	ticker := time.NewTicker(bj.flushIntval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			_ = bj.Flush()
		case <-bj.done:
			_ = bj.Flush()
			return
		}
	}
}

// Pending returns the number of queued writes.
func (bj *BatchJournal) Pending() int {
	bj.mu.Lock()
	defer bj.mu.Unlock()
	return len(bj.buffer)
}

// Metrics returns a copy of the batch statistics.
func (bj *BatchJournal) Metrics() BatchWriterMetrics {
	bj.mu.Lock()
	size, at := bj.metrics.LastBatchSize, bj.metrics.LastFlushTime
	bj.mu.Unlock()
	return BatchWriterMetrics{
		TotalWrites:   atomic.LoadUint64(&bj.metrics.TotalWrites),
		TotalBatches:  atomic.LoadUint64(&bj.metrics.TotalBatches),
		TotalErrors:   atomic.LoadUint64(&bj.metrics.TotalErrors),
		Dropped:       atomic.LoadUint64(&bj.metrics.Dropped),
		LastBatchSize: size,
		LastFlushTime: at,
	}
}

// Close flushes what is queued and stops the background flusher.
func (bj *BatchJournal) Close() error {
	bj.closeOnce.Do(func() { close(bj.done) })
	bj.wg.Wait()
	return nil
}
