package persistence

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signal-core/pkg/db"
)

func newStore(t *testing.T) *db.Database {
	t.Helper()
	database, err := db.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })
	require.NoError(t, db.ApplyMigrations(database))
	return database
}

func countRows(t *testing.T, d *db.Database, table string) int {
	t.Helper()
	var n int
	require.NoError(t, d.DB.QueryRow("SELECT COUNT(*) FROM "+table).Scan(&n))
	return n
}

func TestBatchJournalFlushesInOrder(t *testing.T) {
	store := newStore(t)
	bj := NewBatchJournal(store, 100, time.Hour, zerolog.Nop())
	ctx := context.Background()

	require.NoError(t, bj.RecordOrder(ctx, db.OrderRecord{ID: "c-1", BracketID: "b-1", Symbol: "APT_USDT", Qty: 25, Status: "NEW"}))
	require.NoError(t, bj.UpdateOrderFill(ctx, "c-1", "FILLED", 25, 9.98))
	require.NoError(t, bj.RecordTransition(ctx, db.Transition{BracketID: "b-1", Symbol: "APT_USDT", From: "EntrySubmitted", To: "Filled"}))
	assert.Equal(t, 3, bj.Pending())
	assert.Zero(t, countRows(t, store, "orders"))

	require.NoError(t, bj.Flush())
	assert.Zero(t, bj.Pending())

	var status string
	require.NoError(t, store.DB.QueryRow(`SELECT status FROM orders WHERE id = 'c-1'`).Scan(&status))
	assert.Equal(t, "FILLED", status)
	assert.Equal(t, 1, countRows(t, store, "bracket_transitions"))

	m := bj.Metrics()
	assert.EqualValues(t, 3, m.TotalWrites)
	assert.EqualValues(t, 1, m.TotalBatches)
	assert.Equal(t, 3, m.LastBatchSize)
	require.NoError(t, bj.Close())
}

func TestBatchJournalCloseFlushes(t *testing.T) {
	store := newStore(t)
	bj := NewBatchJournal(store, 100, time.Hour, zerolog.Nop())
	require.NoError(t, bj.RecordOrder(context.Background(), db.OrderRecord{ID: "c-2", Symbol: "APT_USDT", Status: "NEW"}))

	require.NoError(t, bj.Close())
	require.NoError(t, bj.Close())
	assert.Equal(t, 1, countRows(t, store, "orders"))
}

func TestBatchJournalTimedFlush(t *testing.T) {
	store := newStore(t)
	bj := NewBatchJournal(store, 100, 10*time.Millisecond, zerolog.Nop())
	defer bj.Close()
	require.NoError(t, bj.RecordOrder(context.Background(), db.OrderRecord{ID: "c-3", Symbol: "APT_USDT", Status: "NEW"}))

	assert.Eventually(t, func() bool { return bj.Pending() == 0 && bj.Metrics().TotalBatches == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, countRows(t, store, "orders"))
}

type failingStore struct{}

func (failingStore) InTx(context.Context, func(w db.Writer) error) error {
	return errors.New("disk full")
}

func TestBatchJournalCountsDroppedBatches(t *testing.T) {
	bj := NewBatchJournal(failingStore{}, 100, time.Hour, zerolog.Nop())
	defer bj.Close()
	require.NoError(t, bj.RecordTransition(context.Background(), db.Transition{BracketID: "b", To: "Closed"}))
	require.NoError(t, bj.RecordTransition(context.Background(), db.Transition{BracketID: "b", To: "Rejected"}))

	assert.Error(t, bj.Flush())
	m := bj.Metrics()
	assert.EqualValues(t, 1, m.TotalErrors)
	assert.EqualValues(t, 2, m.Dropped)
}
