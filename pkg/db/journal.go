package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// OrderRecord is one order as sent to the exchange.
type OrderRecord struct {
	ID              string // client id
	BracketID       string
	ExchangeOrderID string
	Symbol          string
	Side            string
	Kind            string
	Price           float64
	Qty             float64
	Status          string
	CreatedAt       time.Time
}

// Transition is one bracket state change.
type Transition struct {
	BracketID string
	Symbol    string
	From      string
	To        string
	Detail    string
	At        time.Time
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Writer performs journal writes against a handle or an open transaction.
type Writer struct {
	x execer
}

// InTx runs fn inside one transaction, committing only if fn succeeds.
func (d *Database) InTx(ctx context.Context, fn func(w Writer) error) error {
	tx, err := d.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin journal tx: %w", err)
	}
	if err := fn(Writer{x: tx}); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit journal tx: %w", err)
	}
	return nil
}

func (d *Database) RecordOrder(ctx context.Context, o OrderRecord) error {
	return Writer{x: d.DB}.RecordOrder(ctx, o)
}

func (d *Database) UpdateOrderFill(ctx context.Context, id, status string, filledQty, avgPrice float64) error {
	return Writer{x: d.DB}.UpdateOrderFill(ctx, id, status, filledQty, avgPrice)
}

func (d *Database) RecordTransition(ctx context.Context, t Transition) error {
	return Writer{x: d.DB}.RecordTransition(ctx, t)
}

// RecordOrder inserts an order row, replacing a previous row with the same id.
func (w Writer) RecordOrder(ctx context.Context, o OrderRecord) error {
	created := o.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	_, err := w.x.ExecContext(ctx, `
		INSERT OR REPLACE INTO orders (
			id, bracket_id, exchange_order_id, symbol, side, kind, price, qty, status, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		o.ID, o.BracketID, o.ExchangeOrderID, o.Symbol, o.Side, o.Kind, o.Price, o.Qty, o.Status, created, created,
	)
	if err != nil {
		return fmt.Errorf("record order %s: %w", o.ID, err)
	}
	return nil
}

// UpdateOrderFill sets status, filled quantity and average fill price.
func (w Writer) UpdateOrderFill(ctx context.Context, id, status string, filledQty, avgPrice float64) error {
	_, err := w.x.ExecContext(ctx, `
		UPDATE orders
		SET status = ?, filled_qty = ?, avg_price = ?, updated_at = ?
		WHERE id = ?
	`, status, filledQty, avgPrice, time.Now(), id)
	if err != nil {
		return fmt.Errorf("update order %s: %w", id, err)
	}
	return nil
}

// RecordTransition appends a bracket state change.
func (w Writer) RecordTransition(ctx context.Context, t Transition) error {
	at := t.At
	if at.IsZero() {
		at = time.Now()
	}
	_, err := w.x.ExecContext(ctx, `
		INSERT INTO bracket_transitions (bracket_id, symbol, from_state, to_state, detail, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, t.BracketID, t.Symbol, t.From, t.To, t.Detail, at)
	if err != nil {
		return fmt.Errorf("record transition %s->%s: %w", t.From, t.To, err)
	}
	return nil
}
