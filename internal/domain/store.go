package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
	Symbol string
}

// TradeStore persists reconstructed trades.
type TradeStore interface {
	InsertBatch(ctx context.Context, trades []Trade) error
	ListByAccount(ctx context.Context, account string, opts ListOpts) ([]Trade, error)
	GetLastFillTime(ctx context.Context, account string) (time.Time, error)
}

// PositionStore persists reconstructed positions. ReplaceForAccount swaps
// the stored set atomically: each run rebuilds positions from the full
// history, so stale rows from the previous run must not survive.
type PositionStore interface {
	ReplaceForAccount(ctx context.Context, account string, positions []Position) error
	ListByAccount(ctx context.Context, account string, opts ListOpts) ([]Position, error)
	CountOpen(ctx context.Context, account string) (int64, error)
}
