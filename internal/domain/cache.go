package domain

import (
	"context"
	"time"
)

// AccountSnapshot is the cached summary of an account's latest
// reconstruction run, published for other tooling to read cheaply.
type AccountSnapshot struct {
	Account       string    `json:"account"`
	RunID         string    `json:"run_id"`
	FillCount     int       `json:"fill_count"`
	TradeCount    int       `json:"trade_count"`
	PositionCount int       `json:"position_count"`
	OpenPositions int       `json:"open_positions"`
	TotalPnL      string    `json:"total_pnl"`
	TotalFees     string    `json:"total_fees"`
	CompletedAt   time.Time `json:"completed_at"`
}

// SnapshotCache stores the latest per-account run summary.
type SnapshotCache interface {
	SetSnapshot(ctx context.Context, snap AccountSnapshot) error
	GetSnapshot(ctx context.Context, account string) (AccountSnapshot, error)
}

// LockManager provides distributed locking, used to keep two concurrent
// runs from processing the same account.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}
