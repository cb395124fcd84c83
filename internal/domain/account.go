package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// BalanceEvent is one entry from the account balance history: a balance
// level plus the event that produced it (deposit, withdrawal, settlement).
type BalanceEvent struct {
	Balance   decimal.Decimal
	EventType string
	CreatedAt time.Time
}

// PortfolioPoint is one sample of total account equity over time, as
// returned by the portfolio endpoint for a requested time range.
type PortfolioPoint struct {
	Equity    decimal.Decimal
	Timestamp time.Time
}
