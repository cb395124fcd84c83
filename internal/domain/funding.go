package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// FundingPayment is one funding-rate settlement against an open position.
// Passthrough data: fetched and exported, never aggregated.
type FundingPayment struct {
	HistoryID int64
	Symbol    string
	Side      string // position side at settlement, "long" or "short"
	Payout    decimal.Decimal
	Rate      decimal.Decimal
	CreatedAt time.Time
}
