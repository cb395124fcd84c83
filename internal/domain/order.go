package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderRecord is one historical order as reported by the exchange's order
// history endpoint. Passthrough data: fetched and exported, never
// aggregated (trades are reconstructed from fills, not from this record).
type OrderRecord struct {
	OrderID       int64
	ClientOrderID string
	Symbol        string
	Side          string
	OrderType     string
	Status        string
	InitialPrice  decimal.Decimal
	AveragePrice  decimal.Decimal
	Amount        decimal.Decimal
	FilledAmount  decimal.Decimal
	Fee           decimal.Decimal
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
