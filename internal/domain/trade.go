package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Trade is the aggregate of every fill sharing one order id (or a singleton
// group when the exchange reported no order id). Totals are exact decimal
// sums over the constituent fills; AveragePrice is volume-weighted.
type Trade struct {
	Key          string // order id, or the synthetic singleton key
	Account      string
	Symbol       string
	Side         string // raw side of the first fill, e.g. "open_long"
	TotalAmount  decimal.Decimal
	AveragePrice decimal.Decimal // TotalValue / TotalAmount, 0 when amount is 0
	TotalValue   decimal.Decimal
	TotalFee     decimal.Decimal
	TotalPnL     decimal.Decimal
	EntryPrice   *decimal.Decimal // exchange-reported, from the first fill
	FirstFillAt  time.Time
	LastFillAt   time.Time
	Fills        []Fill // time-ordered
}

// FillCount reports how many fills the trade aggregates.
func (t Trade) FillCount() int {
	return len(t.Fills)
}

// Side classification for the position tracker. Errors propagate from
// ParseSide when the side string is unrecognized.
func (t Trade) ParseSide() (Action, Direction, error) {
	return ParseSide(t.Side)
}
