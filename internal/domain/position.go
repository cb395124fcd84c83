package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// PositionStatus tracks whether a position is open or closed.
type PositionStatus string

const (
	PositionStatusOpen   PositionStatus = "open"
	PositionStatusClosed PositionStatus = "closed"
)

// NA is the rendered sentinel for values that do not apply, such as the
// exit price of a position that is still open.
const NA = "N/A"

// Decimal places used when rendering monetary values: quantities and fees
// carry 8 places, prices and PnL carry 6, matching the source data.
const (
	AmountPlaces = 8
	PricePlaces  = 6
)

// Position is the aggregate of the trades for one symbol spanning from the
// first entry to net-zero exposure, or to end of stream while still open.
type Position struct {
	ID         string // symbol + direction + open timestamp
	Account    string
	Symbol     string
	Direction  Direction
	OpenedAt   time.Time
	ClosedAt   time.Time // equal to OpenedAt when open with no exits
	EntryPrice decimal.Decimal
	ExitPrice  *decimal.Decimal // nil while no exit trades exist
	Size       decimal.Decimal  // max of summed entry and exit amounts
	Notional   decimal.Decimal  // Size * EntryPrice
	TotalPnL   decimal.Decimal
	TotalFee   decimal.Decimal
	PnLPercent *decimal.Decimal // nil when no usable exit price
	TradeCount int
	Status     PositionStatus
	Trades     []Trade // entry and exit trades in processing order
}

// Duration is the time from open to close. Open positions with no exit
// trades report zero.
func (p Position) Duration() time.Duration {
	return p.ClosedAt.Sub(p.OpenedAt)
}

// ExitPriceString renders the exit price at price precision, or "N/A" for
// positions that never saw an exit.
func (p Position) ExitPriceString() string {
	if p.ExitPrice == nil {
		return NA
	}
	return p.ExitPrice.StringFixed(PricePlaces)
}

// PnLPercentString renders the relative PnL at price precision, or "N/A"
// when it could not be computed.
func (p Position) PnLPercentString() string {
	if p.PnLPercent == nil {
		return NA
	}
	return p.PnLPercent.StringFixed(PricePlaces)
}

// PositionID builds the canonical position identity from its defining
// attributes.
func PositionID(symbol string, dir Direction, openedAt time.Time) string {
	return fmt.Sprintf("%s-%s-%d", symbol, dir, openedAt.UnixMilli())
}
