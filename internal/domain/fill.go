// Package domain holds the core types shared across perprecap: exchange
// fill events, the trades and positions reconstructed from them, and the
// store/cache interfaces implemented by the infrastructure packages.
package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Action is the open/close half of a fill's side field.
type Action string

const (
	ActionOpen  Action = "open"
	ActionClose Action = "close"
)

// Direction is the long/short half of a fill's side field.
type Direction string

const (
	DirectionLong  Direction = "long"
	DirectionShort Direction = "short"
)

// ParseSide decodes the exchange's stringly-typed side field (e.g.
// "open_long", "close_short") into its action and direction components.
// Unknown values return ErrUnrecognizedSide so callers never silently
// misclassify a fill.
func ParseSide(side string) (Action, Direction, error) {
	var action Action
	switch {
	case strings.HasPrefix(side, "open_"):
		action = ActionOpen
	case strings.HasPrefix(side, "close_"):
		action = ActionClose
	default:
		return "", "", fmt.Errorf("%w: %q", ErrUnrecognizedSide, side)
	}

	switch {
	case strings.Contains(side, string(DirectionLong)):
		return action, DirectionLong, nil
	case strings.Contains(side, string(DirectionShort)):
		return action, DirectionShort, nil
	}
	return "", "", fmt.Errorf("%w: %q", ErrUnrecognizedSide, side)
}

// Fill is one exchange-reported execution event. Fills are immutable once
// fetched; the aggregation stages only read them.
type Fill struct {
	HistoryID  int64
	OrderID    string // empty when the exchange reported no order id
	Symbol     string
	Side       string // raw side string, e.g. "open_long"
	Amount     decimal.Decimal
	Price      decimal.Decimal
	EntryPrice *decimal.Decimal
	Fee        decimal.Decimal
	PnL        *decimal.Decimal // present only on closing fills
	EventType  string
	Cause      string // e.g. liquidation marker
	CreatedAt  time.Time
}

// GroupKey returns the key under which this fill is grouped into a trade:
// the order id when present, otherwise a synthetic singleton key derived
// from the history id so every fill belongs to exactly one group.
func (f Fill) GroupKey() string {
	if f.OrderID != "" {
		return f.OrderID
	}
	return "fill-" + strconv.FormatInt(f.HistoryID, 10)
}

// Value is the notional of this single fill (amount * price).
func (f Fill) Value() decimal.Decimal {
	return f.Amount.Mul(f.Price)
}
