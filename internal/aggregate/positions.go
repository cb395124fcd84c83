package aggregate

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/perptools/perprecap/internal/domain"
)

// closeEpsilon is the size magnitude below which tracked exposure is
// treated as fully closed.
var closeEpsilon = decimal.New(1, -4) // 0.0001

// accumulator tracks one symbol's open exposure between a position's first
// entry and its return to net-zero size.
type accumulator struct {
	symbol    string
	direction domain.Direction
	size      decimal.Decimal
	openedAt  time.Time
	entries   []domain.Trade
	exits     []domain.Trade
}

// TrackPositions consumes trades ordered by first-fill time and emits the
// positions they form. Each symbol has an independent accumulator held in a
// map local to this call: open trades add to size, close trades subtract,
// and when the magnitude drops below closeEpsilon a closed position is
// emitted and the accumulator removed. Symbols still carrying exposure at
// end of stream emit open positions.
//
// A close with no prior open seeds a synthetic accumulator (history begins
// mid-position), a known approximation when the fetched window is
// truncated. A direction conflict while exposure is nonzero returns
// domain.ErrHedgedExposure: simultaneous long+short on one symbol cannot be
// represented by the single-accumulator model.
//
// Results are sorted most-recent-open first.
func TrackPositions(trades []domain.Trade) ([]domain.Position, error) {
	sorted := make([]domain.Trade, len(trades))
	copy(sorted, trades)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].FirstFillAt.Before(sorted[j].FirstFillAt)
	})

	accs := make(map[string]*accumulator)
	var positions []domain.Position

	for _, t := range sorted {
		action, dir, err := t.ParseSide()
		if err != nil {
			return nil, fmt.Errorf("aggregate: classify trade %s: %w", t.Key, err)
		}

		acc := accs[t.Symbol]
		if acc != nil && acc.direction != dir {
			return nil, fmt.Errorf("aggregate: %s flips %s to %s with %s exposure open: %w",
				t.Symbol, acc.direction, dir, acc.size.String(), domain.ErrHedgedExposure)
		}

		switch action {
		case domain.ActionOpen:
			if acc == nil {
				acc = &accumulator{symbol: t.Symbol, direction: dir, openedAt: t.FirstFillAt}
				accs[t.Symbol] = acc
			}
			acc.size = acc.size.Add(t.TotalAmount)
			acc.entries = append(acc.entries, t)

		case domain.ActionClose:
			if acc == nil {
				// The open leg predates the fetched history: seed the
				// accumulator so the close still nets to zero.
				acc = &accumulator{
					symbol:    t.Symbol,
					direction: dir,
					size:      t.TotalAmount,
					openedAt:  t.FirstFillAt,
				}
				accs[t.Symbol] = acc
			}
			acc.size = acc.size.Sub(t.TotalAmount)
			acc.exits = append(acc.exits, t)
		}

		if acc.size.Abs().LessThan(closeEpsilon) {
			positions = append(positions, buildPosition(acc, domain.PositionStatusClosed))
			delete(accs, t.Symbol)
		}
	}

	// Flush symbols still carrying exposure. Collect deterministically:
	// the final sort keys on open time with symbol as tiebreak.
	for _, acc := range accs {
		positions = append(positions, buildPosition(acc, domain.PositionStatusOpen))
	}

	sort.SliceStable(positions, func(i, j int) bool {
		if !positions[i].OpenedAt.Equal(positions[j].OpenedAt) {
			return positions[i].OpenedAt.After(positions[j].OpenedAt)
		}
		return positions[i].Symbol < positions[j].Symbol
	})
	return positions, nil
}

// buildPosition materializes a Position from an accumulator's entry and
// exit trade lists.
func buildPosition(acc *accumulator, status domain.PositionStatus) domain.Position {
	entryAmount, entryValue := sumTrades(acc.entries)
	exitAmount, exitValue := sumTrades(acc.exits)

	var entryPrice decimal.Decimal
	if !entryAmount.IsZero() {
		entryPrice = entryValue.Div(entryAmount)
	}

	var exitPrice *decimal.Decimal
	if len(acc.exits) > 0 && !exitAmount.IsZero() {
		p := exitValue.Div(exitAmount)
		exitPrice = &p
	}

	// Max of the two sides guards against asymmetric partial data.
	size := entryAmount
	if exitAmount.GreaterThan(size) {
		size = exitAmount
	}

	closedAt := acc.openedAt
	if n := len(acc.exits); n > 0 {
		closedAt = acc.exits[n-1].LastFillAt
	}

	var pnl, fee decimal.Decimal
	trades := make([]domain.Trade, 0, len(acc.entries)+len(acc.exits))
	trades = append(trades, acc.entries...)
	trades = append(trades, acc.exits...)
	for _, t := range trades {
		pnl = pnl.Add(t.TotalPnL)
		fee = fee.Add(t.TotalFee)
	}

	var pnlPercent *decimal.Decimal
	if exitPrice != nil && exitPrice.IsPositive() && entryPrice.IsPositive() {
		var pct decimal.Decimal
		if acc.direction == domain.DirectionLong {
			pct = exitPrice.Sub(entryPrice).Div(entryPrice)
		} else {
			pct = entryPrice.Sub(*exitPrice).Div(entryPrice)
		}
		pnlPercent = &pct
	}

	return domain.Position{
		ID:         domain.PositionID(acc.symbol, acc.direction, acc.openedAt),
		Symbol:     acc.symbol,
		Direction:  acc.direction,
		OpenedAt:   acc.openedAt,
		ClosedAt:   closedAt,
		EntryPrice: entryPrice,
		ExitPrice:  exitPrice,
		Size:       size,
		Notional:   size.Mul(entryPrice),
		TotalPnL:   pnl,
		TotalFee:   fee,
		PnLPercent: pnlPercent,
		TradeCount: len(trades),
		Status:     status,
		Trades:     trades,
	}
}

func sumTrades(trades []domain.Trade) (amount, value decimal.Decimal) {
	for _, t := range trades {
		amount = amount.Add(t.TotalAmount)
		value = value.Add(t.TotalAmount.Mul(t.AveragePrice))
	}
	return amount, value
}
