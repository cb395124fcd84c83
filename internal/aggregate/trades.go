// Package aggregate reconstructs order- and position-level structure from a
// flat, chronologically-ordered stream of exchange fill events. Grouping is
// heuristic: fills share a trade through their order id, and positions are
// inferred from open_*/close_* side conventions, not authoritative ids.
package aggregate

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/perptools/perprecap/internal/domain"
)

// GroupFills partitions a fill stream into trades. Fills are stable-sorted
// ascending by creation time, then grouped by order id (singleton groups
// for fills without one). Every fill lands in exactly one trade. Trades are
// emitted in order of each group's first appearance.
func GroupFills(fills []domain.Fill) []domain.Trade {
	sorted := make([]domain.Fill, len(fills))
	copy(sorted, fills)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].CreatedAt.Before(sorted[j].CreatedAt)
	})

	var keys []string
	groups := make(map[string][]domain.Fill)
	for _, f := range sorted {
		k := f.GroupKey()
		if _, ok := groups[k]; !ok {
			keys = append(keys, k)
		}
		groups[k] = append(groups[k], f)
	}

	trades := make([]domain.Trade, 0, len(keys))
	for _, k := range keys {
		trades = append(trades, buildTrade(k, groups[k]))
	}
	return trades
}

// buildTrade aggregates one time-ordered fill group. The side, symbol and
// exchange-reported entry price come from the first fill; totals are exact
// decimal sums; the average price is volume-weighted.
func buildTrade(key string, fills []domain.Fill) domain.Trade {
	first := fills[0]
	t := domain.Trade{
		Key:         key,
		Symbol:      first.Symbol,
		Side:        first.Side,
		EntryPrice:  first.EntryPrice,
		FirstFillAt: first.CreatedAt,
		LastFillAt:  fills[len(fills)-1].CreatedAt,
		Fills:       fills,
	}

	var amount, value, fee, pnl decimal.Decimal
	for _, f := range fills {
		amount = amount.Add(f.Amount)
		value = value.Add(f.Value())
		fee = fee.Add(f.Fee)
		if f.PnL != nil {
			pnl = pnl.Add(*f.PnL)
		}
	}

	t.TotalAmount = amount
	t.TotalValue = value
	t.TotalFee = fee
	t.TotalPnL = pnl
	if !amount.IsZero() {
		t.AveragePrice = value.Div(amount)
	}
	return t
}
