package aggregate

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/perptools/perprecap/internal/domain"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

func ts(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func fill(historyID int64, orderID, symbol, side, amount, price string, createdMs int64) domain.Fill {
	return domain.Fill{
		HistoryID: historyID,
		OrderID:   orderID,
		Symbol:    symbol,
		Side:      side,
		Amount:    dec(amount),
		Price:     dec(price),
		CreatedAt: ts(createdMs),
	}
}

func TestGroupFillsIsAPartition(t *testing.T) {
	fills := []domain.Fill{
		fill(1, "o1", "BTC", "open_long", "0.5", "100", 1000),
		fill(2, "o2", "ETH", "open_short", "2", "50", 1500),
		fill(3, "o1", "BTC", "open_long", "0.5", "102", 2000),
		fill(4, "", "BTC", "close_long", "1", "110", 3000),
	}

	trades := GroupFills(fills)

	seen := make(map[int64]int)
	total := 0
	for _, tr := range trades {
		for _, f := range tr.Fills {
			seen[f.HistoryID]++
			total++
		}
	}
	if total != len(fills) {
		t.Fatalf("fills across trades = %d, want %d", total, len(fills))
	}
	for id, n := range seen {
		if n != 1 {
			t.Errorf("fill %d appears %d times, want exactly once", id, n)
		}
	}
}

func TestGroupFillsVolumeWeightedPrice(t *testing.T) {
	fills := []domain.Fill{
		fill(1, "o1", "BTC", "open_long", "1", "100", 1000),
		fill(2, "o1", "BTC", "open_long", "3", "120", 2000),
	}

	trades := GroupFills(fills)
	if len(trades) != 1 {
		t.Fatalf("trades = %d, want 1", len(trades))
	}

	tr := trades[0]
	if !tr.TotalAmount.Equal(dec("4")) {
		t.Errorf("TotalAmount = %s, want 4", tr.TotalAmount)
	}
	if !tr.TotalValue.Equal(dec("460")) {
		t.Errorf("TotalValue = %s, want 460", tr.TotalValue)
	}
	if !tr.AveragePrice.Equal(dec("115")) {
		t.Errorf("AveragePrice = %s, want 115", tr.AveragePrice)
	}
	if !tr.TotalAmount.Mul(tr.AveragePrice).Equal(tr.TotalValue) {
		t.Errorf("value invariant broken: %s * %s != %s",
			tr.TotalAmount, tr.AveragePrice, tr.TotalValue)
	}
	if tr.FillCount() != 2 {
		t.Errorf("FillCount = %d, want 2", tr.FillCount())
	}
	if !tr.FirstFillAt.Equal(ts(1000)) || !tr.LastFillAt.Equal(ts(2000)) {
		t.Errorf("fill span = [%v, %v], want [1000ms, 2000ms]", tr.FirstFillAt, tr.LastFillAt)
	}
}

func TestGroupFillsSortsByCreatedAtBeforeGrouping(t *testing.T) {
	// Later fill supplied first: the group's side/symbol must come from
	// the chronologically first fill, not the first in input order.
	fills := []domain.Fill{
		fill(2, "o1", "BTC", "close_long", "1", "110", 2000),
		fill(1, "o1", "BTC", "open_long", "1", "100", 1000),
	}

	trades := GroupFills(fills)
	if len(trades) != 1 {
		t.Fatalf("trades = %d, want 1", len(trades))
	}
	if trades[0].Side != "open_long" {
		t.Errorf("Side = %q, want side of earliest fill %q", trades[0].Side, "open_long")
	}
	if trades[0].Fills[0].HistoryID != 1 {
		t.Errorf("first constituent fill = %d, want 1", trades[0].Fills[0].HistoryID)
	}
}

func TestGroupFillsFirstAppearanceOrder(t *testing.T) {
	fills := []domain.Fill{
		fill(1, "o1", "BTC", "open_long", "1", "100", 1000),
		fill(2, "o2", "ETH", "open_long", "1", "50", 1100),
		fill(3, "o1", "BTC", "open_long", "1", "101", 1200),
	}

	trades := GroupFills(fills)
	if len(trades) != 2 {
		t.Fatalf("trades = %d, want 2", len(trades))
	}
	if trades[0].Key != "o1" || trades[1].Key != "o2" {
		t.Errorf("emission order = [%s, %s], want [o1, o2]", trades[0].Key, trades[1].Key)
	}
}

func TestGroupFillsSingletonWithoutOrderID(t *testing.T) {
	fills := []domain.Fill{
		fill(7, "", "BTC", "open_long", "1", "100", 1000),
		fill(8, "", "BTC", "open_long", "1", "100", 1000),
	}

	trades := GroupFills(fills)
	if len(trades) != 2 {
		t.Fatalf("trades = %d, want 2 singleton groups", len(trades))
	}
}

func TestGroupFillsAccumulatesFeeAndPnL(t *testing.T) {
	f1 := fill(1, "o1", "BTC", "close_long", "1", "110", 1000)
	f1.Fee = dec("0.05")
	f1.PnL = decPtr("10")
	f2 := fill(2, "o1", "BTC", "close_long", "1", "112", 2000)
	f2.Fee = dec("0.06")
	f2.PnL = decPtr("12")

	trades := GroupFills([]domain.Fill{f1, f2})
	if len(trades) != 1 {
		t.Fatalf("trades = %d, want 1", len(trades))
	}
	if !trades[0].TotalFee.Equal(dec("0.11")) {
		t.Errorf("TotalFee = %s, want 0.11", trades[0].TotalFee)
	}
	if !trades[0].TotalPnL.Equal(dec("22")) {
		t.Errorf("TotalPnL = %s, want 22", trades[0].TotalPnL)
	}
}

func TestGroupFillsZeroAmountPriceIsZero(t *testing.T) {
	trades := GroupFills([]domain.Fill{
		fill(1, "o1", "BTC", "open_long", "0", "100", 1000),
	})
	if !trades[0].AveragePrice.IsZero() {
		t.Errorf("AveragePrice = %s, want 0 for zero total amount", trades[0].AveragePrice)
	}
}
