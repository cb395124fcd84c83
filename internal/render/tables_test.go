package render

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/perptools/perprecap/internal/domain"
)

func TestPositionsRendersSentinelsForOpen(t *testing.T) {
	open := domain.Position{
		ID:        "ETH-long-1000",
		Symbol:    "ETH",
		Direction: domain.DirectionLong,
		Status:    domain.PositionStatusOpen,
		OpenedAt:  time.UnixMilli(1000).UTC(),
		ClosedAt:  time.UnixMilli(1000).UTC(),
		Size:      decimal.RequireFromString("5"),
	}

	var buf bytes.Buffer
	if err := Positions(&buf, []domain.Position{open}); err != nil {
		t.Fatalf("Positions: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, domain.NA) {
		t.Errorf("open position table missing %q:\n%s", domain.NA, out)
	}
	if !strings.Contains(out, "ETH") {
		t.Errorf("table missing symbol:\n%s", out)
	}
}

func TestTradesRendersFixedPlaces(t *testing.T) {
	tr := domain.Trade{
		Symbol:       "BTC",
		Side:         "open_long",
		TotalAmount:  decimal.RequireFromString("1.5"),
		AveragePrice: decimal.RequireFromString("100"),
		TotalValue:   decimal.RequireFromString("150"),
		FirstFillAt:  time.UnixMilli(1000).UTC(),
		LastFillAt:   time.UnixMilli(1000).UTC(),
	}

	var buf bytes.Buffer
	if err := Trades(&buf, []domain.Trade{tr}); err != nil {
		t.Fatalf("Trades: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "1.50000000") {
		t.Errorf("amount not rendered to 8 places:\n%s", out)
	}
	if !strings.Contains(out, "100.000000") {
		t.Errorf("price not rendered to 6 places:\n%s", out)
	}
}

func TestSummaryPrintsRunTotals(t *testing.T) {
	snap := domain.AccountSnapshot{
		Account:       "0xabc",
		FillCount:     3,
		TradeCount:    3,
		PositionCount: 2,
		OpenPositions: 1,
		TotalPnL:      "10.000000",
		TotalFees:     "0.30000000",
	}

	var buf bytes.Buffer
	Summary(&buf, snap)
	out := buf.String()
	for _, want := range []string{"0xabc", "3 fills", "2 positions", "1 open", "10.000000"} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q:\n%s", want, out)
		}
	}
}

func TestWriteJSON(t *testing.T) {
	dir := t.TempDir()

	path, err := WriteJSON(dir, "0xabc", "trades", []string{"a", "b"})
	if err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}
	want := filepath.Join(dir, "0xabc", "trades.json")
	if path != want {
		t.Errorf("path = %q, want %q", path, want)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading output: %v", err)
	}
	if !strings.Contains(string(data), `"a"`) {
		t.Errorf("output missing payload: %s", data)
	}
}
