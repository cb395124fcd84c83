package aggregate

import (
	"errors"
	"reflect"
	"testing"

	"github.com/perptools/perprecap/internal/domain"
)

func TestSimpleRoundTrip(t *testing.T) {
	open := fill(1, "1", "BTC", "open_long", "1", "100", 1000)
	cls := fill(2, "2", "BTC", "close_long", "1", "110", 2000)
	cls.PnL = decPtr("10")

	trades := GroupFills([]domain.Fill{open, cls})
	if len(trades) != 2 {
		t.Fatalf("trades = %d, want 2", len(trades))
	}

	positions, err := TrackPositions(trades)
	if err != nil {
		t.Fatalf("TrackPositions: %v", err)
	}
	if len(positions) != 1 {
		t.Fatalf("positions = %d, want 1", len(positions))
	}

	p := positions[0]
	if p.Status != domain.PositionStatusClosed {
		t.Errorf("Status = %s, want closed", p.Status)
	}
	if p.Direction != domain.DirectionLong {
		t.Errorf("Direction = %s, want long", p.Direction)
	}
	if !p.EntryPrice.Equal(dec("100")) {
		t.Errorf("EntryPrice = %s, want 100", p.EntryPrice)
	}
	if p.ExitPrice == nil || !p.ExitPrice.Equal(dec("110")) {
		t.Errorf("ExitPrice = %v, want 110", p.ExitPrice)
	}
	if !p.TotalPnL.Equal(dec("10")) {
		t.Errorf("TotalPnL = %s, want 10", p.TotalPnL)
	}
	if !p.Size.Equal(dec("1")) {
		t.Errorf("Size = %s, want 1", p.Size)
	}
	if p.PnLPercent == nil || !p.PnLPercent.Equal(dec("0.1")) {
		t.Errorf("PnLPercent = %v, want 0.1", p.PnLPercent)
	}
	if p.TradeCount != 2 {
		t.Errorf("TradeCount = %d, want 2", p.TradeCount)
	}
	if !p.OpenedAt.Equal(ts(1000)) || !p.ClosedAt.Equal(ts(2000)) {
		t.Errorf("span = [%v, %v], want [1000ms, 2000ms]", p.OpenedAt, p.ClosedAt)
	}
}

func TestUnmatchedCloseProducesClosedPosition(t *testing.T) {
	cls := fill(1, "1", "SOL", "close_short", "3", "20", 1000)
	cls.PnL = decPtr("-4")

	positions, err := TrackPositions(GroupFills([]domain.Fill{cls}))
	if err != nil {
		t.Fatalf("TrackPositions: %v", err)
	}
	if len(positions) != 1 {
		t.Fatalf("positions = %d, want 1", len(positions))
	}

	p := positions[0]
	if p.Status != domain.PositionStatusClosed {
		t.Errorf("Status = %s, want closed (size nets to zero immediately)", p.Status)
	}
	if p.Direction != domain.DirectionShort {
		t.Errorf("Direction = %s, want short", p.Direction)
	}
	// No entry leg was observed, so entry-derived fields stay empty.
	if !p.EntryPrice.IsZero() {
		t.Errorf("EntryPrice = %s, want 0 with no entry trades", p.EntryPrice)
	}
	if p.PnLPercent != nil {
		t.Errorf("PnLPercent = %v, want nil without a usable entry price", p.PnLPercent)
	}
	if !p.Size.Equal(dec("3")) {
		t.Errorf("Size = %s, want the exit amount 3", p.Size)
	}
}

func TestDanglingOpenStaysOpen(t *testing.T) {
	positions, err := TrackPositions(GroupFills([]domain.Fill{
		fill(1, "1", "ETH", "open_long", "2", "1500", 1000),
	}))
	if err != nil {
		t.Fatalf("TrackPositions: %v", err)
	}
	if len(positions) != 1 {
		t.Fatalf("positions = %d, want 1", len(positions))
	}

	p := positions[0]
	if p.Status != domain.PositionStatusOpen {
		t.Errorf("Status = %s, want open", p.Status)
	}
	if got := p.ExitPriceString(); got != domain.NA {
		t.Errorf("ExitPriceString = %q, want %q", got, domain.NA)
	}
	if got := p.PnLPercentString(); got != domain.NA {
		t.Errorf("PnLPercentString = %q, want %q", got, domain.NA)
	}
	if !p.ClosedAt.Equal(p.OpenedAt) {
		t.Errorf("ClosedAt = %v, want OpenedAt %v with no exits", p.ClosedAt, p.OpenedAt)
	}
	if p.Duration() != 0 {
		t.Errorf("Duration = %v, want 0", p.Duration())
	}
}

func TestPartialCloseKeepsPositionOpen(t *testing.T) {
	positions, err := TrackPositions(GroupFills([]domain.Fill{
		fill(1, "1", "BTC", "open_long", "2", "100", 1000),
		fill(2, "2", "BTC", "close_long", "1", "110", 2000),
	}))
	if err != nil {
		t.Fatalf("TrackPositions: %v", err)
	}
	if len(positions) != 1 {
		t.Fatalf("positions = %d, want 1", len(positions))
	}

	p := positions[0]
	if p.Status != domain.PositionStatusOpen {
		t.Errorf("Status = %s, want open with 1 unit of residual exposure", p.Status)
	}
	// Exit trades exist, so the close timestamp follows the last exit.
	if !p.ClosedAt.Equal(ts(2000)) {
		t.Errorf("ClosedAt = %v, want last exit fill time", p.ClosedAt)
	}
	if p.ExitPrice == nil || !p.ExitPrice.Equal(dec("110")) {
		t.Errorf("ExitPrice = %v, want 110", p.ExitPrice)
	}
	if !p.Size.Equal(dec("2")) {
		t.Errorf("Size = %s, want max(entry, exit) = 2", p.Size)
	}
}

func TestDustBelowEpsilonClosesPosition(t *testing.T) {
	positions, err := TrackPositions(GroupFills([]domain.Fill{
		fill(1, "1", "BTC", "open_long", "1", "100", 1000),
		fill(2, "2", "BTC", "close_long", "0.99995", "110", 2000),
	}))
	if err != nil {
		t.Fatalf("TrackPositions: %v", err)
	}
	if positions[0].Status != domain.PositionStatusClosed {
		t.Errorf("Status = %s, want closed (residual 0.00005 < 0.0001)", positions[0].Status)
	}
}

func TestSymbolsTrackIndependently(t *testing.T) {
	positions, err := TrackPositions(GroupFills([]domain.Fill{
		fill(1, "1", "BTC", "open_long", "1", "100", 1000),
		fill(2, "2", "ETH", "open_short", "5", "1500", 1500),
		fill(3, "3", "BTC", "close_long", "1", "110", 2000),
	}))
	if err != nil {
		t.Fatalf("TrackPositions: %v", err)
	}
	if len(positions) != 2 {
		t.Fatalf("positions = %d, want 2", len(positions))
	}

	// Most-recent-open first.
	if positions[0].Symbol != "ETH" || positions[0].Status != domain.PositionStatusOpen {
		t.Errorf("positions[0] = %s/%s, want open ETH first", positions[0].Symbol, positions[0].Status)
	}
	if positions[1].Symbol != "BTC" || positions[1].Status != domain.PositionStatusClosed {
		t.Errorf("positions[1] = %s/%s, want closed BTC", positions[1].Symbol, positions[1].Status)
	}
}

func TestShortPnLPercentSign(t *testing.T) {
	positions, err := TrackPositions(GroupFills([]domain.Fill{
		fill(1, "1", "ETH", "open_short", "1", "100", 1000),
		fill(2, "2", "ETH", "close_short", "1", "90", 2000),
	}))
	if err != nil {
		t.Fatalf("TrackPositions: %v", err)
	}
	p := positions[0]
	// Short from 100 to 90 is a +10% move.
	if p.PnLPercent == nil || !p.PnLPercent.Equal(dec("0.1")) {
		t.Errorf("PnLPercent = %v, want 0.1", p.PnLPercent)
	}
}

func TestHedgedExposureRejected(t *testing.T) {
	_, err := TrackPositions(GroupFills([]domain.Fill{
		fill(1, "1", "BTC", "open_long", "2", "100", 1000),
		fill(2, "2", "BTC", "open_short", "1", "100", 2000),
	}))
	if !errors.Is(err, domain.ErrHedgedExposure) {
		t.Fatalf("err = %v, want ErrHedgedExposure", err)
	}
}

func TestUnrecognizedSideRejected(t *testing.T) {
	_, err := TrackPositions(GroupFills([]domain.Fill{
		fill(1, "1", "BTC", "buy", "1", "100", 1000),
	}))
	if !errors.Is(err, domain.ErrUnrecognizedSide) {
		t.Fatalf("err = %v, want ErrUnrecognizedSide", err)
	}
}

func TestAggregationIsIdempotent(t *testing.T) {
	fills := []domain.Fill{
		fill(1, "o1", "BTC", "open_long", "1", "100", 1000),
		fill(2, "o1", "BTC", "open_long", "0.5", "101", 1100),
		fill(3, "o2", "BTC", "close_long", "1.5", "105", 2000),
		fill(4, "o3", "ETH", "open_short", "10", "1500", 2500),
	}

	t1 := GroupFills(fills)
	t2 := GroupFills(fills)
	if !reflect.DeepEqual(t1, t2) {
		t.Fatal("GroupFills is not deterministic for identical input")
	}

	p1, err := TrackPositions(t1)
	if err != nil {
		t.Fatalf("TrackPositions: %v", err)
	}
	p2, err := TrackPositions(t2)
	if err != nil {
		t.Fatalf("TrackPositions: %v", err)
	}
	if !reflect.DeepEqual(p1, p2) {
		t.Fatal("TrackPositions is not deterministic for identical input")
	}
}
