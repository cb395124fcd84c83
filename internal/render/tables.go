// Package render prints run output as aligned terminal tables and writes
// JSON artifacts to the local output directory.
package render

import (
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/perptools/perprecap/internal/domain"
)

const timeLayout = "2006-01-02 15:04:05"

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
}

// Trades prints the reconstructed trades as an aligned table.
func Trades(w io.Writer, trades []domain.Trade) error {
	tw := newTable(w)
	fmt.Fprintln(tw, "SYMBOL\tSIDE\tAMOUNT\tAVG PRICE\tVALUE\tFEE\tPNL\tFILLS\tFIRST FILL")
	for _, t := range trades {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%d\t%s\n",
			t.Symbol,
			t.Side,
			t.TotalAmount.StringFixed(domain.AmountPlaces),
			t.AveragePrice.StringFixed(domain.PricePlaces),
			t.TotalValue.StringFixed(domain.PricePlaces),
			t.TotalFee.StringFixed(domain.AmountPlaces),
			t.TotalPnL.StringFixed(domain.PricePlaces),
			t.FillCount(),
			t.FirstFillAt.Format(timeLayout),
		)
	}
	return tw.Flush()
}

// Positions prints the reconstructed positions as an aligned table. Open
// positions render "N/A" for exit price and PnL percentage.
func Positions(w io.Writer, positions []domain.Position) error {
	tw := newTable(w)
	fmt.Fprintln(tw, "SYMBOL\tDIR\tSTATUS\tOPENED\tDURATION\tENTRY\tEXIT\tSIZE\tPNL\tPNL%\tTRADES")
	for _, p := range positions {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%d\n",
			p.Symbol,
			p.Direction,
			p.Status,
			p.OpenedAt.Format(timeLayout),
			p.Duration().Truncate(time.Second),
			p.EntryPrice.StringFixed(domain.PricePlaces),
			p.ExitPriceString(),
			p.Size.StringFixed(domain.AmountPlaces),
			p.TotalPnL.StringFixed(domain.PricePlaces),
			p.PnLPercentString(),
			p.TradeCount,
		)
	}
	return tw.Flush()
}

// Funding prints funding payments as an aligned table.
func Funding(w io.Writer, payments []domain.FundingPayment) error {
	tw := newTable(w)
	fmt.Fprintln(tw, "SYMBOL\tSIDE\tPAYOUT\tRATE\tTIME")
	for _, f := range payments {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			f.Symbol,
			f.Side,
			f.Payout.StringFixed(domain.AmountPlaces),
			f.Rate.String(),
			f.CreatedAt.Format(timeLayout),
		)
	}
	return tw.Flush()
}

// Orders prints order history as an aligned table.
func Orders(w io.Writer, orders []domain.OrderRecord) error {
	tw := newTable(w)
	fmt.Fprintln(tw, "ORDER ID\tSYMBOL\tSIDE\tTYPE\tSTATUS\tPRICE\tAVG PRICE\tAMOUNT\tFILLED\tCREATED")
	for _, o := range orders {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			strconv.FormatInt(o.OrderID, 10),
			o.Symbol,
			o.Side,
			o.OrderType,
			o.Status,
			o.InitialPrice.StringFixed(domain.PricePlaces),
			o.AveragePrice.StringFixed(domain.PricePlaces),
			o.Amount.StringFixed(domain.AmountPlaces),
			o.FilledAmount.StringFixed(domain.AmountPlaces),
			o.CreatedAt.Format(timeLayout),
		)
	}
	return tw.Flush()
}

// Balances prints balance events as an aligned table.
func Balances(w io.Writer, events []domain.BalanceEvent) error {
	tw := newTable(w)
	fmt.Fprintln(tw, "BALANCE\tEVENT\tTIME")
	for _, b := range events {
		fmt.Fprintf(tw, "%s\t%s\t%s\n",
			b.Balance.StringFixed(domain.AmountPlaces),
			b.EventType,
			b.CreatedAt.Format(timeLayout),
		)
	}
	return tw.Flush()
}

// Portfolio prints the account equity series as an aligned table.
func Portfolio(w io.Writer, points []domain.PortfolioPoint) error {
	tw := newTable(w)
	fmt.Fprintln(tw, "TIME\tEQUITY")
	for _, p := range points {
		fmt.Fprintf(tw, "%s\t%s\n",
			p.Timestamp.Format(timeLayout),
			p.Equity.StringFixed(domain.PricePlaces),
		)
	}
	return tw.Flush()
}

// Summary prints the run totals line printed after the tables.
func Summary(w io.Writer, snap domain.AccountSnapshot) {
	fmt.Fprintf(w, "\n%s: %d fills, %d trades, %d positions (%d open), pnl %s, fees %s\n",
		snap.Account,
		snap.FillCount,
		snap.TradeCount,
		snap.PositionCount,
		snap.OpenPositions,
		snap.TotalPnL,
		snap.TotalFees,
	)
}
