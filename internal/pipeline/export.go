package pipeline

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/perptools/perprecap/internal/domain"
)

// Exporter renders run output to CSV and uploads it to object storage
// under runs/{account}/{runID}/.
type Exporter struct {
	writer domain.BlobWriter
	logger *slog.Logger
}

// NewExporter creates an Exporter that uploads through the given writer.
func NewExporter(writer domain.BlobWriter, logger *slog.Logger) *Exporter {
	return &Exporter{
		writer: writer,
		logger: logger.With(slog.String("component", "exporter")),
	}
}

// multipartThreshold is the artifact size above which uploads go through
// the multipart manager instead of a single PutObject.
const multipartThreshold = 8 * 1024 * 1024

func (e *Exporter) put(ctx context.Context, account, runID, name string, data []byte) error {
	path := fmt.Sprintf("runs/%s/%s/%s", account, runID, name)
	var err error
	if len(data) > multipartThreshold {
		err = e.writer.PutMultipart(ctx, path, bytes.NewReader(data), multipartThreshold)
	} else {
		err = e.writer.Put(ctx, path, bytes.NewReader(data), "text/csv")
	}
	if err != nil {
		return fmt.Errorf("upload %s: %w", path, err)
	}
	e.logger.Debug("export uploaded",
		slog.String("path", path),
		slog.Int("bytes", len(data)),
	)
	return nil
}

// ExportTrades uploads the reconstructed trades as CSV.
func (e *Exporter) ExportTrades(ctx context.Context, account, runID string, trades []domain.Trade) error {
	data, err := tradesToCSV(trades)
	if err != nil {
		return err
	}
	return e.put(ctx, account, runID, "trades.csv", data)
}

// ExportPositions uploads the reconstructed positions as CSV.
func (e *Exporter) ExportPositions(ctx context.Context, account, runID string, positions []domain.Position) error {
	data, err := positionsToCSV(positions)
	if err != nil {
		return err
	}
	return e.put(ctx, account, runID, "positions.csv", data)
}

// ExportFunding uploads funding history as CSV.
func (e *Exporter) ExportFunding(ctx context.Context, account, runID string, payments []domain.FundingPayment) error {
	data, err := fundingToCSV(payments)
	if err != nil {
		return err
	}
	return e.put(ctx, account, runID, "funding.csv", data)
}

// ExportOrders uploads order history as CSV.
func (e *Exporter) ExportOrders(ctx context.Context, account, runID string, orders []domain.OrderRecord) error {
	data, err := ordersToCSV(orders)
	if err != nil {
		return err
	}
	return e.put(ctx, account, runID, "orders.csv", data)
}

// ExportBalances uploads balance history as CSV.
func (e *Exporter) ExportBalances(ctx context.Context, account, runID string, events []domain.BalanceEvent) error {
	data, err := balancesToCSV(events)
	if err != nil {
		return err
	}
	return e.put(ctx, account, runID, "balances.csv", data)
}

// ExportPortfolio uploads the equity series as CSV.
func (e *Exporter) ExportPortfolio(ctx context.Context, account, runID string, points []domain.PortfolioPoint) error {
	data, err := portfolioToCSV(points)
	if err != nil {
		return err
	}
	return e.put(ctx, account, runID, "portfolio.csv", data)
}

// --------------------------------------------------------------------------
// CSV rendering. Amounts and fees carry 8 decimal places, prices and PnL 6.
// --------------------------------------------------------------------------

func writeCSV(header []string, rows [][]string) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write(header); err != nil {
		return nil, fmt.Errorf("writing CSV header: %w", err)
	}
	for _, row := range rows {
		if err := w.Write(row); err != nil {
			return nil, fmt.Errorf("writing CSV row: %w", err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flushing CSV writer: %w", err)
	}
	return buf.Bytes(), nil
}

func tradesToCSV(trades []domain.Trade) ([]byte, error) {
	header := []string{
		"trade_key", "symbol", "side", "total_amount", "average_price",
		"total_value", "total_fee", "total_pnl", "fill_count",
		"first_fill_at", "last_fill_at",
	}
	rows := make([][]string, 0, len(trades))
	for _, t := range trades {
		rows = append(rows, []string{
			t.Key,
			t.Symbol,
			t.Side,
			t.TotalAmount.StringFixed(domain.AmountPlaces),
			t.AveragePrice.StringFixed(domain.PricePlaces),
			t.TotalValue.StringFixed(domain.PricePlaces),
			t.TotalFee.StringFixed(domain.AmountPlaces),
			t.TotalPnL.StringFixed(domain.PricePlaces),
			strconv.Itoa(t.FillCount()),
			t.FirstFillAt.Format(time.RFC3339),
			t.LastFillAt.Format(time.RFC3339),
		})
	}
	return writeCSV(header, rows)
}

func positionsToCSV(positions []domain.Position) ([]byte, error) {
	header := []string{
		"id", "symbol", "direction", "status", "opened_at", "closed_at",
		"duration", "entry_price", "exit_price", "size", "notional",
		"total_pnl", "total_fee", "pnl_percentage", "trade_count",
	}
	rows := make([][]string, 0, len(positions))
	for _, p := range positions {
		rows = append(rows, []string{
			p.ID,
			p.Symbol,
			string(p.Direction),
			string(p.Status),
			p.OpenedAt.Format(time.RFC3339),
			p.ClosedAt.Format(time.RFC3339),
			p.Duration().String(),
			p.EntryPrice.StringFixed(domain.PricePlaces),
			p.ExitPriceString(),
			p.Size.StringFixed(domain.AmountPlaces),
			p.Notional.StringFixed(domain.PricePlaces),
			p.TotalPnL.StringFixed(domain.PricePlaces),
			p.TotalFee.StringFixed(domain.AmountPlaces),
			p.PnLPercentString(),
			strconv.Itoa(p.TradeCount),
		})
	}
	return writeCSV(header, rows)
}

func fundingToCSV(payments []domain.FundingPayment) ([]byte, error) {
	header := []string{"history_id", "symbol", "side", "payout", "rate", "created_at"}
	rows := make([][]string, 0, len(payments))
	for _, f := range payments {
		rows = append(rows, []string{
			strconv.FormatInt(f.HistoryID, 10),
			f.Symbol,
			f.Side,
			f.Payout.StringFixed(domain.AmountPlaces),
			f.Rate.String(),
			f.CreatedAt.Format(time.RFC3339),
		})
	}
	return writeCSV(header, rows)
}

func ordersToCSV(orders []domain.OrderRecord) ([]byte, error) {
	header := []string{
		"order_id", "client_order_id", "symbol", "side", "order_type",
		"status", "initial_price", "average_price", "amount",
		"filled_amount", "fee", "created_at", "updated_at",
	}
	rows := make([][]string, 0, len(orders))
	for _, o := range orders {
		rows = append(rows, []string{
			strconv.FormatInt(o.OrderID, 10),
			o.ClientOrderID,
			o.Symbol,
			o.Side,
			o.OrderType,
			o.Status,
			o.InitialPrice.StringFixed(domain.PricePlaces),
			o.AveragePrice.StringFixed(domain.PricePlaces),
			o.Amount.StringFixed(domain.AmountPlaces),
			o.FilledAmount.StringFixed(domain.AmountPlaces),
			o.Fee.StringFixed(domain.AmountPlaces),
			o.CreatedAt.Format(time.RFC3339),
			o.UpdatedAt.Format(time.RFC3339),
		})
	}
	return writeCSV(header, rows)
}

func balancesToCSV(events []domain.BalanceEvent) ([]byte, error) {
	header := []string{"balance", "event_type", "created_at"}
	rows := make([][]string, 0, len(events))
	for _, b := range events {
		rows = append(rows, []string{
			b.Balance.StringFixed(domain.AmountPlaces),
			b.EventType,
			b.CreatedAt.Format(time.RFC3339),
		})
	}
	return writeCSV(header, rows)
}

func portfolioToCSV(points []domain.PortfolioPoint) ([]byte, error) {
	header := []string{"timestamp", "account_equity"}
	rows := make([][]string, 0, len(points))
	for _, p := range points {
		rows = append(rows, []string{
			p.Timestamp.Format(time.RFC3339),
			p.Equity.StringFixed(domain.PricePlaces),
		})
	}
	return writeCSV(header, rows)
}
