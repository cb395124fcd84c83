package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/perptools/perprecap/internal/domain"
)

// TradeStore implements domain.TradeStore using PostgreSQL.
type TradeStore struct {
	pool *pgxpool.Pool
}

// NewTradeStore creates a TradeStore backed by the given connection pool.
func NewTradeStore(pool *pgxpool.Pool) *TradeStore {
	return &TradeStore{pool: pool}
}

const tradeSelectCols = `account, trade_key, symbol, side, total_amount,
	average_price, total_value, total_fee, total_pnl, entry_price,
	first_fill_at, last_fill_at, fills`

func scanTradeRows(rows pgx.Rows) ([]domain.Trade, error) {
	var trades []domain.Trade
	for rows.Next() {
		var (
			t        domain.Trade
			fillsRaw []byte
		)
		if err := rows.Scan(
			&t.Account, &t.Key, &t.Symbol, &t.Side, &t.TotalAmount,
			&t.AveragePrice, &t.TotalValue, &t.TotalFee, &t.TotalPnL,
			&t.EntryPrice, &t.FirstFillAt, &t.LastFillAt, &fillsRaw,
		); err != nil {
			return nil, err
		}
		if len(fillsRaw) > 0 {
			if err := json.Unmarshal(fillsRaw, &t.Fills); err != nil {
				return nil, fmt.Errorf("decode fills for trade %s: %w", t.Key, err)
			}
		}
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// InsertBatch inserts trades using a pgx batch. Re-runs over the same
// history produce identical rows, so duplicates (same account + trade key)
// are silently skipped via ON CONFLICT DO NOTHING.
func (s *TradeStore) InsertBatch(ctx context.Context, trades []domain.Trade) error {
	if len(trades) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	const query = `
		INSERT INTO trades (
			account, trade_key, symbol, side,
			total_amount, average_price, total_value, total_fee, total_pnl,
			entry_price, first_fill_at, last_fill_at, fills
		) VALUES (
			$1, $2, $3, $4,
			$5, $6, $7, $8, $9,
			$10, $11, $12, $13
		) ON CONFLICT (account, trade_key) DO NOTHING`

	for _, t := range trades {
		fillsRaw, err := json.Marshal(t.Fills)
		if err != nil {
			return fmt.Errorf("postgres: encode fills for trade %s: %w", t.Key, err)
		}
		batch.Queue(query,
			t.Account, t.Key, t.Symbol, t.Side,
			t.TotalAmount, t.AveragePrice, t.TotalValue, t.TotalFee, t.TotalPnL,
			t.EntryPrice, t.FirstFillAt, t.LastFillAt, fillsRaw,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := range trades {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("postgres: insert trade batch item %d: %w", i, err)
		}
	}
	return nil
}

// ListByAccount returns an account's trades, most recent first, with
// pagination and optional symbol/time filtering.
func (s *TradeStore) ListByAccount(ctx context.Context, account string, opts domain.ListOpts) ([]domain.Trade, error) {
	query := `SELECT ` + tradeSelectCols + ` FROM trades WHERE account = $1`
	args := []any{account}
	argIdx := 2

	if opts.Symbol != "" {
		query += fmt.Sprintf(" AND symbol = $%d", argIdx)
		args = append(args, opts.Symbol)
		argIdx++
	}
	if opts.Since != nil {
		query += fmt.Sprintf(" AND first_fill_at >= $%d", argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}
	if opts.Until != nil {
		query += fmt.Sprintf(" AND first_fill_at <= $%d", argIdx)
		args = append(args, *opts.Until)
		argIdx++
	}

	query += " ORDER BY first_fill_at DESC"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list trades by account: %w", err)
	}
	defer rows.Close()

	trades, err := scanTradeRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan trades by account: %w", err)
	}
	return trades, nil
}

// GetLastFillTime returns the most recent last_fill_at for the account, or
// the zero time when the account has no stored trades.
func (s *TradeStore) GetLastFillTime(ctx context.Context, account string) (time.Time, error) {
	var ts *time.Time
	err := s.pool.QueryRow(ctx,
		"SELECT MAX(last_fill_at) FROM trades WHERE account = $1", account).Scan(&ts)
	if err != nil {
		return time.Time{}, fmt.Errorf("postgres: get last fill time: %w", err)
	}
	if ts == nil {
		return time.Time{}, nil
	}
	return *ts, nil
}

// Compile-time interface check.
var _ domain.TradeStore = (*TradeStore)(nil)
