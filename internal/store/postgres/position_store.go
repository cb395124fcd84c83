package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/perptools/perprecap/internal/domain"
)

// PositionStore implements domain.PositionStore using PostgreSQL.
type PositionStore struct {
	pool *pgxpool.Pool
}

// NewPositionStore creates a PositionStore backed by the given pool.
func NewPositionStore(pool *pgxpool.Pool) *PositionStore {
	return &PositionStore{pool: pool}
}

const positionSelectCols = `id, account, symbol, direction, status,
	opened_at, closed_at, entry_price, exit_price, size, notional,
	total_pnl, total_fee, pnl_percent, trade_count`

func scanPositionRows(rows pgx.Rows) ([]domain.Position, error) {
	var positions []domain.Position
	for rows.Next() {
		var p domain.Position
		if err := rows.Scan(
			&p.ID, &p.Account, &p.Symbol, &p.Direction, &p.Status,
			&p.OpenedAt, &p.ClosedAt, &p.EntryPrice, &p.ExitPrice,
			&p.Size, &p.Notional, &p.TotalPnL, &p.TotalFee,
			&p.PnLPercent, &p.TradeCount,
		); err != nil {
			return nil, err
		}
		positions = append(positions, p)
	}
	return positions, rows.Err()
}

// ReplaceForAccount atomically swaps the account's stored positions for the
// given set. Positions are rebuilt from scratch every run, so rows from the
// previous run must not survive the swap.
func (s *PositionStore) ReplaceForAccount(ctx context.Context, account string, positions []domain.Position) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin replace positions: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "DELETE FROM positions WHERE account = $1", account); err != nil {
		return fmt.Errorf("postgres: clear positions for %s: %w", account, err)
	}

	const query = `
		INSERT INTO positions (
			id, account, symbol, direction, status,
			opened_at, closed_at, entry_price, exit_price, size,
			notional, total_pnl, total_fee, pnl_percent, trade_count
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9, $10,
			$11, $12, $13, $14, $15
		)`

	for _, p := range positions {
		if _, err := tx.Exec(ctx, query,
			p.ID, account, p.Symbol, p.Direction, p.Status,
			p.OpenedAt, p.ClosedAt, p.EntryPrice, p.ExitPrice, p.Size,
			p.Notional, p.TotalPnL, p.TotalFee, p.PnLPercent, p.TradeCount,
		); err != nil {
			return fmt.Errorf("postgres: insert position %s: %w", p.ID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit replace positions: %w", err)
	}
	return nil
}

// ListByAccount returns an account's positions, most recently opened
// first, with pagination and optional symbol/time filtering.
func (s *PositionStore) ListByAccount(ctx context.Context, account string, opts domain.ListOpts) ([]domain.Position, error) {
	query := `SELECT ` + positionSelectCols + ` FROM positions WHERE account = $1`
	args := []any{account}
	argIdx := 2

	if opts.Symbol != "" {
		query += fmt.Sprintf(" AND symbol = $%d", argIdx)
		args = append(args, opts.Symbol)
		argIdx++
	}
	if opts.Since != nil {
		query += fmt.Sprintf(" AND opened_at >= $%d", argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}
	if opts.Until != nil {
		query += fmt.Sprintf(" AND opened_at <= $%d", argIdx)
		args = append(args, *opts.Until)
		argIdx++
	}

	query += " ORDER BY opened_at DESC"

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
		return nil, fmt.Errorf("postgres: list positions by account: %w", err)
	}
	defer rows.Close()

	positions, err := scanPositionRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan positions by account: %w", err)
	}
	return positions, nil
}

// CountOpen returns how many of the account's stored positions are open.
func (s *PositionStore) CountOpen(ctx context.Context, account string) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx,
		"SELECT COUNT(*) FROM positions WHERE account = $1 AND status = $2",
		account, domain.PositionStatusOpen,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("postgres: count open positions: %w", err)
	}
	return n, nil
}

// Compile-time interface check.
var _ domain.PositionStore = (*PositionStore)(nil)
