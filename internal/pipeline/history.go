// Package pipeline orchestrates a reconstruction run: fetch an account's
// fill history from the exchange, aggregate it into trades and positions,
// then fan the results out to the configured sinks (Postgres, the snapshot
// cache, object storage).
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/perptools/perprecap/internal/aggregate"
	"github.com/perptools/perprecap/internal/domain"
	"github.com/perptools/perprecap/internal/platform/pacifica"
)

// lockTTL bounds how long a crashed run can block its account.
const lockTTL = 15 * time.Minute

// Fetcher is the slice of the exchange client the pipeline consumes.
type Fetcher interface {
	ListFillHistory(ctx context.Context, account string, filter pacifica.HistoryFilter) ([]domain.Fill, error)
	ListFundingHistory(ctx context.Context, account string) ([]domain.FundingPayment, error)
	GetPortfolio(ctx context.Context, account, timeRange string) ([]domain.PortfolioPoint, error)
	ListOrderHistory(ctx context.Context, account string, filter pacifica.HistoryFilter) ([]domain.OrderRecord, error)
	ListBalanceHistory(ctx context.Context, account string) ([]domain.BalanceEvent, error)
}

// HistoryPipeline reconstructs trades and positions for accounts. All
// sinks are optional: a nil store, cache, or exporter is skipped.
type HistoryPipeline struct {
	fetcher   Fetcher
	trades    domain.TradeStore
	positions domain.PositionStore
	snapshots domain.SnapshotCache
	locks     domain.LockManager
	exporter  *Exporter
	logger    *slog.Logger
}

// NewHistoryPipeline creates a HistoryPipeline. fetcher and logger are
// required; every other collaborator may be nil.
func NewHistoryPipeline(
	fetcher Fetcher,
	trades domain.TradeStore,
	positions domain.PositionStore,
	snapshots domain.SnapshotCache,
	locks domain.LockManager,
	exporter *Exporter,
	logger *slog.Logger,
) *HistoryPipeline {
	return &HistoryPipeline{
		fetcher:   fetcher,
		trades:    trades,
		positions: positions,
		snapshots: snapshots,
		locks:     locks,
		exporter:  exporter,
		logger:    logger.With(slog.String("component", "history_pipeline")),
	}
}

// Result is the output of one account run.
type Result struct {
	Account     string
	RunID       string
	Fills       []domain.Fill
	Trades      []domain.Trade
	Positions   []domain.Position
	StartedAt   time.Time
	CompletedAt time.Time
}

// OpenPositions counts positions still open at end of history.
func (r *Result) OpenPositions() int {
	n := 0
	for _, p := range r.Positions {
		if p.Status == domain.PositionStatusOpen {
			n++
		}
	}
	return n
}

// RunAccount reconstructs one account's history end to end. The full fill
// list is materialized before aggregation starts; if any page fetch fails
// terminally the whole run aborts with no partial results.
func (p *HistoryPipeline) RunAccount(ctx context.Context, account string, filter pacifica.HistoryFilter) (*Result, error) {
	result := &Result{
		Account:   account,
		RunID:     uuid.New().String(),
		StartedAt: time.Now().UTC(),
	}

	if p.locks != nil {
		unlock, err := p.locks.Acquire(ctx, "history:"+account, lockTTL)
		if err != nil {
			return nil, fmt.Errorf("pipeline: lock account %s: %w", account, err)
		}
		defer unlock()
	}

	fills, err := p.fetcher.ListFillHistory(ctx, account, filter)
	if err != nil {
		return nil, fmt.Errorf("pipeline: fetch fills for %s: %w", account, err)
	}
	result.Fills = fills

	trades := aggregate.GroupFills(fills)
	for i := range trades {
		trades[i].Account = account
	}
	result.Trades = trades

	positions, err := aggregate.TrackPositions(trades)
	if err != nil {
		return nil, fmt.Errorf("pipeline: track positions for %s: %w", account, err)
	}
	for i := range positions {
		positions[i].Account = account
	}
	result.Positions = positions
	result.CompletedAt = time.Now().UTC()

	p.logger.InfoContext(ctx, "history reconstructed",
		slog.String("account", account),
		slog.String("run_id", result.RunID),
		slog.Int("fills", len(fills)),
		slog.Int("trades", len(trades)),
		slog.Int("positions", len(positions)),
		slog.Int("open_positions", result.OpenPositions()),
	)

	if err := p.persist(ctx, result); err != nil {
		return nil, err
	}
	if err := p.export(ctx, result); err != nil {
		return nil, err
	}
	return result, nil
}

// RunAccounts reconstructs several accounts concurrently. Accumulator
// state is per-call, so runs share nothing but the rate limiter inside the
// fetcher.
func (p *HistoryPipeline) RunAccounts(ctx context.Context, accounts []string, filter pacifica.HistoryFilter, parallelism int) ([]*Result, error) {
	if parallelism <= 0 {
		parallelism = 1
	}

	results := make([]*Result, len(accounts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parallelism)

	for i, account := range accounts {
		g.Go(func() error {
			res, err := p.RunAccount(gctx, account, filter)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// persist writes the run's trades and positions and publishes the
// snapshot. Skipped entirely for sinks that are not configured.
func (p *HistoryPipeline) persist(ctx context.Context, res *Result) error {
	if p.trades != nil {
		if err := p.trades.InsertBatch(ctx, res.Trades); err != nil {
			return fmt.Errorf("pipeline: persist trades for %s: %w", res.Account, err)
		}
	}
	if p.positions != nil {
		if err := p.positions.ReplaceForAccount(ctx, res.Account, res.Positions); err != nil {
			return fmt.Errorf("pipeline: persist positions for %s: %w", res.Account, err)
		}
	}
	if p.snapshots != nil {
		if err := p.snapshots.SetSnapshot(ctx, res.Snapshot()); err != nil {
			// Snapshot publication is advisory; the run result stands.
			p.logger.WarnContext(ctx, "snapshot publish failed",
				slog.String("account", res.Account),
				slog.String("error", err.Error()),
			)
		}
	}
	return nil
}

// export uploads CSV renderings of the run to object storage.
func (p *HistoryPipeline) export(ctx context.Context, res *Result) error {
	if p.exporter == nil {
		return nil
	}
	if err := p.exporter.ExportTrades(ctx, res.Account, res.RunID, res.Trades); err != nil {
		return fmt.Errorf("pipeline: export trades for %s: %w", res.Account, err)
	}
	if err := p.exporter.ExportPositions(ctx, res.Account, res.RunID, res.Positions); err != nil {
		return fmt.Errorf("pipeline: export positions for %s: %w", res.Account, err)
	}
	return nil
}

// Snapshot summarizes the run for the snapshot cache and the terminal
// summary line.
func (r *Result) Snapshot() domain.AccountSnapshot {
	var pnl, fees decimal.Decimal
	for _, pos := range r.Positions {
		pnl = pnl.Add(pos.TotalPnL)
		fees = fees.Add(pos.TotalFee)
	}
	return domain.AccountSnapshot{
		Account:       r.Account,
		RunID:         r.RunID,
		FillCount:     len(r.Fills),
		TradeCount:    len(r.Trades),
		PositionCount: len(r.Positions),
		OpenPositions: r.OpenPositions(),
		TotalPnL:      pnl.StringFixed(domain.PricePlaces),
		TotalFees:     fees.StringFixed(domain.AmountPlaces),
		CompletedAt:   r.CompletedAt,
	}
}
