package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/perptools/perprecap/internal/domain"
	"github.com/perptools/perprecap/internal/platform/pacifica"
)

// The passthrough runs reuse the same fetch machinery as the history run
// but perform no aggregation: the datasets are fetched, logged, and
// exported as-is.

// RunFunding fetches and exports the account's funding history.
func (p *HistoryPipeline) RunFunding(ctx context.Context, account string) ([]domain.FundingPayment, error) {
	payments, err := p.fetcher.ListFundingHistory(ctx, account)
	if err != nil {
		return nil, fmt.Errorf("pipeline: fetch funding for %s: %w", account, err)
	}
	p.logger.InfoContext(ctx, "funding history fetched",
		slog.String("account", account),
		slog.Int("payments", len(payments)),
	)

	if p.exporter != nil {
		if err := p.exporter.ExportFunding(ctx, account, uuid.New().String(), payments); err != nil {
			return nil, fmt.Errorf("pipeline: export funding for %s: %w", account, err)
		}
	}
	return payments, nil
}

// RunPortfolio fetches and exports the account's equity series.
func (p *HistoryPipeline) RunPortfolio(ctx context.Context, account, timeRange string) ([]domain.PortfolioPoint, error) {
	points, err := p.fetcher.GetPortfolio(ctx, account, timeRange)
	if err != nil {
		return nil, fmt.Errorf("pipeline: fetch portfolio for %s: %w", account, err)
	}
	p.logger.InfoContext(ctx, "portfolio fetched",
		slog.String("account", account),
		slog.String("time_range", timeRange),
		slog.Int("points", len(points)),
	)

	if p.exporter != nil {
		if err := p.exporter.ExportPortfolio(ctx, account, uuid.New().String(), points); err != nil {
			return nil, fmt.Errorf("pipeline: export portfolio for %s: %w", account, err)
		}
	}
	return points, nil
}

// RunOrders fetches and exports the account's order history.
func (p *HistoryPipeline) RunOrders(ctx context.Context, account string, filter pacifica.HistoryFilter) ([]domain.OrderRecord, error) {
	orders, err := p.fetcher.ListOrderHistory(ctx, account, filter)
	if err != nil {
		return nil, fmt.Errorf("pipeline: fetch orders for %s: %w", account, err)
	}
	p.logger.InfoContext(ctx, "order history fetched",
		slog.String("account", account),
		slog.Int("orders", len(orders)),
	)

	if p.exporter != nil {
		if err := p.exporter.ExportOrders(ctx, account, uuid.New().String(), orders); err != nil {
			return nil, fmt.Errorf("pipeline: export orders for %s: %w", account, err)
		}
	}
	return orders, nil
}

// RunBalances fetches and exports the account's balance event history.
func (p *HistoryPipeline) RunBalances(ctx context.Context, account string) ([]domain.BalanceEvent, error) {
	events, err := p.fetcher.ListBalanceHistory(ctx, account)
	if err != nil {
		return nil, fmt.Errorf("pipeline: fetch balances for %s: %w", account, err)
	}
	p.logger.InfoContext(ctx, "balance history fetched",
		slog.String("account", account),
		slog.Int("events", len(events)),
	)

	if p.exporter != nil {
		if err := p.exporter.ExportBalances(ctx, account, uuid.New().String(), events); err != nil {
			return nil, fmt.Errorf("pipeline: export balances for %s: %w", account, err)
		}
	}
	return events, nil
}
