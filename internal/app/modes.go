package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/perptools/perprecap/internal/pipeline"
	"github.com/perptools/perprecap/internal/platform/pacifica"
	"github.com/perptools/perprecap/internal/render"
)

// newPipeline assembles the history pipeline from the wired dependencies.
func (a *App) newPipeline(deps *Dependencies) *pipeline.HistoryPipeline {
	return pipeline.NewHistoryPipeline(
		deps.Client,
		deps.TradeStore,
		deps.PositionStore,
		deps.SnapshotCache,
		deps.LockManager,
		deps.Exporter,
		a.logger,
	)
}

// historyFilter converts the configured filter into client parameters. The
// config was validated at startup, so time parse errors cannot occur here.
func (a *App) historyFilter() pacifica.HistoryFilter {
	start, _ := a.cfg.Filter.StartTimeValue()
	end, _ := a.cfg.Filter.EndTimeValue()
	return pacifica.HistoryFilter{
		Symbol:    a.cfg.Filter.Symbol,
		StartTime: start,
		EndTime:   end,
	}
}

// notify sends an event through the notifier, logging delivery failures
// instead of failing the run.
func (a *App) notify(ctx context.Context, deps *Dependencies, event, title, message string) {
	if deps.Notifier == nil {
		return
	}
	if err := deps.Notifier.Notify(ctx, event, title, message); err != nil {
		a.logger.WarnContext(ctx, "notification failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}

// emit renders a dataset as a table on stdout and writes the JSON artifact,
// honoring the output configuration.
func (a *App) emit(account, name string, v any, table func() error) error {
	if !a.cfg.Output.Quiet {
		fmt.Printf("\n== %s / %s ==\n", account, name)
		if err := table(); err != nil {
			return fmt.Errorf("app: render %s: %w", name, err)
		}
	}
	if a.cfg.Output.WriteJSON {
		path, err := render.WriteJSON(a.cfg.Output.Dir, account, name, v)
		if err != nil {
			return err
		}
		a.logger.Info("artifact written",
			slog.String("account", account),
			slog.String("path", path),
		)
	}
	return nil
}

// HistoryMode reconstructs trades and positions for every configured account.
func (a *App) HistoryMode(ctx context.Context, deps *Dependencies) error {
	p := a.newPipeline(deps)

	results, err := p.RunAccounts(ctx, a.cfg.Accounts, a.historyFilter(), a.cfg.Fetch.Parallelism)
	if err != nil {
		a.notify(ctx, deps, "run_failed", "History run failed", err.Error())
		return err
	}

	for _, res := range results {
		if err := a.emit(res.Account, "trades", res.Trades, func() error {
			return render.Trades(os.Stdout, res.Trades)
		}); err != nil {
			return err
		}
		if err := a.emit(res.Account, "positions", res.Positions, func() error {
			return render.Positions(os.Stdout, res.Positions)
		}); err != nil {
			return err
		}
		if !a.cfg.Output.Quiet {
			render.Summary(os.Stdout, res.Snapshot())
		}

		a.notify(ctx, deps, "run_completed", "History run completed",
			fmt.Sprintf("%s: %d fills, %d trades, %d positions (%d open)",
				res.Account, len(res.Fills), len(res.Trades), len(res.Positions), res.OpenPositions()))
	}
	return nil
}

// FundingMode fetches and renders funding payment history.
func (a *App) FundingMode(ctx context.Context, deps *Dependencies) error {
	p := a.newPipeline(deps)
	for _, account := range a.cfg.Accounts {
		payments, err := p.RunFunding(ctx, account)
		if err != nil {
			a.notify(ctx, deps, "run_failed", "Funding run failed", err.Error())
			return err
		}
		if err := a.emit(account, "funding", payments, func() error {
			return render.Funding(os.Stdout, payments)
		}); err != nil {
			return err
		}
	}
	return nil
}

// PortfolioMode fetches and renders the account equity series.
func (a *App) PortfolioMode(ctx context.Context, deps *Dependencies) error {
	p := a.newPipeline(deps)
	for _, account := range a.cfg.Accounts {
		points, err := p.RunPortfolio(ctx, account, a.cfg.Filter.TimeRange)
		if err != nil {
			a.notify(ctx, deps, "run_failed", "Portfolio run failed", err.Error())
			return err
		}
		if err := a.emit(account, "portfolio", points, func() error {
			return render.Portfolio(os.Stdout, points)
		}); err != nil {
			return err
		}
	}
	return nil
}

// OrdersMode fetches and renders order history.
func (a *App) OrdersMode(ctx context.Context, deps *Dependencies) error {
	p := a.newPipeline(deps)
	for _, account := range a.cfg.Accounts {
		orders, err := p.RunOrders(ctx, account, a.historyFilter())
		if err != nil {
			a.notify(ctx, deps, "run_failed", "Orders run failed", err.Error())
			return err
		}
		if err := a.emit(account, "orders", orders, func() error {
			return render.Orders(os.Stdout, orders)
		}); err != nil {
			return err
		}
	}
	return nil
}

// BalanceMode fetches and renders balance event history.
func (a *App) BalanceMode(ctx context.Context, deps *Dependencies) error {
	p := a.newPipeline(deps)
	for _, account := range a.cfg.Accounts {
		events, err := p.RunBalances(ctx, account)
		if err != nil {
			a.notify(ctx, deps, "run_failed", "Balance run failed", err.Error())
			return err
		}
		if err := a.emit(account, "balances", events, func() error {
			return render.Balances(os.Stdout, events)
		}); err != nil {
			return err
		}
	}
	return nil
}

// WatchMode seeds a live watcher with the account's fetched history and
// follows the fill stream until the context is cancelled. Validation
// guarantees exactly one account in this mode.
func (a *App) WatchMode(ctx context.Context, deps *Dependencies) error {
	account := a.cfg.Accounts[0]

	fills, err := deps.Client.ListFillHistory(ctx, account, a.historyFilter())
	if err != nil {
		return fmt.Errorf("app: seed watch for %s: %w", account, err)
	}
	a.logger.InfoContext(ctx, "watch seeded",
		slog.String("account", account),
		slog.Int("fills", len(fills)),
	)

	w := pipeline.NewWatcher(deps.Stream, account, deps.SnapshotCache, a.logger)
	w.Seed(fills)

	err = w.Watch(ctx, a.cfg.Watch.Interval.Duration)
	if errors.Is(err, context.Canceled) {
		return err
	}
	if err != nil {
		a.notify(ctx, deps, "run_failed", "Watch stopped", err.Error())
	}
	return err
}

// FullMode runs the history reconstruction plus every passthrough dataset
// for each account.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	if err := a.HistoryMode(ctx, deps); err != nil {
		return err
	}
	if err := a.FundingMode(ctx, deps); err != nil {
		return err
	}
	if err := a.PortfolioMode(ctx, deps); err != nil {
		return err
	}
	if err := a.OrdersMode(ctx, deps); err != nil {
		return err
	}
	return a.BalanceMode(ctx, deps)
}
