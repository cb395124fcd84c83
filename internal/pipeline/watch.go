package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/perptools/perprecap/internal/aggregate"
	"github.com/perptools/perprecap/internal/domain"
	"github.com/perptools/perprecap/internal/platform/pacifica"
)

// FillStream is the live subscription surface of the WebSocket client.
type FillStream interface {
	Connect(ctx context.Context) error
	SubscribeFills(ctx context.Context, account string) error
	OnFill(handler pacifica.FillHandler)
	Close() error
}

// Watcher follows one account's live fill stream and periodically
// re-aggregates everything received so far, publishing a fresh snapshot
// each interval. It is the streaming counterpart of a history run, seeded
// with whatever fills the caller already fetched.
type Watcher struct {
	stream    FillStream
	account   string
	snapshots domain.SnapshotCache
	logger    *slog.Logger

	mu    sync.Mutex
	fills []domain.Fill
}

// NewWatcher creates a Watcher for the given account. snapshots may be nil.
func NewWatcher(stream FillStream, account string, snapshots domain.SnapshotCache, logger *slog.Logger) *Watcher {
	return &Watcher{
		stream:    stream,
		account:   account,
		snapshots: snapshots,
		logger: logger.With(
			slog.String("component", "watcher"),
			slog.String("account", account),
		),
	}
}

// Seed preloads fills fetched before the stream started, so live updates
// aggregate against the full history rather than an empty window.
func (w *Watcher) Seed(fills []domain.Fill) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.fills = append(w.fills, fills...)
}

// Watch connects, subscribes, and re-aggregates on the given interval
// until the context is cancelled.
func (w *Watcher) Watch(ctx context.Context, interval time.Duration) error {
	w.stream.OnFill(func(f domain.Fill) {
		w.mu.Lock()
		w.fills = append(w.fills, f)
		w.mu.Unlock()
	})

	if err := w.stream.Connect(ctx); err != nil {
		return fmt.Errorf("pipeline: watch connect: %w", err)
	}
	defer w.stream.Close()

	if err := w.stream.SubscribeFills(ctx, w.account); err != nil {
		return fmt.Errorf("pipeline: watch subscribe: %w", err)
	}

	w.logger.InfoContext(ctx, "watching live fills",
		slog.Duration("interval", interval),
	)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.refresh(context.WithoutCancel(ctx))
			w.logger.Info("watch stopped")
			return ctx.Err()
		case <-ticker.C:
			w.refresh(ctx)
		}
	}
}

// refresh re-runs the aggregation over all fills received so far.
func (w *Watcher) refresh(ctx context.Context) {
	w.mu.Lock()
	fills := make([]domain.Fill, len(w.fills))
	copy(fills, w.fills)
	w.mu.Unlock()

	if len(fills) == 0 {
		return
	}

	trades := aggregate.GroupFills(fills)
	positions, err := aggregate.TrackPositions(trades)
	if err != nil {
		w.logger.WarnContext(ctx, "live aggregation failed",
			slog.String("error", err.Error()),
		)
		return
	}

	res := &Result{
		Account:     w.account,
		RunID:       uuid.New().String(),
		Fills:       fills,
		Trades:      trades,
		Positions:   positions,
		CompletedAt: time.Now().UTC(),
	}

	w.logger.InfoContext(ctx, "live aggregation refreshed",
		slog.Int("fills", len(fills)),
		slog.Int("trades", len(trades)),
		slog.Int("open_positions", res.OpenPositions()),
	)

	if w.snapshots != nil {
		if err := w.snapshots.SetSnapshot(ctx, res.Snapshot()); err != nil {
			w.logger.WarnContext(ctx, "snapshot publish failed",
				slog.String("error", err.Error()),
			)
		}
	}
}
