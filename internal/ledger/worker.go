package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// FlushWorker writes ledger snapshots to a Store whenever the ledger is
// marked dirty, on a fixed interval, and once more on shutdown.
type FlushWorker struct {
	ledger   *Ledger
	store    Store
	interval time.Duration
	logger   zerolog.Logger
}

func NewFlushWorker(l *Ledger, store Store, interval time.Duration, logger zerolog.Logger) *FlushWorker {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &FlushWorker{
		ledger:   l,
		store:    store,
		interval: interval,
		logger:   logger.With().Str("component", "score_flush_worker").Logger(),
	}
}

// LoadInto restores the ledger from the store. Call once before serving.
func LoadInto(ctx context.Context, l *Ledger, store Store) error {
	snap, err := store.Load(ctx)
	if err != nil {
		return fmt.Errorf("load scores: %w", err)
	}
	l.Restore(snap)
	return nil
}

// Run blocks until context cancellation.
func (w *FlushWorker) Run(ctx context.Context) error {
	if w.store == nil {
		return nil
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			w.Flush(flushCtx)
			cancel()
			return ctx.Err()
		case <-w.ledger.Dirty():
			w.Flush(ctx)
		case <-ticker.C:
			w.Flush(ctx)
		}
	}
}

// Flush saves the current snapshot. Failures are logged; the in-memory ledger
// stays authoritative.
func (w *FlushWorker) Flush(ctx context.Context) {
	snap := w.ledger.Snapshot()
	if err := w.store.Save(ctx, snap); err != nil {
		w.logger.Warn().Err(err).Int("entries", len(snap.Entries)).Msg("score flush failed")
		return
	}
	w.logger.Debug().Int("entries", len(snap.Entries)).Msg("scores flushed")
}
