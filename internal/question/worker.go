package question

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Reloader periodically re-reads the question directory so edits land without
// a restart.
type Reloader struct {
	pool     *FilePool
	interval time.Duration
	logger   zerolog.Logger
}

func NewReloader(pool *FilePool, interval time.Duration, logger zerolog.Logger) *Reloader {
	return &Reloader{
		pool:     pool,
		interval: interval,
		logger:   logger.With().Str("component", "question_reloader").Logger(),
	}
}

// Run blocks until context cancellation. A non-positive interval disables it.
func (r *Reloader) Run(ctx context.Context) error {
	if r.pool == nil || r.interval <= 0 {
		return nil
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info().Msg("question reloader stopping")
			return ctx.Err()
		case <-ticker.C:
			if err := r.pool.Load(ctx); err != nil {
				r.logger.Warn().Err(err).Msg("reload failed")
			}
		}
	}
}
