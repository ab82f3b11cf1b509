package worker

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/oblivio/oblivio/internal/saga"
)

// ResumeLoop periodically wakes due saga runs. It is what carries a run
// across grace periods, download re-checks and worker restarts.
type ResumeLoop struct {
	saga     *saga.Saga
	interval time.Duration
	batch    int
	logger   zerolog.Logger
}

// ResumeConfig holds configuration for the resume loop.
type ResumeConfig struct {
	Saga     *saga.Saga
	Interval time.Duration // default: 30s
	Batch    int           // max runs advanced per tick, default: 50
	Logger   zerolog.Logger
}

// NewResumeLoop creates a new resume loop.
func NewResumeLoop(cfg ResumeConfig) *ResumeLoop {
	if cfg.Interval == 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.Batch == 0 {
		cfg.Batch = 50
	}
	return &ResumeLoop{
		saga:     cfg.Saga,
		interval: cfg.Interval,
		batch:    cfg.Batch,
		logger:   cfg.Logger,
	}
}

// Run ticks until the context is cancelled. The first tick fires
// immediately so runs left over from a previous process resume without
// waiting a full interval.
func (l *ResumeLoop) Run(ctx context.Context) {
	l.logger.Info().
		Dur("interval", l.interval).
		Int("batch", l.batch).
		Msg("starting resume loop")

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	l.saga.Tick(ctx, l.batch)

	for {
		select {
		case <-ctx.Done():
			l.logger.Info().Msg("resume loop stopped")
			return
		case <-ticker.C:
			l.saga.Tick(ctx, l.batch)
		}
	}
}
