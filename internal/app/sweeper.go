package app

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/fairyhunter13/smurfguard/internal/domain"
)

// staleRunMessage marks ledger rows abandoned by a crashed or restarted
// process. Rows this old in running state can no longer have a live
// goroutine behind them.
const staleRunMessage = "shutdown: run abandoned by a previous process"

type StaleRunSweeper struct {
	executions domain.JobExecutionRepository
	maxRunAge  time.Duration
	interval   time.Duration
}

func NewStaleRunSweeper(executions domain.JobExecutionRepository, maxRunAge, interval time.Duration) *StaleRunSweeper {
	if executions == nil {
		return nil
	}
	if maxRunAge <= 0 {
		maxRunAge = 20 * time.Minute
	}
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	return &StaleRunSweeper{
		executions: executions,
		maxRunAge:  maxRunAge,
		interval:   interval,
	}
}

func (s *StaleRunSweeper) Run(ctx context.Context) {
	if s == nil || s.executions == nil {
		return
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.sweepOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			slog.Info("stale run sweeper stopping")
			return
		case <-ticker.C:
			s.sweepOnce(ctx)
		}
	}
}

func (s *StaleRunSweeper) sweepOnce(ctx context.Context) {
	tracer := otel.Tracer("jobs.sweeper")
	ctx, span := tracer.Start(ctx, "StaleRunSweeper.sweepOnce")
	defer span.End()

	cutoff := time.Now().UTC().Add(-s.maxRunAge)
	span.SetAttributes(
		attribute.Float64("executions.max_run_age_seconds", s.maxRunAge.Seconds()),
	)

	swept, err := s.executions.SweepStale(ctx, cutoff, staleRunMessage)
	if err != nil {
		span.RecordError(err)
		slog.Error("stale run sweep failed", slog.Any("error", err))
		return
	}
	span.SetAttributes(attribute.Int64("executions.swept", swept))
	if swept > 0 {
		slog.Warn("stale running executions failed by sweeper",
			slog.Int64("count", swept),
			slog.Time("cutoff", cutoff))
	}
}
