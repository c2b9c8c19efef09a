package usecase

import (
	"context"
	"log/slog"
	"time"

	"InsightFlow/internal/ports"
)

// Scheduler wires the cron driver with the pipeline use case.
type Scheduler struct {
	driver   ports.Scheduler
	pipeline *Pipeline
	base     RunConfig
	logger   *slog.Logger
}

// NewScheduler returns a helper to start/stop recurring runs. Every trigger
// runs the pipeline with base, stamped with the trigger time.
func NewScheduler(driver ports.Scheduler, pipeline *Pipeline, base RunConfig, logger *slog.Logger) *Scheduler {
	return &Scheduler{driver: driver, pipeline: pipeline, base: base, logger: logger}
}

// Start registers the pipeline with the provided scheduler.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.driver == nil || s.pipeline == nil {
		return nil
	}

	job := func(trigger time.Time) {
		cfg := s.base
		cfg.Now = trigger
		report, err := s.pipeline.Run(ctx, cfg)
		if err != nil && s.logger != nil {
			s.logger.Error("scheduled run failed", "run_id", report.RunID, "error", err)
		}
	}

	return s.driver.Start(ctx, job)
}

// Stop gracefully tears down the underlying scheduler.
func (s *Scheduler) Stop(ctx context.Context) error {
	if s.driver == nil {
		return nil
	}

	return s.driver.Stop(ctx)
}
