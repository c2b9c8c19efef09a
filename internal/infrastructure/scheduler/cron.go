package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"InsightFlow/internal/ports"
	"InsightFlow/pkg/logger"
)

// CronScheduler runs a job on a standard five-field cron expression.
type CronScheduler struct {
	spec     string
	location *time.Location
	logger   *slog.Logger

	mu   sync.Mutex
	cron *cron.Cron
}

var _ ports.Scheduler = (*CronScheduler)(nil)

// NewCronScheduler validates spec and evaluates it in loc (UTC when nil).
func NewCronScheduler(spec string, loc *time.Location, log *slog.Logger) (*CronScheduler, error) {
	if _, err := cron.ParseStandard(spec); err != nil {
		return nil, fmt.Errorf("invalid cron expression %q: %w", spec, err)
	}
	if loc == nil {
		loc = time.UTC
	}
	return &CronScheduler{spec: spec, location: loc, logger: log}, nil
}

// Start registers job and begins the schedule. Overlapping runs are skipped,
// and the scheduler stops by itself once ctx is cancelled.
func (c *CronScheduler) Start(ctx context.Context, job func(time.Time)) error {
	if job == nil {
		return errors.New("scheduler: nil job")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cron != nil {
		return errors.New("scheduler: already started")
	}

	cl := logger.NewCronLogger(c.logger)
	cr := cron.New(
		cron.WithLocation(c.location),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	if _, err := cr.AddFunc(c.spec, func() { job(time.Now().In(c.location)) }); err != nil {
		return fmt.Errorf("scheduler: add job: %w", err)
	}
	cr.Start()
	c.cron = cr

	if c.logger != nil {
		entries := cr.Entries()
		if len(entries) > 0 {
			c.logger.Info("scheduler started", "cron", c.spec, "next", entries[0].Next)
		}
	}

	go func() {
		<-ctx.Done()
		_ = c.Stop(context.Background())
	}()
	return nil
}

// Stop halts the schedule and waits for a running job until ctx expires.
func (c *CronScheduler) Stop(ctx context.Context) error {
	c.mu.Lock()
	cr := c.cron
	c.cron = nil
	c.mu.Unlock()
	if cr == nil {
		return nil
	}

	select {
	case <-cr.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Next reports the next activation after t.
func (c *CronScheduler) Next(t time.Time) time.Time {
	sched, err := cron.ParseStandard(c.spec)
	if err != nil {
		return time.Time{}
	}
	return sched.Next(t.In(c.location))
}
