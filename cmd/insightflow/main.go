package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"InsightFlow/internal/app"
	"InsightFlow/internal/config"
	"InsightFlow/internal/logging"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config (defaults to $INSIGHTFLOW_CONFIG)")
	dryRun := flag.Bool("dry-run", false, "collect and persist locally without issues, documents or notifications")
	schedule := flag.Bool("schedule", false, "run on the configured cron expression until interrupted")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := config.Load(*configPath)
	if *dryRun {
		cfg.DryRun = true
	}
	logger := logging.NewWithFormat(cfg.Logging.Level, cfg.Logging.Format, os.Stdout)

	application, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("application init failed", "error", err)
		os.Exit(1)
	}

	code := 0
	if *schedule {
		if err := application.Schedule(ctx); err != nil {
			logger.Error("scheduler stopped", "error", err)
			code = 1
		}
	} else {
		report, err := application.Run(ctx)
		if err != nil {
			logger.Error("run failed", "run_id", report.RunID, "error", err)
			code = 1
		} else {
			logger.Info("run complete", "run_id", report.RunID, "stages", len(report.Stages))
		}
	}

	closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := application.Close(closeCtx); err != nil {
		logger.Warn("close failed", "error", err)
	}
	if code != 0 {
		cancel()
		stop()
		os.Exit(code)
	}
}
