/**
 * @description
 * Entry point for the scheduler service. A non-HTTP, long-running process that
 * periodically asks the relay service to settle due escrow releases.
 */
package main

import (
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/yaairnaavaa/veridoc-ai-sub000/internal/config"
	"github.com/yaairnaavaa/veridoc-ai-sub000/internal/scheduler"
	"github.com/yaairnaavaa/veridoc-ai-sub000/pkg/releaseclient"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on environment variables")
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.LoadSchedulerConfig()
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	trigger := releaseclient.NewClient(cfg.RelayServiceURL, cfg.ReleaseTriggerSecret, cfg.RequestTimeout())
	jobs := scheduler.NewJobs(trigger, logger, *cfg)
	sched := scheduler.NewScheduler(jobs, logger, *cfg)

	if err := sched.Start(); err != nil {
		logger.Error("failed to start scheduler", "error", err, "schedule", cfg.EscrowReleaseJobSchedule)
		os.Exit(1)
	}
	logger.Info("scheduler started", "schedule", cfg.EscrowReleaseJobSchedule)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("shutdown signal received, stopping scheduler")
	stopCtx := sched.Stop()
	<-stopCtx.Done()
	logger.Info("scheduler stopped gracefully")
}
