package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"vaccine-tracker/internal/config"
	"vaccine-tracker/internal/email"
	"vaccine-tracker/internal/models"
	"vaccine-tracker/internal/queue"
	"vaccine-tracker/internal/reminder"
	"vaccine-tracker/internal/telemetry"
	"vaccine-tracker/internal/worker"
)

func main() {
	cfg := config.Load()
	telemetry.SetupLogger(cfg.Env)

	if err := cfg.ValidateWorker(); err != nil {
		slog.Error("main: invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	q := queue.NewRedisQueue(cfg)
	defer q.Close()

	pingCtx, cancelPing := context.WithTimeout(ctx, 5*time.Second)
	err := q.Ping(pingCtx)
	cancelPing()
	if err != nil {
		slog.Error("main: connect redis", "addr", cfg.RedisAddr, "error", err)
		os.Exit(1)
	}

	sender, err := email.New(cfg)
	if err != nil {
		slog.Error("main: email sender", "error", err)
		os.Exit(1)
	}

	workerID := os.Getenv("WORKER_ID")
	if workerID == "" {
		if hostname, _ := os.Hostname(); hostname != "" {
			workerID = hostname
		} else {
			workerID = fmt.Sprintf("worker-%d", os.Getpid())
		}
	}

	processor := worker.NewProcessor(cfg, q, workerID)
	processor.RegisterHandler(models.ReminderJobType, reminder.NewDeliverer(sender, cfg.ReminderFromEmail).Handle)

	metricsServer := &http.Server{Addr: cfg.MetricsAddr, Handler: telemetry.Handler(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Warn("main: metrics server stopped", "error", err)
		}
	}()

	if err := processor.Run(ctx); err != nil {
		slog.Error("main: worker stopped", "error", err)
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	_ = metricsServer.Shutdown(shutdownCtx)
}
