package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"vaccine-tracker/internal/api"
	"vaccine-tracker/internal/auth"
	"vaccine-tracker/internal/catalog"
	"vaccine-tracker/internal/config"
	"vaccine-tracker/internal/email"
	"vaccine-tracker/internal/models"
	"vaccine-tracker/internal/queue"
	"vaccine-tracker/internal/ratelimit"
	"vaccine-tracker/internal/reminder"
	"vaccine-tracker/internal/store"
	"vaccine-tracker/internal/telemetry"
	"vaccine-tracker/internal/worker"
)

func main() {
	cfg := config.Load()
	telemetry.SetupLogger(cfg.Env)

	if err := cfg.ValidateAPI(); err != nil {
		slog.Error("main: invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	st, err := store.New(ctx, cfg.PostgresDSN)
	if err != nil {
		slog.Error("main: connect postgres", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	if err := st.RunMigrations(ctx); err != nil {
		slog.Error("main: migrations", "error", err)
		os.Exit(1)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer rdb.Close()

	q := queue.NewRedisQueueWithClient(rdb, cfg)
	limiter := ratelimit.NewTokenBucket(rdb, cfg.RateLimitCapacity, cfg.RateLimitRefill, time.Hour)

	reminders := reminder.NewService(q, reminder.NewResolver(st), limiter, reminder.Options{
		DefaultOffsetDays:  cfg.DefaultOffsetDays,
		AppointmentHourUTC: cfg.AppointmentHourUTC,
	})

	server := api.New(cfg, api.Deps{
		Accounts:  st,
		History:   st,
		Catalog:   catalog.NewService(st, cfg.CatalogCacheTTL),
		Reminders: reminders,
		JWT:       auth.NewJWT(cfg.JWTSecret, cfg.JWTTTL),
		Ready: func(ctx context.Context) error {
			if err := st.Ping(ctx); err != nil {
				return err
			}
			return q.Ping(ctx)
		},
	})

	var wg sync.WaitGroup
	if cfg.EmbeddedWorker {
		sender, err := email.New(cfg)
		if err != nil {
			slog.Error("main: email sender", "error", err)
			os.Exit(1)
		}
		processor := worker.NewProcessor(cfg, q, "api-embedded")
		processor.RegisterHandler(models.ReminderJobType, reminder.NewDeliverer(sender, cfg.ReminderFromEmail).Handle)

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := processor.Run(ctx); err != nil {
				slog.Error("main: embedded worker stopped", "error", err)
			}
		}()
	}

	httpServer := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	slog.Info("main: api listening", "port", cfg.HTTPPort, "embedded_worker", cfg.EmbeddedWorker)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("main: listen", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	_ = httpServer.Shutdown(shutdownCtx)
	wg.Wait()
}
