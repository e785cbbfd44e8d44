// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


// Notivest Notification Service
//
// Entry point for the notification service. It:
//  1. Loads configuration from config.yaml, .env and the environment
//  2. Connects to PostgreSQL and, when configured, Redis
//  3. Builds the contact, dedup and email job stores
//  4. Serves the notify, contact and email webhook APIs
//  5. Runs the email job worker on a fixed interval
//  6. Handles graceful shutdown on SIGTERM/SIGINT
package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	_ "time/tzdata"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/Notivest/notification-service/internal/clock"
	"github.com/Notivest/notification-service/internal/config"
	"github.com/Notivest/notification-service/internal/contact"
	"github.com/Notivest/notification-service/internal/dedup"
	"github.com/Notivest/notification-service/internal/email"
	"github.com/Notivest/notification-service/internal/emailjob"
	"github.com/Notivest/notification-service/internal/httpapi"
	"github.com/Notivest/notification-service/internal/notification"
	"github.com/Notivest/notification-service/internal/portfolio"
	"github.com/Notivest/notification-service/internal/queue"
	"github.com/Notivest/notification-service/internal/quiethours"
	"github.com/Notivest/notification-service/internal/webhook"
)

func main() {
	// A missing .env is normal outside local development
	_ = godotenv.Load()

	// Structured JSON logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel(os.Getenv("LOG_LEVEL")),
	}))
	slog.SetDefault(logger)

	slog.Info("starting notivest notification service")

	// --- Load Configuration ---
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("configuration loaded",
		"port", cfg.Port,
		"dedup_window", cfg.Dedup.Window,
		"dedup_backend", cfg.Dedup.Backend,
		"worker_enabled", cfg.Worker.Enabled,
		"worker_interval", cfg.Worker.Interval,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	// --- Connect to PostgreSQL ---
	pgPool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to create Postgres pool", "error", err)
		os.Exit(1)
	}
	defer pgPool.Close()

	if err := pgPool.Ping(ctx); err != nil {
		slog.Error("failed to connect to PostgreSQL", "error", err)
		os.Exit(1)
	}
	slog.Info("connected to PostgreSQL")

	checks := map[string]httpapi.HealthCheck{"postgres": pgPool.Ping}

	// --- Connect to Redis (optional) ---
	var rdb *redis.Client
	var publisher emailjob.EventPublisher
	if cfg.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			slog.Error("invalid REDIS_URL", "error", err)
			os.Exit(1)
		}
		rdb = redis.NewClient(opt)
		defer rdb.Close()

		pub := queue.NewPublisher(rdb, cfg.EventsQueue)
		if err := pub.Ping(ctx); err != nil {
			slog.Error("failed to connect to Redis", "error", err)
			os.Exit(1)
		}
		publisher = pub
		checks["redis"] = pub.Ping
		slog.Info("connected to Redis", "events_queue", cfg.EventsQueue)
	}

	// --- Stores ---
	contacts, err := contact.NewPostgresStore(ctx, pgPool)
	if err != nil {
		slog.Error("failed to initialise contact store", "error", err)
		os.Exit(1)
	}
	jobs, err := emailjob.NewPostgresStore(ctx, pgPool)
	if err != nil {
		slog.Error("failed to initialise email job store", "error", err)
		os.Exit(1)
	}
	events, err := webhook.NewPostgresEventStore(ctx, pgPool)
	if err != nil {
		slog.Error("failed to initialise email event store", "error", err)
		os.Exit(1)
	}
	dedupStore, err := newDedupStore(ctx, cfg, pgPool, rdb)
	if err != nil {
		slog.Error("failed to initialise dedup store", "error", err)
		os.Exit(1)
	}

	calculator, err := dedup.NewCalculator(cfg.Dedup.Window)
	if err != nil {
		slog.Error("invalid dedup window", "error", err)
		os.Exit(1)
	}

	// --- Portfolio enrichment (optional) ---
	var holdings notification.HoldingsQuery
	if cfg.Portfolio.BaseURL != "" {
		httpClient := portfolio.NewHTTPClient(ctx, portfolio.AuthConfig{
			TokenURL:     cfg.Portfolio.TokenURL,
			ClientID:     cfg.Portfolio.ClientID,
			ClientSecret: cfg.Portfolio.ClientSecret,
			Audience:     cfg.Portfolio.Audience,
			Scope:        cfg.Portfolio.Scope,
			ClockSkew:    cfg.Portfolio.ClockSkew,
		}, cfg.Portfolio.Timeout)
		holdings = portfolio.NewClient(httpClient, cfg.Portfolio.BaseURL)
		slog.Info("portfolio enrichment enabled", "base_url", cfg.Portfolio.BaseURL)
	}

	clk := clock.System{}

	notifier := notification.NewService(notification.ServiceConfig{
		Contacts:   contacts,
		Dedup:      dedupStore,
		Jobs:       jobs,
		Calculator: calculator,
		Scheduler:  quiethours.New(),
		Clock:      clk,
		Enricher:   notification.NewEnricher(holdings),
	})

	// --- Email delivery ---
	renderer, err := email.NewTemplateRenderer()
	if err != nil {
		slog.Error("failed to load email templates", "error", err)
		os.Exit(1)
	}
	processor := emailjob.NewProcessor(emailjob.ProcessorConfig{
		Jobs:        jobs,
		Contacts:    contacts,
		Renderer:    renderer,
		Sender:      newSender(cfg),
		Clock:       clk,
		Publisher:   publisher,
		From:        cfg.Email.From,
		Concurrency: cfg.Worker.Concurrency,
	})

	// --- HTTP API ---
	router := httpapi.NewRouter(httpapi.Config{
		Notifier:  notifier,
		Contacts:  contact.NewService(contacts, clk),
		JWTSecret: cfg.JWTSecret,
		Webhook: webhook.NewHandler(
			webhook.NewAuthenticator(cfg.Webhook.Token, cfg.Webhook.AllowedIPs),
			webhook.NewService(events, contacts, clk),
		),
		Checks: checks,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return httpapi.ListenAndServe(gctx, cfg.Port, router)
	})

	if cfg.Worker.Enabled {
		worker, err := emailjob.NewWorker(processor, cfg.Worker.BatchSize, cfg.Worker.Interval)
		if err != nil {
			slog.Error("invalid worker configuration", "error", err)
			os.Exit(1)
		}
		g.Go(func() error {
			worker.Run(gctx)
			return nil
		})
	} else {
		slog.Info("email job worker disabled")
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("service stopped with error", "error", err)
		os.Exit(1)
	}
	slog.Info("notification service stopped")
}

func newDedupStore(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool, rdb *redis.Client) (dedup.Store, error) {
	switch cfg.Dedup.Backend {
	case config.DedupBackendRedis:
		if rdb == nil {
			return nil, errors.New("redis dedup backend requires REDIS_URL")
		}
		slog.Info("dedup store initialised", "backend", "redis")
		return dedup.NewRedisStore(rdb), nil
	case config.DedupBackendMemory:
		slog.Warn("using in-memory dedup store, duplicates are only caught within this process")
		return dedup.NewMemoryStore(), nil
	default:
		return dedup.NewPostgresStore(ctx, pool)
	}
}

func newSender(cfg *config.Config) email.Sender {
	var sender email.Sender = email.LogSender{From: cfg.Email.From}
	if cfg.Email.SMTP.Host != "" {
		sender = email.NewSMTPSender(email.SMTPConfig{
			Host:     cfg.Email.SMTP.Host,
			Port:     cfg.Email.SMTP.Port,
			Username: cfg.Email.SMTP.Username,
			Password: cfg.Email.SMTP.Password,
			From:     cfg.Email.From,
		})
		slog.Info("smtp delivery enabled", "host", cfg.Email.SMTP.Host, "port", cfg.Email.SMTP.Port)
	}
	return email.NewRateLimitedSender(sender, cfg.Email.RatePerSecond)
}

func logLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
