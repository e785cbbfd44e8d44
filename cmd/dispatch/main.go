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


// Notivest Notification Service: One-shot Dispatch Command
//
// Standalone CLI tool that settles due email jobs once and exits. Useful when
// the in-process worker is disabled and dispatch is driven by an external
// scheduler, or to flush a backlog by hand.
//
// Usage:
//
//	go run ./cmd/dispatch/ [--limit 100] [--drain]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/Notivest/notification-service/internal/config"
	"github.com/Notivest/notification-service/internal/contact"
	"github.com/Notivest/notification-service/internal/email"
	"github.com/Notivest/notification-service/internal/emailjob"
	"github.com/Notivest/notification-service/internal/queue"
)

func main() {
	_ = godotenv.Load()

	// Structured JSON logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// --- Load Configuration ---
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// --- CLI Flags ---
	limitFlag := flag.Int("limit", cfg.Worker.BatchSize, "Maximum jobs per batch")
	drainFlag := flag.Bool("drain", false, "Keep processing batches until no due job is left")
	flag.Parse()

	if *limitFlag <= 0 {
		fmt.Fprintf(os.Stderr, "Error: --limit must be positive, got %d\n\n", *limitFlag)
		flag.Usage()
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	// --- Connect to PostgreSQL ---
	pgPool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to create Postgres pool", "error", err)
		os.Exit(1)
	}
	defer pgPool.Close()

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

	// --- Lifecycle events (optional) ---
	var publisher emailjob.EventPublisher
	if cfg.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			slog.Error("invalid REDIS_URL", "error", err)
			os.Exit(1)
		}
		rdb := redis.NewClient(opt)
		defer rdb.Close()
		publisher = queue.NewPublisher(rdb, cfg.EventsQueue)
	}

	renderer, err := email.NewTemplateRenderer()
	if err != nil {
		slog.Error("failed to load email templates", "error", err)
		os.Exit(1)
	}

	var sender email.Sender = email.LogSender{From: cfg.Email.From}
	if cfg.Email.SMTP.Host != "" {
		sender = email.NewSMTPSender(email.SMTPConfig{
			Host:     cfg.Email.SMTP.Host,
			Port:     cfg.Email.SMTP.Port,
			Username: cfg.Email.SMTP.Username,
			Password: cfg.Email.SMTP.Password,
			From:     cfg.Email.From,
		})
	}

	processor := emailjob.NewProcessor(emailjob.ProcessorConfig{
		Jobs:        jobs,
		Contacts:    contacts,
		Renderer:    renderer,
		Sender:      email.NewRateLimitedSender(sender, cfg.Email.RatePerSecond),
		Publisher:   publisher,
		From:        cfg.Email.From,
		Concurrency: cfg.Worker.Concurrency,
	})

	// --- Run Dispatch ---
	start := time.Now()
	var total emailjob.Result
	for batch := 1; ; batch++ {
		result, err := processor.ProcessDue(ctx, *limitFlag)
		if err != nil {
			slog.Error("dispatch failed", "batch", batch, "error", err)
			os.Exit(1)
		}
		total.Total += result.Total
		total.Sent += result.Sent
		total.Failed += result.Failed

		if !*drainFlag || result.Total < *limitFlag || ctx.Err() != nil {
			break
		}
	}

	// --- Summary ---
	slog.Info("dispatch complete",
		"total", total.Total,
		"sent", total.Sent,
		"failed", total.Failed,
		"elapsed", time.Since(start),
	)
}
