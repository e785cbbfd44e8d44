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


// Package httpapi exposes the notification service over HTTP: the notify
// endpoints called by upstream producers, the authenticated contact API and
// the email provider webhook.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/Notivest/notification-service/internal/contact"
	"github.com/Notivest/notification-service/internal/models"
	"github.com/Notivest/notification-service/internal/notification"
)

// Notifier decides inbound notification events.
type Notifier interface {
	NotifyAlert(ctx context.Context, cmd notification.AlertCommand) (notification.Outcome, error)
	NotifyRecommendation(ctx context.Context, cmd notification.RecommendationCommand) (notification.Outcome, error)
}

// Contacts reads and writes the caller's contact.
type Contacts interface {
	Get(ctx context.Context, userID uuid.UUID) (*models.Contact, error)
	Upsert(ctx context.Context, cmd contact.UpsertCommand) (models.Contact, error)
}

// HealthCheck reports whether one dependency is reachable.
type HealthCheck func(ctx context.Context) error

// Config wires the router. Contacts is mounted only when JWTSecret is set,
// and Webhook only when non-nil.
type Config struct {
	Notifier  Notifier
	Contacts  Contacts
	JWTSecret string
	Webhook   http.Handler
	Checks    map[string]HealthCheck
}

// NewRouter builds the gin engine.
func NewRouter(cfg Config) *gin.Engine {
	router := gin.New()
	router.Use(Recovery())
	router.Use(RequestLogger())

	router.GET("/health", handleHealth(cfg.Checks))

	api := router.Group("/api/v1")
	{
		notify := api.Group("/notify")
		notify.POST("/alert", handleNotifyAlert(cfg.Notifier))
		notify.POST("/recommendation", handleNotifyRecommendation(cfg.Notifier))

		if cfg.JWTSecret != "" && cfg.Contacts != nil {
			contacts := api.Group("/contact")
			contacts.Use(JWTAuth(cfg.JWTSecret))
			contacts.GET("", handleGetContact(cfg.Contacts))
			contacts.POST("", handleUpsertContact(cfg.Contacts))
		} else {
			slog.Warn("contact API disabled, no JWT secret configured")
		}

		if cfg.Webhook != nil {
			api.POST("/webhooks/email", gin.WrapH(cfg.Webhook))
		}
	}

	return router
}

func handleHealth(checks map[string]HealthCheck) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		results := make(map[string]string, len(checks))
		for name, check := range checks {
			if err := check(ctx); err != nil {
				status = http.StatusServiceUnavailable
				results[name] = err.Error()
				continue
			}
			results[name] = "ok"
		}
		body := gin.H{"status": "ok", "checks": results}
		if status != http.StatusOK {
			body["status"] = "degraded"
		}
		c.JSON(status, body)
	}
}

// ListenAndServe serves h on port until ctx is cancelled, then shuts down
// gracefully.
func ListenAndServe(ctx context.Context, port int, h http.Handler) error {
	server := &http.Server{
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return fmt.Errorf("bind http port %d: %w", port, err)
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server listening", "port", port)
		errCh <- server.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	slog.Info("http server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}
