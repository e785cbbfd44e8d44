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


package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/Notivest/notification-service/internal/notification"
)

type notifyAlertRequest struct {
	UserID       *uuid.UUID      `json:"userId" binding:"required"`
	Fingerprint  string          `json:"fingerprint" binding:"required,max=128"`
	OccurredAt   *time.Time      `json:"occurredAt" binding:"required"`
	Severity     string          `json:"severity" binding:"required,max=32"`
	TemplateKey  string          `json:"templateKey" binding:"required,max=64"`
	TemplateData json.RawMessage `json:"templateData"`
}

type notifyRecommendationRequest struct {
	UserID       *uuid.UUID      `json:"userId" binding:"required"`
	Fingerprint  string          `json:"fingerprint" binding:"required,max=128"`
	OccurredAt   *time.Time      `json:"occurredAt" binding:"required"`
	Kind         string          `json:"kind" binding:"required,max=32"`
	TemplateKey  string          `json:"templateKey" binding:"required,max=64"`
	TemplateData json.RawMessage `json:"templateData"`
}

type notificationResponse struct {
	Accepted    bool       `json:"accepted"`
	JobID       *uuid.UUID `json:"jobId,omitempty"`
	ScheduledAt *time.Time `json:"scheduledAt,omitempty"`
	Reason      string     `json:"reason,omitempty"`
}

func toNotificationResponse(o notification.Outcome) notificationResponse {
	if !o.IsAccepted() {
		return notificationResponse{Reason: strings.ToLower(string(o.Reason()))}
	}
	id, at := o.JobID(), o.ScheduledAt()
	return notificationResponse{Accepted: true, JobID: &id, ScheduledAt: &at}
}

// requireNonBlank reports the first field that is only whitespace. Binding
// already rejected empty values.
func requireNonBlank(fields map[string]string) error {
	for name, v := range fields {
		if strings.TrimSpace(v) == "" {
			return errors.New(name + " must not be blank")
		}
	}
	return nil
}

func handleNotifyAlert(n Notifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req notifyAlertRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if err := requireNonBlank(map[string]string{
			"fingerprint": req.Fingerprint,
			"severity":    req.Severity,
			"templateKey": req.TemplateKey,
		}); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		outcome, err := n.NotifyAlert(c.Request.Context(), notification.AlertCommand{
			UserID:       *req.UserID,
			Fingerprint:  strings.TrimSpace(req.Fingerprint),
			OccurredAt:   *req.OccurredAt,
			Severity:     strings.TrimSpace(req.Severity),
			TemplateKey:  strings.TrimSpace(req.TemplateKey),
			TemplateData: req.TemplateData,
		})
		if err != nil {
			slog.Error("notify alert failed", "user", *req.UserID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to process alert"})
			return
		}
		c.JSON(http.StatusOK, toNotificationResponse(outcome))
	}
}

func handleNotifyRecommendation(n Notifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req notifyRecommendationRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if err := requireNonBlank(map[string]string{
			"fingerprint": req.Fingerprint,
			"kind":        req.Kind,
			"templateKey": req.TemplateKey,
		}); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		outcome, err := n.NotifyRecommendation(c.Request.Context(), notification.RecommendationCommand{
			UserID:       *req.UserID,
			Fingerprint:  strings.TrimSpace(req.Fingerprint),
			OccurredAt:   *req.OccurredAt,
			Kind:         strings.TrimSpace(req.Kind),
			TemplateKey:  strings.TrimSpace(req.TemplateKey),
			TemplateData: req.TemplateData,
		})
		if err != nil {
			slog.Error("notify recommendation failed", "user", *req.UserID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to process recommendation"})
			return
		}
		c.JSON(http.StatusOK, toNotificationResponse(outcome))
	}
}
