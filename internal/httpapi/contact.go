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
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/Notivest/notification-service/internal/contact"
	"github.com/Notivest/notification-service/internal/models"
)

type quietHoursDTO struct {
	Start    string `json:"start" binding:"required"`
	End      string `json:"end" binding:"required"`
	Timezone string `json:"timezone" binding:"max=40"`
}

type upsertContactRequest struct {
	PrimaryEmail string          `json:"primaryEmail" binding:"required,email"`
	EmailStatus  string          `json:"emailStatus" binding:"required"`
	Locale       string          `json:"locale" binding:"max=10"`
	Channels     map[string]bool `json:"channels" binding:"required,min=1"`
	QuietHours   *quietHoursDTO  `json:"quietHours"`
}

type contactResponse struct {
	UserID       uuid.UUID          `json:"userId"`
	PrimaryEmail string             `json:"primaryEmail"`
	EmailStatus  models.EmailStatus `json:"emailStatus"`
	Locale       *string            `json:"locale"`
	Channels     map[string]bool    `json:"channels"`
	QuietHours   *models.QuietHours `json:"quietHours"`
	Version      int64              `json:"version"`
	UpdatedAt    time.Time          `json:"updatedAt"`
	CreatedAt    time.Time          `json:"createdAt"`
}

func toContactResponse(c models.Contact) contactResponse {
	resp := contactResponse{
		UserID:       c.UserID,
		PrimaryEmail: c.PrimaryEmail,
		EmailStatus:  c.EmailStatus,
		Channels:     c.Channels,
		QuietHours:   c.QuietHours,
		Version:      c.Version,
		UpdatedAt:    c.UpdatedAt,
		CreatedAt:    c.CreatedAt,
	}
	if c.Locale != "" {
		locale := c.Locale
		resp.Locale = &locale
	}
	return resp
}

// problem is an RFC 9457 problem document.
type problem struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail"`
}

func writeProblem(c *gin.Context, status int, kind, detail string) {
	c.Header("Content-Type", "application/problem+json")
	c.JSON(status, problem{
		Type:   "urn:problem:user-contact:" + kind,
		Title:  http.StatusText(status),
		Status: status,
		Detail: detail,
	})
}

func (req upsertContactRequest) command(userID uuid.UUID, email string) (contact.UpsertCommand, error) {
	status, err := models.ParseEmailStatus(strings.TrimSpace(req.EmailStatus))
	if err != nil {
		return contact.UpsertCommand{}, err
	}
	cmd := contact.UpsertCommand{
		UserID:       userID,
		PrimaryEmail: email,
		EmailStatus:  status,
		Locale:       strings.TrimSpace(req.Locale),
		Channels:     req.Channels,
	}
	if qh := req.QuietHours; qh != nil {
		start, err := models.ParseTimeOfDay(qh.Start)
		if err != nil {
			return contact.UpsertCommand{}, fmt.Errorf("quietHours.start: %w", err)
		}
		end, err := models.ParseTimeOfDay(qh.End)
		if err != nil {
			return contact.UpsertCommand{}, fmt.Errorf("quietHours.end: %w", err)
		}
		tz := strings.TrimSpace(qh.Timezone)
		if tz != "" {
			if _, err := time.LoadLocation(tz); err != nil {
				return contact.UpsertCommand{}, fmt.Errorf("quietHours.timezone: unknown zone %q", tz)
			}
		}
		cmd.QuietHours = &models.QuietHours{Start: start, End: end, Timezone: tz}
	}
	return cmd, nil
}

func handleGetContact(svc Contacts) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := userIDFrom(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
			return
		}

		found, err := svc.Get(c.Request.Context(), userID)
		if err != nil {
			slog.Error("get contact failed", "user", userID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load contact"})
			return
		}
		if found == nil {
			writeProblem(c, http.StatusNotFound, "user-contact-not-found", "User contact not found")
			return
		}
		c.JSON(http.StatusOK, toContactResponse(*found))
	}
}

func handleUpsertContact(svc Contacts) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := userIDFrom(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
			return
		}

		var req upsertContactRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		// The address on file is the one the identity provider vouches for.
		email := emailFrom(c)
		if email == "" {
			writeProblem(c, http.StatusBadRequest, "email-missing", "JWT missing email claim")
			return
		}

		cmd, err := req.command(userID, email)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		saved, err := svc.Upsert(c.Request.Context(), cmd)
		if err != nil {
			slog.Error("upsert contact failed", "user", userID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save contact"})
			return
		}
		c.JSON(http.StatusOK, toContactResponse(saved))
	}
}
