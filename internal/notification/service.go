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

// Package notification decides, for each inbound event about a user, whether
// an email job is created and when it becomes due.
//
// The decision short-circuits in a fixed order: contact lookup, email
// channel, address status, dedup, quiet hours. A rejected event consumes no
// dedup key and creates no job; a duplicate consumes nothing further.
package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Notivest/notification-service/internal/clock"
	"github.com/Notivest/notification-service/internal/contact"
	"github.com/Notivest/notification-service/internal/dedup"
	"github.com/Notivest/notification-service/internal/models"
	"github.com/Notivest/notification-service/internal/quiethours"
)

// SeverityCritical is the alert severity that skips quiet hours.
const SeverityCritical = "CRITICAL"

// JobStore persists newly created jobs.
type JobStore interface {
	Save(ctx context.Context, job models.EmailJob) (models.EmailJob, error)
}

// Command is a normalised inbound event.
type Command struct {
	UserID           uuid.UUID
	Fingerprint      string
	OccurredAt       time.Time
	TemplateKey      string
	TemplateData     json.RawMessage
	BypassQuietHours bool
}

// AlertCommand is a price or risk alert about one of the user's symbols.
type AlertCommand struct {
	UserID       uuid.UUID
	Fingerprint  string
	OccurredAt   time.Time
	Severity     string
	TemplateKey  string
	TemplateData json.RawMessage
}

// RecommendationCommand is an investment recommendation for the user.
type RecommendationCommand struct {
	UserID       uuid.UUID
	Fingerprint  string
	OccurredAt   time.Time
	Kind         string
	TemplateKey  string
	TemplateData json.RawMessage
}

// ServiceConfig holds the collaborators of a Service. Enricher is optional.
type ServiceConfig struct {
	Contacts   contact.Store
	Dedup      dedup.Store
	Jobs       JobStore
	Calculator *dedup.Calculator
	Scheduler  quiethours.Scheduler
	Clock      clock.Clock
	Enricher   *Enricher
}

// Service is the notification orchestrator.
type Service struct {
	contacts   contact.Store
	dedup      dedup.Store
	jobs       JobStore
	calculator *dedup.Calculator
	scheduler  quiethours.Scheduler
	clock      clock.Clock
	enricher   *Enricher
}

// NewService creates an orchestrator from cfg.
func NewService(cfg ServiceConfig) *Service {
	clk := cfg.Clock
	if clk == nil {
		clk = clock.System{}
	}
	return &Service{
		contacts:   cfg.Contacts,
		dedup:      cfg.Dedup,
		jobs:       cfg.Jobs,
		calculator: cfg.Calculator,
		scheduler:  cfg.Scheduler,
		clock:      clk,
		enricher:   cfg.Enricher,
	}
}

// NotifyAlert enriches the template data with holdings and decides the
// alert. Critical alerts are delivered through quiet hours.
func (s *Service) NotifyAlert(ctx context.Context, cmd AlertCommand) (Outcome, error) {
	data := cmd.TemplateData
	if s.enricher != nil {
		data = s.enricher.Enrich(ctx, cmd.UserID, data)
	}
	return s.Decide(ctx, Command{
		UserID:           cmd.UserID,
		Fingerprint:      cmd.Fingerprint,
		OccurredAt:       cmd.OccurredAt,
		TemplateKey:      cmd.TemplateKey,
		TemplateData:     data,
		BypassQuietHours: strings.EqualFold(cmd.Severity, SeverityCritical),
	})
}

// NotifyRecommendation decides a recommendation. Recommendations always
// respect quiet hours.
func (s *Service) NotifyRecommendation(ctx context.Context, cmd RecommendationCommand) (Outcome, error) {
	return s.Decide(ctx, Command{
		UserID:       cmd.UserID,
		Fingerprint:  cmd.Fingerprint,
		OccurredAt:   cmd.OccurredAt,
		TemplateKey:  cmd.TemplateKey,
		TemplateData: cmd.TemplateData,
	})
}

// Decide runs the gate, dedup and scheduling steps for one event and
// persists a PENDING job when all pass. Store failures are returned as
// errors, never as rejections.
func (s *Service) Decide(ctx context.Context, cmd Command) (Outcome, error) {
	c, err := s.contacts.FindByUserID(ctx, cmd.UserID)
	if err != nil {
		return Outcome{}, fmt.Errorf("find contact: %w", err)
	}
	if c == nil {
		return s.reject(cmd, ReasonContactNotFound), nil
	}
	if !contact.EmailChannelEnabled(*c) {
		return s.reject(cmd, ReasonEmailChannelDisabled), nil
	}
	if contact.IsDeliveryBlocked(c.EmailStatus) {
		return s.reject(cmd, ReasonEmailStatusBlocked), nil
	}

	bucket := s.calculator.BucketFor(cmd.OccurredAt)
	inserted, err := s.dedup.InsertIfAbsent(ctx, cmd.UserID, cmd.Fingerprint, bucket)
	if err != nil {
		return Outcome{}, fmt.Errorf("insert dedup key: %w", err)
	}
	if !inserted {
		return s.reject(cmd, ReasonDeduplicated), nil
	}

	now := s.clock.Now()
	scheduledAt := s.scheduler.Schedule(now, c.QuietHours, cmd.BypassQuietHours)

	job := models.NewPendingJob(cmd.UserID, cmd.TemplateKey, cmd.TemplateData, scheduledAt, now)
	saved, err := s.jobs.Save(ctx, job)
	if err != nil {
		return Outcome{}, fmt.Errorf("save email job: %w", err)
	}

	slog.Info("email job accepted",
		"job_id", saved.ID,
		"user", cmd.UserID,
		"template", cmd.TemplateKey,
		"scheduled_at", saved.ScheduledAt,
		"deferred", saved.ScheduledAt.After(now),
	)
	return Accepted(saved.ID, saved.ScheduledAt), nil
}

func (s *Service) reject(cmd Command, reason Reason) Outcome {
	slog.Info("notification rejected",
		"user", cmd.UserID,
		"fingerprint", cmd.Fingerprint,
		"reason", reason,
	)
	return Rejected(reason)
}
