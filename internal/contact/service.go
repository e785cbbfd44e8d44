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

package contact

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/Notivest/notification-service/internal/clock"
	"github.com/Notivest/notification-service/internal/models"
)

// UpsertCommand carries a user's requested contact preferences. A nil
// Channels map keeps the stored channels.
type UpsertCommand struct {
	UserID       uuid.UUID
	PrimaryEmail string
	EmailStatus  models.EmailStatus
	Locale       string
	Channels     map[string]bool
	QuietHours   *models.QuietHours
}

// Service implements the contact read and upsert use cases.
type Service struct {
	store Store
	clock clock.Clock
}

// NewService creates a contact service.
func NewService(store Store, clk clock.Clock) *Service {
	return &Service{store: store, clock: clk}
}

// Get returns the user's contact or nil when none is stored.
func (s *Service) Get(ctx context.Context, userID uuid.UUID) (*models.Contact, error) {
	return s.store.FindByUserID(ctx, userID)
}

// Upsert creates or replaces the user's contact. The version starts at 0
// and is bumped on every save; CreatedAt survives replacement.
func (s *Service) Upsert(ctx context.Context, cmd UpsertCommand) (models.Contact, error) {
	existing, err := s.store.FindByUserID(ctx, cmd.UserID)
	if err != nil {
		return models.Contact{}, fmt.Errorf("load contact: %w", err)
	}
	now := s.clock.Now()

	c := models.Contact{
		UserID:       cmd.UserID,
		PrimaryEmail: cmd.PrimaryEmail,
		EmailStatus:  cmd.EmailStatus,
		Locale:       cmd.Locale,
		Channels:     cmd.Channels,
		QuietHours:   cmd.QuietHours,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if existing != nil {
		c.Version = existing.Version + 1
		c.CreatedAt = existing.CreatedAt
		if c.Channels == nil {
			c.Channels = existing.Channels
		}
	}
	if c.Channels == nil {
		c.Channels = map[string]bool{models.ChannelEmail: true}
	}

	saved, err := s.store.Save(ctx, c)
	if err != nil {
		return models.Contact{}, err
	}
	slog.Info("contact saved", "user", saved.UserID, "version", saved.Version, "status", saved.EmailStatus)
	return saved, nil
}
