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


package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Notivest/notification-service/internal/clock"
	"github.com/Notivest/notification-service/internal/contact"
	"github.com/Notivest/notification-service/internal/models"
)

// RegisterCommand is one provider feedback event as received.
type RegisterCommand struct {
	EventID           uuid.UUID // zero means generate one
	UserID            *uuid.UUID
	Email             string
	Kind              models.EmailEventKind
	ProviderReference string
	OccurredAt        time.Time
	Payload           json.RawMessage
}

// Service records feedback events and moves the contact's email status.
type Service struct {
	events   EventStore
	contacts contact.Store
	clock    clock.Clock
}

// NewService creates a webhook service.
func NewService(events EventStore, contacts contact.Store, clk clock.Clock) *Service {
	return &Service{events: events, contacts: contacts, clock: clk}
}

// statusFor maps an event kind onto the email status it implies. Kinds
// without a status consequence return false.
func statusFor(kind models.EmailEventKind) (models.EmailStatus, bool) {
	switch kind {
	case models.EmailEventBounce, models.EmailEventComplaint:
		return models.EmailStatusBounced, true
	case models.EmailEventUnsubscribe:
		return models.EmailStatusUnsub, true
	case models.EmailEventDelivered:
		return models.EmailStatusVerified, true
	}
	return "", false
}

// Register stores the event and, when it names a known user whose status
// would change, saves the contact with the new status.
func (s *Service) Register(ctx context.Context, cmd RegisterCommand) error {
	receivedAt := s.clock.Now()
	id := cmd.EventID
	if id == uuid.Nil {
		id = uuid.New()
	}

	event := models.EmailEvent{
		ID:                id,
		UserID:            cmd.UserID,
		Email:             cmd.Email,
		Kind:              cmd.Kind,
		ProviderReference: cmd.ProviderReference,
		Payload:           cmd.Payload,
		OccurredAt:        cmd.OccurredAt.UTC(),
		ReceivedAt:        receivedAt,
	}
	if _, err := s.events.Save(ctx, event); err != nil {
		return err
	}

	status, ok := statusFor(cmd.Kind)
	if !ok || cmd.UserID == nil {
		return nil
	}

	c, err := s.contacts.FindByUserID(ctx, *cmd.UserID)
	if err != nil {
		return fmt.Errorf("load contact for email event: %w", err)
	}
	if c == nil || c.EmailStatus == status {
		return nil
	}

	previous := c.EmailStatus
	updated := *c
	updated.EmailStatus = status
	updated.Version = c.Version + 1
	updated.UpdatedAt = receivedAt
	if _, err := s.contacts.Save(ctx, updated); err != nil {
		return fmt.Errorf("update contact email status: %w", err)
	}

	slog.Info("contact email status changed",
		"user", c.UserID,
		"from", previous,
		"to", status,
		"event_kind", cmd.Kind,
	)
	return nil
}
