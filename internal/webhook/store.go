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
	"fmt"
	"log/slog"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Notivest/notification-service/internal/models"
)

// EventStore persists provider feedback events. Events are append-only.
type EventStore interface {
	Save(ctx context.Context, e models.EmailEvent) (models.EmailEvent, error)
}

// PostgresEventStore keeps events in the email_event table.
type PostgresEventStore struct {
	pool *pgxpool.Pool
}

// NewPostgresEventStore creates an event store backed by the given Postgres
// pool. It ensures the email_event table exists on creation.
func NewPostgresEventStore(ctx context.Context, pool *pgxpool.Pool) (*PostgresEventStore, error) {
	s := &PostgresEventStore{pool: pool}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure email event schema: %w", err)
	}
	slog.Info("email event store initialised")
	return s, nil
}

func (s *PostgresEventStore) ensureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS email_event (
			id                 UUID PRIMARY KEY,
			user_id            UUID,
			email              VARCHAR(320) NOT NULL,
			kind               VARCHAR(24) NOT NULL,
			provider_reference VARCHAR(128),
			payload            JSONB,
			occurred_at        TIMESTAMPTZ NOT NULL,
			received_at        TIMESTAMPTZ NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_email_event_user ON email_event(user_id, occurred_at);
	`)
	return err
}

// Save inserts the event. A redelivered event id is ignored.
func (s *PostgresEventStore) Save(ctx context.Context, e models.EmailEvent) (models.EmailEvent, error) {
	var payload *string
	if len(e.Payload) > 0 {
		p := string(e.Payload)
		payload = &p
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO email_event
			(id, user_id, email, kind, provider_reference, payload, occurred_at, received_at)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6::jsonb, $7, $8)
		ON CONFLICT (id) DO NOTHING
	`, e.ID, e.UserID, e.Email, string(e.Kind), e.ProviderReference, payload,
		e.OccurredAt, e.ReceivedAt)
	if err != nil {
		return models.EmailEvent{}, fmt.Errorf("save email event %s: %w", e.ID, err)
	}
	return e, nil
}

// MemoryEventStore is an in-process EventStore for tests and local runs.
type MemoryEventStore struct {
	mu     sync.Mutex
	events []models.EmailEvent
}

// NewMemoryEventStore creates an empty store.
func NewMemoryEventStore() *MemoryEventStore {
	return &MemoryEventStore{}
}

func (s *MemoryEventStore) Save(_ context.Context, e models.EmailEvent) (models.EmailEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return e, nil
}

// Events returns a copy of the stored events in insertion order.
func (s *MemoryEventStore) Events() []models.EmailEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.EmailEvent(nil), s.events...)
}

var (
	_ EventStore = (*PostgresEventStore)(nil)
	_ EventStore = (*MemoryEventStore)(nil)
)
