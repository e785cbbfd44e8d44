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
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Notivest/notification-service/internal/models"
)

// Store loads and persists contacts. FindByUserID returns nil, nil when the
// user has no contact.
type Store interface {
	FindByUserID(ctx context.Context, userID uuid.UUID) (*models.Contact, error)
	Save(ctx context.Context, c models.Contact) (models.Contact, error)
}

// PostgresStore keeps one row per user in user_contact. Channels and quiet
// hours are stored as JSONB.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a contact store backed by the given Postgres pool.
// It ensures the user_contact table exists on creation.
func NewPostgresStore(ctx context.Context, pool *pgxpool.Pool) (*PostgresStore, error) {
	s := &PostgresStore{pool: pool}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure contact schema: %w", err)
	}
	slog.Info("contact store initialised")
	return s, nil
}

func (s *PostgresStore) ensureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS user_contact (
			user_id       UUID PRIMARY KEY,
			primary_email TEXT NOT NULL,
			email_status  VARCHAR(16) NOT NULL,
			locale        VARCHAR(10),
			channels      JSONB NOT NULL DEFAULT '{}'::jsonb,
			quiet_hours   JSONB,
			version       BIGINT NOT NULL DEFAULT 0,
			created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
	`)
	return err
}

// FindByUserID retrieves the contact for a user.
func (s *PostgresStore) FindByUserID(ctx context.Context, userID uuid.UUID) (*models.Contact, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT user_id, primary_email, email_status, COALESCE(locale, ''),
		       channels, quiet_hours, version, created_at, updated_at
		FROM user_contact
		WHERE user_id = $1
	`, userID)
	c, err := scanContact(row)
	if err != nil {
		return nil, fmt.Errorf("find contact %s: %w", userID, err)
	}
	return c, nil
}

// Save inserts or replaces the contact keyed on user_id.
func (s *PostgresStore) Save(ctx context.Context, c models.Contact) (models.Contact, error) {
	channels, quiet, err := encodeJSONColumns(c)
	if err != nil {
		return models.Contact{}, err
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO user_contact
			(user_id, primary_email, email_status, locale, channels, quiet_hours, version, created_at, updated_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5::jsonb, $6::jsonb, $7, $8, $9)
		ON CONFLICT (user_id) DO UPDATE SET
			primary_email = EXCLUDED.primary_email,
			email_status  = EXCLUDED.email_status,
			locale        = EXCLUDED.locale,
			channels      = EXCLUDED.channels,
			quiet_hours   = EXCLUDED.quiet_hours,
			version       = EXCLUDED.version,
			updated_at    = EXCLUDED.updated_at
	`, c.UserID, c.PrimaryEmail, string(c.EmailStatus), c.Locale, channels, quiet,
		c.Version, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return models.Contact{}, fmt.Errorf("save contact %s: %w", c.UserID, err)
	}
	return c, nil
}

func encodeJSONColumns(c models.Contact) (channels string, quiet *string, err error) {
	ch := c.Channels
	if ch == nil {
		ch = map[string]bool{}
	}
	b, err := json.Marshal(ch)
	if err != nil {
		return "", nil, fmt.Errorf("marshal channels: %w", err)
	}
	if c.QuietHours != nil {
		q, err := json.Marshal(c.QuietHours)
		if err != nil {
			return "", nil, fmt.Errorf("marshal quiet hours: %w", err)
		}
		qs := string(q)
		quiet = &qs
	}
	return string(b), quiet, nil
}

// scanContact scans a single row into a Contact.
func scanContact(row pgx.Row) (*models.Contact, error) {
	var (
		c        models.Contact
		status   string
		channels []byte
		quiet    []byte
	)
	err := row.Scan(
		&c.UserID, &c.PrimaryEmail, &status, &c.Locale,
		&channels, &quiet, &c.Version, &c.CreatedAt, &c.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	c.EmailStatus = models.EmailStatus(status)
	if err := json.Unmarshal(channels, &c.Channels); err != nil {
		return nil, fmt.Errorf("decode channels: %w", err)
	}
	if len(quiet) > 0 {
		var qh models.QuietHours
		if err := json.Unmarshal(quiet, &qh); err != nil {
			return nil, fmt.Errorf("decode quiet hours: %w", err)
		}
		c.QuietHours = &qh
	}
	return &c, nil
}
