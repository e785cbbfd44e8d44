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
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Notivest/notification-service/internal/clock"
	"github.com/Notivest/notification-service/internal/models"
)

// TestGatePredicates verifies the channel and status predicates.
func TestGatePredicates(t *testing.T) {
	tests := []struct {
		name     string
		channels map[string]bool
		status   models.EmailStatus
		want     error
	}{
		{name: "enabled and verified", channels: map[string]bool{"email": true}, status: models.EmailStatusVerified},
		{name: "enabled and unverified", channels: map[string]bool{"email": true}, status: models.EmailStatusUnverified},
		{name: "nil channels", status: models.EmailStatusVerified, want: ErrChannelDisabled},
		{name: "missing email key", channels: map[string]bool{"sms": true}, status: models.EmailStatusVerified, want: ErrChannelDisabled},
		{name: "explicitly disabled", channels: map[string]bool{"email": false}, status: models.EmailStatusBounced, want: ErrChannelDisabled},
		{name: "bounced", channels: map[string]bool{"email": true}, status: models.EmailStatusBounced, want: &BlockedError{Status: models.EmailStatusBounced}},
		{name: "unsubscribed", channels: map[string]bool{"email": true}, status: models.EmailStatusUnsub, want: &BlockedError{Status: models.EmailStatusUnsub}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Check(models.Contact{Channels: tt.channels, EmailStatus: tt.status})
			switch want := tt.want.(type) {
			case nil:
				if err != nil {
					t.Errorf("Check() = %v, want nil", err)
				}
			case *BlockedError:
				var got *BlockedError
				if !errors.As(err, &got) || got.Status != want.Status {
					t.Errorf("Check() = %v, want %v", err, want)
				}
			default:
				if !errors.Is(err, want) {
					t.Errorf("Check() = %v, want %v", err, want)
				}
			}
		})
	}
}

// TestBlockedError_Message verifies the reason recorded on failed jobs.
func TestBlockedError_Message(t *testing.T) {
	err := &BlockedError{Status: models.EmailStatusBounced}
	if err.Error() != "Email status BOUNCED blocks delivery" {
		t.Errorf("Error() = %q", err.Error())
	}
	if ErrChannelDisabled.Error() != "Email channel disabled" {
		t.Errorf("ErrChannelDisabled = %q", ErrChannelDisabled.Error())
	}
}

// TestService_UpsertNew verifies defaults for a first save.
func TestService_UpsertNew(t *testing.T) {
	now := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	store := NewMemoryStore()
	svc := NewService(store, clock.NewFixed(now))
	user := uuid.New()

	got, err := svc.Upsert(context.Background(), UpsertCommand{
		UserID:       user,
		PrimaryEmail: "ana@example.com",
		EmailStatus:  models.EmailStatusUnverified,
	})
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if got.Version != 0 {
		t.Errorf("Version = %d, want 0", got.Version)
	}
	if !got.Channels[models.ChannelEmail] || len(got.Channels) != 1 {
		t.Errorf("Channels = %v, want default email only", got.Channels)
	}
	if !got.CreatedAt.Equal(now) || !got.UpdatedAt.Equal(now) {
		t.Errorf("timestamps = %s/%s", got.CreatedAt, got.UpdatedAt)
	}
}

// TestService_UpsertExisting verifies version bump, CreatedAt and channel carry-over.
func TestService_UpsertExisting(t *testing.T) {
	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	now := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	user := uuid.New()
	store := NewMemoryStore(models.Contact{
		UserID:      user,
		EmailStatus: models.EmailStatusVerified,
		Channels:    map[string]bool{"email": false, "push": true},
		Version:     4,
		CreatedAt:   created,
		UpdatedAt:   created,
	})
	svc := NewService(store, clock.NewFixed(now))

	qh := &models.QuietHours{Start: models.NewTimeOfDay(22, 0), End: models.NewTimeOfDay(7, 0), Timezone: "Europe/Madrid"}
	got, err := svc.Upsert(context.Background(), UpsertCommand{
		UserID:       user,
		PrimaryEmail: "ana@example.com",
		EmailStatus:  models.EmailStatusVerified,
		Locale:       "es-ES",
		QuietHours:   qh,
	})
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if got.Version != 5 {
		t.Errorf("Version = %d, want 5", got.Version)
	}
	if !got.CreatedAt.Equal(created) || !got.UpdatedAt.Equal(now) {
		t.Errorf("timestamps = %s/%s", got.CreatedAt, got.UpdatedAt)
	}
	if got.Channels["email"] || !got.Channels["push"] {
		t.Errorf("Channels = %v, want stored channels", got.Channels)
	}

	// Explicit channels replace the stored ones.
	got, err = svc.Upsert(context.Background(), UpsertCommand{
		UserID:      user,
		EmailStatus: models.EmailStatusVerified,
		Channels:    map[string]bool{"email": true},
	})
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if got.Version != 6 || !got.Channels["email"] || got.Channels["push"] {
		t.Errorf("second upsert = v%d %v", got.Version, got.Channels)
	}
	if got.QuietHours != nil {
		t.Error("quiet hours should be replaced by the command value")
	}
	if store.Saves() != 2 {
		t.Errorf("saves = %d, want 2", store.Saves())
	}
}

// TestPostgresStore_Integration round-trips a contact when TEST_DATABASE_URL is set.
func TestPostgresStore_Integration(t *testing.T) {
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer pool.Close()

	s, err := NewPostgresStore(ctx, pool)
	if err != nil {
		t.Fatalf("NewPostgresStore: %v", err)
	}

	now := time.Now().UTC().Truncate(time.Microsecond)
	in := models.Contact{
		UserID:       uuid.New(),
		PrimaryEmail: "Integration@Example.com",
		EmailStatus:  models.EmailStatusVerified,
		Channels:     map[string]bool{"email": true},
		QuietHours:   &models.QuietHours{Start: models.NewTimeOfDay(22, 0), End: models.NewTimeOfDay(6, 0)},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if _, err := s.Save(ctx, in); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := s.FindByUserID(ctx, in.UserID)
	if err != nil || got == nil {
		t.Fatalf("FindByUserID = %v, %v", got, err)
	}
	if got.Locale != "" || !got.Channels["email"] || got.QuietHours == nil || got.QuietHours.End != in.QuietHours.End {
		t.Errorf("round trip = %+v", got)
	}

	missing, err := s.FindByUserID(ctx, uuid.New())
	if err != nil || missing != nil {
		t.Errorf("missing contact = %v, %v", missing, err)
	}
}
