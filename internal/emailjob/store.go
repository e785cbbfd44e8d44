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

package emailjob

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Notivest/notification-service/internal/models"
)

// Store persists jobs. FindDue returns at most limit PENDING jobs with
// scheduled_at <= now, earliest first.
type Store interface {
	Save(ctx context.Context, job models.EmailJob) (models.EmailJob, error)
	FindDue(ctx context.Context, now time.Time, limit int) ([]models.EmailJob, error)
}

// PostgresStore keeps jobs in the email_job table.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a job store backed by the given Postgres pool.
// It ensures the email_job table exists on creation.
func NewPostgresStore(ctx context.Context, pool *pgxpool.Pool) (*PostgresStore, error) {
	s := &PostgresStore{pool: pool}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure email job schema: %w", err)
	}
	slog.Info("email job store initialised")
	return s, nil
}

func (s *PostgresStore) ensureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS email_job (
			id            UUID PRIMARY KEY,
			user_id       UUID NOT NULL,
			template_key  VARCHAR(64) NOT NULL,
			template_data JSONB,
			status        VARCHAR(16) NOT NULL,
			attempts      INT NOT NULL DEFAULT 0,
			error         TEXT,
			scheduled_at  TIMESTAMPTZ NOT NULL,
			created_at    TIMESTAMPTZ NOT NULL,
			updated_at    TIMESTAMPTZ NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_email_job_due ON email_job(status, scheduled_at);
		CREATE INDEX IF NOT EXISTS idx_email_job_user ON email_job(user_id);
	`)
	return err
}

// Save inserts the job or updates its mutable columns. scheduled_at and
// created_at are written once.
func (s *PostgresStore) Save(ctx context.Context, job models.EmailJob) (models.EmailJob, error) {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO email_job
			(id, user_id, template_key, template_data, status, attempts, error, scheduled_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4::jsonb, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			status     = EXCLUDED.status,
			attempts   = EXCLUDED.attempts,
			error      = EXCLUDED.error,
			updated_at = EXCLUDED.updated_at
	`, job.ID, job.UserID, job.TemplateKey, string(job.TemplateData), string(job.Status),
		job.Attempts, job.Error, job.ScheduledAt, job.CreatedAt, job.UpdatedAt)
	if err != nil {
		return models.EmailJob{}, fmt.Errorf("save email job %s: %w", job.ID, err)
	}
	return job, nil
}

// FindDue returns due PENDING jobs ordered by scheduled_at.
func (s *PostgresStore) FindDue(ctx context.Context, now time.Time, limit int) ([]models.EmailJob, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, user_id, template_key, COALESCE(template_data, 'null'::jsonb), status,
		       attempts, error, scheduled_at, created_at, updated_at
		FROM email_job
		WHERE status = $1 AND scheduled_at <= $2
		ORDER BY scheduled_at ASC
		LIMIT $3
	`, string(models.JobStatusPending), now, limit)
	if err != nil {
		return nil, fmt.Errorf("find due jobs: %w", err)
	}
	defer rows.Close()
	return collectJobs(rows)
}

// collectJobs scans multiple rows into a slice of jobs.
func collectJobs(rows pgx.Rows) ([]models.EmailJob, error) {
	var jobs []models.EmailJob
	for rows.Next() {
		var (
			j      models.EmailJob
			data   []byte
			status string
		)
		if err := rows.Scan(
			&j.ID, &j.UserID, &j.TemplateKey, &data, &status,
			&j.Attempts, &j.Error, &j.ScheduledAt, &j.CreatedAt, &j.UpdatedAt,
		); err != nil {
			return nil, err
		}
		j.TemplateData = data
		j.Status = models.JobStatus(status)
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

// MemoryStore is an in-process Store used by tests.
type MemoryStore struct {
	mu        sync.Mutex
	jobs      map[uuid.UUID]models.EmailJob
	findCalls int
}

// NewMemoryStore creates a store seeded with jobs.
func NewMemoryStore(seed ...models.EmailJob) *MemoryStore {
	s := &MemoryStore{jobs: make(map[uuid.UUID]models.EmailJob)}
	for _, j := range seed {
		s.jobs[j.ID] = j
	}
	return s
}

// Save stores job.
func (s *MemoryStore) Save(_ context.Context, job models.EmailJob) (models.EmailJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job
	return job, nil
}

// FindDue returns due jobs ordered by ScheduledAt.
func (s *MemoryStore) FindDue(_ context.Context, now time.Time, limit int) ([]models.EmailJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.findCalls++

	var due []models.EmailJob
	for _, j := range s.jobs {
		if j.IsDue(now) {
			due = append(due, j)
		}
	}
	sort.Slice(due, func(a, b int) bool { return due[a].ScheduledAt.Before(due[b].ScheduledAt) })
	if len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

// Get returns the stored job.
func (s *MemoryStore) Get(id uuid.UUID) (models.EmailJob, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	return j, ok
}

// FindCalls returns how many times FindDue was called.
func (s *MemoryStore) FindCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.findCalls
}

var (
	_ Store = (*PostgresStore)(nil)
	_ Store = (*MemoryStore)(nil)
)
