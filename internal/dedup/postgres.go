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

package dedup

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore keeps dedup keys in a table whose primary key is the full
// (bucket, user, fingerprint) triple. Rows are write-once.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a dedup store backed by the given Postgres pool.
// It ensures the dedup_key table exists on creation.
func NewPostgresStore(ctx context.Context, pool *pgxpool.Pool) (*PostgresStore, error) {
	s := &PostgresStore{pool: pool}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure dedup schema: %w", err)
	}
	slog.Info("dedup store initialised", "backend", "postgres")
	return s, nil
}

func (s *PostgresStore) ensureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS dedup_key (
			bucket      TIMESTAMPTZ NOT NULL,
			user_id     UUID NOT NULL,
			fingerprint VARCHAR(128) NOT NULL,
			created_at  TIMESTAMPTZ DEFAULT NOW(),
			PRIMARY KEY (bucket, user_id, fingerprint)
		);
	`)
	return err
}

// InsertIfAbsent inserts the key. Returns true if this call created the row.
func (s *PostgresStore) InsertIfAbsent(ctx context.Context, userID uuid.UUID, fingerprint string, bucket time.Time) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO dedup_key (bucket, user_id, fingerprint)
		VALUES ($1, $2, $3)
		ON CONFLICT DO NOTHING
	`, bucket.UTC(), userID, fingerprint)
	if err != nil {
		return false, fmt.Errorf("insert dedup key: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}
