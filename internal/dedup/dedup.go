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

// Package dedup collapses repeated notification events. An event is keyed by
// (user, fingerprint, bucket) where the bucket is the event time truncated to
// a fixed, epoch-aligned window; the first insert of a key wins.
package dedup

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Store records dedup keys. InsertIfAbsent must be atomic: when two callers
// race on the same key exactly one of them gets true.
type Store interface {
	InsertIfAbsent(ctx context.Context, userID uuid.UUID, fingerprint string, bucket time.Time) (bool, error)
}

// keyPrefix namespaces dedup keys in Redis.
const keyPrefix = "notify:dedup:"

// RedisStore keeps dedup keys in Redis. Keys carry no TTL: the bucket comes
// from the event time, so a late resubmission must still hit its key.
type RedisStore struct {
	rdb *redis.Client
}

// NewRedisStore creates a dedup store backed by Redis.
func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

// InsertIfAbsent marks the key as seen. Returns true if it was not seen before.
func (s *RedisStore) InsertIfAbsent(ctx context.Context, userID uuid.UUID, fingerprint string, bucket time.Time) (bool, error) {
	// SET NX = set only if key does not exist. Returns true if the key was set.
	set, err := s.rdb.SetNX(ctx, redisKey(userID, fingerprint, bucket), bucket.Unix(), 0).Result()
	if err != nil {
		return false, fmt.Errorf("dedup SETNX: %w", err)
	}
	return set, nil
}

// redisKey puts the fingerprint last since it is caller-supplied and may
// contain the separator.
func redisKey(userID uuid.UUID, fingerprint string, bucket time.Time) string {
	return fmt.Sprintf("%s%s:%d:%s", keyPrefix, userID, bucket.Unix(), fingerprint)
}

// MemoryStore is a process-local Store for tests and single-instance
// development setups. Keys are never evicted.
type MemoryStore struct {
	mu   sync.Mutex
	seen map[memoryKey]struct{}
}

type memoryKey struct {
	userID      uuid.UUID
	fingerprint string
	bucket      int64
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{seen: make(map[memoryKey]struct{})}
}

// InsertIfAbsent records the key. Returns true if it was not seen before.
func (s *MemoryStore) InsertIfAbsent(_ context.Context, userID uuid.UUID, fingerprint string, bucket time.Time) (bool, error) {
	k := memoryKey{userID: userID, fingerprint: fingerprint, bucket: bucket.Unix()}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.seen[k]; ok {
		return false, nil
	}
	s.seen[k] = struct{}{}
	return true, nil
}

// Len returns the number of recorded keys.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.seen)
}

// Verify interface compliance.
var (
	_ Store = (*RedisStore)(nil)
	_ Store = (*MemoryStore)(nil)
	_ Store = (*PostgresStore)(nil)
)
