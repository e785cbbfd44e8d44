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
	"sync"

	"github.com/google/uuid"

	"github.com/Notivest/notification-service/internal/models"
)

// MemoryStore is an in-process Store used by tests across packages.
type MemoryStore struct {
	mu       sync.Mutex
	contacts map[uuid.UUID]models.Contact
	saves    int
}

// NewMemoryStore creates a store seeded with the given contacts.
func NewMemoryStore(seed ...models.Contact) *MemoryStore {
	s := &MemoryStore{contacts: make(map[uuid.UUID]models.Contact)}
	for _, c := range seed {
		s.contacts[c.UserID] = c
	}
	return s
}

// FindByUserID returns a copy of the stored contact.
func (s *MemoryStore) FindByUserID(_ context.Context, userID uuid.UUID) (*models.Contact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.contacts[userID]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

// Save stores c.
func (s *MemoryStore) Save(_ context.Context, c models.Contact) (models.Contact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.contacts[c.UserID] = c
	s.saves++
	return c, nil
}

// Saves returns how many times Save was called.
func (s *MemoryStore) Saves() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*PostgresStore)(nil)
)
