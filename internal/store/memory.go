package store

import (
	"context"
	"sync"
	"time"

	"ticket-acquisition/models"
)

// MemoryStore is an in-process SelectionStore for tests and for deployments
// that keep the whole session server-side with no shared backend.
type MemoryStore struct {
	mu   sync.Mutex
	data map[string]*models.StoredSelection
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]*models.StoredSelection)}
}

func (s *MemoryStore) Get(_ context.Context, eventID string) (*models.StoredSelection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sel, ok := s.data[eventID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *sel
	return &cp, nil
}

func (s *MemoryStore) Set(_ context.Context, eventID string, sel *models.StoredSelection) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *sel
	cp.SavedAt = time.Now()
	s.data[eventID] = &cp
	return nil
}

func (s *MemoryStore) Remove(_ context.Context, eventID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.data, eventID)
	return nil
}
