package session

import (
	"context"
	"sort"
	"sync"
	"time"

	"bumpcontrol/internal/models"
)

type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]models.Session
	order    []string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]models.Session)}
}

func (m *MemoryStore) Create(_ context.Context, s *models.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.sessions {
		if existing.OwnerID == s.OwnerID && existing.Status == models.SessionRunning {
			return ErrSessionRunning
		}
	}
	now := time.Now()
	s.CreatedAt, s.UpdatedAt = now, now
	m.sessions[s.ID] = *s
	m.order = append(m.order, s.ID)
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (*models.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return &s, nil
}

func (m *MemoryStore) Latest(_ context.Context, owner string) (*models.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for i := len(m.order) - 1; i >= 0; i-- {
		s := m.sessions[m.order[i]]
		if s.OwnerID == owner {
			return &s, nil
		}
	}
	return nil, ErrSessionNotFound
}

func (m *MemoryStore) Running(_ context.Context, owner string) (*models.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, s := range m.sessions {
		if s.OwnerID == owner && s.Status == models.SessionRunning {
			return &s, nil
		}
	}
	return nil, ErrNoRunningSession
}

func (m *MemoryStore) ListRunning(_ context.Context) ([]models.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.Session
	for _, s := range m.sessions {
		if s.Status == models.SessionRunning {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out, nil
}

func (m *MemoryStore) Update(_ context.Context, s *models.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.sessions[s.ID]
	if !ok {
		return ErrSessionNotFound
	}
	if current.Version != s.Version {
		return ErrStaleSession
	}
	s.Version++
	s.UpdatedAt = time.Now()
	m.sessions[s.ID] = *s
	return nil
}
