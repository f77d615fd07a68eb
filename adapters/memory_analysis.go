package adapters

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/satriahrh/audiolens/domain/entities"
	"github.com/satriahrh/audiolens/domain/repositories"
)

// MemoryAnalysisRepository keeps registered analyses in process memory
type MemoryAnalysisRepository struct {
	mu       sync.RWMutex
	sessions map[string]*entities.AnalysisSession // id -> session
	hashes   map[string]string                    // content hash -> id
}

var _ repositories.AnalysisRepository = (*MemoryAnalysisRepository)(nil)

// NewMemoryAnalysisRepository creates an empty in-memory repository
func NewMemoryAnalysisRepository() *MemoryAnalysisRepository {
	return &MemoryAnalysisRepository{
		sessions: make(map[string]*entities.AnalysisSession),
		hashes:   make(map[string]string),
	}
}

// Create implements repositories.AnalysisRepository
func (m *MemoryAnalysisRepository) Create(ctx context.Context, session *entities.AnalysisSession) error {
	if session == nil {
		return errors.New("session cannot be nil")
	}
	if err := session.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.sessions[session.ID]; exists {
		return errors.New("session with this ID already exists")
	}
	if id, exists := m.hashes[session.ContentHash]; exists {
		if old := m.sessions[id]; old != nil && !old.IsExpired() {
			return errors.New("session with this content already exists")
		}
		// An expired twin is replaced.
		delete(m.sessions, id)
	}

	stored := *session
	m.sessions[session.ID] = &stored
	m.hashes[session.ContentHash] = session.ID
	return nil
}

// GetByID implements repositories.AnalysisRepository
func (m *MemoryAnalysisRepository) GetByID(ctx context.Context, id string) (*entities.AnalysisSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	session, exists := m.sessions[id]
	if !exists || session.IsExpired() {
		return nil, repositories.ErrSessionNotFound
	}
	cp := *session
	return &cp, nil
}

// GetByHash implements repositories.AnalysisRepository
func (m *MemoryAnalysisRepository) GetByHash(ctx context.Context, hash string) (*entities.AnalysisSession, error) {
	m.mu.RLock()
	id, exists := m.hashes[hash]
	m.mu.RUnlock()

	if !exists {
		return nil, repositories.ErrSessionNotFound
	}
	return m.GetByID(ctx, id)
}

// Touch implements repositories.AnalysisRepository
func (m *MemoryAnalysisRepository) Touch(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, exists := m.sessions[id]
	if !exists || session.IsExpired() {
		return repositories.ErrSessionNotFound
	}
	session.Touch()
	return nil
}

// Delete implements repositories.AnalysisRepository
func (m *MemoryAnalysisRepository) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, exists := m.sessions[id]
	if !exists {
		return repositories.ErrSessionNotFound
	}
	delete(m.sessions, id)
	delete(m.hashes, session.ContentHash)
	return nil
}

// ExpireSessions implements repositories.AnalysisRepository
func (m *MemoryAnalysisRepository) ExpireSessions(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	var removed int64
	for id, session := range m.sessions {
		if now.After(session.ExpiresAt) {
			delete(m.sessions, id)
			delete(m.hashes, session.ContentHash)
			removed++
		}
	}
	return removed, nil
}

// Count returns the number of stored sessions, expired ones included
func (m *MemoryAnalysisRepository) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
