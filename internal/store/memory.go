package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/openlot/openlot/marketplace/pkg/models"
)

// MemoryStore is a thread-safe in-memory SessionStore. Each auction's
// pipeline is the only writer of its session; the lock exists because
// independent auctions and query callers share the table.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*models.AuctionSession // key: session ID
}

// NewMemoryStore creates an empty in-memory session table.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*models.AuctionSession),
	}
}

// CreateSession stores a new session.
func (s *MemoryStore) CreateSession(_ context.Context, session *models.AuctionSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sessions[session.ID]; exists {
		return fmt.Errorf("auction session %s already exists", session.ID)
	}
	cp := *session
	s.sessions[session.ID] = &cp
	return nil
}

// GetSession retrieves a session by ID.
func (s *MemoryStore) GetSession(_ context.Context, id string) (*models.AuctionSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[id]
	if !ok {
		return nil, &ErrNotFound{ID: id}
	}
	cp := *session
	return &cp, nil
}

// UpdateSession replaces the session state. Terminal sessions are immutable.
func (s *MemoryStore) UpdateSession(_ context.Context, session *models.AuctionSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.sessions[session.ID]
	if !ok {
		return &ErrNotFound{ID: session.ID}
	}
	if existing.Status.Terminal() {
		return fmt.Errorf("auction session %s is %s and cannot be updated", session.ID, existing.Status)
	}
	cp := *session
	s.sessions[session.ID] = &cp
	return nil
}

// ListActive lists non-terminal sessions for a workspace.
func (s *MemoryStore) ListActive(_ context.Context, workspace string) ([]models.AuctionSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []models.AuctionSession
	for _, sess := range s.sessions {
		if sess.Workspace == workspace && !sess.Status.Terminal() {
			result = append(result, *sess)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

// ListHistory lists COMPLETED sessions for a workspace, newest first.
func (s *MemoryStore) ListHistory(_ context.Context, workspace string, limit int) ([]models.AuctionSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []models.AuctionSession
	for _, sess := range s.sessions {
		if sess.Workspace == workspace && sess.Status == models.AuctionCompleted {
			result = append(result, *sess)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		ti, tj := result[i].CreatedAt, result[j].CreatedAt
		if result[i].CompletedAt != nil {
			ti = *result[i].CompletedAt
		}
		if result[j].CompletedAt != nil {
			tj = *result[j].CompletedAt
		}
		return ti.After(tj)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}
