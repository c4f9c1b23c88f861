// Package inmem provides an in-memory implementation of session.Store.
//
// It is intended for tests and local development. Production deployments
// should use the durable implementation in internal/session/mongo.
package inmem

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/deckforge/orchestrator/internal/session"
)

// Store is an in-memory implementation of session.Store. Safe for
// concurrent use.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]session.Session
	seq      map[string]int64
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		sessions: make(map[string]session.Session),
		seq:      make(map[string]int64),
	}
}

// GetOrCreate implements session.Store.
func (s *Store) GetOrCreate(_ context.Context, sessionID, userID string) (session.Session, error) {
	if sessionID == "" {
		return session.Session{}, errors.New("session id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.sessions[sessionID]; ok {
		return existing.Clone(), nil
	}

	now := time.Now().UTC()
	out := session.Session{
		ID:           sessionID,
		UserID:       userID,
		CurrentState: session.StateProvideGreeting,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	s.sessions[sessionID] = out
	return out.Clone(), nil
}

// Save implements session.Store. It replaces all fields except
// ConversationHistory, which only AppendHistory mutates.
func (s *Store) Save(_ context.Context, in session.Session) error {
	if in.ID == "" {
		return errors.New("session id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.sessions[in.ID]
	if !ok {
		return session.ErrNotFound
	}

	updated := in.Clone()
	updated.ConversationHistory = existing.ConversationHistory
	updated.UpdatedAt = time.Now().UTC()
	s.sessions[in.ID] = updated
	return nil
}

// AppendHistory implements session.Store. Idempotent by MessageID.
func (s *Store) AppendHistory(_ context.Context, sessionID string, entry session.Entry) error {
	if sessionID == "" {
		return errors.New("session id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.sessions[sessionID]
	if !ok {
		return session.ErrNotFound
	}

	if entry.MessageID != "" {
		for _, e := range existing.ConversationHistory {
			if e.MessageID == entry.MessageID {
				return nil
			}
		}
	}

	s.seq[sessionID]++
	entry.SeqIndex = s.seq[sessionID]
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	existing.ConversationHistory = append(existing.ConversationHistory, entry)
	existing.UpdatedAt = time.Now().UTC()
	s.sessions[sessionID] = existing
	return nil
}

// LoadHistory implements session.Store.
func (s *Store) LoadHistory(_ context.Context, sessionID string) ([]session.Entry, error) {
	if sessionID == "" {
		return nil, errors.New("session id is required")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	existing, ok := s.sessions[sessionID]
	if !ok {
		return nil, session.ErrNotFound
	}

	out := make([]session.Entry, len(existing.ConversationHistory))
	copy(out, existing.ConversationHistory)
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.Before(out[j].Timestamp)
		}
		return out[i].SeqIndex < out[j].SeqIndex
	})
	return out, nil
}

var _ session.Store = (*Store)(nil)
