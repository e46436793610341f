package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"orbnet/internal/core/domain"
	"orbnet/internal/core/ports"
)

type MemorySessionStore struct {
	mu       sync.RWMutex
	sessions map[domain.SessionID]*domain.LivestreamSession
	messages map[domain.SessionID][]*domain.ChatMessage
}

func NewMemorySessionStore() ports.SessionStore {
	return &MemorySessionStore{
		sessions: make(map[domain.SessionID]*domain.LivestreamSession),
		messages: make(map[domain.SessionID][]*domain.ChatMessage),
	}
}

func (s *MemorySessionStore) Create(ctx context.Context, session *domain.LivestreamSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sessions[session.ID]; exists {
		return fmt.Errorf("session already exists: %s", session.ID)
	}

	cp := *session
	s.sessions[session.ID] = &cp
	return nil
}

func (s *MemorySessionStore) GetByID(ctx context.Context, id domain.SessionID) (*domain.LivestreamSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, exists := s.sessions[id]
	if !exists {
		return nil, domain.ErrSessionNotFound
	}

	cp := *session
	return &cp, nil
}

func (s *MemorySessionStore) Update(ctx context.Context, session *domain.LivestreamSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sessions[session.ID]; !exists {
		return domain.ErrSessionNotFound
	}

	cp := *session
	s.sessions[session.ID] = &cp
	return nil
}

func (s *MemorySessionStore) Delete(ctx context.Context, id domain.SessionID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sessions[id]; !exists {
		return domain.ErrSessionNotFound
	}

	delete(s.sessions, id)
	delete(s.messages, id)
	return nil
}

func (s *MemorySessionStore) ListLive(ctx context.Context) ([]*domain.LivestreamSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var live []*domain.LivestreamSession
	for _, session := range s.sessions {
		if session.Status == domain.StatusLive {
			cp := *session
			live = append(live, &cp)
		}
	}
	return live, nil
}

func (s *MemorySessionStore) ListEndedBefore(ctx context.Context, cutoff time.Time) ([]*domain.LivestreamSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var ended []*domain.LivestreamSession
	for _, session := range s.sessions {
		if session.Status == domain.StatusEnded && session.EndedAt != nil && session.EndedAt.Before(cutoff) {
			cp := *session
			ended = append(ended, &cp)
		}
	}
	return ended, nil
}

func (s *MemorySessionStore) AppendMessage(ctx context.Context, msg *domain.ChatMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sessions[msg.Session]; !exists {
		return domain.ErrSessionNotFound
	}

	history := append(s.messages[msg.Session], msg)
	if excess := len(history) - domain.ChatHistoryLimit; excess > 0 {
		history = history[excess:]
	}
	s.messages[msg.Session] = history
	return nil
}

func (s *MemorySessionStore) ListMessages(ctx context.Context, id domain.SessionID) ([]*domain.ChatMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history := s.messages[id]
	out := make([]*domain.ChatMessage, len(history))
	copy(out, history)
	return out, nil
}
