package services

import (
	"context"
	"fmt"
	"time"

	"orbnet/internal/core/domain"
	"orbnet/internal/core/ports"
	"orbnet/pkg/cache"
)

// CachedLivestreamService wraps LivestreamService with read caching.
// Mutations pass through and invalidate the affected keys.
type CachedLivestreamService struct {
	base       ports.LivestreamService
	cache      *cache.Cache
	sessionTTL time.Duration
	messageTTL time.Duration
}

func NewCachedLivestreamService(base ports.LivestreamService, sessionTTL, messageTTL time.Duration) *CachedLivestreamService {
	return &CachedLivestreamService{
		base:       base,
		cache:      cache.New(sessionTTL),
		sessionTTL: sessionTTL,
		messageTTL: messageTTL,
	}
}

func sessionKey(id domain.SessionID) string {
	return fmt.Sprintf("session:%s", id)
}

func messagesKey(id domain.SessionID) string {
	return fmt.Sprintf("session:%s:messages", id)
}

func (s *CachedLivestreamService) GoLive(ctx context.Context, title string, host domain.Participant) (*domain.LivestreamSession, error) {
	session, err := s.base.GoLive(ctx, title, host)
	if err != nil {
		return nil, err
	}

	s.cache.Invalidate("sessions:list:")
	return session, nil
}

func (s *CachedLivestreamService) End(ctx context.Context, id domain.SessionID) (*domain.LivestreamSession, error) {
	session, err := s.base.End(ctx, id)
	if err != nil {
		return nil, err
	}

	s.cache.Invalidate(sessionKey(id))
	s.cache.Invalidate("sessions:list:")
	return session, nil
}

func (s *CachedLivestreamService) Get(ctx context.Context, id domain.SessionID) (*domain.LivestreamSession, error) {
	value, err := s.cache.GetOrSet(ctx, sessionKey(id), s.sessionTTL, func(ctx context.Context) (interface{}, error) {
		return s.base.Get(ctx, id)
	})
	if err != nil {
		return nil, err
	}
	return value.(*domain.LivestreamSession), nil
}

func (s *CachedLivestreamService) ListLive(ctx context.Context) ([]*domain.LivestreamSession, error) {
	value, err := s.cache.GetOrSet(ctx, "sessions:list:live", s.sessionTTL, func(ctx context.Context) (interface{}, error) {
		return s.base.ListLive(ctx)
	})
	if err != nil {
		return nil, err
	}
	return value.([]*domain.LivestreamSession), nil
}

func (s *CachedLivestreamService) Join(ctx context.Context, id domain.SessionID) (*domain.LivestreamSession, error) {
	session, err := s.base.Join(ctx, id)
	if err != nil {
		return nil, err
	}

	s.cache.Invalidate(sessionKey(id))
	s.cache.Invalidate("sessions:list:")
	return session, nil
}

func (s *CachedLivestreamService) Leave(ctx context.Context, id domain.SessionID) (*domain.LivestreamSession, error) {
	session, err := s.base.Leave(ctx, id)
	if err != nil {
		return nil, err
	}

	s.cache.Invalidate(sessionKey(id))
	s.cache.Invalidate("sessions:list:")
	return session, nil
}

func (s *CachedLivestreamService) Like(ctx context.Context, id domain.SessionID) (*domain.LivestreamSession, error) {
	session, err := s.base.Like(ctx, id)
	if err != nil {
		return nil, err
	}

	s.cache.Invalidate(sessionKey(id))
	return session, nil
}

func (s *CachedLivestreamService) PostMessage(ctx context.Context, id domain.SessionID, author domain.Participant, body string) (*domain.ChatMessage, error) {
	msg, err := s.base.PostMessage(ctx, id, author, body)
	if err != nil {
		return nil, err
	}

	s.cache.Invalidate(messagesKey(id))
	return msg, nil
}

// ListMessages caches with a shorter TTL; chat moves faster than
// session state.
func (s *CachedLivestreamService) ListMessages(ctx context.Context, id domain.SessionID) ([]*domain.ChatMessage, error) {
	value, err := s.cache.GetOrSet(ctx, messagesKey(id), s.messageTTL, func(ctx context.Context) (interface{}, error) {
		return s.base.ListMessages(ctx, id)
	})
	if err != nil {
		return nil, err
	}
	return value.([]*domain.ChatMessage), nil
}

// Stop stops the cache cleanup loop.
func (s *CachedLivestreamService) Stop() {
	s.cache.Stop()
}
