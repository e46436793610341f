package services

import (
	"context"
	"fmt"
	"time"

	"orbnet/internal/core/domain"
	"orbnet/internal/core/ports"
	"orbnet/pkg/utils"
)

type livestreamService struct {
	sessions ports.SessionStore
	metrics  ports.MetricsRecorder
}

func NewLivestreamService(sessions ports.SessionStore, metrics ports.MetricsRecorder) ports.LivestreamService {
	return &livestreamService{
		sessions: sessions,
		metrics:  metrics,
	}
}

func (s *livestreamService) GoLive(ctx context.Context, title string, host domain.Participant) (*domain.LivestreamSession, error) {
	session := &domain.LivestreamSession{
		ID:        domain.SessionID(utils.GenerateSessionID()),
		Title:     utils.SanitizeString(title),
		Host:      host,
		Status:    domain.StatusLive,
		StartedAt: time.Now(),
	}

	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	s.refreshLiveGauge(ctx)
	return session, nil
}

func (s *livestreamService) End(ctx context.Context, id domain.SessionID) (*domain.LivestreamSession, error) {
	session, err := s.sessions.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	// Ending twice is fine; the first end wins.
	if session.Status == domain.StatusEnded {
		return session, nil
	}

	now := time.Now()
	session.Status = domain.StatusEnded
	session.EndedAt = &now

	if err := s.sessions.Update(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to end session: %w", err)
	}

	s.refreshLiveGauge(ctx)
	return session, nil
}

func (s *livestreamService) Get(ctx context.Context, id domain.SessionID) (*domain.LivestreamSession, error) {
	return s.sessions.GetByID(ctx, id)
}

func (s *livestreamService) ListLive(ctx context.Context) ([]*domain.LivestreamSession, error) {
	return s.sessions.ListLive(ctx)
}

func (s *livestreamService) Join(ctx context.Context, id domain.SessionID) (*domain.LivestreamSession, error) {
	session, err := s.sessions.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if session.Status != domain.StatusLive {
		return nil, domain.ErrSessionEnded
	}

	session.ViewerCount++
	if session.ViewerCount > session.PeakViewers {
		session.PeakViewers = session.ViewerCount
	}

	if err := s.sessions.Update(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to join session: %w", err)
	}

	s.metrics.SetSessionViewers(id, session.ViewerCount)
	return session, nil
}

func (s *livestreamService) Leave(ctx context.Context, id domain.SessionID) (*domain.LivestreamSession, error) {
	session, err := s.sessions.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	// Leaving an ended session still drains the count; it never goes
	// below zero.
	if session.ViewerCount > 0 {
		session.ViewerCount--
		if err := s.sessions.Update(ctx, session); err != nil {
			return nil, fmt.Errorf("failed to leave session: %w", err)
		}
		s.metrics.SetSessionViewers(id, session.ViewerCount)
	}

	return session, nil
}

func (s *livestreamService) Like(ctx context.Context, id domain.SessionID) (*domain.LivestreamSession, error) {
	session, err := s.sessions.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if session.Status != domain.StatusLive {
		return nil, domain.ErrSessionEnded
	}

	session.TotalLikes++
	if err := s.sessions.Update(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to record like: %w", err)
	}

	return session, nil
}

func (s *livestreamService) PostMessage(ctx context.Context, id domain.SessionID, author domain.Participant, body string) (*domain.ChatMessage, error) {
	session, err := s.sessions.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if session.Status != domain.StatusLive {
		return nil, domain.ErrSessionEnded
	}

	body = utils.SanitizeString(body)
	if utils.IsEmpty(body) {
		return nil, fmt.Errorf("empty message: %w", domain.ErrInvalidMessage)
	}
	if len([]rune(body)) > domain.ChatMessageMaxLen {
		return nil, fmt.Errorf("message exceeds %d characters: %w", domain.ChatMessageMaxLen, domain.ErrInvalidMessage)
	}

	msg := &domain.ChatMessage{
		ID:        utils.GenerateMessageID(),
		Session:   id,
		Author:    author,
		Body:      body,
		CreatedAt: time.Now(),
	}

	if err := s.sessions.AppendMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("failed to store message: %w", err)
	}

	return msg, nil
}

func (s *livestreamService) ListMessages(ctx context.Context, id domain.SessionID) ([]*domain.ChatMessage, error) {
	if _, err := s.sessions.GetByID(ctx, id); err != nil {
		return nil, err
	}
	return s.sessions.ListMessages(ctx, id)
}

// refreshLiveGauge is best-effort; a failed list just leaves the gauge
// at its previous value.
func (s *livestreamService) refreshLiveGauge(ctx context.Context) {
	live, err := s.sessions.ListLive(ctx)
	if err != nil {
		return
	}
	s.metrics.SetLiveSessions(len(live))
}
