package snapshot

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"orbnet/internal/core/ports"
	"orbnet/pkg/snapshot"
)

// Scheduler periodically snapshots live sessions and their chat so a
// restarted relay can pick up in-flight broadcasts. Signal streams are
// deliberately not captured: negotiation state is useless across a
// restart, clients renegotiate from scratch.
type Scheduler struct {
	service   *snapshot.Service
	sessions  ports.SessionStore
	interval  time.Duration
	retention time.Duration
	logger    *zap.SugaredLogger
	stopChan  chan struct{}
}

// Config contains scheduler configuration
type Config struct {
	Interval      time.Duration
	RetentionDays int
}

// NewScheduler creates a new snapshot scheduler
func NewScheduler(
	service *snapshot.Service,
	sessions ports.SessionStore,
	cfg Config,
	logger *zap.SugaredLogger,
) *Scheduler {
	return &Scheduler{
		service:   service,
		sessions:  sessions,
		interval:  cfg.Interval,
		retention: time.Duration(cfg.RetentionDays) * 24 * time.Hour,
		logger:    logger,
		stopChan:  make(chan struct{}),
	}
}

// Start runs the snapshot loop until Stop or context cancellation.
func (s *Scheduler) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.runSnapshot(ctx)

	for {
		select {
		case <-ticker.C:
			s.runSnapshot(ctx)
		case <-s.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Stop stops the snapshot scheduler
func (s *Scheduler) Stop() {
	close(s.stopChan)
}

func (s *Scheduler) runSnapshot(ctx context.Context) {
	data, err := s.collectData(ctx)
	if err != nil {
		s.logger.Errorw("failed to collect snapshot data", "error", err)
		return
	}

	name, err := s.service.Create(ctx, data)
	if err != nil {
		s.logger.Errorw("failed to create snapshot", "error", err)
		return
	}

	s.logger.Infow("snapshot created",
		"name", name,
		"sessions", len(data.Sessions),
	)

	if removed, err := s.service.Prune(ctx, s.retention); err != nil {
		s.logger.Warnw("failed to prune old snapshots", "error", err)
	} else if removed > 0 {
		s.logger.Infow("pruned old snapshots", "removed", removed)
	}
}

// collectData captures every live session and its chat history.
func (s *Scheduler) collectData(ctx context.Context) (*snapshot.Data, error) {
	data := &snapshot.Data{
		Sessions: make(map[string]json.RawMessage),
		Messages: make(map[string]json.RawMessage),
		Metadata: make(map[string]string),
	}

	sessions, err := s.sessions.ListLive(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list live sessions: %w", err)
	}

	for _, session := range sessions {
		encoded, err := json.Marshal(session)
		if err != nil {
			return nil, fmt.Errorf("failed to encode session %s: %w", session.ID, err)
		}
		data.Sessions[string(session.ID)] = encoded

		messages, err := s.sessions.ListMessages(ctx, session.ID)
		if err != nil {
			s.logger.Warnw("failed to list messages for snapshot",
				"session_id", session.ID,
				"error", err,
			)
			continue
		}
		if len(messages) == 0 {
			continue
		}

		encodedMsgs, err := json.Marshal(messages)
		if err != nil {
			return nil, fmt.Errorf("failed to encode messages for %s: %w", session.ID, err)
		}
		data.Messages[string(session.ID)] = encodedMsgs
	}

	data.Metadata["live_sessions"] = fmt.Sprintf("%d", len(sessions))

	return data, nil
}
