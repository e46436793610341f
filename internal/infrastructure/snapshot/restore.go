package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"orbnet/internal/core/domain"
	"orbnet/internal/core/ports"
	"orbnet/pkg/snapshot"
)

// RestoreService reloads the latest snapshot into the session store at
// boot. Sessions already present in the store win over the snapshot;
// the store is fresher by definition.
type RestoreService struct {
	service  *snapshot.Service
	sessions ports.SessionStore
	logger   *zap.SugaredLogger
}

// NewRestoreService creates a new restore service
func NewRestoreService(
	service *snapshot.Service,
	sessions ports.SessionStore,
	logger *zap.SugaredLogger,
) *RestoreService {
	return &RestoreService{
		service:  service,
		sessions: sessions,
		logger:   logger,
	}
}

// RestoreLatest loads the newest snapshot and recreates any live
// session the store does not already hold. Returns how many sessions
// were recreated; no snapshots on disk is not an error.
func (rs *RestoreService) RestoreLatest(ctx context.Context) (int, error) {
	data, err := rs.service.RestoreLatest(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to load latest snapshot: %w", err)
	}
	if data == nil {
		return 0, nil
	}

	if data.Version == "" {
		return 0, fmt.Errorf("invalid snapshot: missing version")
	}

	restored := 0
	for id, raw := range data.Sessions {
		var session domain.LivestreamSession
		if err := json.Unmarshal(raw, &session); err != nil {
			rs.logger.Warnw("skipping undecodable snapshot session",
				"session_id", id,
				"error", err,
			)
			continue
		}

		if _, err := rs.sessions.GetByID(ctx, session.ID); err == nil {
			continue
		} else if !errors.Is(err, domain.ErrSessionNotFound) {
			return restored, fmt.Errorf("failed to check session %s: %w", session.ID, err)
		}

		if err := rs.sessions.Create(ctx, &session); err != nil {
			rs.logger.Warnw("failed to restore session",
				"session_id", session.ID,
				"error", err,
			)
			continue
		}
		restored++

		rs.restoreMessages(ctx, session.ID, data.Messages[id])
	}

	if restored > 0 {
		rs.logger.Infow("restored sessions from snapshot",
			"restored", restored,
			"snapshot_time", data.Timestamp,
		)
	}

	return restored, nil
}

func (rs *RestoreService) restoreMessages(ctx context.Context, session domain.SessionID, raw json.RawMessage) {
	if len(raw) == 0 {
		return
	}

	var messages []*domain.ChatMessage
	if err := json.Unmarshal(raw, &messages); err != nil {
		rs.logger.Warnw("skipping undecodable snapshot messages",
			"session_id", session,
			"error", err,
		)
		return
	}

	for _, msg := range messages {
		if err := rs.sessions.AppendMessage(ctx, msg); err != nil {
			rs.logger.Warnw("failed to restore chat message",
				"session_id", session,
				"message_id", msg.ID,
				"error", err,
			)
			return
		}
	}
}
