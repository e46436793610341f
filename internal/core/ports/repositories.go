package ports

import (
	"context"
	"time"

	"orbnet/internal/core/domain"
)

type SignalStore interface {
	// Append assigns the signal's ID and CreatedAt, persists it, and
	// prunes the session's stream to the retention limit.
	Append(ctx context.Context, session domain.SessionID, role domain.SignalRole, kind domain.SignalKind, payload []byte) (*domain.Signal, error)
	// ListSince returns every retained signal sorting strictly after
	// the cursor, ordered by (CreatedAt, ID).
	ListSince(ctx context.Context, session domain.SessionID, cursor domain.Cursor) ([]*domain.Signal, error)
	DeleteSession(ctx context.Context, session domain.SessionID) error
}

type SessionStore interface {
	Create(ctx context.Context, session *domain.LivestreamSession) error
	GetByID(ctx context.Context, id domain.SessionID) (*domain.LivestreamSession, error)
	Update(ctx context.Context, session *domain.LivestreamSession) error
	Delete(ctx context.Context, id domain.SessionID) error
	ListLive(ctx context.Context) ([]*domain.LivestreamSession, error)
	// ListEndedBefore returns ended sessions whose EndedAt precedes the
	// cutoff. The janitor uses it to pick sweep targets.
	ListEndedBefore(ctx context.Context, cutoff time.Time) ([]*domain.LivestreamSession, error)
	// AppendMessage stores a chat line, keeping only the latest
	// domain.ChatHistoryLimit per session.
	AppendMessage(ctx context.Context, msg *domain.ChatMessage) error
	ListMessages(ctx context.Context, id domain.SessionID) ([]*domain.ChatMessage, error)
}

type RosterStore interface {
	Add(ctx context.Context, entry *domain.RosterEntry) error
	Remove(ctx context.Context, room domain.RoomID, id domain.ParticipantID) error
	List(ctx context.Context, room domain.RoomID) ([]*domain.RosterEntry, error)
	// Touch refreshes the participant's last-seen mark; unknown
	// participants are ignored.
	Touch(ctx context.Context, room domain.RoomID, id domain.ParticipantID) error
	DeleteRoom(ctx context.Context, room domain.RoomID) error
	// PruneStale drops entries whose last-seen precedes the cutoff and
	// reports how many were removed. Crashed clients never send a
	// departure, so the janitor reaps them here.
	PruneStale(ctx context.Context, cutoff time.Time) (int, error)
}
