package ports

import (
	"context"
	"encoding/json"

	"orbnet/internal/core/domain"
)

// PresenceChannel is one room's bidirectional event relay. Delivery is
// fire-and-forget and unordered across senders.
type PresenceChannel interface {
	// Publish sends an event to the room. It never blocks on slow
	// receivers.
	Publish(ctx context.Context, ev domain.Event) error
	// Events yields inbound events until the channel closes, at which
	// point the stream is closed.
	Events() <-chan domain.Event
	Close() error
}

// SignalRelay is the client's view of the signaling endpoint.
type SignalRelay interface {
	// Fetch returns all signals with (CreatedAt, ID) after the cursor,
	// in non-decreasing order.
	Fetch(ctx context.Context, session domain.SessionID, cursor domain.Cursor) ([]*domain.Signal, error)
	// Publish posts a new signal; the relay assigns ID and CreatedAt.
	Publish(ctx context.Context, session domain.SessionID, role domain.SignalRole, kind domain.SignalKind, payload json.RawMessage) (*domain.Signal, error)
}

// MediaPeer executes description/candidate operations on one peer
// connection. Negotiation bookkeeping (which descriptions are set,
// whether an offer went out) lives in the caller, not here.
type MediaPeer interface {
	// CreateOffer builds an offer and sets it as the local description.
	CreateOffer(ctx context.Context) (domain.SessionDescription, error)
	// AcceptOffer sets the remote offer, then builds an answer and
	// sets it as the local description.
	AcceptOffer(ctx context.Context, offer domain.SessionDescription) (domain.SessionDescription, error)
	// AcceptAnswer sets the remote answer.
	AcceptAnswer(ctx context.Context, answer domain.SessionDescription) error
	AddCandidate(cand domain.CandidateInit) error
	// OnCandidate registers the sink for locally gathered candidates.
	OnCandidate(fn func(domain.CandidateInit))
	// OnConnectionChange reports transitions of the transport's
	// connected state.
	OnConnectionChange(fn func(connected bool))
	Close() error
}

// MediaPeerFactory builds peers lazily, acquiring local capture for
// the host role. Acquisition failure is terminal for that session's
// host role.
type MediaPeerFactory interface {
	NewPeer(ctx context.Context, role domain.SignalRole) (MediaPeer, error)
}

type LivestreamService interface {
	GoLive(ctx context.Context, title string, host domain.Participant) (*domain.LivestreamSession, error)
	End(ctx context.Context, id domain.SessionID) (*domain.LivestreamSession, error)
	Get(ctx context.Context, id domain.SessionID) (*domain.LivestreamSession, error)
	Join(ctx context.Context, id domain.SessionID) (*domain.LivestreamSession, error)
	Leave(ctx context.Context, id domain.SessionID) (*domain.LivestreamSession, error)
	Like(ctx context.Context, id domain.SessionID) (*domain.LivestreamSession, error)
	ListLive(ctx context.Context) ([]*domain.LivestreamSession, error)
	PostMessage(ctx context.Context, id domain.SessionID, author domain.Participant, body string) (*domain.ChatMessage, error)
	ListMessages(ctx context.Context, id domain.SessionID) ([]*domain.ChatMessage, error)
}

type AuthService interface {
	IssueToken(ctx context.Context, p domain.Participant) (string, error)
	ValidateToken(ctx context.Context, token string) (*domain.Participant, error)
}

// MetricsRecorder collects room and signaling counters. Implementations
// must be safe for concurrent use from hub and handler goroutines.
type MetricsRecorder interface {
	RecordEvent(room domain.RoomID, typ domain.EventType)
	RecordBroadcast(room domain.RoomID, receivers int)
	RecordSignal(session domain.SessionID, kind domain.SignalKind)
	RecordFetch(session domain.SessionID, count int)
	RecordLinkQuality(q domain.LinkQuality)
	SetRoomParticipants(room domain.RoomID, count int)
	SetSessionViewers(session domain.SessionID, count int)
	SetLiveSessions(count int)
}
