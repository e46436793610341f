package domain

import "time"

type SessionStatus string

const (
	StatusLive  SessionStatus = "live"
	StatusEnded SessionStatus = "ended"
)

// LivestreamSession is one broadcast: a single host role and the
// viewers watching it. Signals for the host/viewer negotiation are
// scoped to the session's ID.
type LivestreamSession struct {
	ID          SessionID     `json:"id"`
	Title       string        `json:"title"`
	Host        Participant   `json:"host"`
	Status      SessionStatus `json:"status"`
	ViewerCount int           `json:"viewer_count"`
	PeakViewers int           `json:"peak_viewers"`
	TotalLikes  int           `json:"total_likes"`
	StartedAt   time.Time     `json:"started_at"`
	EndedAt     *time.Time    `json:"ended_at,omitempty"`
}

// ChatMessage is one livestream chat line. Stores retain only the
// latest ChatHistoryLimit messages per session.
type ChatMessage struct {
	ID        string      `json:"id"`
	Session   SessionID   `json:"session_id"`
	Author    Participant `json:"author"`
	Body      string      `json:"body"`
	CreatedAt time.Time   `json:"created_at"`
}

const (
	// ChatMessageMaxLen bounds one chat line after sanitization.
	ChatMessageMaxLen = 500
	// ChatHistoryLimit is how many chat lines a store keeps per session.
	ChatHistoryLimit = 100
	// SignalHistoryLimit is how many signals the relay keeps per session;
	// older signals are pruned on every append.
	SignalHistoryLimit = 100
)
