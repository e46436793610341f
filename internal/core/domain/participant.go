package domain

import "time"

type ParticipantID string

type RoomID string

// Participant is the identity payload announced to a room. Image is an
// opaque handle resolved by the caller, not a URL contract.
type Participant struct {
	ID       ParticipantID `json:"id"`
	Username string        `json:"username"`
	Image    string        `json:"image,omitempty"`
}

// RosterEntry tracks a participant's membership in one room. LastSeen
// is refreshed on every inbound channel event.
type RosterEntry struct {
	Room        RoomID      `json:"room"`
	Participant Participant `json:"participant"`
	JoinedAt    time.Time   `json:"joined_at"`
	LastSeen    time.Time   `json:"last_seen"`
}
