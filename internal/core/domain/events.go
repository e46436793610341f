package domain

import (
	"encoding/json"
	"fmt"
)

type EventType string

const (
	EventOrbUpdate  EventType = "orb_update"
	EventUserJoined EventType = "user_joined"
	EventUserLeft   EventType = "user_left"
	EventEmoteBurst EventType = "emote_burst"
)

// DefaultEmote fills an emote_burst whose glyph was omitted.
const DefaultEmote = "❤️"

// Event is the envelope carried by the presence channel. Exactly one
// of the payload fields is set, selected by Type. Delivery is
// fire-and-forget with no ordering guarantee across senders.
type Event struct {
	Type   EventType      `json:"type"`
	Orb    *Orb           `json:"orb,omitempty"`
	User   *Participant   `json:"user,omitempty"`
	UserID ParticipantID  `json:"user_id,omitempty"`
	Emote  string         `json:"emote,omitempty"`
}

// NewOrbUpdate wraps an orb snapshot for broadcast.
func NewOrbUpdate(orb Orb) Event {
	return Event{Type: EventOrbUpdate, Orb: &orb}
}

// NewUserJoined announces a participant entering a room.
func NewUserJoined(p Participant) Event {
	return Event{Type: EventUserJoined, User: &p}
}

// NewUserLeft announces a participant leaving a room.
func NewUserLeft(id ParticipantID) Event {
	return Event{Type: EventUserLeft, UserID: id}
}

// NewEmoteBurst requests a particle burst at the target's orb. An
// empty glyph falls back to DefaultEmote.
func NewEmoteBurst(target ParticipantID, glyph string) Event {
	if glyph == "" {
		glyph = DefaultEmote
	}
	return Event{Type: EventEmoteBurst, UserID: target, Emote: glyph}
}

// DecodeEvent parses a channel frame and checks the envelope carries
// the payload its type requires.
func DecodeEvent(data []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return Event{}, fmt.Errorf("decode event: %w", err)
	}
	switch ev.Type {
	case EventOrbUpdate:
		if ev.Orb == nil {
			return Event{}, fmt.Errorf("orb_update event: %w", ErrMalformedEvent)
		}
	case EventUserJoined:
		if ev.User == nil {
			return Event{}, fmt.Errorf("user_joined event: %w", ErrMalformedEvent)
		}
	case EventUserLeft, EventEmoteBurst:
		if ev.UserID == "" {
			return Event{}, fmt.Errorf("%s event: %w", ev.Type, ErrMalformedEvent)
		}
	default:
		return Event{}, fmt.Errorf("event type %q: %w", ev.Type, ErrMalformedEvent)
	}
	return ev, nil
}

// Encode serializes the event for the wire.
func (e Event) Encode() ([]byte, error) {
	return json.Marshal(e)
}
