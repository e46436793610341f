package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

type SessionID string

// SignalID is assigned by the relay and increases monotonically within
// one session.
type SignalID int64

type SignalRole string

const (
	RoleHost   SignalRole = "host"
	RoleViewer SignalRole = "viewer"
)

func (r SignalRole) Valid() bool {
	return r == RoleHost || r == RoleViewer
}

type SignalKind string

const (
	KindOffer     SignalKind = "offer"
	KindAnswer    SignalKind = "answer"
	KindCandidate SignalKind = "candidate"
)

func (k SignalKind) Valid() bool {
	return k == KindOffer || k == KindAnswer || k == KindCandidate
}

// Signal is an immutable negotiation message. The relay is the sole
// source of truth; consumers never mutate or delete signals. Ordering
// within a session is (CreatedAt, ID), non-decreasing as returned by a
// cursor fetch.
type Signal struct {
	ID        SignalID        `json:"id"`
	Session   SessionID       `json:"session_id"`
	Role      SignalRole      `json:"role"`
	Kind      SignalKind      `json:"kind"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

// Cursor is the high-water mark used to fetch only new signals. The
// zero value precedes every signal.
type Cursor struct {
	CreatedAt time.Time `json:"created_at"`
	ID        SignalID  `json:"id"`
}

// Accepts reports whether s sorts strictly after the cursor.
func (c Cursor) Accepts(s Signal) bool {
	if s.CreatedAt.After(c.CreatedAt) {
		return true
	}
	return s.CreatedAt.Equal(c.CreatedAt) && s.ID > c.ID
}

// Advance moves the cursor forward to cover s. Moving backwards is a
// no-op so replayed responses cannot regress the mark.
func (c Cursor) Advance(s Signal) Cursor {
	if !c.Accepts(s) {
		return c
	}
	return Cursor{CreatedAt: s.CreatedAt, ID: s.ID}
}

// SessionDescription mirrors the offer/answer blob exchanged between
// the two roles.
type SessionDescription struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

// CandidateInit mirrors a trickled ICE candidate blob.
type CandidateInit struct {
	Candidate        string  `json:"candidate"`
	SDPMid           *string `json:"sdpMid,omitempty"`
	SDPMLineIndex    *uint16 `json:"sdpMLineIndex,omitempty"`
	UsernameFragment *string `json:"usernameFragment,omitempty"`
}

// SignalPayload is the decoded form of a Signal's opaque blob, tagged
// by the kind that produced it.
type SignalPayload interface {
	PayloadKind() SignalKind
}

type OfferPayload struct {
	Description SessionDescription
}

func (OfferPayload) PayloadKind() SignalKind { return KindOffer }

type AnswerPayload struct {
	Description SessionDescription
}

func (AnswerPayload) PayloadKind() SignalKind { return KindAnswer }

type CandidatePayload struct {
	Candidate CandidateInit
}

func (CandidatePayload) PayloadKind() SignalKind { return KindCandidate }

// DecodePayload validates the signal's blob against its kind and
// returns the tagged form. Unknown kinds are rejected, never guessed.
func (s Signal) DecodePayload() (SignalPayload, error) {
	switch s.Kind {
	case KindOffer, KindAnswer:
		var desc SessionDescription
		if err := json.Unmarshal(s.Payload, &desc); err != nil {
			return nil, fmt.Errorf("decode %s payload: %w", s.Kind, err)
		}
		if desc.SDP == "" {
			return nil, fmt.Errorf("decode %s payload: %w", s.Kind, ErrMalformedSignal)
		}
		if s.Kind == KindOffer {
			return OfferPayload{Description: desc}, nil
		}
		return AnswerPayload{Description: desc}, nil
	case KindCandidate:
		var cand CandidateInit
		if err := json.Unmarshal(s.Payload, &cand); err != nil {
			return nil, fmt.Errorf("decode candidate payload: %w", err)
		}
		if cand.Candidate == "" {
			return nil, fmt.Errorf("decode candidate payload: %w", ErrMalformedSignal)
		}
		return CandidatePayload{Candidate: cand}, nil
	default:
		return nil, fmt.Errorf("signal kind %q: %w", s.Kind, ErrUnknownSignalKind)
	}
}
