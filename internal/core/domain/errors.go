package domain

import "errors"

var (
	ErrSessionNotFound     = errors.New("session not found")
	ErrSessionEnded        = errors.New("session ended")
	ErrParticipantNotFound = errors.New("participant not found")
	ErrRoomNotFound        = errors.New("room not found")
	ErrMalformedSignal     = errors.New("malformed signal payload")
	ErrUnknownSignalKind   = errors.New("unknown signal kind")
	ErrMalformedEvent      = errors.New("malformed presence event")
	ErrMediaUnavailable    = errors.New("local media unavailable")
	ErrInvalidMessage      = errors.New("invalid chat message")
	ErrPeerClosed          = errors.New("peer connection closed")
	ErrStoreUnavailable    = errors.New("store unavailable")
)
