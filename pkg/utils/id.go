package utils

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// GenerateSessionID generates a unique livestream session ID
func GenerateSessionID() string {
	return GenerateID("session")
}

// GenerateRoomID generates a unique presence room ID
func GenerateRoomID() string {
	return GenerateID("room")
}

// GenerateParticipantID generates a unique participant ID
func GenerateParticipantID() string {
	return GenerateID("user")
}

// GenerateMessageID generates a unique chat message ID
func GenerateMessageID() string {
	return GenerateID("msg")
}

// GenerateInstanceID generates a unique relay instance ID
func GenerateInstanceID() string {
	return GenerateID("relay")
}

// GenerateID generates a prefixed UUID-backed identifier. Hyphens are
// stripped so IDs stay within the [a-zA-Z0-9_-] wire charset rules
// without double meaning for the separator.
func GenerateID(prefix string) string {
	raw := strings.ReplaceAll(uuid.NewString(), "-", "")
	return fmt.Sprintf("%s_%s", prefix, raw)
}

// GenerateRequestID generates a unique request ID
func GenerateRequestID() string {
	timestamp := time.Now().UnixNano()
	b := make([]byte, 4)
	rand.Read(b)
	return fmt.Sprintf("req_%d_%s", timestamp, hex.EncodeToString(b))
}
