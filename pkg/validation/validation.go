package validation

import (
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	// IDRegex validates session, room, and participant identifiers.
	IDRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
)

// ValidateSessionID validates a signaling session identifier.
func ValidateSessionID(id string) error {
	if id == "" {
		return fmt.Errorf("session ID is required")
	}
	if len(id) > 100 {
		return fmt.Errorf("session ID is too long (max 100 characters)")
	}
	if !IDRegex.MatchString(id) {
		return fmt.Errorf("invalid session ID format")
	}
	return nil
}

// ValidateRoomID validates a presence room identifier.
func ValidateRoomID(id string) error {
	if id == "" {
		return fmt.Errorf("room ID is required")
	}
	if len(id) > 100 {
		return fmt.Errorf("room ID is too long (max 100 characters)")
	}
	if !IDRegex.MatchString(id) {
		return fmt.Errorf("invalid room ID format")
	}
	return nil
}

// ValidateParticipantID validates a participant identifier.
func ValidateParticipantID(id string) error {
	if id == "" {
		return fmt.Errorf("participant ID is required")
	}
	if len(id) > 100 {
		return fmt.Errorf("participant ID is too long (max 100 characters)")
	}
	if !IDRegex.MatchString(id) {
		return fmt.Errorf("invalid participant ID format")
	}
	return nil
}

// ValidateSignalRole validates the signal role discriminant.
func ValidateSignalRole(role string) error {
	if role != "host" && role != "viewer" {
		return fmt.Errorf("invalid signal role (must be host or viewer)")
	}
	return nil
}

// ValidateSignalKind validates the signal kind discriminant.
func ValidateSignalKind(kind string) error {
	if kind != "offer" && kind != "answer" && kind != "candidate" {
		return fmt.Errorf("invalid signal kind (must be offer, answer, or candidate)")
	}
	return nil
}

// ValidateSignalPayload checks the opaque blob is a non-empty JSON
// value. Structural validation by kind happens at decode time on the
// consumer side.
func ValidateSignalPayload(payload []byte) error {
	if len(payload) == 0 {
		return fmt.Errorf("signal payload is required")
	}
	if len(payload) > 64*1024 {
		return fmt.Errorf("signal payload is too large (max 64KiB)")
	}
	if !json.Valid(payload) {
		return fmt.Errorf("signal payload must be valid JSON")
	}
	var probe interface{}
	if err := json.Unmarshal(payload, &probe); err != nil || probe == nil {
		return fmt.Errorf("signal payload must not be null")
	}
	return nil
}

// ValidateDisplayName validates a participant display name.
func ValidateDisplayName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("display name is required")
	}
	if utf8.RuneCountInString(name) > 50 {
		return fmt.Errorf("display name is too long (max 50 characters)")
	}
	if !utf8.ValidString(name) {
		return fmt.Errorf("display name contains invalid characters")
	}
	return nil
}

// ValidateSessionTitle validates a livestream session title.
func ValidateSessionTitle(title string) error {
	title = strings.TrimSpace(title)
	if title == "" {
		return fmt.Errorf("session title is required")
	}
	if utf8.RuneCountInString(title) > 100 {
		return fmt.Errorf("session title is too long (max 100 characters)")
	}
	if !utf8.ValidString(title) {
		return fmt.Errorf("session title contains invalid characters")
	}
	return nil
}

// ValidateChatMessage validates a chat line before storage.
func ValidateChatMessage(body string, maxLen int) error {
	if strings.TrimSpace(body) == "" {
		return fmt.Errorf("message body is required")
	}
	if utf8.RuneCountInString(body) > maxLen {
		return fmt.Errorf("message body is too long (max %d characters)", maxLen)
	}
	return nil
}

// ValidateEmoteGlyph bounds an emote glyph; an empty glyph is allowed
// and substituted downstream.
func ValidateEmoteGlyph(glyph string) error {
	if utf8.RuneCountInString(glyph) > 8 {
		return fmt.Errorf("emote glyph is too long (max 8 characters)")
	}
	if !utf8.ValidString(glyph) {
		return fmt.Errorf("emote glyph contains invalid characters")
	}
	return nil
}

// ValidateURL validates URL format
func ValidateURL(urlStr string) error {
	if urlStr == "" {
		return fmt.Errorf("URL is required")
	}
	u, err := url.Parse(urlStr)
	if err != nil {
		return fmt.Errorf("invalid URL format: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" && u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("invalid URL scheme (must be http, https, ws, or wss)")
	}
	if u.Host == "" {
		return fmt.Errorf("URL must have a host")
	}
	return nil
}

// ValidateNonEmptyString validates that string is not empty after trimming
func ValidateNonEmptyString(s, fieldName string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%s is required", fieldName)
	}
	return nil
}
