package presence

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"orbnet/internal/core/domain"
	"orbnet/internal/core/services"
)

type fakeRoster struct {
	mu      sync.Mutex
	entries map[string]*domain.RosterEntry
	touches int
}

func newFakeRoster() *fakeRoster {
	return &fakeRoster{entries: make(map[string]*domain.RosterEntry)}
}

func rosterKey(room domain.RoomID, id domain.ParticipantID) string {
	return string(room) + "/" + string(id)
}

func (f *fakeRoster) Add(_ context.Context, entry *domain.RosterEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries[rosterKey(entry.Room, entry.Participant.ID)] = entry
	return nil
}

func (f *fakeRoster) Remove(_ context.Context, room domain.RoomID, id domain.ParticipantID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.entries, rosterKey(room, id))
	return nil
}

func (f *fakeRoster) List(_ context.Context, room domain.RoomID) ([]*domain.RosterEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*domain.RosterEntry
	for _, e := range f.entries {
		if e.Room == room {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeRoster) Touch(_ context.Context, room domain.RoomID, id domain.ParticipantID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if e, ok := f.entries[rosterKey(room, id)]; ok {
		e.LastSeen = time.Now()
		f.touches++
	}
	return nil
}

func (f *fakeRoster) DeleteRoom(_ context.Context, room domain.RoomID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for key, e := range f.entries {
		if e.Room == room {
			delete(f.entries, key)
		}
	}
	return nil
}

func (f *fakeRoster) PruneStale(_ context.Context, cutoff time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	removed := 0
	for key, e := range f.entries {
		if e.LastSeen.Before(cutoff) {
			delete(f.entries, key)
			removed++
		}
	}
	return removed, nil
}

func (f *fakeRoster) touchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.touches
}

// newHubServer serves the hub behind a test route that trusts id/token
// query parameters in place of real authentication.
func newHubServer(t *testing.T) (*Hub, *fakeRoster, *services.MetricsService, string) {
	t.Helper()

	roster := newFakeRoster()
	metrics := services.NewMetricsService()
	hub := NewHub(roster, metrics, zaptest.NewLogger(t).Sugar(), Options{})

	mux := http.NewServeMux()
	mux.HandleFunc("/ws/rooms/", func(w http.ResponseWriter, r *http.Request) {
		room := domain.RoomID(strings.TrimPrefix(r.URL.Path, "/ws/rooms/"))
		id := r.URL.Query().Get("id")
		if id == "" {
			id = r.URL.Query().Get("token")
		}
		hub.HandleWebSocket(w, r, room, domain.Participant{
			ID:       domain.ParticipantID(id),
			Username: r.URL.Query().Get("name"),
		})
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	t.Cleanup(hub.Close)

	return hub, roster, metrics, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dialMember(t *testing.T, wsURL, room, id, name string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(
		fmt.Sprintf("%s/ws/rooms/%s?id=%s&name=%s", wsURL, room, id, name), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) domain.Event {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	ev, err := domain.DecodeEvent(data)
	require.NoError(t, err)
	return ev
}

func sendEvent(t *testing.T, conn *websocket.Conn, ev domain.Event) {
	t.Helper()
	data, err := ev.Encode()
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, data))
}

// expectSilence must be the last read on its connection; a read
// timeout leaves the websocket unusable.
func expectSilence(t *testing.T, conn *websocket.Conn, d time.Duration) {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(d))
	_, _, err := conn.ReadMessage()
	require.Error(t, err, "expected no frame, got one")
}

func TestHub_JoinBroadcastIncludesJoiner(t *testing.T) {
	hub, _, metrics, wsURL := newHubServer(t)

	a := dialMember(t, wsURL, "room_join", "user_a", "ana")
	ev := readEvent(t, a)
	assert.Equal(t, domain.EventUserJoined, ev.Type)
	require.NotNil(t, ev.User)
	assert.Equal(t, domain.ParticipantID("user_a"), ev.User.ID)

	b := dialMember(t, wsURL, "room_join", "user_b", "bo")
	ev = readEvent(t, b)
	assert.Equal(t, domain.EventUserJoined, ev.Type)
	require.NotNil(t, ev.User)
	assert.Equal(t, domain.ParticipantID("user_b"), ev.User.ID, "joiner hears its own join")

	ev = readEvent(t, a)
	assert.Equal(t, domain.EventUserJoined, ev.Type)
	require.NotNil(t, ev.User)
	assert.Equal(t, domain.ParticipantID("user_b"), ev.User.ID)

	assert.Equal(t, 2, hub.Participants("room_join"))
	assert.Equal(t, 2, metrics.GetRoomMetrics("room_join").Participants)
}

func TestHub_OrbUpdateSkipsSender(t *testing.T) {
	_, _, _, wsURL := newHubServer(t)

	a := dialMember(t, wsURL, "room_orb", "user_a", "ana")
	readEvent(t, a)
	b := dialMember(t, wsURL, "room_orb", "user_b", "bo")
	readEvent(t, b)
	readEvent(t, a)

	sendEvent(t, a, domain.NewOrbUpdate(domain.Orb{
		ID:       "user_a",
		Name:     "ana",
		Position: domain.FieldCenter,
		Radius:   domain.DefaultOrbRadius,
	}))

	ev := readEvent(t, b)
	assert.Equal(t, domain.EventOrbUpdate, ev.Type)
	require.NotNil(t, ev.Orb)
	assert.Equal(t, domain.ParticipantID("user_a"), ev.Orb.ID)

	expectSilence(t, a, 300*time.Millisecond)
}

func TestHub_EmoteStampedAndDefaulted(t *testing.T) {
	_, roster, _, wsURL := newHubServer(t)

	a := dialMember(t, wsURL, "room_emote", "user_a", "ana")
	readEvent(t, a)
	b := dialMember(t, wsURL, "room_emote", "user_b", "bo")
	readEvent(t, b)
	readEvent(t, a)

	// Spoofed sender and missing glyph are both fixed server-side.
	sendEvent(t, b, domain.Event{Type: domain.EventEmoteBurst, UserID: "user_zzz"})

	for _, conn := range []*websocket.Conn{a, b} {
		ev := readEvent(t, conn)
		assert.Equal(t, domain.EventEmoteBurst, ev.Type)
		assert.Equal(t, domain.ParticipantID("user_b"), ev.UserID)
		assert.Equal(t, domain.DefaultEmote, ev.Emote)
	}

	assert.Greater(t, roster.touchCount(), 0, "inbound events refresh last-seen")
}

func TestHub_DisconnectBroadcastsUserLeft(t *testing.T) {
	hub, roster, _, wsURL := newHubServer(t)

	a := dialMember(t, wsURL, "room_leave", "user_a", "ana")
	readEvent(t, a)
	b := dialMember(t, wsURL, "room_leave", "user_b", "bo")
	readEvent(t, b)
	readEvent(t, a)

	require.NoError(t, b.Close())

	ev := readEvent(t, a)
	assert.Equal(t, domain.EventUserLeft, ev.Type)
	assert.Equal(t, domain.ParticipantID("user_b"), ev.UserID)

	require.Eventually(t, func() bool {
		return hub.Participants("room_leave") == 1
	}, 2*time.Second, 10*time.Millisecond)

	entries, err := roster.List(context.Background(), "room_leave")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, domain.ParticipantID("user_a"), entries[0].Participant.ID)
}

func TestHub_MalformedFrameDropped(t *testing.T) {
	_, _, _, wsURL := newHubServer(t)

	a := dialMember(t, wsURL, "room_junk", "user_a", "ana")
	readEvent(t, a)

	require.NoError(t, a.WriteMessage(websocket.TextMessage, []byte(`{"type":"orb_update"}`)))
	require.NoError(t, a.WriteMessage(websocket.TextMessage, []byte("not json")))

	// The connection survives and later events still flow.
	sendEvent(t, a, domain.NewEmoteBurst("user_a", "🔥"))
	ev := readEvent(t, a)
	assert.Equal(t, domain.EventEmoteBurst, ev.Type)
	assert.Equal(t, "🔥", ev.Emote)
}

func TestChannel_EndToEnd(t *testing.T) {
	_, _, _, wsURL := newHubServer(t)

	watcher := dialMember(t, wsURL, "room_chan", "user_w", "watcher")
	readEvent(t, watcher)

	ch := NewChannel(wsURL, "room_chan", "user_c", zaptest.NewLogger(t).Sugar())
	require.NoError(t, ch.Connect(context.Background()))
	t.Cleanup(func() { ch.Close() })

	ev := readEvent(t, watcher)
	assert.Equal(t, domain.EventUserJoined, ev.Type)

	ev = waitChannelEvent(t, ch)
	assert.Equal(t, domain.EventUserJoined, ev.Type, "dialer hears its own join")

	require.NoError(t, ch.Publish(context.Background(), domain.NewOrbUpdate(domain.Orb{
		ID:       "user_c",
		Position: domain.FieldCenter,
		Radius:   domain.DefaultOrbRadius,
	})))
	ev = readEvent(t, watcher)
	assert.Equal(t, domain.EventOrbUpdate, ev.Type)

	sendEvent(t, watcher, domain.NewEmoteBurst("user_w", "🔥"))
	ev = waitChannelEvent(t, ch)
	assert.Equal(t, domain.EventEmoteBurst, ev.Type)
	assert.Equal(t, domain.ParticipantID("user_w"), ev.UserID)

	require.NoError(t, ch.Close())
	require.Eventually(t, func() bool {
		select {
		case _, ok := <-ch.Events():
			return !ok
		default:
			return false
		}
	}, 2*time.Second, 10*time.Millisecond, "Events closes after Close")

	err := ch.Publish(context.Background(), domain.NewEmoteBurst("user_c", "🔥"))
	assert.ErrorIs(t, err, ErrChannelClosed)
}

func waitChannelEvent(t *testing.T, ch *Channel) domain.Event {
	t.Helper()
	select {
	case ev, ok := <-ch.Events():
		require.True(t, ok, "channel closed early")
		return ev
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for channel event")
		return domain.Event{}
	}
}
