package presence

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"orbnet/internal/core/domain"
	"orbnet/internal/core/ports"
	"orbnet/pkg/optimize"
)

const (
	defaultPingInterval   = 30 * time.Second
	defaultPongTimeout    = 60 * time.Second
	defaultWriteTimeout   = 10 * time.Second
	defaultSendBuffer     = 32
	defaultMaxMessageSize = 4096
)

// Fanout publishes locally originated events to the other relay nodes.
// The hub leaves it nil when the deployment is a single node.
type Fanout interface {
	Publish(ctx context.Context, room domain.RoomID, ev domain.Event) error
}

type Options struct {
	PingInterval   time.Duration
	PongTimeout    time.Duration
	WriteTimeout   time.Duration
	SendBuffer     int
	MaxMessageSize int64
	AllowedOrigins []string
}

func (o *Options) applyDefaults() {
	if o.PingInterval <= 0 {
		o.PingInterval = defaultPingInterval
	}
	if o.PongTimeout <= 0 {
		o.PongTimeout = defaultPongTimeout
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = defaultWriteTimeout
	}
	if o.SendBuffer <= 0 {
		o.SendBuffer = defaultSendBuffer
	}
	if o.MaxMessageSize <= 0 {
		o.MaxMessageSize = defaultMaxMessageSize
	}
}

// Hub owns the WebSocket rooms carrying presence events. Delivery is
// fire-and-forget: a member whose send buffer is full is disconnected
// rather than allowed to backpressure the room.
type Hub struct {
	roster  ports.RosterStore
	metrics ports.MetricsRecorder
	logger  *zap.SugaredLogger
	opts    Options

	upgrader  websocket.Upgrader
	fanoutBuf *optimize.SlicePool[*member]

	mu     sync.RWMutex
	rooms  map[domain.RoomID]map[domain.ParticipantID]*member
	bus    Fanout
	closed bool
}

// member is one connected participant. The send channel is never
// closed; quit tells the write pump to stop so concurrent broadcasters
// can keep racing trySend safely.
type member struct {
	id   domain.ParticipantID
	user domain.Participant
	room domain.RoomID
	conn *websocket.Conn
	send chan []byte
	quit chan struct{}

	stopOnce sync.Once
}

func (m *member) stop() {
	m.stopOnce.Do(func() { close(m.quit) })
}

func NewHub(roster ports.RosterStore, metrics ports.MetricsRecorder, logger *zap.SugaredLogger, opts Options) *Hub {
	opts.applyDefaults()
	return &Hub{
		roster:  roster,
		metrics: metrics,
		logger:  logger,
		opts:    opts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(opts.AllowedOrigins),
		},
		fanoutBuf: optimize.NewSlicePool[*member](64),
		rooms:     make(map[domain.RoomID]map[domain.ParticipantID]*member),
	}
}

// SetFanout wires the cross-node event bus. Called once during startup,
// before the hub accepts connections.
func (h *Hub) SetFanout(bus Fanout) {
	h.mu.Lock()
	h.bus = bus
	h.mu.Unlock()
}

// HandleWebSocket upgrades the request and runs the connection until
// the client goes away. The caller has already authenticated the
// participant and resolved the room.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request, room domain.RoomID, participant domain.Participant) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Errorw("websocket upgrade failed", "room", room, "error", err)
		return
	}
	defer conn.Close()

	m := &member{
		id:   participant.ID,
		user: participant,
		room: room,
		conn: conn,
		send: make(chan []byte, h.opts.SendBuffer),
		quit: make(chan struct{}),
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	members, ok := h.rooms[room]
	if !ok {
		members = make(map[domain.ParticipantID]*member)
		h.rooms[room] = members
	}
	if old, exists := members[participant.ID]; exists {
		old.stop()
		h.logger.Infow("replacing connection for reconnecting participant",
			"room", room,
			"participant", participant.ID,
		)
	}
	members[participant.ID] = m
	count := len(members)
	h.mu.Unlock()

	now := time.Now()
	if err := h.roster.Add(r.Context(), &domain.RosterEntry{
		Room:        room,
		Participant: participant,
		JoinedAt:    now,
		LastSeen:    now,
	}); err != nil {
		h.logger.Warnw("roster add failed", "room", room, "participant", participant.ID, "error", err)
	}

	h.metrics.SetRoomParticipants(room, count)
	h.metrics.RecordEvent(room, domain.EventUserJoined)
	h.logger.Infow("participant connected", "room", room, "participant", participant.ID)

	// The joiner receives its own user_joined like everyone else.
	h.publish(r.Context(), room, domain.NewUserJoined(participant), "")

	go h.writePump(m)
	h.readPump(m)

	h.teardown(m)
}

func (h *Hub) teardown(m *member) {
	m.stop()

	h.mu.Lock()
	removed := false
	if members, ok := h.rooms[m.room]; ok && members[m.id] == m {
		delete(members, m.id)
		if len(members) == 0 {
			delete(h.rooms, m.room)
		}
		removed = true
	}
	count := len(h.rooms[m.room])
	h.mu.Unlock()

	// A replaced connection skips the departure path; the participant
	// is still in the room on the newer socket.
	if !removed {
		return
	}

	ctx := context.Background()
	if err := h.roster.Remove(ctx, m.room, m.id); err != nil {
		h.logger.Warnw("roster remove failed", "room", m.room, "participant", m.id, "error", err)
	}

	h.metrics.SetRoomParticipants(m.room, count)
	h.metrics.RecordEvent(m.room, domain.EventUserLeft)
	h.logger.Infow("participant disconnected", "room", m.room, "participant", m.id)

	// Removal happened first, so the leaver never sees its own
	// user_left.
	h.publish(ctx, m.room, domain.NewUserLeft(m.id), "")
}

func (h *Hub) readPump(m *member) {
	m.conn.SetReadLimit(h.opts.MaxMessageSize)
	m.conn.SetReadDeadline(time.Now().Add(h.opts.PongTimeout))
	m.conn.SetPongHandler(func(string) error {
		m.conn.SetReadDeadline(time.Now().Add(h.opts.PongTimeout))
		return nil
	})

	for {
		_, data, err := m.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				h.logger.Infow("presence read failed", "room", m.room, "participant", m.id, "error", err)
			}
			return
		}
		m.conn.SetReadDeadline(time.Now().Add(h.opts.PongTimeout))
		h.dispatch(m, data)
	}
}

func (h *Hub) writePump(m *member) {
	ticker := time.NewTicker(h.opts.PingInterval)
	defer func() {
		ticker.Stop()
		m.conn.Close()
	}()

	for {
		select {
		case <-m.quit:
			m.conn.SetWriteDeadline(time.Now().Add(h.opts.WriteTimeout))
			m.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case data := <-m.send:
			m.conn.SetWriteDeadline(time.Now().Add(h.opts.WriteTimeout))
			if err := m.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ticker.C:
			m.conn.SetWriteDeadline(time.Now().Add(h.opts.WriteTimeout))
			if err := m.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *Hub) dispatch(m *member, data []byte) {
	ev, err := domain.DecodeEvent(data)
	if err != nil {
		h.logger.Warnw("dropping malformed event", "room", m.room, "participant", m.id, "error", err)
		return
	}

	ctx := context.Background()
	if err := h.roster.Touch(ctx, m.room, m.id); err != nil {
		h.logger.Debugw("roster touch failed", "room", m.room, "participant", m.id, "error", err)
	}
	h.metrics.RecordEvent(m.room, ev.Type)

	switch ev.Type {
	case domain.EventOrbUpdate:
		// The sender already rendered its own orb; everyone else gets
		// the update.
		h.publish(ctx, m.room, ev, m.id)

	case domain.EventEmoteBurst:
		// The sender identity is stamped server-side; clients cannot
		// emote as someone else.
		ev.UserID = m.id
		if ev.Emote == "" {
			ev.Emote = domain.DefaultEmote
		}
		h.publish(ctx, m.room, ev, "")

	default:
		h.logger.Warnw("ignoring client-sent lifecycle event",
			"room", m.room,
			"participant", m.id,
			"type", ev.Type,
		)
	}
}

// publish delivers locally and hands the event to the cross-node bus.
func (h *Hub) publish(ctx context.Context, room domain.RoomID, ev domain.Event, exclude domain.ParticipantID) {
	h.deliver(room, ev, exclude)

	h.mu.RLock()
	bus := h.bus
	h.mu.RUnlock()
	if bus == nil {
		return
	}
	if err := bus.Publish(ctx, room, ev); err != nil {
		h.logger.Warnw("event bus publish failed", "room", room, "type", ev.Type, "error", err)
	}
}

// Rebroadcast injects an event that originated on another relay node.
// It is delivered locally only; re-publishing it would loop.
func (h *Hub) Rebroadcast(room domain.RoomID, ev domain.Event) {
	h.deliver(room, ev, "")
}

func (h *Hub) deliver(room domain.RoomID, ev domain.Event, exclude domain.ParticipantID) {
	data, err := ev.Encode()
	if err != nil {
		h.logger.Errorw("event encode failed", "room", room, "type", ev.Type, "error", err)
		return
	}

	recipients := h.fanoutBuf.Get()
	h.mu.RLock()
	for id, m := range h.rooms[room] {
		if exclude != "" && id == exclude {
			continue
		}
		recipients = append(recipients, m)
	}
	h.mu.RUnlock()

	delivered := 0
	for _, m := range recipients {
		if h.trySend(m, data) {
			delivered++
		}
	}
	h.fanoutBuf.Put(recipients)

	h.metrics.RecordBroadcast(room, delivered)
}

// trySend never blocks. A full buffer means the consumer has fallen
// too far behind to stay in the room.
func (h *Hub) trySend(m *member, data []byte) bool {
	select {
	case <-m.quit:
		return false
	case m.send <- data:
		return true
	default:
		h.logger.Warnw("dropping slow presence consumer", "room", m.room, "participant", m.id)
		m.stop()
		return false
	}
}

// RoomCount returns how many rooms currently hold at least one member.
func (h *Hub) RoomCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms)
}

// Participants returns how many members a room currently holds.
func (h *Hub) Participants(room domain.RoomID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// Close stops every member connection and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	var members []*member
	for _, room := range h.rooms {
		for _, m := range room {
			members = append(members, m)
		}
	}
	h.mu.Unlock()

	for _, m := range members {
		m.stop()
	}
}

func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	set := make(map[string]struct{}, len(allowed))
	for _, origin := range allowed {
		set[origin] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}
