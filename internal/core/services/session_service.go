package services

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"orbnet/internal/core/domain"
	"orbnet/internal/core/ports"
)

const (
	DefaultTickInterval    = 16 * time.Millisecond
	DefaultPublishInterval = 50 * time.Millisecond
	DefaultPollInterval    = time.Second
)

// spawnJitter spreads entering orbs around the field center so stacked
// room entries do not start fully coincident.
const spawnJitter = 15.0

type RoomSessionConfig struct {
	Room    domain.RoomID
	Session domain.SessionID
	Self    domain.Participant
	Role    domain.SignalRole

	Physics         PhysicsParams
	TickInterval    time.Duration
	PublishInterval time.Duration
	PollInterval    time.Duration
}

func (c *RoomSessionConfig) applyDefaults() {
	if c.Physics == (PhysicsParams{}) {
		c.Physics = DefaultPhysicsParams()
	}
	if c.TickInterval <= 0 {
		c.TickInterval = DefaultTickInterval
	}
	if c.PublishInterval <= 0 {
		c.PublishInterval = DefaultPublishInterval
	}
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
}

// RoomSession ties one participant's room presence together: the physics
// integrator, the reconciled orb map, the particle effects, the relay
// consumer and the peer negotiator. One session object per room entry,
// torn down completely on exit; nothing here is shared across rooms.
//
// The session mutex guards the orb map, the particle list and the
// publish throttle. The consumer runs on its own goroutine and the
// negotiator carries its own lock for transport callbacks.
type RoomSession struct {
	cfg     RoomSessionConfig
	channel ports.PresenceChannel
	logger  *zap.SugaredLogger

	mu         sync.Mutex
	reconciler *Reconciler
	effects    *EffectsEngine
	integrator *OrbIntegrator

	consumer   *RelayConsumer
	negotiator *Negotiator

	runCtx    context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once
	closeErr  error
}

// NewRoomSession wires the session for one room entry. The self orb
// spawns near the field center; physics pulls it in from there.
func NewRoomSession(cfg RoomSessionConfig, channel ports.PresenceChannel, relay ports.SignalRelay, peers ports.MediaPeerFactory, logger *zap.SugaredLogger) *RoomSession {
	cfg.applyDefaults()

	self := domain.Orb{
		ID:       cfg.Self.ID,
		Name:     cfg.Self.Username,
		Image:    cfg.Self.Image,
		Position: spawnPosition(),
		Radius:   domain.DefaultOrbRadius,
		IsSelf:   true,
	}

	s := &RoomSession{
		cfg:        cfg,
		channel:    channel,
		logger:     logger,
		reconciler: NewReconciler(self),
		effects:    NewEffectsEngine(),
		integrator: NewOrbIntegrator(cfg.Physics, cfg.PublishInterval, channel, logger),
		negotiator: NewNegotiator(cfg.Role, cfg.Session, relay, peers, logger),
	}
	s.consumer = NewRelayConsumer(relay, cfg.Session, cfg.Role, s.negotiator, logger)
	return s
}

func spawnPosition() domain.Vec2 {
	return domain.Vec2{
		X: domain.FieldCenter.X + (rand.Float64()-0.5)*2*spawnJitter,
		Y: domain.FieldCenter.Y + (rand.Float64()-0.5)*2*spawnJitter,
	}
}

// Start announces the join and launches the physics ticker, the relay
// poll loop and the channel reader. The loops run until the context is
// cancelled or Close is called.
func (s *RoomSession) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.cancel != nil {
		s.mu.Unlock()
		return fmt.Errorf("room session already started")
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.runCtx = runCtx
	s.cancel = cancel
	s.mu.Unlock()

	if err := s.channel.Publish(runCtx, domain.NewUserJoined(s.cfg.Self)); err != nil {
		cancel()
		return fmt.Errorf("failed to announce join: %w", err)
	}

	s.wg.Add(3)
	go func() {
		defer s.wg.Done()
		s.tickLoop(runCtx)
	}()
	go func() {
		defer s.wg.Done()
		s.consumer.Run(runCtx, s.cfg.PollInterval)
	}()
	go func() {
		defer s.wg.Done()
		s.readLoop(runCtx)
	}()

	s.logger.Infow("room session started",
		"room_id", s.cfg.Room, "session_id", s.cfg.Session, "role", s.cfg.Role)
	return nil
}

// Run starts the session and blocks until the context is cancelled or
// the presence channel dies, then tears everything down.
func (s *RoomSession) Run(ctx context.Context) error {
	if err := s.Start(ctx); err != nil {
		return err
	}
	<-s.runCtx.Done()
	return s.Close()
}

func (s *RoomSession) tickLoop(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.step(ctx)
		}
	}
}

// step advances one simulation frame: the self orb against the current
// neighbor snapshot, then the particle field.
func (s *RoomSession) step(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.integrator.Advance(ctx, s.reconciler.Self(), s.reconciler.Neighbors())
	s.reconciler.SetSelf(next)
	s.effects.Tick()
}

func (s *RoomSession) readLoop(ctx context.Context) {
	events := s.channel.Events()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				s.logger.Warnw("presence channel closed", "room_id", s.cfg.Room)
				s.cancel()
				return
			}
			s.dispatch(ev)
		}
	}
}

// dispatch routes one inbound channel event. Presence events go to the
// reconciler; emote bursts spawn particles at the emoter's orb. The hub
// stamps emote events with the sender's id and echoes them to everyone,
// so our own come back too.
func (s *RoomSession) dispatch(ev domain.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch ev.Type {
	case domain.EventEmoteBurst:
		if ev.UserID == s.cfg.Self.ID {
			// Own echo; this burst was spawned at send time.
			return
		}
		s.effects.Burst(s.reconciler.Orbs(), ev.UserID, ev.Emote)
	default:
		s.reconciler.Apply(ev)
	}
}

// SendEmote spawns the burst at the self orb right away and then
// notifies the room. The local spawn never waits on the channel write.
func (s *RoomSession) SendEmote(ctx context.Context, glyph string) error {
	s.mu.Lock()
	s.effects.Burst(s.reconciler.Orbs(), s.cfg.Self.ID, glyph)
	s.mu.Unlock()

	if err := s.channel.Publish(ctx, domain.NewEmoteBurst(s.cfg.Self.ID, glyph)); err != nil {
		return fmt.Errorf("failed to publish emote: %w", err)
	}
	return nil
}

// SetTalking flags the self orb's speaking state; it rides out with the
// next throttled publish.
func (s *RoomSession) SetTalking(talking bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	self := s.reconciler.Self()
	self.Talking = talking
	s.reconciler.SetSelf(self)
}

// MediaReady reports local capture readiness to the negotiator. Only
// meaningful for the host role.
func (s *RoomSession) MediaReady(ctx context.Context) error {
	return s.negotiator.MediaReady(ctx)
}

// SelfOrb returns the current self orb snapshot.
func (s *RoomSession) SelfOrb() domain.Orb {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reconciler.Self()
}

// Orbs returns a copy of the room's orb map, self included.
func (s *RoomSession) Orbs() map[domain.ParticipantID]domain.Orb {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reconciler.Orbs()
}

// Particles returns a copy of the live particle field.
func (s *RoomSession) Particles() []domain.Particle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.effects.Snapshot()
}

// ParticipantCount reports the number of orbs in the room, self included.
func (s *RoomSession) ParticipantCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reconciler.Count()
}

// LinkState reports the peer negotiation state.
func (s *RoomSession) LinkState() PeerLinkState {
	return s.negotiator.State()
}

// Close tears the whole session down: loops cancelled, channel
// subscription closed, peer link and its media released. Safe to call
// more than once; later calls return the first result.
func (s *RoomSession) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		cancel := s.cancel
		s.mu.Unlock()
		if cancel != nil {
			cancel()
		}

		if err := s.channel.Close(); err != nil {
			s.closeErr = fmt.Errorf("failed to close presence channel: %w", err)
		}

		s.wg.Wait()

		if err := s.negotiator.Close(); err != nil && s.closeErr == nil {
			s.closeErr = fmt.Errorf("failed to close peer link: %w", err)
		}

		s.logger.Infow("room session closed",
			"room_id", s.cfg.Room, "session_id", s.cfg.Session)
	})
	return s.closeErr
}
