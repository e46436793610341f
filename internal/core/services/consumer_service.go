package services

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"orbnet/internal/core/domain"
	"orbnet/internal/core/ports"
)

// SignalApplier receives each decoded signal exactly once, in stream
// order. The negotiator implements it.
type SignalApplier interface {
	ApplySignal(ctx context.Context, sig *domain.Signal, payload domain.SignalPayload) error
}

// RelayConsumer polls the relay's signal stream and feeds the other
// role's signals to the applier. Delivery from the relay is
// at-least-once, so the consumer dedups by signal id on top of the
// cursor; a redelivered signal never reaches the applier twice.
type RelayConsumer struct {
	relay    ports.SignalRelay
	session  domain.SessionID
	selfRole domain.SignalRole
	applier  SignalApplier
	logger   *zap.SugaredLogger

	mu     sync.Mutex
	cursor domain.Cursor
	seen   map[domain.SignalID]struct{}
}

func NewRelayConsumer(relay ports.SignalRelay, session domain.SessionID, selfRole domain.SignalRole, applier SignalApplier, logger *zap.SugaredLogger) *RelayConsumer {
	return &RelayConsumer{
		relay:    relay,
		session:  session,
		selfRole: selfRole,
		applier:  applier,
		logger:   logger,
		seen:     make(map[domain.SignalID]struct{}),
	}
}

// Run polls at the given interval until the context is cancelled.
func (c *RelayConsumer) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Poll(ctx)
		}
	}
}

// Poll fetches once and applies what came in. A failed fetch leaves
// the cursor where it was; the next tick retries the same window.
func (c *RelayConsumer) Poll(ctx context.Context) {
	c.mu.Lock()
	cursor := c.cursor
	c.mu.Unlock()

	signals, err := c.relay.Fetch(ctx, c.session, cursor)
	if err != nil {
		c.logger.Warnw("signal fetch failed", "session", c.session, "error", err)
		return
	}

	for _, sig := range signals {
		c.consume(ctx, sig)
	}
}

// consume advances the cursor past sig regardless of outcome; a signal
// that cannot be applied now will never become applicable later.
func (c *RelayConsumer) consume(ctx context.Context, sig *domain.Signal) {
	c.mu.Lock()
	c.cursor = c.cursor.Advance(*sig)
	if _, dup := c.seen[sig.ID]; dup {
		c.mu.Unlock()
		return
	}
	c.seen[sig.ID] = struct{}{}
	c.mu.Unlock()

	if sig.Role == c.selfRole {
		return
	}

	payload, err := sig.DecodePayload()
	if err != nil {
		c.logger.Warnw("skipping undecodable signal",
			"session", c.session,
			"signal_id", sig.ID,
			"kind", sig.Kind,
			"error", err,
		)
		return
	}

	if err := c.applier.ApplySignal(ctx, sig, payload); err != nil {
		c.logger.Warnw("signal apply failed",
			"session", c.session,
			"signal_id", sig.ID,
			"kind", sig.Kind,
			"error", err,
		)
	}
}

// Cursor returns the consumer's high-water mark.
func (c *RelayConsumer) Cursor() domain.Cursor {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cursor
}
