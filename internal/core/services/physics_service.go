package services

import (
	"context"
	"time"

	"go.uber.org/zap"

	"orbnet/internal/core/domain"
	"orbnet/internal/core/ports"
)

// PhysicsParams holds the force model tunables. The defaults are the shipped
// behavior; they are code-level constants rather than config because changing
// them changes how rooms feel, not how a deployment runs.
type PhysicsParams struct {
	GravityK        float64
	RepulsionRadius float64
	RepulsionK      float64
	Friction        float64
}

// DefaultPhysicsParams returns the standard force model
func DefaultPhysicsParams() PhysicsParams {
	return PhysicsParams{
		GravityK:        0.02,
		RepulsionRadius: 12.0,
		RepulsionK:      0.6,
		Friction:        0.92,
	}
}

// StepOrb advances the self orb by one fixed simulation tick against the
// given neighbors. Pure and total: identical inputs produce identical
// outputs, and it never errors. The caller owns the orb state and re-invokes
// the function each tick.
func StepOrb(self domain.Orb, neighbors []domain.Orb, params PhysicsParams) domain.Orb {
	accel := domain.FieldCenter.Sub(self.Position).Scale(params.GravityK)

	for _, other := range neighbors {
		if other.ID == self.ID {
			continue
		}
		delta := self.Position.Sub(other.Position)
		dist := delta.Length()
		if dist >= params.RepulsionRadius {
			continue
		}
		// A coincident neighbor yields a defined (zero-direction) push via
		// the minimum-separation floor in Normalized.
		strength := (1 - dist/params.RepulsionRadius) * params.RepulsionK
		accel = accel.Add(delta.Normalized().Scale(strength))
	}

	self.Velocity = self.Velocity.Add(accel).Scale(params.Friction)
	self.Position = self.Position.Add(self.Velocity).Clamp(domain.FieldMin, domain.FieldMax)

	return self
}

// OrbIntegrator drives StepOrb for a session and throttles outbound
// publication of the self orb. Publishing at most once per interval is the
// only backpressure between the simulation and the channel.
//
// Not safe for concurrent use; the session calls Advance from its physics
// goroutine only.
type OrbIntegrator struct {
	params      PhysicsParams
	interval    time.Duration
	channel     ports.PresenceChannel
	logger      *zap.SugaredLogger
	lastPublish time.Time

	now func() time.Time
}

// NewOrbIntegrator creates an integrator publishing through channel at most
// once per publishInterval
func NewOrbIntegrator(params PhysicsParams, publishInterval time.Duration, channel ports.PresenceChannel, logger *zap.SugaredLogger) *OrbIntegrator {
	return &OrbIntegrator{
		params:   params,
		interval: publishInterval,
		channel:  channel,
		logger:   logger,
		now:      time.Now,
	}
}

// Advance steps the orb one tick and publishes the result when the throttle
// window has elapsed. A failed publish is swallowed and retried on the next
// eligible tick; the returned orb is always the stepped one.
func (it *OrbIntegrator) Advance(ctx context.Context, self domain.Orb, neighbors []domain.Orb) domain.Orb {
	next := StepOrb(self, neighbors, it.params)

	if it.now().Sub(it.lastPublish) < it.interval {
		return next
	}

	if err := it.channel.Publish(ctx, domain.NewOrbUpdate(next)); err != nil {
		it.logger.Warnw("failed to publish orb update", "orb_id", next.ID, "error", err)
		return next
	}

	it.lastPublish = it.now()
	return next
}
