package services

import (
	"math"
	"math/rand"
	"time"

	"orbnet/internal/core/domain"
	"orbnet/pkg/optimize"
)

// Burst geometry. The count is an invariant of the effect, not a tunable:
// every burst is exactly twelve particles.
const (
	burstParticleCount = 12
	particleLifeMin    = 1.0
	particleLifeMax    = 1.5
	particleDecayRate  = 0.02
	burstSpeedMin      = 0.2
	burstSpeedMax      = 0.8
)

// EffectsEngine owns the session's ephemeral particles. Particles are purely
// local render state and never cross the wire.
//
// Not safe for concurrent use; the session serializes access.
type EffectsEngine struct {
	rng       *rand.Rand
	nextID    int64
	particles []domain.Particle
}

// NewEffectsEngine creates an engine with a time-seeded randomness source
func NewEffectsEngine() *EffectsEngine {
	return &EffectsEngine{
		rng: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Burst spawns a particle burst at the target orb's position and returns the
// number of particles spawned. An absent target spawns nothing; that is not
// an error, the orb may simply have left already. An empty glyph falls back
// to the default emote.
func (e *EffectsEngine) Burst(orbs map[domain.ParticipantID]domain.Orb, target domain.ParticipantID, glyph string) int {
	orb, ok := orbs[target]
	if !ok {
		return 0
	}

	if glyph == "" {
		glyph = domain.DefaultEmote
	}

	for i := 0; i < burstParticleCount; i++ {
		angle := e.rng.Float64() * 2 * math.Pi
		speed := burstSpeedMin + e.rng.Float64()*(burstSpeedMax-burstSpeedMin)

		e.nextID++
		e.particles = append(e.particles, domain.Particle{
			ID:       e.nextID,
			Position: orb.Position,
			Velocity: domain.Vec2{X: math.Cos(angle) * speed, Y: math.Sin(angle) * speed},
			Glyph:    glyph,
			Life:     particleLifeMin + e.rng.Float64()*(particleLifeMax-particleLifeMin),
		})
	}

	return burstParticleCount
}

// Tick decays every particle by one step, integrates survivors, and drops
// the expired in place.
func (e *EffectsEngine) Tick() {
	alive := e.particles[:0]
	for _, p := range e.particles {
		p.Life -= particleDecayRate
		if p.Expired() {
			continue
		}
		p.Position = p.Position.Add(p.Velocity)
		alive = append(alive, p)
	}
	e.particles = alive
}

// Snapshot returns a copy of the live particles for rendering
func (e *EffectsEngine) Snapshot() []domain.Particle {
	out := optimize.PreAllocateSlice[domain.Particle](0, len(e.particles))
	return append(out, e.particles...)
}

// Count returns the number of live particles
func (e *EffectsEngine) Count() int {
	return len(e.particles)
}
