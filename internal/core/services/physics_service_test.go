package services

import (
	"context"
	"math"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"orbnet/internal/core/domain"
)

type stubChannel struct {
	published []domain.Event
	err       error
}

func (c *stubChannel) Publish(ctx context.Context, ev domain.Event) error {
	if c.err != nil {
		return c.err
	}
	c.published = append(c.published, ev)
	return nil
}

func (c *stubChannel) Events() <-chan domain.Event { return nil }

func (c *stubChannel) Close() error { return nil }

func TestStepOrb_Pure(t *testing.T) {
	params := DefaultPhysicsParams()
	self := domain.Orb{
		ID:       "user_a",
		Position: domain.Vec2{X: 30, Y: 70},
		Velocity: domain.Vec2{X: 1.5, Y: -0.5},
		IsSelf:   true,
	}
	neighbors := []domain.Orb{
		{ID: "user_b", Position: domain.Vec2{X: 32, Y: 68}},
		{ID: "user_c", Position: domain.Vec2{X: 90, Y: 10}},
	}

	first := StepOrb(self, neighbors, params)
	second := StepOrb(self, neighbors, params)

	if first != second {
		t.Errorf("identical inputs produced different outputs:\n%+v\n%+v", first, second)
	}
}

func TestStepOrb_GravityPullsTowardCenter(t *testing.T) {
	params := DefaultPhysicsParams()
	self := domain.Orb{ID: "user_a", Position: domain.Vec2{X: 20, Y: 50}}

	next := StepOrb(self, nil, params)

	if next.Velocity.X <= 0 {
		t.Errorf("expected positive x velocity toward center, got %v", next.Velocity)
	}
	if math.Abs(next.Velocity.Y) > 1e-9 {
		t.Errorf("expected no y drift on the center line, got %v", next.Velocity)
	}
	if next.Position.X <= self.Position.X {
		t.Errorf("expected movement toward center, got %v", next.Position)
	}
}

func TestStepOrb_RepulsionMagnitude(t *testing.T) {
	// Friction 1 exposes the raw acceleration in the resulting velocity;
	// gravity vanishes at the field center.
	params := PhysicsParams{
		GravityK:        0.02,
		RepulsionRadius: 12.0,
		RepulsionK:      0.6,
		Friction:        1.0,
	}
	self := domain.Orb{ID: "user_a", Position: domain.Vec2{X: 50, Y: 50}}
	neighbors := []domain.Orb{
		{ID: "user_b", Position: domain.Vec2{X: 55, Y: 50}},
	}

	next := StepOrb(self, neighbors, params)

	wantMagnitude := (1 - 5.0/12.0) * 0.6
	gotMagnitude := next.Velocity.Length()
	if math.Abs(gotMagnitude-wantMagnitude) > 1e-9 {
		t.Errorf("repulsion magnitude = %v, want %v", gotMagnitude, wantMagnitude)
	}
	if next.Velocity.X >= 0 {
		t.Errorf("expected velocity directed away from the neighbor, got %v", next.Velocity)
	}
	if math.Abs(next.Velocity.Y) > 1e-9 {
		t.Errorf("expected purely horizontal push, got %v", next.Velocity)
	}
}

func TestStepOrb_NeighborOutsideRadiusIgnored(t *testing.T) {
	params := DefaultPhysicsParams()
	self := domain.Orb{ID: "user_a", Position: domain.Vec2{X: 50, Y: 50}}
	far := []domain.Orb{
		{ID: "user_b", Position: domain.Vec2{X: 80, Y: 50}},
	}

	withFar := StepOrb(self, far, params)
	alone := StepOrb(self, nil, params)

	if withFar != alone {
		t.Errorf("a neighbor outside the repulsion radius changed the step:\n%+v\n%+v", withFar, alone)
	}
}

func TestStepOrb_SameIDNeighborIgnored(t *testing.T) {
	params := DefaultPhysicsParams()
	self := domain.Orb{ID: "user_a", Position: domain.Vec2{X: 50, Y: 50}}
	echo := []domain.Orb{
		{ID: "user_a", Position: domain.Vec2{X: 52, Y: 50}},
	}

	withEcho := StepOrb(self, echo, params)
	alone := StepOrb(self, nil, params)

	if withEcho != alone {
		t.Error("an echo of the self orb must not exert force")
	}
}

func TestStepOrb_CoincidentNeighbor(t *testing.T) {
	params := DefaultPhysicsParams()
	self := domain.Orb{ID: "user_a", Position: domain.Vec2{X: 50, Y: 50}}
	stacked := []domain.Orb{
		{ID: "user_b", Position: domain.Vec2{X: 50, Y: 50}},
	}

	next := StepOrb(self, stacked, params)

	if math.IsNaN(next.Position.X) || math.IsNaN(next.Position.Y) ||
		math.IsNaN(next.Velocity.X) || math.IsNaN(next.Velocity.Y) {
		t.Errorf("coincident neighbor produced NaN: %+v", next)
	}
	if !next.InBounds() {
		t.Errorf("position out of bounds: %+v", next.Position)
	}
}

func TestStepOrb_PositionStaysInBounds(t *testing.T) {
	params := DefaultPhysicsParams()

	starts := []domain.Orb{
		{ID: "user_a", Position: domain.Vec2{X: 2, Y: 2}, Velocity: domain.Vec2{X: -50, Y: -50}},
		{ID: "user_a", Position: domain.Vec2{X: 98, Y: 98}, Velocity: domain.Vec2{X: 50, Y: 50}},
		{ID: "user_a", Position: domain.Vec2{X: 50, Y: 50}, Velocity: domain.Vec2{X: 200, Y: -200}},
		{ID: "user_a", Position: domain.Vec2{X: 2, Y: 98}, Velocity: domain.Vec2{}},
	}
	neighbors := []domain.Orb{
		{ID: "user_b", Position: domain.Vec2{X: 3, Y: 3}},
		{ID: "user_c", Position: domain.Vec2{X: 97, Y: 97}},
		{ID: "user_d", Position: domain.Vec2{X: 50, Y: 50}},
	}

	for _, orb := range starts {
		for tick := 0; tick < 1000; tick++ {
			orb = StepOrb(orb, neighbors, params)
			if !orb.InBounds() {
				t.Fatalf("tick %d: position %+v escaped the field", tick, orb.Position)
			}
		}
	}
}

func TestOrbIntegrator_PublishThrottle(t *testing.T) {
	logger := zaptest.NewLogger(t).Sugar()
	channel := &stubChannel{}
	integrator := NewOrbIntegrator(DefaultPhysicsParams(), 50*time.Millisecond, channel, logger)

	clock := time.Unix(1700000000, 0)
	integrator.now = func() time.Time { return clock }

	self := domain.Orb{ID: "user_a", Position: domain.Vec2{X: 40, Y: 40}, IsSelf: true}

	// Ticks at 0/16/32/48/64ms; only the first and the 64ms tick clear the
	// 50ms throttle window.
	for i := 0; i < 5; i++ {
		self = integrator.Advance(context.Background(), self, nil)
		clock = clock.Add(16 * time.Millisecond)
	}

	if len(channel.published) != 2 {
		t.Fatalf("expected 2 publishes over 80ms of 16ms ticks, got %d", len(channel.published))
	}
	for _, ev := range channel.published {
		if ev.Type != domain.EventOrbUpdate {
			t.Errorf("expected orb_update event, got %s", ev.Type)
		}
		if ev.Orb == nil || ev.Orb.ID != "user_a" {
			t.Errorf("published event missing self orb: %+v", ev)
		}
	}
}

func TestOrbIntegrator_FailedPublishRetriesNextTick(t *testing.T) {
	logger := zaptest.NewLogger(t).Sugar()
	channel := &stubChannel{err: context.DeadlineExceeded}
	integrator := NewOrbIntegrator(DefaultPhysicsParams(), 50*time.Millisecond, channel, logger)

	clock := time.Unix(1700000000, 0)
	integrator.now = func() time.Time { return clock }

	self := domain.Orb{ID: "user_a", Position: domain.Vec2{X: 40, Y: 40}, IsSelf: true}

	self = integrator.Advance(context.Background(), self, nil)
	if len(channel.published) != 0 {
		t.Fatalf("expected no publishes while the channel errors, got %d", len(channel.published))
	}

	// The throttle window must not count a failed publish.
	channel.err = nil
	clock = clock.Add(16 * time.Millisecond)
	integrator.Advance(context.Background(), self, nil)

	if len(channel.published) != 1 {
		t.Fatalf("expected the next tick to publish after a failure, got %d", len(channel.published))
	}
}
