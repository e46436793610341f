package services

import (
	"testing"

	"orbnet/internal/core/domain"
)

func newTestReconciler() *Reconciler {
	return NewReconciler(domain.Orb{
		ID:       "user_self",
		Name:     "me",
		Position: domain.Vec2{X: 50, Y: 50},
		Radius:   domain.DefaultOrbRadius,
	})
}

func TestApply_OrbUpdateUpsertsRemote(t *testing.T) {
	r := newTestReconciler()

	remote := domain.Orb{ID: "user_b", Name: "b", Position: domain.Vec2{X: 20, Y: 30}}
	if !r.Apply(domain.NewOrbUpdate(remote)) {
		t.Fatal("expected the update to apply")
	}

	got, ok := r.Lookup("user_b")
	if !ok {
		t.Fatal("remote orb missing after update")
	}
	if got.Position != remote.Position {
		t.Errorf("position = %+v, want %+v", got.Position, remote.Position)
	}
	if got.IsSelf {
		t.Error("remote orb must never carry IsSelf")
	}

	// Later update wins.
	moved := remote
	moved.Position = domain.Vec2{X: 25, Y: 35}
	r.Apply(domain.NewOrbUpdate(moved))

	got, _ = r.Lookup("user_b")
	if got.Position != moved.Position {
		t.Errorf("position = %+v, want last write %+v", got.Position, moved.Position)
	}
}

func TestApply_SelfEchoDiscarded(t *testing.T) {
	r := newTestReconciler()
	before := r.Self()

	echo := domain.Orb{ID: "user_self", Position: domain.Vec2{X: 1, Y: 1}, Talking: true}
	if r.Apply(domain.NewOrbUpdate(echo)) {
		t.Fatal("self echo must not apply")
	}

	after := r.Self()
	if after != before {
		t.Errorf("self orb changed by echo: %+v -> %+v", before, after)
	}
	if !after.IsSelf {
		t.Error("self orb lost IsSelf")
	}
}

func TestApply_UserJoinedInsertsPlaceholder(t *testing.T) {
	r := newTestReconciler()

	joined := domain.Participant{ID: "user_b", Username: "b", Image: "avatars/b.jpg"}
	if !r.Apply(domain.NewUserJoined(joined)) {
		t.Fatal("expected the join to apply")
	}

	orb, ok := r.Lookup("user_b")
	if !ok {
		t.Fatal("placeholder orb missing after join")
	}
	if orb.Name != "b" || orb.Image != "avatars/b.jpg" {
		t.Errorf("placeholder identity = %q/%q, want join payload", orb.Name, orb.Image)
	}
	if orb.Position != domain.FieldCenter {
		t.Errorf("placeholder position = %+v, want field center", orb.Position)
	}

	// A join for a known participant must not reset their orb.
	r.Apply(domain.NewOrbUpdate(domain.Orb{ID: "user_b", Position: domain.Vec2{X: 10, Y: 10}}))
	if r.Apply(domain.NewUserJoined(joined)) {
		t.Error("repeat join must not apply")
	}
	orb, _ = r.Lookup("user_b")
	if orb.Position != (domain.Vec2{X: 10, Y: 10}) {
		t.Errorf("repeat join reset the orb to %+v", orb.Position)
	}
}

func TestApply_OwnJoinEchoIgnored(t *testing.T) {
	r := newTestReconciler()

	if r.Apply(domain.NewUserJoined(domain.Participant{ID: "user_self", Username: "me"})) {
		t.Error("own join echo must not apply")
	}
	if !r.Self().IsSelf {
		t.Error("self orb lost IsSelf after own join echo")
	}
}

func TestApply_UserLeftRemoves(t *testing.T) {
	r := newTestReconciler()
	r.Apply(domain.NewUserJoined(domain.Participant{ID: "user_b", Username: "b"}))

	if !r.Apply(domain.NewUserLeft("user_b")) {
		t.Fatal("expected the leave to apply")
	}
	if _, ok := r.Lookup("user_b"); ok {
		t.Error("orb still present after leave")
	}

	// Leaving again is idempotent.
	if r.Apply(domain.NewUserLeft("user_b")) {
		t.Error("repeat leave must be a no-op")
	}
}

func TestApply_SelfLeaveIgnored(t *testing.T) {
	r := newTestReconciler()

	if r.Apply(domain.NewUserLeft("user_self")) {
		t.Error("a leave for the self id must not apply")
	}
	if _, ok := r.Lookup("user_self"); !ok {
		t.Error("self orb removed from the map")
	}
}

func TestNeighbors_ExcludesSelf(t *testing.T) {
	r := newTestReconciler()
	r.Apply(domain.NewOrbUpdate(domain.Orb{ID: "user_b"}))
	r.Apply(domain.NewOrbUpdate(domain.Orb{ID: "user_c"}))

	neighbors := r.Neighbors()
	if len(neighbors) != 2 {
		t.Fatalf("expected 2 neighbors, got %d", len(neighbors))
	}
	for _, orb := range neighbors {
		if orb.ID == "user_self" {
			t.Error("self orb leaked into neighbors")
		}
	}
}

func TestSetSelf_PreservesIdentity(t *testing.T) {
	r := newTestReconciler()

	stepped := r.Self()
	stepped.Position = domain.Vec2{X: 42, Y: 58}
	stepped.IsSelf = false // callers cannot strip the flag
	r.SetSelf(stepped)

	self := r.Self()
	if self.Position != (domain.Vec2{X: 42, Y: 58}) {
		t.Errorf("self position = %+v, want the stepped one", self.Position)
	}
	if !self.IsSelf {
		t.Error("self orb lost IsSelf through SetSelf")
	}
	if r.Count() != 1 {
		t.Errorf("expected 1 orb, got %d", r.Count())
	}
}
