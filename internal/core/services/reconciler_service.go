package services

import (
	"orbnet/internal/core/domain"
	"orbnet/pkg/optimize"
)

// Reconciler merges inbound presence events into the room's orb map. The
// self orb is locally authoritative: a remote update carrying the self id is
// discarded, never applied. Remote orbs are last-write-wins per sender with
// no cross-sender ordering.
//
// Not safe for concurrent use; the session serializes access.
type Reconciler struct {
	selfID domain.ParticipantID
	orbs   map[domain.ParticipantID]domain.Orb
}

// NewReconciler creates a reconciler seeded with the self orb
func NewReconciler(self domain.Orb) *Reconciler {
	self.IsSelf = true
	return &Reconciler{
		selfID: self.ID,
		orbs: map[domain.ParticipantID]domain.Orb{
			self.ID: self,
		},
	}
}

// Apply merges one channel event into the orb map and reports whether the
// map changed. Events that target the self orb are ignored.
func (r *Reconciler) Apply(ev domain.Event) bool {
	switch ev.Type {
	case domain.EventOrbUpdate:
		if ev.Orb == nil || ev.Orb.ID == r.selfID {
			return false
		}
		remote := *ev.Orb
		remote.IsSelf = false
		r.orbs[remote.ID] = remote
		return true

	case domain.EventUserJoined:
		if ev.User == nil || ev.User.ID == r.selfID {
			return false
		}
		if _, known := r.orbs[ev.User.ID]; known {
			return false
		}
		// Placeholder until the participant's first orb_update arrives.
		r.orbs[ev.User.ID] = domain.Orb{
			ID:       ev.User.ID,
			Name:     ev.User.Username,
			Image:    ev.User.Image,
			Position: domain.FieldCenter,
			Radius:   domain.DefaultOrbRadius,
		}
		return true

	case domain.EventUserLeft:
		if ev.UserID == r.selfID {
			return false
		}
		if _, known := r.orbs[ev.UserID]; !known {
			return false
		}
		delete(r.orbs, ev.UserID)
		return true

	default:
		return false
	}
}

// SetSelf replaces the self orb after a physics step
func (r *Reconciler) SetSelf(self domain.Orb) {
	self.ID = r.selfID
	self.IsSelf = true
	r.orbs[r.selfID] = self
}

// Self returns the current self orb
func (r *Reconciler) Self() domain.Orb {
	return r.orbs[r.selfID]
}

// Neighbors returns every orb except self, the physics repulsion input
func (r *Reconciler) Neighbors() []domain.Orb {
	out := optimize.PreAllocateSlice[domain.Orb](0, len(r.orbs)-1)
	for id, orb := range r.orbs {
		if id == r.selfID {
			continue
		}
		out = append(out, orb)
	}
	return out
}

// Lookup returns the orb for a participant
func (r *Reconciler) Lookup(id domain.ParticipantID) (domain.Orb, bool) {
	orb, ok := r.orbs[id]
	return orb, ok
}

// Orbs returns a snapshot of the full orb map
func (r *Reconciler) Orbs() map[domain.ParticipantID]domain.Orb {
	out := make(map[domain.ParticipantID]domain.Orb, len(r.orbs))
	for id, orb := range r.orbs {
		out[id] = orb
	}
	return out
}

// Count returns the number of orbs in the room, self included
func (r *Reconciler) Count() int {
	return len(r.orbs)
}
