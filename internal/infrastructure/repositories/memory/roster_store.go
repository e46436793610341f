package memory

import (
	"context"
	"sync"
	"time"

	"orbnet/internal/core/domain"
	"orbnet/internal/core/ports"
)

type MemoryRosterStore struct {
	mu    sync.RWMutex
	rooms map[domain.RoomID]map[domain.ParticipantID]*domain.RosterEntry
}

func NewMemoryRosterStore() ports.RosterStore {
	return &MemoryRosterStore{
		rooms: make(map[domain.RoomID]map[domain.ParticipantID]*domain.RosterEntry),
	}
}

func (s *MemoryRosterStore) Add(ctx context.Context, entry *domain.RosterEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	room, ok := s.rooms[entry.Room]
	if !ok {
		room = make(map[domain.ParticipantID]*domain.RosterEntry)
		s.rooms[entry.Room] = room
	}

	// Reconnects overwrite the previous entry; the newest join wins.
	cp := *entry
	room[entry.Participant.ID] = &cp
	return nil
}

func (s *MemoryRosterStore) Remove(ctx context.Context, room domain.RoomID, id domain.ParticipantID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	members, ok := s.rooms[room]
	if !ok {
		return nil
	}
	delete(members, id)
	if len(members) == 0 {
		delete(s.rooms, room)
	}
	return nil
}

func (s *MemoryRosterStore) List(ctx context.Context, room domain.RoomID) ([]*domain.RosterEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	members := s.rooms[room]
	out := make([]*domain.RosterEntry, 0, len(members))
	for _, entry := range members {
		cp := *entry
		out = append(out, &cp)
	}
	return out, nil
}

func (s *MemoryRosterStore) Touch(ctx context.Context, room domain.RoomID, id domain.ParticipantID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry, ok := s.rooms[room][id]; ok {
		entry.LastSeen = time.Now()
	}
	return nil
}

func (s *MemoryRosterStore) DeleteRoom(ctx context.Context, room domain.RoomID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rooms, room)
	return nil
}

func (s *MemoryRosterStore) PruneStale(ctx context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for roomID, members := range s.rooms {
		for id, entry := range members {
			if entry.LastSeen.Before(cutoff) {
				delete(members, id)
				removed++
			}
		}
		if len(members) == 0 {
			delete(s.rooms, roomID)
		}
	}
	return removed, nil
}
