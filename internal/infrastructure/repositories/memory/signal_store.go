package memory

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"orbnet/internal/core/domain"
	"orbnet/internal/core/ports"
)

// MemorySignalStore keeps each session's signal stream in an
// append-only slice. Appends assign ids from a per-session counter, so
// (CreatedAt, ID) order and insertion order coincide and ListSince
// never has to sort.
type MemorySignalStore struct {
	mu      sync.RWMutex
	streams map[domain.SessionID][]*domain.Signal
	nextID  map[domain.SessionID]int64
}

func NewMemorySignalStore() ports.SignalStore {
	return &MemorySignalStore{
		streams: make(map[domain.SessionID][]*domain.Signal),
		nextID:  make(map[domain.SessionID]int64),
	}
}

func (s *MemorySignalStore) Append(ctx context.Context, session domain.SessionID, role domain.SignalRole, kind domain.SignalKind, payload []byte) (*domain.Signal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID[session]++
	sig := &domain.Signal{
		ID:        domain.SignalID(s.nextID[session]),
		Session:   session,
		Role:      role,
		Kind:      kind,
		Payload:   json.RawMessage(append([]byte(nil), payload...)),
		CreatedAt: time.Now().UTC(),
	}

	stream := append(s.streams[session], sig)
	if excess := len(stream) - domain.SignalHistoryLimit; excess > 0 {
		stream = stream[excess:]
	}
	s.streams[session] = stream

	return sig, nil
}

func (s *MemorySignalStore) ListSince(ctx context.Context, session domain.SessionID, cursor domain.Cursor) ([]*domain.Signal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	// Unknown sessions fetch empty rather than erroring: the consumer
	// may poll before the host publishes anything.
	out := make([]*domain.Signal, 0)
	for _, sig := range s.streams[session] {
		if cursor.Accepts(*sig) {
			out = append(out, sig)
		}
	}
	return out, nil
}

func (s *MemorySignalStore) DeleteSession(ctx context.Context, session domain.SessionID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.streams, session)
	delete(s.nextID, session)
	return nil
}
