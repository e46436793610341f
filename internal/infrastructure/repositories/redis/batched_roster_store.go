package redis

import (
	"context"
	"time"

	"orbnet/internal/core/domain"
	"orbnet/internal/core/ports"
	"orbnet/pkg/batch"
)

// touchOp defers one last-seen refresh.
type touchOp struct {
	store ports.RosterStore
	room  domain.RoomID
	id    domain.ParticipantID
}

func (op *touchOp) Execute(ctx context.Context) error {
	return op.store.Touch(ctx, op.room, op.id)
}

// touchBatchProcessor executes a batch of deferred touches, coalescing
// repeated touches of the same participant down to one write. A busy
// orb emits dozens of presence events per second; only the newest
// last-seen matters.
type touchBatchProcessor struct{}

func (p *touchBatchProcessor) ProcessBatch(ctx context.Context, operations []batch.Operation) error {
	seen := make(map[string]*touchOp, len(operations))
	order := make([]string, 0, len(operations))
	for _, op := range operations {
		touch, ok := op.(*touchOp)
		if !ok {
			continue
		}
		key := string(touch.room) + "/" + string(touch.id)
		if _, dup := seen[key]; !dup {
			order = append(order, key)
		}
		seen[key] = touch
	}

	var firstErr error
	for _, key := range order {
		if err := seen[key].Execute(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// BatchedRosterStore wraps a RosterStore, coalescing the high-rate
// Touch path through a batcher. Membership changes and reads stay
// immediate; only last-seen refreshes are deferred.
type BatchedRosterStore struct {
	base    ports.RosterStore
	batcher *batch.Batcher
}

func NewBatchedRosterStore(base ports.RosterStore, batchSize int, batchInterval time.Duration) *BatchedRosterStore {
	return &BatchedRosterStore{
		base:    base,
		batcher: batch.NewBatcher(batchSize, batchInterval, &touchBatchProcessor{}),
	}
}

func (r *BatchedRosterStore) Add(ctx context.Context, entry *domain.RosterEntry) error {
	return r.base.Add(ctx, entry)
}

func (r *BatchedRosterStore) Remove(ctx context.Context, room domain.RoomID, id domain.ParticipantID) error {
	return r.base.Remove(ctx, room, id)
}

func (r *BatchedRosterStore) List(ctx context.Context, room domain.RoomID) ([]*domain.RosterEntry, error) {
	return r.base.List(ctx, room)
}

func (r *BatchedRosterStore) Touch(ctx context.Context, room domain.RoomID, id domain.ParticipantID) error {
	r.batcher.Add(&touchOp{store: r.base, room: room, id: id})
	return nil
}

func (r *BatchedRosterStore) DeleteRoom(ctx context.Context, room domain.RoomID) error {
	return r.base.DeleteRoom(ctx, room)
}

func (r *BatchedRosterStore) PruneStale(ctx context.Context, cutoff time.Time) (int, error) {
	// Pending touches may resurrect entries about to be pruned; flush
	// them first so the cutoff sees current marks.
	if err := r.batcher.Flush(ctx); err != nil {
		return 0, err
	}
	return r.base.PruneStale(ctx, cutoff)
}

// Flush forces pending touches through.
func (r *BatchedRosterStore) Flush(ctx context.Context) error {
	return r.batcher.Flush(ctx)
}

// Stop flushes and stops the batcher.
func (r *BatchedRosterStore) Stop() {
	r.batcher.Stop()
}
