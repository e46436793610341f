package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"orbnet/internal/core/domain"
	"orbnet/internal/core/ports"
)

// RedisSignalStore keeps one list per session holding the signal JSON
// in append order, plus a counter key issuing the per-session ids.
// Appends RPUSH and trim, so (CreatedAt, ID) order and list order
// coincide and ListSince never sorts.
type RedisSignalStore struct {
	client *redis.Client
	prefix string
}

func NewRedisSignalStore(client *redis.Client) ports.SignalStore {
	return &RedisSignalStore{
		client: client,
		prefix: "orbnet:signal:",
	}
}

func (r *RedisSignalStore) streamKey(session domain.SessionID) string {
	return r.prefix + string(session) + ":stream"
}

func (r *RedisSignalStore) seqKey(session domain.SessionID) string {
	return r.prefix + string(session) + ":seq"
}

func (r *RedisSignalStore) Append(ctx context.Context, session domain.SessionID, role domain.SignalRole, kind domain.SignalKind, payload []byte) (*domain.Signal, error) {
	id, err := r.client.Incr(ctx, r.seqKey(session)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to assign signal id: %w", err)
	}

	sig := &domain.Signal{
		ID:        domain.SignalID(id),
		Session:   session,
		Role:      role,
		Kind:      kind,
		Payload:   json.RawMessage(payload),
		CreatedAt: time.Now().UTC(),
	}

	data, err := json.Marshal(sig)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal signal: %w", err)
	}

	pipe := r.client.Pipeline()
	pipe.RPush(ctx, r.streamKey(session), data)
	pipe.LTrim(ctx, r.streamKey(session), -int64(domain.SignalHistoryLimit), -1)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to append signal: %w", err)
	}

	return sig, nil
}

func (r *RedisSignalStore) ListSince(ctx context.Context, session domain.SessionID, cursor domain.Cursor) ([]*domain.Signal, error) {
	raw, err := r.client.LRange(ctx, r.streamKey(session), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read signal stream: %w", err)
	}

	out := make([]*domain.Signal, 0, len(raw))
	for _, item := range raw {
		var sig domain.Signal
		if err := json.Unmarshal([]byte(item), &sig); err != nil {
			return nil, fmt.Errorf("failed to unmarshal signal: %w", err)
		}
		if cursor.Accepts(sig) {
			cp := sig
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *RedisSignalStore) DeleteSession(ctx context.Context, session domain.SessionID) error {
	if err := r.client.Del(ctx, r.streamKey(session), r.seqKey(session)).Err(); err != nil {
		return fmt.Errorf("failed to delete signal stream: %w", err)
	}
	return nil
}
