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

const rosterRoomsKey = "orbnet:roster:rooms"

// RedisRosterStore keeps one hash per room mapping participant id to
// the roster entry JSON, plus a set of rooms so PruneStale can walk
// the keyspace without SCAN.
type RedisRosterStore struct {
	client *redis.Client
	prefix string
}

func NewRedisRosterStore(client *redis.Client) ports.RosterStore {
	return &RedisRosterStore{
		client: client,
		prefix: "orbnet:roster:",
	}
}

func (r *RedisRosterStore) roomKey(room domain.RoomID) string {
	return r.prefix + string(room)
}

func (r *RedisRosterStore) Add(ctx context.Context, entry *domain.RosterEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal roster entry: %w", err)
	}

	pipe := r.client.Pipeline()
	pipe.HSet(ctx, r.roomKey(entry.Room), string(entry.Participant.ID), data)
	pipe.SAdd(ctx, rosterRoomsKey, string(entry.Room))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to add roster entry: %w", err)
	}
	return nil
}

func (r *RedisRosterStore) Remove(ctx context.Context, room domain.RoomID, id domain.ParticipantID) error {
	if err := r.client.HDel(ctx, r.roomKey(room), string(id)).Err(); err != nil {
		return fmt.Errorf("failed to remove roster entry: %w", err)
	}
	return r.dropRoomIfEmpty(ctx, room)
}

func (r *RedisRosterStore) List(ctx context.Context, room domain.RoomID) ([]*domain.RosterEntry, error) {
	fields, err := r.client.HGetAll(ctx, r.roomKey(room)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read roster: %w", err)
	}

	out := make([]*domain.RosterEntry, 0, len(fields))
	for _, raw := range fields {
		var entry domain.RosterEntry
		if err := json.Unmarshal([]byte(raw), &entry); err != nil {
			return nil, fmt.Errorf("failed to unmarshal roster entry: %w", err)
		}
		out = append(out, &entry)
	}
	return out, nil
}

func (r *RedisRosterStore) Touch(ctx context.Context, room domain.RoomID, id domain.ParticipantID) error {
	raw, err := r.client.HGet(ctx, r.roomKey(room), string(id)).Result()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read roster entry: %w", err)
	}

	var entry domain.RosterEntry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		return fmt.Errorf("failed to unmarshal roster entry: %w", err)
	}
	entry.LastSeen = time.Now()

	data, err := json.Marshal(&entry)
	if err != nil {
		return fmt.Errorf("failed to marshal roster entry: %w", err)
	}
	if err := r.client.HSet(ctx, r.roomKey(room), string(id), data).Err(); err != nil {
		return fmt.Errorf("failed to touch roster entry: %w", err)
	}
	return nil
}

func (r *RedisRosterStore) DeleteRoom(ctx context.Context, room domain.RoomID) error {
	pipe := r.client.Pipeline()
	pipe.Del(ctx, r.roomKey(room))
	pipe.SRem(ctx, rosterRoomsKey, string(room))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete room roster: %w", err)
	}
	return nil
}

func (r *RedisRosterStore) PruneStale(ctx context.Context, cutoff time.Time) (int, error) {
	rooms, err := r.client.SMembers(ctx, rosterRoomsKey).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to list roster rooms: %w", err)
	}

	removed := 0
	for _, roomID := range rooms {
		room := domain.RoomID(roomID)
		fields, err := r.client.HGetAll(ctx, r.roomKey(room)).Result()
		if err != nil {
			return removed, fmt.Errorf("failed to read roster: %w", err)
		}

		var stale []string
		for id, raw := range fields {
			var entry domain.RosterEntry
			if err := json.Unmarshal([]byte(raw), &entry); err != nil {
				// An undecodable entry counts as stale.
				stale = append(stale, id)
				continue
			}
			if entry.LastSeen.Before(cutoff) {
				stale = append(stale, id)
			}
		}

		if len(stale) > 0 {
			if err := r.client.HDel(ctx, r.roomKey(room), stale...).Err(); err != nil {
				return removed, fmt.Errorf("failed to prune roster: %w", err)
			}
			removed += len(stale)
		}
		if err := r.dropRoomIfEmpty(ctx, room); err != nil {
			return removed, err
		}
	}
	return removed, nil
}

func (r *RedisRosterStore) dropRoomIfEmpty(ctx context.Context, room domain.RoomID) error {
	size, err := r.client.HLen(ctx, r.roomKey(room)).Result()
	if err != nil {
		return fmt.Errorf("failed to size roster: %w", err)
	}
	if size == 0 {
		if err := r.client.SRem(ctx, rosterRoomsKey, string(room)).Err(); err != nil {
			return fmt.Errorf("failed to unindex room: %w", err)
		}
	}
	return nil
}
