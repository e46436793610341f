package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"orbnet/internal/core/domain"
	"orbnet/internal/core/ports"
)

const (
	liveSessionsKey  = "orbnet:session:live"
	endedSessionsKey = "orbnet:session:ended"
)

// RedisSessionStore stores each livestream session as a JSON value,
// indexed by a live set and an ended sorted set scored by EndedAt so
// the janitor can range over sweep targets.
type RedisSessionStore struct {
	client *redis.Client
	prefix string
}

func NewRedisSessionStore(client *redis.Client) ports.SessionStore {
	return &RedisSessionStore{
		client: client,
		prefix: "orbnet:session:",
	}
}

func (r *RedisSessionStore) sessionKey(id domain.SessionID) string {
	return r.prefix + string(id)
}

func (r *RedisSessionStore) messagesKey(id domain.SessionID) string {
	return r.prefix + string(id) + ":messages"
}

func (r *RedisSessionStore) Create(ctx context.Context, session *domain.LivestreamSession) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	if err := r.client.Set(ctx, r.sessionKey(session.ID), data, 0).Err(); err != nil {
		return fmt.Errorf("failed to set session in Redis: %w", err)
	}

	return r.reindex(ctx, session)
}

func (r *RedisSessionStore) GetByID(ctx context.Context, id domain.SessionID) (*domain.LivestreamSession, error) {
	data, err := r.client.Get(ctx, r.sessionKey(id)).Result()
	if err == redis.Nil {
		return nil, domain.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session from Redis: %w", err)
	}

	var session domain.LivestreamSession
	if err := json.Unmarshal([]byte(data), &session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return &session, nil
}

func (r *RedisSessionStore) Update(ctx context.Context, session *domain.LivestreamSession) error {
	if _, err := r.GetByID(ctx, session.ID); err != nil {
		return err
	}

	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	if err := r.client.Set(ctx, r.sessionKey(session.ID), data, 0).Err(); err != nil {
		return fmt.Errorf("failed to update session in Redis: %w", err)
	}

	return r.reindex(ctx, session)
}

// reindex keeps the live set and ended sorted set in step with the
// session's status.
func (r *RedisSessionStore) reindex(ctx context.Context, session *domain.LivestreamSession) error {
	pipe := r.client.Pipeline()
	if session.Status == domain.StatusLive {
		pipe.SAdd(ctx, liveSessionsKey, string(session.ID))
		pipe.ZRem(ctx, endedSessionsKey, string(session.ID))
	} else {
		pipe.SRem(ctx, liveSessionsKey, string(session.ID))
		endedAt := time.Now()
		if session.EndedAt != nil {
			endedAt = *session.EndedAt
		}
		pipe.ZAdd(ctx, endedSessionsKey, redis.Z{
			Score:  float64(endedAt.UnixNano()),
			Member: string(session.ID),
		})
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to index session: %w", err)
	}
	return nil
}

func (r *RedisSessionStore) Delete(ctx context.Context, id domain.SessionID) error {
	pipe := r.client.Pipeline()
	pipe.SRem(ctx, liveSessionsKey, string(id))
	pipe.ZRem(ctx, endedSessionsKey, string(id))
	pipe.Del(ctx, r.sessionKey(id), r.messagesKey(id))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete session from Redis: %w", err)
	}
	return nil
}

func (r *RedisSessionStore) ListLive(ctx context.Context) ([]*domain.LivestreamSession, error) {
	ids, err := r.client.SMembers(ctx, liveSessionsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get live sessions from Redis: %w", err)
	}

	var sessions []*domain.LivestreamSession
	for _, id := range ids {
		session, err := r.GetByID(ctx, domain.SessionID(id))
		if err != nil {
			// Skip sessions that no longer exist
			continue
		}
		if session.Status == domain.StatusLive {
			sessions = append(sessions, session)
		}
	}
	return sessions, nil
}

func (r *RedisSessionStore) ListEndedBefore(ctx context.Context, cutoff time.Time) ([]*domain.LivestreamSession, error) {
	ids, err := r.client.ZRangeByScore(ctx, endedSessionsKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: "(" + strconv.FormatInt(cutoff.UnixNano(), 10),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to range ended sessions: %w", err)
	}

	var sessions []*domain.LivestreamSession
	for _, id := range ids {
		session, err := r.GetByID(ctx, domain.SessionID(id))
		if err != nil {
			continue
		}
		sessions = append(sessions, session)
	}
	return sessions, nil
}

func (r *RedisSessionStore) AppendMessage(ctx context.Context, msg *domain.ChatMessage) error {
	if _, err := r.GetByID(ctx, msg.Session); err != nil {
		return err
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	pipe := r.client.Pipeline()
	pipe.RPush(ctx, r.messagesKey(msg.Session), data)
	pipe.LTrim(ctx, r.messagesKey(msg.Session), -int64(domain.ChatHistoryLimit), -1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to append message: %w", err)
	}
	return nil
}

func (r *RedisSessionStore) ListMessages(ctx context.Context, id domain.SessionID) ([]*domain.ChatMessage, error) {
	raw, err := r.client.LRange(ctx, r.messagesKey(id), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read messages: %w", err)
	}

	out := make([]*domain.ChatMessage, 0, len(raw))
	for _, item := range raw {
		var msg domain.ChatMessage
		if err := json.Unmarshal([]byte(item), &msg); err != nil {
			return nil, fmt.Errorf("failed to unmarshal message: %w", err)
		}
		out = append(out, &msg)
	}
	return out, nil
}
