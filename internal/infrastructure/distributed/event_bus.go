package distributed

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"orbnet/internal/core/domain"
)

const eventsChannel = "orbnet:presence:events"

// envelope carries a presence event across relay nodes. InstanceID lets
// the subscriber drop its own publishes; the hub has already delivered
// those locally.
type envelope struct {
	InstanceID string        `json:"instance_id"`
	Room       domain.RoomID `json:"room"`
	Event      domain.Event  `json:"event"`
	Timestamp  time.Time     `json:"timestamp"`
}

// EventBus fans presence events out across relay nodes over Redis
// Pub/Sub. It satisfies the hub's Fanout interface on the publish side;
// Subscribe feeds inbound events back through hub.Rebroadcast.
type EventBus struct {
	client     *redis.Client
	instanceID string
	logger     *zap.SugaredLogger
	pubsub     *redis.PubSub
}

// NewEventBus creates a new event bus
func NewEventBus(client *redis.Client, instanceID string, logger *zap.SugaredLogger) *EventBus {
	return &EventBus{
		client:     client,
		instanceID: instanceID,
		logger:     logger,
	}
}

// Publish sends a locally originated event to every other relay node.
func (eb *EventBus) Publish(ctx context.Context, room domain.RoomID, ev domain.Event) error {
	env := envelope{
		InstanceID: eb.instanceID,
		Room:       room,
		Event:      ev,
		Timestamp:  time.Now().UTC(),
	}

	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if err := eb.client.Publish(ctx, eventsChannel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	eb.logger.Debugw("published event",
		"room", room,
		"type", ev.Type,
	)

	return nil
}

// Subscribe blocks reading the events channel, invoking handler for
// every event that originated on another instance. It returns when the
// context is cancelled or the bus is closed.
func (eb *EventBus) Subscribe(ctx context.Context, handler func(room domain.RoomID, ev domain.Event)) error {
	if eb.pubsub != nil {
		return fmt.Errorf("already subscribed")
	}

	eb.pubsub = eb.client.Subscribe(ctx, eventsChannel)
	defer eb.pubsub.Close()

	ch := eb.pubsub.Channel()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}

			var env envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				eb.logger.Warnw("failed to unmarshal event",
					"error", err,
					"payload", msg.Payload,
				)
				continue
			}

			if env.InstanceID == eb.instanceID {
				continue
			}

			handler(env.Room, env.Event)
		}
	}
}

// Close closes the event bus
func (eb *EventBus) Close() error {
	if eb.pubsub != nil {
		return eb.pubsub.Close()
	}
	return nil
}
