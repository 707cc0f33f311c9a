package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/versefi/versequeue/internal/domain"
)

// streamMaxLen is the approximate maximum length of the durable event
// stream, enforced via XADD MAXLEN ~.
const streamMaxLen int64 = 10000

// eventStream is the durable, ordered copy of every published event, kept
// alongside the fire-and-forget pub/sub fanout for replay tooling.
const eventStream = "stream:events"

// EventBus implements domain.EventPublisher on Redis. Every event fans out
// on its kind's pub/sub channel for live subscribers (the websocket hub) and
// is appended to a capped stream for replay.
type EventBus struct {
	rdb *redis.Client
}

// NewEventBus creates an EventBus backed by the given Client.
func NewEventBus(c *Client) *EventBus {
	return &EventBus{rdb: c.Underlying()}
}

// Publish fans the event out on its channel and appends it to the durable
// stream. The stream append is best-effort once the pub/sub publish
// succeeded.
func (b *EventBus) Publish(ctx context.Context, ev domain.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("redis: marshal event %s: %w", ev.Kind, err)
	}

	channel := ev.Kind.Channel()
	if err := b.rdb.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("redis: publish %s: %w", channel, err)
	}

	args := &redis.XAddArgs{
		Stream: eventStream,
		MaxLen: streamMaxLen,
		Approx: true,
		Values: map[string]interface{}{
			"kind":    string(ev.Kind),
			"payload": payload,
		},
	}
	if err := b.rdb.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("redis: stream append %s: %w", eventStream, err)
	}
	return nil
}

// Subscribe creates a pub/sub subscription and returns a read-only channel
// of raw event payloads. Glob-style channels use PSubscribe. The
// subscription closes with the context; the returned channel is closed at
// that point as well.
func (b *EventBus) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	var pubsub *redis.PubSub
	if strings.ContainsAny(channel, "*?[") {
		pubsub = b.rdb.PSubscribe(ctx, channel)
	} else {
		pubsub = b.rdb.Subscribe(ctx, channel)
	}

	// Verify the subscription is established before handing it out.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("redis: subscribe %s: %w", channel, err)
	}

	out := make(chan []byte, 128)
	go func() {
		defer close(out)
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				select {
				case out <- []byte(msg.Payload):
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

// Compile-time interface check.
var _ domain.EventPublisher = (*EventBus)(nil)
