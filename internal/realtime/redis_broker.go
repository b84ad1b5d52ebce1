package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"campus-chat/internal/chat"

	"github.com/redis/go-redis/v9"
)

// RedisBroker relays events over a Redis Pub/Sub channel so every instance sees every write.
type RedisBroker struct {
	client  *redis.Client
	channel string
	log     *slog.Logger

	mu     sync.Mutex
	pubsub *redis.PubSub
}

func NewRedisBroker(client *redis.Client, channel string, log *slog.Logger) *RedisBroker {
	return &RedisBroker{client: client, channel: channel, log: log}
}

func (b *RedisBroker) Publish(ctx context.Context, evt chat.Event) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	return b.client.Publish(ctx, b.channel, payload).Err()
}

// Subscribe confirms the subscription before returning, so nothing published afterwards is
// missed. The returned channel closes when ctx ends or the broker is closed.
func (b *RedisBroker) Subscribe(ctx context.Context) (<-chan chat.Event, error) {
	pubsub := b.client.Subscribe(ctx, b.channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", b.channel, err)
	}
	b.mu.Lock()
	b.pubsub = pubsub
	b.mu.Unlock()

	out := make(chan chat.Event, 256)
	go func() {
		defer close(out)
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var evt chat.Event
				if err := json.Unmarshal([]byte(msg.Payload), &evt); err != nil {
					b.log.Warn("Dropping undecodable event", "channel", msg.Channel, "error", err)
					continue
				}
				select {
				case out <- evt:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func (b *RedisBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.pubsub == nil {
		return nil
	}
	err := b.pubsub.Close()
	b.pubsub = nil
	return err
}
