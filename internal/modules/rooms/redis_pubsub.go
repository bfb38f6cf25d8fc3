// README: Redis-backed pub/sub so room broadcasts reach sessions on any process instance.
package rooms

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

const roomChannelPrefix = "deliverd:room:"

// RedisPubSub publishes each room broadcast on a per-room Redis channel and
// pattern-subscribes so every instance delivers to its own local sessions.
type RedisPubSub struct {
	client *redis.Client
	sub    *redis.PubSub
	log    *slog.Logger
	cancel context.CancelFunc
}

func NewRedisPubSub(client *redis.Client, log *slog.Logger) *RedisPubSub {
	return &RedisPubSub{client: client, log: log}
}

func (p *RedisPubSub) Publish(ctx context.Context, env Envelope) error {
	body, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return p.client.Publish(ctx, roomChannelPrefix+env.Room, body).Err()
}

func (p *RedisPubSub) Subscribe(fn func(env Envelope)) {
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.sub = p.client.PSubscribe(ctx, roomChannelPrefix+"*")

	go func() {
		for msg := range p.sub.Channel() {
			var env Envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				p.log.Warn("dropping malformed room envelope", "channel", msg.Channel, "error", err)
				continue
			}
			fn(env)
		}
	}()
}

func (p *RedisPubSub) Close() error {
	if p.cancel != nil {
		p.cancel()
	}
	if p.sub != nil {
		return p.sub.Close()
	}
	return nil
}
