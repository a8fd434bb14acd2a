package redis

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
	"github.com/sharetube/watchparty/internal/repository/broker"
)

type Bridge struct {
	client *redis.Client
	origin string
}

func NewBridge(client *redis.Client, origin string) *Bridge {
	return &Bridge{
		client: client,
		origin: origin,
	}
}

func (b *Bridge) Publish(ctx context.Context, roomID string, frame []byte) error {
	data, err := broker.Encode(b.origin, roomID, frame)
	if err != nil {
		return err
	}

	if err := b.client.Publish(ctx, broker.Topic, data).Err(); err != nil {
		return fmt.Errorf("failed to publish to redis: %w", err)
	}

	return nil
}

// Listen delivers frames published by other instances to handler until ctx is done.
func (b *Bridge) Listen(ctx context.Context, handler broker.Handler) error {
	funcName := "broker.redis.Listen"
	pubsub := b.client.Subscribe(ctx, broker.Topic)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("failed to subscribe to %s: %w", broker.Topic, err)
	}
	slog.Info(funcName, "topic", broker.Topic, "origin", b.origin)

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}

			env, err := broker.Decode([]byte(msg.Payload))
			if err != nil {
				slog.Warn(funcName, "error", err)
				continue
			}
			if env.Origin == b.origin {
				continue
			}

			if err := handler(ctx, env.RoomID, env.Frame); err != nil {
				slog.Warn(funcName, "roomID", env.RoomID, "error", err)
			}
		}
	}
}
