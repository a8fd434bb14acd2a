package nats

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/sharetube/watchparty/internal/repository/broker"
)

const (
	maxReconnects = -1
	reconnectWait = 2 * time.Second
)

// Connect dials NATS and reconnects forever, logging connection changes.
func Connect(url, name string) (*nats.Conn, error) {
	funcName := "broker.nats.Connect"
	opts := []nats.Option{
		nats.Name(name),
		nats.MaxReconnects(maxReconnects),
		nats.ReconnectWait(reconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			slog.Warn(funcName, "event", "disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			slog.Info(funcName, "event", "reconnected", "url", nc.ConnectedUrl())
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			slog.Error(funcName, "error", err)
		}),
	}

	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats: %w", err)
	}

	return nc, nil
}

type Bridge struct {
	nc     *nats.Conn
	origin string
}

func NewBridge(nc *nats.Conn, origin string) *Bridge {
	return &Bridge{
		nc:     nc,
		origin: origin,
	}
}

func (b *Bridge) Publish(_ context.Context, roomID string, frame []byte) error {
	data, err := broker.Encode(b.origin, roomID, frame)
	if err != nil {
		return err
	}

	if err := b.nc.Publish(broker.Topic, data); err != nil {
		return fmt.Errorf("failed to publish to nats: %w", err)
	}

	return nil
}

// Listen delivers frames published by other instances to handler until ctx is done.
func (b *Bridge) Listen(ctx context.Context, handler broker.Handler) error {
	funcName := "broker.nats.Listen"
	sub, err := b.nc.Subscribe(broker.Topic, func(msg *nats.Msg) {
		env, err := broker.Decode(msg.Data)
		if err != nil {
			slog.Warn(funcName, "error", err)
			return
		}
		if env.Origin == b.origin {
			return
		}

		if err := handler(ctx, env.RoomID, env.Frame); err != nil {
			slog.Warn(funcName, "roomID", env.RoomID, "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", broker.Topic, err)
	}
	defer sub.Unsubscribe()

	if err := b.nc.Flush(); err != nil {
		return fmt.Errorf("failed to flush subscription: %w", err)
	}
	slog.Info(funcName, "topic", broker.Topic, "origin", b.origin)

	<-ctx.Done()
	return nil
}
