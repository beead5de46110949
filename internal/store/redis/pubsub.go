// Package redis carries gateway traffic over Redis pub/sub: command
// envelopes to backend services that listen on a channel instead of a
// socket, and the notification feed.
package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Broker is the pub/sub surface the transport needs. *PubSub implements it.
type Broker interface {
	// Publish returns the number of subscribers that received payload.
	Publish(ctx context.Context, channel string, payload []byte) (int64, error)
	Subscribe(ctx context.Context, channel string) (<-chan []byte, func(), error)
}

type PubSub struct {
	client *redis.Client
}

func New(ctx context.Context, addr, password string, db int) (*PubSub, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis.New: ping: %w", err)
	}

	return &PubSub{client: client}, nil
}

func (ps *PubSub) Close() error {
	if err := ps.client.Close(); err != nil {
		return fmt.Errorf("redis.PubSub.Close: %w", err)
	}
	return nil
}

// Ping checks the connection. Used by health checks.
func (ps *PubSub) Ping(ctx context.Context) error {
	if err := ps.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis.PubSub.Ping: %w", err)
	}
	return nil
}

func (ps *PubSub) Publish(ctx context.Context, channel string, payload []byte) (int64, error) {
	n, err := ps.client.Publish(ctx, channel, payload).Result()
	if err != nil {
		return 0, fmt.Errorf("redis.PubSub.Publish: %w", err)
	}
	return n, nil
}

func (ps *PubSub) Subscribe(ctx context.Context, channel string) (<-chan []byte, func(), error) {
	sub := ps.client.Subscribe(ctx, channel)

	// Wait for subscription confirmation.
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, nil, fmt.Errorf("redis.PubSub.Subscribe: receive confirmation: %w", err)
	}

	out := make(chan []byte, 64)
	redisCh := sub.Channel()

	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-redisCh:
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

	cleanup := func() {
		_ = sub.Close()
	}

	return out, cleanup, nil
}

// NotificationsChannel carries domain.Notification values published by
// backend services.
const NotificationsChannel = "taskgate:notifications"

// RequestChannel returns the channel a service listens on for envelopes.
func RequestChannel(service string) string {
	return "taskgate:rpc:" + service
}

// ReplyChannel returns the channel one requester instance reads replies
// from.
func ReplyChannel(service, instance string) string {
	return "taskgate:rpc:" + service + ":reply:" + instance
}
