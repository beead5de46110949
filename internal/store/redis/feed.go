package redis

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/gosuda/taskgate/internal/codec"
	"github.com/gosuda/taskgate/internal/domain"
)

// PublishNotification puts n on the notification feed. Having no gateway
// listening is not an error.
func PublishNotification(ctx context.Context, broker Broker, n domain.Notification) error {
	payload, err := codec.Marshal(n)
	if err != nil {
		return fmt.Errorf("redis.PublishNotification: %w", err)
	}
	if _, err := broker.Publish(ctx, NotificationsChannel, payload); err != nil {
		return fmt.Errorf("redis.PublishNotification: %w", err)
	}
	return nil
}

// SubscribeNotifications streams the notification feed until ctx is done
// or cleanup is called. Undecodable messages are logged and skipped.
func SubscribeNotifications(ctx context.Context, broker Broker) (<-chan domain.Notification, func(), error) {
	raw, cleanup, err := broker.Subscribe(ctx, NotificationsChannel)
	if err != nil {
		return nil, nil, fmt.Errorf("redis.SubscribeNotifications: %w", err)
	}

	out := make(chan domain.Notification, 64)
	go func() {
		defer close(out)
		for msg := range raw {
			var n domain.Notification
			if err := codec.Unmarshal(msg, &n); err != nil {
				log.Warn().Err(err).Msg("redis: discarding malformed notification")
				continue
			}
			select {
			case out <- n:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, cleanup, nil
}
