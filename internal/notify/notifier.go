// Package notify carries user notifications across processes: backends
// publish them to the shared feed and the gateway forwards each one to the
// recipient's user room.
package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/taskgate/internal/domain"
	redisstore "github.com/gosuda/taskgate/internal/store/redis"
)

// ErrNoRecipient is returned when a notification has no user.
var ErrNoRecipient = errors.New("notify: notification has no recipient") //nolint:gochecknoglobals // sentinel error

// Notifier publishes notifications to the feed.
type Notifier struct {
	broker redisstore.Broker
	now    func() time.Time
}

// New creates a Notifier on broker.
func New(broker redisstore.Broker) *Notifier {
	return &Notifier{broker: broker, now: time.Now}
}

// Notify publishes one notification for userID. taskID may be nil.
func (n *Notifier) Notify(ctx context.Context, userID uuid.UUID, typ domain.TaskEventType, message string, taskID *uuid.UUID) error {
	if userID == uuid.Nil {
		return fmt.Errorf("notify.Notify: %w", ErrNoRecipient)
	}

	note := domain.Notification{
		ID:        uuid.New(),
		UserID:    userID,
		Type:      typ,
		Message:   message,
		TaskID:    taskID,
		CreatedAt: n.now(),
	}
	if err := redisstore.PublishNotification(ctx, n.broker, note); err != nil {
		return fmt.Errorf("notify.Notify: %w", err)
	}
	return nil
}

// Emitter delivers to a user's room. *realtime.Broadcaster implements it.
type Emitter interface {
	EmitToUser(userID uuid.UUID, event string, payload any) int
}

// Forwarder moves feed notifications into user rooms.
type Forwarder struct {
	emitter Emitter
}

// NewForwarder creates a Forwarder.
func NewForwarder(emitter Emitter) *Forwarder {
	return &Forwarder{emitter: emitter}
}

// Run forwards until ctx is done or feed is closed.
func (f *Forwarder) Run(ctx context.Context, feed <-chan domain.Notification) {
	for {
		select {
		case <-ctx.Done():
			return
		case n, ok := <-feed:
			if !ok {
				return
			}
			f.forward(n)
		}
	}
}

func (f *Forwarder) forward(n domain.Notification) {
	if n.UserID == uuid.Nil {
		log.Warn().Str("notification_id", n.ID.String()).Msg("notify: dropping notification without recipient")
		return
	}
	delivered := f.emitter.EmitToUser(n.UserID, domain.EventNotification, n)
	log.Debug().
		Str("user_id", n.UserID.String()).
		Str("type", string(n.Type)).
		Int("delivered", delivered).
		Msg("notify: forwarded")
}
