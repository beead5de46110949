package domain

import (
	"time"

	"github.com/google/uuid"
)

// Notification is pushed to a user's personal room. It is not persisted by
// the gateway.
type Notification struct {
	ID        uuid.UUID     `json:"id"`
	UserID    uuid.UUID     `json:"userId"`
	Type      TaskEventType `json:"type"`
	Message   string        `json:"message"`
	TaskID    *uuid.UUID    `json:"taskId,omitempty"`
	CreatedAt time.Time     `json:"createdAt"`
}
