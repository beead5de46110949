package domain

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

type TaskStatus string

const (
	TaskStatusTodo       TaskStatus = "TODO"
	TaskStatusInProgress TaskStatus = "IN_PROGRESS"
	TaskStatusDone       TaskStatus = "DONE"
)

// TaskStatuses lists the board columns in display order.
var TaskStatuses = []TaskStatus{TaskStatusTodo, TaskStatusInProgress, TaskStatusDone} //nolint:gochecknoglobals // column order

// Valid reports whether s is one of the known board columns.
// Any column may be moved to any other; drag-and-drop has no transition graph.
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusTodo, TaskStatusInProgress, TaskStatusDone:
		return true
	default:
		return false
	}
}

// Task is the unit shown on a board. Order is dense per status column
// starting at 0; it is not unique across columns.
type Task struct {
	ID          uuid.UUID  `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Status      TaskStatus `json:"status"`
	Order       int        `json:"order"`
	AssignedTo  *uuid.UUID `json:"assignedTo,omitempty"`
	CreatedBy   uuid.UUID  `json:"createdBy"`
	IsActive    bool       `json:"isActive"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// Clone returns a deep copy so callers can mutate without aliasing.
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}
	c := *t
	if t.AssignedTo != nil {
		a := *t.AssignedTo
		c.AssignedTo = &a
	}
	return &c
}

var (
	ErrInvalidStatus = errors.New("task: invalid status")
	ErrInvalidOrder  = errors.New("task: order must be >= 0")
)

type TaskRepository interface {
	Create(ctx context.Context, t *Task) error
	GetByID(ctx context.Context, id uuid.UUID) (*Task, error)
	List(ctx context.Context) ([]*Task, error)
	Update(ctx context.Context, t *Task) error
	Delete(ctx context.Context, id uuid.UUID) error
	NextOrder(ctx context.Context, status TaskStatus) (int, error)
}
