package command

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/gosuda/taskgate/internal/codec"
	"github.com/gosuda/taskgate/internal/domain"
)

// Payload shapes per pattern. The gateway builds them, backends decode
// them with Decode. Ids travel as strings so a malformed id reaches the
// backend and is answered there.

// CreateTaskDTO is the createTaskDto field of createTask.
type CreateTaskDTO struct {
	Title       string            `json:"title" validate:"required,max=200"`
	Description string            `json:"description,omitempty" validate:"max=5000"`
	Status      domain.TaskStatus `json:"status,omitempty"`
	AssignedTo  *uuid.UUID        `json:"assignedTo,omitempty"`
}

// UpdateTaskDTO is the updateTaskDto field of updateTask. Nil fields are
// left unchanged.
type UpdateTaskDTO struct {
	Title       *string    `json:"title,omitempty" validate:"omitempty,min=1,max=200"`
	Description *string    `json:"description,omitempty" validate:"omitempty,max=5000"`
	AssignedTo  *uuid.UUID `json:"assignedTo,omitempty"`
}

type CreateTaskRequest struct {
	CreateTaskDto CreateTaskDTO `json:"createTaskDto"`
	UserID        string        `json:"userId" validate:"required,uuid"`
}

// TaskIDRequest serves findOneTask and removeTask.
type TaskIDRequest struct {
	ID string `json:"id"`
}

type UpdateTaskRequest struct {
	ID            string        `json:"id"`
	UpdateTaskDto UpdateTaskDTO `json:"updateTaskDto"`
}

type UpdateTaskStatusRequest struct {
	ID     string            `json:"id"`
	Status domain.TaskStatus `json:"status"`
	UserID string            `json:"userId,omitempty"`
}

type UpdateTaskOrderRequest struct {
	ID       string `json:"id"`
	NewOrder int    `json:"newOrder" validate:"min=0"`
}

type UpdateTaskActiveRequest struct {
	ID       string `json:"id"`
	IsActive bool   `json:"isActive"`
}

type ValidateUserRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type GetUserRequest struct {
	UserID string `json:"userId"`
}

type CreateUserRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8,max=128"`
	Name     string `json:"name" validate:"required,max=100"`
}

// Payload turns a request struct into an envelope payload map.
func Payload(req any) (map[string]any, error) {
	data, err := codec.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("command.Payload: %w", err)
	}
	out := map[string]any{}
	if err := codec.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("command.Payload: %w", err)
	}
	return out, nil
}
