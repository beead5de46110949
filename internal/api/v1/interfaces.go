package v1

import (
	"context"

	"github.com/google/uuid"

	"github.com/gosuda/taskgate/internal/command"
	"github.com/gosuda/taskgate/internal/domain"
	"github.com/gosuda/taskgate/internal/realtime"
)

// TaskGateway abstracts task commands for handler testing.
// *gateway.Gateway satisfies this interface.
type TaskGateway interface {
	CreateTask(ctx context.Context, userID uuid.UUID, dto command.CreateTaskDTO) (*domain.Task, error)
	ListTasks(ctx context.Context) ([]*domain.Task, error)
	GetTask(ctx context.Context, id string) (*domain.Task, error)
	UpdateTask(ctx context.Context, id string, dto command.UpdateTaskDTO) (*domain.Task, error)
	RemoveTask(ctx context.Context, id string) (*domain.Task, error)
	UpdateTaskStatus(ctx context.Context, userID uuid.UUID, id string, status domain.TaskStatus) (*domain.Task, error)
	UpdateTaskOrder(ctx context.Context, id string, newOrder int) (*domain.Task, error)
	UpdateTaskActive(ctx context.Context, id string, isActive bool) (*domain.Task, error)
}

// UserGateway abstracts user and credential commands for handler testing.
// *gateway.Gateway satisfies this interface.
type UserGateway interface {
	Login(ctx context.Context, email, password string) (string, *domain.User, error)
	Register(ctx context.Context, email, password, name string) (*domain.User, error)
	GetUser(ctx context.Context, id string) (*domain.User, error)
	ListUsers(ctx context.Context) ([]*domain.User, error)
}

// StatsSource reports live connection counts.
// *realtime.Registry satisfies this interface.
type StatsSource interface {
	Stats() realtime.Stats
}
