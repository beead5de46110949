package v1_test

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/gosuda/taskgate/internal/command"
	"github.com/gosuda/taskgate/internal/dispatch"
	"github.com/gosuda/taskgate/internal/domain"
	"github.com/gosuda/taskgate/internal/realtime"
	"github.com/gosuda/taskgate/internal/server/middleware"
)

// ---------------------------------------------------------------------------
// Context helpers — inject the authenticated user for DoCtx
// ---------------------------------------------------------------------------

func userCtx(userID uuid.UUID) context.Context {
	return context.WithValue(context.Background(), middleware.ContextKeyUserID, userID)
}

func rejected(code, message string) error {
	return &dispatch.ServiceError{
		Kind:    dispatch.KindRejected,
		Service: dispatch.ServiceTask,
		Code:    code,
		Message: message,
	}
}

func unavailable() error {
	return &dispatch.ServiceError{
		Kind:    dispatch.KindUnavailable,
		Service: dispatch.ServiceTask,
		Message: "dial tcp 10.0.0.7:4001: connection refused",
		Err:     errors.New("connection refused"),
	}
}

// ---------------------------------------------------------------------------
// Mock TaskGateway
// ---------------------------------------------------------------------------

type mockTaskGateway struct {
	createFunc       func(ctx context.Context, userID uuid.UUID, dto command.CreateTaskDTO) (*domain.Task, error)
	listFunc         func(ctx context.Context) ([]*domain.Task, error)
	getFunc          func(ctx context.Context, id string) (*domain.Task, error)
	updateFunc       func(ctx context.Context, id string, dto command.UpdateTaskDTO) (*domain.Task, error)
	removeFunc       func(ctx context.Context, id string) (*domain.Task, error)
	updateStatusFunc func(ctx context.Context, userID uuid.UUID, id string, status domain.TaskStatus) (*domain.Task, error)
	updateOrderFunc  func(ctx context.Context, id string, newOrder int) (*domain.Task, error)
	updateActiveFunc func(ctx context.Context, id string, isActive bool) (*domain.Task, error)
}

func (m *mockTaskGateway) CreateTask(ctx context.Context, userID uuid.UUID, dto command.CreateTaskDTO) (*domain.Task, error) {
	return m.createFunc(ctx, userID, dto)
}

func (m *mockTaskGateway) ListTasks(ctx context.Context) ([]*domain.Task, error) {
	return m.listFunc(ctx)
}

func (m *mockTaskGateway) GetTask(ctx context.Context, id string) (*domain.Task, error) {
	return m.getFunc(ctx, id)
}

func (m *mockTaskGateway) UpdateTask(ctx context.Context, id string, dto command.UpdateTaskDTO) (*domain.Task, error) {
	return m.updateFunc(ctx, id, dto)
}

func (m *mockTaskGateway) RemoveTask(ctx context.Context, id string) (*domain.Task, error) {
	return m.removeFunc(ctx, id)
}

func (m *mockTaskGateway) UpdateTaskStatus(ctx context.Context, userID uuid.UUID, id string, status domain.TaskStatus) (*domain.Task, error) {
	return m.updateStatusFunc(ctx, userID, id, status)
}

func (m *mockTaskGateway) UpdateTaskOrder(ctx context.Context, id string, newOrder int) (*domain.Task, error) {
	return m.updateOrderFunc(ctx, id, newOrder)
}

func (m *mockTaskGateway) UpdateTaskActive(ctx context.Context, id string, isActive bool) (*domain.Task, error) {
	return m.updateActiveFunc(ctx, id, isActive)
}

// ---------------------------------------------------------------------------
// Mock UserGateway
// ---------------------------------------------------------------------------

type mockUserGateway struct {
	loginFunc    func(ctx context.Context, email, password string) (string, *domain.User, error)
	registerFunc func(ctx context.Context, email, password, name string) (*domain.User, error)
	getUserFunc  func(ctx context.Context, id string) (*domain.User, error)
	listFunc     func(ctx context.Context) ([]*domain.User, error)
}

func (m *mockUserGateway) Login(ctx context.Context, email, password string) (string, *domain.User, error) {
	return m.loginFunc(ctx, email, password)
}

func (m *mockUserGateway) Register(ctx context.Context, email, password, name string) (*domain.User, error) {
	return m.registerFunc(ctx, email, password, name)
}

func (m *mockUserGateway) GetUser(ctx context.Context, id string) (*domain.User, error) {
	return m.getUserFunc(ctx, id)
}

func (m *mockUserGateway) ListUsers(ctx context.Context) ([]*domain.User, error) {
	return m.listFunc(ctx)
}

// ---------------------------------------------------------------------------
// Mock StatsSource
// ---------------------------------------------------------------------------

type staticStats realtime.Stats

func (s staticStats) Stats() realtime.Stats { return realtime.Stats(s) }
