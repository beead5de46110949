// Package gateway turns client commands into backend service calls and,
// when a call succeeds, broadcasts the resulting task events to the
// affected rooms. Failures are returned to the caller only.
package gateway

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/taskgate/internal/auth"
	"github.com/gosuda/taskgate/internal/command"
	"github.com/gosuda/taskgate/internal/dispatch"
	"github.com/gosuda/taskgate/internal/domain"
	"github.com/gosuda/taskgate/internal/realtime"
)

// Sender is the routed call surface the gateway needs. *dispatch.Client
// implements it.
type Sender interface {
	SendInto(ctx context.Context, pattern string, payload map[string]any, out any) error
}

// Emitter fans events out to rooms. *realtime.Broadcaster implements it.
type Emitter interface {
	Emit(room realtime.RoomID, event string, payload any) int
	EmitToUser(userID uuid.UUID, event string, payload any) int
	SendTo(connID, event string, payload any) bool
}

// Gateway is shared by the REST and WebSocket edges.
type Gateway struct {
	sender    Sender
	emitter   Emitter
	jwtSecret string
	accessTTL time.Duration
	now       func() time.Time
}

func New(sender Sender, emitter Emitter, jwtSecret string, accessTTL time.Duration) *Gateway {
	return &Gateway{
		sender:    sender,
		emitter:   emitter,
		jwtSecret: jwtSecret,
		accessTTL: accessTTL,
		now:       time.Now,
	}
}

func (g *Gateway) send(ctx context.Context, pattern string, req any, out any) error {
	payload, err := command.Payload(req)
	if err != nil {
		return fmt.Errorf("gateway.send: %s: %w", pattern, err)
	}
	return g.sender.SendInto(ctx, pattern, payload, out)
}

// publish emits one taskUpdate to the task's room.
func (g *Gateway) publish(typ domain.TaskEventType, task *domain.Task) {
	n := g.emitter.Emit(realtime.TaskRoom(task.ID), domain.EventTaskUpdate, domain.TaskEvent{Type: typ, Task: task})
	log.Debug().Str("task_id", task.ID.String()).Str("type", string(typ)).Int("delivered", n).Msg("gateway: task event")
}

// notifyAssignee tells the assignee about the task in their user room.
func (g *Gateway) notifyAssignee(task *domain.Task) {
	if task.AssignedTo == nil {
		return
	}
	id := task.ID
	g.emitter.EmitToUser(*task.AssignedTo, domain.EventNotification, domain.Notification{
		ID:        uuid.New(),
		UserID:    *task.AssignedTo,
		Type:      domain.TaskEventAssigned,
		Message:   fmt.Sprintf("You were assigned to %q", task.Title),
		TaskID:    &id,
		CreatedAt: g.now(),
	})
}

// ---------------------------------------------------------------------------
// Tasks
// ---------------------------------------------------------------------------

func (g *Gateway) CreateTask(ctx context.Context, userID uuid.UUID, dto command.CreateTaskDTO) (*domain.Task, error) {
	var task domain.Task
	err := g.send(ctx, command.PatternCreateTask, command.CreateTaskRequest{CreateTaskDto: dto, UserID: userID.String()}, &task)
	if err != nil {
		return nil, err
	}
	if task.AssignedTo != nil {
		g.publish(domain.TaskEventAssigned, &task)
		g.notifyAssignee(&task)
	}
	return &task, nil
}

func (g *Gateway) ListTasks(ctx context.Context) ([]*domain.Task, error) {
	var tasks []*domain.Task
	if err := g.send(ctx, command.PatternFindAllTasks, struct{}{}, &tasks); err != nil {
		return nil, err
	}
	if tasks == nil {
		tasks = []*domain.Task{}
	}
	return tasks, nil
}

func (g *Gateway) GetTask(ctx context.Context, id string) (*domain.Task, error) {
	var task domain.Task
	if err := g.send(ctx, command.PatternFindOneTask, command.TaskIDRequest{ID: id}, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

// UpdateTask emits TASK_ASSIGNED (plus a notification) when the update sets
// an assignee, TASK_UPDATED otherwise.
func (g *Gateway) UpdateTask(ctx context.Context, id string, dto command.UpdateTaskDTO) (*domain.Task, error) {
	var task domain.Task
	if err := g.send(ctx, command.PatternUpdateTask, command.UpdateTaskRequest{ID: id, UpdateTaskDto: dto}, &task); err != nil {
		return nil, err
	}
	if dto.AssignedTo != nil {
		g.publish(domain.TaskEventAssigned, &task)
		g.notifyAssignee(&task)
		return &task, nil
	}
	g.publish(domain.TaskEventUpdated, &task)
	return &task, nil
}

func (g *Gateway) RemoveTask(ctx context.Context, id string) (*domain.Task, error) {
	var task domain.Task
	if err := g.send(ctx, command.PatternRemoveTask, command.TaskIDRequest{ID: id}, &task); err != nil {
		return nil, err
	}
	g.publish(domain.TaskEventDeleted, &task)
	return &task, nil
}

// UpdateTaskStatus emits exactly one STATUS_CHANGED to the task's room.
func (g *Gateway) UpdateTaskStatus(ctx context.Context, userID uuid.UUID, id string, status domain.TaskStatus) (*domain.Task, error) {
	var task domain.Task
	req := command.UpdateTaskStatusRequest{ID: id, Status: status, UserID: userID.String()}
	if err := g.send(ctx, command.PatternUpdateTaskStatus, req, &task); err != nil {
		return nil, err
	}
	g.publish(domain.TaskEventStatusChanged, &task)
	return &task, nil
}

func (g *Gateway) UpdateTaskOrder(ctx context.Context, id string, newOrder int) (*domain.Task, error) {
	var task domain.Task
	if err := g.send(ctx, command.PatternUpdateTaskOrder, command.UpdateTaskOrderRequest{ID: id, NewOrder: newOrder}, &task); err != nil {
		return nil, err
	}
	g.publish(domain.TaskEventUpdated, &task)
	return &task, nil
}

// UpdateTaskActive archives (isActive=false) or restores a task.
func (g *Gateway) UpdateTaskActive(ctx context.Context, id string, isActive bool) (*domain.Task, error) {
	var task domain.Task
	if err := g.send(ctx, command.PatternUpdateTaskActive, command.UpdateTaskActiveRequest{ID: id, IsActive: isActive}, &task); err != nil {
		return nil, err
	}
	typ := domain.TaskEventUpdated
	if !isActive {
		typ = domain.TaskEventArchived
	}
	g.publish(typ, &task)
	return &task, nil
}

// ---------------------------------------------------------------------------
// Users
// ---------------------------------------------------------------------------

// Login checks credentials with the user service and issues an access
// token.
func (g *Gateway) Login(ctx context.Context, email, password string) (string, *domain.User, error) {
	var user domain.User
	if err := g.send(ctx, command.PatternValidateUser, command.ValidateUserRequest{Email: email, Password: password}, &user); err != nil {
		return "", nil, err
	}
	token, err := auth.IssueAccessToken(g.jwtSecret, user.ID, user.Email, g.accessTTL)
	if err != nil {
		return "", nil, fmt.Errorf("gateway.Gateway.Login: %w", err)
	}
	return token, &user, nil
}

func (g *Gateway) Register(ctx context.Context, email, password, name string) (*domain.User, error) {
	var user domain.User
	if err := g.send(ctx, command.PatternCreateUser, command.CreateUserRequest{Email: email, Password: password, Name: name}, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

func (g *Gateway) GetUser(ctx context.Context, id string) (*domain.User, error) {
	var user domain.User
	if err := g.send(ctx, command.PatternGetUser, command.GetUserRequest{UserID: id}, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

func (g *Gateway) ListUsers(ctx context.Context) ([]*domain.User, error) {
	var users []*domain.User
	if err := g.send(ctx, command.PatternFindAllUsers, struct{}{}, &users); err != nil {
		return nil, err
	}
	if users == nil {
		users = []*domain.User{}
	}
	return users, nil
}

var _ Sender = (*dispatch.Client)(nil)
var _ Emitter = (*realtime.Broadcaster)(nil)
