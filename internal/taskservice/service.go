// Package taskservice serves the task patterns on top of a task
// repository. It is the reference backend behind TASK_SERVICE.
package taskservice

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/taskgate/internal/codec"
	"github.com/gosuda/taskgate/internal/command"
	"github.com/gosuda/taskgate/internal/domain"
)

// Notifier publishes a user notification. *notify.Notifier implements it.
type Notifier interface {
	Notify(ctx context.Context, userID uuid.UUID, typ domain.TaskEventType, message string, taskID *uuid.UUID) error
}

type Service struct {
	tasks    domain.TaskRepository
	users    domain.UserRepository
	notifier Notifier // nil disables notifications
	validate *validator.Validate
	now      func() time.Time
}

// New creates a task service. notifier may be nil.
func New(tasks domain.TaskRepository, users domain.UserRepository, notifier Notifier) *Service {
	return &Service{
		tasks:    tasks,
		users:    users,
		notifier: notifier,
		validate: validator.New(),
		now:      time.Now,
	}
}

// Router returns a command router serving every task pattern.
func (s *Service) Router() (*command.Router, error) {
	r := command.NewRouter("task")
	handlers := map[string]command.HandlerFunc{
		command.PatternCreateTask:       s.createTask,
		command.PatternFindAllTasks:     s.findAll,
		command.PatternFindOneTask:      s.findOne,
		command.PatternUpdateTask:       s.updateTask,
		command.PatternRemoveTask:       s.removeTask,
		command.PatternUpdateTaskStatus: s.updateStatus,
		command.PatternUpdateTaskOrder:  s.updateOrder,
		command.PatternUpdateTaskActive: s.updateActive,
	}
	for pattern, h := range handlers {
		if err := r.Handle(pattern, h); err != nil {
			return nil, fmt.Errorf("taskservice.Router: %w", err)
		}
	}
	if err := r.Require(command.TaskPatterns()...); err != nil {
		return nil, fmt.Errorf("taskservice.Router: %w", err)
	}
	return r, nil
}

func (s *Service) decode(payload codec.RawMessage, v any) error {
	if err := command.Decode(payload, v); err != nil {
		return err
	}
	if err := s.validate.Struct(v); err != nil {
		return command.Errorf(command.CodeValidation, "%v", err)
	}
	return nil
}

func (s *Service) createTask(ctx context.Context, payload codec.RawMessage) (any, error) {
	var req command.CreateTaskRequest
	if err := s.decode(payload, &req); err != nil {
		return nil, err
	}
	createdBy, err := uuid.Parse(req.UserID)
	if err != nil {
		return nil, command.Errorf(command.CodeValidation, "invalid userId %q", req.UserID)
	}

	status := req.CreateTaskDto.Status
	if status == "" {
		status = domain.TaskStatusTodo
	}
	if !status.Valid() {
		return nil, command.Errorf(command.CodeInvalidStatus, "unknown status %q", status)
	}
	if err := s.checkAssignee(ctx, req.CreateTaskDto.AssignedTo); err != nil {
		return nil, err
	}

	order, err := s.tasks.NextOrder(ctx, status)
	if err != nil {
		return nil, fmt.Errorf("taskservice.createTask: %w", err)
	}

	now := s.now()
	task := &domain.Task{
		ID:          uuid.New(),
		Title:       req.CreateTaskDto.Title,
		Description: req.CreateTaskDto.Description,
		Status:      status,
		Order:       order,
		AssignedTo:  req.CreateTaskDto.AssignedTo,
		CreatedBy:   createdBy,
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.tasks.Create(ctx, task); err != nil {
		return nil, fmt.Errorf("taskservice.createTask: %w", err)
	}
	return task, nil
}

func (s *Service) findAll(ctx context.Context, _ codec.RawMessage) (any, error) {
	tasks, err := s.tasks.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("taskservice.findAll: %w", err)
	}
	if tasks == nil {
		tasks = []*domain.Task{}
	}
	return tasks, nil
}

func (s *Service) findOne(ctx context.Context, payload codec.RawMessage) (any, error) {
	var req command.TaskIDRequest
	if err := s.decode(payload, &req); err != nil {
		return nil, err
	}
	return s.load(ctx, req.ID)
}

func (s *Service) updateTask(ctx context.Context, payload codec.RawMessage) (any, error) {
	var req command.UpdateTaskRequest
	if err := s.decode(payload, &req); err != nil {
		return nil, err
	}
	task, err := s.load(ctx, req.ID)
	if err != nil {
		return nil, err
	}

	dto := req.UpdateTaskDto
	if dto.Title != nil {
		task.Title = *dto.Title
	}
	if dto.Description != nil {
		task.Description = *dto.Description
	}
	if dto.AssignedTo != nil {
		if err := s.checkAssignee(ctx, dto.AssignedTo); err != nil {
			return nil, err
		}
		task.AssignedTo = dto.AssignedTo
	}

	if err := s.tasks.Update(ctx, task); err != nil {
		return nil, fmt.Errorf("taskservice.updateTask: %w", err)
	}
	return task, nil
}

func (s *Service) removeTask(ctx context.Context, payload codec.RawMessage) (any, error) {
	var req command.TaskIDRequest
	if err := s.decode(payload, &req); err != nil {
		return nil, err
	}
	task, err := s.load(ctx, req.ID)
	if err != nil {
		return nil, err
	}
	if err := s.tasks.Delete(ctx, task.ID); err != nil {
		return nil, fmt.Errorf("taskservice.removeTask: %w", err)
	}
	return task, nil
}

// updateStatus moves a task to another column, appending it there. The
// board follows up with explicit orders for both columns. Any column may
// move to any other.
func (s *Service) updateStatus(ctx context.Context, payload codec.RawMessage) (any, error) {
	var req command.UpdateTaskStatusRequest
	if err := s.decode(payload, &req); err != nil {
		return nil, err
	}
	if !req.Status.Valid() {
		return nil, command.Errorf(command.CodeInvalidStatus, "unknown status %q", req.Status)
	}
	task, err := s.load(ctx, req.ID)
	if err != nil {
		return nil, err
	}

	if task.Status != req.Status {
		order, err := s.tasks.NextOrder(ctx, req.Status)
		if err != nil {
			return nil, fmt.Errorf("taskservice.updateStatus: %w", err)
		}
		task.Status = req.Status
		task.Order = order
	}
	if err := s.tasks.Update(ctx, task); err != nil {
		return nil, fmt.Errorf("taskservice.updateStatus: %w", err)
	}

	s.notifyCreator(ctx, task, req.UserID)
	return task, nil
}

func (s *Service) updateOrder(ctx context.Context, payload codec.RawMessage) (any, error) {
	var req command.UpdateTaskOrderRequest
	if err := s.decode(payload, &req); err != nil {
		return nil, err
	}
	task, err := s.load(ctx, req.ID)
	if err != nil {
		return nil, err
	}

	task.Order = req.NewOrder
	if err := s.tasks.Update(ctx, task); err != nil {
		return nil, fmt.Errorf("taskservice.updateOrder: %w", err)
	}
	return task, nil
}

func (s *Service) updateActive(ctx context.Context, payload codec.RawMessage) (any, error) {
	var req command.UpdateTaskActiveRequest
	if err := s.decode(payload, &req); err != nil {
		return nil, err
	}
	task, err := s.load(ctx, req.ID)
	if err != nil {
		return nil, err
	}

	if req.IsActive && !task.IsActive {
		order, err := s.tasks.NextOrder(ctx, task.Status)
		if err != nil {
			return nil, fmt.Errorf("taskservice.updateActive: %w", err)
		}
		task.Order = order
	}
	task.IsActive = req.IsActive
	if err := s.tasks.Update(ctx, task); err != nil {
		return nil, fmt.Errorf("taskservice.updateActive: %w", err)
	}
	return task, nil
}

// load fetches a task by its string id. A malformed id cannot name a task,
// so it is reported as NOT_FOUND like any other missing id.
func (s *Service) load(ctx context.Context, id string) (*domain.Task, error) {
	taskID, err := uuid.Parse(id)
	if err != nil {
		return nil, command.Errorf(command.CodeNotFound, "task %s not found", id)
	}
	task, err := s.tasks.GetByID(ctx, taskID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, command.Errorf(command.CodeNotFound, "task %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("taskservice.load: %w", err)
	}
	return task, nil
}

func (s *Service) checkAssignee(ctx context.Context, assignee *uuid.UUID) error {
	if assignee == nil {
		return nil
	}
	_, err := s.users.GetByID(ctx, *assignee)
	if errors.Is(err, domain.ErrNotFound) {
		return command.Errorf(command.CodeValidation, "assignee %s does not exist", assignee)
	}
	if err != nil {
		return fmt.Errorf("taskservice.checkAssignee: %w", err)
	}
	return nil
}

// notifyCreator tells the task's creator when someone else moves it.
// Publishing is best-effort and never fails the command.
func (s *Service) notifyCreator(ctx context.Context, task *domain.Task, actor string) {
	if s.notifier == nil || actor == "" || actor == task.CreatedBy.String() {
		return
	}
	id := task.ID
	msg := fmt.Sprintf("%q moved to %s", task.Title, task.Status)
	if err := s.notifier.Notify(ctx, task.CreatedBy, domain.TaskEventStatusChanged, msg, &id); err != nil {
		log.Warn().Err(err).Str("task_id", task.ID.String()).Msg("taskservice: notify creator failed")
	}
}
