package v1

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/google/uuid"

	"github.com/gosuda/taskgate/internal/command"
	"github.com/gosuda/taskgate/internal/domain"
	"github.com/gosuda/taskgate/internal/server/middleware"
)

type CreateTaskInput struct {
	Body struct {
		Title       string            `json:"title" minLength:"1" maxLength:"200" doc:"Task title"`
		Description string            `json:"description,omitempty" maxLength:"5000" doc:"Task description"`
		Status      domain.TaskStatus `json:"status,omitempty" doc:"Initial column (default TODO)"`
		AssignedTo  *uuid.UUID        `json:"assignedTo,omitempty" doc:"Assigned user ID"`
	}
}

type TaskOutput struct {
	Body *domain.Task
}

type ListTasksOutput struct {
	Body []*domain.Task
}

type TaskIDInput struct {
	ID string `path:"id" doc:"Task ID"`
}

type UpdateTaskInput struct {
	ID   string `path:"id" doc:"Task ID"`
	Body struct {
		Title       *string    `json:"title,omitempty" minLength:"1" maxLength:"200" doc:"Task title"`
		Description *string    `json:"description,omitempty" maxLength:"5000" doc:"Task description"`
		AssignedTo  *uuid.UUID `json:"assignedTo,omitempty" doc:"Assigned user ID"`
	}
}

type UpdateTaskStatusInput struct {
	ID   string `path:"id" doc:"Task ID"`
	Body struct {
		Status domain.TaskStatus `json:"status" minLength:"1" doc:"Target column"`
	}
}

type UpdateTaskOrderInput struct {
	ID   string `path:"id" doc:"Task ID"`
	Body struct {
		NewOrder int `json:"newOrder" minimum:"0" doc:"Position within the column"`
	}
}

type UpdateTaskActiveInput struct {
	ID   string `path:"id" doc:"Task ID"`
	Body struct {
		IsActive bool `json:"isActive" doc:"false archives the task"`
	}
}

func RegisterTaskRoutes(api huma.API, gw TaskGateway) {
	huma.Register(api, huma.Operation{
		OperationID: "create-task",
		Method:      http.MethodPost,
		Path:        "/tasks",
		Summary:     "Create a new task",
		Tags:        []string{"Tasks"},
	}, func(ctx context.Context, input *CreateTaskInput) (*TaskOutput, error) {
		userID, ok := middleware.UserIDFromContext(ctx)
		if !ok {
			return nil, huma.Error401Unauthorized("missing user context")
		}

		t, err := gw.CreateTask(ctx, userID, command.CreateTaskDTO{
			Title:       input.Body.Title,
			Description: input.Body.Description,
			Status:      input.Body.Status,
			AssignedTo:  input.Body.AssignedTo,
		})
		if err != nil {
			return nil, serviceError(err)
		}
		return &TaskOutput{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-tasks",
		Method:      http.MethodGet,
		Path:        "/tasks",
		Summary:     "List all tasks",
		Tags:        []string{"Tasks"},
	}, func(ctx context.Context, _ *struct{}) (*ListTasksOutput, error) {
		tasks, err := gw.ListTasks(ctx)
		if err != nil {
			return nil, serviceError(err)
		}
		return &ListTasksOutput{Body: tasks}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-task",
		Method:      http.MethodGet,
		Path:        "/tasks/{id}",
		Summary:     "Get a task by ID",
		Tags:        []string{"Tasks"},
	}, func(ctx context.Context, input *TaskIDInput) (*TaskOutput, error) {
		t, err := gw.GetTask(ctx, input.ID)
		if err != nil {
			return nil, serviceError(err)
		}
		return &TaskOutput{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-task",
		Method:      http.MethodPatch,
		Path:        "/tasks/{id}",
		Summary:     "Update a task",
		Tags:        []string{"Tasks"},
	}, func(ctx context.Context, input *UpdateTaskInput) (*TaskOutput, error) {
		t, err := gw.UpdateTask(ctx, input.ID, command.UpdateTaskDTO{
			Title:       input.Body.Title,
			Description: input.Body.Description,
			AssignedTo:  input.Body.AssignedTo,
		})
		if err != nil {
			return nil, serviceError(err)
		}
		return &TaskOutput{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-task",
		Method:      http.MethodDelete,
		Path:        "/tasks/{id}",
		Summary:     "Delete a task",
		Tags:        []string{"Tasks"},
	}, func(ctx context.Context, input *TaskIDInput) (*TaskOutput, error) {
		t, err := gw.RemoveTask(ctx, input.ID)
		if err != nil {
			return nil, serviceError(err)
		}
		return &TaskOutput{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-task-status",
		Method:      http.MethodPatch,
		Path:        "/tasks/{id}/status",
		Summary:     "Move a task to another column",
		Tags:        []string{"Tasks"},
	}, func(ctx context.Context, input *UpdateTaskStatusInput) (*TaskOutput, error) {
		userID, ok := middleware.UserIDFromContext(ctx)
		if !ok {
			return nil, huma.Error401Unauthorized("missing user context")
		}

		t, err := gw.UpdateTaskStatus(ctx, userID, input.ID, input.Body.Status)
		if err != nil {
			return nil, serviceError(err)
		}
		return &TaskOutput{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-task-order",
		Method:      http.MethodPatch,
		Path:        "/tasks/{id}/order",
		Summary:     "Set a task's position within its column",
		Tags:        []string{"Tasks"},
	}, func(ctx context.Context, input *UpdateTaskOrderInput) (*TaskOutput, error) {
		t, err := gw.UpdateTaskOrder(ctx, input.ID, input.Body.NewOrder)
		if err != nil {
			return nil, serviceError(err)
		}
		return &TaskOutput{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-task-active",
		Method:      http.MethodPatch,
		Path:        "/tasks/{id}/active",
		Summary:     "Archive or restore a task",
		Tags:        []string{"Tasks"},
	}, func(ctx context.Context, input *UpdateTaskActiveInput) (*TaskOutput, error) {
		t, err := gw.UpdateTaskActive(ctx, input.ID, input.Body.IsActive)
		if err != nil {
			return nil, serviceError(err)
		}
		return &TaskOutput{Body: t}, nil
	})
}
