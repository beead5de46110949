package v1

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/gosuda/taskgate/internal/domain"
	"github.com/gosuda/taskgate/internal/server/middleware"
)

type UserOutput struct {
	Body *domain.User
}

type ListUsersOutput struct {
	Body []*domain.User
}

type UserIDInput struct {
	ID string `path:"id" doc:"User ID"`
}

func RegisterUserRoutes(api huma.API, gw UserGateway) {
	huma.Register(api, huma.Operation{
		OperationID: "get-current-user",
		Method:      http.MethodGet,
		Path:        "/users/me",
		Summary:     "Get the authenticated user",
		Tags:        []string{"Users"},
	}, func(ctx context.Context, _ *struct{}) (*UserOutput, error) {
		userID, ok := middleware.UserIDFromContext(ctx)
		if !ok {
			return nil, huma.Error401Unauthorized("missing user context")
		}

		u, err := gw.GetUser(ctx, userID.String())
		if err != nil {
			return nil, serviceError(err)
		}
		return &UserOutput{Body: u}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-users",
		Method:      http.MethodGet,
		Path:        "/users",
		Summary:     "List users",
		Tags:        []string{"Users"},
	}, func(ctx context.Context, _ *struct{}) (*ListUsersOutput, error) {
		users, err := gw.ListUsers(ctx)
		if err != nil {
			return nil, serviceError(err)
		}
		if users == nil {
			users = []*domain.User{}
		}
		return &ListUsersOutput{Body: users}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-user",
		Method:      http.MethodGet,
		Path:        "/users/{id}",
		Summary:     "Get a user by ID",
		Tags:        []string{"Users"},
	}, func(ctx context.Context, input *UserIDInput) (*UserOutput, error) {
		u, err := gw.GetUser(ctx, input.ID)
		if err != nil {
			return nil, serviceError(err)
		}
		return &UserOutput{Body: u}, nil
	})
}
