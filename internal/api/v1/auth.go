package v1

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/gosuda/taskgate/internal/domain"
)

type RegisterInput struct {
	Body struct {
		Email    string `json:"email" minLength:"3" maxLength:"255" doc:"User email"`
		Password string `json:"password" minLength:"8" maxLength:"128" doc:"Password"` //nolint:gosec // G117: login credential DTO
		Name     string `json:"name" minLength:"1" maxLength:"255" doc:"Display name"`
	}
}

type LoginInput struct {
	Body struct {
		Email    string `json:"email" minLength:"3" maxLength:"255" doc:"User email"`
		Password string `json:"password" minLength:"1" maxLength:"128" doc:"Password"` //nolint:gosec // G117: login credential DTO
	}
}

type SessionOutput struct {
	Body struct {
		User        *domain.User `json:"user"`
		AccessToken string       `json:"access_token"` //nolint:gosec // G117: auth response DTO
	}
}

func RegisterAuthRoutes(api huma.API, gw UserGateway) {
	huma.Register(api, huma.Operation{
		OperationID: "register",
		Method:      http.MethodPost,
		Path:        "/auth/register",
		Summary:     "Register a new user",
		Tags:        []string{"Auth"},
	}, func(ctx context.Context, input *RegisterInput) (*SessionOutput, error) {
		if _, err := gw.Register(ctx, input.Body.Email, input.Body.Password, input.Body.Name); err != nil {
			return nil, serviceError(err)
		}

		token, user, err := gw.Login(ctx, input.Body.Email, input.Body.Password)
		if err != nil {
			return nil, serviceError(err)
		}

		out := &SessionOutput{}
		out.Body.User = user
		out.Body.AccessToken = token
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "login",
		Method:      http.MethodPost,
		Path:        "/auth/login",
		Summary:     "Login with email and password",
		Tags:        []string{"Auth"},
	}, func(ctx context.Context, input *LoginInput) (*SessionOutput, error) {
		token, user, err := gw.Login(ctx, input.Body.Email, input.Body.Password)
		if err != nil {
			return nil, serviceError(err)
		}

		out := &SessionOutput{}
		out.Body.User = user
		out.Body.AccessToken = token
		return out, nil
	})
}
