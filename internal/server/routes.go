package server

import (
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/go-chi/chi/v5"

	v1 "github.com/gosuda/taskgate/internal/api/v1"
	"github.com/gosuda/taskgate/internal/gateway"
	"github.com/gosuda/taskgate/internal/realtime"
)

func registerAuthRoutes(api huma.API, gw *gateway.Gateway) {
	v1.RegisterAuthRoutes(api, gw)
}

func registerAPIRoutes(api huma.API, gw *gateway.Gateway, registry *realtime.Registry) {
	v1.RegisterTaskRoutes(api, gw)
	v1.RegisterUserRoutes(api, gw)
	v1.RegisterRealtimeRoutes(api, registry)
}

func registerWSRoutes(r chi.Router, h http.Handler) {
	r.Method(http.MethodGet, "/ws", h)
}
