package v1

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/gosuda/taskgate/internal/realtime"
)

type RealtimeStatsOutput struct {
	Body realtime.Stats
}

func RegisterRealtimeRoutes(api huma.API, src StatsSource) {
	huma.Register(api, huma.Operation{
		OperationID: "realtime-stats",
		Method:      http.MethodGet,
		Path:        "/realtime/stats",
		Summary:     "Live connection counts",
		Tags:        []string{"Realtime"},
	}, func(_ context.Context, _ *struct{}) (*RealtimeStatsOutput, error) {
		return &RealtimeStatsOutput{Body: src.Stats()}, nil
	})
}
