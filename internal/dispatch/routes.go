package dispatch

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/gosuda/taskgate/internal/command"
)

// Route sends one pattern to one service.
type Route struct {
	Pattern string
	Service string
}

// DefaultRoutes is the gateway's pattern table.
func DefaultRoutes() []Route {
	var routes []Route
	for _, p := range command.TaskPatterns() {
		routes = append(routes, Route{Pattern: p, Service: ServiceTask})
	}
	for _, p := range command.UserPatterns() {
		routes = append(routes, Route{Pattern: p, Service: ServiceUser})
	}
	return routes
}

// RoutesFor is DefaultRoutes adjusted to the configured services: with an
// AUTH_SERVICE present, validate_user goes there instead of USER_SERVICE.
func RoutesFor(services []string) []Route {
	routes := DefaultRoutes()
	if !slices.Contains(services, ServiceAuth) {
		return routes
	}
	for i := range routes {
		if routes[i].Pattern == command.PatternValidateUser {
			routes[i].Service = ServiceAuth
		}
	}
	return routes
}

// RouteTable resolves patterns to services. Build it with NewRouteTable.
type RouteTable struct {
	byPattern map[string]string
}

// NewRouteTable validates routes against the configured services: a pattern
// listed twice, or routed to a service with no transport, fails.
func NewRouteTable(routes []Route, services []string) (*RouteTable, error) {
	byPattern := make(map[string]string, len(routes))
	var errs []error
	for _, r := range routes {
		if r.Pattern == "" || r.Service == "" {
			errs = append(errs, fmt.Errorf("incomplete route %+v", r))
			continue
		}
		if prev, dup := byPattern[r.Pattern]; dup {
			errs = append(errs, fmt.Errorf("pattern %q routed to both %s and %s", r.Pattern, prev, r.Service))
			continue
		}
		if !slices.Contains(services, r.Service) {
			errs = append(errs, fmt.Errorf("pattern %q routed to unconfigured service %s", r.Pattern, r.Service))
			continue
		}
		byPattern[r.Pattern] = r.Service
	}
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("dispatch.NewRouteTable: %w", err)
	}
	return &RouteTable{byPattern: byPattern}, nil
}

// Service returns the service serving pattern.
func (rt *RouteTable) Service(pattern string) (string, bool) {
	s, ok := rt.byPattern[pattern]
	return s, ok
}

// Client sends patterns through a Dispatcher using a RouteTable, so callers
// never name services directly.
type Client struct {
	dispatcher Dispatcher
	routes     *RouteTable
	timeout    time.Duration
}

// NewClient creates a Client. A zero timeout defers to the dispatcher's
// default.
func NewClient(d Dispatcher, routes *RouteTable, timeout time.Duration) *Client {
	return &Client{dispatcher: d, routes: routes, timeout: timeout}
}

// Send routes pattern to its service and calls it.
func (c *Client) Send(ctx context.Context, pattern string, payload map[string]any) (*Result, error) {
	service, ok := c.routes.Service(pattern)
	if !ok {
		return nil, unavailable("", pattern, ErrUnroutable)
	}
	return c.dispatcher.Call(ctx, service, pattern, payload, c.timeout)
}

// SendInto calls Send and decodes the result into out.
func (c *Client) SendInto(ctx context.Context, pattern string, payload map[string]any, out any) error {
	res, err := c.Send(ctx, pattern, payload)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := res.Decode(out); err != nil {
		return unavailable(res.Service, pattern, fmt.Errorf("%w: %w", ErrMalformedReply, err))
	}
	return nil
}
