// Package dispatch issues command envelopes to named backend services over
// a request/reply transport and translates every failure into a
// *ServiceError.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/gosuda/taskgate/internal/codec"
	"github.com/gosuda/taskgate/internal/command"
)

// DefaultTimeout applies when a call passes a zero timeout.
const DefaultTimeout = 5 * time.Second

// Backend services known to the gateway.
const (
	ServiceTask         = "TASK_SERVICE"
	ServiceUser         = "USER_SERVICE"
	ServiceAuth         = "AUTH_SERVICE"
	ServiceNotification = "NOTIFICATION_SERVICE"
)

// Transport sends one envelope and waits for one reply. Implementations
// bound their own wait: Call hands them a context that is never cancelled
// by the caller giving up.
type Transport interface {
	Request(ctx context.Context, env command.Envelope) (*command.Reply, error)
	Close() error
}

// Dispatcher is the call contract used by the gateway.
type Dispatcher interface {
	Call(ctx context.Context, service, pattern string, payload map[string]any, timeout time.Duration) (*Result, error)
}

// Result is a successful reply.
type Result struct {
	Service string
	Pattern string
	Data    codec.RawMessage
}

// Decode unmarshals the reply data into v.
func (r *Result) Decode(v any) error {
	if len(r.Data) == 0 {
		return nil
	}
	if err := codec.Unmarshal(r.Data, v); err != nil {
		return fmt.Errorf("dispatch.Result.Decode: %s %s: %w", r.Service, r.Pattern, err)
	}
	return nil
}

// ServiceDispatcher is the Dispatcher over a fixed set of transports.
type ServiceDispatcher struct {
	transports     map[string]Transport
	defaultTimeout time.Duration
	inflight       sync.WaitGroup
}

// New creates a dispatcher. defaultTimeout of zero means DefaultTimeout.
func New(transports map[string]Transport, defaultTimeout time.Duration) (*ServiceDispatcher, error) {
	if defaultTimeout == 0 {
		defaultTimeout = DefaultTimeout
	}
	if defaultTimeout < 0 {
		return nil, fmt.Errorf("dispatch.New: %w", ErrInvalidTimeout)
	}
	ts := make(map[string]Transport, len(transports))
	for name, t := range transports {
		if t == nil {
			return nil, fmt.Errorf("dispatch.New: nil transport for %s", name)
		}
		ts[name] = t
	}
	return &ServiceDispatcher{transports: ts, defaultTimeout: defaultTimeout}, nil
}

// Services returns the configured service names.
func (d *ServiceDispatcher) Services() []string {
	out := make([]string, 0, len(d.transports))
	for name := range d.transports {
		out = append(out, name)
	}
	return out
}

type outcome struct {
	reply *command.Reply
	err   error
}

// Call sends pattern+payload to service and waits up to timeout for the
// reply. Exactly one attempt is made. When the timeout fires first the
// caller gets Unavailable immediately; the request itself is left running
// and a late reply is discarded.
func (d *ServiceDispatcher) Call(ctx context.Context, service, pattern string, payload map[string]any, timeout time.Duration) (*Result, error) {
	if timeout == 0 {
		timeout = d.defaultTimeout
	}
	if timeout < 0 {
		return nil, fmt.Errorf("dispatch.ServiceDispatcher.Call: %s: %w", timeout, ErrInvalidTimeout)
	}

	t, ok := d.transports[service]
	if !ok {
		return nil, unavailable(service, pattern, ErrUnknownService)
	}

	env := command.NewEnvelope(pattern, payload)
	done := make(chan outcome, 1)

	d.inflight.Add(1)
	go func() {
		defer d.inflight.Done()
		reply, err := t.Request(context.WithoutCancel(ctx), env)
		done <- outcome{reply: reply, err: err}
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case o := <-done:
		return translate(service, pattern, o)
	case <-timer.C:
		log.Warn().Str("service", service).Str("pattern", pattern).Dur("timeout", timeout).Msg("dispatch: call timed out")
		return nil, unavailable(service, pattern, ErrTimeout)
	case <-ctx.Done():
		return nil, unavailable(service, pattern, ctx.Err())
	}
}

func translate(service, pattern string, o outcome) (*Result, error) {
	if o.err != nil {
		log.Debug().Err(o.err).Str("service", service).Str("pattern", pattern).Msg("dispatch: transport failure")
		return nil, unavailable(service, pattern, o.err)
	}
	if o.reply == nil {
		return nil, unavailable(service, pattern, ErrMalformedReply)
	}
	if !o.reply.OK {
		if o.reply.Error == nil || o.reply.Error.Code == "" {
			return nil, unavailable(service, pattern, ErrMalformedReply)
		}
		return nil, &ServiceError{
			Kind:    KindRejected,
			Service: service,
			Pattern: pattern,
			Code:    o.reply.Error.Code,
			Message: o.reply.Error.Message,
		}
	}
	return &Result{Service: service, Pattern: pattern, Data: o.reply.Data}, nil
}

// Close waits up to ctx for abandoned requests to finish, then closes every
// transport.
func (d *ServiceDispatcher) Close(ctx context.Context) error {
	drained := make(chan struct{})
	go func() {
		d.inflight.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-ctx.Done():
		log.Warn().Msg("dispatch: closing with requests still in flight")
	}

	var errs []error
	for name, t := range d.transports {
		if err := t.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("dispatch.ServiceDispatcher.Close: %w", err)
	}
	return nil
}
