package redis

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/taskgate/internal/codec"
	"github.com/gosuda/taskgate/internal/command"
)

var (
	ErrNoListener = errors.New("redis: no listener on request channel")
	ErrClosed     = errors.New("redis: requester closed")
	ErrNoReply    = errors.New("redis: no reply before max wait")
)

// defaultMaxWait bounds an abandoned request's pending entry.
const defaultMaxWait = 30 * time.Second

// requestFrame wraps an envelope with the routing a reply needs.
type requestFrame struct {
	ID       string           `json:"id"`
	ReplyTo  string           `json:"replyTo"`
	Envelope codec.RawMessage `json:"envelope"`
}

type replyFrame struct {
	ID    string        `json:"id"`
	Reply command.Reply `json:"reply"`
}

// Requester sends envelopes to one service over pub/sub. It implements
// dispatch.Transport. Replies for every in-flight request arrive on a
// single per-instance channel and are matched by frame id.
type Requester struct {
	broker  Broker
	service string
	replyTo string
	maxWait time.Duration
	cleanup func()

	mu      sync.Mutex
	pending map[string]chan command.Reply
	closed  bool
}

// NewRequester subscribes to a fresh reply channel and starts routing
// replies. maxWait of zero uses 30s.
func NewRequester(ctx context.Context, broker Broker, service string, maxWait time.Duration) (*Requester, error) {
	if maxWait <= 0 {
		maxWait = defaultMaxWait
	}
	replyTo := ReplyChannel(service, uuid.NewString())

	// The subscription outlives ctx; Close ends it.
	subCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	replies, unsubscribe, err := broker.Subscribe(subCtx, replyTo)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("redis.NewRequester: %s: %w", service, err)
	}

	r := &Requester{
		broker:  broker,
		service: service,
		replyTo: replyTo,
		maxWait: maxWait,
		pending: make(map[string]chan command.Reply),
		cleanup: func() {
			cancel()
			unsubscribe()
		},
	}
	go r.route(replies)
	return r, nil
}

func (r *Requester) route(replies <-chan []byte) {
	for msg := range replies {
		var f replyFrame
		if err := codec.Unmarshal(msg, &f); err != nil {
			log.Warn().Err(err).Str("service", r.service).Msg("redis: discarding malformed reply frame")
			continue
		}
		r.mu.Lock()
		ch, ok := r.pending[f.ID]
		delete(r.pending, f.ID)
		r.mu.Unlock()
		if !ok {
			// Late reply for a request nobody waits on anymore.
			continue
		}
		ch <- f.Reply
	}
}

// Request implements dispatch.Transport.
func (r *Requester) Request(ctx context.Context, env command.Envelope) (*command.Reply, error) {
	raw, err := codec.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("redis.Requester.Request: encode envelope: %w", err)
	}
	id := uuid.NewString()
	frame, err := codec.Marshal(requestFrame{ID: id, ReplyTo: r.replyTo, Envelope: raw})
	if err != nil {
		return nil, fmt.Errorf("redis.Requester.Request: encode frame: %w", err)
	}

	ch := make(chan command.Reply, 1)
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, fmt.Errorf("redis.Requester.Request: %w", ErrClosed)
	}
	r.pending[id] = ch
	r.mu.Unlock()
	defer r.forget(id)

	n, err := r.broker.Publish(ctx, RequestChannel(r.service), frame)
	if err != nil {
		return nil, fmt.Errorf("redis.Requester.Request: %w", err)
	}
	if n == 0 {
		return nil, fmt.Errorf("redis.Requester.Request: %s: %w", r.service, ErrNoListener)
	}

	timer := time.NewTimer(r.maxWait)
	defer timer.Stop()

	select {
	case reply := <-ch:
		return &reply, nil
	case <-timer.C:
		return nil, fmt.Errorf("redis.Requester.Request: %s %s: %w", r.service, env.Pattern, ErrNoReply)
	case <-ctx.Done():
		return nil, fmt.Errorf("redis.Requester.Request: %w", ctx.Err())
	}
}

func (r *Requester) forget(id string) {
	r.mu.Lock()
	delete(r.pending, id)
	r.mu.Unlock()
}

// Close implements dispatch.Transport.
func (r *Requester) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.mu.Unlock()
	r.cleanup()
	return nil
}
