package command

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/gosuda/taskgate/internal/codec"
)

var (
	ErrDuplicatePattern = errors.New("command: duplicate pattern")
	ErrMissingPattern   = errors.New("command: missing pattern")
)

// HandlerFunc serves one pattern. payload is the still-encoded payload map;
// use Decode to read it into a typed request. A nil result replies
// {ok: true} with no data.
type HandlerFunc func(ctx context.Context, payload codec.RawMessage) (any, error)

// Router maps pattern strings to handlers. Register everything before
// serving; the map is not guarded for concurrent writes.
type Router struct {
	name     string
	handlers map[string]HandlerFunc
}

// NewRouter creates an empty router. name is used in logs only.
func NewRouter(name string) *Router {
	return &Router{
		name:     name,
		handlers: make(map[string]HandlerFunc),
	}
}

// Handle registers h for pattern. Registering a pattern twice is an error.
func (r *Router) Handle(pattern string, h HandlerFunc) error {
	if pattern == "" {
		return fmt.Errorf("command.Router.Handle: empty pattern")
	}
	if _, exists := r.handlers[pattern]; exists {
		return fmt.Errorf("command.Router.Handle: %q: %w", pattern, ErrDuplicatePattern)
	}
	r.handlers[pattern] = h
	return nil
}

// Require fails if any of patterns has no handler. Call it at startup so a
// half-wired service never starts listening.
func (r *Router) Require(patterns ...string) error {
	var missing []string
	for _, p := range patterns {
		if _, ok := r.handlers[p]; !ok {
			missing = append(missing, p)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("command.Router.Require: %s: %w", strings.Join(missing, ", "), ErrMissingPattern)
	}
	return nil
}

// Patterns returns the registered patterns, sorted.
func (r *Router) Patterns() []string {
	out := make([]string, 0, len(r.handlers))
	for p := range r.handlers {
		out = append(out, p)
	}
	slices.Sort(out)
	return out
}

// Serve decodes one encoded Envelope, runs its handler and builds the reply.
// It never returns a transport error: every failure becomes a Reply.
func (r *Router) Serve(ctx context.Context, raw []byte) Reply {
	var env rawEnvelope
	if err := codec.Unmarshal(raw, &env); err != nil {
		return failure(CodeBadEnvelope, fmt.Sprintf("invalid envelope: %v", err))
	}
	if env.Pattern == "" {
		return failure(CodeBadEnvelope, "missing required field: pattern")
	}
	if isAbsent(env.Payload) {
		return failure(CodeBadEnvelope, "missing required field: payload")
	}

	h, ok := r.handlers[env.Pattern]
	if !ok {
		return failure(CodeUnknownPattern, fmt.Sprintf("no handler for pattern %q", env.Pattern))
	}

	result, err := h(ctx, env.Payload)
	if err != nil {
		log.Debug().Err(err).Str("service", r.name).Str("pattern", env.Pattern).Msg("handler failed")
		return Reply{OK: false, Error: toReplyError(err)}
	}

	reply := Reply{OK: true}
	if result != nil {
		data, marshalErr := codec.Marshal(result)
		if marshalErr != nil {
			return failure(CodeInternal, fmt.Sprintf("marshal result: %v", marshalErr))
		}
		reply.Data = data
	}
	return reply
}

// Decode unmarshals a handler payload into v. Decode failures are reported
// to the caller as VALIDATION errors.
func Decode(payload codec.RawMessage, v any) error {
	if err := codec.Unmarshal(payload, v); err != nil {
		return Errorf(CodeValidation, "malformed payload: %v", err)
	}
	return nil
}

func failure(code, message string) Reply {
	return Reply{OK: false, Error: &ReplyError{Code: code, Message: message}}
}

// cborNull and cborUndefined are the single-byte encodings of null and
// undefined.
const (
	cborNull      = 0xf6
	cborUndefined = 0xf7
)

func isAbsent(raw codec.RawMessage) bool {
	if len(raw) == 0 {
		return true
	}
	return len(raw) == 1 && (raw[0] == cborNull || raw[0] == cborUndefined)
}
