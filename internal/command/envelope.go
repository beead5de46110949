// Package command defines the request/reply unit exchanged between the
// gateway and backend services, and the pattern router backends use to
// serve it.
package command

import (
	"maps"

	"github.com/gosuda/taskgate/internal/codec"
)

// Envelope is one request from the gateway to a backend service. Pattern
// selects the handler on the target service.
type Envelope struct {
	Pattern string         `json:"pattern"`
	Payload map[string]any `json:"payload"`
}

// NewEnvelope copies payload so later mutation by the caller cannot change
// what is sent. A nil payload becomes an empty map: some handlers match on
// payload shape and a missing payload is a protocol violation.
func NewEnvelope(pattern string, payload map[string]any) Envelope {
	p := make(map[string]any, len(payload))
	maps.Copy(p, payload)
	return Envelope{Pattern: pattern, Payload: p}
}

// rawEnvelope is the server-side view of an Envelope with the payload left
// encoded for the handler to decode into its own type.
type rawEnvelope struct {
	Pattern string           `json:"pattern"`
	Payload codec.RawMessage `json:"payload"`
}

// Reply is the wire response to an Envelope.
type Reply struct {
	OK    bool             `json:"ok"`
	Error *ReplyError      `json:"error,omitempty"`
	Data  codec.RawMessage `json:"data,omitempty"`
}

type ReplyError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Decode unmarshals the reply data into v. A reply without data leaves v
// untouched.
func (r *Reply) Decode(v any) error {
	if len(r.Data) == 0 {
		return nil
	}
	return codec.Unmarshal(r.Data, v)
}
