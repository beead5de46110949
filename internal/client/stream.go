package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/taskgate/internal/domain"
)

const (
	wsPath        = "/ws"
	wsSubprotocol = "taskgate.v1"
)

// ErrStreamClosed is returned by Send after the stream has ended.
var ErrStreamClosed = errors.New("client: stream closed")

// Event is one server-sent message.
type Event struct {
	Name string          `json:"event"`
	Data json.RawMessage `json:"data"`
}

// TaskEvent decodes a taskUpdate payload.
func (e Event) TaskEvent() (domain.TaskEvent, error) {
	var ev domain.TaskEvent
	if e.Name != domain.EventTaskUpdate {
		return ev, fmt.Errorf("client.Event.TaskEvent: event is %q", e.Name)
	}
	if err := json.Unmarshal(e.Data, &ev); err != nil {
		return ev, fmt.Errorf("client.Event.TaskEvent: %w", err)
	}
	return ev, nil
}

// Notification decodes a notification payload.
func (e Event) Notification() (domain.Notification, error) {
	var n domain.Notification
	if e.Name != domain.EventNotification {
		return n, fmt.Errorf("client.Event.Notification: event is %q", e.Name)
	}
	if err := json.Unmarshal(e.Data, &n); err != nil {
		return n, fmt.Errorf("client.Event.Notification: %w", err)
	}
	return n, nil
}

// Stream is a live WebSocket connection to the gateway.
type Stream struct {
	conn   *websocket.Conn
	events chan Event

	writeMu   sync.Mutex
	closing   chan struct{}
	closeOnce sync.Once
	done      chan struct{}
	err       error
}

// Dial opens the real-time stream using the client's token. A rejected
// handshake surfaces as a read error with close status policy violation.
func (c *Client) Dial(ctx context.Context) (*Stream, error) {
	token := c.Token()
	if token == "" {
		return nil, ErrNotLoggedIn
	}

	u, err := url.Parse(c.baseURL + wsPath)
	if err != nil {
		return nil, fmt.Errorf("client.Dial: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()

	// The stream outlives any per-request timeout.
	hc := *c.httpClient
	hc.Timeout = 0
	conn, _, err := websocket.Dial(ctx, u.String(), &websocket.DialOptions{
		HTTPClient:   &hc,
		Subprotocols: []string{wsSubprotocol},
	})
	if err != nil {
		return nil, fmt.Errorf("client.Dial: %w", err)
	}

	s := &Stream{
		conn:    conn,
		events:  make(chan Event, 64),
		closing: make(chan struct{}),
		done:    make(chan struct{}),
	}
	go s.readLoop(context.WithoutCancel(ctx))
	return s, nil
}

// Events yields server events until the stream ends; then it is closed.
func (s *Stream) Events() <-chan Event { return s.events }

// Done is closed when the stream ends.
func (s *Stream) Done() <-chan struct{} { return s.done }

// Err reports why the stream ended. It is valid after Done is closed.
func (s *Stream) Err() error {
	<-s.done
	return s.err
}

// CloseStatus returns the peer's close code, or -1.
func (s *Stream) CloseStatus() websocket.StatusCode {
	return websocket.CloseStatus(s.Err())
}

// Send writes one {"event","data"} message.
func (s *Stream) Send(ctx context.Context, event string, data any) error {
	select {
	case <-s.done:
		return ErrStreamClosed
	default:
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := wsjson.Write(ctx, s.conn, map[string]any{"event": event, "data": data}); err != nil {
		return fmt.Errorf("client.Stream.Send: %w", err)
	}
	return nil
}

// JoinTask subscribes to the task's room.
func (s *Stream) JoinTask(ctx context.Context, id uuid.UUID) error {
	return s.Send(ctx, "joinTask", map[string]string{"taskId": id.String()})
}

// LeaveTask unsubscribes from the task's room.
func (s *Stream) LeaveTask(ctx context.Context, id uuid.UUID) error {
	return s.Send(ctx, "leaveTask", map[string]string{"taskId": id.String()})
}

// Close ends the stream with a normal closure.
func (s *Stream) Close() error {
	s.closeOnce.Do(func() { close(s.closing) })
	select {
	case <-s.done:
		return nil
	default:
	}
	err := s.conn.Close(websocket.StatusNormalClosure, "")
	<-s.done
	if err != nil && websocket.CloseStatus(err) == -1 {
		return fmt.Errorf("client.Stream.Close: %w", err)
	}
	return nil
}

func (s *Stream) readLoop(ctx context.Context) {
	defer close(s.done)
	defer close(s.events)

	for {
		var ev Event
		if err := wsjson.Read(ctx, s.conn, &ev); err != nil {
			s.err = err
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
			default:
				log.Debug().Err(err).Msg("client: stream read")
			}
			return
		}
		select {
		case s.events <- ev:
		case <-s.closing:
			s.conn.CloseNow()
			s.err = ErrStreamClosed
			return
		}
	}
}
