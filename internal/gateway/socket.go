package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/taskgate/internal/command"
	"github.com/gosuda/taskgate/internal/dispatch"
	"github.com/gosuda/taskgate/internal/domain"
	"github.com/gosuda/taskgate/internal/realtime"
)

// Inbound WebSocket event names.
const (
	InJoinTask         = "joinTask"
	InLeaveTask        = "leaveTask"
	InUpdateTaskStatus = "updateTaskStatus"
	InUpdateTaskOrder  = "updateTaskOrder"
	InUpdateTask       = "updateTask"
	InRemoveTask       = "removeTask"
	InUpdateTaskActive = "updateTaskActive"
)

// Acknowledgements sent to the origin connection only.
const (
	EventJoined = "joined"
	EventLeft   = "left"
)

// Error codes for problems found before any dispatch.
const (
	CodeBadMessage   = "BAD_MESSAGE"
	CodeUnknownEvent = "UNKNOWN_EVENT"
	CodeUnavailable  = "SERVICE_UNAVAILABLE"
)

// Rooms is the membership surface. *realtime.Registry implements it.
type Rooms interface {
	Join(connID string, room realtime.RoomID) error
	Leave(connID string, room realtime.RoomID) error
}

// Inbound is one client message.
type Inbound struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// ErrorPayload is the data of an error event.
type ErrorPayload struct {
	Event   string `json:"event"`
	Kind    string `json:"kind,omitempty"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type roomRequest struct {
	TaskID uuid.UUID `json:"taskId"`
}

// Session handles the inbound messages of one connection.
type Session struct {
	gw     *Gateway
	rooms  Rooms
	connID string
	userID uuid.UUID
}

func (g *Gateway) Session(rooms Rooms, connID string, userID uuid.UUID) *Session {
	return &Session{gw: g, rooms: rooms, connID: connID, userID: userID}
}

// Handle runs one inbound message to completion. Failures become an error
// event for this connection; nothing is broadcast for them.
func (s *Session) Handle(ctx context.Context, msg Inbound) {
	if err := s.handle(ctx, msg); err != nil {
		payload := errorPayload(msg.Event, err)
		log.Debug().Err(err).Str("conn_id", s.connID).Str("event", msg.Event).Str("code", payload.Code).Msg("gateway: command failed")
		s.gw.emitter.SendTo(s.connID, domain.EventError, payload)
	}
}

func (s *Session) handle(ctx context.Context, msg Inbound) error {
	switch msg.Event {
	case InJoinTask, InLeaveTask:
		var req roomRequest
		if err := decode(msg.Data, &req); err != nil {
			return err
		}
		if req.TaskID == uuid.Nil {
			return &command.Error{Code: CodeBadMessage, Message: "missing taskId"}
		}
		room := realtime.TaskRoom(req.TaskID)
		if msg.Event == InJoinTask {
			if err := s.rooms.Join(s.connID, room); err != nil {
				return err
			}
			s.gw.emitter.SendTo(s.connID, EventJoined, map[string]string{"room": string(room)})
			return nil
		}
		if err := s.rooms.Leave(s.connID, room); err != nil {
			return err
		}
		s.gw.emitter.SendTo(s.connID, EventLeft, map[string]string{"room": string(room)})
		return nil

	case InUpdateTaskStatus:
		var req command.UpdateTaskStatusRequest
		if err := decode(msg.Data, &req); err != nil {
			return err
		}
		_, err := s.gw.UpdateTaskStatus(ctx, s.userID, req.ID, req.Status)
		return err

	case InUpdateTaskOrder:
		var req command.UpdateTaskOrderRequest
		if err := decode(msg.Data, &req); err != nil {
			return err
		}
		_, err := s.gw.UpdateTaskOrder(ctx, req.ID, req.NewOrder)
		return err

	case InUpdateTask:
		var req command.UpdateTaskRequest
		if err := decode(msg.Data, &req); err != nil {
			return err
		}
		_, err := s.gw.UpdateTask(ctx, req.ID, req.UpdateTaskDto)
		return err

	case InRemoveTask:
		var req command.TaskIDRequest
		if err := decode(msg.Data, &req); err != nil {
			return err
		}
		_, err := s.gw.RemoveTask(ctx, req.ID)
		return err

	case InUpdateTaskActive:
		var req command.UpdateTaskActiveRequest
		if err := decode(msg.Data, &req); err != nil {
			return err
		}
		_, err := s.gw.UpdateTaskActive(ctx, req.ID, req.IsActive)
		return err

	default:
		return &command.Error{Code: CodeUnknownEvent, Message: fmt.Sprintf("unknown event %q", msg.Event)}
	}
}

func decode(data json.RawMessage, v any) error {
	if len(data) == 0 {
		return &command.Error{Code: CodeBadMessage, Message: "missing data"}
	}
	if err := json.Unmarshal(data, v); err != nil {
		return &command.Error{Code: CodeBadMessage, Message: fmt.Sprintf("malformed data: %v", err)}
	}
	return nil
}

func errorPayload(event string, err error) ErrorPayload {
	if se, ok := dispatch.AsServiceError(err); ok {
		if se.Kind == dispatch.KindRejected {
			return ErrorPayload{Event: event, Kind: string(se.Kind), Code: se.Code, Message: se.Message}
		}
		// Transport detail stays in the logs.
		return ErrorPayload{Event: event, Kind: string(se.Kind), Code: CodeUnavailable, Message: "service unavailable"}
	}
	var cmdErr *command.Error
	if errors.As(err, &cmdErr) {
		return ErrorPayload{Event: event, Code: cmdErr.Code, Message: cmdErr.Message}
	}
	if errors.Is(err, realtime.ErrUnknownConnection) || errors.Is(err, realtime.ErrInvalidRoom) {
		return ErrorPayload{Event: event, Code: CodeBadMessage, Message: err.Error()}
	}
	return ErrorPayload{Event: event, Code: command.CodeInternal, Message: "internal error"}
}
