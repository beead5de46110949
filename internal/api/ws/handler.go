// Package ws is the WebSocket edge: it authenticates the handshake,
// registers the connection, and runs one reader and one writer goroutine
// per connection.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/taskgate/internal/domain"
	"github.com/gosuda/taskgate/internal/gateway"
	"github.com/gosuda/taskgate/internal/realtime"
)

const (
	// Subprotocol is negotiated when the client offers it.
	Subprotocol = "taskgate.v1"

	// bearerProtocolPrefix carries the token as a subprotocol value for
	// clients that cannot set query parameters.
	bearerProtocolPrefix = "bearer."

	defaultWriteTimeout = 10 * time.Second
	maxMessageSize      = 64 * 1024
)

// Handler serves the real-time endpoint.
type Handler struct {
	registry       *realtime.Registry
	broadcaster    *realtime.Broadcaster
	gw             *gateway.Gateway
	originPatterns []string
	writeTimeout   time.Duration
}

// NewHandler creates a handler. originPatterns is passed to the upgrade's
// origin check; empty allows same-origin only.
func NewHandler(registry *realtime.Registry, broadcaster *realtime.Broadcaster, gw *gateway.Gateway, originPatterns []string) *Handler {
	return &Handler{
		registry:       registry,
		broadcaster:    broadcaster,
		gw:             gw,
		originPatterns: originPatterns,
		writeTimeout:   defaultWriteTimeout,
	}
}

// TokenFromRequest extracts the handshake credential: the "token" query
// parameter, or a "bearer.<token>" subprotocol value.
func TokenFromRequest(r *http.Request) string {
	if tok := r.URL.Query().Get("token"); tok != "" {
		return tok
	}
	for _, header := range r.Header.Values("Sec-WebSocket-Protocol") {
		for _, p := range strings.Split(header, ",") {
			if tok, ok := strings.CutPrefix(strings.TrimSpace(p), bearerProtocolPrefix); ok {
				return tok
			}
		}
	}
	return ""
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// Verification is local, so it runs before the upgrade.
	conn, authErr := h.registry.Connect(TokenFromRequest(r))

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		Subprotocols:   []string{Subprotocol},
		OriginPatterns: h.originPatterns,
	})
	if err != nil {
		log.Error().Err(err).Msg("websocket accept")
		if conn != nil {
			h.registry.Disconnect(conn.ID())
		}
		return
	}
	defer ws.CloseNow()

	if authErr != nil {
		// No reason text: nothing about the failure leaks to the peer.
		log.Debug().Err(authErr).Str("remote", r.RemoteAddr).Msg("websocket handshake rejected")
		_ = ws.Close(websocket.StatusPolicyViolation, "")
		return
	}

	ws.SetReadLimit(maxMessageSize)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	written := make(chan struct{})
	go func() {
		defer close(written)
		h.writeLoop(ctx, ws, conn)
	}()

	h.readLoop(ctx, ws, conn)

	h.registry.Disconnect(conn.ID())
	<-written
}

// readLoop handles inbound messages in arrival order until the peer goes
// away or the registry drops the connection.
func (h *Handler) readLoop(ctx context.Context, ws *websocket.Conn, conn *realtime.Conn) {
	session := h.gw.Session(h.registry, conn.ID(), conn.UserID())

	for {
		typ, data, err := ws.Read(ctx)
		if err != nil {
			if status := websocket.CloseStatus(err); status != websocket.StatusNormalClosure && status != websocket.StatusGoingAway {
				log.Debug().Err(err).Str("conn_id", conn.ID()).Msg("websocket read")
			}
			return
		}
		if typ != websocket.MessageText {
			h.broadcaster.SendTo(conn.ID(), domain.EventError, gateway.ErrorPayload{Code: gateway.CodeBadMessage, Message: "text frames only"})
			continue
		}

		var msg gateway.Inbound
		if err := json.Unmarshal(data, &msg); err != nil || msg.Event == "" {
			h.broadcaster.SendTo(conn.ID(), domain.EventError, gateway.ErrorPayload{Code: gateway.CodeBadMessage, Message: "expected {\"event\", \"data\"}"})
			continue
		}
		session.Handle(ctx, msg)
	}
}

// writeLoop drains the connection's outbound queue. The queue closes when
// the registry drops the connection; the socket is closed after that.
func (h *Handler) writeLoop(ctx context.Context, ws *websocket.Conn, conn *realtime.Conn) {
	for ev := range conn.Outbound() {
		wctx, cancel := context.WithTimeout(ctx, h.writeTimeout)
		err := wsjson.Write(wctx, ws, ev)
		cancel()
		if err != nil {
			log.Debug().Err(err).Str("conn_id", conn.ID()).Msg("websocket write")
			h.registry.Disconnect(conn.ID())
			for range conn.Outbound() {
			}
			break
		}
	}

	if errors.Is(conn.Err(), realtime.ErrSlowConsumer) {
		_ = ws.Close(websocket.StatusTryAgainLater, "slow consumer")
		return
	}
	_ = ws.Close(websocket.StatusNormalClosure, "")
}
