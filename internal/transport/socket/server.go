package socket

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/gosuda/taskgate/internal/codec"
	"github.com/gosuda/taskgate/internal/command"
)

const (
	readTimeout  = 30 * time.Second
	writeTimeout = 10 * time.Second
)

// Server serves a command.Router on a TCP listener.
type Server struct {
	router   *command.Router
	listener net.Listener

	// active tracks in-flight connections for graceful shutdown.
	active sync.WaitGroup
}

// NewServer creates a server for router. Call Listen, then Serve.
func NewServer(router *command.Router) *Server {
	return &Server{router: router}
}

// Listen binds addr. Use "127.0.0.1:0" in tests and read Addr back.
func (s *Server) Listen(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("socket.Server.Listen: %w", err)
	}
	s.listener = ln
	return nil
}

// Addr returns the bound address, or "" before Listen.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Serve accepts connections until ctx is cancelled, then waits for active
// handlers to finish.
func (s *Server) Serve(ctx context.Context) error {
	if s.listener == nil {
		return errors.New("socket.Server.Serve: Listen not called")
	}

	go func() {
		<-ctx.Done()
		_ = s.listener.Close()
	}()

	log.Info().Str("addr", s.Addr()).Strs("patterns", s.router.Patterns()).Msg("socket server listening")

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				break
			}
			log.Error().Err(err).Msg("socket accept failed")
			continue
		}

		s.active.Add(1)
		go func() {
			defer s.active.Done()
			s.handleConnection(ctx, conn)
		}()
	}

	s.active.Wait()
	return nil
}

func (s *Server) handleConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(readTimeout))

	var raw codec.RawMessage
	if err := codec.NewDecoder(io.LimitReader(conn, maxMessageSize)).Decode(&raw); err != nil {
		if errors.Is(err, io.EOF) {
			return
		}
		s.write(conn, command.Reply{
			Error: &command.ReplyError{Code: command.CodeBadEnvelope, Message: fmt.Sprintf("invalid request: %v", err)},
		})
		return
	}

	s.write(conn, s.router.Serve(ctx, raw))
}

func (s *Server) write(conn net.Conn, reply command.Reply) {
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := codec.NewEncoder(conn).Encode(reply); err != nil {
		log.Debug().Err(err).Msg("socket: failed to write reply")
	}
}
