// Package socket carries command envelopes over TCP, one request per
// connection: the client writes one CBOR envelope, half-closes, and reads
// one CBOR reply.
package socket

import (
	"context"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/gosuda/taskgate/internal/codec"
	"github.com/gosuda/taskgate/internal/command"
)

const (
	// dialTimeout covers only the connect phase.
	dialTimeout = 5 * time.Second

	// defaultReplyTimeout bounds how long an abandoned request can hold a
	// connection open after the dispatcher stopped waiting.
	defaultReplyTimeout = 30 * time.Second

	// maxMessageSize caps one envelope or reply.
	maxMessageSize = 1024 * 1024
)

// Client sends envelopes to one backend address.
type Client struct {
	addr         string
	replyTimeout time.Duration
}

// NewClient creates a client for addr ("host:port"). replyTimeout of zero
// uses 30s.
func NewClient(addr string, replyTimeout time.Duration) *Client {
	if replyTimeout <= 0 {
		replyTimeout = defaultReplyTimeout
	}
	return &Client{addr: addr, replyTimeout: replyTimeout}
}

// Addr returns the backend address.
func (c *Client) Addr() string {
	return c.addr
}

// Request implements dispatch.Transport.
func (c *Client) Request(ctx context.Context, env command.Envelope) (*command.Reply, error) {
	dialer := net.Dialer{Timeout: dialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", c.addr)
	if err != nil {
		return nil, fmt.Errorf("socket.Client.Request: connecting to %s: %w", c.addr, err)
	}
	defer conn.Close()

	deadline := time.Now().Add(c.replyTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = conn.SetDeadline(deadline)

	if err := codec.NewEncoder(conn).Encode(env); err != nil {
		return nil, fmt.Errorf("socket.Client.Request: writing envelope: %w", err)
	}

	// CBOR is self-delimiting; half-closing lets the server see EOF.
	if tcpConn, ok := conn.(*net.TCPConn); ok {
		_ = tcpConn.CloseWrite()
	}

	var reply command.Reply
	if err := codec.NewDecoder(io.LimitReader(conn, maxMessageSize)).Decode(&reply); err != nil {
		return nil, fmt.Errorf("socket.Client.Request: reading reply: %w", err)
	}
	return &reply, nil
}

// Close implements dispatch.Transport. Connections are per request, so
// there is nothing to release.
func (c *Client) Close() error {
	return nil
}
