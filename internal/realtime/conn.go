package realtime

import (
	"sync"

	"github.com/google/uuid"

	"github.com/gosuda/taskgate/internal/auth"
)

// Event is one outbound message.
type Event struct {
	Name string `json:"event"`
	Data any    `json:"data"`
}

// Conn is one authenticated live connection. Its rooms are owned by the
// Registry and only touched under the registry lock.
type Conn struct {
	id     string
	userID uuid.UUID
	claims *auth.Claims

	rooms map[RoomID]struct{}

	out    chan Event
	done   chan struct{}
	closed bool // guarded by the registry write lock
	err    error
	errMu  sync.Mutex
}

func newConn(id string, claims *auth.Claims, queueSize int) *Conn {
	return &Conn{
		id:     id,
		userID: claims.UserUUID(),
		claims: claims,
		rooms:  make(map[RoomID]struct{}),
		out:    make(chan Event, queueSize),
		done:   make(chan struct{}),
	}
}

func (c *Conn) ID() string { return c.id }

func (c *Conn) UserID() uuid.UUID { return c.userID }

// Claims returns the credential payload the connection authenticated with.
func (c *Conn) Claims() *auth.Claims { return c.claims }

// Outbound yields queued events in emit order. It is closed after
// Disconnect once the remaining events are drained.
func (c *Conn) Outbound() <-chan Event { return c.out }

// Done is closed when the connection leaves the registry.
func (c *Conn) Done() <-chan struct{} { return c.done }

// Err returns why the registry dropped the connection, or nil for a
// regular disconnect.
func (c *Conn) Err() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.err
}

// enqueue runs under at least the registry read lock, so it never races
// shutdown, which holds the write lock.
func (c *Conn) enqueue(ev Event) bool {
	if c.closed {
		return false
	}
	select {
	case c.out <- ev:
		return true
	default:
		return false
	}
}

// shutdown runs under the registry write lock.
func (c *Conn) shutdown(cause error) {
	if c.closed {
		return
	}
	c.closed = true
	c.errMu.Lock()
	c.err = cause
	c.errMu.Unlock()
	close(c.out)
	close(c.done)
}
