// Package realtime tracks live client connections, their room memberships
// and the per-connection outbound queues events are fanned out through.
package realtime

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/taskgate/internal/auth"
)

// DefaultQueueSize is the outbound queue length per connection.
const DefaultQueueSize = 64

var (
	ErrAuthRejected      = errors.New("realtime: handshake credential rejected")
	ErrUnknownConnection = errors.New("realtime: unknown connection")
	ErrInvalidRoom       = errors.New("realtime: invalid room")
	ErrSlowConsumer      = errors.New("realtime: outbound queue full")
)

// RoomID names a fan-out group: "user_<id>" or "task_<id>".
type RoomID string

const (
	userRoomPrefix = "user_"
	taskRoomPrefix = "task_"
)

func UserRoom(userID uuid.UUID) RoomID {
	return RoomID(userRoomPrefix + userID.String())
}

func TaskRoom(taskID uuid.UUID) RoomID {
	return RoomID(taskRoomPrefix + taskID.String())
}

// Valid reports whether r is a user or task room with a well-formed id.
func (r RoomID) Valid() bool {
	s := string(r)
	for _, prefix := range []string{userRoomPrefix, taskRoomPrefix} {
		if rest, ok := strings.CutPrefix(s, prefix); ok {
			_, err := uuid.Parse(rest)
			return err == nil
		}
	}
	return false
}

// Authenticator verifies a handshake credential locally.
type Authenticator func(token string) (*auth.Claims, error)

// JWTAuthenticator verifies HS256 access tokens signed with secret.
func JWTAuthenticator(secret string) Authenticator {
	return func(token string) (*auth.Claims, error) {
		return auth.ValidateToken(secret, token)
	}
}

// Registry is the connection registry. The room index is a multimap
// guarded by one RWMutex: membership changes take the write lock, fan-out
// takes the read lock.
type Registry struct {
	authenticate Authenticator
	queueSize    int

	mu    sync.RWMutex
	conns map[string]*Conn
	rooms map[RoomID]map[string]*Conn

	dropped atomic.Uint64
}

// NewRegistry creates a registry. queueSize <= 0 uses DefaultQueueSize.
func NewRegistry(authenticate Authenticator, queueSize int) *Registry {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Registry{
		authenticate: authenticate,
		queueSize:    queueSize,
		conns:        make(map[string]*Conn),
		rooms:        make(map[RoomID]map[string]*Conn),
	}
}

// Connect authenticates token and registers a new connection joined to its
// user's room. A rejected credential never registers anything.
func (r *Registry) Connect(token string) (*Conn, error) {
	if token == "" {
		return nil, fmt.Errorf("realtime.Registry.Connect: missing token: %w", ErrAuthRejected)
	}
	claims, err := r.authenticate(token)
	if err != nil {
		return nil, fmt.Errorf("realtime.Registry.Connect: %w: %w", ErrAuthRejected, err)
	}

	c := newConn(uuid.NewString(), claims, r.queueSize)

	r.mu.Lock()
	r.conns[c.id] = c
	r.joinLocked(c, UserRoom(c.userID))
	r.mu.Unlock()

	log.Debug().Str("conn_id", c.id).Str("user_id", c.userID.String()).Msg("realtime: connected")
	return c, nil
}

// Join adds the connection to room. Joining twice is a no-op.
func (r *Registry) Join(connID string, room RoomID) error {
	if !room.Valid() {
		return fmt.Errorf("realtime.Registry.Join: %q: %w", room, ErrInvalidRoom)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.conns[connID]
	if !ok {
		return fmt.Errorf("realtime.Registry.Join: %s: %w", connID, ErrUnknownConnection)
	}
	r.joinLocked(c, room)
	return nil
}

func (r *Registry) joinLocked(c *Conn, room RoomID) {
	members, ok := r.rooms[room]
	if !ok {
		members = make(map[string]*Conn)
		r.rooms[room] = members
	}
	members[c.id] = c
	c.rooms[room] = struct{}{}
}

// Leave removes the connection from room. Leaving a room the connection is
// not in is a no-op.
func (r *Registry) Leave(connID string, room RoomID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.conns[connID]
	if !ok {
		return fmt.Errorf("realtime.Registry.Leave: %s: %w", connID, ErrUnknownConnection)
	}
	r.leaveLocked(c, room)
	return nil
}

func (r *Registry) leaveLocked(c *Conn, room RoomID) {
	delete(c.rooms, room)
	members, ok := r.rooms[room]
	if !ok {
		return
	}
	delete(members, c.id)
	if len(members) == 0 {
		delete(r.rooms, room)
	}
}

// Disconnect removes the connection from every room and closes its
// outbound queue, all under one write lock. Unknown ids are ignored.
func (r *Registry) Disconnect(connID string) {
	r.disconnect(connID, nil)
}

func (r *Registry) disconnect(connID string, cause error) {
	r.mu.Lock()
	c, ok := r.conns[connID]
	if !ok {
		r.mu.Unlock()
		return
	}
	for room := range c.rooms {
		r.leaveLocked(c, room)
	}
	delete(r.conns, connID)
	c.shutdown(cause)
	r.mu.Unlock()

	ev := log.Debug()
	if cause != nil {
		ev = log.Warn().Err(cause)
	}
	ev.Str("conn_id", connID).Str("user_id", c.userID.String()).Msg("realtime: disconnected")
}

// Close disconnects every connection.
func (r *Registry) Close() {
	r.mu.RLock()
	ids := make([]string, 0, len(r.conns))
	for id := range r.conns {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	for _, id := range ids {
		r.Disconnect(id)
	}
}

// Rooms returns the rooms connID belongs to, sorted.
func (r *Registry) Rooms(connID string) []RoomID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.conns[connID]
	if !ok {
		return nil
	}
	out := make([]RoomID, 0, len(c.rooms))
	for room := range c.rooms {
		out = append(out, room)
	}
	slices.Sort(out)
	return out
}

// Members returns the connection ids in room, sorted.
func (r *Registry) Members(room RoomID) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.rooms[room]))
	for id := range r.rooms[room] {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

// Lookup returns the live connection with id.
func (r *Registry) Lookup(connID string) (*Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.conns[connID]
	return c, ok
}

// Stats is a point-in-time view of the registry.
type Stats struct {
	Connections int    `json:"connections"`
	Users       int    `json:"users"`
	Rooms       int    `json:"rooms"`
	Dropped     uint64 `json:"dropped"`
}

func (r *Registry) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	users := make(map[uuid.UUID]struct{}, len(r.conns))
	for _, c := range r.conns {
		users[c.userID] = struct{}{}
	}
	return Stats{
		Connections: len(r.conns),
		Users:       len(users),
		Rooms:       len(r.rooms),
		Dropped:     r.dropped.Load(),
	}
}

// fanout enqueues ev on every member of room without blocking. It returns
// the number of connections that accepted the event and the ids whose
// queues were full.
func (r *Registry) fanout(room RoomID, ev Event) (int, []string) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var (
		delivered int
		slow      []string
	)
	for id, c := range r.rooms[room] {
		if c.enqueue(ev) {
			delivered++
			continue
		}
		slow = append(slow, id)
	}
	return delivered, slow
}

func (r *Registry) sendTo(connID string, ev Event) (bool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.conns[connID]
	if !ok {
		return false, false
	}
	return c.enqueue(ev), true
}

// evictSlow disconnects connections whose queues overflowed.
func (r *Registry) evictSlow(ids []string) {
	for _, id := range ids {
		r.dropped.Add(1)
		r.disconnect(id, ErrSlowConsumer)
	}
}
