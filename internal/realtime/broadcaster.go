package realtime

import (
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Broadcaster fans events out to rooms of one Registry. Delivery is
// best-effort: a member whose queue is full is disconnected and the event is
// dropped for it alone.
type Broadcaster struct {
	reg *Registry
}

func NewBroadcaster(reg *Registry) *Broadcaster {
	return &Broadcaster{reg: reg}
}

// Emit delivers event to every current member of room and returns how many
// accepted it. An empty room is not an error. Events emitted in sequence by
// one caller reach each member in that sequence.
func (b *Broadcaster) Emit(room RoomID, event string, payload any) int {
	delivered, slow := b.reg.fanout(room, Event{Name: event, Data: payload})
	if len(slow) > 0 {
		log.Warn().Str("room", string(room)).Str("event", event).Int("slow", len(slow)).Msg("realtime: evicting slow consumers")
		b.reg.evictSlow(slow)
	}
	return delivered
}

// EmitToUser emits to the user's personal room.
func (b *Broadcaster) EmitToUser(userID uuid.UUID, event string, payload any) int {
	return b.Emit(UserRoom(userID), event, payload)
}

// SendTo delivers event to one connection only. It reports false when the
// connection is gone or could not accept the event.
func (b *Broadcaster) SendTo(connID, event string, payload any) bool {
	ok, found := b.reg.sendTo(connID, Event{Name: event, Data: payload})
	if found && !ok {
		b.reg.evictSlow([]string{connID})
	}
	return ok
}
