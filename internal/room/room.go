package room

import (
	"log/slog"
	"sync"
	"time"

	"github.com/haal01/whiteboard/internal/element"
	"github.com/haal01/whiteboard/internal/protocol"
)

// Peer is one live connection subscribed to a room's broadcasts.
type Peer interface {
	// ID is the connection identifier, also used as the user id.
	ID() string
	// Send queues a frame without blocking and reports false if it could not.
	Send(frame []byte) bool
	// Close asks the connection to shut down. It must not block.
	Close()
}

// Room is the server-owned aggregate of one canvas session. Its mutex is the
// single-writer guarantee: every event for the room is applied under it.
type Room struct {
	ID string

	mu         sync.Mutex
	elements   element.List
	users      map[string]protocol.User
	order      []string // join order of users
	peers      map[string]Peer
	lastActive time.Time
	evicted    bool
}

func newRoom(id string, now time.Time) *Room {
	return &Room{
		ID:         id,
		elements:   element.List{},
		users:      make(map[string]protocol.User),
		peers:      make(map[string]Peer),
		lastActive: now,
	}
}

// putUser registers or overwrites a user, keeping its original roster position.
func (r *Room) putUser(u protocol.User) {
	if _, ok := r.users[u.ID]; !ok {
		r.order = append(r.order, u.ID)
	}
	r.users[u.ID] = u
}

func (r *Room) dropUser(id string) bool {
	if _, ok := r.users[id]; !ok {
		return false
	}
	delete(r.users, id)
	for i, uid := range r.order {
		if uid == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return true
}

func (r *Room) userList() []protocol.User {
	out := make([]protocol.User, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.users[id])
	}
	return out
}

func (r *Room) state() protocol.RoomState {
	return protocol.RoomState{
		Elements: r.elements.Clone(),
		Users:    r.userList(),
	}
}

func (r *Room) idle() bool {
	return len(r.users) == 0 && len(r.peers) == 0
}

// fanout delivers msg to every peer but the sender. A peer that cannot keep up is
// closed; it leaves through the normal path and rejoins with a fresh snapshot.
func (r *Room) fanout(log *slog.Logger, sender Peer, msg protocol.Message) {
	frame, err := msg.Bytes()
	if err != nil {
		log.Error("encode broadcast", "room", r.ID, "event", msg.Type, "err", err)
		return
	}
	for id, p := range r.peers {
		if sender != nil && id == sender.ID() {
			continue
		}
		deliver(log, r.ID, p, frame)
	}
}

func deliver(log *slog.Logger, roomID string, p Peer, frame []byte) {
	if !p.Send(frame) {
		log.Warn("peer send queue full, disconnecting", "room", roomID, "user", p.ID())
		p.Close()
	}
}
