// Package room holds the authoritative room state of the whiteboard server and fans
// deltas out to the connections subscribed to each room.
//
// Rooms are independent units of concurrency: events for one room are applied in
// arrival order under that room's lock, and there is no lock spanning rooms.
package room

import (
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/haal01/whiteboard/internal/element"
	"github.com/haal01/whiteboard/internal/protocol"
)

// Palette is the fixed set of user colors assigned at join time.
var Palette = []string{
	"#ef4444", "#f97316", "#eab308", "#22c55e", "#06b6d4",
	"#3b82f6", "#8b5cf6", "#ec4899", "#14b8a6", "#f59e0b",
}

// Replicator receives every delta applied locally so it can reach other server
// processes. Replicate must not block.
type Replicator interface {
	Replicate(roomID string, msg protocol.Message)
}

// Registry maps room identifiers to rooms. Create one per process and hand it to
// the connection handlers.
type Registry struct {
	mu    sync.Mutex
	rooms map[string]*Room

	log       *slog.Logger
	now       func() time.Time
	pickColor func() string

	repMu      sync.RWMutex
	replicator Replicator
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the registry logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) { r.log = l }
}

// WithClock overrides the time source used for idle tracking.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// WithColorPicker overrides the random palette choice.
func WithColorPicker(pick func() string) Option {
	return func(r *Registry) { r.pickColor = pick }
}

// WithReplicator forwards applied deltas to other processes.
func WithReplicator(rep Replicator) Option {
	return func(r *Registry) { r.replicator = rep }
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		rooms: make(map[string]*Room),
		log:   slog.Default(),
		now:   time.Now,
		pickColor: func() string {
			return Palette[rand.Intn(len(Palette))]
		},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// SetReplicator installs the replicator after construction, for relays that need
// the registry themselves.
func (reg *Registry) SetReplicator(rep Replicator) {
	reg.repMu.Lock()
	defer reg.repMu.Unlock()
	reg.replicator = rep
}

func (reg *Registry) getOrCreate(roomID string) *Room {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	if r, ok := reg.rooms[roomID]; ok {
		return r
	}
	r := newRoom(roomID, reg.now())
	reg.rooms[roomID] = r
	reg.log.Debug("room created", "room", roomID)
	return r
}

func (reg *Registry) lookup(roomID string) *Room {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	return reg.rooms[roomID]
}

// withRoom runs fn holding the room lock, creating the room on first reference.
func (reg *Registry) withRoom(roomID string, fn func(r *Room)) {
	for {
		r := reg.getOrCreate(roomID)
		r.mu.Lock()
		if r.evicted {
			// lost a race with Sweep; the next lookup creates a fresh room
			r.mu.Unlock()
			continue
		}
		r.lastActive = reg.now()
		fn(r)
		r.mu.Unlock()
		return
	}
}

// withExisting is withRoom for events that must not create a room.
func (reg *Registry) withExisting(roomID string, fn func(r *Room)) bool {
	r := reg.lookup(roomID)
	if r == nil {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.evicted {
		return false
	}
	r.lastActive = reg.now()
	fn(r)
	return true
}

func (reg *Registry) replicate(roomID string, msg protocol.Message) {
	reg.repMu.RLock()
	rep := reg.replicator
	reg.repMu.RUnlock()
	if rep != nil {
		rep.Replicate(roomID, msg)
	}
}

// broadcast fans msg out to the room and hands it to the replicator. Must be
// called with the room lock held so peers and other processes see room order.
func (reg *Registry) broadcast(r *Room, sender Peer, event string, payload any) {
	msg, err := protocol.New(event, payload)
	if err != nil {
		reg.log.Error("build broadcast", "room", r.ID, "event", event, "err", err)
		return
	}
	r.fanout(reg.log, sender, msg)
	reg.replicate(r.ID, msg)
}

func (reg *Registry) sendTo(r *Room, p Peer, event string, payload any) {
	frame, err := protocol.Encode(event, payload)
	if err != nil {
		reg.log.Error("encode message", "room", r.ID, "event", event, "err", err)
		return
	}
	deliver(reg.log, r.ID, p, frame)
}

// Join registers the peer as an online user. The peer receives its id and the full
// room snapshot; everyone else receives the refreshed roster. Joining again on the
// same connection overwrites the user entry and keeps its color.
func (reg *Registry) Join(roomID string, p Peer, userName string) protocol.User {
	var user protocol.User
	reg.withRoom(roomID, func(r *Room) {
		var color string
		if prev, ok := r.users[p.ID()]; ok {
			color = prev.Color
		} else {
			color = reg.pickColor()
		}
		user = protocol.User{ID: p.ID(), Name: userName, Color: color, IsOnline: true}
		r.putUser(user)
		r.peers[p.ID()] = p

		reg.sendTo(r, p, protocol.EventUserID, user.ID)
		reg.sendTo(r, p, protocol.EventRoomState, r.state())

		msg, err := protocol.New(protocol.EventUsersUpdated, r.userList())
		if err == nil {
			r.fanout(reg.log, p, msg)
		}
		if joined, err := protocol.New(protocol.EventUserJoined, user); err == nil {
			reg.replicate(r.ID, joined)
		}
	})
	reg.log.Info("client joined room", "user", user.ID, "name", userName, "room", roomID)
	return user
}

// Leave removes the peer's user from the room and notifies the others with its id
// and the refreshed roster. Elements are kept. Removal and notification happen
// under one lock so no peer can observe one without the other.
func (reg *Registry) Leave(roomID string, p Peer) bool {
	left := false
	reg.withExisting(roomID, func(r *Room) {
		delete(r.peers, p.ID())
		if !r.dropUser(p.ID()) {
			return
		}
		left = true
		reg.broadcast(r, p, protocol.EventUserLeft, p.ID())
		if msg, err := protocol.New(protocol.EventUsersUpdated, r.userList()); err == nil {
			r.fanout(reg.log, p, msg)
		}
	})
	if left {
		reg.log.Info("client left room", "user", p.ID(), "room", roomID)
	}
	return left
}

// AddElement appends e to the room and broadcasts it verbatim. Invalid elements are dropped.
func (reg *Registry) AddElement(roomID string, sender Peer, e element.Element) bool {
	if err := e.Validate(); err != nil {
		reg.log.Debug("dropping element", "room", roomID, "err", err)
		return false
	}
	reg.withRoom(roomID, func(r *Room) {
		r.elements.Append(e.Clone())
		reg.broadcast(r, sender, protocol.EventElementAdded, r.elements[len(r.elements)-1])
	})
	return true
}

// UpdateElement merges the patch into the element with the given id and broadcasts
// the patch itself. An unknown id is a no-op and nothing is broadcast.
func (reg *Registry) UpdateElement(roomID string, sender Peer, id string, updates element.Patch) bool {
	applied := false
	reg.withRoom(roomID, func(r *Room) {
		if !r.elements.Update(id, updates) {
			return
		}
		applied = true
		reg.broadcast(r, sender, protocol.EventElementUpdated, protocol.ElementUpdated{ID: id, Updates: updates})
	})
	if !applied {
		reg.log.Debug("update for unknown element", "room", roomID, "element", id)
	}
	return applied
}

// RemoveElement drops the element with the given id and broadcasts the id.
func (reg *Registry) RemoveElement(roomID string, sender Peer, id string) bool {
	removed := false
	reg.withRoom(roomID, func(r *Room) {
		if !r.elements.Remove(id) {
			return
		}
		removed = true
		reg.broadcast(r, sender, protocol.EventElementRemoved, id)
	})
	return removed
}

// Clear empties the room's elements and broadcasts a clear signal.
func (reg *Registry) Clear(roomID string, sender Peer) {
	reg.withRoom(roomID, func(r *Room) {
		r.elements = element.List{}
		reg.broadcast(r, sender, protocol.EventCanvasCleared, nil)
	})
}

// CursorMove relays the sender's position to the room. Nothing is stored. Senders
// that have not joined the room are ignored.
func (reg *Registry) CursorMove(roomID string, sender Peer, x, y float64) bool {
	relayed := false
	reg.withRoom(roomID, func(r *Room) {
		u, ok := r.users[sender.ID()]
		if !ok {
			return
		}
		relayed = true
		reg.broadcast(r, sender, protocol.EventCursorMoved, protocol.CursorMoved{
			ID: u.ID, Name: u.Name, Color: u.Color, X: x, Y: y,
		})
	})
	return relayed
}

// Snapshot returns a deep copy of the room's state without creating the room.
func (reg *Registry) Snapshot(roomID string) (protocol.RoomState, bool) {
	r := reg.lookup(roomID)
	if r == nil {
		return protocol.RoomState{}, false
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.evicted {
		return protocol.RoomState{}, false
	}
	return r.state(), true
}

// Replace overwrites the room's elements and sends every member the new snapshot.
func (reg *Registry) Replace(roomID string, elements []element.Element) error {
	for _, e := range elements {
		if err := e.Validate(); err != nil {
			return err
		}
	}
	reg.withRoom(roomID, func(r *Room) {
		r.elements = element.List{}
		for _, e := range elements {
			r.elements.Append(e.Clone())
		}
		reg.broadcast(r, nil, protocol.EventRoomState, r.state())
	})
	reg.log.Info("room elements replaced", "room", roomID, "elements", len(elements))
	return nil
}
