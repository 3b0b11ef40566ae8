// Package presence tracks who is in the room and where their cursors are. Cursor
// positions are ephemeral: they never enter the element list or the history.
package presence

import (
	"slices"
	"strings"
	"sync"

	"github.com/haal01/whiteboard/internal/protocol"
)

// Cursor is the last known pointer position of a remote user.
type Cursor struct {
	ID    string
	Name  string
	Color string
	X, Y  float64
}

// Tracker holds the roster and the remote cursors.
type Tracker struct {
	mu      sync.Mutex
	users   []protocol.User
	cursors map[string]Cursor
}

// NewTracker returns an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{cursors: make(map[string]Cursor)}
}

// SetUsers replaces the roster.
func (t *Tracker) SetUsers(users []protocol.User) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.users = slices.Clone(users)
}

// Users returns the roster in join order.
func (t *Tracker) Users() []protocol.User {
	t.mu.Lock()
	defer t.mu.Unlock()
	return slices.Clone(t.users)
}

// Move records a cursor update.
func (t *Tracker) Move(c protocol.CursorMoved) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cursors[c.ID] = Cursor{ID: c.ID, Name: c.Name, Color: c.Color, X: c.X, Y: c.Y}
}

// Remove forgets the cursor of a departed user.
func (t *Tracker) Remove(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.cursors, id)
}

// Cursors returns the known cursors ordered by user id.
func (t *Tracker) Cursors() []Cursor {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Cursor, 0, len(t.cursors))
	for _, c := range t.cursors {
		out = append(out, c)
	}
	slices.SortFunc(out, func(a, b Cursor) int { return strings.Compare(a.ID, b.ID) })
	return out
}

// ResetCursors drops every cursor, as after a reconnect.
func (t *Tracker) ResetCursors() {
	t.mu.Lock()
	defer t.mu.Unlock()
	clear(t.cursors)
}
