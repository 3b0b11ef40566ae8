// Package history keeps a bounded undo/redo stack of element-set snapshots for one client.
//
// Undo and redo are local only: the manager never produces network deltas, so reverting
// an element on one client does not change peers or the room's authoritative state.
package history

import "github.com/haal01/whiteboard/internal/element"

// DefaultCapacity is the number of snapshots retained before the oldest is evicted.
const DefaultCapacity = 50

// Manager holds the snapshots captured before each local action.
// entries[:cursor] are undo states, oldest first; entries[cursor:] are redo states,
// nearest first after the cursor. A Manager is not safe for concurrent use.
type Manager struct {
	entries  []element.List
	cursor   int
	capacity int
}

// New creates a history manager retaining at most capacity snapshots.
func New(capacity int) *Manager {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Manager{capacity: capacity}
}

// Push captures a deep copy of current, the state before a mutation is applied.
// It must be called exactly once per discrete user action and discards any redo states.
func (m *Manager) Push(current element.List) {
	m.entries = append(m.entries[:m.cursor], current.Clone())
	if len(m.entries) > m.capacity {
		m.entries = m.entries[len(m.entries)-m.capacity:]
	}
	m.cursor = len(m.entries)
}

// Undo returns the state to restore, given the state the client currently shows.
// It reports false, and changes nothing, at the oldest retained snapshot.
func (m *Manager) Undo(current element.List) (element.List, bool) {
	if m.cursor == 0 {
		return nil, false
	}
	m.cursor--
	prev := m.entries[m.cursor]
	// the slot now holds the state we left so a redo can return to it
	m.entries[m.cursor] = current.Clone()
	return prev.Clone(), true
}

// Redo is the inverse of Undo. It reports false at the newest snapshot.
func (m *Manager) Redo(current element.List) (element.List, bool) {
	if m.cursor == len(m.entries) {
		return nil, false
	}
	next := m.entries[m.cursor]
	m.entries[m.cursor] = current.Clone()
	m.cursor++
	return next.Clone(), true
}

// CanUndo reports whether Undo would change state.
func (m *Manager) CanUndo() bool { return m.cursor > 0 }

// CanRedo reports whether Redo would change state.
func (m *Manager) CanRedo() bool { return m.cursor < len(m.entries) }

// Len returns the number of retained snapshots.
func (m *Manager) Len() int { return len(m.entries) }

// Reset drops every snapshot.
func (m *Manager) Reset() {
	m.entries = nil
	m.cursor = 0
}
