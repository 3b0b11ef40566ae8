// Package canvas is the client-local model of one shared canvas: the element list,
// the selection and the undo/redo history.
//
// Board only offers raw mutators. They never capture history and never talk to the
// network, which is what inbound deltas need. The session wraps them for local
// actions, adding history capture and emission.
package canvas

import (
	"sync"

	"github.com/haal01/whiteboard/internal/element"
	"github.com/haal01/whiteboard/internal/history"
)

// Board is safe for concurrent use: inbound deltas and local actions arrive on
// different goroutines.
type Board struct {
	mu       sync.Mutex
	elements element.List
	selected string
	history  *history.Manager
	subs     map[chan struct{}]struct{}
}

// NewBoard creates an empty board keeping capacity history snapshots.
func NewBoard(capacity int) *Board {
	return &Board{
		elements: element.List{},
		history:  history.New(capacity),
		subs:     make(map[chan struct{}]struct{}),
	}
}

// Subscribe returns a channel signalled after any change to the elements or the
// selection, and a function to stop the subscription. Signals coalesce.
func (b *Board) Subscribe() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()

	return ch, func() {
		b.mu.Lock()
		delete(b.subs, ch)
		b.mu.Unlock()
	}
}

// changed must be called with b.mu held.
func (b *Board) changed() {
	for ch := range b.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// Elements returns a deep copy of the element list in render order.
func (b *Board) Elements() element.List {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.elements.Clone()
}

// Find returns a copy of the element with the given id.
func (b *Board) Find(id string) (element.Element, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	e, ok := b.elements.Find(id)
	if !ok {
		return element.Element{}, false
	}
	return e.Clone(), true
}

// Add appends e.
func (b *Board) Add(e element.Element) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.elements.Append(e.Clone())
	b.changed()
}

// Update merges p into the element with the given id. Unknown ids are a no-op.
func (b *Board) Update(id string, p element.Patch) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.elements.Update(id, p) {
		return false
	}
	b.changed()
	return true
}

// Remove drops the element with the given id, clearing the selection if it was selected.
func (b *Board) Remove(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	removed := b.elements.Remove(id)
	if b.selected == id {
		b.selected = ""
		removed = true
	}
	if removed {
		b.changed()
	}
	return removed
}

// SetElements replaces the whole list, as on a room snapshot.
func (b *Board) SetElements(elements []element.Element) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.elements = element.List(elements).Clone()
	for i := range b.elements {
		if b.elements[i].Points == nil {
			b.elements[i].Points = []element.Point{}
		}
	}
	if b.selected != "" && b.elements.Index(b.selected) < 0 {
		b.selected = ""
	}
	b.changed()
}

// Clear removes every element and the selection.
func (b *Board) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.elements = element.List{}
	b.selected = ""
	b.changed()
}

// Select marks id as the selected element. An empty id clears the selection.
func (b *Board) Select(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.selected == id {
		return
	}
	b.selected = id
	b.changed()
}

// Selected returns the selected element id, or "".
func (b *Board) Selected() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.selected
}

// Capture pushes a snapshot of the current elements onto the history. Call it once
// per discrete local action, before the action mutates the board.
func (b *Board) Capture() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.history.Push(b.elements)
}

// Undo restores the previous snapshot and clears the selection. It is local only.
func (b *Board) Undo() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	prev, ok := b.history.Undo(b.elements)
	if !ok {
		return false
	}
	b.elements = prev
	b.selected = ""
	b.changed()
	return true
}

// Redo re-applies the snapshot undone last and clears the selection. It is local only.
func (b *Board) Redo() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	next, ok := b.history.Redo(b.elements)
	if !ok {
		return false
	}
	b.elements = next
	b.selected = ""
	b.changed()
	return true
}

// CanUndo reports whether Undo would change the board.
func (b *Board) CanUndo() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.history.CanUndo()
}

// CanRedo reports whether Redo would change the board.
func (b *Board) CanRedo() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.history.CanRedo()
}
