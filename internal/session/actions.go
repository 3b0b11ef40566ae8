package session

import (
	"fmt"

	"github.com/haal01/whiteboard/internal/element"
	"github.com/haal01/whiteboard/internal/protocol"
)

// Local actions apply to the board before emitting. An error from the emit leaves
// the local change in place; the next rejoin snapshot reconciles it.

// AddElement records history, adds e and emits it.
func (s *Session) AddElement(e element.Element) error {
	if err := e.Validate(); err != nil {
		return err
	}
	s.board.Capture()
	s.board.Add(e)
	return s.emit(protocol.EventAddElement, protocol.AddElement{RoomID: s.opts.RoomID, Element: e})
}

// BeginStroke records history and adds e locally. Nothing is sent until EndStroke.
func (s *Session) BeginStroke(e element.Element) error {
	if err := e.Validate(); err != nil {
		return err
	}
	s.board.Capture()
	s.board.Add(e)
	return nil
}

// ExtendStroke moves the stroke to p: freehand strokes gain a point, shapes keep
// their start point and take p as the second corner.
func (s *Session) ExtendStroke(id string, p element.Point) error {
	e, ok := s.board.Find(id)
	if !ok {
		return fmt.Errorf("extend %s: %w", id, ErrUnknownElement)
	}
	var points []element.Point
	switch {
	case e.Type.Freehand():
		points = append(e.Points, p)
	case len(e.Points) == 0:
		points = []element.Point{p}
	default:
		points = []element.Point{e.Points[0], p}
	}
	s.board.Update(id, element.PointsPatch(points))
	return nil
}

// EndStroke emits the finished stroke as a single add-element.
func (s *Session) EndStroke(id string) error {
	e, ok := s.board.Find(id)
	if !ok {
		return fmt.Errorf("end %s: %w", id, ErrUnknownElement)
	}
	return s.emit(protocol.EventAddElement, protocol.AddElement{RoomID: s.opts.RoomID, Element: e})
}

// UpdateElement merges p locally and emits it. Updates are not recorded in
// history; drags and text edits are continuous.
func (s *Session) UpdateElement(id string, p element.Patch) error {
	if !s.board.Update(id, p) {
		return fmt.Errorf("update %s: %w", id, ErrUnknownElement)
	}
	return s.emit(protocol.EventUpdateElement, protocol.UpdateElement{RoomID: s.opts.RoomID, ID: id, Updates: p})
}

// RemoveElement records history, removes the element and emits the removal.
func (s *Session) RemoveElement(id string) error {
	if _, ok := s.board.Find(id); !ok {
		return fmt.Errorf("remove %s: %w", id, ErrUnknownElement)
	}
	s.board.Capture()
	s.board.Remove(id)
	return s.emit(protocol.EventRemoveElement, protocol.RemoveElement{RoomID: s.opts.RoomID, ID: id})
}

// ClearCanvas records history, empties the board and emits clear-canvas.
func (s *Session) ClearCanvas() error {
	s.board.Capture()
	s.board.Clear()
	return s.emit(protocol.EventClearCanvas, protocol.RoomRef{RoomID: s.opts.RoomID})
}

// Undo steps local history back. It is never sent to the room.
func (s *Session) Undo() bool { return s.board.Undo() }

// Redo steps local history forward. It is never sent to the room.
func (s *Session) Redo() bool { return s.board.Redo() }

func (s *Session) CanUndo() bool { return s.board.CanUndo() }

func (s *Session) CanRedo() bool { return s.board.CanRedo() }

// Select changes the local selection.
func (s *Session) Select(id string) { s.board.Select(id) }

// Selected returns the selected element id.
func (s *Session) Selected() string { return s.board.Selected() }

// MoveCursor reports the local pointer position, sampled to the cursor interval.
func (s *Session) MoveCursor(x, y float64) { s.sampler.Move(x, y) }
