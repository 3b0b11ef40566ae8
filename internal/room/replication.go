package room

import (
	"fmt"

	"github.com/haal01/whiteboard/internal/element"
	"github.com/haal01/whiteboard/internal/protocol"
)

// ApplyReplicated applies a delta that another server process already applied and
// fans it out to every local member. It never hands the delta back to the
// replicator, so deltas cannot bounce between processes.
func (reg *Registry) ApplyReplicated(roomID string, msg protocol.Message) error {
	var apply func(r *Room) error

	switch msg.Type {
	case protocol.EventElementAdded:
		var e element.Element
		if err := msg.Bind(&e); err != nil {
			return err
		}
		if err := e.Validate(); err != nil {
			return fmt.Errorf("%s: %w", msg.Type, err)
		}
		apply = func(r *Room) error {
			r.elements.Append(e)
			r.fanout(reg.log, nil, msg)
			return nil
		}

	case protocol.EventElementUpdated:
		var upd protocol.ElementUpdated
		if err := msg.Bind(&upd); err != nil {
			return err
		}
		apply = func(r *Room) error {
			if r.elements.Update(upd.ID, upd.Updates) {
				r.fanout(reg.log, nil, msg)
			}
			return nil
		}

	case protocol.EventElementRemoved:
		var id string
		if err := msg.Bind(&id); err != nil {
			return err
		}
		apply = func(r *Room) error {
			if r.elements.Remove(id) {
				r.fanout(reg.log, nil, msg)
			}
			return nil
		}

	case protocol.EventCanvasCleared:
		apply = func(r *Room) error {
			r.elements = element.List{}
			r.fanout(reg.log, nil, msg)
			return nil
		}

	case protocol.EventCursorMoved:
		apply = func(r *Room) error {
			r.fanout(reg.log, nil, msg)
			return nil
		}

	case protocol.EventRoomState:
		var state protocol.RoomState
		if err := msg.Bind(&state); err != nil {
			return err
		}
		apply = func(r *Room) error {
			r.elements = element.List{}
			for _, e := range state.Elements {
				r.elements.Append(e)
			}
			// the local roster stays authoritative for local members
			return reg.fanoutEvent(r, protocol.EventRoomState, r.state())
		}

	case protocol.EventUserJoined:
		var u protocol.User
		if err := msg.Bind(&u); err != nil {
			return err
		}
		apply = func(r *Room) error {
			r.putUser(u)
			return reg.fanoutEvent(r, protocol.EventUsersUpdated, r.userList())
		}

	case protocol.EventUserLeft:
		var id string
		if err := msg.Bind(&id); err != nil {
			return err
		}
		apply = func(r *Room) error {
			if !r.dropUser(id) {
				return nil
			}
			r.fanout(reg.log, nil, msg)
			return reg.fanoutEvent(r, protocol.EventUsersUpdated, r.userList())
		}

	default:
		return fmt.Errorf("%w: %q", protocol.ErrUnknownEvent, msg.Type)
	}

	var err error
	reg.withRoom(roomID, func(r *Room) { err = apply(r) })
	return err
}

func (reg *Registry) fanoutEvent(r *Room, event string, payload any) error {
	msg, err := protocol.New(event, payload)
	if err != nil {
		return err
	}
	r.fanout(reg.log, nil, msg)
	return nil
}
