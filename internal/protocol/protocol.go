// Package protocol defines the room-scoped event channel between sessions and the room server.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/haal01/whiteboard/internal/element"
)

// Event names sent by clients
const (
	EventJoinRoom      = "join-room"
	EventAddElement    = "add-element"
	EventUpdateElement = "update-element"
	EventRemoveElement = "remove-element"
	EventClearCanvas   = "clear-canvas"
	EventCursorMove    = "cursor-move"
	EventLeaveRoom     = "leave-room"
)

// Event names sent by the server
const (
	EventUserID         = "user-id"
	EventRoomState      = "room-state"
	EventElementAdded   = "element-added"
	EventElementUpdated = "element-updated"
	EventElementRemoved = "element-removed"
	EventCanvasCleared  = "canvas-cleared"
	EventCursorMoved    = "cursor-moved"
	EventUserLeft       = "user-left"
	EventUsersUpdated   = "users-updated"
)

// EventUserJoined only travels between server processes to keep rosters in step.
const EventUserJoined = "user-joined"

var ErrUnknownEvent = errors.New("unknown event")

// Message is the envelope for every frame on the channel.
type Message struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// User is one active participant of a room.
type User struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Color    string `json:"color"`
	IsOnline bool   `json:"isOnline"`
}

// JoinRoom asks the server to register the connection in a room.
type JoinRoom struct {
	RoomID   string `json:"roomId"`
	UserName string `json:"userName"`
}

// AddElement appends an element to a room.
type AddElement struct {
	RoomID  string          `json:"roomId"`
	Element element.Element `json:"element"`
}

// UpdateElement merges a patch into an element.
type UpdateElement struct {
	RoomID  string        `json:"roomId"`
	ID      string        `json:"id"`
	Updates element.Patch `json:"updates"`
}

// RemoveElement deletes an element by id.
type RemoveElement struct {
	RoomID string `json:"roomId"`
	ID     string `json:"id"`
}

// RoomRef carries only the room id (clear-canvas, leave-room).
type RoomRef struct {
	RoomID string `json:"roomId"`
}

// CursorMove reports the sender's pointer position.
type CursorMove struct {
	RoomID string  `json:"roomId"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
}

// RoomState is the full snapshot a joining session receives.
type RoomState struct {
	Elements []element.Element `json:"elements"`
	Users    []User            `json:"users"`
}

// ElementUpdated relays the patch, not the merged element.
type ElementUpdated struct {
	ID      string        `json:"id"`
	Updates element.Patch `json:"updates"`
}

// CursorMoved is a presence update for one remote cursor.
type CursorMoved struct {
	ID    string  `json:"id"`
	Name  string  `json:"name"`
	Color string  `json:"color"`
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
}

// New builds a message carrying payload. A nil payload leaves Data empty.
func New(event string, payload any) (Message, error) {
	msg := Message{Type: event}
	if payload == nil {
		return msg, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return Message{}, fmt.Errorf("marshal %s payload: %w", event, err)
	}
	msg.Data = data
	return msg, nil
}

// Encode marshals an event and its payload into a single frame.
func Encode(event string, payload any) ([]byte, error) {
	msg, err := New(event, payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(msg)
}

// Decode parses a frame into its envelope.
func Decode(frame []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(frame, &msg); err != nil {
		return Message{}, fmt.Errorf("decode frame: %w", err)
	}
	if msg.Type == "" {
		return Message{}, fmt.Errorf("decode frame: %w: missing type", ErrUnknownEvent)
	}
	return msg, nil
}

// Bind unmarshals the message data into v.
func (m Message) Bind(v any) error {
	if len(m.Data) == 0 {
		return fmt.Errorf("%s: empty payload", m.Type)
	}
	if err := json.Unmarshal(m.Data, v); err != nil {
		return fmt.Errorf("%s: bind payload: %w", m.Type, err)
	}
	return nil
}

// Bytes encodes the envelope.
func (m Message) Bytes() ([]byte, error) {
	return json.Marshal(m)
}
