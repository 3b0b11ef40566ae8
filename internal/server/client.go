package server

import (
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/haal01/whiteboard/internal/protocol"
	"github.com/haal01/whiteboard/internal/room"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer. Freehand strokes carry every sample.
	maxMessageSize = 1 << 20
)

// Client represents a connected WebSocket client
type Client struct {
	id       string
	conn     *websocket.Conn
	registry *room.Registry
	log      *slog.Logger
	send     chan []byte
	done     chan struct{}

	mu      sync.Mutex
	closed  bool
	current string // room joined through this connection
	once    sync.Once
}

var _ room.Peer = (*Client)(nil)

func newClient(id string, conn *websocket.Conn, reg *room.Registry, log *slog.Logger, buffer int) *Client {
	return &Client{
		id:       id,
		conn:     conn,
		registry: reg,
		log:      log.With("user", id),
		send:     make(chan []byte, buffer),
		done:     make(chan struct{}),
	}
}

// ID returns the connection identifier.
func (c *Client) ID() string { return c.id }

// Send queues a frame for the write pump. It never blocks.
func (c *Client) Send(frame []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

// Close stops the write pump, which closes the connection and ends the read pump.
func (c *Client) Close() {
	c.once.Do(func() { close(c.done) })
}

// writePump pumps messages from the send channel to the WebSocket connection
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
			return
		}
	}
}

// readPump pumps messages from the WebSocket connection to the registry
func (c *Client) readPump() {
	defer func() {
		// peers are told before the connection goes away
		c.leaveCurrent()

		c.mu.Lock()
		c.closed = true
		close(c.send)
		c.mu.Unlock()

		c.Close()
		c.conn.Close()
		c.log.Info("client disconnected")
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, frame, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				c.log.Warn("websocket error", "err", err)
			}
			return
		}

		msg, err := protocol.Decode(frame)
		if err != nil {
			c.log.Debug("skipping malformed frame", "err", err)
			continue
		}
		if err := c.dispatch(msg); err != nil {
			c.log.Debug("skipping event", "event", msg.Type, "err", err)
		}
	}
}

func (c *Client) currentRoom() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

func (c *Client) setCurrentRoom(roomID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = roomID
}

func (c *Client) leaveCurrent() {
	if roomID := c.currentRoom(); roomID != "" {
		c.registry.Leave(roomID, c)
		c.setCurrentRoom("")
	}
}

// dispatch applies one inbound event. Every error here is a skipped event, never a
// reason to drop the connection.
func (c *Client) dispatch(msg protocol.Message) error {
	switch msg.Type {
	case protocol.EventJoinRoom:
		var req protocol.JoinRoom
		if err := msg.Bind(&req); err != nil {
			return err
		}
		if req.RoomID == "" {
			return errMissingRoom
		}
		if prev := c.currentRoom(); prev != "" && prev != req.RoomID {
			c.registry.Leave(prev, c)
		}
		c.setCurrentRoom(req.RoomID)
		c.registry.Join(req.RoomID, c, req.UserName)

	case protocol.EventAddElement:
		var req protocol.AddElement
		if err := msg.Bind(&req); err != nil {
			return err
		}
		c.registry.AddElement(req.RoomID, c, req.Element)

	case protocol.EventUpdateElement:
		var req protocol.UpdateElement
		if err := msg.Bind(&req); err != nil {
			return err
		}
		c.registry.UpdateElement(req.RoomID, c, req.ID, req.Updates)

	case protocol.EventRemoveElement:
		var req protocol.RemoveElement
		if err := msg.Bind(&req); err != nil {
			return err
		}
		c.registry.RemoveElement(req.RoomID, c, req.ID)

	case protocol.EventClearCanvas:
		var req protocol.RoomRef
		if err := msg.Bind(&req); err != nil {
			return err
		}
		c.registry.Clear(req.RoomID, c)

	case protocol.EventCursorMove:
		var req protocol.CursorMove
		if err := msg.Bind(&req); err != nil {
			return err
		}
		c.registry.CursorMove(req.RoomID, c, req.X, req.Y)

	case protocol.EventLeaveRoom:
		var req protocol.RoomRef
		if err := msg.Bind(&req); err != nil {
			return err
		}
		c.registry.Leave(req.RoomID, c)
		if req.RoomID == c.currentRoom() {
			c.setCurrentRoom("")
		}

	default:
		return protocol.ErrUnknownEvent
	}
	return nil
}
