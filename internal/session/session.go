// Package session connects a local canvas to a room on the server.
//
// Local actions go through the Session methods: they capture history, apply to the
// board at once and emit a delta without waiting for any acknowledgement. Inbound
// deltas only ever reach the raw Board and Tracker mutators, so nothing received is
// recorded in history or sent back.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/haal01/whiteboard/internal/canvas"
	"github.com/haal01/whiteboard/internal/element"
	"github.com/haal01/whiteboard/internal/presence"
	"github.com/haal01/whiteboard/internal/protocol"
)

var (
	ErrNotJoined      = errors.New("session not joined")
	ErrClosed         = errors.New("session closed")
	ErrUnknownElement = errors.New("unknown element")
)

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 1 << 20

	DefaultReconnectDelay = time.Second
)

// State is the connection lifecycle of a session.
type State int

const (
	StateInactive State = iota
	StateConnecting
	StateJoined
	StateLeaving
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateInactive:
		return "inactive"
	case StateConnecting:
		return "connecting"
	case StateJoined:
		return "joined"
	case StateLeaving:
		return "leaving"
	case StateDisconnected:
		return "disconnected"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Options configures a Session. URL, RoomID and UserName are required.
type Options struct {
	URL      string
	RoomID   string
	UserName string

	CursorInterval  time.Duration
	ReconnectDelay  time.Duration
	HistoryCapacity int
	Dialer          *websocket.Dialer
	Logger          *slog.Logger

	// OnEvent, if set, is called from the read loop after each inbound event
	// has been applied.
	OnEvent func(protocol.Message)
}

// Session is one client's membership of a room.
type Session struct {
	opts     Options
	log      *slog.Logger
	dialer   *websocket.Dialer
	board    *canvas.Board
	presence *presence.Tracker
	sampler  *presence.Sampler

	mu      sync.Mutex
	state   State
	userID  string
	conn    *websocket.Conn
	changed chan struct{}
	running bool

	writeMu sync.Mutex
}

// New validates opts and returns an inactive session. Call Run to connect.
func New(opts Options) (*Session, error) {
	switch {
	case opts.URL == "":
		return nil, errors.New("session: server url is required")
	case opts.RoomID == "":
		return nil, errors.New("session: room id is required")
	case opts.UserName == "":
		return nil, errors.New("session: user name is required")
	}
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = DefaultReconnectDelay
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	dialer := opts.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}

	s := &Session{
		opts:     opts,
		log:      log.With("room", opts.RoomID, "user", opts.UserName),
		dialer:   dialer,
		board:    canvas.NewBoard(opts.HistoryCapacity),
		presence: presence.NewTracker(),
		changed:  make(chan struct{}),
	}
	s.sampler = presence.NewSampler(opts.CursorInterval, s.sendCursor)
	return s, nil
}

// Board is the local canvas model.
func (s *Session) Board() *canvas.Board { return s.board }

// Presence is the roster and remote cursor map.
func (s *Session) Presence() *presence.Tracker { return s.presence }

// UserID is the id the server assigned on the current connection.
func (s *Session) UserID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userID
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setStateLocked(st)
}

func (s *Session) setStateLocked(st State) {
	if s.state == st {
		return
	}
	s.log.Debug("session state", "from", s.state, "to", st)
	s.state = st
	close(s.changed)
	s.changed = make(chan struct{})
}

// WaitState blocks until the session reaches want or ctx is done.
func (s *Session) WaitState(ctx context.Context, want State) error {
	for {
		s.mu.Lock()
		st, ch := s.state, s.changed
		s.mu.Unlock()
		if st == want {
			return nil
		}
		if st == StateDisconnected {
			return ErrClosed
		}
		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Run connects, joins and processes inbound events until ctx is done, reconnecting
// with a full rejoin whenever the connection drops. Cancelling ctx sends leave-room
// and closes the connection. A session cannot be run twice.
func (s *Session) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.running || s.state == StateDisconnected {
		s.mu.Unlock()
		return ErrClosed
	}
	s.running = true
	s.mu.Unlock()

	defer func() {
		s.sampler.Stop()
		s.setState(StateDisconnected)
	}()

	for {
		err := s.connect(ctx)
		if ctx.Err() != nil {
			return nil
		}
		s.log.Warn("connection lost", "err", err, "retry", s.opts.ReconnectDelay)

		t := time.NewTimer(s.opts.ReconnectDelay)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return nil
		}
	}
}

func (s *Session) connect(ctx context.Context) error {
	s.setState(StateConnecting)

	conn, _, err := s.dialer.DialContext(ctx, s.opts.URL, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", s.opts.URL, err)
	}
	defer conn.Close()
	conn.SetReadLimit(maxMessageSize)

	// cursors from a previous connection are stale
	s.presence.ResetCursors()
	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.conn = nil
		s.mu.Unlock()
	}()

	stop := context.AfterFunc(ctx, func() { s.leave(conn) })
	defer stop()

	if err := s.write(conn, protocol.EventJoinRoom, protocol.JoinRoom{
		RoomID:   s.opts.RoomID,
		UserName: s.opts.UserName,
	}); err != nil {
		return err
	}

	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
		msg, err := protocol.Decode(frame)
		if err != nil {
			s.log.Debug("skipping malformed frame", "err", err)
			continue
		}
		if err := s.apply(msg); err != nil {
			s.log.Debug("skipping event", "event", msg.Type, "err", err)
			continue
		}
		if s.opts.OnEvent != nil {
			s.opts.OnEvent(msg)
		}
	}
}

func (s *Session) leave(conn *websocket.Conn) {
	s.setState(StateLeaving)
	if err := s.write(conn, protocol.EventLeaveRoom, protocol.RoomRef{RoomID: s.opts.RoomID}); err != nil {
		s.log.Debug("send leave-room", "err", err)
	}
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeWait))
	conn.Close()
}

// apply routes an inbound event to the raw mutators.
func (s *Session) apply(msg protocol.Message) error {
	switch msg.Type {
	case protocol.EventUserID:
		var id string
		if err := msg.Bind(&id); err != nil {
			return err
		}
		s.mu.Lock()
		s.userID = id
		s.mu.Unlock()

	case protocol.EventRoomState:
		var state protocol.RoomState
		if err := msg.Bind(&state); err != nil {
			return err
		}
		s.board.SetElements(state.Elements)
		s.presence.SetUsers(state.Users)
		s.mu.Lock()
		if s.state == StateConnecting {
			s.setStateLocked(StateJoined)
		}
		s.mu.Unlock()

	case protocol.EventElementAdded:
		var e element.Element
		if err := msg.Bind(&e); err != nil {
			return err
		}
		s.board.Add(e)

	case protocol.EventElementUpdated:
		var p protocol.ElementUpdated
		if err := msg.Bind(&p); err != nil {
			return err
		}
		s.board.Update(p.ID, p.Updates)

	case protocol.EventElementRemoved:
		var id string
		if err := msg.Bind(&id); err != nil {
			return err
		}
		s.board.Remove(id)

	case protocol.EventCanvasCleared:
		s.board.Clear()

	case protocol.EventCursorMoved:
		var c protocol.CursorMoved
		if err := msg.Bind(&c); err != nil {
			return err
		}
		s.presence.Move(c)

	case protocol.EventUserLeft:
		var id string
		if err := msg.Bind(&id); err != nil {
			return err
		}
		s.presence.Remove(id)

	case protocol.EventUsersUpdated:
		var users []protocol.User
		if err := msg.Bind(&users); err != nil {
			return err
		}
		s.presence.SetUsers(users)

	default:
		return fmt.Errorf("%w: %s", protocol.ErrUnknownEvent, msg.Type)
	}
	return nil
}

func (s *Session) write(conn *websocket.Conn, event string, payload any) error {
	frame, err := protocol.Encode(event, payload)
	if err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		return fmt.Errorf("write %s: %w", event, err)
	}
	return nil
}

// emit sends a delta on the current connection if the session is joined.
func (s *Session) emit(event string, payload any) error {
	s.mu.Lock()
	conn, st := s.conn, s.state
	s.mu.Unlock()
	switch {
	case st == StateDisconnected:
		return ErrClosed
	case st != StateJoined || conn == nil:
		return ErrNotJoined
	}
	return s.write(conn, event, payload)
}

func (s *Session) sendCursor(x, y float64) {
	err := s.emit(protocol.EventCursorMove, protocol.CursorMove{RoomID: s.opts.RoomID, X: x, Y: y})
	if err != nil {
		s.log.Debug("cursor not sent", "err", err)
	}
}
