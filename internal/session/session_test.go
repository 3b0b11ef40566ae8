package session

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/haal01/whiteboard/internal/element"
	"github.com/haal01/whiteboard/internal/protocol"
	"github.com/haal01/whiteboard/internal/room"
	"github.com/haal01/whiteboard/internal/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const waitFor = 5 * time.Second

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func wsURL(ts *httptest.Server) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
}

func startServer(t *testing.T) *httptest.Server {
	t.Helper()
	reg := room.NewRegistry(room.WithLogger(quiet()))
	ts := httptest.NewServer(server.New(reg, server.Options{Logger: quiet()}).Handler())
	t.Cleanup(ts.Close)
	return ts
}

// runSession joins roomID and returns the session plus a function that leaves.
func runSession(t *testing.T, url, roomID, name string) (*Session, func()) {
	t.Helper()
	s, err := New(Options{
		URL:            url,
		RoomID:         roomID,
		UserName:       name,
		ReconnectDelay: 20 * time.Millisecond,
		Logger:         quiet(),
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	stop := sync.OnceFunc(func() {
		cancel()
		require.NoError(t, <-done)
	})
	t.Cleanup(stop)

	wctx, wcancel := context.WithTimeout(context.Background(), waitFor)
	defer wcancel()
	require.NoError(t, s.WaitState(wctx, StateJoined))
	return s, stop
}

func rect(id string) element.Element {
	return element.Element{
		ID:          id,
		Type:        element.TypeRectangle,
		Points:      []element.Point{{X: 0, Y: 0}, {X: 10, Y: 10}},
		Color:       "#000000",
		StrokeWidth: 2,
	}
}

func ids(l element.List) []string {
	out := []string{}
	for _, e := range l {
		out = append(out, e.ID)
	}
	return out
}

func eventuallyIDs(t *testing.T, s *Session, want ...string) {
	t.Helper()
	if want == nil {
		want = []string{}
	}
	assert.Eventually(t, func() bool {
		return assert.ObjectsAreEqual(want, ids(s.Board().Elements()))
	}, waitFor, 10*time.Millisecond, "want %v, have %v", want, ids(s.Board().Elements()))
}

func TestNew_RequiresRoomAndName(t *testing.T) {
	_, err := New(Options{URL: "ws://x", UserName: "Alice"})
	assert.Error(t, err)
	_, err = New(Options{URL: "ws://x", RoomID: "r1"})
	assert.Error(t, err)
	s, err := New(Options{URL: "ws://x", RoomID: "r1", UserName: "Alice"})
	require.NoError(t, err)
	assert.Equal(t, StateInactive, s.State())
}

func TestSession_LocalActionsBeforeJoin(t *testing.T) {
	s, err := New(Options{URL: "ws://x", RoomID: "r1", UserName: "Alice", Logger: quiet()})
	require.NoError(t, err)

	assert.ErrorIs(t, s.AddElement(rect("e1")), ErrNotJoined)
	assert.Equal(t, []string{"e1"}, ids(s.Board().Elements()), "local apply is optimistic")
	assert.True(t, s.CanUndo())

	assert.ErrorIs(t, s.UpdateElement("missing", element.Patch{Color: element.Ptr("#fff")}), ErrUnknownElement)
	assert.ErrorIs(t, s.ExtendStroke("missing", element.Point{}), ErrUnknownElement)
	assert.Error(t, s.AddElement(element.Element{ID: "x", Type: "select"}))
}

func TestSession_Convergence(t *testing.T) {
	ts := startServer(t)
	a, _ := runSession(t, wsURL(ts), "r1", "Alice")
	b, _ := runSession(t, wsURL(ts), "r1", "Bob")

	assert.Eventually(t, func() bool { return len(a.Presence().Users()) == 2 }, waitFor, 10*time.Millisecond)
	assert.NotEqual(t, a.UserID(), b.UserID())

	// concurrent optimistic adds may order differently per client, so b waits
	require.NoError(t, a.AddElement(rect("e1")))
	eventuallyIDs(t, b, "e1")
	require.NoError(t, b.AddElement(rect("e2")))
	eventuallyIDs(t, a, "e1", "e2")
	eventuallyIDs(t, b, "e1", "e2")

	require.NoError(t, b.UpdateElement("e1", element.Patch{Color: element.Ptr("#ff0000")}))
	assert.Eventually(t, func() bool {
		e, ok := a.Board().Find("e1")
		return ok && e.Color == "#ff0000"
	}, waitFor, 10*time.Millisecond)

	require.NoError(t, a.RemoveElement("e2"))
	eventuallyIDs(t, b, "e1")
	assert.Equal(t, a.Board().Elements(), b.Board().Elements())

	// only b's own add was recorded; inbound deltas and updates never are
	require.True(t, b.Undo())
	assert.False(t, b.CanUndo())
}

func TestSession_UndoIsLocal(t *testing.T) {
	ts := startServer(t)
	a, _ := runSession(t, wsURL(ts), "r1", "Alice")
	b, _ := runSession(t, wsURL(ts), "r1", "Bob")

	require.NoError(t, a.AddElement(rect("e1")))
	eventuallyIDs(t, b, "e1")

	require.True(t, a.Undo())
	assert.Empty(t, a.Board().Elements())
	assert.True(t, a.CanRedo())

	// a later delta from a arrives after anything the undo could have sent
	require.NoError(t, a.AddElement(rect("e2")))
	eventuallyIDs(t, b, "e1", "e2")
	assert.Equal(t, []string{"e2"}, ids(a.Board().Elements()))
	assert.False(t, b.CanUndo())
}

func TestSession_Strokes(t *testing.T) {
	ts := startServer(t)
	a, _ := runSession(t, wsURL(ts), "r1", "Alice")
	b, _ := runSession(t, wsURL(ts), "r1", "Bob")

	stroke := element.Element{ID: "s1", Type: element.TypePen, Points: []element.Point{{X: 0, Y: 0}}, Color: "#000", StrokeWidth: 2}
	require.NoError(t, a.BeginStroke(stroke))
	require.NoError(t, a.ExtendStroke("s1", element.Point{X: 1, Y: 1}))
	require.NoError(t, a.ExtendStroke("s1", element.Point{X: 2, Y: 2}))

	box := element.Element{ID: "b1", Type: element.TypeRectangle, Points: []element.Point{{X: 0, Y: 0}}, Color: "#000", StrokeWidth: 2}
	require.NoError(t, a.BeginStroke(box))
	require.NoError(t, a.ExtendStroke("b1", element.Point{X: 5, Y: 5}))
	require.NoError(t, a.ExtendStroke("b1", element.Point{X: 10, Y: 10}))

	require.NoError(t, a.EndStroke("s1"))
	require.NoError(t, a.EndStroke("b1"))
	eventuallyIDs(t, b, "s1", "b1")

	got, _ := b.Board().Find("s1")
	assert.Len(t, got.Points, 3)
	got, _ = b.Board().Find("b1")
	assert.Equal(t, []element.Point{{X: 0, Y: 0}, {X: 10, Y: 10}}, got.Points)

	require.True(t, a.Undo())
	require.True(t, a.Undo())
	assert.Empty(t, a.Board().Elements())
	assert.False(t, a.CanUndo(), "one history entry per stroke")
}

func TestSession_ClearCanvas(t *testing.T) {
	ts := startServer(t)
	a, _ := runSession(t, wsURL(ts), "r1", "Alice")
	b, _ := runSession(t, wsURL(ts), "r1", "Bob")

	require.NoError(t, a.AddElement(rect("e1")))
	eventuallyIDs(t, b, "e1")
	b.Select("e1")

	require.NoError(t, b.ClearCanvas())
	assert.Empty(t, b.Selected())
	eventuallyIDs(t, a)

	require.True(t, b.Undo())
	assert.Equal(t, []string{"e1"}, ids(b.Board().Elements()))
}

func TestSession_PresenceStaysOutOfCanvas(t *testing.T) {
	ts := startServer(t)
	a, _ := runSession(t, wsURL(ts), "r1", "Alice")
	b, leaveB := runSession(t, wsURL(ts), "r1", "Bob")

	b.MoveCursor(3, 4)
	assert.Eventually(t, func() bool {
		cursors := a.Presence().Cursors()
		return len(cursors) == 1 && cursors[0].ID == b.UserID() && cursors[0].X == 3
	}, waitFor, 10*time.Millisecond)
	assert.Empty(t, a.Board().Elements())
	assert.False(t, a.CanUndo())

	leaveB()
	assert.Eventually(t, func() bool {
		users := a.Presence().Users()
		return len(a.Presence().Cursors()) == 0 && len(users) == 1 && users[0].Name == "Alice"
	}, waitFor, 10*time.Millisecond)
	assert.Equal(t, StateDisconnected, b.State())
}

func TestSession_OnEvent(t *testing.T) {
	ts := startServer(t)
	a, _ := runSession(t, wsURL(ts), "r1", "Alice")

	seen := make(chan string, 16)
	b, err := New(Options{
		URL: wsURL(ts), RoomID: "r1", UserName: "Bob", Logger: quiet(),
		OnEvent: func(m protocol.Message) { seen <- m.Type },
	})
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.Run(ctx)

	assert.Equal(t, protocol.EventUserID, <-seen)
	assert.Equal(t, protocol.EventRoomState, <-seen)

	require.NoError(t, a.ClearCanvas())
	select {
	case ev := <-seen:
		assert.Equal(t, protocol.EventCanvasCleared, ev)
	case <-time.After(waitFor):
		t.Fatal("no canvas-cleared event")
	}
}

func TestSession_ReconnectRejoins(t *testing.T) {
	reg := room.NewRegistry(room.WithLogger(quiet()))
	require.NoError(t, reg.Replace("r1", []element.Element{rect("seed")}))
	real := server.New(reg, server.Options{Logger: quiet()}).Handler()

	// the first connection is dropped right after join-room
	var calls atomic.Int32
	upgrader := websocket.Upgrader{}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) > 1 {
			real.ServeHTTP(w, r)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conn.ReadMessage()
		conn.Close()
	}))
	t.Cleanup(ts.Close)

	s, err := New(Options{URL: wsURL(ts), RoomID: "r1", UserName: "Alice", ReconnectDelay: 20 * time.Millisecond, Logger: quiet()})
	require.NoError(t, err)
	s.Presence().Move(protocol.CursorMoved{ID: "ghost", X: 1, Y: 1})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	wctx, wcancel := context.WithTimeout(context.Background(), waitFor)
	defer wcancel()
	require.NoError(t, s.WaitState(wctx, StateJoined))

	assert.GreaterOrEqual(t, calls.Load(), int32(2))
	assert.Equal(t, []string{"seed"}, ids(s.Board().Elements()))
	assert.Empty(t, s.Presence().Cursors())

	cancel()
	require.NoError(t, <-done)
	assert.ErrorIs(t, s.Run(context.Background()), ErrClosed)
	assert.ErrorIs(t, s.AddElement(rect("late")), ErrClosed)
	assert.Eventually(t, func() bool { return reg.Stats().Users == 0 }, waitFor, 10*time.Millisecond)
}
