// Package server exposes the room registry over a WebSocket event channel and a small
// REST surface for room snapshots.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/haal01/whiteboard/internal/element"
	"github.com/haal01/whiteboard/internal/room"
)

var errMissingRoom = errors.New("room id is required")

// DefaultSendBuffer is the outbound queue depth of one connection.
const DefaultSendBuffer = 256

// Options configures a Server.
type Options struct {
	Addr       string
	SendBuffer int
	Debug      bool
	Logger     *slog.Logger
}

// Server serves the whiteboard event channel.
type Server struct {
	registry   *room.Registry
	log        *slog.Logger
	sendBuffer int
	upgrader   websocket.Upgrader
	engine     *gin.Engine
	http       *http.Server

	mu      sync.Mutex
	clients map[string]*Client
	wg      sync.WaitGroup
}

// New builds a server around the registry.
func New(reg *room.Registry, opts Options) *Server {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = DefaultSendBuffer
	}
	if opts.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		registry:   reg,
		log:        log,
		sendBuffer: opts.SendBuffer,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true // no authentication, any origin may draw
			},
		},
		clients: make(map[string]*Client),
	}

	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(log))
	r.GET("/health", s.health)
	r.GET("/ws", s.handleWebSocket)
	api := r.Group("/api")
	api.GET("/rooms", s.listRooms)
	api.GET("/rooms/:roomId", s.getRoom)
	api.PUT("/rooms/:roomId/elements", s.replaceElements)
	s.engine = r

	s.http = &http.Server{
		Addr:              opts.Addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler returns the HTTP handler, for embedding or tests.
func (s *Server) Handler() http.Handler { return s.engine }

// ListenAndServe blocks serving HTTP until Shutdown.
func (s *Server) ListenAndServe() error {
	s.log.Info("server starting", "addr", s.http.Addr)
	if err := s.http.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting connections, closes every WebSocket and waits for each
// to finish its leave path.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.http.Shutdown(ctx)

	s.mu.Lock()
	for _, c := range s.clients {
		c.Close()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return errors.Join(err, ctx.Err())
	}
	return err
}

func (s *Server) track(c *Client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clients[c.ID()] = c
}

func (s *Server) untrack(c *Client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.clients, c.ID())
}

func (s *Server) handleWebSocket(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.Warn("websocket upgrade error", "err", err)
		return
	}

	client := newClient(uuid.NewString(), conn, s.registry, s.log, s.sendBuffer)
	s.track(client)
	s.wg.Add(1)
	defer func() {
		s.untrack(client)
		s.wg.Done()
	}()
	client.log.Info("client connected", "remote", c.Request.RemoteAddr)

	// Start pumps
	go client.writePump()
	client.readPump()
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"stats":  s.registry.Stats(),
	})
}

func (s *Server) listRooms(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"rooms": s.registry.Rooms()})
}

func (s *Server) getRoom(c *gin.Context) {
	state, ok := s.registry.Snapshot(c.Param("roomId"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": "Room not found"})
		return
	}
	c.JSON(http.StatusOK, state)
}

func (s *Server) replaceElements(c *gin.Context) {
	var elements []element.Element
	if err := c.ShouldBindJSON(&elements); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": err.Error()})
		return
	}
	if err := s.registry.Replace(c.Param("roomId"), elements); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation_error", "message": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}
