package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/haal01/whiteboard/internal/config"
	"github.com/haal01/whiteboard/internal/protocol"
	"github.com/haal01/whiteboard/internal/session"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var (
	joinRoom string
	joinName string
	joinURL  string
)

var joinCmd = &cobra.Command{
	Use:   "join",
	Short: "Join a room as a headless client and log its activity",
	Args:  cobra.NoArgs,
	RunE:  runJoin,
}

func init() {
	joinCmd.Flags().StringVar(&joinRoom, "room", "", "room id")
	joinCmd.Flags().StringVar(&joinName, "name", "", "display name")
	joinCmd.Flags().StringVar(&joinURL, "url", "", "server url (defaults to client.server_url)")
	_ = joinCmd.MarkFlagRequired("room")
	_ = joinCmd.MarkFlagRequired("name")
	rootCmd.AddCommand(joinCmd)
}

func runJoin(_ *cobra.Command, _ []string) error {
	cfg := config.Load()
	log := slog.Default()
	url := cfg.Client.ServerURL
	if joinURL != "" {
		url = joinURL
	}

	var s *session.Session
	s, err := session.New(session.Options{
		URL:            url,
		RoomID:         joinRoom,
		UserName:       joinName,
		CursorInterval: cfg.Client.CursorInterval,
		ReconnectDelay: cfg.Client.ReconnectDelay,
		Logger:         log,
		OnEvent:        func(m protocol.Message) { logEvent(log, s, m) },
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.Run(gctx) })
	g.Go(func() error {
		changes, unsubscribe := s.Board().Subscribe()
		defer unsubscribe()
		for {
			select {
			case <-changes:
				log.Debug("canvas changed", "elements", len(s.Board().Elements()))
			case <-gctx.Done():
				return nil
			}
		}
	})

	err = g.Wait()
	log.Info("left room", "room", joinRoom)
	return err
}

func logEvent(log *slog.Logger, s *session.Session, m protocol.Message) {
	switch m.Type {
	case protocol.EventRoomState:
		log.Info("joined room", "id", s.UserID(), "elements", len(s.Board().Elements()), "users", len(s.Presence().Users()))
	case protocol.EventUsersUpdated:
		names := make([]string, 0)
		for _, u := range s.Presence().Users() {
			names = append(names, u.Name)
		}
		log.Info("roster", "users", names)
	case protocol.EventCursorMoved:
		log.Debug("cursor", "cursors", len(s.Presence().Cursors()))
	case protocol.EventUserID:
	default:
		log.Info("canvas event", "event", m.Type, "elements", len(s.Board().Elements()))
	}
}
