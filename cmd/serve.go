package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/haal01/whiteboard/internal/config"
	"github.com/haal01/whiteboard/internal/relay"
	"github.com/haal01/whiteboard/internal/room"
	"github.com/haal01/whiteboard/internal/server"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 30 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the whiteboard room server",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(_ *cobra.Command, _ []string) error {
	cfg := config.Load()
	log := slog.Default()

	reg := room.NewRegistry(room.WithLogger(log))
	srv := server.New(reg, server.Options{
		Addr:       cfg.Addr(),
		SendBuffer: cfg.Rooms.SendBuffer,
		Debug:      cfg.Debug,
		Logger:     log,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	var rdb *redis.Client
	if cfg.Relay.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.Relay.RedisAddr})
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("connect redis %s: %w", cfg.Relay.RedisAddr, err)
		}
		rel := relay.NewRedis(rdb, cfg.Relay.ChannelPrefix, log)
		reg.SetReplicator(rel)
		g.Go(func() error { return rel.Publish(gctx) })
		g.Go(func() error { return rel.Subscribe(gctx, reg) })
		log.Info("redis relay enabled", "addr", cfg.Relay.RedisAddr, "origin", rel.Origin())
	}

	g.Go(func() error { return reg.RunJanitor(gctx, cfg.Rooms.SweepInterval, cfg.Rooms.IdleTTL) })
	g.Go(srv.ListenAndServe)

	errc := make(chan error, 1)
	go func() { errc <- g.Wait() }()

	wait := gfshutdown.GracefulShutdown(
		context.Background(),
		shutdownTimeout,
		map[string]gfshutdown.Operation{
			"server": func(ctx context.Context) error {
				log.Info("graceful shutdown initiated")
				err := srv.Shutdown(ctx)
				cancel()
				if rdb != nil {
					if cerr := rdb.Close(); cerr != nil && err == nil {
						err = cerr
					}
				}
				return err
			},
		},
	)

	var code int
	select {
	case err := <-errc:
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
		code = <-wait
	case code = <-wait:
	}
	log.Info("server exited", "code", code)
	if code != 0 {
		return fmt.Errorf("shutdown finished with exit code %d", code)
	}
	return nil
}
