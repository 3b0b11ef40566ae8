// Package relay fans room deltas out across server processes over Redis pub/sub.
//
// Each process applies deltas from its own connections and publishes them; every
// other process applies them to its copy of the room and delivers them to its local
// connections. A process that starts late has no prior history for rooms already in
// use, and the roster entries of a process that crashes are not reaped.
package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/haal01/whiteboard/internal/protocol"
	"github.com/redis/go-redis/v9"
)

// DefaultPrefix is prepended to the room id to form the pub/sub channel.
const DefaultPrefix = "whiteboard:rooms:"

const outboxSize = 1024

// Applier applies a delta received from another process.
type Applier interface {
	ApplyReplicated(roomID string, msg protocol.Message) error
}

// Envelope is the frame published for one delta.
type Envelope struct {
	Origin  string           `json:"origin"`
	Room    string           `json:"room"`
	Message protocol.Message `json:"message"`
}

// Redis is a replicator backed by Redis pub/sub.
type Redis struct {
	client *redis.Client
	prefix string
	origin string
	log    *slog.Logger
	outbox chan Envelope
}

// NewRedis creates a relay using client. An empty prefix uses DefaultPrefix.
func NewRedis(client *redis.Client, prefix string, log *slog.Logger) *Redis {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	if log == nil {
		log = slog.Default()
	}
	origin := uuid.NewString()
	return &Redis{
		client: client,
		prefix: prefix,
		origin: origin,
		log:    log.With("relay", origin),
		outbox: make(chan Envelope, outboxSize),
	}
}

// Origin is the id stamped on frames published by this process.
func (r *Redis) Origin() string { return r.origin }

// Replicate queues msg for publishing. It is called under the room lock, so it only
// enqueues; a full outbox drops the delta with a warning.
func (r *Redis) Replicate(roomID string, msg protocol.Message) {
	select {
	case r.outbox <- Envelope{Origin: r.origin, Room: roomID, Message: msg}:
	default:
		r.log.Warn("relay outbox full, dropping delta", "room", roomID, "event", msg.Type)
	}
}

// Publish drains the outbox until ctx is done. Queue order is publish order, so
// each room's deltas leave in the order the room applied them.
func (r *Redis) Publish(ctx context.Context) error {
	for {
		select {
		case env := <-r.outbox:
			payload, err := json.Marshal(env)
			if err != nil {
				r.log.Error("encode relay frame", "room", env.Room, "err", err)
				continue
			}
			if err := r.client.Publish(ctx, r.prefix+env.Room, payload).Err(); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				r.log.Error("publish delta", "room", env.Room, "event", env.Message.Type, "err", err)
			}
		case <-ctx.Done():
			return nil
		}
	}
}

// Subscribe receives frames from every room channel and applies the ones published
// by other processes until ctx is done.
func (r *Redis) Subscribe(ctx context.Context, dst Applier) error {
	sub := r.client.PSubscribe(ctx, r.prefix+"*")
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s*: %w", r.prefix, err)
	}
	r.log.Info("relay subscribed", "pattern", r.prefix+"*")

	ch := sub.Channel()
	for {
		select {
		case m, ok := <-ch:
			if !ok {
				return nil
			}
			r.handle(dst, m)
		case <-ctx.Done():
			return nil
		}
	}
}

func (r *Redis) handle(dst Applier, m *redis.Message) {
	var env Envelope
	if err := json.Unmarshal([]byte(m.Payload), &env); err != nil {
		r.log.Debug("skipping malformed relay frame", "channel", m.Channel, "err", err)
		return
	}
	if env.Origin == r.origin {
		return
	}
	if env.Room == "" {
		env.Room = strings.TrimPrefix(m.Channel, r.prefix)
	}
	if err := dst.ApplyReplicated(env.Room, env.Message); err != nil {
		r.log.Debug("skipping relay frame", "room", env.Room, "event", env.Message.Type, "err", err)
	}
}
