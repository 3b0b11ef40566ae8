package room

import (
	"context"
	"time"
)

// Sweep evicts rooms that have had no users and no connections for at least ttl
// and returns their ids. A non-positive ttl evicts nothing.
func (reg *Registry) Sweep(ttl time.Duration) []string {
	if ttl <= 0 {
		return nil
	}
	now := reg.now()

	reg.mu.Lock()
	defer reg.mu.Unlock()

	var evicted []string
	for id, r := range reg.rooms {
		r.mu.Lock()
		if r.idle() && now.Sub(r.lastActive) >= ttl {
			r.evicted = true
			delete(reg.rooms, id)
			evicted = append(evicted, id)
		}
		r.mu.Unlock()
	}
	return evicted
}

// RunJanitor sweeps idle rooms every interval until ctx is done.
func (reg *Registry) RunJanitor(ctx context.Context, interval, ttl time.Duration) error {
	if ttl <= 0 || interval <= 0 {
		reg.log.Info("idle room eviction disabled")
		<-ctx.Done()
		return nil
	}

	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			if evicted := reg.Sweep(ttl); len(evicted) > 0 {
				reg.log.Info("evicted idle rooms", "count", len(evicted), "rooms", evicted)
			}
		case <-ctx.Done():
			return nil
		}
	}
}
