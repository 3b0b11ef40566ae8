package room

import (
	"sort"
	"time"
)

// Summary describes one room for listings.
type Summary struct {
	ID         string    `json:"id"`
	Elements   int       `json:"elements"`
	Users      int       `json:"users"`
	LastActive time.Time `json:"lastActive"`
}

// Stats is a point-in-time count over every room.
type Stats struct {
	Rooms       int `json:"rooms"`
	Users       int `json:"users"`
	Connections int `json:"connections"`
}

// Rooms lists every room, ordered by id.
func (reg *Registry) Rooms() []Summary {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	out := make([]Summary, 0, len(reg.rooms))
	for _, r := range reg.rooms {
		r.mu.Lock()
		out = append(out, Summary{
			ID:         r.ID,
			Elements:   len(r.elements),
			Users:      len(r.users),
			LastActive: r.lastActive,
		})
		r.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Stats totals rooms, users and local connections.
func (reg *Registry) Stats() Stats {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	s := Stats{Rooms: len(reg.rooms)}
	for _, r := range reg.rooms {
		r.mu.Lock()
		s.Users += len(r.users)
		s.Connections += len(r.peers)
		r.mu.Unlock()
	}
	return s
}
