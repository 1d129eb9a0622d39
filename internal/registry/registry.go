package registry

import (
	"sync"
)

const shardCount = 32

// Registry maps a user to the set of live connections it currently
// holds. It is the only structure shared across rooms, so it uses
// per-shard locks keyed by userID instead of one global lock.
type Registry struct {
	shards [shardCount]shard
}

type shard struct {
	mu    sync.RWMutex
	conns map[int64]map[string]*Conn // userID -> connID -> conn
}

// New creates an empty Registry.
func New() *Registry {
	r := &Registry{}
	for i := range r.shards {
		r.shards[i].conns = make(map[int64]map[string]*Conn)
	}
	return r
}

func (r *Registry) shardFor(userID int64) *shard {
	return &r.shards[uint64(userID)%shardCount]
}

// Register adds a connection to its user's set.
func (r *Registry) Register(c *Conn) {
	s := r.shardFor(c.UserID)
	s.mu.Lock()
	defer s.mu.Unlock()

	set, ok := s.conns[c.UserID]
	if !ok {
		set = make(map[string]*Conn)
		s.conns[c.UserID] = set
	}
	set[c.ID] = c
}

// Unregister removes a connection. Returns true if this was the user's
// last registered connection.
func (r *Registry) Unregister(c *Conn) bool {
	s := r.shardFor(c.UserID)
	s.mu.Lock()
	defer s.mu.Unlock()

	set, ok := s.conns[c.UserID]
	if !ok {
		return true
	}
	delete(set, c.ID)
	if len(set) == 0 {
		delete(s.conns, c.UserID)
		return true
	}
	return false
}

// ConnectionsFor returns a snapshot of the user's live connections.
func (r *Registry) ConnectionsFor(userID int64) []*Conn {
	s := r.shardFor(userID)
	s.mu.RLock()
	defer s.mu.RUnlock()

	set := s.conns[userID]
	out := make([]*Conn, 0, len(set))
	for _, c := range set {
		out = append(out, c)
	}
	return out
}

// CountFor returns how many connections the user currently holds.
func (r *Registry) CountFor(userID int64) int {
	s := r.shardFor(userID)
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.conns[userID])
}

// IsPresent reports whether the user has at least one open connection.
// A user closing one tab while another stays open is still present.
func (r *Registry) IsPresent(userID int64) bool {
	return r.CountFor(userID) > 0
}
