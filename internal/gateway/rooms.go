package gateway

import "sync"

// rooms tracks connections per room key.
type rooms struct {
	mu      sync.RWMutex
	members map[string]map[*conn]struct{}
	byID    map[string]*conn
}

func newRooms() *rooms {
	return &rooms{members: make(map[string]map[*conn]struct{}), byID: make(map[string]*conn)}
}

// join adds c and reports whether it is the first member of its room.
func (r *rooms) join(c *conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.members[c.room]
	if !ok {
		set = make(map[*conn]struct{})
		r.members[c.room] = set
	}
	set[c] = struct{}{}
	r.byID[c.id] = c
	return !ok
}

// leave removes c and reports whether its room is now empty.
func (r *rooms) leave(c *conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byID, c.id)
	set, ok := r.members[c.room]
	if !ok {
		return false
	}
	if _, in := set[c]; !in {
		return false
	}
	delete(set, c)
	if len(set) == 0 {
		delete(r.members, c.room)
		return true
	}
	return false
}

// snapshot returns the current members of room.
func (r *rooms) snapshot(room string) []*conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*conn, 0, len(r.members[room]))
	for c := range r.members[room] {
		out = append(out, c)
	}
	return out
}

func (r *rooms) lookup(id string) (*conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.byID[id]
	return c, ok
}

func (r *rooms) all() []*conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*conn, 0, len(r.byID))
	for _, c := range r.byID {
		out = append(out, c)
	}
	return out
}

func (r *rooms) counts() (roomCount, connCount int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.members), len(r.byID)
}
