package lanes

import (
	"sync"
	"time"
)

// Deduper remembers accepted command ids.
type Deduper interface {
	// Remember records id and reports whether it was new.
	Remember(id string) (bool, error)
	// Forget drops id so it may be submitted again.
	Forget(id string) error
}

// memoryDeduper is the Deduper used when no journal is configured.
type memoryDeduper struct {
	mu   sync.Mutex
	seen map[string]time.Time
	now  func() time.Time
}

func newMemoryDeduper() *memoryDeduper {
	return &memoryDeduper{seen: make(map[string]time.Time), now: time.Now}
}

func (d *memoryDeduper) Remember(id string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.seen[id]; ok {
		return false, nil
	}
	d.seen[id] = d.now()
	return true, nil
}

func (d *memoryDeduper) Forget(id string) error {
	d.mu.Lock()
	delete(d.seen, id)
	d.mu.Unlock()
	return nil
}

// expire drops ids remembered before cutoff.
func (d *memoryDeduper) expire(cutoff time.Time) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for id, at := range d.seen {
		if at.Before(cutoff) {
			delete(d.seen, id)
			n++
		}
	}
	return n
}
