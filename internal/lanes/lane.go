package lanes

import (
	"sync"
	"time"

	"github.com/rzbill/listsync/internal/command"
)

type job struct {
	cmd command.Command
	// seq is the journal sequence, zero when the command was not journaled.
	seq uint64
}

// Lane is the FIFO of one list. Its worker goroutine runs at most one job at
// a time.
type Lane struct {
	id string

	mu         sync.Mutex
	queue      []job
	inflight   bool
	refs       int
	lastActive time.Time
	stopping   bool

	wake chan struct{}
	done chan struct{}
}

func newLane(id string, now time.Time) *Lane {
	return &Lane{
		id:         id,
		lastActive: now,
		wake:       make(chan struct{}, 1),
		done:       make(chan struct{}),
	}
}

// ID returns the list id served by the lane.
func (l *Lane) ID() string { return l.id }

func (l *Lane) push(j job) {
	l.mu.Lock()
	l.queue = append(l.queue, j)
	l.mu.Unlock()
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// next pops the head of the queue and marks it in flight. ok is false when
// the queue is empty.
func (l *Lane) next() (job, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.queue) == 0 {
		return job{}, false
	}
	j := l.queue[0]
	l.queue[0] = job{}
	l.queue = l.queue[1:]
	l.inflight = true
	return j, true
}

func (l *Lane) finish(now time.Time) {
	l.mu.Lock()
	l.inflight = false
	l.lastActive = now
	l.mu.Unlock()
}

// idle reports whether the lane can be reclaimed.
func (l *Lane) idle(now time.Time, ttl time.Duration) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.refs == 0 && len(l.queue) == 0 && !l.inflight && now.Sub(l.lastActive) >= ttl
}

func (l *Lane) depth() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := len(l.queue)
	if l.inflight {
		n++
	}
	return n
}

func (l *Lane) stop() {
	l.mu.Lock()
	l.stopping = true
	l.mu.Unlock()
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

func (l *Lane) stopped() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stopping
}
