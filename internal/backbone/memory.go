package backbone

import (
	"context"
	"sync"
	"sync/atomic"
)

// Memory is an in-process Bus. Handlers run synchronously on the publishing
// goroutine in subscription order. Concurrent publishers may invoke a handler
// concurrently.
type Memory struct {
	mu     sync.RWMutex
	subs   map[string][]*memSub
	closed bool
	nextID uint64

	published atomic.Int64
	delivered atomic.Int64
}

type memSub struct {
	id    uint64
	topic string
	h     Handler
	bus   *Memory
	once  sync.Once
}

// NewMemory returns an empty in-memory bus.
func NewMemory() *Memory {
	return &Memory{subs: make(map[string][]*memSub)}
}

// Publish delivers msg to every current subscriber of topic.
func (m *Memory) Publish(ctx context.Context, topic string, msg []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return ErrClosed
	}
	subs := append([]*memSub(nil), m.subs[topic]...)
	m.mu.RUnlock()

	m.published.Add(1)
	for _, s := range subs {
		s.h(ctx, msg)
		m.delivered.Add(1)
	}
	return nil
}

// Subscribe registers h for topic until the subscription is closed.
func (m *Memory) Subscribe(_ context.Context, topic string, h Handler) (Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	m.nextID++
	s := &memSub{id: m.nextID, topic: topic, h: h, bus: m}
	m.subs[topic] = append(m.subs[topic], s)
	return s, nil
}

func (s *memSub) Close() error {
	s.once.Do(func() {
		m := s.bus
		m.mu.Lock()
		defer m.mu.Unlock()
		list := m.subs[s.topic]
		for i, x := range list {
			if x.id == s.id {
				m.subs[s.topic] = append(list[:i:i], list[i+1:]...)
				break
			}
		}
		if len(m.subs[s.topic]) == 0 {
			delete(m.subs, s.topic)
		}
	})
	return nil
}

// Close drops all subscribers and rejects further use.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.subs = make(map[string][]*memSub)
	return nil
}

// Stats returns traffic counters.
func (m *Memory) Stats() Stats {
	m.mu.RLock()
	n := 0
	for _, l := range m.subs {
		n += len(l)
	}
	m.mu.RUnlock()
	return Stats{Published: m.published.Load(), Delivered: m.delivered.Load(), Subscribers: n}
}
