package backbone

import (
	"context"
	"sync"
	"testing"
)

func TestMemoryFanOutInOrder(t *testing.T) {
	bus := NewMemory()
	defer bus.Close()
	ctx := context.Background()

	var mu sync.Mutex
	got := map[int][]string{}
	for i := 0; i < 2; i++ {
		i := i
		if _, err := bus.Subscribe(ctx, TopicResults, func(_ context.Context, msg []byte) {
			mu.Lock()
			got[i] = append(got[i], string(msg))
			mu.Unlock()
		}); err != nil {
			t.Fatalf("subscribe: %v", err)
		}
	}
	for _, m := range []string{"a", "b", "c"} {
		if err := bus.Publish(ctx, TopicResults, []byte(m)); err != nil {
			t.Fatalf("publish: %v", err)
		}
	}
	if err := bus.Publish(ctx, TopicCommands, []byte("ignored")); err != nil {
		t.Fatalf("publish: %v", err)
	}
	for i := 0; i < 2; i++ {
		if s := got[i]; len(s) != 3 || s[0] != "a" || s[1] != "b" || s[2] != "c" {
			t.Fatalf("subscriber %d got %v", i, s)
		}
	}
	st := bus.Stats()
	if st.Published != 4 || st.Delivered != 6 || st.Subscribers != 2 {
		t.Fatalf("stats: %+v", st)
	}
}

func TestMemoryUnsubscribe(t *testing.T) {
	bus := NewMemory()
	ctx := context.Background()
	n := 0
	sub, err := bus.Subscribe(ctx, "t", func(context.Context, []byte) { n++ })
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	_ = bus.Publish(ctx, "t", nil)
	if err := sub.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	_ = sub.Close()
	_ = bus.Publish(ctx, "t", nil)
	if n != 1 {
		t.Fatalf("deliveries: got %d want 1", n)
	}
	_ = bus.Close()
	if err := bus.Publish(ctx, "t", nil); err != ErrClosed {
		t.Fatalf("publish after close: %v", err)
	}
	if _, err := bus.Subscribe(ctx, "t", func(context.Context, []byte) {}); err != ErrClosed {
		t.Fatalf("subscribe after close: %v", err)
	}
}
