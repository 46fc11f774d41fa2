package backbone

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	logpkg "github.com/rzbill/listsync/pkg/log"
)

// Remote is a Bus client for a hub's backbone service. Subscriptions
// reconnect with backoff when the stream breaks; messages published while
// disconnected are not replayed.
type Remote struct {
	conn   *grpc.ClientConn
	owned  bool
	logger logpkg.Logger

	mu     sync.Mutex
	subs   map[*remoteSub]struct{}
	closed bool
}

// Dial connects to the hub at addr.
func Dial(addr string, logger logpkg.Logger, opts ...grpc.DialOption) (*Remote, error) {
	base := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(CodecName)),
	}
	conn, err := grpc.NewClient(addr, append(base, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("dial hub %s: %w", addr, err)
	}
	r := NewRemote(conn, logger)
	r.owned = true
	return r, nil
}

// NewRemote wraps an existing connection. The caller keeps ownership of conn.
func NewRemote(conn *grpc.ClientConn, logger logpkg.Logger) *Remote {
	return &Remote{
		conn:   conn,
		logger: logger.With(logpkg.Component("backbone")),
		subs:   make(map[*remoteSub]struct{}),
	}
}

func (r *Remote) isClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

// Publish sends msg to the hub, which fans it out to topic subscribers.
func (r *Remote) Publish(ctx context.Context, topic string, msg []byte) error {
	if r.isClosed() {
		return ErrClosed
	}
	return r.conn.Invoke(ctx, publishMethod, &PublishRequest{Topic: topic, Payload: msg}, &PublishResponse{},
		grpc.CallContentSubtype(CodecName))
}

type remoteSub struct {
	r      *Remote
	topic  string
	h      Handler
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// Subscribe opens a stream for topic and returns once the hub confirms it.
// The subscription then survives stream failures until Close.
func (r *Remote) Subscribe(ctx context.Context, topic string, h Handler) (Subscription, error) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, ErrClosed
	}
	sctx, cancel := context.WithCancel(context.Background())
	s := &remoteSub{r: r, topic: topic, h: h, ctx: sctx, cancel: cancel, done: make(chan struct{})}
	r.subs[s] = struct{}{}
	r.mu.Unlock()

	ready := make(chan error, 1)
	go s.run(ready)
	select {
	case err := <-ready:
		if err != nil {
			_ = s.Close()
			return nil, err
		}
		return s, nil
	case <-ctx.Done():
		_ = s.Close()
		return nil, ctx.Err()
	}
}

func (s *remoteSub) open() (grpc.ClientStream, error) {
	stream, err := s.r.conn.NewStream(s.ctx, &subscribeStreamDesc, subscribeMethod, grpc.CallContentSubtype(CodecName))
	if err != nil {
		return nil, err
	}
	if err := stream.SendMsg(&SubscribeRequest{Topic: s.topic}); err != nil {
		return nil, err
	}
	if err := stream.CloseSend(); err != nil {
		return nil, err
	}
	var first Message
	if err := stream.RecvMsg(&first); err != nil {
		return nil, err
	}
	if !first.Ready {
		return nil, errors.New("backbone: stream opened without ready marker")
	}
	return stream, nil
}

func (s *remoteSub) run(ready chan<- error) {
	defer close(s.done)
	backoff := 100 * time.Millisecond
	first := true
	for {
		stream, err := s.open()
		if err == nil {
			if first {
				ready <- nil
				first = false
			} else {
				s.r.logger.Info("backbone stream restored", logpkg.Str("topic", s.topic))
			}
			backoff = 100 * time.Millisecond
			err = s.pump(stream)
		}
		if s.ctx.Err() != nil {
			if first {
				ready <- s.ctx.Err()
			}
			return
		}
		s.r.logger.Warn("backbone stream lost", logpkg.Str("topic", s.topic), logpkg.Err(err), logpkg.Dur("retry_ms", backoff))
		select {
		case <-time.After(backoff):
		case <-s.ctx.Done():
			if first {
				ready <- s.ctx.Err()
			}
			return
		}
		if backoff < 5*time.Second {
			backoff *= 2
		}
	}
}

func (s *remoteSub) pump(stream grpc.ClientStream) error {
	for {
		var m Message
		if err := stream.RecvMsg(&m); err != nil {
			if errors.Is(err, io.EOF) {
				return errors.New("hub closed the stream")
			}
			return err
		}
		if m.Ready {
			continue
		}
		s.h(s.ctx, m.Payload)
	}
}

func (s *remoteSub) Close() error {
	s.cancel()
	<-s.done
	s.r.mu.Lock()
	delete(s.r.subs, s)
	s.r.mu.Unlock()
	return nil
}

// Close ends every subscription and, when Remote dialed it, the connection.
func (r *Remote) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	subs := make([]*remoteSub, 0, len(r.subs))
	for s := range r.subs {
		subs = append(subs, s)
	}
	r.mu.Unlock()
	for _, s := range subs {
		_ = s.Close()
	}
	if r.owned {
		return r.conn.Close()
	}
	return nil
}
