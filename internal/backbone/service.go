package backbone

import (
	"context"
	"sync"
	"sync/atomic"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	logpkg "github.com/rzbill/listsync/pkg/log"
)

const (
	serviceName     = "listsync.backbone.v1.Backbone"
	publishMethod   = "/" + serviceName + "/Publish"
	subscribeMethod = "/" + serviceName + "/Subscribe"

	// subscriberBuffer bounds messages queued for one remote subscriber.
	subscriberBuffer = 4096
)

// PublishRequest is the Publish call body.
type PublishRequest struct {
	Topic   string `json:"topic"`
	Payload []byte `json:"payload"`
}

// PublishResponse is the Publish reply.
type PublishResponse struct{}

// SubscribeRequest opens a Subscribe stream.
type SubscribeRequest struct {
	Topic string `json:"topic"`
}

// Message is one streamed message. The first message of every stream has
// Ready set and no payload; it confirms the subscription is live.
type Message struct {
	Ready   bool   `json:"ready,omitempty"`
	Payload []byte `json:"payload,omitempty"`
}

// backboneServer is the handler type of the service descriptor.
type backboneServer interface {
	publish(ctx context.Context, req *PublishRequest) (*PublishResponse, error)
	subscribe(req *SubscribeRequest, stream grpc.ServerStream) error
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*backboneServer)(nil),
	Methods: []grpc.MethodDesc{{
		MethodName: "Publish",
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(PublishRequest)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return srv.(backboneServer).publish(ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: publishMethod}
			handler := func(ctx context.Context, req any) (any, error) {
				return srv.(backboneServer).publish(ctx, req.(*PublishRequest))
			}
			return interceptor(ctx, in, info, handler)
		},
	}},
	Streams: []grpc.StreamDesc{{
		StreamName:    "Subscribe",
		ServerStreams: true,
		Handler: func(srv any, stream grpc.ServerStream) error {
			in := new(SubscribeRequest)
			if err := stream.RecvMsg(in); err != nil {
				return err
			}
			return srv.(backboneServer).subscribe(in, stream)
		},
	}},
	Metadata: "listsync/backbone/v1/backbone.proto",
}

var subscribeStreamDesc = grpc.StreamDesc{StreamName: "Subscribe", ServerStreams: true}

// Service exposes a local Bus to remote processes.
type Service struct {
	bus      Bus
	logger   logpkg.Logger
	streams  atomic.Int64
	done     chan struct{}
	shutdown sync.Once
}

// Register adds the backbone service for bus to s.
func Register(s *grpc.Server, bus Bus, logger logpkg.Logger) *Service {
	svc := &Service{bus: bus, logger: logger.With(logpkg.Component("backbone")), done: make(chan struct{})}
	s.RegisterService(&serviceDesc, svc)
	return svc
}

// Shutdown ends every open Subscribe stream with Unavailable so that a
// graceful server stop does not wait on them. Subscribers reconnect.
func (s *Service) Shutdown() {
	s.shutdown.Do(func() { close(s.done) })
}

// Streams returns the number of open remote subscriptions.
func (s *Service) Streams() int64 { return s.streams.Load() }

func (s *Service) publish(ctx context.Context, req *PublishRequest) (*PublishResponse, error) {
	if req.Topic == "" {
		return nil, status.Error(codes.InvalidArgument, "topic is required")
	}
	if err := s.bus.Publish(ctx, req.Topic, req.Payload); err != nil {
		if err == ErrClosed {
			return nil, status.Error(codes.Unavailable, err.Error())
		}
		return nil, status.Error(codes.Internal, err.Error())
	}
	return &PublishResponse{}, nil
}

func (s *Service) subscribe(req *SubscribeRequest, stream grpc.ServerStream) error {
	if req.Topic == "" {
		return status.Error(codes.InvalidArgument, "topic is required")
	}
	ctx := stream.Context()
	out := make(chan []byte, subscriberBuffer)
	overflow := make(chan struct{})
	var overflowed atomic.Bool

	sub, err := s.bus.Subscribe(ctx, req.Topic, func(_ context.Context, msg []byte) {
		select {
		case out <- msg:
		default:
			if overflowed.CompareAndSwap(false, true) {
				close(overflow)
			}
		}
	})
	if err != nil {
		return status.Error(codes.Unavailable, err.Error())
	}
	defer sub.Close()

	s.streams.Add(1)
	defer s.streams.Add(-1)
	s.logger.Debug("remote subscriber attached", logpkg.Str("topic", req.Topic))

	if err := stream.SendMsg(&Message{Ready: true}); err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.done:
			return status.Error(codes.Unavailable, "backbone shutting down")
		case <-overflow:
			s.logger.Warn("remote subscriber too slow, detaching", logpkg.Str("topic", req.Topic))
			return status.Error(codes.ResourceExhausted, "subscriber buffer full")
		case msg := <-out:
			if err := stream.SendMsg(&Message{Payload: msg}); err != nil {
				return err
			}
		}
	}
}
