// Package backbone carries commands and results between processes.
//
// A Bus is a topic fan-out: every subscriber of a topic receives every
// message published to it, in publish order. Memory serves a single process.
// A hub process exposes its Memory bus over gRPC with Register, and other
// processes join it through Remote.
//
// Example:
//
//	bus := backbone.NewMemory()
//	sub, _ := bus.Subscribe(ctx, backbone.TopicResults, func(ctx context.Context, msg []byte) {
//		// deliver to sockets
//	})
//	defer sub.Close()
//	_ = bus.Publish(ctx, backbone.TopicResults, payload)
package backbone
