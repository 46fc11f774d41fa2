package backbone

import (
	"context"
	"errors"
)

// Topics used by the command pipeline.
const (
	// TopicCommands carries encoded command envelopes from gateways to the hub.
	TopicCommands = "commands"
	// TopicResults carries encoded results from the hub to every gateway.
	TopicResults = "results"
)

// ErrClosed is returned after a bus has been closed.
var ErrClosed = errors.New("backbone: closed")

// Handler receives one message. It must not block for long.
type Handler func(ctx context.Context, msg []byte)

// Subscription is an active topic subscription.
type Subscription interface {
	Close() error
}

// Bus publishes opaque messages to topic subscribers.
type Bus interface {
	Publish(ctx context.Context, topic string, msg []byte) error
	Subscribe(ctx context.Context, topic string, h Handler) (Subscription, error)
	Close() error
}

// Stats counts bus traffic.
type Stats struct {
	Published   int64 `json:"published"`
	Delivered   int64 `json:"delivered"`
	Subscribers int   `json:"subscribers"`
}
