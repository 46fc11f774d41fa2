package dispatch

import (
	"context"
	"fmt"

	"github.com/rzbill/listsync/internal/backbone"
	"github.com/rzbill/listsync/internal/command"
)

// Router publishes commands for the hub's lanes.
type Router struct {
	bus    backbone.Bus
	origin string
}

// NewRouter returns a Router for the gateway whose node id is origin. Commands
// are expected to carry the same origin in their Meta.
func NewRouter(bus backbone.Bus, origin string) *Router {
	return &Router{bus: bus, origin: origin}
}

// Origin returns the local gateway's node id.
func (r *Router) Origin() string { return r.origin }

// Route validates cmd and publishes it to the commands topic.
func (r *Router) Route(ctx context.Context, cmd command.Command) error {
	if err := cmd.Validate(); err != nil {
		return err
	}
	b, err := command.Encode(cmd)
	if err != nil {
		return err
	}
	if err := r.bus.Publish(ctx, backbone.TopicCommands, b); err != nil {
		return fmt.Errorf("route %s %s: %w", cmd.Kind(), cmd.Metadata().CommandID, err)
	}
	return nil
}
