package dispatch

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rzbill/listsync/internal/backbone"
	"github.com/rzbill/listsync/internal/command"
	"github.com/rzbill/listsync/internal/lanes"
	logpkg "github.com/rzbill/listsync/pkg/log"
)

// Submitter accepts commands for execution. *lanes.Registry implements it.
type Submitter interface {
	Submit(ctx context.Context, cmd command.Command) error
}

// Dispatcher consumes the commands topic and publishes results.
type Dispatcher struct {
	bus     backbone.Bus
	logger  logpkg.Logger
	timeout time.Duration

	mu  sync.Mutex
	sub backbone.Subscription
	dst Submitter

	received  atomic.Int64
	rejected  atomic.Int64
	published atomic.Int64
}

var _ lanes.Emitter = (*Dispatcher)(nil)

// NewDispatcher returns a Dispatcher on bus. It does nothing until Start.
func NewDispatcher(bus backbone.Bus, logger logpkg.Logger) *Dispatcher {
	return &Dispatcher{bus: bus, logger: logger.With(logpkg.Component("dispatch")), timeout: 5 * time.Second}
}

// Start subscribes to the commands topic and submits every decoded command
// to dst.
func (d *Dispatcher) Start(ctx context.Context, dst Submitter) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.sub != nil {
		return errors.New("dispatch: already started")
	}
	d.dst = dst
	sub, err := d.bus.Subscribe(ctx, backbone.TopicCommands, d.handle)
	if err != nil {
		return err
	}
	d.sub = sub
	return nil
}

func (d *Dispatcher) handle(ctx context.Context, msg []byte) {
	d.received.Add(1)
	cmd, err := command.Decode(msg)
	if err != nil {
		d.rejected.Add(1)
		d.logger.Warn("dropping undecodable command", logpkg.Err(err))
		return
	}
	m := cmd.Metadata()
	err = d.dst.Submit(ctx, cmd)
	switch {
	case err == nil:
		return
	case errors.Is(err, lanes.ErrDuplicate):
		d.logger.Debug("duplicate command ignored",
			logpkg.Str(logpkg.ListIDKey, m.ListID), logpkg.Str(logpkg.CommandIDKey, m.CommandID))
		return
	}
	d.rejected.Add(1)
	d.logger.Warn("command rejected",
		logpkg.Str(logpkg.ListIDKey, m.ListID), logpkg.Str(logpkg.CommandIDKey, m.CommandID),
		logpkg.Str("kind", string(cmd.Kind())), logpkg.Err(err))
	if m.ConnID == "" {
		return
	}
	if perr := d.Emit(ctx, command.Rejection(m, err)); perr != nil {
		d.logger.Error("publish rejection failed", logpkg.Err(perr))
	}
}

// Emit publishes res to the results topic.
func (d *Dispatcher) Emit(ctx context.Context, res *command.Result) error {
	b, err := command.EncodeResult(res)
	if err != nil {
		return err
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}
	if err := d.bus.Publish(ctx, backbone.TopicResults, b); err != nil {
		return err
	}
	d.published.Add(1)
	return nil
}

// Stats is a snapshot of dispatcher counters.
type Stats struct {
	Received  int64 `json:"received"`
	Rejected  int64 `json:"rejected"`
	Published int64 `json:"published"`
}

// Stats returns current counters.
func (d *Dispatcher) Stats() Stats {
	return Stats{Received: d.received.Load(), Rejected: d.rejected.Load(), Published: d.published.Load()}
}

// Close stops consuming commands.
func (d *Dispatcher) Close() error {
	d.mu.Lock()
	sub := d.sub
	d.sub = nil
	d.mu.Unlock()
	if sub == nil {
		return nil
	}
	return sub.Close()
}
