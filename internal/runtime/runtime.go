package runtime

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/rzbill/listsync/internal/auth"
	"github.com/rzbill/listsync/internal/backbone"
	cfgpkg "github.com/rzbill/listsync/internal/config"
	"github.com/rzbill/listsync/internal/dispatch"
	"github.com/rzbill/listsync/internal/gateway"
	"github.com/rzbill/listsync/internal/journal"
	"github.com/rzbill/listsync/internal/lanes"
	pebblestore "github.com/rzbill/listsync/internal/storage/pebble"
	"github.com/rzbill/listsync/internal/store"
	"github.com/rzbill/listsync/pkg/id"
	logpkg "github.com/rzbill/listsync/pkg/log"
)

// Options for building the Runtime.
type Options struct {
	Config cfgpkg.Config
	Logger logpkg.Logger
	// Bus replaces the backbone a role would build for itself. Tests use it to
	// join a gateway runtime to an in-process hub.
	Bus backbone.Bus
}

// Runtime wires storage, lanes, the backbone and the gateway for one
// process. Which parts exist depends on the configured role.
type Runtime struct {
	config cfgpkg.Config
	logger logpkg.Logger
	nodeID string

	store   *store.SQLite
	db      *pebblestore.DB
	metrics *pebblestore.Counters
	journal *journal.Journal

	bus      backbone.Bus
	ownsBus  bool
	local    *backbone.Memory
	disp     *dispatch.Dispatcher
	registry *lanes.Registry
	router   *dispatch.Router
	issuer   *auth.Issuer
	gateway  *gateway.Gateway
}

// Open builds the components for opts.Config.Role. Lanes recover journaled
// commands before Open returns.
func Open(ctx context.Context, opts Options) (rt *Runtime, err error) {
	cfg := opts.Config
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = logpkg.NewLogger()
	}
	rt = &Runtime{config: cfg, logger: logger, nodeID: cfg.NodeID}
	if rt.nodeID == "" {
		rt.nodeID = id.New("node")
	}
	defer func() {
		if err != nil {
			_ = rt.Close()
			rt = nil
		}
	}()

	rt.issuer, err = auth.NewIssuer(cfg.Auth.Secret, cfg.Auth.TokenTTL.Duration)
	if err != nil {
		return nil, err
	}

	switch {
	case opts.Bus != nil:
		rt.bus = opts.Bus
	case cfg.RunsLanes():
		rt.local = backbone.NewMemory()
		rt.bus, rt.ownsBus = rt.local, true
	default:
		remote, derr := backbone.Dial(cfg.HubAddr, logger)
		if derr != nil {
			return nil, derr
		}
		rt.bus, rt.ownsBus = remote, true
	}

	rt.router = dispatch.NewRouter(rt.bus, rt.nodeID)

	if cfg.RunsLanes() {
		if err := rt.openStorage(); err != nil {
			return nil, err
		}
		if err := rt.startLanes(ctx); err != nil {
			return nil, err
		}
	}
	if cfg.RunsGateway() {
		if err := rt.startGateway(ctx); err != nil {
			return nil, err
		}
	}
	return rt, nil
}

func (r *Runtime) openStorage() error {
	cfg := r.config
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	st, err := store.OpenSQLite(cfg.SQLitePath())
	if err != nil {
		return err
	}
	r.store = st
	if !cfg.Storage.Journal {
		return nil
	}
	mode, err := pebblestore.ParseFsyncMode(cfg.Storage.Fsync)
	if err != nil {
		return err
	}
	r.metrics = &pebblestore.Counters{}
	db, err := pebblestore.Open(pebblestore.Options{DataDir: cfg.JournalDir(), Fsync: mode, Metrics: r.metrics})
	if err != nil {
		return err
	}
	r.db = db
	r.journal = journal.New(db)
	return nil
}

func (r *Runtime) startLanes(ctx context.Context) error {
	lc := r.config.Lanes
	r.disp = dispatch.NewDispatcher(r.bus, r.logger)
	r.registry = lanes.NewWithLogger(r.store, r.disp, lanes.Options{
		CommandTimeout: lc.CommandTimeout.Duration,
		MaxRetries:     lc.MaxRetries,
		RetryBackoff:   lc.RetryBackoff.Duration,
		IdleTTL:        lc.IdleTTL.Duration,
		DedupeTTL:      lc.DedupeTTL.Duration,
		Journal:        r.journal,
	}, r.logger)
	if _, err := r.registry.Recover(ctx); err != nil {
		return fmt.Errorf("recover lanes: %w", err)
	}
	if err := r.disp.Start(ctx, r.registry); err != nil {
		return err
	}
	r.registry.StartSweeper(lc.SweepInterval.Duration)
	return nil
}

func (r *Runtime) startGateway(ctx context.Context) error {
	gc := r.config.Gateway
	opts := gateway.Options{
		SendBuffer:     gc.SendBuffer,
		WriteWait:      gc.WriteWait.Duration,
		PongWait:       gc.PongWait.Duration,
		MaxMessageSize: gc.MaxMessageSize,
		CheckFilter:    lanes.CheckFilter,
	}
	if r.registry != nil {
		opts.Observer = lanePins{r.registry}
	}
	r.gateway = gateway.New(r.issuer, r.router, opts, r.logger)
	return r.gateway.Start(ctx, r.bus)
}

// lanePins keeps a list's lane alive while its room has members.
type lanePins struct{ reg *lanes.Registry }

func (p lanePins) RoomOpened(listID string) { _ = p.reg.Acquire(listID) }
func (p lanePins) RoomClosed(listID string) { p.reg.Release(listID) }

// Close shuts components down in dependency order.
func (r *Runtime) Close() error {
	var errs []error
	if r.gateway != nil {
		errs = append(errs, r.gateway.Close())
	}
	if r.disp != nil {
		errs = append(errs, r.disp.Close())
	}
	if r.registry != nil {
		errs = append(errs, r.registry.Close())
	}
	if r.bus != nil && r.ownsBus {
		errs = append(errs, r.bus.Close())
	}
	if r.db != nil {
		errs = append(errs, r.db.Close())
	}
	if r.store != nil {
		errs = append(errs, r.store.Close())
	}
	return errors.Join(errs...)
}

// CheckHealth verifies the stores owned by this process.
func (r *Runtime) CheckHealth(ctx context.Context) error {
	if r.store != nil {
		if err := r.store.Ping(ctx); err != nil {
			return fmt.Errorf("sqlite: %w", err)
		}
	}
	if r.db != nil {
		it, err := r.db.NewIter(nil)
		if err != nil {
			return fmt.Errorf("journal: %w", err)
		}
		_ = it.Close()
	}
	return nil
}

// Stats gathers counters from every running component.
type Stats struct {
	NodeID   string           `json:"nodeId"`
	Role     string           `json:"role"`
	Lanes    *lanes.Stats     `json:"lanes,omitempty"`
	Dispatch *dispatch.Stats  `json:"dispatch,omitempty"`
	Gateway  *gateway.Stats   `json:"gateway,omitempty"`
	Backbone *backbone.Stats  `json:"backbone,omitempty"`
	Journal  map[string]int64 `json:"journal,omitempty"`
}

// Stats returns a snapshot of the running components.
func (r *Runtime) Stats() Stats {
	s := Stats{NodeID: r.nodeID, Role: r.config.Role}
	if r.registry != nil {
		ls := r.registry.Stats()
		s.Lanes = &ls
	}
	if r.disp != nil {
		ds := r.disp.Stats()
		s.Dispatch = &ds
	}
	if r.gateway != nil {
		gs := r.gateway.Stats()
		s.Gateway = &gs
	}
	if r.local != nil {
		bs := r.local.Stats()
		s.Backbone = &bs
	}
	if r.metrics != nil {
		s.Journal = r.metrics.Snapshot()
	}
	return s
}

// NodeID returns this process's backbone identity.
func (r *Runtime) NodeID() string { return r.nodeID }

// Config returns the runtime configuration.
func (r *Runtime) Config() cfgpkg.Config { return r.config }

// Logger returns the process logger.
func (r *Runtime) Logger() logpkg.Logger { return r.logger }

// Store returns the SQLite store, nil for gateway-only processes.
func (r *Runtime) Store() *store.SQLite { return r.store }

// Registry returns the lane registry, nil for gateway-only processes.
func (r *Runtime) Registry() *lanes.Registry { return r.registry }

// Router returns the command router.
func (r *Runtime) Router() *dispatch.Router { return r.router }

// Issuer returns the token issuer.
func (r *Runtime) Issuer() *auth.Issuer { return r.issuer }

// Gateway returns the websocket gateway, nil for hub-only processes.
func (r *Runtime) Gateway() *gateway.Gateway { return r.gateway }

// Bus returns the backbone this process publishes to.
func (r *Runtime) Bus() backbone.Bus { return r.bus }
