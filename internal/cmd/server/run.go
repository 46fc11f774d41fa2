package serverrun

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	cfgpkg "github.com/rzbill/listsync/internal/config"
	"github.com/rzbill/listsync/internal/runtime"
	grpcserver "github.com/rzbill/listsync/internal/server/grpc"
	httpserver "github.com/rzbill/listsync/internal/server/http"
	logpkg "github.com/rzbill/listsync/pkg/log"
)

// Options configures Run.
type Options struct {
	Config cfgpkg.Config
	// Logger overrides the logger built from Config.Log.
	Logger logpkg.Logger
	// Ready, if set, is called with the bound addresses once both listeners
	// are open. grpcAddr is empty for gateway-only processes.
	Ready func(httpAddr, grpcAddr string)
}

// LoadConfig reads path (may be empty), overlays LISTSYNC_* variables and
// then applies override. Roles that own storage get the default data
// directory when none is set.
func LoadConfig(path string, override func(*cfgpkg.Config)) (cfgpkg.Config, error) {
	cfg, err := cfgpkg.Load(path)
	if err != nil {
		return cfgpkg.Config{}, err
	}
	cfgpkg.FromEnv(&cfg)
	if override != nil {
		override(&cfg)
	}
	if cfg.DataDir == "" && cfg.RunsLanes() {
		cfg.DataDir = cfgpkg.DefaultDataDir()
	}
	return cfg, nil
}

// Run opens the runtime for the configured role and serves HTTP, plus gRPC
// on hub and all roles, until ctx is cancelled or a signal arrives.
func Run(ctx context.Context, opts Options) error {
	sctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := opts.Config
	logger := opts.Logger
	if logger == nil {
		l, err := logpkg.ApplyConfig(&cfg.Log)
		if err != nil {
			return fmt.Errorf("logger: %w", err)
		}
		logger = l
		// Redirect stdlib logs (e.g., Pebble) to our logger
		logpkg.RedirectStdLog(logger)
	}

	rt, err := runtime.Open(sctx, runtime.Options{Config: cfg, Logger: logger})
	if err != nil {
		return err
	}
	defer rt.Close()

	hl, err := net.Listen("tcp", cfg.HTTPAddr)
	if err != nil {
		return fmt.Errorf("http listen: %w", err)
	}
	var gl net.Listener
	if cfg.RunsLanes() {
		gl, err = net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			_ = hl.Close()
			return fmt.Errorf("grpc listen: %w", err)
		}
	}

	logger.Info("Starting listsync server",
		logpkg.Str("role", cfg.Role),
		logpkg.Str("node", rt.NodeID()),
		logpkg.Str("http", hl.Addr().String()),
		logpkg.Str("grpc", addrOf(gl)),
		logpkg.Str("hub", hubOf(cfg)),
	)

	g, gctx := errgroup.WithContext(sctx)
	hsrv := httpserver.New(rt, logger)
	g.Go(func() error { return hsrv.Serve(gctx, hl) })
	if gl != nil {
		gsrv := grpcserver.New(rt, logger)
		g.Go(func() error { return gsrv.Serve(gctx, gl) })
	}
	if opts.Ready != nil {
		opts.Ready(hl.Addr().String(), addrOf(gl))
	}

	err = g.Wait()
	logger.Info("listsync server stopped")
	return err
}

func addrOf(l net.Listener) string {
	if l == nil {
		return ""
	}
	return l.Addr().String()
}

func hubOf(cfg cfgpkg.Config) string {
	if cfg.Role == cfgpkg.RoleGateway {
		return cfg.HubAddr
	}
	return ""
}
