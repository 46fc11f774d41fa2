// Package serverrun exposes the shared Run entrypoint used by the CLI to start
// a listsync process in one of its roles, handling lifecycle and shutdown.
//
// Example:
//
//	cfg, _ := serverrun.LoadConfig("listsync.yaml", nil)
//	ctx, cancel := context.WithCancel(context.Background())
//	defer cancel()
//	_ = serverrun.Run(ctx, serverrun.Options{Config: cfg})
package serverrun
