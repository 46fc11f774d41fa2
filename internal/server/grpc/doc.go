// Package grpcserver hosts the hub's gRPC server: the backbone service that
// gateways join and the standard gRPC health service.
//
// Example:
//
//	rt, _ := runtime.Open(ctx, runtime.Options{Config: cfg, Logger: logger})
//	s := grpcserver.New(rt, logger)
//	_ = s.ListenAndServe(ctx, ":9090")
package grpcserver
