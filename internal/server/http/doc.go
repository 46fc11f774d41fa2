// Package httpserver provides the REST surface (users, lists, item creation,
// health and stats) and mounts the websocket gateway at /ws.
//
// Example:
//
//	rt, _ := runtime.Open(ctx, runtime.Options{Config: cfg, Logger: logger})
//	s := httpserver.New(rt, logger)
//	_ = s.ListenAndServe(ctx, cfg.HTTPAddr)
package httpserver
