// Package runtime wires one process: the SQLite store, the Pebble command
// journal, the lane registry and dispatcher, the backbone and the websocket
// gateway. The configured role decides which of them run.
//
// Example:
//
//	cfg := config.Default()
//	cfg.DataDir, cfg.Auth.Secret = "./data", "change-me"
//	rt, err := runtime.Open(ctx, runtime.Options{Config: cfg, Logger: logger})
//	if err != nil {
//		return err
//	}
//	defer rt.Close()
//	_ = rt.CheckHealth(ctx)
package runtime
