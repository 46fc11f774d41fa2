// Package config loads process configuration. It exposes a Default()
// baseline, Load for JSON, YAML and TOML files, and FromEnv to overlay
// LISTSYNC_* variables.
//
// Example:
//
//	cfg, err := config.Load("/etc/listsync.yaml")
//	if err != nil {
//		return err
//	}
//	config.FromEnv(&cfg)
//	if err := cfg.Validate(); err != nil {
//		return err
//	}
package config
