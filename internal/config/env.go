package config

import (
	"os"
	"strconv"
	"time"
)

// EnvPrefix prefixes every environment variable read by FromEnv.
const EnvPrefix = "LISTSYNC_"

// FromEnv overlays LISTSYNC_* environment variables onto cfg. Unparseable
// values are ignored.
func FromEnv(cfg *Config) {
	str := func(name string, dst *string) {
		if v := os.Getenv(EnvPrefix + name); v != "" {
			*dst = v
		}
	}
	num := func(name string, dst *int) {
		if v := os.Getenv(EnvPrefix + name); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}
	dur := func(name string, dst *Duration) {
		if v := os.Getenv(EnvPrefix + name); v != "" {
			if d, err := time.ParseDuration(v); err == nil {
				dst.Duration = d
			}
		}
	}

	str("ROLE", &cfg.Role)
	str("NODE_ID", &cfg.NodeID)
	str("DATA_DIR", &cfg.DataDir)
	str("HTTP_ADDR", &cfg.HTTPAddr)
	str("GRPC_ADDR", &cfg.GRPCAddr)
	str("HUB_ADDR", &cfg.HubAddr)

	str("LOG_LEVEL", &cfg.Log.Level)
	str("LOG_FORMAT", &cfg.Log.Format)
	str("LOG_OUTPUT", &cfg.Log.Output)

	str("JWT_SECRET", &cfg.Auth.Secret)
	dur("TOKEN_TTL", &cfg.Auth.TokenTTL)

	dur("COMMAND_TIMEOUT", &cfg.Lanes.CommandTimeout)
	num("MAX_RETRIES", &cfg.Lanes.MaxRetries)
	dur("RETRY_BACKOFF", &cfg.Lanes.RetryBackoff)
	dur("LANE_IDLE_TTL", &cfg.Lanes.IdleTTL)
	dur("SWEEP_INTERVAL", &cfg.Lanes.SweepInterval)
	dur("DEDUPE_TTL", &cfg.Lanes.DedupeTTL)

	num("SEND_BUFFER", &cfg.Gateway.SendBuffer)

	str("SQLITE_PATH", &cfg.Storage.SQLitePath)
	str("FSYNC", &cfg.Storage.Fsync)
	if v := os.Getenv(EnvPrefix + "JOURNAL"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Storage.Journal = b
		}
	}
}
