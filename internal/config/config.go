package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	logpkg "github.com/rzbill/listsync/pkg/log"
)

// Roles a process can run.
const (
	RoleAll     = "all"
	RoleHub     = "hub"
	RoleGateway = "gateway"
)

// Duration is a time.Duration written as a string such as "10s" in every
// config format.
type Duration struct {
	time.Duration
}

// D wraps d.
func D(d time.Duration) Duration { return Duration{d} }

func (d Duration) MarshalText() ([]byte, error) { return []byte(d.String()), nil }

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(b)))
	if err != nil {
		return fmt.Errorf("duration %q: %w", string(b), err)
	}
	d.Duration = v
	return nil
}

// Config is the top-level configuration loaded from file/env.
type Config struct {
	// Role selects which components run: all, hub or gateway.
	Role string `json:"role" yaml:"role" toml:"role"`
	// NodeID names this process on the backbone. Empty means generated.
	NodeID   string `json:"nodeId" yaml:"nodeId" toml:"nodeId"`
	DataDir  string `json:"dataDir" yaml:"dataDir" toml:"dataDir"`
	HTTPAddr string `json:"httpAddr" yaml:"httpAddr" toml:"httpAddr"`
	GRPCAddr string `json:"grpcAddr" yaml:"grpcAddr" toml:"grpcAddr"`
	// HubAddr is the hub's gRPC address, used by gateways.
	HubAddr string `json:"hubAddr" yaml:"hubAddr" toml:"hubAddr"`

	Log     logpkg.Config `json:"log" yaml:"log" toml:"log"`
	Auth    Auth          `json:"auth" yaml:"auth" toml:"auth"`
	Lanes   Lanes         `json:"lanes" yaml:"lanes" toml:"lanes"`
	Gateway Gateway       `json:"gateway" yaml:"gateway" toml:"gateway"`
	Storage Storage       `json:"storage" yaml:"storage" toml:"storage"`
}

// Auth configures bearer tokens.
type Auth struct {
	Secret   string   `json:"secret" yaml:"secret" toml:"secret"`
	TokenTTL Duration `json:"tokenTTL" yaml:"tokenTTL" toml:"tokenTTL"`
}

// Lanes tunes the per-list command lanes.
type Lanes struct {
	CommandTimeout Duration `json:"commandTimeout" yaml:"commandTimeout" toml:"commandTimeout"`
	MaxRetries     int      `json:"maxRetries" yaml:"maxRetries" toml:"maxRetries"`
	RetryBackoff   Duration `json:"retryBackoff" yaml:"retryBackoff" toml:"retryBackoff"`
	IdleTTL        Duration `json:"idleTTL" yaml:"idleTTL" toml:"idleTTL"`
	SweepInterval  Duration `json:"sweepInterval" yaml:"sweepInterval" toml:"sweepInterval"`
	DedupeTTL      Duration `json:"dedupeTTL" yaml:"dedupeTTL" toml:"dedupeTTL"`
}

// Gateway tunes websocket connections.
type Gateway struct {
	SendBuffer     int      `json:"sendBuffer" yaml:"sendBuffer" toml:"sendBuffer"`
	WriteWait      Duration `json:"writeWait" yaml:"writeWait" toml:"writeWait"`
	PongWait       Duration `json:"pongWait" yaml:"pongWait" toml:"pongWait"`
	MaxMessageSize int64    `json:"maxMessageSize" yaml:"maxMessageSize" toml:"maxMessageSize"`
}

// Storage configures the SQLite database and the Pebble journal.
type Storage struct {
	// SQLitePath defaults to <dataDir>/listsync.db.
	SQLitePath string `json:"sqlitePath" yaml:"sqlitePath" toml:"sqlitePath"`
	// Fsync is "always", "interval" or "never".
	Fsync   string `json:"fsync" yaml:"fsync" toml:"fsync"`
	Journal bool   `json:"journal" yaml:"journal" toml:"journal"`
}

// Default returns built-in defaults.
func Default() Config {
	return Config{
		Role:     RoleAll,
		HTTPAddr: ":8080",
		GRPCAddr: ":9090",
		HubAddr:  "127.0.0.1:9090",
		Log:      logpkg.Config{Level: "info", Format: "text", Output: "stderr"},
		Auth:     Auth{TokenTTL: D(24 * time.Hour)},
		Lanes: Lanes{
			CommandTimeout: D(10 * time.Second),
			MaxRetries:     0,
			RetryBackoff:   D(100 * time.Millisecond),
			IdleTTL:        D(5 * time.Minute),
			SweepInterval:  D(time.Minute),
			DedupeTTL:      D(24 * time.Hour),
		},
		Gateway: Gateway{
			SendBuffer:     256,
			WriteWait:      D(10 * time.Second),
			PongWait:       D(60 * time.Second),
			MaxMessageSize: 64 << 10,
		},
		Storage: Storage{Fsync: "always", Journal: true},
	}
}

// Load reads configuration from a JSON, YAML or TOML file (by extension) on
// top of Default. If path is empty, returns defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(b, &cfg)
	case ".toml":
		err = toml.Unmarshal(b, &cfg)
	default:
		err = json.Unmarshal(b, &cfg)
	}
	if err != nil {
		return Config{}, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

// SQLitePath returns the configured database path or its default under
// DataDir.
func (c Config) SQLitePath() string {
	if c.Storage.SQLitePath != "" {
		return c.Storage.SQLitePath
	}
	return filepath.Join(c.DataDir, "listsync.db")
}

// JournalDir returns the Pebble directory of the command journal.
func (c Config) JournalDir() string {
	return filepath.Join(c.DataDir, "journal")
}

// RunsLanes reports whether this role owns storage and the lanes.
func (c Config) RunsLanes() bool { return c.Role == RoleAll || c.Role == RoleHub }

// RunsGateway reports whether this role serves websocket clients.
func (c Config) RunsGateway() bool { return c.Role == RoleAll || c.Role == RoleGateway }

// Validate checks the fields needed by the selected role.
func (c Config) Validate() error {
	var errs []error
	switch c.Role {
	case RoleAll, RoleHub, RoleGateway:
	default:
		errs = append(errs, fmt.Errorf("role %q: must be all, hub or gateway", c.Role))
	}
	if c.Auth.Secret == "" {
		errs = append(errs, errors.New("auth.secret is required"))
	}
	if c.RunsLanes() && c.DataDir == "" {
		errs = append(errs, errors.New("dataDir is required"))
	}
	if c.Role == RoleHub && c.GRPCAddr == "" {
		errs = append(errs, errors.New("grpcAddr is required for the hub"))
	}
	if c.Role == RoleGateway && c.HubAddr == "" {
		errs = append(errs, errors.New("hubAddr is required for a gateway"))
	}
	if c.HTTPAddr == "" && c.RunsGateway() {
		errs = append(errs, errors.New("httpAddr is required"))
	}
	if c.Lanes.MaxRetries < 0 {
		errs = append(errs, errors.New("lanes.maxRetries must not be negative"))
	}
	switch c.Storage.Fsync {
	case "", "always", "interval", "never":
	default:
		errs = append(errs, fmt.Errorf("storage.fsync %q: must be always, interval or never", c.Storage.Fsync))
	}
	return errors.Join(errs...)
}
