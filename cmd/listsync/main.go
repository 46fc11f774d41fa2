package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	clientcmd "github.com/rzbill/listsync/internal/cmd/client"
	serverrun "github.com/rzbill/listsync/internal/cmd/server"
	cfgpkg "github.com/rzbill/listsync/internal/config"
	logpkg "github.com/rzbill/listsync/pkg/log"
)

func main() {
	// initialize logger for CLI
	// Respect LISTSYNC_LOG_LEVEL for both CLI and server start output
	level := os.Getenv("LISTSYNC_LOG_LEVEL")
	parsed, err := logpkg.ParseLevel(level)
	if err != nil || level == "" {
		parsed = logpkg.InfoLevel
	}
	logger := logpkg.NewLogger(
		logpkg.WithLevel(parsed),
		logpkg.WithFormatter(&logpkg.TextFormatter{}),
		logpkg.WithOutput(logpkg.NewConsoleOutput()),
	)

	rootCmd := &cobra.Command{
		Use:          "listsync",
		Short:        "listsync realtime todo lists",
		Long:         "listsync runs the collaborative todo-list server (all, hub or gateway role) and provides a client for it.",
		SilenceUsage: true,
	}

	// server start
	serverCmd := &cobra.Command{Use: "server", Short: "Server commands"}
	serverStartCmd := &cobra.Command{
		Use:     "start",
		Short:   "Start a listsync process (HTTP/websocket, plus gRPC on hubs)",
		Aliases: []string{"run", "serve"},
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath, _ := cmd.Flags().GetString("config")
			cfg, err := serverrun.LoadConfig(configPath, func(c *cfgpkg.Config) {
				flags := cmd.Flags()
				set := func(name string, dst *string) {
					if flags.Changed(name) {
						*dst, _ = flags.GetString(name)
					}
				}
				set("role", &c.Role)
				set("node-id", &c.NodeID)
				set("data-dir", &c.DataDir)
				set("http", &c.HTTPAddr)
				set("grpc", &c.GRPCAddr)
				set("hub", &c.HubAddr)
				set("fsync", &c.Storage.Fsync)
				set("log-level", &c.Log.Level)
				set("log-format", &c.Log.Format)
				set("jwt-secret", &c.Auth.Secret)
			})
			if err != nil {
				return fmt.Errorf("config: %w", err)
			}

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			if err := serverrun.Run(ctx, serverrun.Options{Config: cfg}); err != nil {
				return fmt.Errorf("server error: %w", err)
			}
			return nil
		},
	}
	f := serverStartCmd.Flags()
	f.StringP("config", "c", os.Getenv("LISTSYNC_CONFIG"), "Config file (.json, .yaml or .toml)")
	f.String("role", "", "Role: all|hub|gateway")
	f.String("node-id", "", "Node id on the backbone (default generated)")
	f.String("data-dir", "", "Data directory (if not specified, uses OS-specific application data directory)")
	f.String("http", "", "HTTP/websocket listen address")
	f.String("grpc", "", "Backbone gRPC listen address (hub, all)")
	f.String("hub", "", "Hub gRPC address (gateway)")
	f.String("fsync", "", "Journal fsync mode: always|interval|never")
	f.String("log-level", "", "Log level: debug|info|warn|error")
	f.String("log-format", "", "Log format: text|json")
	f.String("jwt-secret", "", "HS256 signing secret (prefer LISTSYNC_JWT_SECRET)")
	serverCmd.AddCommand(serverStartCmd)
	rootCmd.AddCommand(serverCmd)

	// config check
	configCmd := &cobra.Command{Use: "config", Short: "Configuration helpers"}
	configCheckCmd := &cobra.Command{
		Use:   "check [file]",
		Short: "Load and validate a config file with environment overrides",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ""
			if len(args) == 1 {
				path = args[0]
			}
			cfg, err := serverrun.LoadConfig(path, nil)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "ok: role=%s dataDir=%s http=%s\n", cfg.Role, cfg.DataDir, cfg.HTTPAddr)
			return err
		},
	}
	configCmd.AddCommand(configCheckCmd)
	rootCmd.AddCommand(configCmd)

	clientcmd.AddCommands(rootCmd, apiURL)

	if err := rootCmd.Execute(); err != nil {
		logger.Error("command failed", logpkg.Err(err))
		os.Exit(1)
	}
}

func apiURL() string {
	if v := os.Getenv("LISTSYNC_URL"); v != "" {
		return v
	}
	return "http://127.0.0.1:8080"
}
