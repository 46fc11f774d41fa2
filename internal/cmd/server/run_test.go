package serverrun

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	cfgpkg "github.com/rzbill/listsync/internal/config"
	logpkg "github.com/rzbill/listsync/pkg/log"
)

func TestLoadConfigLayers(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "listsync.yaml")
	if err := os.WriteFile(path, []byte("role: hub\nhttpAddr: \":9000\"\nauth:\n  secret: from-file\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("LISTSYNC_JWT_SECRET", "from-env")
	cfg, err := LoadConfig(path, func(c *cfgpkg.Config) { c.HTTPAddr = ":9100" })
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Role != cfgpkg.RoleHub {
		t.Errorf("role: got %q", cfg.Role)
	}
	if cfg.Auth.Secret != "from-env" {
		t.Errorf("env should override file, got %q", cfg.Auth.Secret)
	}
	if cfg.HTTPAddr != ":9100" {
		t.Errorf("override should win, got %q", cfg.HTTPAddr)
	}
	if cfg.DataDir == "" {
		t.Errorf("hub role should get a default data dir")
	}
}

func TestLoadConfigGatewayKeepsEmptyDataDir(t *testing.T) {
	cfg, err := LoadConfig("", func(c *cfgpkg.Config) { c.Role = cfgpkg.RoleGateway })
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.DataDir != "" {
		t.Errorf("gateway should not get a data dir, got %q", cfg.DataDir)
	}
}

func TestRunRejectsInvalidConfig(t *testing.T) {
	cfg := cfgpkg.Default()
	cfg.DataDir = t.TempDir()
	if err := Run(context.Background(), Options{Config: cfg, Logger: logpkg.Nop()}); err == nil {
		t.Fatalf("expected error without auth secret")
	}
}

func TestRunServesUntilCancelled(t *testing.T) {
	cfg := cfgpkg.Default()
	cfg.DataDir = t.TempDir()
	cfg.Auth.Secret = "test"
	cfg.HTTPAddr = "127.0.0.1:0"
	cfg.GRPCAddr = "127.0.0.1:0"

	ctx, cancel := context.WithCancel(context.Background())
	ready := make(chan string, 1)
	done := make(chan error, 1)
	go func() {
		done <- Run(ctx, Options{Config: cfg, Logger: logpkg.Nop(), Ready: func(httpAddr, grpcAddr string) {
			if grpcAddr == "" {
				t.Errorf("all role should serve grpc")
			}
			ready <- httpAddr
		}})
	}()

	var addr string
	select {
	case addr = <-ready:
	case err := <-done:
		t.Fatalf("run exited early: %v", err)
	case <-time.After(10 * time.Second):
		t.Fatalf("server not ready")
	}

	resp, err := http.Get("http://" + addr + "/v1/healthz")
	if err != nil {
		t.Fatalf("healthz: %v", err)
	}
	var body map[string]string
	_ = json.NewDecoder(resp.Body).Decode(&body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || body["status"] != "ok" {
		t.Fatalf("healthz: %d %v", resp.StatusCode, body)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatalf("run did not stop")
	}
}
