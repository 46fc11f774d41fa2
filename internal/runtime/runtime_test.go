package runtime

import (
	"context"
	"testing"

	"github.com/rzbill/listsync/internal/backbone"
	"github.com/rzbill/listsync/internal/command"
	cfgpkg "github.com/rzbill/listsync/internal/config"
	logpkg "github.com/rzbill/listsync/pkg/log"
)

func testConfig(t *testing.T, role string) cfgpkg.Config {
	t.Helper()
	cfg := cfgpkg.Default()
	cfg.Role = role
	cfg.DataDir = t.TempDir()
	cfg.Auth.Secret = "test"
	return cfg
}

func TestOpenAllRole(t *testing.T) {
	ctx := context.Background()
	rt, err := Open(ctx, Options{Config: testConfig(t, cfgpkg.RoleAll), Logger: logpkg.Nop()})
	if err != nil {
		t.Fatalf("open runtime: %v", err)
	}
	defer rt.Close()
	if err := rt.CheckHealth(ctx); err != nil {
		t.Fatalf("health: %v", err)
	}
	if rt.Registry() == nil || rt.Gateway() == nil || rt.Store() == nil {
		t.Fatalf("all role must run lanes, gateway and store")
	}
	s := rt.Stats()
	if s.Lanes == nil || s.Gateway == nil || s.Backbone == nil || s.Journal == nil {
		t.Fatalf("stats: %+v", s)
	}
}

func TestRoutedCommandSurvivesRestart(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t, cfgpkg.RoleHub)
	rt, err := Open(ctx, Options{Config: cfg, Logger: logpkg.Nop()})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	u, err := rt.Store().CreateUser(ctx, "carol", "hash")
	if err != nil {
		t.Fatalf("user: %v", err)
	}
	l, err := rt.Store().CreateList(ctx, u.ID, "trip")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	c := command.CreateItem{Meta: command.Meta{ListID: l.ID, CommandID: "c1", IssuedBy: u.ID}, ItemID: "i1"}
	b, err := command.Encode(c)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if err := rt.Bus().Publish(ctx, backbone.TopicCommands, b); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if err := rt.Registry().Drain(ctx); err != nil {
		t.Fatalf("drain: %v", err)
	}
	if err := rt.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	rt, err = Open(ctx, Options{Config: cfg, Logger: logpkg.Nop()})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer rt.Close()
	items, err := rt.Store().ListItems(ctx, l.ID)
	if err != nil || len(items) != 1 {
		t.Fatalf("items after restart: %v %v", items, err)
	}
	// the command id is still remembered, so a redelivery is ignored
	if err := rt.Bus().Publish(ctx, backbone.TopicCommands, b); err != nil {
		t.Fatalf("publish: %v", err)
	}
	_ = rt.Registry().Drain(ctx)
	if s := rt.Registry().Stats(); s.Duplicates != 1 || s.Recovered != 0 {
		t.Fatalf("stats after restart: %+v", s)
	}
}

func TestGatewayRoleJoinsHubBus(t *testing.T) {
	ctx := context.Background()
	hub, err := Open(ctx, Options{Config: testConfig(t, cfgpkg.RoleHub), Logger: logpkg.Nop()})
	if err != nil {
		t.Fatalf("hub: %v", err)
	}
	defer hub.Close()

	gw, err := Open(ctx, Options{Config: testConfig(t, cfgpkg.RoleGateway), Logger: logpkg.Nop(), Bus: hub.Bus()})
	if err != nil {
		t.Fatalf("gateway: %v", err)
	}
	defer gw.Close()
	if gw.Store() != nil || gw.Registry() != nil {
		t.Fatalf("gateway role must not own storage")
	}
	if gw.Gateway() == nil || gw.Router() == nil {
		t.Fatalf("gateway role must serve websockets")
	}
	if gw.NodeID() == hub.NodeID() {
		t.Fatalf("node ids must differ")
	}
}

func TestOpenRejectsInvalidConfig(t *testing.T) {
	cfg := cfgpkg.Default()
	if _, err := Open(context.Background(), Options{Config: cfg, Logger: logpkg.Nop()}); err == nil {
		t.Fatalf("expected validation error")
	}
}
