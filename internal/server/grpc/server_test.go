package grpcserver

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"

	"github.com/rzbill/listsync/internal/backbone"
	cfgpkg "github.com/rzbill/listsync/internal/config"
	"github.com/rzbill/listsync/internal/gateway"
	"github.com/rzbill/listsync/internal/runtime"
	logpkg "github.com/rzbill/listsync/pkg/log"
)

const bufSize = 1 << 20

func openRuntime(t *testing.T, role string, bus backbone.Bus) *runtime.Runtime {
	t.Helper()
	cfg := cfgpkg.Default()
	cfg.Role = role
	cfg.DataDir = t.TempDir()
	cfg.Auth.Secret = "shared-secret"
	rt, err := runtime.Open(context.Background(), runtime.Options{Config: cfg, Logger: logpkg.Nop(), Bus: bus})
	if err != nil {
		t.Fatalf("open %s runtime: %v", role, err)
	}
	t.Cleanup(func() { _ = rt.Close() })
	return rt
}

func serveHub(t *testing.T, rt *runtime.Runtime) (*Server, func(context.Context, string) (net.Conn, error)) {
	t.Helper()
	srv := New(rt, logpkg.Nop())
	lis := bufconn.Listen(bufSize)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = srv.Serve(ctx, lis)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return srv, func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }
}

func TestHealthOverGRPC(t *testing.T) {
	hub := openRuntime(t, cfgpkg.RoleHub, nil)
	_, dial := serveHub(t, hub)
	conn, err := grpc.NewClient("passthrough:///bufnet", grpc.WithContextDialer(dial), grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c := healthpb.NewHealthClient(conn)
	for {
		res, err := c.Check(ctx, &healthpb.HealthCheckRequest{})
		if err == nil && res.GetStatus() == healthpb.HealthCheckResponse_SERVING {
			return
		}
		select {
		case <-ctx.Done():
			t.Fatalf("never serving: %v %v", res, err)
		case <-time.After(10 * time.Millisecond):
		}
	}
}

// A gateway process joined over gRPC routes commands to the hub's lanes and
// receives the broadcast results.
func TestGatewayThroughHub(t *testing.T) {
	hub := openRuntime(t, cfgpkg.RoleHub, nil)
	srv, dial := serveHub(t, hub)

	remote, err := backbone.Dial("passthrough:///bufnet", logpkg.Nop(), grpc.WithContextDialer(dial))
	if err != nil {
		t.Fatalf("dial hub: %v", err)
	}
	t.Cleanup(func() { _ = remote.Close() })
	gwA := openRuntime(t, cfgpkg.RoleGateway, remote)
	gwB := openRuntime(t, cfgpkg.RoleGateway, remote)
	if srv.Streams() < 2 {
		t.Fatalf("gateways not subscribed: %d", srv.Streams())
	}

	ctx := context.Background()
	u, err := hub.Store().CreateUser(ctx, "dana", "hash")
	if err != nil {
		t.Fatalf("user: %v", err)
	}
	l, err := hub.Store().CreateList(ctx, u.ID, "errands")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	tok, err := gwA.Issuer().Issue(u.ID, u.Username, u.CreatedAt)
	if err != nil {
		t.Fatalf("token: %v", err)
	}

	connect := func(rt *runtime.Runtime) *websocket.Conn {
		hs := httptest.NewServer(rt.Gateway())
		t.Cleanup(hs.Close)
		url := "ws" + strings.TrimPrefix(hs.URL, "http") + "/?listId=" + l.ID + "&token=" + tok
		ws, _, err := websocket.DefaultDialer.Dial(url, http.Header{})
		if err != nil {
			t.Fatalf("ws dial: %v", err)
		}
		t.Cleanup(func() { _ = ws.Close() })
		return ws
	}
	a, b := connect(gwA), connect(gwB)
	deadline := time.Now().Add(5 * time.Second)
	for gwA.Gateway().Stats().Connections+gwB.Gateway().Stats().Connections < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("clients never joined")
		}
		time.Sleep(5 * time.Millisecond)
	}

	data, _ := json.Marshal(map[string]string{"listId": l.ID, "todoId": "t1", "description": "post office"})
	if err := a.WriteJSON(gateway.Frame{Event: "create_todo", Data: data}); err != nil {
		t.Fatalf("write: %v", err)
	}
	for name, ws := range map[string]*websocket.Conn{"a": a, "b": b} {
		_ = ws.SetReadDeadline(time.Now().Add(5 * time.Second))
		var f gateway.Frame
		if err := ws.ReadJSON(&f); err != nil {
			t.Fatalf("%s read: %v", name, err)
		}
		if f.Event != "create_todo_result" {
			t.Fatalf("%s event: %s", name, f.Event)
		}
	}

	// fetch replies are delivered only on the requesting gateway
	data, _ = json.Marshal(map[string]string{"listId": l.ID})
	if err := b.WriteJSON(gateway.Frame{Event: "fetch_list", Data: data}); err != nil {
		t.Fatalf("write: %v", err)
	}
	_ = b.SetReadDeadline(time.Now().Add(5 * time.Second))
	var f gateway.Frame
	if err := b.ReadJSON(&f); err != nil || f.Event != "fetch_list_result" {
		t.Fatalf("fetch reply: %v %s", err, f.Event)
	}
	_ = a.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	if err := a.ReadJSON(&f); err == nil {
		t.Fatalf("unexpected frame on a: %s", f.Event)
	}
}
