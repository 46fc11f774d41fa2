package dispatch

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/rzbill/listsync/internal/backbone"
	"github.com/rzbill/listsync/internal/command"
	"github.com/rzbill/listsync/internal/lanes"
	"github.com/rzbill/listsync/internal/store"
	"github.com/rzbill/listsync/internal/todo"
	logpkg "github.com/rzbill/listsync/pkg/log"
)

type pipeline struct {
	bus     *backbone.Memory
	router  *Router
	disp    *Dispatcher
	reg     *lanes.Registry
	results chan *command.Result
	list    todo.List
	user    todo.User
}

func newPipeline(t *testing.T) *pipeline {
	t.Helper()
	st, err := store.OpenSQLite(filepath.Join(t.TempDir(), "dispatch.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	ctx := context.Background()
	u, err := st.CreateUser(ctx, "bob", "hash")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	l, err := st.CreateList(ctx, u.ID, "chores")
	if err != nil {
		t.Fatalf("create list: %v", err)
	}

	p := &pipeline{bus: backbone.NewMemory(), results: make(chan *command.Result, 16), list: l, user: u}
	p.disp = NewDispatcher(p.bus, logpkg.Nop())
	p.reg = lanes.NewWithLogger(st, p.disp, lanes.Options{}, logpkg.Nop())
	if err := p.disp.Start(ctx, p.reg); err != nil {
		t.Fatalf("start: %v", err)
	}
	p.router = NewRouter(p.bus, "node-1")
	if _, err := p.bus.Subscribe(ctx, backbone.TopicResults, func(_ context.Context, msg []byte) {
		res, err := command.DecodeResult(msg)
		if err != nil {
			t.Errorf("decode result: %v", err)
			return
		}
		p.results <- res
	}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	t.Cleanup(func() {
		_ = p.disp.Close()
		_ = p.reg.Close()
		_ = p.bus.Close()
	})
	return p
}

func (p *pipeline) meta(cmdID string) command.Meta {
	return command.Meta{ListID: p.list.ID, CommandID: cmdID, IssuedBy: p.user.ID, Origin: p.router.Origin(), ConnID: "conn-1"}
}

func (p *pipeline) next(t *testing.T) *command.Result {
	t.Helper()
	select {
	case res := <-p.results:
		return res
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for result")
		return nil
	}
}

func TestRoutedCommandProducesResult(t *testing.T) {
	p := newPipeline(t)
	ctx := context.Background()
	if err := p.router.Route(ctx, command.CreateItem{Meta: p.meta("c1"), ItemID: "i1", Description: "sweep"}); err != nil {
		t.Fatalf("route: %v", err)
	}
	res := p.next(t)
	if res.Event != "create_todo_result" || res.CommandID != "c1" || res.Room() != "list:"+p.list.ID {
		t.Fatalf("result: %+v", res)
	}
	if res.Target != nil {
		t.Fatalf("create results are broadcast, got target %+v", res.Target)
	}
	var it todo.Item
	if err := json.Unmarshal(res.Results, &it); err != nil {
		t.Fatalf("decode item: %v", err)
	}
	if it.ID != "i1" || it.Position == "" || it.Status != todo.StatusPending {
		t.Fatalf("item: %+v", it)
	}
}

func TestDuplicateRouteIsIgnored(t *testing.T) {
	p := newPipeline(t)
	ctx := context.Background()
	c := command.CreateItem{Meta: p.meta("same"), ItemID: "i1"}
	for i := 0; i < 3; i++ {
		if err := p.router.Route(ctx, c); err != nil {
			t.Fatalf("route: %v", err)
		}
	}
	p.next(t)
	select {
	case res := <-p.results:
		t.Fatalf("unexpected second result %+v", res)
	case <-time.After(100 * time.Millisecond):
	}
	if s := p.reg.Stats(); s.Duplicates != 2 {
		t.Fatalf("duplicates: got %d want 2", s.Duplicates)
	}
}

func TestInvalidEnvelopeIsRejectedToSender(t *testing.T) {
	p := newPipeline(t)
	ctx := context.Background()
	env := command.Envelope{Kind: command.KindChangeDescription, ListID: p.list.ID, CommandID: "bad", Origin: "node-1", ConnID: "conn-9", Payload: json.RawMessage(`{}`)}
	b, _ := json.Marshal(env)
	if err := p.bus.Publish(ctx, backbone.TopicCommands, b); err != nil {
		t.Fatalf("publish: %v", err)
	}
	res := p.next(t)
	if res.Event != command.EventError || res.Target == nil || res.Target.ConnID != "conn-9" {
		t.Fatalf("rejection: %+v", res)
	}
	if err := p.router.Route(ctx, command.ChangeDescription{Meta: p.meta("bad2")}); err == nil {
		t.Fatalf("router must validate before publishing")
	}
	if s := p.disp.Stats(); s.Rejected != 1 || s.Received != 1 {
		t.Fatalf("stats: %+v", s)
	}
}
