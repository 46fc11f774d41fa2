package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rzbill/listsync/internal/auth"
	"github.com/rzbill/listsync/internal/backbone"
	"github.com/rzbill/listsync/internal/dispatch"
	"github.com/rzbill/listsync/internal/lanes"
	"github.com/rzbill/listsync/internal/store"
	"github.com/rzbill/listsync/internal/todo"
	logpkg "github.com/rzbill/listsync/pkg/log"
)

type env struct {
	srv    *httptest.Server
	gw     *Gateway
	reg    *lanes.Registry
	st     *store.SQLite
	issuer *auth.Issuer
	list   todo.List
	user   todo.User
	token  string
}

type pins struct {
	mu     sync.Mutex
	opened map[string]int
	closed map[string]int
}

func (p *pins) RoomOpened(id string) { p.mu.Lock(); p.opened[id]++; p.mu.Unlock() }
func (p *pins) RoomClosed(id string) { p.mu.Lock(); p.closed[id]++; p.mu.Unlock() }

func newEnv(t *testing.T, opts Options) *env {
	t.Helper()
	st, err := store.OpenSQLite(filepath.Join(t.TempDir(), "gw.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	ctx := context.Background()
	u, err := st.CreateUser(ctx, "alice", "hash")
	require.NoError(t, err)
	l, err := st.CreateList(ctx, u.ID, "groceries")
	require.NoError(t, err)

	issuer, err := auth.NewIssuer("test-secret", time.Hour)
	require.NoError(t, err)
	tok, err := issuer.Issue(u.ID, u.Username, u.CreatedAt)
	require.NoError(t, err)

	bus := backbone.NewMemory()
	disp := dispatch.NewDispatcher(bus, logpkg.Nop())
	reg := lanes.NewWithLogger(st, disp, lanes.Options{}, logpkg.Nop())
	require.NoError(t, disp.Start(ctx, reg))

	if opts.CheckFilter == nil {
		opts.CheckFilter = lanes.CheckFilter
	}
	gw := New(issuer, dispatch.NewRouter(bus, "node-test"), opts, logpkg.Nop())
	require.NoError(t, gw.Start(ctx, bus))
	srv := httptest.NewServer(gw)

	t.Cleanup(func() {
		_ = gw.Close()
		srv.Close()
		_ = disp.Close()
		_ = reg.Close()
		_ = bus.Close()
	})
	return &env{srv: srv, gw: gw, reg: reg, st: st, issuer: issuer, list: l, user: u, token: tok}
}

func (e *env) url(query string) string {
	return "ws" + strings.TrimPrefix(e.srv.URL, "http") + "/?" + query
}

type client struct {
	t  *testing.T
	ws *websocket.Conn
}

func (e *env) dial(t *testing.T) *client {
	t.Helper()
	h := http.Header{}
	h.Set("Authorization", "Bearer "+e.token)
	ws, _, err := websocket.DefaultDialer.Dial(e.url("listId="+e.list.ID), h)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ws.Close() })
	waitFor(t, func() bool { return e.gw.Stats().Connections >= 1 })
	return &client{t: t, ws: ws}
}

func (c *client) send(event string, data any) {
	c.t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(c.t, err)
	require.NoError(c.t, c.ws.WriteJSON(Frame{Event: event, Data: raw}))
}

func (c *client) read() Frame {
	c.t.Helper()
	_ = c.ws.SetReadDeadline(time.Now().Add(5 * time.Second))
	var f Frame
	require.NoError(c.t, c.ws.ReadJSON(&f))
	return f
}

// quiet asserts that nothing arrives within d.
func (c *client) quiet(d time.Duration) {
	c.t.Helper()
	_ = c.ws.SetReadDeadline(time.Now().Add(d))
	var f Frame
	err := c.ws.ReadJSON(&f)
	require.Error(c.t, err, "unexpected frame %s %s", f.Event, f.Data)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("condition not met")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func decodeResult[T any](t *testing.T, f Frame) (ResultData, T) {
	t.Helper()
	var rd ResultData
	require.NoError(t, json.Unmarshal(f.Data, &rd))
	var v T
	require.NoError(t, json.Unmarshal(rd.Results, &v))
	return rd, v
}

func TestUpgradeRejections(t *testing.T) {
	e := newEnv(t, Options{})
	cases := []struct {
		name   string
		query  string
		header string
		want   int
	}{
		{"missing token", "listId=" + e.list.ID, "", http.StatusBadRequest},
		{"invalid token", "listId=" + e.list.ID + "&token=bogus", "", http.StatusUnauthorized},
		{"invalid header", "listId=" + e.list.ID, "Bearer bogus", http.StatusUnauthorized},
		{"missing listId", "token=" + e.token, "", http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := http.Header{}
			if tc.header != "" {
				h.Set("Authorization", tc.header)
			}
			_, resp, err := websocket.DefaultDialer.Dial(e.url(tc.query), h)
			require.Error(t, err)
			require.NotNil(t, resp)
			assert.Equal(t, tc.want, resp.StatusCode)
		})
	}
	assert.Equal(t, 0, e.gw.Stats().Connections)
}

func TestQueryTokenAccepted(t *testing.T) {
	e := newEnv(t, Options{})
	ws, _, err := websocket.DefaultDialer.Dial(e.url("listId="+e.list.ID+"&token="+e.token), nil)
	require.NoError(t, err)
	defer ws.Close()
	waitFor(t, func() bool { return e.gw.Stats().Connections == 1 })
}

func TestCreateIsBroadcastToRoom(t *testing.T) {
	e := newEnv(t, Options{})
	a, b := e.dial(t), e.dial(t)
	waitFor(t, func() bool { return e.gw.Stats().Connections == 2 })

	a.send("create_todo", map[string]string{"listId": e.list.ID, "todoId": "t1", "description": "milk"})
	for _, c := range []*client{a, b} {
		f := c.read()
		require.Equal(t, "create_todo_result", f.Event)
		rd, it := decodeResult[todo.Item](t, f)
		assert.Equal(t, e.list.ID, rd.ListID)
		assert.Equal(t, "t1", it.ID)
		assert.Equal(t, "milk", it.Description)
		assert.Equal(t, todo.StatusPending, it.Status)
	}
}

func TestInvalidTransitionProducesNoBroadcast(t *testing.T) {
	e := newEnv(t, Options{})
	a, b := e.dial(t), e.dial(t)
	waitFor(t, func() bool { return e.gw.Stats().Connections == 2 })

	a.send("create_todo", map[string]string{"listId": e.list.ID, "todoId": "t1"})
	a.read()
	b.read()

	a.send("transition_todo_status", map[string]string{
		"listId": e.list.ID, "todoId": "t1", "fromStatus": "pending", "toStatus": "completed",
	})
	require.NoError(t, e.reg.Drain(context.Background()))
	a.quiet(100 * time.Millisecond)
	b.quiet(10 * time.Millisecond)

	it, err := e.st.GetItem(context.Background(), "t1", e.list.ID)
	require.NoError(t, err)
	assert.Equal(t, todo.StatusPending, it.Status)
}

func TestFetchReplyGoesOnlyToRequester(t *testing.T) {
	e := newEnv(t, Options{})
	a, b := e.dial(t), e.dial(t)
	waitFor(t, func() bool { return e.gw.Stats().Connections == 2 })

	a.send("create_todo", map[string]string{"listId": e.list.ID, "todoId": "t1", "description": "eggs"})
	a.read()
	b.read()

	b.send("fetch_list", map[string]string{"listId": e.list.ID})
	f := b.read()
	require.Equal(t, "fetch_list_result", f.Event)
	_, items := decodeResult[[]todo.Item](t, f)
	require.Len(t, items, 1)
	assert.Equal(t, "eggs", items[0].Description)
	a.quiet(100 * time.Millisecond)
}

func TestConcurrentCreatesSeenInSameOrder(t *testing.T) {
	e := newEnv(t, Options{})
	a, b := e.dial(t), e.dial(t)
	waitFor(t, func() bool { return e.gw.Stats().Connections == 2 })

	var wg sync.WaitGroup
	for i, c := range []*client{a, b} {
		wg.Add(1)
		go func(i int, c *client) {
			defer wg.Done()
			raw, _ := json.Marshal(map[string]string{"listId": e.list.ID, "todoId": fmt.Sprintf("t%d", i)})
			_ = c.ws.WriteJSON(Frame{Event: "create_todo", Data: raw})
		}(i, c)
	}
	wg.Wait()

	seen := make([][]todo.Item, 2)
	for i, c := range []*client{a, b} {
		for j := 0; j < 2; j++ {
			_, it := decodeResult[todo.Item](t, c.read())
			seen[i] = append(seen[i], it)
		}
	}
	require.Equal(t, seen[0], seen[1])
	assert.Less(t, seen[0][0].Position, seen[0][1].Position)

	items, err := e.st.ListItems(context.Background(), e.list.ID)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, seen[0][0].ID, items[0].ID)
}

func TestMalformedFramesGetErrorFrame(t *testing.T) {
	e := newEnv(t, Options{})
	a, b := e.dial(t), e.dial(t)
	waitFor(t, func() bool { return e.gw.Stats().Connections == 2 })

	cases := []struct {
		event string
		data  map[string]string
		path  string
	}{
		{"update_todo_description", map[string]string{"listId": e.list.ID, "todoId": "t1"}, ""},
		{"transition_todo_status", map[string]string{"listId": e.list.ID, "todoId": "t1", "fromStatus": "pending", "toStatus": "done"}, "toStatus"},
		{"no_such_event", map[string]string{"listId": e.list.ID}, ""},
		{"create_todo", map[string]string{"listId": "some-other-list", "commandId": "c-other"}, ""},
		{"fetch_list", map[string]string{"listId": e.list.ID, "filter": "status =="}, ""},
	}
	for _, tc := range cases {
		a.send(tc.event, tc.data)
		f := a.read()
		require.Equal(t, "error", f.Event, "event %s", tc.event)
		var p struct {
			Message   string `json:"message"`
			Path      string `json:"path"`
			CommandID string `json:"commandId"`
		}
		require.NoError(t, json.Unmarshal(f.Data, &p))
		assert.NotEmpty(t, p.Message)
		if tc.path != "" {
			assert.Contains(t, p.Path, tc.path)
		}
		if id := tc.data["commandId"]; id != "" {
			assert.Equal(t, id, p.CommandID)
		}
	}
	b.quiet(100 * time.Millisecond)
	assert.EqualValues(t, len(cases), e.gw.Stats().Rejected)
}

func TestRoomObserverAndLeave(t *testing.T) {
	p := &pins{opened: map[string]int{}, closed: map[string]int{}}
	e := newEnv(t, Options{Observer: p})
	a := e.dial(t)
	b := e.dial(t)
	waitFor(t, func() bool { return e.gw.Stats().Connections == 2 })
	assert.Equal(t, 1, e.gw.Stats().Rooms)

	_ = a.ws.Close()
	waitFor(t, func() bool { return e.gw.Stats().Connections == 1 })
	_ = b.ws.Close()
	waitFor(t, func() bool { return e.gw.Stats().Connections == 0 })

	p.mu.Lock()
	defer p.mu.Unlock()
	assert.Equal(t, 1, p.opened[e.list.ID])
	assert.Equal(t, 1, p.closed[e.list.ID])
}

func TestCloseWaitsForConnectingClients(t *testing.T) {
	e := newEnv(t, Options{})
	e.dial(t)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h := http.Header{}
			h.Set("Authorization", "Bearer "+e.token)
			ws, _, err := websocket.DefaultDialer.Dial(e.url("listId="+e.list.ID), h)
			if err == nil {
				_ = ws.Close()
			}
		}()
	}
	require.NoError(t, e.gw.Close())
	assert.Equal(t, 0, e.gw.Stats().Connections)
	wg.Wait()
	assert.Equal(t, 0, e.gw.Stats().Connections)

	h := http.Header{}
	h.Set("Authorization", "Bearer "+e.token)
	_, resp, err := websocket.DefaultDialer.Dial(e.url("listId="+e.list.ID), h)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}
