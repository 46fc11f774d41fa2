package gateway

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/rzbill/listsync/internal/auth"
	"github.com/rzbill/listsync/internal/backbone"
	"github.com/rzbill/listsync/internal/command"
	logpkg "github.com/rzbill/listsync/pkg/log"
)

// ErrForbidden is sent to a client that addresses a list other than the one
// it joined.
var ErrForbidden = errors.New("gateway: forbidden")

// Router routes accepted commands. *dispatch.Router implements it.
type Router interface {
	Route(ctx context.Context, cmd command.Command) error
	Origin() string
}

// Authenticator verifies the bearer credential of an upgrade request.
type Authenticator interface {
	Authenticate(r *http.Request) (*auth.Claims, error)
}

// RoomObserver is told when a room gains its first member and loses its last.
type RoomObserver interface {
	RoomOpened(listID string)
	RoomClosed(listID string)
}

// Options tunes connections. Zero values select the defaults.
type Options struct {
	SendBuffer     int
	WriteWait      time.Duration
	PongWait       time.Duration
	PingPeriod     time.Duration
	MaxMessageSize int64
	RouteTimeout   time.Duration
	// CheckOrigin overrides the upgrader's origin check. Nil accepts any origin.
	CheckOrigin func(r *http.Request) bool
	// Observer is optional.
	Observer RoomObserver
	// CheckFilter validates fetch filters before routing. Optional.
	CheckFilter func(expr string) error
}

func (o Options) withDefaults() Options {
	if o.SendBuffer <= 0 {
		o.SendBuffer = 256
	}
	if o.WriteWait <= 0 {
		o.WriteWait = 10 * time.Second
	}
	if o.PongWait <= 0 {
		o.PongWait = 60 * time.Second
	}
	if o.PingPeriod <= 0 || o.PingPeriod >= o.PongWait {
		o.PingPeriod = o.PongWait * 9 / 10
	}
	if o.MaxMessageSize <= 0 {
		o.MaxMessageSize = 64 << 10
	}
	if o.RouteTimeout <= 0 {
		o.RouteTimeout = 5 * time.Second
	}
	if o.CheckOrigin == nil {
		o.CheckOrigin = func(*http.Request) bool { return true }
	}
	return o
}

type counters struct {
	accepted atomic.Int64
	refused  atomic.Int64
	inbound  atomic.Int64
	routed   atomic.Int64
	rejected atomic.Int64
	outbound atomic.Int64
	slow     atomic.Int64
}

// Gateway serves websocket clients.
type Gateway struct {
	authn       Authenticator
	router      Router
	logger      logpkg.Logger
	opts        Options
	upgrader    websocket.Upgrader
	rooms       *rooms
	checkFilter func(string) error

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu  sync.Mutex
	sub backbone.Subscription

	stats counters
}

// New returns a Gateway. Call Start to begin delivering results.
func New(authn Authenticator, router Router, opts Options, logger logpkg.Logger) *Gateway {
	opts = opts.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	return &Gateway{
		authn:  authn,
		router: router,
		logger: logger.With(logpkg.Component("gateway")),
		opts:   opts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     opts.CheckOrigin,
		},
		rooms:       newRooms(),
		checkFilter: opts.CheckFilter,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Start subscribes to results on bus.
func (g *Gateway) Start(ctx context.Context, bus backbone.Bus) error {
	sub, err := bus.Subscribe(ctx, backbone.TopicResults, g.onResult)
	if err != nil {
		return err
	}
	g.mu.Lock()
	g.sub = sub
	g.mu.Unlock()
	return nil
}

func (g *Gateway) onResult(_ context.Context, msg []byte) {
	res, err := command.DecodeResult(msg)
	if err != nil {
		g.logger.Warn("dropping undecodable result", logpkg.Err(err))
		return
	}
	g.Deliver(res)
}

// Deliver writes res to its room, or to its target connection when the
// target lives on this node.
func (g *Gateway) Deliver(res *command.Result) int {
	frame, err := resultFrame(res)
	if err != nil {
		g.logger.Error("render result failed", logpkg.Str(logpkg.CommandIDKey, res.CommandID), logpkg.Err(err))
		return 0
	}
	if t := res.Target; t != nil {
		if t.Origin != g.router.Origin() {
			return 0
		}
		c, ok := g.rooms.lookup(t.ConnID)
		if !ok {
			return 0
		}
		if c.enqueue(frame) {
			return 1
		}
		return 0
	}
	n := 0
	for _, c := range g.rooms.snapshot(res.Room()) {
		if c.enqueue(frame) {
			n++
		}
	}
	return n
}

// ServeHTTP authenticates the request, upgrades it and serves the connection
// until it closes.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	claims, err := g.authn.Authenticate(r)
	if err != nil {
		g.stats.refused.Add(1)
		switch {
		case errors.Is(err, auth.ErrMissingToken):
			http.Error(w, "missing auth token", http.StatusBadRequest)
		default:
			http.Error(w, "invalid token", http.StatusUnauthorized)
		}
		return
	}
	listID := r.URL.Query().Get("listId")
	if listID == "" {
		g.stats.refused.Add(1)
		http.Error(w, "missing listId", http.StatusBadRequest)
		return
	}
	if !g.track() {
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}
	defer g.wg.Done()

	ws, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.Debug("upgrade failed", logpkg.Err(err))
		return
	}
	c := &conn{
		id:     uuid.NewString(),
		listID: listID,
		room:   command.RoomKey(listID),
		userID: claims.UserID,
		ws:     ws,
		gw:     g,
		send:   make(chan []byte, g.opts.SendBuffer),
		closed: make(chan struct{}),
	}
	c.logger = g.logger.With(
		logpkg.Str(logpkg.ConnIDKey, c.id),
		logpkg.Str(logpkg.ListIDKey, listID),
		logpkg.Str("user_id", claims.UserID),
	)
	g.stats.accepted.Add(1)
	if g.rooms.join(c) && g.opts.Observer != nil {
		g.opts.Observer.RoomOpened(listID)
	}
	c.logger.Debug("client joined")

	go func() {
		select {
		case <-g.ctx.Done():
			c.close()
		case <-c.closed:
		}
	}()
	go c.readPump(g.ctx)
	c.writePump()

	if g.rooms.leave(c) && g.opts.Observer != nil {
		g.opts.Observer.RoomClosed(listID)
	}
	c.logger.Debug("client left")
}

// track counts a connection in g.wg unless the gateway is closing.
func (g *Gateway) track() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.ctx.Err() != nil {
		return false
	}
	g.wg.Add(1)
	return true
}

// Stats is a snapshot of gateway activity.
type Stats struct {
	Rooms       int   `json:"rooms"`
	Connections int   `json:"connections"`
	Accepted    int64 `json:"accepted"`
	Refused     int64 `json:"refused"`
	Inbound     int64 `json:"inbound"`
	Routed      int64 `json:"routed"`
	Rejected    int64 `json:"rejected"`
	Outbound    int64 `json:"outbound"`
	SlowClients int64 `json:"slowClients"`
}

// Stats returns current counters.
func (g *Gateway) Stats() Stats {
	rooms, conns := g.rooms.counts()
	return Stats{
		Rooms:       rooms,
		Connections: conns,
		Accepted:    g.stats.accepted.Load(),
		Refused:     g.stats.refused.Load(),
		Inbound:     g.stats.inbound.Load(),
		Routed:      g.stats.routed.Load(),
		Rejected:    g.stats.rejected.Load(),
		Outbound:    g.stats.outbound.Load(),
		SlowClients: g.stats.slow.Load(),
	}
}

// Close disconnects every client and stops result delivery.
func (g *Gateway) Close() error {
	g.mu.Lock()
	g.cancel()
	sub := g.sub
	g.sub = nil
	g.mu.Unlock()
	var err error
	if sub != nil {
		err = sub.Close()
	}
	for _, c := range g.rooms.all() {
		c.close()
	}
	g.wg.Wait()
	return err
}
