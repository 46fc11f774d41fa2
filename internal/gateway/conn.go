package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rzbill/listsync/internal/command"
	logpkg "github.com/rzbill/listsync/pkg/log"
)

// conn is one websocket client. readPump and writePump are its only
// goroutines; closed is closed exactly once by close.
type conn struct {
	id     string
	listID string
	room   string
	userID string

	ws     *websocket.Conn
	gw     *Gateway
	logger logpkg.Logger

	send      chan []byte
	closeOnce sync.Once
	closed    chan struct{}
}

// enqueue queues a frame for the write pump. A full buffer disconnects the
// client.
func (c *conn) enqueue(frame []byte) bool {
	select {
	case <-c.closed:
		return false
	default:
	}
	select {
	case c.send <- frame:
		return true
	case <-c.closed:
		return false
	default:
		c.logger.Warn("send buffer full, disconnecting slow client")
		c.gw.stats.slow.Add(1)
		c.close()
		return false
	}
}

func (c *conn) close() {
	c.closeOnce.Do(func() {
		close(c.closed)
	})
}

func (c *conn) readPump(ctx context.Context) {
	defer c.close()
	o := c.gw.opts
	c.ws.SetReadLimit(o.MaxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(o.PongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(o.PongWait))
	})
	for {
		_, msg, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				c.logger.Debug("read failed", logpkg.Err(err))
			}
			return
		}
		c.handle(ctx, msg)
	}
}

// handle turns one inbound frame into a routed command or an error frame.
func (c *conn) handle(ctx context.Context, msg []byte) {
	c.gw.stats.inbound.Add(1)
	var f Frame
	if err := json.Unmarshal(msg, &f); err != nil || f.Event == "" {
		c.reject("", fmt.Errorf("%w: malformed frame", command.ErrValidation))
		return
	}
	meta := command.Meta{IssuedBy: c.userID, Origin: c.gw.router.Origin(), ConnID: c.id}
	cmd, err := command.FromEvent(f.Event, f.Data, meta)
	if err != nil {
		c.reject(peekCommandID(f.Data), err)
		return
	}
	m := cmd.Metadata()
	if m.ListID != c.listID {
		c.reject(m.CommandID, fmt.Errorf("%w: listId %q does not match this connection", ErrForbidden, m.ListID))
		return
	}
	if fa, ok := cmd.(command.FetchAll); ok && c.gw.checkFilter != nil {
		if err := c.gw.checkFilter(fa.Filter); err != nil {
			c.reject(m.CommandID, err)
			return
		}
	}
	rctx, cancel := context.WithTimeout(ctx, c.gw.opts.RouteTimeout)
	defer cancel()
	if err := c.gw.router.Route(rctx, cmd); err != nil {
		c.logger.Error("route command failed",
			logpkg.Str(logpkg.CommandIDKey, m.CommandID), logpkg.Str("kind", string(cmd.Kind())), logpkg.Err(err))
		c.reject(m.CommandID, errors.New("command could not be accepted, retry later"))
		return
	}
	c.gw.stats.routed.Add(1)
}

func (c *conn) reject(commandID string, cause error) {
	c.gw.stats.rejected.Add(1)
	c.logger.Debug("frame rejected", logpkg.Str(logpkg.CommandIDKey, commandID), logpkg.Err(cause))
	c.enqueue(errorFrame(commandID, cause))
}

func (c *conn) writePump() {
	o := c.gw.opts
	ticker := time.NewTicker(o.PingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()
	for {
		select {
		case frame := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(o.WriteWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.close()
				return
			}
			c.gw.stats.outbound.Add(1)
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(o.WriteWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.close()
				return
			}
		case <-c.closed:
			_ = c.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(o.WriteWait))
			return
		}
	}
}

func peekCommandID(data json.RawMessage) string {
	var v struct {
		CommandID string `json:"commandId"`
	}
	_ = json.Unmarshal(data, &v)
	return v.CommandID
}
