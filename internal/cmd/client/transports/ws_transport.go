package transports

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"
)

// WSWatcher implements Watcher over the gateway websocket.
type WSWatcher struct {
	conn *websocket.Conn
}

// DialWatch opens a websocket on listID's room. base is the HTTP base URL;
// its scheme is mapped to ws or wss.
func DialWatch(ctx context.Context, base, token, listID string) (*WSWatcher, error) {
	u, err := url.Parse(strings.TrimRight(base, "/") + "/ws")
	if err != nil {
		return nil, err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	q := u.Query()
	q.Set("listId", listID)
	u.RawQuery = q.Encode()

	h := http.Header{}
	h.Set("Authorization", "Bearer "+token)
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, u.String(), h)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("websocket handshake: %s: %w", resp.Status, err)
		}
		return nil, err
	}
	return &WSWatcher{conn: conn}, nil
}

// Send writes {"event": event, "data": data}.
func (w *WSWatcher) Send(event string, data any) error {
	b, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return w.conn.WriteJSON(Frame{Event: event, Data: b})
}

// Next reads the next frame.
func (w *WSWatcher) Next() (Frame, error) {
	var f Frame
	err := w.conn.ReadJSON(&f)
	return f, err
}

// Close sends a close frame and closes the connection.
func (w *WSWatcher) Close() error {
	_ = w.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	return w.conn.Close()
}
