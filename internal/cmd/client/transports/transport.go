// Package transports provides the HTTP and websocket transports used by the
// CLI.
package transports

import (
	"context"
	"encoding/json"
	"fmt"
)

// Session is the result of register and login.
type Session struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Token    string `json:"token"`
}

// List is a todo list as returned by the REST API.
type List struct {
	ID      string `json:"id"`
	OwnerID string `json:"user_id"`
	Name    string `json:"name"`
}

// Accepted acknowledges a create submitted over REST.
type Accepted struct {
	Status    string `json:"status"`
	CommandID string `json:"commandId"`
	TodoID    string `json:"todoId"`
}

// Frame is one websocket message.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// APIError is a non-2xx REST response.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("status %d: %s", e.Status, e.Message)
}

// API abstracts the REST surface.
type API interface {
	Register(ctx context.Context, username, password string) (Session, error)
	Login(ctx context.Context, username, password string) (Session, error)
	Lists(ctx context.Context, token string) ([]List, error)
	CreateList(ctx context.Context, token, name string) (List, error)
	CreateTodo(ctx context.Context, token, listID, description string) (Accepted, error)
}

// Watcher abstracts a websocket session on one list.
type Watcher interface {
	// Send writes one event frame.
	Send(event string, data any) error
	// Next blocks for the next frame.
	Next() (Frame, error)
	Close() error
}
