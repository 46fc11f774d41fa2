package transports

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"
)

// HTTPTransport implements API over the REST endpoints.
type HTTPTransport struct {
	base   string
	client *http.Client
}

// NewHTTPTransport constructs a transport for the server at base
// (e.g. http://127.0.0.1:8080).
func NewHTTPTransport(base string) *HTTPTransport {
	return &HTTPTransport{base: strings.TrimRight(base, "/"), client: &http.Client{Timeout: 30 * time.Second}}
}

func (t *HTTPTransport) do(ctx context.Context, method, path, token string, body, out any) error {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, t.base+path, rd)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		var e struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&e)
		if e.Error == "" {
			e.Error = resp.Status
		}
		return &APIError{Status: resp.StatusCode, Message: e.Error}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

type credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Register creates a user and returns its session.
func (t *HTTPTransport) Register(ctx context.Context, username, password string) (Session, error) {
	var s Session
	err := t.do(ctx, http.MethodPost, "/api/v1/register", "", credentials{username, password}, &s)
	return s, err
}

// Login exchanges credentials for a token.
func (t *HTTPTransport) Login(ctx context.Context, username, password string) (Session, error) {
	var s Session
	err := t.do(ctx, http.MethodPost, "/api/v1/login", "", credentials{username, password}, &s)
	return s, err
}

// Lists returns the caller's lists.
func (t *HTTPTransport) Lists(ctx context.Context, token string) ([]List, error) {
	var out []List
	err := t.do(ctx, http.MethodGet, "/api/v1/lists", token, nil, &out)
	return out, err
}

// CreateList creates a list owned by the caller.
func (t *HTTPTransport) CreateList(ctx context.Context, token, name string) (List, error) {
	var l List
	err := t.do(ctx, http.MethodPost, "/api/v1/lists", token, map[string]string{"name": name}, &l)
	return l, err
}

// CreateTodo submits an item creation. The item is announced on the list's
// websocket room once the lane has applied it.
func (t *HTTPTransport) CreateTodo(ctx context.Context, token, listID, description string) (Accepted, error) {
	var a Accepted
	body := map[string]string{"listId": listID, "description": description}
	err := t.do(ctx, http.MethodPost, "/api/v1/todos", token, body, &a)
	return a, err
}
