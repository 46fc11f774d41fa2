package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cfgpkg "github.com/rzbill/listsync/internal/config"
	"github.com/rzbill/listsync/internal/runtime"
	logpkg "github.com/rzbill/listsync/pkg/log"
)

func newTestServer(t *testing.T) (*runtime.Runtime, http.Handler) {
	t.Helper()
	cfg := cfgpkg.Default()
	cfg.DataDir = t.TempDir()
	cfg.Auth.Secret = "test-secret"
	rt, err := runtime.Open(context.Background(), runtime.Options{Config: cfg, Logger: logpkg.Nop()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = rt.Close() })
	return rt, New(rt, logpkg.Nop()).Handler()
}

func do(t *testing.T, h http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func register(t *testing.T, h http.Handler, name string) (id, token string) {
	t.Helper()
	w := do(t, h, http.MethodPost, "/api/v1/register", "", map[string]string{"username": name, "password": "secret1"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var resp struct {
		ID    string `json:"id"`
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.ID, resp.Token
}

func TestHealthHandler(t *testing.T) {
	_, h := newTestServer(t)
	w := do(t, h, http.MethodGet, "/v1/healthz", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())

	w = do(t, h, http.MethodGet, "/v1/stats", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"lanes"`)
}

func TestRegisterAndLogin(t *testing.T) {
	_, h := newTestServer(t)
	id, token := register(t, h, "alice")
	assert.NotEmpty(t, id)
	assert.NotEmpty(t, token)

	w := do(t, h, http.MethodPost, "/api/v1/users", "", map[string]string{"username": "alice", "password": "secret1"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = do(t, h, http.MethodPost, "/api/v1/login", "", map[string]string{"username": "alice", "password": "secret1"})
	require.Equal(t, http.StatusOK, w.Code)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, id, resp["id"])
	assert.NotEmpty(t, resp["token"])

	w = do(t, h, http.MethodPost, "/api/v1/login", "", map[string]string{"username": "alice", "password": "wrong!!"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = do(t, h, http.MethodPost, "/api/v1/register", "", map[string]string{"username": "", "password": "secret1"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListsRequireAuth(t *testing.T) {
	_, h := newTestServer(t)
	w := do(t, h, http.MethodGet, "/api/v1/lists", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	w = do(t, h, http.MethodGet, "/api/v1/lists", "not-a-token", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestUserLookups(t *testing.T) {
	_, h := newTestServer(t)
	aliceID, token := register(t, h, "alice")
	bobID, _ := register(t, h, "bob")

	w := do(t, h, http.MethodGet, "/api/v1/users", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	w = do(t, h, http.MethodGet, "/api/v1/users/"+bobID, "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = do(t, h, http.MethodGet, "/api/v1/users", token, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var users []map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &users))
	require.Len(t, users, 2)
	assert.ElementsMatch(t, []any{aliceID, bobID}, []any{users[0]["id"], users[1]["id"]})
	assert.NotContains(t, w.Body.String(), "password")

	w = do(t, h, http.MethodGet, "/api/v1/users/"+bobID, token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var user map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &user))
	assert.Equal(t, "bob", user["username"])

	w = do(t, h, http.MethodGet, "/api/v1/users/not-a-uuid", token, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = do(t, h, http.MethodGet, "/api/v1/users/00000000-0000-4000-8000-000000000000", token, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListsCRUD(t *testing.T) {
	_, h := newTestServer(t)
	_, token := register(t, h, "bob")

	w := do(t, h, http.MethodPost, "/api/v1/lists", token, map[string]string{"name": "groceries"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var created map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	listID, _ := created["id"].(string)
	require.NotEmpty(t, listID)

	w = do(t, h, http.MethodGet, "/api/v1/lists", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "groceries")

	w = do(t, h, http.MethodGet, "/api/v1/lists/"+listID, token, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w = do(t, h, http.MethodGet, "/api/v1/lists/missing", token, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCreateTodoAccepted(t *testing.T) {
	rt, h := newTestServer(t)
	_, token := register(t, h, "carol")
	w := do(t, h, http.MethodPost, "/api/v1/lists", token, map[string]string{"name": "trip"})
	require.Equal(t, http.StatusCreated, w.Code)
	var list map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	listID := list["id"].(string)

	w = do(t, h, http.MethodPost, "/api/v1/todos", token, map[string]string{"listId": listID, "description": "passport"})
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	var ack map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &ack))
	assert.Equal(t, "Accepted", ack["status"])
	assert.NotEmpty(t, ack["commandId"])

	require.NoError(t, rt.Registry().Drain(context.Background()))
	items, err := rt.Store().ListItems(context.Background(), listID)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, ack["todoId"], items[0].ID)
	assert.Equal(t, "passport", items[0].Description)
}

func TestCreateTodoValidation(t *testing.T) {
	_, h := newTestServer(t)
	_, token := register(t, h, "dave")
	w := do(t, h, http.MethodPost, "/api/v1/todos", token, map[string]string{"description": "no list"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = do(t, h, http.MethodPost, "/api/v1/todos", "", map[string]string{"listId": "l1"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestCORSPreflight(t *testing.T) {
	_, h := newTestServer(t)
	w := do(t, h, http.MethodOptions, "/api/v1/lists", "", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}
