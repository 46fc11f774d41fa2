package controllers

import (
	"context"
	"io"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/rzbill/listsync/internal/auth"
	"github.com/rzbill/listsync/internal/command"
	logpkg "github.com/rzbill/listsync/pkg/log"
)

// Router routes commands to the lanes. *dispatch.Router implements it.
type Router interface {
	Route(ctx context.Context, cmd command.Command) error
	Origin() string
}

// TodosController accepts item creation over REST. The item itself arrives
// on the websocket like any other create.
type TodosController struct {
	router Router
	issuer *auth.Issuer
	logger logpkg.Logger
}

// NewTodosController creates a new todos controller.
func NewTodosController(router Router, issuer *auth.Issuer, logger logpkg.Logger) *TodosController {
	return &TodosController{router: router, issuer: issuer, logger: logger}
}

// RegisterRoutes registers POST /api/v1/todos behind bearer auth.
func (c *TodosController) RegisterRoutes(r *mux.Router) {
	sub := r.PathPrefix("/api/v1/todos").Subrouter()
	sub.Use(RequireAuth(c.issuer))
	sub.Methods(http.MethodPost).Path("").HandlerFunc(c.handleCreate)
}

func (c *TodosController) handleCreate(w http.ResponseWriter, r *http.Request) {
	claims, _ := ClaimsFrom(r.Context())
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read body")
		return
	}
	// same validation as the create_todo websocket event
	cmd, err := command.FromEvent(command.EventCreateTodo, raw, command.Meta{
		IssuedBy: claims.UserID,
		Origin:   c.router.Origin(),
	})
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	create := cmd.(command.CreateItem)
	if err := c.router.Route(r.Context(), create); err != nil {
		if status := statusFor(err); status != http.StatusInternalServerError {
			writeError(w, status, err.Error())
			return
		}
		c.logger.Error("route create failed", logpkg.Str(logpkg.ListIDKey, create.ListID), logpkg.Err(err))
		writeError(w, http.StatusServiceUnavailable, "command could not be accepted")
		return
	}
	writeStatusJSON(w, http.StatusAccepted, createTodoResp{Status: "Accepted", CommandID: create.CommandID, TodoID: create.ItemID})
}
