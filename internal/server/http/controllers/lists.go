package controllers

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/rzbill/listsync/internal/auth"
	"github.com/rzbill/listsync/internal/store"
	logpkg "github.com/rzbill/listsync/pkg/log"
)

// ListsController serves list CRUD for the authenticated user.
type ListsController struct {
	store  store.Store
	issuer *auth.Issuer
	logger logpkg.Logger
}

// NewListsController creates a new lists controller.
func NewListsController(st store.Store, issuer *auth.Issuer, logger logpkg.Logger) *ListsController {
	return &ListsController{store: st, issuer: issuer, logger: logger}
}

// RegisterRoutes registers the /api/v1/lists endpoints behind bearer auth.
func (c *ListsController) RegisterRoutes(r *mux.Router) {
	sub := r.PathPrefix("/api/v1/lists").Subrouter()
	sub.Use(RequireAuth(c.issuer))
	sub.Methods(http.MethodGet).Path("").HandlerFunc(c.handleList)
	sub.Methods(http.MethodPost).Path("").HandlerFunc(c.handleCreate)
	sub.Methods(http.MethodGet).Path("/{listId}").HandlerFunc(c.handleGet)
}

func (c *ListsController) handleList(w http.ResponseWriter, r *http.Request) {
	claims, _ := ClaimsFrom(r.Context())
	lists, err := c.store.ListsByOwner(r.Context(), claims.UserID)
	if err != nil {
		c.logger.Error("list lists failed", logpkg.Err(err))
		writeError(w, statusFor(err), "failed to fetch lists")
		return
	}
	writeJSON(w, lists)
}

func (c *ListsController) handleCreate(w http.ResponseWriter, r *http.Request) {
	claims, _ := ClaimsFrom(r.Context())
	var req createListReq
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	name := strings.TrimSpace(req.Name)
	if len(name) > 255 {
		writeError(w, http.StatusBadRequest, "name: must be at most 255 characters")
		return
	}
	l, err := c.store.CreateList(r.Context(), claims.UserID, name)
	if err != nil {
		c.logger.Error("create list failed", logpkg.Err(err))
		writeError(w, statusFor(err), "failed to create list")
		return
	}
	writeStatusJSON(w, http.StatusCreated, l)
}

func (c *ListsController) handleGet(w http.ResponseWriter, r *http.Request) {
	listID := mux.Vars(r)["listId"]
	l, err := c.store.GetList(r.Context(), listID)
	if err != nil {
		writeError(w, statusFor(err), "list not found")
		return
	}
	writeJSON(w, l)
}
