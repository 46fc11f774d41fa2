package controllers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/rzbill/listsync/internal/auth"
	"github.com/rzbill/listsync/internal/command"
	"github.com/rzbill/listsync/internal/store"
	logpkg "github.com/rzbill/listsync/pkg/log"
)

// UsersController registers users and issues tokens.
type UsersController struct {
	store  store.Store
	issuer *auth.Issuer
	logger logpkg.Logger
}

// NewUsersController creates a new users controller.
func NewUsersController(st store.Store, issuer *auth.Issuer, logger logpkg.Logger) *UsersController {
	return &UsersController{store: st, issuer: issuer, logger: logger}
}

// RegisterRoutes registers the registration and login endpoints and the
// authenticated user lookups.
func (c *UsersController) RegisterRoutes(r *mux.Router) {
	authed := RequireAuth(c.issuer)
	r.Methods(http.MethodPost).Path("/api/v1/users").HandlerFunc(c.handleRegister)
	r.Methods(http.MethodPost).Path("/api/v1/register").HandlerFunc(c.handleRegister)
	r.Methods(http.MethodPost).Path("/api/v1/login").HandlerFunc(c.handleLogin)
	r.Methods(http.MethodGet).Path("/api/v1/users").Handler(authed(http.HandlerFunc(c.handleListUsers)))
	r.Methods(http.MethodGet).Path("/api/v1/users/{userId}").Handler(authed(http.HandlerFunc(c.handleGetUser)))
}

func validCredentials(req credentialsReq) error {
	name := strings.TrimSpace(req.Username)
	switch {
	case name == "" || len(name) > 64:
		return &command.ValidationError{Path: "username", Message: "must be 1-64 characters"}
	case len(req.Password) < 6 || len(req.Password) > 72:
		return &command.ValidationError{Path: "password", Message: "must be 6-72 characters"}
	}
	return nil
}

func (c *UsersController) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req credentialsReq
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := validCredentials(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to hash password")
		return
	}
	u, err := c.store.CreateUser(r.Context(), strings.TrimSpace(req.Username), hash)
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			writeError(w, http.StatusConflict, "username already taken")
			return
		}
		c.logger.Error("create user failed", logpkg.Err(err))
		writeError(w, statusFor(err), "failed to create user")
		return
	}
	tok, err := c.issuer.Issue(u.ID, u.Username, u.CreatedAt)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to issue token")
		return
	}
	writeStatusJSON(w, http.StatusCreated, loginResp{ID: u.ID, Username: u.Username, Token: tok})
}

func (c *UsersController) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req credentialsReq
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	u, hash, err := c.store.UserByUsername(r.Context(), strings.TrimSpace(req.Username))
	if err == nil {
		err = auth.CheckPassword(hash, req.Password)
	}
	if err != nil {
		if errors.Is(err, store.ErrNotFound) || errors.Is(err, auth.ErrBadCredentials) {
			writeError(w, http.StatusUnauthorized, "invalid username or password")
			return
		}
		c.logger.Error("login failed", logpkg.Err(err))
		writeError(w, http.StatusInternalServerError, "login failed")
		return
	}
	tok, err := c.issuer.Issue(u.ID, u.Username, u.CreatedAt)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to issue token")
		return
	}
	writeJSON(w, loginResp{ID: u.ID, Username: u.Username, Token: tok})
}

func (c *UsersController) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := c.store.ListUsers(r.Context())
	if err != nil {
		c.logger.Error("list users failed", logpkg.Err(err))
		writeError(w, statusFor(err), "failed to fetch users")
		return
	}
	writeJSON(w, users)
}

func (c *UsersController) handleGetUser(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["userId"]
	if _, err := uuid.Parse(userID); err != nil {
		writeError(w, http.StatusBadRequest, "userId: must be a uuid")
		return
	}
	u, err := c.store.GetUser(r.Context(), userID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			c.logger.Error("get user failed", logpkg.Err(err))
		}
		writeError(w, statusFor(err), "user not found")
		return
	}
	writeJSON(w, u)
}
