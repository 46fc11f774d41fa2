package controllers

import (
	"github.com/gorilla/mux"

	"github.com/rzbill/listsync/internal/runtime"
	logpkg "github.com/rzbill/listsync/pkg/log"
)

// ControllerRegistry manages all HTTP controllers.
type ControllerRegistry struct {
	general *GeneralController
	users   *UsersController
	lists   *ListsController
	todos   *TodosController
}

// NewControllerRegistry builds the controllers the runtime's role supports:
// user and list endpoints need the store, so gateway-only processes skip them.
func NewControllerRegistry(rt *runtime.Runtime, logger logpkg.Logger) *ControllerRegistry {
	reg := &ControllerRegistry{
		general: NewGeneralController(rt),
		todos:   NewTodosController(rt.Router(), rt.Issuer(), logger),
	}
	if st := rt.Store(); st != nil {
		reg.users = NewUsersController(st, rt.Issuer(), logger)
		reg.lists = NewListsController(st, rt.Issuer(), logger)
	}
	return reg
}

// RegisterAllRoutes registers all controller routes with r.
func (reg *ControllerRegistry) RegisterAllRoutes(r *mux.Router) {
	reg.general.RegisterRoutes(r)
	reg.todos.RegisterRoutes(r)
	if reg.users != nil {
		reg.users.RegisterRoutes(r)
	}
	if reg.lists != nil {
		reg.lists.RegisterRoutes(r)
	}
}
