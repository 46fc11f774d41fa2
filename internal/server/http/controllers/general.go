package controllers

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/rzbill/listsync/internal/runtime"
)

// GeneralController serves health and stats.
type GeneralController struct {
	rt *runtime.Runtime
}

// NewGeneralController creates a new general controller.
func NewGeneralController(rt *runtime.Runtime) *GeneralController {
	return &GeneralController{rt: rt}
}

// RegisterRoutes registers /v1/healthz and /v1/stats.
func (c *GeneralController) RegisterRoutes(r *mux.Router) {
	r.Methods(http.MethodGet).Path("/v1/healthz").HandlerFunc(c.handleHealth)
	r.Methods(http.MethodGet).Path("/v1/stats").HandlerFunc(c.handleStats)
}

// handleHealth returns 200 {"status":"ok"} when healthy, 503 otherwise.
func (c *GeneralController) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := c.rt.CheckHealth(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "not_serving")
		return
	}
	writeJSON(w, map[string]string{"status": "ok"})
}

func (c *GeneralController) handleStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, c.rt.Stats())
}
