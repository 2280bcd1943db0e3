package controllers

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/orgforge/divisions/pkg/application"
)

type HealthController struct {
	app application.Application
}

func NewHealthController(app application.Application) application.Controller {
	return &HealthController{app: app}
}

func (c *HealthController) Key() string {
	return "/health"
}

func (c *HealthController) Register(r *mux.Router) {
	r.HandleFunc("/health", c.Get).Methods(http.MethodGet)
}

func (c *HealthController) Get(w http.ResponseWriter, r *http.Request) {
	type healthResponse struct {
		Status   string `json:"status"`
		Database string `json:"database"`
	}

	resp := healthResponse{Status: "ok", Database: "ok"}
	status := http.StatusOK
	if pool := c.app.DB(); pool != nil {
		if err := pool.Ping(r.Context()); err != nil {
			resp.Status = "degraded"
			resp.Database = err.Error()
			status = http.StatusServiceUnavailable
		}
	} else {
		resp.Database = "not configured"
	}
	writeJSON(w, status, resp)
}
