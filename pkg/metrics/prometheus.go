package metrics

import (
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/orgforge/divisions/pkg/application"
)

type prometheusController struct {
	path string
}

// NewPrometheusController exposes the default registry at the given path.
func NewPrometheusController(path string) application.Controller {
	return &prometheusController{path: path}
}

func (c *prometheusController) Key() string {
	return c.path
}

func (c *prometheusController) Register(r *mux.Router) {
	r.Handle(c.path, promhttp.Handler()).Methods("GET")
}
