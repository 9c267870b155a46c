package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/daniellavrushin/weaver/config"
	"github.com/daniellavrushin/weaver/health"
	"github.com/daniellavrushin/weaver/log"
	"github.com/daniellavrushin/weaver/metrics"
	"github.com/daniellavrushin/weaver/nfq"
)

var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// API serves the read-only observability endpoints. Every dependency is
// handed in by main; pool and collector may be nil.
type API struct {
	cfg      *config.Config
	rt       *config.Runtime
	registry *health.Registry
	metrics  *metrics.Collector
	pool     *nfq.Pool
	mux      *http.ServeMux
	now      func() time.Time
}

func NewAPIHandler(cfg *config.Config, rt *config.Runtime, reg *health.Registry, m *metrics.Collector, pool *nfq.Pool) *API {
	return &API{
		cfg:      cfg,
		rt:       rt,
		registry: reg,
		metrics:  m,
		pool:     pool,
		now:      time.Now,
	}
}

func (api *API) RegisterEndpoints(mux *http.ServeMux) {
	api.mux = mux

	api.RegisterHealthApi()
	api.RegisterMetricsApi()
	api.RegisterConfigApi()
	api.RegisterSystemApi()
}

func setJsonHeader(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
}

func writeJson(w http.ResponseWriter, status int, v any) {
	setJsonHeader(w)
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Tracef("failed to encode response: %v", err)
	}
}

func readOnly(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return false
	}
	return true
}
