package handler

import (
	"net/http"

	"github.com/daniellavrushin/weaver/health"
)

func (api *API) RegisterHealthApi() {
	api.mux.HandleFunc("/health", api.handleHealth)
	api.mux.HandleFunc("/healthz", api.handleHealth)
}

// handleHealth answers 200 while every queue has seen a packet within the
// health window and 503 otherwise.
func (api *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !readOnly(w, r) {
		return
	}
	st := health.Evaluate(api.registry.Snapshot(), api.now(), api.rt.HealthWindow)
	code := http.StatusOK
	if !st.Healthy {
		code = http.StatusServiceUnavailable
	}
	writeJson(w, code, st)
}
