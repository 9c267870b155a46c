package handler

import (
	"net/http"
)

func (api *API) RegisterMetricsApi() {
	api.mux.HandleFunc("/api/metrics", api.handleMetrics)
}

func (api *API) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if !readOnly(w, r) {
		return
	}
	writeJson(w, http.StatusOK, api.MetricsSnapshot())
}

// MetricsSnapshot is shared with the metrics websocket.
func (api *API) MetricsSnapshot() MetricsResponse {
	var resp MetricsResponse
	if api.metrics != nil {
		resp.Snapshot = api.metrics.Snapshot()
	}
	resp.Workers = []WorkerInfo{}
	if api.pool != nil {
		for _, w := range api.pool.Workers() {
			packets, state := w.GetStats()
			resp.Workers = append(resp.Workers, WorkerInfo{Queue: w.Queue(), Packets: packets, State: state})
		}
	}
	return resp
}
