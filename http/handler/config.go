package handler

import (
	"net/http"
)

func (api *API) RegisterConfigApi() {
	api.mux.HandleFunc("/api/config", api.handleConfig)
}

func (api *API) handleConfig(w http.ResponseWriter, r *http.Request) {
	if !readOnly(w, r) {
		return
	}

	resp := ConfigResponse{Config: api.cfg, Queues: []QueueInfo{}}
	for _, b := range api.rt.Bindings {
		qi := QueueInfo{Queue: b.Queue, Group: b.Group, Persona: "weighted"}
		switch {
		case b.Unresolved:
			qi.Persona = "unresolved:" + b.PersonaName
		case b.Persona != nil:
			qi.Persona = b.Persona.Name
		}
		resp.Queues = append(resp.Queues, qi)
	}
	writeJson(w, http.StatusOK, resp)
}
