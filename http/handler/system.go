package handler

import (
	"net/http"
	"os"
	"runtime"
)

func (api *API) RegisterSystemApi() {
	api.mux.HandleFunc("/api/version", api.handleVersion)
	api.mux.HandleFunc("/api/system/info", api.handleSystemInfo)
}

func (api *API) handleVersion(w http.ResponseWriter, r *http.Request) {
	if !readOnly(w, r) {
		return
	}
	info := VersionInfo{
		Version:   Version,
		Commit:    Commit,
		BuildDate: Date,
	}
	if api.metrics != nil {
		info.Instance = api.metrics.Instance()
	}
	writeJson(w, http.StatusOK, info)
}

func (api *API) handleSystemInfo(w http.ResponseWriter, r *http.Request) {
	if !readOnly(w, r) {
		return
	}
	info := SystemInfo{
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
		GoVersion: runtime.Version(),
		PID:       os.Getpid(),
	}
	if api.metrics != nil {
		info.StartTime = api.metrics.Snapshot().StartTime
	}
	writeJson(w, http.StatusOK, info)
}
