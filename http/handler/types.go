package handler

import (
	"time"

	"github.com/daniellavrushin/weaver/metrics"
)

type VersionInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildDate string `json:"build_date"`
	Instance  string `json:"instance,omitempty"`
}

type SystemInfo struct {
	OS        string    `json:"os"`
	Arch      string    `json:"arch"`
	GoVersion string    `json:"go_version"`
	PID       int       `json:"pid"`
	StartTime time.Time `json:"start_time"`
}

type WorkerInfo struct {
	Queue   uint16 `json:"queue"`
	Packets uint64 `json:"packets"`
	State   string `json:"state"`
}

// MetricsResponse is the collector snapshot plus the live worker states.
type MetricsResponse struct {
	metrics.Snapshot
	Workers []WorkerInfo `json:"workers"`
}

type QueueInfo struct {
	Queue   uint16 `json:"queue"`
	Group   string `json:"group,omitempty"`
	Persona string `json:"persona"`
}

// ConfigResponse is the effective configuration with the resolved queue map.
type ConfigResponse struct {
	Config any         `json:"config"`
	Queues []QueueInfo `json:"queues"`
}
