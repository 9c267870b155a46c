package config

import (
	"bytes"
	"os"

	"github.com/daniellavrushin/weaver/log"
	"gopkg.in/yaml.v3"
)

var DefaultConfig = Config{
	NFQueue: NFQueueConfig{
		MaxQueueLen: 1024,
		CopyRange:   RecommendedCopyRange,
		FailOpen:    true,
		OnError:     OnErrorAccept,
	},
	Selection: SelectionConfig{
		Mode: SelectionWeighted,
	},
	Handler: HandlerConfig{
		LabMutation: LabMutationConfig{
			TCPOptionsMode: OptionsReorderOnly,
		},
	},
	Observability: ObservabilityConfig{
		HealthBind:        "127.0.0.1:9090",
		HealthIntervalSec: 60,
	},
	Logging: LoggingConfig{
		Level:      "info",
		Instaflush: true,
	},
}

// NewConfig returns a copy of DefaultConfig that shares no slices or maps
// with it.
func NewConfig() Config {
	c := DefaultConfig
	c.NFQueue.Numbers = nil
	c.ProxyGroups = nil
	c.Personas = nil
	c.Selection.Weighted = nil
	c.Handler.LabMutation.Targets = nil
	return c
}

// LoadFromFile decodes a YAML (or JSON) file over the current values. Keys
// that the handler does not use are ignored so one file can serve the
// manager as well.
func (c *Config) LoadFromFile(path string) error {
	if path == "" {
		log.Tracef("config path is not defined")
		return nil
	}

	info, err := os.Stat(path)
	if err != nil {
		return log.Errorf("failed to stat config file: %v", err)
	}
	if info.IsDir() {
		return log.Errorf("config path is a directory, not a file: %s", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return log.Errorf("failed to read config file: %v", err)
	}
	if err := c.decode(data); err != nil {
		return log.Errorf("failed to parse config file: %v", err)
	}
	return nil
}

func (c *Config) decode(data []byte) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	return yaml.Unmarshal(data, c)
}

func (c *Config) SaveToFile(path string) error {
	if path == "" {
		log.Tracef("config path is not defined")
		return nil
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return log.Errorf("failed to marshal config: %v", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return log.Errorf("failed to write config file: %v", err)
	}
	return nil
}
