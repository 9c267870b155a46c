package config

import (
	"math"
	"strings"
	"testing"
)

func intp(v int) *int { return &v }

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"defaults", func(c *Config) {}, ""},
		{"queue number negative", func(c *Config) { c.NFQueue.Numbers = []int{-1} }, "nfqueue.numbers"},
		{"queue number too big", func(c *Config) { c.NFQueue.Numbers = []int{70000} }, "nfqueue.numbers"},
		{"group queue too big", func(c *Config) {
			c.ProxyGroups = []ProxyGroupConfig{{Name: "eu", NFQueueNum: intp(65536)}}
		}, "proxy_groups[0]"},
		{"max queue len", func(c *Config) { c.NFQueue.MaxQueueLen = 0 }, "max_queue_len"},
		{"copy range too small", func(c *Config) { c.NFQueue.CopyRange = 99 }, "copy_range"},
		{"copy range warned only", func(c *Config) { c.NFQueue.CopyRange = 100 }, ""},
		{"on_error", func(c *Config) { c.NFQueue.OnError = "reject" }, "on_error"},
		{"on_error case", func(c *Config) { c.NFQueue.OnError = " DROP " }, ""},
		{"persona ttl", func(c *Config) {
			c.Personas = map[string]PersonaConfig{"x": {TTL: intp(256)}}
		}, "personas.x: ttl"},
		{"persona ttl zero", func(c *Config) {
			c.Personas = map[string]PersonaConfig{"x": {TTL: intp(0)}}
		}, "personas.x: ttl"},
		{"persona window", func(c *Config) {
			c.Personas = map[string]PersonaConfig{"x": {WindowSize: intp(65536)}}
		}, "window_size"},
		{"persona option", func(c *Config) {
			c.Personas = map[string]PersonaConfig{"x": {TCPOptionsLayout: []OptionLayout{{Name: "mss"}, {Name: "fastopen"}}}}
		}, `unknown tcp option "fastopen"`},
		{"persona blank option skipped", func(c *Config) {
			c.Personas = map[string]PersonaConfig{"x": {TCPOptionsLayout: []OptionLayout{{Name: ""}, {Name: "SACK"}}}}
		}, ""},
		{"selection mode", func(c *Config) { c.Selection.Mode = "round_robin" }, "selection.mode"},
		{"selection weight zero", func(c *Config) {
			c.Selection.Weighted = []WeightedConfig{{Persona: "linux", Weight: 0}}
		}, "selection.weighted[0]"},
		{"selection weight nan", func(c *Config) {
			c.Selection.Weighted = []WeightedConfig{{Persona: "linux", Weight: math.NaN()}}
		}, "selection.weighted[0]"},
		{"target", func(c *Config) { c.Handler.LabMutation.Targets = []string{"10.0.0.0/33"} }, "targets"},
		{"target bare address", func(c *Config) { c.Handler.LabMutation.Targets = []string{"10.0.0.1", "::1"} }, ""},
		{"ip_tos", func(c *Config) { c.Handler.LabMutation.IPTos = intp(300) }, "ip_tos"},
		{"ipv6_tc", func(c *Config) { c.Handler.LabMutation.IPv6TC = intp(-1) }, "ipv6_tc"},
		{"ttl_override", func(c *Config) { c.Handler.LabMutation.TTLOverride = intp(0) }, "ttl_override"},
		{"options mode", func(c *Config) { c.Handler.LabMutation.TCPOptionsMode = "shuffle" }, "tcp_options_mode"},
		{"options mode empty", func(c *Config) { c.Handler.LabMutation.TCPOptionsMode = "" }, ""},
		{"health interval", func(c *Config) { c.Observability.HealthIntervalSec = 4 }, "health_interval_sec"},
		{"health bind", func(c *Config) { c.Observability.HealthBind = "localhost" }, "health_bind"},
		{"health bind disabled", func(c *Config) { c.Observability.HealthBind = "" }, ""},
		{"log level", func(c *Config) { c.Logging.Level = "chatty" }, "logging.level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("expected error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestValidateNormalizes(t *testing.T) {
	cfg := NewConfig()
	cfg.NFQueue.OnError = ""
	cfg.Selection.Mode = " Weighted"
	cfg.Handler.LabMutation.TCPOptionsMode = "OFF"
	if err := cfg.Validate(); err != nil {
		t.Fatal(err)
	}
	if cfg.NFQueue.OnError != OnErrorAccept {
		t.Errorf("on_error = %q", cfg.NFQueue.OnError)
	}
	if cfg.Selection.Mode != SelectionWeighted {
		t.Errorf("mode = %q", cfg.Selection.Mode)
	}
	if cfg.Handler.LabMutation.TCPOptionsMode != OptionsOff {
		t.Errorf("tcp_options_mode = %q", cfg.Handler.LabMutation.TCPOptionsMode)
	}
}
