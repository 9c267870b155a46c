package config

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

const (
	SelectionWeighted = "weighted"

	OnErrorAccept = "accept"
	OnErrorDrop   = "drop"

	OptionsReorderOnly = "reorder_only"
	OptionsOff         = "off"

	MinCopyRange         = 100
	RecommendedCopyRange = 128
	MinHealthInterval    = 5
)

type Config struct {
	ConfigPath string `json:"-" yaml:"-"`

	NFQueue       NFQueueConfig            `json:"nfqueue" yaml:"nfqueue"`
	ProxyGroups   []ProxyGroupConfig       `json:"proxy_groups" yaml:"proxy_groups"`
	Personas      map[string]PersonaConfig `json:"personas" yaml:"personas"`
	Selection     SelectionConfig          `json:"selection" yaml:"selection"`
	Handler       HandlerConfig            `json:"handler" yaml:"handler"`
	Observability ObservabilityConfig      `json:"observability" yaml:"observability"`
	Logging       LoggingConfig            `json:"logging" yaml:"logging"`
}

type NFQueueConfig struct {
	Numbers     []int  `json:"numbers" yaml:"numbers"`
	MaxQueueLen int    `json:"max_queue_len" yaml:"max_queue_len"`
	CopyRange   int    `json:"copy_range" yaml:"copy_range"`
	FailOpen    bool   `json:"fail_open" yaml:"fail_open"`
	OnError     string `json:"on_error" yaml:"on_error"`
}

// ProxyGroupConfig is the handler's view of a proxy group; the manager owns
// the remaining keys (subnet, ports, proxy type) and they are ignored here.
type ProxyGroupConfig struct {
	Name       string `json:"name" yaml:"name"`
	NFQueueNum *int   `json:"nfqueue_num,omitempty" yaml:"nfqueue_num"`
	Persona    string `json:"persona,omitempty" yaml:"persona"`
}

type PersonaConfig struct {
	TTL              *int           `json:"ttl,omitempty" yaml:"ttl"`
	WindowSize       *int           `json:"window_size,omitempty" yaml:"window_size"`
	TCPOptionsLayout []OptionLayout `json:"tcp_options_layout,omitempty" yaml:"tcp_options_layout"`
}

// OptionLayout names one slot of a persona's option order. Value is
// accepted for readability of persona files but never written to packets;
// reordering keeps each option's original bytes.
type OptionLayout struct {
	Name  string `json:"name" yaml:"name"`
	Value any    `json:"value,omitempty" yaml:"value,omitempty"`
}

// UnmarshalYAML accepts either `- mss` or `- {name: mss, value: 1460}`.
func (o *OptionLayout) UnmarshalYAML(n *yaml.Node) error {
	switch n.Kind {
	case yaml.ScalarNode:
		o.Name = n.Value
		return nil
	case yaml.MappingNode:
		type plain OptionLayout
		var p plain
		if err := n.Decode(&p); err != nil {
			return err
		}
		*o = OptionLayout(p)
		return nil
	}
	return fmt.Errorf("line %d: tcp option must be a name or a mapping", n.Line)
}

type SelectionConfig struct {
	Mode     string           `json:"mode" yaml:"mode"`
	Weighted []WeightedConfig `json:"weighted" yaml:"weighted"`
}

type WeightedConfig struct {
	Persona string  `json:"persona" yaml:"persona"`
	Weight  float64 `json:"weight" yaml:"weight"`
}

type HandlerConfig struct {
	LabMutation LabMutationConfig `json:"lab_mutation" yaml:"lab_mutation"`
}

type LabMutationConfig struct {
	Enable         bool     `json:"enable" yaml:"enable"`
	Targets        []string `json:"targets" yaml:"targets"`
	IPTos          *int     `json:"ip_tos,omitempty" yaml:"ip_tos"`
	IPv6TC         *int     `json:"ipv6_tc,omitempty" yaml:"ipv6_tc"`
	TTLOverride    *int     `json:"ttl_override,omitempty" yaml:"ttl_override"`
	TCPOptions     *bool    `json:"tcp_options,omitempty" yaml:"tcp_options"`
	TCPOptionsMode string   `json:"tcp_options_mode" yaml:"tcp_options_mode"`
}

// OptionsEnabled reports tcp_options, which defaults to true when unset.
func (l *LabMutationConfig) OptionsEnabled() bool {
	return l.TCPOptions == nil || *l.TCPOptions
}

type ObservabilityConfig struct {
	HealthBind        string `json:"health_bind" yaml:"health_bind"`
	HealthIntervalSec int    `json:"health_interval_sec" yaml:"health_interval_sec"`
}

type LoggingConfig struct {
	Level      string `json:"level" yaml:"level"`
	Instaflush bool   `json:"instaflush" yaml:"instaflush"`
	Syslog     bool   `json:"syslog" yaml:"syslog"`
	ErrorFile  string `json:"error_file" yaml:"error_file"`
}
