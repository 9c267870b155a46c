package config

import (
	"fmt"
	"math"
	"net"
	"strings"

	"github.com/daniellavrushin/weaver/log"
	"github.com/daniellavrushin/weaver/packet"
	"github.com/daniellavrushin/weaver/scope"
)

// ApplyLogLevel sets Logging.Level from a --verbose value. Unknown values
// fall back to info.
func (c *Config) ApplyLogLevel(level string) {
	l, err := log.ParseLevel(level)
	if err != nil {
		l = log.LevelInfo
	}
	c.Logging.Level = l.String()
}

func (c *Config) Validate() error {
	c.NFQueue.OnError = strings.ToLower(strings.TrimSpace(c.NFQueue.OnError))
	c.Selection.Mode = strings.ToLower(strings.TrimSpace(c.Selection.Mode))
	lab := &c.Handler.LabMutation
	lab.TCPOptionsMode = strings.ToLower(strings.TrimSpace(lab.TCPOptionsMode))

	for _, n := range c.NFQueue.Numbers {
		if err := checkQueue(n); err != nil {
			return fmt.Errorf("nfqueue.numbers: %w", err)
		}
	}
	if c.NFQueue.MaxQueueLen < 1 {
		return fmt.Errorf("nfqueue.max_queue_len must be at least 1")
	}
	if c.NFQueue.CopyRange < MinCopyRange || c.NFQueue.CopyRange > math.MaxUint16 {
		return fmt.Errorf("nfqueue.copy_range must be between %d and %d", MinCopyRange, math.MaxUint16)
	}
	if c.NFQueue.CopyRange < RecommendedCopyRange {
		log.Warnf("nfqueue.copy_range=%d may truncate TCP options, %d or more recommended", c.NFQueue.CopyRange, RecommendedCopyRange)
	}
	switch c.NFQueue.OnError {
	case OnErrorAccept, OnErrorDrop:
	case "":
		c.NFQueue.OnError = OnErrorAccept
	default:
		return fmt.Errorf("nfqueue.on_error must be accept or drop, got %q", c.NFQueue.OnError)
	}

	for i, g := range c.ProxyGroups {
		if g.NFQueueNum == nil {
			continue
		}
		if err := checkQueue(*g.NFQueueNum); err != nil {
			return fmt.Errorf("proxy_groups[%d] %q: nfqueue_num: %w", i, g.Name, err)
		}
	}

	for name, p := range c.Personas {
		if err := p.validate(); err != nil {
			return fmt.Errorf("personas.%s: %w", name, err)
		}
	}

	switch c.Selection.Mode {
	case SelectionWeighted:
	case "":
		c.Selection.Mode = SelectionWeighted
	default:
		return fmt.Errorf("selection.mode must be %q, got %q", SelectionWeighted, c.Selection.Mode)
	}
	for i, w := range c.Selection.Weighted {
		if math.IsNaN(w.Weight) || math.IsInf(w.Weight, 0) || w.Weight <= 0 {
			return fmt.Errorf("selection.weighted[%d] %q: weight must be a positive number", i, w.Persona)
		}
	}

	for _, t := range lab.Targets {
		if _, err := scope.ParseTarget(t); err != nil {
			return fmt.Errorf("handler.lab_mutation.targets: %w", err)
		}
	}
	if err := checkRange("handler.lab_mutation.ip_tos", lab.IPTos, 0, math.MaxUint8); err != nil {
		return err
	}
	if err := checkRange("handler.lab_mutation.ipv6_tc", lab.IPv6TC, 0, math.MaxUint8); err != nil {
		return err
	}
	if err := checkRange("handler.lab_mutation.ttl_override", lab.TTLOverride, 1, math.MaxUint8); err != nil {
		return err
	}
	switch lab.TCPOptionsMode {
	case OptionsReorderOnly, OptionsOff:
	case "":
		lab.TCPOptionsMode = OptionsReorderOnly
	default:
		return fmt.Errorf("handler.lab_mutation.tcp_options_mode must be %s or %s, got %q", OptionsReorderOnly, OptionsOff, lab.TCPOptionsMode)
	}

	if c.Observability.HealthIntervalSec < MinHealthInterval {
		return fmt.Errorf("observability.health_interval_sec must be at least %d", MinHealthInterval)
	}
	if c.Observability.HealthBind != "" {
		if _, _, err := net.SplitHostPort(c.Observability.HealthBind); err != nil {
			return fmt.Errorf("observability.health_bind: %w", err)
		}
	}

	if _, err := log.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}

	return nil
}

func (p PersonaConfig) validate() error {
	if err := checkRange("ttl", p.TTL, 1, math.MaxUint8); err != nil {
		return err
	}
	if err := checkRange("window_size", p.WindowSize, 0, math.MaxUint16); err != nil {
		return err
	}
	for i, o := range p.TCPOptionsLayout {
		if strings.TrimSpace(o.Name) == "" {
			continue
		}
		if _, ok := packet.CanonicalName(o.Name); !ok {
			return fmt.Errorf("tcp_options_layout[%d]: unknown tcp option %q", i, o.Name)
		}
	}
	return nil
}

func checkQueue(n int) error {
	if n < 0 || n > math.MaxUint16 {
		return fmt.Errorf("queue number %d must be between 0 and 65535", n)
	}
	return nil
}

func checkRange(field string, v *int, lo, hi int) error {
	if v == nil {
		return nil
	}
	if *v < lo || *v > hi {
		return fmt.Errorf("%s must be between %d and %d, got %d", field, lo, hi, *v)
	}
	return nil
}
