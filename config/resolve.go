package config

import (
	"fmt"
	"net/netip"
	"sort"
	"strings"
	"time"

	"github.com/daniellavrushin/weaver/log"
	"github.com/daniellavrushin/weaver/nfq"
	"github.com/daniellavrushin/weaver/packet"
	"github.com/daniellavrushin/weaver/persona"
	"github.com/daniellavrushin/weaver/scope"
)

// Runtime is the resolved, read-only view every worker shares.
type Runtime struct {
	Personas     map[string]*persona.Persona
	Policy       *persona.Policy
	Filter       *scope.Filter
	Bindings     []nfq.Binding
	Queues       []uint16
	Options      nfq.Options
	HealthWindow time.Duration
}

// Resolve turns a validated Config into a Runtime. References to unknown
// personas are logged and leave the affected queue unmutated; everything
// else that cannot be resolved is an error.
func (c *Config) Resolve() (*Runtime, error) {
	rt := &Runtime{
		Personas: make(map[string]*persona.Persona, len(c.Personas)),
		Options: nfq.Options{
			MaxQueueLen: uint32(c.NFQueue.MaxQueueLen),
			CopyRange:   uint32(c.NFQueue.CopyRange),
			FailOpen:    c.NFQueue.FailOpen,
			OnError:     nfq.OnError(c.NFQueue.OnError),
		},
		HealthWindow: time.Duration(c.Observability.HealthIntervalSec) * time.Second,
	}

	for name, pc := range c.Personas {
		p, err := pc.resolve(name)
		if err != nil {
			return nil, fmt.Errorf("personas.%s: %w", name, err)
		}
		rt.Personas[name] = p
	}

	policy, err := c.resolvePolicy(rt.Personas)
	if err != nil {
		return nil, err
	}
	rt.Policy = policy

	filter, err := c.Handler.LabMutation.resolve()
	if err != nil {
		return nil, err
	}
	rt.Filter = filter

	bindings, err := c.resolveBindings(rt.Personas)
	if err != nil {
		return nil, err
	}
	if len(bindings) == 0 {
		return nil, fmt.Errorf("no nfqueue numbers configured: set proxy_groups[].nfqueue_num or nfqueue.numbers")
	}
	rt.Bindings = bindings
	for _, b := range bindings {
		rt.Queues = append(rt.Queues, b.Queue)
	}
	return rt, nil
}

func (pc PersonaConfig) resolve(name string) (*persona.Persona, error) {
	p := &persona.Persona{Name: name}
	if pc.TTL != nil {
		if *pc.TTL < 1 || *pc.TTL > 255 {
			return nil, fmt.Errorf("ttl %d out of range", *pc.TTL)
		}
		v := uint8(*pc.TTL)
		p.TTL = &v
	}
	if pc.WindowSize != nil {
		if *pc.WindowSize < 0 || *pc.WindowSize > 65535 {
			return nil, fmt.Errorf("window_size %d out of range", *pc.WindowSize)
		}
		v := uint16(*pc.WindowSize)
		p.Window = &v
	}
	for _, o := range pc.TCPOptionsLayout {
		if strings.TrimSpace(o.Name) == "" {
			continue
		}
		n, ok := packet.CanonicalName(o.Name)
		if !ok {
			return nil, fmt.Errorf("unknown tcp option %q", o.Name)
		}
		p.Layout = append(p.Layout, n)
	}
	return p, nil
}

func (c *Config) resolvePolicy(personas map[string]*persona.Persona) (*persona.Policy, error) {
	entries := make([]persona.Weighted, 0, len(c.Selection.Weighted))
	for _, w := range c.Selection.Weighted {
		p, ok := personas[w.Persona]
		if !ok {
			log.Event(log.LevelError, "unknown_persona", "where", "selection.weighted", "persona", w.Persona)
			continue
		}
		entries = append(entries, persona.Weighted{Persona: p, Weight: w.Weight})
	}
	if len(entries) == 0 {
		return nil, nil
	}
	policy, err := persona.NewPolicy(entries)
	if err != nil {
		return nil, fmt.Errorf("selection.weighted: %w", err)
	}
	return policy, nil
}

func (l LabMutationConfig) resolve() (*scope.Filter, error) {
	sc := scope.Config{
		Enabled:      l.Enable,
		Options:      l.OptionsEnabled(),
		OptionsMode:  scope.OptionsMode(l.TCPOptionsMode),
		TOS:          byteOf(l.IPTos),
		TrafficClass: byteOf(l.IPv6TC),
		TTLOverride:  byteOf(l.TTLOverride),
	}
	for _, t := range l.Targets {
		p, err := scope.ParseTarget(t)
		if err != nil {
			return nil, fmt.Errorf("handler.lab_mutation.targets: %w", err)
		}
		sc.Targets = append(sc.Targets, p)
	}
	if sc.Enabled && len(sc.Targets) == 0 {
		log.Warnf("lab_mutation is enabled but has no targets, nothing will be mutated")
	}
	f, err := scope.NewFilter(sc)
	if err != nil {
		return nil, fmt.Errorf("handler.lab_mutation: %w", err)
	}
	return f, nil
}

func byteOf(v *int) *uint8 {
	if v == nil {
		return nil
	}
	b := uint8(*v)
	return &b
}

// resolveBindings maps every queue to at most one persona. A queue claimed
// by two groups must agree on the persona.
func (c *Config) resolveBindings(personas map[string]*persona.Persona) ([]nfq.Binding, error) {
	byQueue := make(map[uint16]nfq.Binding)
	for _, g := range c.ProxyGroups {
		if g.NFQueueNum == nil {
			continue
		}
		if err := checkQueue(*g.NFQueueNum); err != nil {
			return nil, fmt.Errorf("proxy group %q: %w", g.Name, err)
		}
		q := uint16(*g.NFQueueNum)
		b := nfq.Binding{Queue: q, Group: g.Name, PersonaName: g.Persona}
		if g.Persona != "" {
			if p, ok := personas[g.Persona]; ok {
				b.Persona = p
			} else {
				log.Event(log.LevelError, "unknown_persona", "queue", q, "group", g.Name, "persona", g.Persona)
				b.Unresolved = true
			}
		}
		if prev, ok := byQueue[q]; ok {
			if prev.PersonaName != b.PersonaName {
				return nil, fmt.Errorf("nfqueue %d is claimed by groups %q (persona %q) and %q (persona %q)",
					q, prev.Group, prev.PersonaName, b.Group, b.PersonaName)
			}
			continue
		}
		byQueue[q] = b
	}
	for _, n := range c.NFQueue.Numbers {
		if err := checkQueue(n); err != nil {
			return nil, fmt.Errorf("nfqueue.numbers: %w", err)
		}
		q := uint16(n)
		if _, ok := byQueue[q]; !ok {
			byQueue[q] = nfq.Binding{Queue: q}
		}
	}

	out := make([]nfq.Binding, 0, len(byQueue))
	for _, b := range byQueue {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Queue < out[j].Queue })
	return out, nil
}

// Summary is a human-readable description of the runtime, printed by
// --check-config and at startup.
func (rt *Runtime) Summary() string {
	var b strings.Builder
	names := make([]string, 0, len(rt.Personas))
	for n := range rt.Personas {
		names = append(names, n)
	}
	sort.Strings(names)
	fmt.Fprintf(&b, "personas: %d\n", len(names))
	for _, n := range names {
		fmt.Fprintf(&b, "  %s\n", rt.Personas[n])
	}
	if rt.Policy.Len() == 0 {
		b.WriteString("selection: none\n")
	} else {
		b.WriteString("selection: weighted\n")
		for _, e := range rt.Policy.Entries() {
			fmt.Fprintf(&b, "  %s %.3f\n", e.Persona.Name, e.Weight)
		}
	}
	sc := rt.Filter.Config()
	fmt.Fprintf(&b, "lab_mutation: enabled=%t targets=%s options=%t mode=%s\n",
		sc.Enabled, formatPrefixes(sc.Targets), sc.Options, sc.OptionsMode)
	b.WriteString("queues:\n")
	for _, bd := range rt.Bindings {
		who := "weighted"
		switch {
		case bd.Unresolved:
			who = fmt.Sprintf("unresolved(%s)", bd.PersonaName)
		case bd.Persona != nil:
			who = bd.Persona.Name
		}
		group := bd.Group
		if group == "" {
			group = "-"
		}
		fmt.Fprintf(&b, "  %d group=%s persona=%s\n", bd.Queue, group, who)
	}
	return b.String()
}

func formatPrefixes(ps []netip.Prefix) string {
	if len(ps) == 0 {
		return "[]"
	}
	s := make([]string, len(ps))
	for i, p := range ps {
		s[i] = p.String()
	}
	return "[" + strings.Join(s, ",") + "]"
}
