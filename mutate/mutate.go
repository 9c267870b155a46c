// Package mutate rewrites a parsed SYN so it presents a persona's
// fingerprint.
package mutate

import (
	"fmt"

	"github.com/daniellavrushin/weaver/packet"
	"github.com/daniellavrushin/weaver/persona"
	"github.com/daniellavrushin/weaver/scope"
)

// Engine applies personas under one scope configuration. It holds no
// per-packet state and is safe for concurrent use.
type Engine struct {
	cfg *scope.Config
}

func New(cfg *scope.Config) *Engine {
	if cfg == nil {
		cfg = &scope.Config{}
	}
	return &Engine{cfg: cfg}
}

// Mutate returns a rewritten copy of p; p itself is never modified. The
// returned packet is only meaningful when the report says Mutated.
func (e *Engine) Mutate(p *packet.Packet, per *persona.Persona) (*packet.Packet, Report) {
	q := p.Clone()
	rep := Report{Reason: ReasonUnchanged}
	if per != nil {
		rep.Persona = per.Name
	}
	record := func(field string, from, to any) {
		if rep.Deltas == nil {
			rep.Deltas = make(map[string]Delta, 4)
		}
		rep.Deltas[field] = Delta{Old: from, New: to}
	}

	// persona TTL wins over the lab override
	ttl := e.cfg.TTLOverride
	if per != nil && per.TTL != nil {
		ttl = per.TTL
	}
	if ttl != nil && *ttl != q.TTL {
		record(ttlField(q.Family), q.TTL, *ttl)
		q.TTL = *ttl
	}

	tos, tosField := e.cfg.TOS, FieldIPv4TOS
	if q.Family == packet.IPv6 {
		tos, tosField = e.cfg.TrafficClass, FieldIPv6TC
	}
	if tos != nil && *tos != q.TOS {
		record(tosField, q.TOS, *tos)
		q.TOS = *tos
	}

	if per != nil && per.Window != nil && *per.Window < q.TCP.Window {
		record(FieldWindow, q.TCP.Window, *per.Window)
		q.TCP.Window = *per.Window
	}

	if per != nil && len(per.Layout) > 0 && e.cfg.ReorderOptions() {
		if opts, moved := Reorder(q.TCP.Options, per.Layout); moved {
			record(FieldOptions, packet.FormatOptions(q.TCP.Options), packet.FormatOptions(opts))
			q.TCP.Options = opts
		}
	}

	if len(rep.Deltas) > 0 {
		rep.Mutated = true
		rep.Reason = ReasonMutated
	}
	return q, rep
}

// Apply mutates p (parsed from raw) and encodes the result. The encoded
// packet is parsed back and its checksums verified before it is returned.
// Unless the report says Mutated, the returned slice is raw itself.
func (e *Engine) Apply(raw []byte, p *packet.Packet, per *persona.Persona) (out []byte, rep Report) {
	name := ""
	if per != nil {
		name = per.Name
	}
	defer func() {
		if r := recover(); r != nil {
			out, rep = raw, failed(name, fmt.Sprintf("panic: %v", r))
		}
	}()

	q, rep := e.Mutate(p, per)
	if !rep.Mutated {
		return raw, rep
	}
	b, err := packet.Serialize(q)
	if err != nil {
		return raw, failed(name, err.Error())
	}
	if err := packet.VerifyChecksums(b); err != nil {
		return raw, failed(name, err.Error())
	}
	if len(b) != len(raw) {
		return raw, failed(name, fmt.Sprintf("length changed from %d to %d", len(raw), len(b)))
	}
	return b, rep
}

func ttlField(f packet.Family) string {
	if f == packet.IPv6 {
		return FieldIPv6HopLim
	}
	return FieldIPv4TTL
}
