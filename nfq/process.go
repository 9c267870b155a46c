package nfq

import (
	"errors"

	"github.com/daniellavrushin/weaver/flow"
	"github.com/daniellavrushin/weaver/mutate"
	"github.com/daniellavrushin/weaver/packet"
	"github.com/daniellavrushin/weaver/persona"
	"github.com/daniellavrushin/weaver/scope"
)

// Processor runs the per-packet pipeline of one queue: parse, classify,
// scope, persona, mutate. It performs no I/O and is safe for concurrent use.
type Processor struct {
	binding Binding
	filter  *scope.Filter
	policy  *persona.Policy
	engine  *mutate.Engine
}

func NewProcessor(b Binding, filter *scope.Filter, policy *persona.Policy) *Processor {
	var cfg *scope.Config
	if filter != nil {
		cfg = filter.Config()
	}
	return &Processor{
		binding: b,
		filter:  filter,
		policy:  policy,
		engine:  mutate.New(cfg),
	}
}

// Process decides what to do with raw. Unless the report says Mutated the
// packet must be accepted unchanged.
func (p *Processor) Process(raw []byte) Decision {
	pkt, err := packet.Parse(raw)
	if err != nil {
		if errors.Is(err, packet.ErrNotTCP) {
			return Decision{Report: mutate.Skipped(mutate.ReasonNotTCP)}
		}
		rep := mutate.Skipped(mutate.ReasonParseError)
		rep.Err = err.Error()
		return Decision{Report: rep}
	}

	key, reason := flow.Classify(pkt)
	if reason != "" {
		return Decision{Report: mutate.Skipped(mutate.Reason(reason))}
	}
	if !p.filter.Enabled() {
		return Decision{Report: mutate.Skipped(mutate.ReasonDisabled), Flow: key}
	}
	if !p.filter.Contains(key.Dst) {
		return Decision{Report: mutate.Skipped(mutate.ReasonOutOfScope), Flow: key}
	}

	per := p.persona(key)
	if per == nil {
		return Decision{Report: mutate.Skipped(mutate.ReasonNoPersona), Flow: key}
	}

	out, rep := p.engine.Apply(raw, pkt, per)
	d := Decision{Report: rep, Flow: key}
	if rep.Mutated {
		d.Payload = out
	}
	return d
}

func (p *Processor) persona(key flow.Key) *persona.Persona {
	switch {
	case p.binding.Unresolved:
		return nil
	case p.binding.Persona != nil:
		return p.binding.Persona
	default:
		return p.policy.Select(key)
	}
}
