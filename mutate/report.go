package mutate

import (
	"github.com/daniellavrushin/weaver/flow"
)

// Reason is the outcome recorded for a packet. Only ReasonMutated comes with
// rewritten bytes.
type Reason string

const (
	ReasonMutated    Reason = "mutated"
	ReasonUnchanged  Reason = "unchanged"
	ReasonError      Reason = "error"
	ReasonDisabled   Reason = "lab_mutation_disabled"
	ReasonNotTCP     Reason = Reason(flow.NotTCP)
	ReasonNotSYN     Reason = Reason(flow.NotSYN)
	ReasonParseError Reason = "parse_error"
	ReasonOutOfScope Reason = "dst_not_in_targets"
	ReasonNoPersona  Reason = "no_persona"
)

// Delta keys.
const (
	FieldIPv4TTL    = "ipv4_ttl"
	FieldIPv6HopLim = "ipv6_hlim"
	FieldIPv4TOS    = "ipv4_tos"
	FieldIPv6TC     = "ipv6_tc"
	FieldWindow     = "tcp_window"
	FieldOptions    = "tcp_options"
)

type Delta struct {
	Old any `json:"old"`
	New any `json:"new"`
}

// Report describes what happened to one packet. It is logged and counted,
// never stored.
type Report struct {
	Mutated bool             `json:"mutated"`
	Reason  Reason           `json:"reason"`
	Persona string           `json:"persona,omitempty"`
	Deltas  map[string]Delta `json:"deltas,omitempty"`
	Err     string           `json:"error,omitempty"`
}

// Skipped builds the report of a packet that never reached the engine.
func Skipped(reason Reason) Report {
	return Report{Reason: reason}
}

func failed(persona string, err string) Report {
	return Report{Reason: ReasonError, Persona: persona, Err: err}
}
