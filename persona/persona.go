// Package persona holds fingerprint personas and the deterministic weighted
// policy that assigns one to each flow.
package persona

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/daniellavrushin/weaver/flow"
	"golang.org/x/crypto/blake2b"
)

// Persona is a named OS handshake signature. Nil fields are left alone by
// the mutation engine. Layout holds canonical option names.
type Persona struct {
	Name   string
	TTL    *uint8
	Window *uint16
	Layout []string
}

func (p *Persona) String() string {
	if p == nil {
		return "<none>"
	}
	var b strings.Builder
	b.WriteString(p.Name)
	b.WriteString("{")
	sep := ""
	if p.TTL != nil {
		fmt.Fprintf(&b, "ttl=%d", *p.TTL)
		sep = " "
	}
	if p.Window != nil {
		fmt.Fprintf(&b, "%swin=%d", sep, *p.Window)
		sep = " "
	}
	if len(p.Layout) > 0 {
		fmt.Fprintf(&b, "%slayout=%s", sep, strings.Join(p.Layout, ","))
	}
	b.WriteString("}")
	return b.String()
}

type Weighted struct {
	Persona *Persona
	Weight  float64
}

var ErrEmptyPolicy = errors.New("persona: policy has no entries")

// Policy maps flows onto personas in proportion to their weights. It is
// immutable and safe for concurrent use.
type Policy struct {
	personas []*Persona
	cum      []float64
}

// NewPolicy normalizes the weights in configured order. Every weight must be
// a finite number above zero.
func NewPolicy(entries []Weighted) (*Policy, error) {
	if len(entries) == 0 {
		return nil, ErrEmptyPolicy
	}
	var total float64
	for i, e := range entries {
		if e.Persona == nil {
			return nil, fmt.Errorf("persona: entry %d has no persona", i)
		}
		if math.IsNaN(e.Weight) || math.IsInf(e.Weight, 0) || e.Weight <= 0 {
			return nil, fmt.Errorf("persona: weight %v for %q must be > 0", e.Weight, e.Persona.Name)
		}
		total += e.Weight
	}
	if math.IsInf(total, 0) {
		return nil, fmt.Errorf("persona: weights overflow")
	}

	p := &Policy{
		personas: make([]*Persona, len(entries)),
		cum:      make([]float64, len(entries)),
	}
	var acc float64
	for i, e := range entries {
		acc += e.Weight / total
		p.personas[i] = e.Persona
		p.cum[i] = acc
	}
	return p, nil
}

// Select returns the persona for k. The result depends only on the policy
// and k.
func (p *Policy) Select(k flow.Key) *Persona {
	if p == nil || len(p.personas) == 0 {
		return nil
	}
	u := Point(k)
	for i, c := range p.cum {
		if c >= u {
			return p.personas[i]
		}
	}
	return p.personas[len(p.personas)-1]
}

func (p *Policy) Len() int {
	if p == nil {
		return 0
	}
	return len(p.personas)
}

// Entries returns the personas with their normalized shares.
func (p *Policy) Entries() []Weighted {
	out := make([]Weighted, len(p.personas))
	prev := 0.0
	for i, per := range p.personas {
		out[i] = Weighted{Persona: per, Weight: p.cum[i] - prev}
		prev = p.cum[i]
	}
	return out
}

// Point maps k onto [0,1] using the first 64 bits of the BLAKE2b-256 digest
// of its canonical form.
func Point(k flow.Key) float64 {
	var buf [128]byte
	sum := blake2b.Sum256(k.AppendCanonical(buf[:0]))
	h := binary.BigEndian.Uint64(sum[:8])
	return float64(h) / float64(math.MaxUint64)
}
