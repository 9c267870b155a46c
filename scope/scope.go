// Package scope gates mutation on the destination address.
package scope

import (
	"fmt"
	"net"
	"net/netip"
	"strings"

	"github.com/yl2chen/cidranger"
)

type OptionsMode string

const (
	ReorderOnly OptionsMode = "reorder_only"
	OptionsOff  OptionsMode = "off"
)

// Config is the lab_mutation block in resolved form. Nil pointers mean
// "leave the field alone".
type Config struct {
	Enabled      bool
	Targets      []netip.Prefix
	TOS          *uint8
	TrafficClass *uint8
	TTLOverride  *uint8
	Options      bool
	OptionsMode  OptionsMode
}

// ReorderOptions reports whether TCP option reordering is switched on.
func (c *Config) ReorderOptions() bool {
	return c.Options && c.OptionsMode == ReorderOnly
}

// ParseTarget accepts a CIDR or a bare address; a bare address becomes a
// host prefix.
func ParseTarget(s string) (netip.Prefix, error) {
	s = strings.TrimSpace(s)
	if strings.Contains(s, "/") {
		p, err := netip.ParsePrefix(s)
		if err != nil {
			return netip.Prefix{}, fmt.Errorf("invalid target %q: %w", s, err)
		}
		return p, nil
	}
	a, err := netip.ParseAddr(s)
	if err != nil {
		return netip.Prefix{}, fmt.Errorf("invalid target %q: %w", s, err)
	}
	return netip.PrefixFrom(a, a.BitLen()), nil
}

type target struct {
	prefix netip.Prefix
	ipNet  net.IPNet
}

func (t *target) Network() net.IPNet {
	return t.ipNet
}

// Filter answers whether a destination lies inside the configured targets.
// An address only matches targets of its own family; IPv4-mapped IPv6
// addresses are IPv6. It is read-only after NewFilter and safe for
// concurrent use.
type Filter struct {
	cfg    Config
	ranger cidranger.Ranger
}

func NewFilter(cfg Config) (*Filter, error) {
	switch cfg.OptionsMode {
	case "":
		cfg.OptionsMode = ReorderOnly
	case ReorderOnly, OptionsOff:
	default:
		return nil, fmt.Errorf("unknown tcp_options_mode %q", cfg.OptionsMode)
	}

	f := &Filter{ranger: cidranger.NewPCTrieRanger()}
	targets := make([]netip.Prefix, 0, len(cfg.Targets))
	for _, p := range cfg.Targets {
		if !p.IsValid() {
			return nil, fmt.Errorf("invalid target prefix %v", p)
		}
		p = p.Masked()
		targets = append(targets, p)
		// cidranger files ::ffff:0:0/96 networks under IPv4; matchMapped
		// scans them instead.
		if p.Addr().Is4In6() {
			continue
		}
		t := &target{
			prefix: p,
			ipNet: net.IPNet{
				IP:   p.Addr().AsSlice(),
				Mask: net.CIDRMask(p.Bits(), p.Addr().BitLen()),
			},
		}
		if err := f.ranger.Insert(t); err != nil {
			return nil, fmt.Errorf("insert target %v: %w", p, err)
		}
	}
	cfg.Targets = targets
	f.cfg = cfg
	return f, nil
}

func (f *Filter) Config() *Config {
	return &f.cfg
}

func (f *Filter) Enabled() bool {
	return f != nil && f.cfg.Enabled
}

// Contains reports whether mutation is allowed towards dst. It is false when
// the filter is disabled or has no targets.
func (f *Filter) Contains(dst netip.Addr) bool {
	_, ok := f.Match(dst)
	return ok
}

// Match is Contains that also returns the most specific matching target.
func (f *Filter) Match(dst netip.Addr) (netip.Prefix, bool) {
	if !f.Enabled() || !dst.IsValid() || len(f.cfg.Targets) == 0 {
		return netip.Prefix{}, false
	}
	if dst.Is4In6() {
		return f.matchMapped(dst)
	}
	entries, err := f.ranger.ContainingNetworks(net.IP(dst.AsSlice()))
	if err != nil || len(entries) == 0 {
		return netip.Prefix{}, false
	}
	best := entries[0].(*target).prefix
	for _, e := range entries[1:] {
		if p := e.(*target).prefix; p.Bits() > best.Bits() {
			best = p
		}
	}
	return best, true
}

// matchMapped looks an IPv4-mapped destination up among the IPv6 targets
// only. cidranger converts such addresses to IPv4, so it cannot answer.
func (f *Filter) matchMapped(dst netip.Addr) (netip.Prefix, bool) {
	var best netip.Prefix
	found := false
	for _, p := range f.cfg.Targets {
		if !p.Addr().Is6() || !p.Contains(dst) {
			continue
		}
		if !found || p.Bits() > best.Bits() {
			best, found = p, true
		}
	}
	return best, found
}
