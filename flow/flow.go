// Package flow decides whether a packet opens a new TCP connection and
// derives the key a persona is selected by.
package flow

import (
	"net/netip"
	"strconv"

	"github.com/daniellavrushin/weaver/packet"
)

// Reason explains why a packet is not a bare SYN. The empty Reason marks a
// candidate.
type Reason string

const (
	NotTCP Reason = "not_tcp"
	NotSYN Reason = "not_syn"
)

// Key identifies a flow. It is derived per packet and never stored.
type Key struct {
	Src     netip.Addr
	Dst     netip.Addr
	SrcPort uint16
	DstPort uint16
	Family  packet.Family
}

// Classify reports whether p is a bare SYN (SYN set, ACK clear). Non-TCP
// packets and every other flag combination, SYN-ACK included, are not
// candidates.
func Classify(p *packet.Packet) (Key, Reason) {
	if p == nil || p.Protocol != packet.ProtocolTCP {
		return Key{}, NotTCP
	}
	if p.TCP.Flags&(packet.FlagSYN|packet.FlagACK) != packet.FlagSYN {
		return Key{}, NotSYN
	}
	return KeyOf(p), ""
}

// KeyOf extracts the flow key of p without classifying it.
func KeyOf(p *packet.Packet) Key {
	return Key{
		Src:     p.Src,
		Dst:     p.Dst,
		SrcPort: p.TCP.SrcPort,
		DstPort: p.TCP.DstPort,
		Family:  p.Family,
	}
}

// AppendCanonical appends src|dst|sport|dport|family to b. Family renders
// as 4 or 6. The output is the selector's hash input and must stay stable.
func (k Key) AppendCanonical(b []byte) []byte {
	b = k.Src.AppendTo(b)
	b = append(b, '|')
	b = k.Dst.AppendTo(b)
	b = append(b, '|')
	b = strconv.AppendUint(b, uint64(k.SrcPort), 10)
	b = append(b, '|')
	b = strconv.AppendUint(b, uint64(k.DstPort), 10)
	b = append(b, '|')
	return strconv.AppendUint(b, uint64(k.Family), 10)
}

func (k Key) String() string {
	return string(k.AppendCanonical(make([]byte, 0, 64)))
}
