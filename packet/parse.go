package packet

import (
	"bytes"
	"encoding/binary"
	"net/netip"
)

// Parse decodes an IPv4 or IPv6 packet carrying TCP. The buffer is copied;
// the caller may reuse it once Parse returns.
//
// IPv6 extension headers are not walked: the next header of the fixed
// header must be TCP. IPv4 fragments and buffers whose IP length field does
// not match the buffer (for example a copy_range-truncated delivery) are
// rejected so that a partial packet is never re-encoded.
func Parse(b []byte) (*Packet, error) {
	if len(b) == 0 {
		return nil, newError(CodeShort, "empty buffer")
	}
	switch Family(b[0] >> 4) {
	case IPv4:
		return parseIPv4(b)
	case IPv6:
		return parseIPv6(b)
	default:
		return nil, newError(CodeVersion, "version %d", b[0]>>4)
	}
}

func parseIPv4(b []byte) (*Packet, error) {
	if len(b) < IPv4HeaderMinLen {
		return nil, newError(CodeShort, "%d bytes, need %d", len(b), IPv4HeaderMinLen)
	}
	ihl := int(b[0]&0x0f) * 4
	if ihl < IPv4HeaderMinLen {
		return nil, newError(CodeIHL, "IHL %d below minimum", ihl)
	}
	if ihl > len(b) {
		return nil, newError(CodeIHL, "IHL %d, buffer %d", ihl, len(b))
	}
	if b[9] != ProtocolTCP {
		return nil, newError(CodeNotTCP, "protocol %d", b[9])
	}
	total := int(binary.BigEndian.Uint16(b[2:4]))
	if total != len(b) {
		return nil, newError(CodeLength, "total length %d, buffer %d", total, len(b))
	}
	frag := binary.BigEndian.Uint16(b[6:8])
	if frag&0x1fff != 0 || frag&0x2000 != 0 {
		return nil, newError(CodeFragment, "flags/offset %#04x", frag)
	}

	own := bytes.Clone(b)
	p := &Packet{
		Family:   IPv4,
		TOS:      own[1],
		TTL:      own[8],
		Protocol: own[9],
		Src:      netip.AddrFrom4([4]byte(own[12:16])),
		Dst:      netip.AddrFrom4([4]byte(own[16:20])),
		ipHdr:    own[:ihl],
	}
	if err := parseTCP(p, own[ihl:]); err != nil {
		return nil, err
	}
	return p, nil
}

func parseIPv6(b []byte) (*Packet, error) {
	if len(b) < IPv6HeaderLen {
		return nil, newError(CodeShort, "%d bytes, need %d", len(b), IPv6HeaderLen)
	}
	if b[6] != ProtocolTCP {
		return nil, newError(CodeNotTCP, "next header %d", b[6])
	}
	plen := int(binary.BigEndian.Uint16(b[4:6]))
	if IPv6HeaderLen+plen != len(b) {
		return nil, newError(CodeLength, "payload length %d, buffer %d", plen, len(b))
	}

	own := bytes.Clone(b)
	p := &Packet{
		Family:   IPv6,
		TOS:      own[0]<<4 | own[1]>>4,
		TTL:      own[7],
		Protocol: own[6],
		Src:      netip.AddrFrom16([16]byte(own[8:24])),
		Dst:      netip.AddrFrom16([16]byte(own[24:40])),
		ipHdr:    own[:IPv6HeaderLen],
	}
	if err := parseTCP(p, own[IPv6HeaderLen:]); err != nil {
		return nil, err
	}
	return p, nil
}

func parseTCP(p *Packet, seg []byte) error {
	if len(seg) < TCPHeaderMinLen {
		return newError(CodeShort, "TCP segment of %d bytes", len(seg))
	}
	doff := seg[12] >> 4
	hl := int(doff) * 4
	if hl < TCPHeaderMinLen || hl > len(seg) {
		return newError(CodeDataOffset, "data offset %d, segment %d", doff, len(seg))
	}
	opts, err := parseOptions(seg[TCPHeaderMinLen:hl])
	if err != nil {
		return err
	}
	p.TCP = TCPHeader{
		SrcPort:    binary.BigEndian.Uint16(seg[0:2]),
		DstPort:    binary.BigEndian.Uint16(seg[2:4]),
		Seq:        binary.BigEndian.Uint32(seg[4:8]),
		Ack:        binary.BigEndian.Uint32(seg[8:12]),
		DataOffset: doff,
		Reserved:   seg[12] & 0x0f,
		Flags:      seg[13],
		Window:     binary.BigEndian.Uint16(seg[14:16]),
		Checksum:   binary.BigEndian.Uint16(seg[16:18]),
		Urgent:     binary.BigEndian.Uint16(seg[18:20]),
		Options:    opts,
	}
	p.Payload = seg[hl:]
	return nil
}
