package packet

import (
	"encoding/binary"
)

// Serialize encodes p into a fresh buffer. IPv4 total length and header
// checksum, IPv6 payload length, TCP data offset and TCP checksum are
// always recomputed from the content; the corresponding fields of p are
// ignored.
func Serialize(p *Packet) ([]byte, error) {
	optLen := p.TCP.OptionsLen()
	if optLen%4 != 0 || optLen > MaxOptionsLen {
		return nil, newError(CodeEncode, "option area of %d bytes", optLen)
	}
	ipLen := len(p.ipHdr)
	tcpLen := TCPHeaderMinLen + optLen
	segLen := tcpLen + len(p.Payload)
	total := ipLen + segLen

	switch p.Family {
	case IPv4:
		if ipLen < IPv4HeaderMinLen || !p.Src.Is4() || !p.Dst.Is4() {
			return nil, newError(CodeEncode, "incomplete IPv4 header")
		}
		if total > 0xffff {
			return nil, newError(CodeEncode, "total length %d", total)
		}
	case IPv6:
		if ipLen != IPv6HeaderLen || !p.Src.Is6() || !p.Dst.Is6() {
			return nil, newError(CodeEncode, "incomplete IPv6 header")
		}
		if segLen > 0xffff {
			return nil, newError(CodeEncode, "payload length %d", segLen)
		}
	default:
		return nil, newError(CodeEncode, "family %s", p.Family)
	}

	out := make([]byte, total)
	ip := out[:ipLen]
	seg := out[ipLen:]
	copy(ip, p.ipHdr)

	if p.Family == IPv4 {
		ip[1] = p.TOS
		binary.BigEndian.PutUint16(ip[2:4], uint16(total))
		ip[8] = p.TTL
		ip[9] = p.Protocol
		src, dst := p.Src.As4(), p.Dst.As4()
		copy(ip[12:16], src[:])
		copy(ip[16:20], dst[:])
	} else {
		ip[0] = byte(IPv6)<<4 | p.TOS>>4
		ip[1] = p.TOS<<4 | ip[1]&0x0f
		binary.BigEndian.PutUint16(ip[4:6], uint16(segLen))
		ip[6] = p.Protocol
		ip[7] = p.TTL
		src, dst := p.Src.As16(), p.Dst.As16()
		copy(ip[8:24], src[:])
		copy(ip[24:40], dst[:])
	}

	h := &p.TCP
	binary.BigEndian.PutUint16(seg[0:2], h.SrcPort)
	binary.BigEndian.PutUint16(seg[2:4], h.DstPort)
	binary.BigEndian.PutUint32(seg[4:8], h.Seq)
	binary.BigEndian.PutUint32(seg[8:12], h.Ack)
	seg[12] = uint8(tcpLen/4)<<4 | h.Reserved&0x0f
	seg[13] = h.Flags
	binary.BigEndian.PutUint16(seg[14:16], h.Window)
	binary.BigEndian.PutUint16(seg[18:20], h.Urgent)
	off := TCPHeaderMinLen
	for _, o := range h.Options {
		off += copy(seg[off:], o.Raw)
	}
	copy(seg[tcpLen:], p.Payload)

	if p.Family == IPv4 {
		binary.BigEndian.PutUint16(ip[10:12], IPv4HeaderChecksum(ip))
	}
	binary.BigEndian.PutUint16(seg[16:18], TCPChecksum(p.Family, ip, seg))
	return out, nil
}
