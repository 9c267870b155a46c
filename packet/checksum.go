package packet

import (
	"encoding/binary"
)

// sum16 adds b as big-endian 16-bit words, skipping the two bytes at skip
// (pass -1 to include everything). An odd trailing byte is padded with zero.
func sum16(sum uint32, b []byte, skip int) uint32 {
	n := len(b) &^ 1
	for i := 0; i < n; i += 2 {
		if i == skip {
			continue
		}
		sum += uint32(binary.BigEndian.Uint16(b[i : i+2]))
	}
	if len(b)%2 == 1 {
		sum += uint32(b[len(b)-1]) << 8
	}
	return sum
}

func fold(sum uint32) uint16 {
	for sum > 0xffff {
		sum = (sum >> 16) + (sum & 0xffff)
	}
	return ^uint16(sum)
}

// IPv4HeaderChecksum computes the header checksum of hdr with the checksum
// field treated as zero. hdr must include any IPv4 options.
func IPv4HeaderChecksum(hdr []byte) uint16 {
	return fold(sum16(0, hdr, 10))
}

// TCPChecksum computes the TCP checksum of seg (header, options and payload)
// over the pseudo-header derived from ip. The checksum field in seg is
// treated as zero.
func TCPChecksum(family Family, ip, seg []byte) uint16 {
	var sum uint32
	switch family {
	case IPv4:
		sum = sum16(sum, ip[12:20], -1)
		sum += uint32(ProtocolTCP)
		sum += uint32(len(seg))
	case IPv6:
		sum = sum16(sum, ip[8:40], -1)
		l := uint32(len(seg))
		sum += l >> 16
		sum += l & 0xffff
		sum += uint32(ProtocolTCP)
	}
	return fold(sum16(sum, seg, 16))
}

// VerifyChecksums parses b and checks the IPv4 header checksum (when
// present) and the TCP checksum.
func VerifyChecksums(b []byte) error {
	p, err := Parse(b)
	if err != nil {
		return err
	}
	ipLen := len(p.ipHdr)
	if p.Family == IPv4 {
		want := binary.BigEndian.Uint16(b[10:12])
		if got := IPv4HeaderChecksum(b[:ipLen]); got != want {
			return newError(CodeEncode, "IPv4 header checksum %#04x, want %#04x", want, got)
		}
	}
	if got := TCPChecksum(p.Family, b[:ipLen], b[ipLen:]); got != p.TCP.Checksum {
		return newError(CodeEncode, "TCP checksum %#04x, want %#04x", p.TCP.Checksum, got)
	}
	return nil
}
