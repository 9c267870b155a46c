// Package packettest builds and decodes reference packets with gopacket for
// tests of the codec and everything layered on top of it.
package packettest

import (
	"encoding/binary"
	"net"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// Segment describes a TCP packet to build. Addresses decide the family.
type Segment struct {
	Src, Dst         string
	SrcPort, DstPort uint16
	TTL              uint8
	TOS              uint8
	Window           uint16
	SYN, ACK, RST    bool
	Options          []layers.TCPOption
	Payload          []byte
}

// SYN returns a plain IPv4 SYN from 10.0.0.1:40000 to 93.184.216.34:443.
func SYN(opts ...layers.TCPOption) Segment {
	return Segment{
		Src: "10.0.0.1", Dst: "93.184.216.34",
		SrcPort: 40000, DstPort: 443,
		TTL: 128, Window: 8192, SYN: true,
		Options: opts,
	}
}

var serializeOpts = gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}

// Build serializes s with lengths and checksums fixed. It panics on
// serialization failure.
func Build(s Segment) []byte {
	src, dst := net.ParseIP(s.Src), net.ParseIP(s.Dst)
	tcp := &layers.TCP{
		SrcPort: layers.TCPPort(s.SrcPort),
		DstPort: layers.TCPPort(s.DstPort),
		Seq:     1000,
		SYN:     s.SYN,
		ACK:     s.ACK,
		RST:     s.RST,
		Window:  s.Window,
		Options: s.Options,
	}

	var ip gopacket.SerializableLayer
	if src.To4() != nil {
		ip4 := &layers.IPv4{
			Version:  4,
			IHL:      5,
			TOS:      s.TOS,
			TTL:      s.TTL,
			Flags:    layers.IPv4DontFragment,
			Protocol: layers.IPProtocolTCP,
			SrcIP:    src.To4(),
			DstIP:    dst.To4(),
		}
		_ = tcp.SetNetworkLayerForChecksum(ip4)
		ip = ip4
	} else {
		ip6 := &layers.IPv6{
			Version:      6,
			TrafficClass: s.TOS,
			HopLimit:     s.TTL,
			NextHeader:   layers.IPProtocolTCP,
			SrcIP:        src,
			DstIP:        dst,
		}
		_ = tcp.SetNetworkLayerForChecksum(ip6)
		ip = ip6
	}

	buf := gopacket.NewSerializeBuffer()
	if err := gopacket.SerializeLayers(buf, serializeOpts, ip, tcp, gopacket.Payload(s.Payload)); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

// UDP builds an IPv4 UDP datagram.
func UDP(src, dst string, dport uint16) []byte {
	ip := &layers.IPv4{
		Version:  4,
		IHL:      5,
		TTL:      64,
		Protocol: layers.IPProtocolUDP,
		SrcIP:    net.ParseIP(src).To4(),
		DstIP:    net.ParseIP(dst).To4(),
	}
	udp := &layers.UDP{SrcPort: 5353, DstPort: layers.UDPPort(dport)}
	_ = udp.SetNetworkLayerForChecksum(ip)
	buf := gopacket.NewSerializeBuffer()
	if err := gopacket.SerializeLayers(buf, serializeOpts, ip, udp, gopacket.Payload("ping")); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

// Decoded is what tests usually need to look at after a rewrite.
type Decoded struct {
	TTL uint8
	TOS uint8
	TCP *layers.TCP
}

// Decode parses b with gopacket. TCP is nil when b carries no TCP layer.
func Decode(b []byte) Decoded {
	var d Decoded
	first := layers.LayerTypeIPv4
	if len(b) > 0 && b[0]>>4 == 6 {
		first = layers.LayerTypeIPv6
	}
	p := gopacket.NewPacket(b, first, gopacket.Default)
	switch ip := p.NetworkLayer().(type) {
	case *layers.IPv4:
		d.TTL, d.TOS = ip.TTL, ip.TOS
	case *layers.IPv6:
		d.TTL, d.TOS = ip.HopLimit, ip.TrafficClass
	}
	if l := p.Layer(layers.LayerTypeTCP); l != nil {
		d.TCP = l.(*layers.TCP)
	}
	return d
}

// OptionKinds lists the option kinds of t in wire order, padding excluded.
func OptionKinds(t *layers.TCP) []layers.TCPOptionKind {
	out := make([]layers.TCPOptionKind, 0, len(t.Options))
	for _, o := range t.Options {
		out = append(out, o.OptionType)
	}
	return out
}

func NOP() layers.TCPOption {
	return layers.TCPOption{OptionType: layers.TCPOptionKindNop, OptionLength: 1}
}

func MSS(v uint16) layers.TCPOption {
	data := make([]byte, 2)
	binary.BigEndian.PutUint16(data, v)
	return layers.TCPOption{OptionType: layers.TCPOptionKindMSS, OptionLength: 4, OptionData: data}
}

func WScale(v uint8) layers.TCPOption {
	return layers.TCPOption{OptionType: layers.TCPOptionKindWindowScale, OptionLength: 3, OptionData: []byte{v}}
}

func SACKOK() layers.TCPOption {
	return layers.TCPOption{OptionType: layers.TCPOptionKindSACKPermitted, OptionLength: 2}
}

func Timestamp(val, ecr uint32) layers.TCPOption {
	data := make([]byte, 8)
	binary.BigEndian.PutUint32(data[0:4], val)
	binary.BigEndian.PutUint32(data[4:8], ecr)
	return layers.TCPOption{OptionType: layers.TCPOptionKindTimestamps, OptionLength: 10, OptionData: data}
}
