// Package packet decodes and re-encodes the IPv4/IPv6 + TCP headers of a
// queued packet. It knows nothing about personas: Parse produces an owned
// Packet, Serialize turns one back into wire bytes and recomputes every
// length and checksum field.
package packet

import (
	"fmt"
	"net/netip"

	"github.com/google/gopacket/layers"
	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"
)

type Family uint8

const (
	IPv4 Family = 4
	IPv6 Family = 6
)

func (f Family) String() string {
	switch f {
	case IPv4:
		return "IPv4"
	case IPv6:
		return "IPv6"
	default:
		return fmt.Sprintf("family(%d)", uint8(f))
	}
}

const (
	IPv4HeaderMinLen = ipv4.HeaderLen
	IPv6HeaderLen    = ipv6.HeaderLen
	TCPHeaderMinLen  = 20
	TCPHeaderMaxLen  = 60
	MaxOptionsLen    = TCPHeaderMaxLen - TCPHeaderMinLen

	ProtocolTCP = uint8(layers.IPProtocolTCP)
)

// TCP flag bits as found in byte 13 of the TCP header.
const (
	FlagFIN uint8 = 0x01
	FlagSYN uint8 = 0x02
	FlagRST uint8 = 0x04
	FlagPSH uint8 = 0x08
	FlagACK uint8 = 0x10
	FlagURG uint8 = 0x20
	FlagECE uint8 = 0x40
	FlagCWR uint8 = 0x80
)

// Packet is a decoded IP+TCP packet. Everything it references is owned by
// the Packet; the buffer handed to Parse is never aliased.
type Packet struct {
	Family Family

	// TTL holds the IPv4 TTL or the IPv6 hop limit.
	TTL uint8
	// TOS holds the IPv4 TOS byte or the IPv6 traffic class.
	TOS uint8

	Src netip.Addr
	Dst netip.Addr

	// Protocol is the IPv4 protocol / IPv6 next header. Parse only
	// returns packets carrying TCP.
	Protocol uint8

	TCP     TCPHeader
	Payload []byte

	// ipHdr is the raw IP header (IPv4 including its options). Serialize
	// uses it as the template for fields Packet does not expose.
	ipHdr []byte
}

type TCPHeader struct {
	SrcPort uint16
	DstPort uint16
	Seq     uint32
	Ack     uint32
	// DataOffset is the header length in 32-bit words, as parsed.
	DataOffset uint8
	// Reserved keeps the low nibble of byte 12 (reserved bits and NS).
	Reserved uint8
	Flags    uint8
	Window   uint16
	Checksum uint16
	Urgent   uint16
	Options  []Option
}

// IPHeaderLen returns the length of the IP header as it will be written.
func (p *Packet) IPHeaderLen() int {
	return len(p.ipHdr)
}

// HasFlags reports whether every bit in mask is set.
func (h *TCPHeader) HasFlags(mask uint8) bool {
	return h.Flags&mask == mask
}

// OptionsLen returns the byte length of the encoded option area.
func (h *TCPHeader) OptionsLen() int {
	n := 0
	for _, o := range h.Options {
		n += len(o.Raw)
	}
	return n
}

// Clone returns a copy with its own Options slice. Option bytes, the
// payload and the IP header template are shared: nothing in this module
// writes to them after Parse.
func (p *Packet) Clone() *Packet {
	c := *p
	c.TCP.Options = append([]Option(nil), p.TCP.Options...)
	return &c
}

type ErrorCode uint8

const (
	CodeShort ErrorCode = iota + 1
	CodeVersion
	CodeIHL
	CodeLength
	CodeFragment
	CodeNotTCP
	CodeDataOffset
	CodeOptions
	CodeEncode
)

var codeText = map[ErrorCode]string{
	CodeShort:      "buffer shorter than minimum header size",
	CodeVersion:    "unknown IP version",
	CodeIHL:        "IHL exceeds buffer",
	CodeLength:     "IP length does not match buffer",
	CodeFragment:   "fragmented packet",
	CodeNotTCP:     "transport is not TCP",
	CodeDataOffset: "bad TCP data offset",
	CodeOptions:    "malformed TCP options",
	CodeEncode:     "cannot encode packet",
}

// ParseError describes why a buffer could not be decoded or encoded.
type ParseError struct {
	Code   ErrorCode
	Detail string
}

func (e *ParseError) Error() string {
	msg := "packet: " + codeText[e.Code]
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

// Is matches any *ParseError carrying the same code, so the sentinels
// below work with errors.Is.
func (e *ParseError) Is(target error) bool {
	t, ok := target.(*ParseError)
	return ok && t.Code == e.Code
}

var (
	ErrShort      = &ParseError{Code: CodeShort}
	ErrVersion    = &ParseError{Code: CodeVersion}
	ErrIHL        = &ParseError{Code: CodeIHL}
	ErrLength     = &ParseError{Code: CodeLength}
	ErrFragment   = &ParseError{Code: CodeFragment}
	ErrNotTCP     = &ParseError{Code: CodeNotTCP}
	ErrDataOffset = &ParseError{Code: CodeDataOffset}
	ErrOptions    = &ParseError{Code: CodeOptions}
	ErrEncode     = &ParseError{Code: CodeEncode}
)

func newError(code ErrorCode, format string, a ...any) error {
	return &ParseError{Code: code, Detail: fmt.Sprintf(format, a...)}
}
