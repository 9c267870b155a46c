package packet

import (
	"encoding/hex"
	"strconv"
	"strings"

	"github.com/google/gopacket/layers"
)

// Canonical option names used by persona layouts and change reports.
const (
	OptEOL       = "eol"
	OptNOP       = "nop"
	OptMSS       = "mss"
	OptWScale    = "wscale"
	OptSACKOK    = "sackok"
	OptSACK      = "sack"
	OptTimestamp = "timestamp"
)

// Option kinds the codec treats specially.
const (
	KindEOL = uint8(layers.TCPOptionKindEndList)
	KindNOP = uint8(layers.TCPOptionKindNop)
)

// Option is one TCP option exactly as it appeared on the wire. Raw includes
// the kind and length bytes. An EOL option also carries every padding byte
// that followed it, so concatenating Raw over a header's options always
// reproduces the original option area.
type Option struct {
	Kind uint8
	Raw  []byte
}

// Name returns the canonical name of the option kind.
func (o Option) Name() string {
	return KindName(o.Kind)
}

// Value returns the option data without kind and length bytes.
func (o Option) Value() []byte {
	switch layers.TCPOptionKind(o.Kind) {
	case layers.TCPOptionKindEndList, layers.TCPOptionKindNop:
		return nil
	}
	if len(o.Raw) < 2 {
		return nil
	}
	return o.Raw[2:]
}

func (o Option) String() string {
	v := o.Value()
	if len(v) == 0 {
		return o.Name()
	}
	return o.Name() + "(" + hex.EncodeToString(v) + ")"
}

// KindName maps an option kind to its canonical name. Kinds without a
// canonical name render as "kind<N>".
func KindName(kind uint8) string {
	switch layers.TCPOptionKind(kind) {
	case layers.TCPOptionKindEndList:
		return OptEOL
	case layers.TCPOptionKindNop:
		return OptNOP
	case layers.TCPOptionKindMSS:
		return OptMSS
	case layers.TCPOptionKindWindowScale:
		return OptWScale
	case layers.TCPOptionKindSACKPermitted:
		return OptSACKOK
	case layers.TCPOptionKindSACK:
		return OptSACK
	case layers.TCPOptionKindTimestamps:
		return OptTimestamp
	default:
		return "kind" + strconv.Itoa(int(kind))
	}
}

// CanonicalName normalizes a user supplied option name. The boolean is
// false when the name is not recognised.
func CanonicalName(name string) (string, bool) {
	n := strings.ToLower(strings.TrimSpace(name))
	switch n {
	case "mss", "maxseg":
		return OptMSS, true
	// bare "sack" is what fingerprint tools call SACK-permitted in a SYN
	case "sackok", "sack", "sack_ok", "sack-ok", "sack-permitted", "sack_permitted", "sackpermitted":
		return OptSACKOK, true
	case "sack_blocks", "sackblocks":
		return OptSACK, true
	case "timestamp", "timestamps", "ts", "tsopt":
		return OptTimestamp, true
	case "wscale", "window_scale", "windowscale", "wsc", "ws":
		return OptWScale, true
	case "nop", "pad", "noop":
		return OptNOP, true
	case "eol", "end", "eool":
		return OptEOL, true
	}
	if strings.HasPrefix(n, "kind") {
		if k, err := strconv.ParseUint(n[len("kind"):], 10, 8); err == nil {
			return KindName(uint8(k)), true
		}
	}
	return "", false
}

// parseOptions splits a TCP option area into options. It fails on an
// option whose length byte is missing, shorter than 2 or runs past the area.
func parseOptions(area []byte) ([]Option, error) {
	if len(area) == 0 {
		return nil, nil
	}
	opts := make([]Option, 0, 8)
	i := 0
	for i < len(area) {
		kind := area[i]
		switch layers.TCPOptionKind(kind) {
		case layers.TCPOptionKindEndList:
			opts = append(opts, Option{Kind: kind, Raw: area[i:]})
			return opts, nil
		case layers.TCPOptionKindNop:
			opts = append(opts, Option{Kind: kind, Raw: area[i : i+1]})
			i++
			continue
		}
		if i+1 >= len(area) {
			return nil, newError(CodeOptions, "option kind %d at %d has no length", kind, i)
		}
		l := int(area[i+1])
		if l < 2 || i+l > len(area) {
			return nil, newError(CodeOptions, "option kind %d at %d has length %d", kind, i, l)
		}
		opts = append(opts, Option{Kind: kind, Raw: area[i : i+l]})
		i += l
	}
	return opts, nil
}

// FormatOptions renders options for logs, e.g. [mss(05b4) nop wscale(07)].
func FormatOptions(opts []Option) []string {
	out := make([]string, len(opts))
	for i, o := range opts {
		out[i] = o.String()
	}
	return out
}
