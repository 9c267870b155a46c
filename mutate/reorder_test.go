package mutate

import (
	"testing"

	"github.com/daniellavrushin/weaver/packet"
)

var (
	optMSS   = packet.Option{Kind: 2, Raw: []byte{2, 4, 0x05, 0xb4}}
	optWS    = packet.Option{Kind: 3, Raw: []byte{3, 3, 7}}
	optSACK  = packet.Option{Kind: 4, Raw: []byte{4, 2}}
	optTS    = packet.Option{Kind: 8, Raw: []byte{8, 10, 0, 0, 0, 1, 0, 0, 0, 0}}
	optNOP   = packet.Option{Kind: 1, Raw: []byte{1}}
	optEOL   = packet.Option{Kind: 0, Raw: []byte{0, 0}}
	optOther = packet.Option{Kind: 34, Raw: []byte{34, 2}}
)

func names(opts []packet.Option) []string {
	out := make([]string, len(opts))
	for i, o := range opts {
		out[i] = o.Name()
	}
	return out
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestReorder(t *testing.T) {
	tests := []struct {
		name   string
		in     []packet.Option
		layout []string
		want   []string
		moved  bool
	}{
		{
			name:   "mss first",
			in:     []packet.Option{optNOP, optWS, optMSS},
			layout: []string{"mss", "sackok", "timestamp", "nop", "wscale"},
			want:   []string{"mss", "nop", "wscale"},
			moved:  true,
		},
		{
			name:   "already ordered",
			in:     []packet.Option{optMSS, optNOP, optWS},
			layout: []string{"mss", "nop", "wscale"},
			want:   []string{"mss", "nop", "wscale"},
		},
		{
			name:   "empty layout",
			in:     []packet.Option{optWS, optMSS},
			layout: nil,
			want:   []string{"wscale", "mss"},
		},
		{
			name:   "one option per layout entry",
			in:     []packet.Option{optMSS, optNOP, optWS, optNOP, optNOP, optSACK},
			layout: []string{"nop", "nop", "mss"},
			want:   []string{"nop", "nop", "mss", "wscale", "nop", "sackok"},
			moved:  true,
		},
		{
			name:   "eol stays last",
			in:     []packet.Option{optWS, optMSS, optEOL},
			layout: []string{"eol", "mss", "wscale"},
			want:   []string{"mss", "wscale", "eol"},
			moved:  true,
		},
		{
			name:   "unknown kinds keep relative order",
			in:     []packet.Option{optOther, optTS, optMSS},
			layout: []string{"mss", "timestamp"},
			want:   []string{"mss", "timestamp", "kind34"},
			moved:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, moved := Reorder(tt.in, tt.layout)
			if moved != tt.moved {
				t.Fatalf("moved=%v want %v", moved, tt.moved)
			}
			if !equal(names(got), tt.want) {
				t.Fatalf("order=%v want %v", names(got), tt.want)
			}
		})
	}
}

func TestReorderDoesNotTouchInput(t *testing.T) {
	in := []packet.Option{optNOP, optWS, optMSS}
	_, _ = Reorder(in, []string{"mss"})
	if !equal(names(in), []string{"nop", "wscale", "mss"}) {
		t.Fatalf("input reordered: %v", names(in))
	}
}
