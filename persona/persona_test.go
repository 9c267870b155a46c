package persona_test

import (
	"math"
	"math/rand"
	"net/netip"
	"testing"

	"github.com/daniellavrushin/weaver/flow"
	"github.com/daniellavrushin/weaver/packet"
	"github.com/daniellavrushin/weaver/persona"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func u8(v uint8) *uint8    { return &v }
func u16(v uint16) *uint16 { return &v }

var (
	linux   = &persona.Persona{Name: "linux", TTL: u8(64), Window: u16(64240), Layout: []string{"mss", "sackok", "timestamp", "nop", "wscale"}}
	windows = &persona.Persona{Name: "windows", TTL: u8(128), Window: u16(65535), Layout: []string{"mss", "nop", "wscale", "nop", "nop", "sackok"}}
)

func randomKey(r *rand.Rand) flow.Key {
	var src, dst [4]byte
	r.Read(src[:])
	r.Read(dst[:])
	return flow.Key{
		Src:     netip.AddrFrom4(src),
		Dst:     netip.AddrFrom4(dst),
		SrcPort: uint16(r.Intn(65536)),
		DstPort: uint16(r.Intn(65536)),
		Family:  packet.IPv4,
	}
}

func TestSelectDeterministic(t *testing.T) {
	p, err := persona.NewPolicy([]persona.Weighted{{Persona: linux, Weight: 1}, {Persona: windows, Weight: 3}})
	require.NoError(t, err)

	r := rand.New(rand.NewSource(1))
	for i := 0; i < 200; i++ {
		k := randomKey(r)
		first := p.Select(k)
		require.NotNil(t, first)
		for j := 0; j < 10; j++ {
			assert.Same(t, first, p.Select(k))
		}
	}
}

func TestSelectProportional(t *testing.T) {
	p, err := persona.NewPolicy([]persona.Weighted{{Persona: linux, Weight: 1}, {Persona: windows, Weight: 1}})
	require.NoError(t, err)

	const n = 100000
	r := rand.New(rand.NewSource(42))
	seen := make(map[flow.Key]struct{}, n)
	counts := map[string]int{}
	for len(seen) < n {
		k := randomKey(r)
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		counts[p.Select(k).Name]++
	}

	share := float64(counts["linux"]) / n
	assert.InDelta(t, 0.5, share, 0.02, "counts=%v", counts)
}

func TestSelectWeightedShare(t *testing.T) {
	p, err := persona.NewPolicy([]persona.Weighted{{Persona: linux, Weight: 3}, {Persona: windows, Weight: 1}})
	require.NoError(t, err)

	const n = 50000
	r := rand.New(rand.NewSource(7))
	linuxCount := 0
	for i := 0; i < n; i++ {
		if p.Select(randomKey(r)) == linux {
			linuxCount++
		}
	}
	assert.InDelta(t, 0.75, float64(linuxCount)/n, 0.02)
}

func TestSelectSingle(t *testing.T) {
	p, err := persona.NewPolicy([]persona.Weighted{{Persona: windows, Weight: 0.5}})
	require.NoError(t, err)
	r := rand.New(rand.NewSource(3))
	for i := 0; i < 100; i++ {
		assert.Same(t, windows, p.Select(randomKey(r)))
	}
}

func TestSelectNilPolicy(t *testing.T) {
	var p *persona.Policy
	assert.Nil(t, p.Select(flow.Key{}))
	assert.Equal(t, 0, p.Len())
}

func TestPointRange(t *testing.T) {
	r := rand.New(rand.NewSource(9))
	for i := 0; i < 1000; i++ {
		u := persona.Point(randomKey(r))
		assert.GreaterOrEqual(t, u, 0.0)
		assert.LessOrEqual(t, u, 1.0)
	}
}

func TestNewPolicyErrors(t *testing.T) {
	tests := []struct {
		name    string
		entries []persona.Weighted
	}{
		{"empty", nil},
		{"zero weight", []persona.Weighted{{Persona: linux, Weight: 0}}},
		{"negative weight", []persona.Weighted{{Persona: linux, Weight: 1}, {Persona: windows, Weight: -1}}},
		{"nan", []persona.Weighted{{Persona: linux, Weight: math.NaN()}}},
		{"inf", []persona.Weighted{{Persona: linux, Weight: math.Inf(1)}}},
		{"nil persona", []persona.Weighted{{Persona: nil, Weight: 1}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := persona.NewPolicy(tt.entries)
			assert.Error(t, err)
		})
	}
}

func TestEntriesNormalized(t *testing.T) {
	p, err := persona.NewPolicy([]persona.Weighted{{Persona: linux, Weight: 2}, {Persona: windows, Weight: 6}})
	require.NoError(t, err)
	e := p.Entries()
	require.Len(t, e, 2)
	assert.InDelta(t, 0.25, e[0].Weight, 1e-9)
	assert.InDelta(t, 0.75, e[1].Weight, 1e-9)
}

func TestPersonaString(t *testing.T) {
	assert.Equal(t, "linux{ttl=64 win=64240 layout=mss,sackok,timestamp,nop,wscale}", linux.String())
	assert.Equal(t, "bare{}", (&persona.Persona{Name: "bare"}).String())
	var nilP *persona.Persona
	assert.Equal(t, "<none>", nilP.String())
}
