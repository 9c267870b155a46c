package scope_test

import (
	"net/netip"
	"testing"

	"github.com/daniellavrushin/weaver/scope"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func prefixes(t *testing.T, ss ...string) []netip.Prefix {
	t.Helper()
	out := make([]netip.Prefix, 0, len(ss))
	for _, s := range ss {
		p, err := scope.ParseTarget(s)
		require.NoError(t, err)
		out = append(out, p)
	}
	return out
}

func TestContains(t *testing.T) {
	f, err := scope.NewFilter(scope.Config{
		Enabled: true,
		Targets: prefixes(t, "93.184.216.0/24", "198.51.100.7", "2001:db8:1::/48"),
	})
	require.NoError(t, err)

	tests := []struct {
		dst  string
		want bool
	}{
		{"93.184.216.34", true},
		{"93.184.217.1", false},
		{"198.51.100.7", true},
		{"198.51.100.8", false},
		{"2001:db8:1::5", true},
		{"2001:db8:2::5", false},
		{"::ffff:93.184.216.34", false},
		{"::ffff:10.0.0.1", false},
	}
	for _, tt := range tests {
		t.Run(tt.dst, func(t *testing.T) {
			assert.Equal(t, tt.want, f.Contains(netip.MustParseAddr(tt.dst)))
		})
	}
}

func TestFamilyIsolation(t *testing.T) {
	f, err := scope.NewFilter(scope.Config{Enabled: true, Targets: prefixes(t, "0.0.0.0/0")})
	require.NoError(t, err)

	assert.True(t, f.Contains(netip.MustParseAddr("203.0.113.9")))
	assert.False(t, f.Contains(netip.MustParseAddr("2001:db8::1")))

	f6, err := scope.NewFilter(scope.Config{Enabled: true, Targets: prefixes(t, "::/0")})
	require.NoError(t, err)
	assert.True(t, f6.Contains(netip.MustParseAddr("2001:db8::1")))
	assert.False(t, f6.Contains(netip.MustParseAddr("203.0.113.9")))
}

func TestDisabledMatchesNothing(t *testing.T) {
	f, err := scope.NewFilter(scope.Config{Enabled: false, Targets: prefixes(t, "0.0.0.0/0", "::/0")})
	require.NoError(t, err)
	assert.False(t, f.Enabled())
	assert.False(t, f.Contains(netip.MustParseAddr("93.184.216.34")))
	assert.False(t, f.Contains(netip.MustParseAddr("2001:db8::1")))
}

func TestEmptyTargetsMatchNothing(t *testing.T) {
	f, err := scope.NewFilter(scope.Config{Enabled: true})
	require.NoError(t, err)
	assert.True(t, f.Enabled())
	assert.False(t, f.Contains(netip.MustParseAddr("93.184.216.34")))
}

func TestNilFilter(t *testing.T) {
	var f *scope.Filter
	assert.False(t, f.Enabled())
	assert.False(t, f.Contains(netip.MustParseAddr("93.184.216.34")))
}

func TestMatchMostSpecific(t *testing.T) {
	f, err := scope.NewFilter(scope.Config{Enabled: true, Targets: prefixes(t, "10.0.0.0/8", "10.1.0.0/16", "10.1.2.0/24")})
	require.NoError(t, err)

	p, ok := f.Match(netip.MustParseAddr("10.1.2.3"))
	require.True(t, ok)
	assert.Equal(t, "10.1.2.0/24", p.String())

	p, ok = f.Match(netip.MustParseAddr("10.9.0.1"))
	require.True(t, ok)
	assert.Equal(t, "10.0.0.0/8", p.String())
}

func TestMappedAddressesAreIPv6(t *testing.T) {
	f, err := scope.NewFilter(scope.Config{Enabled: true, Targets: prefixes(t, "::ffff:192.0.2.0/120", "2001:db8::/32")})
	require.NoError(t, err)
	assert.Equal(t, "::ffff:192.0.2.0/120", f.Config().Targets[0].String())

	assert.True(t, f.Contains(netip.MustParseAddr("::ffff:192.0.2.10")))
	assert.False(t, f.Contains(netip.MustParseAddr("192.0.2.10")))
	assert.False(t, f.Contains(netip.MustParseAddr("::ffff:198.51.100.1")))
	assert.True(t, f.Contains(netip.MustParseAddr("2001:db8::1")))

	p, ok := f.Match(netip.MustParseAddr("::ffff:192.0.2.10"))
	require.True(t, ok)
	assert.Equal(t, "::ffff:192.0.2.0/120", p.String())

	all6, err := scope.NewFilter(scope.Config{Enabled: true, Targets: prefixes(t, "::/0", "::ffff:0:0/96")})
	require.NoError(t, err)
	p, ok = all6.Match(netip.MustParseAddr("::ffff:10.0.0.1"))
	require.True(t, ok)
	assert.Equal(t, "::ffff:0.0.0.0/96", p.String())
	assert.False(t, all6.Contains(netip.MustParseAddr("10.0.0.1")))

	all4, err := scope.NewFilter(scope.Config{Enabled: true, Targets: prefixes(t, "0.0.0.0/0")})
	require.NoError(t, err)
	assert.False(t, all4.Contains(netip.MustParseAddr("::ffff:10.0.0.1")))
}

func TestParseTarget(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"10.0.0.0/8", "10.0.0.0/8", false},
		{" 10.0.0.1 ", "10.0.0.1/32", false},
		{"2001:db8::1", "2001:db8::1/128", false},
		{"::ffff:10.0.0.1", "::ffff:10.0.0.1/128", false},
		{"10.0.0.0/33", "", true},
		{"example.com", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			p, err := scope.ParseTarget(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, p.String())
		})
	}
}

func TestOptionsMode(t *testing.T) {
	f, err := scope.NewFilter(scope.Config{Enabled: true, Options: true})
	require.NoError(t, err)
	assert.Equal(t, scope.ReorderOnly, f.Config().OptionsMode)
	assert.True(t, f.Config().ReorderOptions())

	f, err = scope.NewFilter(scope.Config{Enabled: true, Options: true, OptionsMode: scope.OptionsOff})
	require.NoError(t, err)
	assert.False(t, f.Config().ReorderOptions())

	f, err = scope.NewFilter(scope.Config{Enabled: true, Options: false, OptionsMode: scope.ReorderOnly})
	require.NoError(t, err)
	assert.False(t, f.Config().ReorderOptions())

	_, err = scope.NewFilter(scope.Config{OptionsMode: "shuffle"})
	assert.Error(t, err)
}
