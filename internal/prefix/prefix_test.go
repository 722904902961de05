package prefix

import (
	"errors"
	"slices"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		input string
		bits  int
		is6   bool
	}{
		{"1.0.139.0/24", 24, false},
		{"0.0.0.0/0", 0, false},
		{"255.255.255.255/32", 32, false},
		{"2001:318::/32", 32, true},
		{"::/0", 0, true},
		{"2001:db8::1/128", 128, true},
		// Host bits are preserved.
		{"10.1.2.3/8", 8, false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			p, err := Parse(tt.input)
			require.NoError(t, err)
			require.Equal(t, tt.bits, p.Bits())
			require.Equal(t, tt.is6, p.Is6())
			require.Equal(t, tt.input, p.String())
		})
	}
}

func TestParseErrors(t *testing.T) {
	var noSlash *NoSlashError
	var addrErr *AddrParseError
	var maskErr *MaskError

	tests := []struct {
		input  string
		target any
	}{
		{"1.0.0.0", &noSlash},
		{"", &noSlash},
		{"1.0.0/24", &addrErr},
		{"banana/24", &addrErr},
		{"fe80::1%eth0/64", &addrErr},
		{"1.0.0.0/abc", &maskErr},
		{"1.0.0.0/", &maskErr},
		{"1.0.0.0/-1", &maskErr},
		{"1.0.0.0/33", &maskErr},
		{"2001:db8::/129", &maskErr},
		{"1.0.0.0/300", &maskErr},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			_, err := Parse(tt.input)
			require.Error(t, err)
			require.True(t, errors.As(err, tt.target), "got %T: %v", err, err)
		})
	}
}

func TestFromBinary(t *testing.T) {
	tests := []struct {
		name   string
		octets []byte
		bits   uint8
		is6    bool
		want   string
	}{
		{"v4 short", []byte{1, 0, 139}, 24, false, "1.0.139.0/24"},
		{"v4 full", []byte{8, 8, 8, 8}, 32, false, "8.8.8.8/32"},
		{"v4 default", nil, 0, false, "0.0.0.0/0"},
		{"v6 32", []byte{32, 1, 3, 24}, 32, true, "2001:318::/32"},
		{"v6 48", []byte{32, 1, 2, 248, 16, 8}, 48, true, "2001:2f8:1008::/48"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := FromBinary(tt.octets, tt.bits, tt.is6)
			require.NoError(t, err)
			require.Equal(t, MustParse(tt.want), p)
		})
	}
}

func TestFromBinaryErrors(t *testing.T) {
	_, err := FromBinary([]byte{1, 2, 3, 4, 5}, 24, false)
	var octets *OctetsError
	require.True(t, errors.As(err, &octets))
	require.Equal(t, 5, octets.Len)
	require.Equal(t, 4, octets.Width)

	_, err = FromBinary([]byte{1}, 33, false)
	var maskErr *MaskError
	require.True(t, errors.As(err, &maskErr))
}

func TestRoundTrip(t *testing.T) {
	built := []Prefix{
		MustParse("1.0.204.0/22"),
		MustParse("2a00:1450::/29"),
		MustParse("::ffff:1.2.3.0/120"),
	}
	p, err := FromBinary([]byte{32, 1, 2, 248, 16, 8}, 48, true)
	require.NoError(t, err)
	built = append(built, p)

	for _, p := range built {
		again, err := Parse(p.String())
		require.NoError(t, err)
		require.Equal(t, p, again)
	}
}

func TestMapKey(t *testing.T) {
	m := map[Prefix]int{}
	m[MustParse("1.0.6.0/24")]++
	m[MustParse("1.0.6.0/24")]++
	m[MustParse("1.0.6.0/23")]++
	require.Len(t, m, 2)
	require.Equal(t, 2, m[MustParse("1.0.6.0/24")])
}

func TestCompare(t *testing.T) {
	ps := []Prefix{
		MustParse("2001:db8::/32"),
		MustParse("10.0.0.0/16"),
		MustParse("10.0.0.0/8"),
		MustParse("1.0.0.0/24"),
		MustParse("::/0"),
	}
	slices.SortFunc(ps, Prefix.Compare)

	var got []string
	for _, p := range ps {
		got = append(got, p.String())
	}
	require.Equal(t, []string{"1.0.0.0/24", "10.0.0.0/8", "10.0.0.0/16", "::/0", "2001:db8::/32"}, got)
}

func TestLeadingOctet(t *testing.T) {
	require.Equal(t, byte(193), MustParse("193.0.0.0/8").LeadingOctet())
	require.Equal(t, byte(0x20), MustParse("2001:db8::/32").LeadingOctet())
}
