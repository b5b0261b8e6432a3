package raw

import (
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quotedIPv4Header(src, dst netip.Addr) []byte {
	h := make([]byte, 20)
	h[0] = 0x45
	// total length of the original datagram, more than what is quoted
	h[2], h[3] = 0, 84
	h[8] = 1
	h[9] = 1
	s, d := src.As4(), dst.As4()
	copy(h[12:16], s[:])
	copy(h[16:20], d[:])
	return h
}

func quotedIPv6Header(src, dst netip.Addr) []byte {
	h := make([]byte, 40)
	h[0] = 0x60
	h[5] = 64
	h[6] = 58
	h[7] = 1
	s, d := src.As16(), dst.As16()
	copy(h[8:24], s[:])
	copy(h[24:40], d[:])
	return h
}

func TestQuotedDestinationV4(t *testing.T) {
	src := netip.MustParseAddr("10.1.1.1")
	dst := netip.MustParseAddr("192.0.2.9")
	quoted := append(quotedIPv4Header(src, dst), 8, 0, 0, 0, 0, 1, 0, 1)

	cases := []struct {
		name   string
		header []byte
	}{
		{"destination unreachable", []byte{3, 1, 0, 0, 0, 0, 0, 0}},
		{"time exceeded", []byte{11, 0, 0, 0, 0, 0, 0, 0}},
		{"bad ip header", []byte{12, 0, 0, 0, 0, 0, 0, 0}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			msg, err := DecodeV4(append(append([]byte(nil), tc.header...), quoted...))
			require.NoError(t, err)
			got, ok := QuotedDestination(msg)
			require.True(t, ok)
			assert.Equal(t, dst, got)
		})
	}
}

func TestQuotedDestinationV6(t *testing.T) {
	src := netip.MustParseAddr("2001:db8::1")
	dst := netip.MustParseAddr("2001:db8::9")
	quoted := quotedIPv6Header(src, dst)

	for _, header := range [][]byte{
		{1, 3, 0, 0, 0, 0, 0, 0},
		{2, 0, 0, 0, 0, 0, 0x05, 0x00},
		{3, 0, 0, 0, 0, 0, 0, 0},
		{4, 0, 0, 0, 0, 0, 0, 6},
	} {
		msg, err := DecodeV6(append(append([]byte(nil), header...), quoted...))
		require.NoError(t, err)
		got, ok := QuotedDestination(msg)
		require.True(t, ok, "type %d", header[0])
		assert.Equal(t, dst, got)
	}
}

func TestQuotedDestinationRejects(t *testing.T) {
	dst := netip.MustParseAddr("192.0.2.9")
	full := quotedIPv4Header(netip.MustParseAddr("10.1.1.1"), dst)

	short, err := DecodeV4(append([]byte{3, 1, 0, 0, 0, 0, 0, 0}, full[:19]...))
	require.NoError(t, err)
	_, ok := QuotedDestination(short)
	assert.False(t, ok, "quoted header cut short")

	notV4 := append([]byte(nil), full...)
	notV4[0] = 0x65
	wrongVersion, err := DecodeV4(append([]byte{3, 1, 0, 0, 0, 0, 0, 0}, notV4...))
	require.NoError(t, err)
	_, ok = QuotedDestination(wrongVersion)
	assert.False(t, ok, "quoted header is not ipv4")

	echo, err := DecodeV4(append([]byte{0, 0, 0, 0, 0, 1, 0, 1}, full...))
	require.NoError(t, err)
	_, ok = QuotedDestination(echo)
	assert.False(t, ok, "echo reply quotes nothing")

	echo6, err := DecodeV6([]byte{129, 0, 0, 0, 0, 1, 0, 1})
	require.NoError(t, err)
	_, ok = QuotedDestination(echo6)
	assert.False(t, ok)
}
