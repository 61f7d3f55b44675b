package codec_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/cryptobyte"

	"mlsgroup/internal/codec"
)

func TestVarint_Boundaries(t *testing.T) {
	cases := []struct {
		n    int
		want []byte
	}{
		{0, []byte{0x00}},
		{63, []byte{0x3f}},
		{64, []byte{0x40, 0x40}},
		{16383, []byte{0x7f, 0xff}},
		{16384, []byte{0x80, 0x00, 0x40, 0x00}},
	}
	for _, tc := range cases {
		b := cryptobyte.NewBuilder(nil)
		codec.WriteVarint(b, tc.n)
		got, err := b.Bytes()
		require.NoError(t, err)
		require.Equal(t, tc.want, got, "n=%d", tc.n)

		s := cryptobyte.String(got)
		var back int
		require.NoError(t, codec.ReadVarint(&s, &back))
		require.Equal(t, tc.n, back)
	}
}

func TestVarint_RejectsNonMinimal(t *testing.T) {
	s := cryptobyte.String([]byte{0x40, 0x05})
	var n int
	require.ErrorIs(t, codec.ReadVarint(&s, &n), codec.ErrNonMinimalVarint)
}

func TestOpaque_RoundTrip(t *testing.T) {
	payload := bytes.Repeat([]byte{0xab}, 300)
	enc := codec.EncodeOpaque(payload)

	s := cryptobyte.String(enc)
	var out []byte
	require.NoError(t, codec.ReadOpaque(&s, &out))
	require.True(t, s.Empty())
	require.Equal(t, payload, out)
}

func TestOptional_RejectsBadFlag(t *testing.T) {
	s := cryptobyte.String([]byte{2})
	var present bool
	require.ErrorIs(t, codec.ReadOptional(&s, &present), codec.ErrInvalidOptional)
}

func TestVector_ReadsAllItems(t *testing.T) {
	items := [][]byte{[]byte("a"), []byte("bc"), {}}
	b := cryptobyte.NewBuilder(nil)
	codec.WriteVector(b, len(items), func(b *cryptobyte.Builder, i int) {
		codec.WriteOpaque(b, items[i])
	})
	enc, err := b.Bytes()
	require.NoError(t, err)

	s := cryptobyte.String(enc)
	var got [][]byte
	require.NoError(t, codec.ReadVector(&s, func(s *cryptobyte.String) error {
		var v []byte
		if err := codec.ReadOpaque(s, &v); err != nil {
			return err
		}
		got = append(got, v)
		return nil
	}))
	require.Len(t, got, 3)
	require.Equal(t, []byte("bc"), got[1])
	require.Empty(t, got[2])
}
