package cryptoengine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHash32(t *testing.T) {
	t.Run("Deterministic", func(t *testing.T) {
		a := Hash32([]byte("hello"))
		b := Hash32([]byte("hello"))
		assert.Equal(t, a, b)
	})

	t.Run("StreamingMatchesOneShot", func(t *testing.T) {
		data := []byte("the quick brown fox jumps over the lazy dog")
		want := Hash32(data)

		h := NewStreamingHasher()
		_, err := h.Write(data[:10])
		require.NoError(t, err)
		_, err = h.Write(data[10:])
		require.NoError(t, err)

		assert.Equal(t, want, h.Sum())
	})
}

func TestConstantTimeEqual(t *testing.T) {
	assert.True(t, ConstantTimeEqual([]byte("abc"), []byte("abc")))
	assert.False(t, ConstantTimeEqual([]byte("abc"), []byte("abd")))
	assert.False(t, ConstantTimeEqual([]byte("abc"), []byte("ab")))
}

func TestWireSealOpenRoundTrip(t *testing.T) {
	key, err := RandBytes(32)
	require.NoError(t, err)
	nonce, err := RandBytes(WireNonceSize)
	require.NoError(t, err)
	aad := []byte("command-header")
	pt := []byte("hello.txt")

	ct, tag, err := WireSeal(key, nonce, aad, pt)
	require.NoError(t, err)

	got, err := WireOpen(key, nonce, aad, ct, tag)
	require.NoError(t, err)
	assert.Equal(t, pt, got)
}

func TestWireOpenRejectsTamperedTag(t *testing.T) {
	key, _ := RandBytes(32)
	nonce, _ := RandBytes(WireNonceSize)
	ct, tag, err := WireSeal(key, nonce, nil, []byte("payload"))
	require.NoError(t, err)

	tag[0] ^= 0xFF
	_, err = WireOpen(key, nonce, nil, ct, tag)
	assert.ErrorIs(t, err, ErrAuthFailed)
}

func TestAtRestSealOpenRoundTrip(t *testing.T) {
	key, _ := RandBytes(32)
	iv, _ := RandBytes(AtRestNonceSize)
	pt := []byte("plaintext bytes of a stored object")

	ct, tag, err := AtRestSeal(key, iv, pt)
	require.NoError(t, err)
	require.Len(t, ct, len(pt))
	require.Len(t, tag, AtRestTagSize)

	got, err := AtRestOpen(key, iv, ct, tag)
	require.NoError(t, err)
	assert.Equal(t, pt, got)
}

func TestAtRestOpenRejectsBitFlip(t *testing.T) {
	key, _ := RandBytes(32)
	iv, _ := RandBytes(AtRestNonceSize)
	ct, tag, err := AtRestSeal(key, iv, []byte("object bytes"))
	require.NoError(t, err)

	ct[0] ^= 0x01
	_, err = AtRestOpen(key, iv, ct, tag)
	assert.ErrorIs(t, err, ErrAuthFailed)
}

func TestKeyExchangeAgreement(t *testing.T) {
	a, err := GenerateKeyExchangeKeyPair()
	require.NoError(t, err)
	b, err := GenerateKeyExchangeKeyPair()
	require.NoError(t, err)

	s1, err := a.Agree(b.PublicBytes())
	require.NoError(t, err)
	s2, err := b.Agree(a.PublicBytes())
	require.NoError(t, err)
	assert.Equal(t, s1, s2)
}

func TestKeyExchangeRejectsIdentityPoint(t *testing.T) {
	a, err := GenerateKeyExchangeKeyPair()
	require.NoError(t, err)

	var zero [32]byte
	_, err = a.Agree(zero[:])
	assert.ErrorIs(t, err, ErrInvalidKey)
}
