package session

import (
	"testing"

	"github.com/sage-x-project/sage/cryptoengine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func paired(t *testing.T) (client, server *Context) {
	t.Helper()
	client, err := NewContext()
	require.NoError(t, err)
	server, err = NewContext()
	require.NoError(t, err)

	require.NoError(t, client.AcceptPeer(server.LocalPublicKey()))
	require.NoError(t, server.AcceptPeer(client.LocalPublicKey()))
	return client, server
}

func TestContextAcceptPeerDerivesMatchingSessionKey(t *testing.T) {
	client, server := paired(t)

	ch, err := client.SessionKeyHash()
	require.NoError(t, err)
	sh, err := server.SessionKeyHash()
	require.NoError(t, err)

	assert.Equal(t, ch, sh)
	assert.True(t, client.Established())
	assert.True(t, server.Established())
}

func TestContextAcceptPeerRejectsIdentityPoint(t *testing.T) {
	c, err := NewContext()
	require.NoError(t, err)

	var zero [32]byte
	err = c.AcceptPeer(zero[:])
	assert.ErrorIs(t, err, cryptoengine.ErrInvalidKey)
	assert.False(t, c.Established())
}

func TestMetadataRoundTrip(t *testing.T) {
	t.Run("WithRecipient", func(t *testing.T) {
		client, server := paired(t)
		recipient := "bb00000000000000000000000000000000000000000000000000000000000bb0"[:64]

		enc, err := client.SealMetadata("secret.bin", 42, recipient)
		require.NoError(t, err)

		meta, err := server.OpenMetadata(enc)
		require.NoError(t, err)
		assert.Equal(t, "secret.bin", meta.Filename)
		assert.Equal(t, int64(42), meta.Size)
		assert.Equal(t, recipient, meta.Recipient)
	})

	t.Run("WithoutRecipient", func(t *testing.T) {
		client, server := paired(t)

		enc, err := client.SealMetadata("hello.txt", 6, "")
		require.NoError(t, err)
		assert.Empty(t, enc.RecipientCT)

		meta, err := server.OpenMetadata(enc)
		require.NoError(t, err)
		assert.Equal(t, "hello.txt", meta.Filename)
		assert.Equal(t, int64(6), meta.Size)
		assert.Empty(t, meta.Recipient)
	})
}

func TestOpenMetadataFailsWithoutSession(t *testing.T) {
	client, _ := paired(t)
	enc, err := client.SealMetadata("x", 1, "")
	require.NoError(t, err)

	fresh, err := NewContext()
	require.NoError(t, err)
	_, err = fresh.OpenMetadata(enc)
	assert.ErrorIs(t, err, ErrNotEstablished)
}

func TestOpenMetadataRejectsTamperedCiphertext(t *testing.T) {
	client, server := paired(t)
	enc, err := client.SealMetadata("hello.txt", 6, "")
	require.NoError(t, err)

	enc.FilenameCT[0] ^= 0xFF
	_, err = server.OpenMetadata(enc)
	assert.ErrorIs(t, err, cryptoengine.ErrAuthFailed)
}

func TestOpenMetadataRejectsInvalidRecipient(t *testing.T) {
	client, server := paired(t)
	enc, err := client.SealMetadata("x", 1, "not-hex-and-wrong-length")
	require.NoError(t, err)

	_, err = server.OpenMetadata(enc)
	assert.ErrorIs(t, err, ErrInvalidRecipient)
}

func TestReplayWindowDetectsReuse(t *testing.T) {
	w := NewReplayWindow(4)
	n1 := []byte("nonce-1")
	assert.True(t, w.Observe(n1))
	assert.False(t, w.Observe(n1), "replay must be rejected")
}

func TestReplayWindowEvictsOldest(t *testing.T) {
	w := NewReplayWindow(2)
	assert.True(t, w.Observe([]byte("a")))
	assert.True(t, w.Observe([]byte("b")))
	assert.True(t, w.Observe([]byte("c"))) // evicts "a"

	assert.True(t, w.Observe([]byte("a")), "evicted nonce may be re-observed")
	assert.Equal(t, 2, w.Len())
}

func TestCheckInboundNonceIntegratesReplayWindow(t *testing.T) {
	client, server := paired(t)
	nonce, err := client.NextOutboundNonce()
	require.NoError(t, err)

	require.NoError(t, server.CheckInboundNonce(nonce))
	err = server.CheckInboundNonce(nonce)
	assert.ErrorIs(t, err, ErrReplay)
}

func TestRecordAuthRoundTrip(t *testing.T) {
	client, server := paired(t)
	nonce, err := client.NextOutboundNonce()
	require.NoError(t, err)
	aad := []byte("command-tag+offset+flags+hash")

	tag, err := client.SealRecordAuth(nonce, aad)
	require.NoError(t, err)

	require.NoError(t, server.VerifyRecordAuth(nonce, aad, tag[:]))
}

func TestRecordAuthRejectsTamperedAAD(t *testing.T) {
	client, server := paired(t)
	nonce, err := client.NextOutboundNonce()
	require.NoError(t, err)

	tag, err := client.SealRecordAuth(nonce, []byte("original"))
	require.NoError(t, err)

	err = server.VerifyRecordAuth(nonce, []byte("tampered"), tag[:])
	assert.ErrorIs(t, err, cryptoengine.ErrAuthFailed)
}

func TestZeroizeClearsSessionKey(t *testing.T) {
	client, _ := paired(t)
	client.Zeroize()
	assert.False(t, client.Established())

	for _, b := range client.sessionKey {
		assert.Equal(t, byte(0), b)
	}
}
