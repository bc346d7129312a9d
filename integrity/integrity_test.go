package integrity

import (
	"bytes"
	"strings"
	"testing"

	"github.com/sage-x-project/sage/cryptoengine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerifyReaderAcceptsMatchingDigest(t *testing.T) {
	content := strings.Repeat("upload-bytes-", 1000)
	want := cryptoengine.Hash32([]byte(content))

	var dst bytes.Buffer
	err := VerifyReader(&dst, strings.NewReader(content), want)
	require.NoError(t, err)
	assert.Equal(t, content, dst.String())
}

func TestVerifyReaderRejectsMismatch(t *testing.T) {
	var want [32]byte
	copy(want[:], []byte("not-the-right-digest-at-all----"))

	var dst bytes.Buffer
	err := VerifyReader(&dst, strings.NewReader("some file bytes"), want)
	assert.ErrorIs(t, err, ErrMismatch)
}

func TestVerifierStreamsIncrementally(t *testing.T) {
	v := NewVerifier(cryptoengine.Hash32([]byte("ab")))
	n, err := v.Write([]byte("a"))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	_, err = v.Write([]byte("b"))
	require.NoError(t, err)
	require.NoError(t, v.Finish())
}
