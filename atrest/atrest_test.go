package atrest

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCipherSealOpenRoundTrip(t *testing.T) {
	c, err := NewCipher()
	require.NoError(t, err)

	plaintext := []byte("the quick brown fox jumps over the lazy dog")
	iv, ct, tag, err := c.Seal(plaintext)
	require.NoError(t, err)
	assert.Len(t, ct, len(plaintext))

	got, err := c.Open(iv, ct, tag)
	require.NoError(t, err)
	assert.Equal(t, plaintext, got)
}

func TestCipherOpenDetectsTamperedTag(t *testing.T) {
	c, err := NewCipher()
	require.NoError(t, err)
	iv, ct, tag, err := c.Seal([]byte("payload"))
	require.NoError(t, err)

	tag[0] ^= 0xFF
	_, err = c.Open(iv, ct, tag)
	assert.Error(t, err)
}

func TestZeroClearsKey(t *testing.T) {
	c, err := NewCipher()
	require.NoError(t, err)
	c.Zero()
	for _, b := range c.key {
		assert.Equal(t, byte(0), b)
	}
}

func TestStoreWriteThenRead(t *testing.T) {
	dir := t.TempDir()
	s, err := NewStore(filepath.Join(dir, "objects"))
	require.NoError(t, err)

	require.NoError(t, s.Write("report.bin", bytes.NewReader([]byte("ciphertext-bytes"))))

	f, err := s.Read("report.bin")
	require.NoError(t, err)
	defer f.Close()
	got, err := io.ReadAll(f)
	require.NoError(t, err)
	assert.Equal(t, "ciphertext-bytes", string(got))

	info, err := os.Stat(s.Path("report.bin"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(fileMode), info.Mode().Perm())
}

func TestStoreWriteRejectsDuplicateName(t *testing.T) {
	dir := t.TempDir()
	s, err := NewStore(dir)
	require.NoError(t, err)

	require.NoError(t, s.Write("dup.bin", bytes.NewReader([]byte("one"))))
	err = s.Write("dup.bin", bytes.NewReader([]byte("two")))
	assert.ErrorIs(t, err, ErrPermissionDenied)
}

func TestStoreWriteConcurrentSameNameExactlyOneWinner(t *testing.T) {
	dir := t.TempDir()
	s, err := NewStore(dir)
	require.NoError(t, err)

	const racers = 8
	var wg sync.WaitGroup
	results := make([]error, racers)
	wg.Add(racers)
	for i := 0; i < racers; i++ {
		i := i
		go func() {
			defer wg.Done()
			results[i] = s.Write("contested.bin", bytes.NewReader([]byte("payload")))
		}()
	}
	wg.Wait()

	var wins, losses int
	for _, err := range results {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, ErrPermissionDenied):
			losses++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, wins, "exactly one racing Write should succeed")
	assert.Equal(t, racers-1, losses)

	f, err := s.Read("contested.bin")
	require.NoError(t, err)
	defer f.Close()
	got, err := io.ReadAll(f)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(got))
}

func TestStoreWriteLeavesNoTempFileOnSuccess(t *testing.T) {
	dir := t.TempDir()
	s, err := NewStore(dir)
	require.NoError(t, err)
	require.NoError(t, s.Write("clean.bin", bytes.NewReader([]byte("x"))))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
	assert.Equal(t, "clean.bin", entries[0].Name())
}
