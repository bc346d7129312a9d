package banlist

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustReadAll(t *testing.T, path string) []byte {
	t.Helper()
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	return b
}

func mustWriteAll(t *testing.T, path string, b []byte) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, b, 0o644))
}

func TestLoadMissingFileReturnsEmpty(t *testing.T) {
	records, err := Load(filepath.Join(t.TempDir(), "does-not-exist"))
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestSaveThenLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "banned.dat")
	want := []Record{
		{SessionKeyHex: "aa00000000000000000000000000000000000000000000000000000000000aa0"[:64], BannedAtUnix: 1700000000, Reason: "abuse: oversized uploads"},
		{SessionKeyHex: "bb11111111111111111111111111111111111111111111111111111111111bb1"[:64], BannedAtUnix: 1700000500, Reason: ""},
	}

	require.NoError(t, Save(path, want))

	got, err := Load(path)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, want[0], got[0])
	assert.Equal(t, want[1], got[1])
}

func TestSaveOverwritesPreviousContent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "banned.dat")
	require.NoError(t, Save(path, []Record{{SessionKeyHex: "x", BannedAtUnix: 1, Reason: "first"}}))
	require.NoError(t, Save(path, nil))

	got, err := Load(path)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestLoadRejectsUnsupportedVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "banned.dat")
	require.NoError(t, Save(path, nil))

	raw := mustReadAll(t, path)
	raw[3] = 9 // corrupt the low byte of the big-endian version field
	mustWriteAll(t, path, raw)

	_, err := Load(path)
	assert.Error(t, err)
}
