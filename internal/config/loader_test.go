package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadAppliesDefaultsWithNoFileOrEnv(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 1512, cfg.ListenPort)
	assert.Equal(t, 10, cfg.ConnectionCap)
}

func TestLoadOverlaysYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "exchange.yaml")
	require.NoError(t, os.WriteFile(path, []byte("listen_port: 2000\nstorage_root: /data\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 2000, cfg.ListenPort)
	assert.Equal(t, "/data", cfg.StorageRoot)
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "exchange.yaml")
	require.NoError(t, os.WriteFile(path, []byte("listen_port: 2000\n"), 0o644))

	t.Setenv("EXCHANGE_LISTEN_PORT", "3000")
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.ListenPort)
}

func TestValidateRejectsOutOfRangePort(t *testing.T) {
	cfg := Default()
	cfg.ListenPort = 70000
	assert.Error(t, Validate(&cfg))
}

func TestValidateRejectsEmptyStorageRoot(t *testing.T) {
	cfg := Default()
	cfg.StorageRoot = ""
	assert.Error(t, Validate(&cfg))
}
