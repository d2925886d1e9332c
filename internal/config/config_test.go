package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(nil)
	require.NoError(t, err)
	assert.Equal(t, ":8000", cfg.Listen)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoadYAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("listen: :9000\ndata-dir: /data\nappend-only: true\n"), 0o600))

	cfg, err := Load([]string{"-config-file", path})
	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.Listen)
	assert.Equal(t, "/data", cfg.DataDir)
	assert.True(t, cfg.AppendOnly)
}

func TestFlagOverridesEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("listen: :9000\n"), 0o600))

	t.Setenv("REST_SERVER_LISTEN", ":9500")

	cfg, err := Load([]string{"-config-file", path, "-listen", ":9999"})
	require.NoError(t, err)
	assert.Equal(t, ":9999", cfg.Listen)
}

func TestEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("listen: :9000\n"), 0o600))

	t.Setenv("REST_SERVER_LISTEN", ":9500")

	cfg, err := Load([]string{"-config-file", path})
	require.NoError(t, err)
	assert.Equal(t, ":9500", cfg.Listen)
}

func TestPolicyProjection(t *testing.T) {
	cfg := Config{DisableAuth: true, AppendOnly: true, QuotaBytes: 42}
	policy := cfg.Policy()
	assert.True(t, policy.DisableAuth)
	assert.True(t, policy.AppendOnly)
	assert.EqualValues(t, 42, policy.QuotaBytes)
}
