package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFrom_Defaults(t *testing.T) {
	cfg, err := LoadFrom(filepath.Join(t.TempDir(), "config.toml"))
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.Log)
	assert.Equal(t, "DEVELOPMENT", cfg.Env)
	assert.False(t, cfg.Authenticated())
	assert.Equal(t, DevelopmentAPIBaseURL, cfg.APIBaseURL())
}

func TestLoadFrom_TOMLAuthSection(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[auth]\ntoken = \"tk-123\"\n"), 0o600))

	cfg, err := LoadFrom(path)
	require.NoError(t, err)
	assert.True(t, cfg.Authenticated())
	assert.Equal(t, "tk-123", cfg.Auth.Token)
}

func TestLoadFrom_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("log = \"info\"\n"), 0o600))

	t.Setenv("QUARRY_LOG", "debug")
	t.Setenv("QUARRY_ENV", "RELEASE")

	cfg, err := LoadFrom(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log)
	assert.Equal(t, ProductionAPIBaseURL, cfg.APIBaseURL())
}

func TestLoadFrom_MalformedTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[auth\ntoken ="), 0o600))

	_, err := LoadFrom(path)
	assert.Error(t, err)
}
