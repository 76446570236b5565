package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigFrom_DefaultsWhenFileMissing(t *testing.T) {
	cfg, err := LoadConfigFrom(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "session_id", cfg.Redirect.SessionCookie)
	assert.False(t, cfg.Redirect.FailClosed)
	assert.Equal(t, 30, cfg.Analytics.DefaultWindowDays)
}

func TestLoadConfigFrom_FileAndEnvironment(t *testing.T) {
	dir := t.TempDir()
	yaml := []byte("server:\n  port: 9090\nredirect:\n  fail_closed: true\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), yaml, 0o600))

	t.Setenv("GA_MEASUREMENT_ID", "G-TEST")
	t.Setenv("GA_API_SECRET", "secret")
	t.Setenv("DATABASE_NAME", "env.db")

	cfg, err := LoadConfigFrom(dir)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.True(t, cfg.Redirect.FailClosed)
	assert.Equal(t, "env.db", cfg.Database.Name)
	assert.Equal(t, "G-TEST", cfg.Sink.MeasurementID)
	assert.True(t, cfg.Sink.Enabled())
}

func TestLoadConfigFrom_MalformedFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("server: [unclosed"), 0o600))

	_, err := LoadConfigFrom(dir)
	assert.Error(t, err)
}
