package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	return dir
}

func TestLoadDefaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "build/bin/slang-server", cfg.Binary)
	assert.False(t, cfg.Record)
	assert.Equal(t, 0, cfg.DebugWaitSeconds)
	assert.Equal(t, 30*time.Second, cfg.Timeout())
	assert.Empty(t, cfg.Workspace)
}

func TestLoadFromFile(t *testing.T) {
	dir := chdirTemp(t)

	yml := "binary: /opt/slang/bin/slang-server\nrecord: true\ntimeout: 5\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "slang-harness.yml"), []byte(yml), 0o644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "/opt/slang/bin/slang-server", cfg.Binary)
	assert.True(t, cfg.Record)
	assert.Equal(t, 5*time.Second, cfg.Timeout())
}

func TestEnvironmentOverridesDefaults(t *testing.T) {
	chdirTemp(t)
	t.Setenv("SLANG_HARNESS_BINARY", "/env/slang-server")
	t.Setenv("SLANG_HARNESS_DEBUG_WAIT", "7")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "/env/slang-server", cfg.Binary)
	assert.Equal(t, 7*time.Second, cfg.DebugWait())
}

func TestValidateRejectsBadValues(t *testing.T) {
	assert.Error(t, validateConfig(&Config{Binary: "", TimeoutSeconds: 30}))
	assert.Error(t, validateConfig(&Config{Binary: "x", TimeoutSeconds: 0}))
	assert.Error(t, validateConfig(&Config{Binary: "x", TimeoutSeconds: 30, DebugWaitSeconds: -1}))
	assert.NoError(t, validateConfig(&Config{Binary: "x", TimeoutSeconds: 30}))
}
