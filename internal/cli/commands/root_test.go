package commands

import (
	"bytes"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chdirTemp runs the test from an empty directory so no slang-harness.yml is
// picked up.
func chdirTemp(t *testing.T) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })
}

func TestRootCommandHasSubcommands(t *testing.T) {
	root := NewRootCommand()

	want := []string{"version", "check", "diag", "symbols"}
	for _, name := range want {
		found := false
		for _, cmd := range root.Commands() {
			if cmd.Name() == name {
				found = true
				break
			}
		}
		assert.True(t, found, "missing subcommand %q", name)
	}
}

func TestVersionCommandRuns(t *testing.T) {
	root := NewRootCommand()
	out := new(bytes.Buffer)
	root.SetOut(out)
	root.SetErr(out)
	root.SetArgs([]string{"version"})

	require.NoError(t, root.Execute())
}

func TestLoadConfigFlagOverrides(t *testing.T) {
	chdirTemp(t)

	root := NewRootCommand()
	// Go through flag parsing so the persistent flags are merged into the
	// set loadConfig reads, as they are during command execution.
	require.NoError(t, root.ParseFlags([]string{
		"--binary", "/flag/slang-server",
		"--rr",
		"--gdb", "3",
		"--timeout", "9",
	}))

	cfg, err := loadConfig(root)
	require.NoError(t, err)

	assert.Equal(t, "/flag/slang-server", cfg.Binary)
	assert.True(t, cfg.Record)
	assert.Equal(t, 3, cfg.DebugWaitSeconds)
	assert.Equal(t, 9, cfg.TimeoutSeconds)
}

func TestLoadConfigKeepsDefaultsWithoutFlags(t *testing.T) {
	chdirTemp(t)

	cfg, err := loadConfig(NewRootCommand())
	require.NoError(t, err)

	assert.Equal(t, "build/bin/slang-server", cfg.Binary)
	assert.False(t, cfg.Record)
}
