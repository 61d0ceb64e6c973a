package main

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/incentive-engine/config"
)

func TestRootCmd_HasSubcommands(t *testing.T) {
	root := newRootCmd()

	for _, name := range []string{"serve", "migrate", "version"} {
		cmd, _, err := root.Find([]string{name})
		require.NoError(t, err, name)
		assert.Equal(t, name, cmd.Name())
	}
	assert.NotNil(t, root.PersistentFlags().Lookup("db"))
	assert.NotNil(t, root.PersistentFlags().Lookup("addr"))
}

func TestVersionCmd_PrintsVersion(t *testing.T) {
	// GIVEN
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"version"})

	// WHEN
	err := root.Execute()

	// THEN
	require.NoError(t, err)
	assert.Contains(t, out.String(), "incentive-engine dev")
}

func TestMigrateCmd_CreatesDatabase(t *testing.T) {
	// GIVEN a database path inside a directory that does not exist yet
	t.Setenv(config.EnvFile, "")
	dbPath := filepath.Join(t.TempDir(), "nested", "incentive.db")
	root := newRootCmd()
	root.SetArgs([]string{"migrate", "--db", dbPath})

	// WHEN
	err := root.Execute()

	// THEN
	require.NoError(t, err)
	assert.FileExists(t, dbPath)
}

func TestMigrateCmd_InvalidConfig(t *testing.T) {
	// GIVEN
	t.Setenv("INCENTIVE_LOG_LEVEL", "chatty")
	root := newRootCmd()
	root.SetArgs([]string{"migrate", "--db", ":memory:"})

	// WHEN
	err := root.Execute()

	// THEN
	require.Error(t, err)
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
}

func TestOverrides_Apply(t *testing.T) {
	cfg := config.New()
	overrides{addr: ":9090"}.apply(cfg)

	assert.Equal(t, ":9090", cfg.Addr)
	assert.Equal(t, config.New().DBPath, cfg.DBPath)
}
