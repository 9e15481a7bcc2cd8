package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("", nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultDataDir, cfg.DataDir)
	assert.Equal(t, DefaultRulesPath, cfg.RulesPath)
	assert.Equal(t, DefaultStatePath, cfg.StatePath)
	assert.Equal(t, "csv", cfg.Output)
	assert.Equal(t, "p1_1_1_2", cfg.Demographics.Table)
	assert.Equal(t, "mp_id", cfg.Demographics.EntityIDColumn)
	assert.False(t, cfg.Verbose)
}

func TestLoad_ConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "munaudit.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
data_dir: /srv/export
output: json
demographics:
  table: demo_table
`), 0o644))

	cfg, err := Load(path, nil)
	require.NoError(t, err)
	assert.Equal(t, "/srv/export", cfg.DataDir)
	assert.Equal(t, "json", cfg.Output)
	assert.Equal(t, "demo_table", cfg.Demographics.Table)
	// untouched keys keep their defaults
	assert.Equal(t, "mp_id", cfg.Demographics.EntityIDColumn)
	assert.Equal(t, path, ConfigFileUsed())
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "munaudit.yaml")
	require.NoError(t, os.WriteFile(path, []byte("data_dir: /srv/export\n"), 0o644))
	t.Setenv("MUNAUDIT_DATA_DIR", "/env/export")
	t.Setenv("MUNAUDIT_DEMOGRAPHICS__TABLE", "env_demo")

	cfg, err := Load(path, nil)
	require.NoError(t, err)
	assert.Equal(t, "/env/export", cfg.DataDir)
	assert.Equal(t, "env_demo", cfg.Demographics.Table)
}

func TestLoad_FlagsWinOverEverything(t *testing.T) {
	t.Setenv("MUNAUDIT_DATA_DIR", "/env/export")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("data", "", "")
	flags.String("rules", "", "")
	flags.String("state", "", "")
	flags.Bool("verbose", false, "")
	require.NoError(t, flags.Parse([]string{
		"--data", "/flag/export",
		"--rules", "/flag/rules.csv",
		"--state", "/flag/history.db",
		"--verbose",
	}))

	cfg, err := Load("", flags)
	require.NoError(t, err)
	assert.Equal(t, "/flag/export", cfg.DataDir)
	assert.Equal(t, "/flag/rules.csv", cfg.RulesPath)
	assert.Equal(t, "/flag/history.db", cfg.StatePath)
	assert.True(t, cfg.Verbose)
}

func TestLoad_UnsetFlagsDoNotOverride(t *testing.T) {
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("data", "", "")
	require.NoError(t, flags.Parse(nil))

	cfg, err := Load("", flags)
	require.NoError(t, err)
	assert.Equal(t, DefaultDataDir, cfg.DataDir)
}
