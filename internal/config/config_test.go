package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_YAMLAndDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
project:
  root: /src/expat
  targets: [xmlwf, lib]
plugin:
  path: /opt/libArgStates.so
changeset: changes.txt
mode: batch
timeout: 30s
`), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "/src/expat", cfg.Project.Root)
	assert.Equal(t, []string{"xmlwf", "lib"}, cfg.Project.Targets)
	assert.Equal(t, ModeBatch, cfg.Mode)
	assert.Equal(t, 30*time.Second, cfg.Timeout)

	// Defaults
	assert.Equal(t, "clang", cfg.Compiler.Path)
	assert.Equal(t, "ArgStates", cfg.Plugin.Name)
	assert.Equal(t, 1, cfg.Workers)
	assert.Equal(t, "none", cfg.Telemetry.Metrics)
	assert.Equal(t, "/src/expat/compile_commands.json", cfg.DatabasePath())
	assert.Equal(t, "/src/expat/xmlwf", cfg.TargetDir("xmlwf"))
	assert.Equal(t, "changes.txt", cfg.BatchNamesFile())

	require.NoError(t, cfg.Validate())
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("ARGSTATES_ROOT", "/env/root")
	t.Setenv("ARGSTATES_MODE", "batch")
	t.Setenv("ARGSTATES_WORKERS", "4")

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "/env/root", cfg.Project.Root)
	assert.Equal(t, ModeBatch, cfg.Mode)
	assert.Equal(t, 4, cfg.Workers)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := Default()
		cfg.Project.Root = "/src"
		cfg.Plugin.Path = "/opt/plugin.so"
		cfg.ChangeSet = "changes.txt"
		return cfg
	}

	t.Run("valid", func(t *testing.T) {
		assert.NoError(t, valid().Validate())
	})

	t.Run("unknown mode", func(t *testing.T) {
		cfg := valid()
		cfg.Mode = "parallel"
		assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
	})

	t.Run("missing plugin", func(t *testing.T) {
		cfg := valid()
		cfg.Plugin.Path = ""
		assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
	})

	t.Run("symbol mode without changeset", func(t *testing.T) {
		cfg := valid()
		cfg.ChangeSet = ""
		assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
	})

	t.Run("batch mode with names file only", func(t *testing.T) {
		cfg := valid()
		cfg.Mode = ModeBatch
		cfg.ChangeSet = ""
		cfg.NamesFile = "names.txt"
		assert.NoError(t, cfg.Validate())
	})

	t.Run("bad metrics exporter", func(t *testing.T) {
		cfg := valid()
		cfg.Telemetry.Metrics = "otlp"
		assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
	})
}
