package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Drive modes.
const (
	ModeSymbol = "symbol"
	ModeBatch  = "batch"
)

// OutputDirEnv is the variable the plugin reads its artifact directory from.
const OutputDirEnv = "ARG_STATES_OUT_DIR"

var ErrInvalidConfig = errors.New("invalid configuration")

var validate = validator.New()

type Config struct {
	Project struct {
		Root     string   `yaml:"root" validate:"required"`
		Database string   `yaml:"database"` // relative to root unless absolute
		Targets  []string `yaml:"targets"`
	} `yaml:"project"`
	Compiler struct {
		Path            string `yaml:"path" validate:"required"`
		FallbackInclude string `yaml:"fallback_include"`
	} `yaml:"compiler"`
	Plugin struct {
		Path string `yaml:"path" validate:"required"`
		Name string `yaml:"name" validate:"required"`
	} `yaml:"plugin"`
	ChangeSet string        `yaml:"changeset"`
	NamesFile string        `yaml:"names_file"` // batch mode; falls back to changeset
	Suffix    string        `yaml:"suffix"`
	Mode      string        `yaml:"mode" validate:"oneof=symbol batch"`
	OutputDir string        `yaml:"output_dir" validate:"required"`
	Workers   int           `yaml:"workers" validate:"gte=1,lte=256"`
	Timeout   time.Duration `yaml:"timeout" validate:"gte=0"`
	Prefilter bool          `yaml:"prefilter"`
	Ledger    string        `yaml:"ledger"` // empty disables the run ledger
	Telemetry struct {
		Metrics  string `yaml:"metrics" validate:"oneof=none stdout prometheus"`
		Traces   string `yaml:"traces" validate:"oneof=none stdout"`
		Textfile string `yaml:"textfile"`
	} `yaml:"telemetry"`
}

// Default returns a configuration with every optional field filled in.
func Default() *Config {
	var cfg Config
	cfg.applyDefaults()
	return &cfg
}

// LoadConfig reads .env, the YAML file at path and ARGSTATES_* overrides.
// A missing file is not an error; the defaults and environment still apply.
func LoadConfig(path string) (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	file, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(file, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, err
	}

	cfg.applyEnv()
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("ARGSTATES_ROOT"); v != "" {
		c.Project.Root = v
	}
	if v := os.Getenv("ARGSTATES_PLUGIN"); v != "" {
		c.Plugin.Path = v
	}
	if v := os.Getenv("ARGSTATES_COMPILER"); v != "" {
		c.Compiler.Path = v
	}
	if v := os.Getenv("ARGSTATES_OUTPUT_DIR"); v != "" {
		c.OutputDir = v
	}
	if v := os.Getenv("ARGSTATES_MODE"); v != "" {
		c.Mode = v
	}
	if v := os.Getenv("ARGSTATES_CHANGESET"); v != "" {
		c.ChangeSet = v
	}
	if v := os.Getenv("ARGSTATES_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Workers = n
		}
	}
}

func (c *Config) applyDefaults() {
	if c.Project.Database == "" {
		c.Project.Database = "compile_commands.json"
	}
	if c.Compiler.Path == "" {
		c.Compiler.Path = "clang"
	}
	if c.Compiler.FallbackInclude == "" {
		c.Compiler.FallbackInclude = "/usr/include"
	}
	if c.Plugin.Name == "" {
		c.Plugin.Name = "ArgStates"
	}
	if c.Mode == "" {
		c.Mode = ModeSymbol
	}
	if c.Suffix == "" {
		c.Suffix = "_old"
	}
	if c.OutputDir == "" {
		c.OutputDir = ".states"
	}
	if c.Workers == 0 {
		c.Workers = 1
	}
	if c.Telemetry.Metrics == "" {
		c.Telemetry.Metrics = "none"
	}
	if c.Telemetry.Traces == "" {
		c.Telemetry.Traces = "none"
	}
}

// Validate checks the fields a run needs.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if c.Mode == ModeBatch && c.BatchNamesFile() == "" {
		return fmt.Errorf("%w: batch mode needs names_file or changeset", ErrInvalidConfig)
	}
	if c.Mode == ModeSymbol && c.ChangeSet == "" {
		return fmt.Errorf("%w: symbol mode needs a changeset", ErrInvalidConfig)
	}
	return nil
}

// DatabasePath resolves the build database against the project root.
func (c *Config) DatabasePath() string {
	return c.resolve(c.Project.Database)
}

// TargetDir resolves a target group key against the project root.
func (c *Config) TargetDir(target string) string {
	return filepath.Clean(c.resolve(target))
}

// BatchNamesFile is the names file handed to the plugin in batch mode.
func (c *Config) BatchNamesFile() string {
	if c.NamesFile != "" {
		return c.NamesFile
	}
	return c.ChangeSet
}

func (c *Config) resolve(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.Project.Root, p)
}
