// Package config loads the .anacache.yaml project configuration.
package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"slices"

	"github.com/rs/zerolog"
	"go.trai.ch/zerr"
	"gopkg.in/yaml.v3"
)

// Filename is the configuration file looked up in a project root.
const Filename = ".anacache.yaml"

var (
	// ErrInvalidConfig is wrapped by every Validate failure.
	ErrInvalidConfig = zerr.New("invalid config")
	// ErrUnknownLanguage is reported for a language with no grammar.
	ErrUnknownLanguage = zerr.New("unknown language")
)

// Config is the decoded .anacache.yaml.
type Config struct {
	// Languages restricts analysis to these languages. Empty means all.
	Languages []string `yaml:"languages"`
	// Workers bounds concurrent phase computations. Zero means GOMAXPROCS.
	Workers int `yaml:"workers"`
	// HintsDir holds <language>.risor hint scripts, relative to the config.
	HintsDir string `yaml:"hints_dir"`
	// FlushAfterResolve drops parsed and resolved trees once diagnostics
	// are cached.
	FlushAfterResolve bool   `yaml:"flush_after_resolve"`
	LogLevel          string `yaml:"log_level"`
	// Report is the default SQLite report path for analyze.
	Report string `yaml:"report"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		Workers:  runtime.GOMAXPROCS(0),
		HintsDir: "hints",
		LogLevel: "info",
	}
}

// Load reads path over Default. A missing file yields the defaults.
// A relative hints_dir is resolved against the file's directory.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path) //nolint:gosec // path is provided by user
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, zerr.With(zerr.Wrap(err, "failed to read config file"), "path", path)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, zerr.With(zerr.Wrap(err, "failed to parse config file"), "path", path)
	}
	if cfg.HintsDir != "" && !filepath.IsAbs(cfg.HintsDir) {
		cfg.HintsDir = filepath.Join(filepath.Dir(path), cfg.HintsDir)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks field ranges. known lists the supported languages; a nil
// known skips the language check.
func (c *Config) Validate(known ...string) error {
	if c.Workers < 0 {
		return zerr.With(zerr.Wrap(ErrInvalidConfig, "workers must not be negative"), "workers", c.Workers)
	}
	if _, err := c.Level(); err != nil {
		return zerr.With(zerr.Wrap(ErrInvalidConfig, "bad log_level"), "log_level", c.LogLevel)
	}
	if len(known) == 0 {
		return nil
	}
	for _, lang := range c.Languages {
		if !slices.Contains(known, lang) {
			return zerr.With(zerr.Wrap(ErrUnknownLanguage, "language has no grammar"), "language", lang)
		}
	}
	return nil
}

// Level parses LogLevel. Empty means info.
func (c *Config) Level() (zerolog.Level, error) {
	if c.LogLevel == "" {
		return zerolog.InfoLevel, nil
	}
	return zerolog.ParseLevel(c.LogLevel)
}
