// Package config loads json-guard settings from a YAML or JSONC file.
//
// The file is named by the --config flag or, failing that, the
// JSON_GUARD_CONFIG environment variable. Values missing from the file keep
// their defaults; unknown keys are an error.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/lattice-substrate/json-guard/codec"
	"github.com/lattice-substrate/json-guard/jsonenc"
	"github.com/lattice-substrate/json-guard/jsontoken"
)

// EnvVar names the environment variable holding the config file path.
const EnvVar = "JSON_GUARD_CONFIG"

// Config holds codec limits and encode options.
type Config struct {
	// Backend is "pure" or "accelerated".
	Backend string `yaml:"backend"`

	// MaxDepth bounds nesting for both directions.
	// Default: 1000
	MaxDepth int `yaml:"max_depth"`

	// MaxInputSize bounds decode input in bytes.
	// Default: 64 MiB
	MaxInputSize int `yaml:"max_input_size"`

	// UseNumber keeps numbers as their literal text when decoding.
	UseNumber bool `yaml:"use_number"`

	// CheckCircular enables cycle detection when encoding.
	// Default: true
	CheckCircular bool `yaml:"check_circular"`

	// SkipKeys drops map entries with unsupported key types.
	SkipKeys bool `yaml:"skip_keys"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Backend:       codec.Pure.String(),
		MaxDepth:      jsontoken.DefaultMaxDepth,
		MaxInputSize:  jsontoken.DefaultMaxInputSize,
		CheckCircular: true,
	}
}

// Load reads the file named by JSON_GUARD_CONFIG, or returns Default when
// the variable is unset.
func Load() (*Config, error) {
	path := os.Getenv(EnvVar)
	if path == "" {
		return Default(), nil
	}
	return LoadFile(path)
}

// LoadFile reads a configuration file over the defaults. Files ending in
// .json or .jsonc may carry comments and trailing commas; anything else is
// read as YAML.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".jsonc":
		data = jsonc.ToJSON(data)
		// JSON is valid YAML; the guarded decoder runs first so malformed
		// or hostile files fail with a classified error and offset.
		if _, err := codec.Decode(data); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
	}

	cfg := Default()
	if err := cfg.decode(data); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) decode(data []byte) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil {
		return fmt.Errorf("parsing config: %w", err)
	}
	return nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if _, err := codec.ParseBackend(c.Backend); err != nil {
		errs = append(errs, fmt.Errorf("backend: %w", err))
	}
	if c.MaxDepth < 1 {
		errs = append(errs, fmt.Errorf("max_depth must be positive, got %d", c.MaxDepth))
	}
	if c.MaxInputSize < 1 {
		errs = append(errs, fmt.Errorf("max_input_size must be positive, got %d", c.MaxInputSize))
	}

	return errors.Join(errs...)
}

// Codec builds the codec the configuration describes. Call Validate first;
// an unknown backend falls back to Pure.
func (c *Config) Codec() *codec.Codec {
	backend, _ := codec.ParseBackend(c.Backend)
	return &codec.Codec{
		Backend:      backend,
		MaxDepth:     c.MaxDepth,
		MaxInputSize: c.MaxInputSize,
		UseNumber:    c.UseNumber,
	}
}

// EncodeOptions builds the encode options the configuration describes.
func (c *Config) EncodeOptions() *jsonenc.Options {
	return &jsonenc.Options{
		CheckCircular: c.CheckCircular,
		SkipKeys:      c.SkipKeys,
		MaxDepth:      c.MaxDepth,
	}
}
