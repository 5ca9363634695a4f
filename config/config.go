// Package config loads and validates the ContractGate configuration file.
// Decoding is strict: unknown YAML keys are rejected so typos fail at boot
// instead of silently disabling features.
package config

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/c360/contractgate/errors"
	"github.com/c360/contractgate/gateway"
)

// Config is the complete application configuration
type Config struct {
	// Listen is the gateway bind address (default ":8080")
	Listen string `yaml:"listen,omitempty"`

	// LogLevel is one of debug, info, warn, error (default "info")
	LogLevel string `yaml:"log_level,omitempty"`

	// LogFormat is "json" or "text" (default "json")
	LogFormat string `yaml:"log_format,omitempty"`

	// SchemaDir holds service schema documents (*.yaml, *.yml, *.json)
	SchemaDir string `yaml:"schema_dir,omitempty"`

	// ContractsPath is a contract definition file or directory; used by
	// the contract test runner and the gateway's -validate mode
	ContractsPath string `yaml:"contracts,omitempty"`

	// Gateway holds routes, upstreams and forwarding policy
	Gateway gateway.Config `yaml:"gateway"`
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate applies defaults and checks coherence. Gateway validation
// runs here too, so a bad route never survives past load.
func (c *Config) Validate() error {
	if c.Listen == "" {
		c.Listen = ":8080"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if !validLogLevels[c.LogLevel] {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			fmt.Sprintf("log_level %q must be debug, info, warn or error", c.LogLevel))
	}
	if c.LogFormat == "" {
		c.LogFormat = "json"
	}
	if c.LogFormat != "json" && c.LogFormat != "text" {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			fmt.Sprintf("log_format %q must be json or text", c.LogFormat))
	}

	return c.Gateway.Validate()
}

// Load reads and validates a configuration document
func Load(r io.Reader) (*Config, error) {
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)

	var cfg Config
	if err := decoder.Decode(&cfg); err != nil {
		return nil, errors.WrapInvalid(err, "Config", "Load", "yaml decode")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadFile loads a configuration file from disk
func LoadFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.WrapFatal(err, "Config", "LoadFile", path)
	}
	defer f.Close()

	cfg, err := Load(f)
	if err != nil {
		return nil, errors.WrapFatal(err, "Config", "LoadFile", path)
	}
	return cfg, nil
}
