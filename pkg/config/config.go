// Package config loads and validates spray's YAML configuration file.
package config

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/subsquid/spray/pkg/geyser"
	"github.com/subsquid/spray/pkg/rpcserver"
)

// SourceConfig is one upstream entry under sources: in the config file.
type SourceConfig struct {
	URL          string `yaml:"url"`
	XToken       string `yaml:"x_token,omitempty"`
	XAccessToken string `yaml:"x_access_token,omitempty"`
}

// Config is the top-level configuration file shape.
type Config struct {
	Sources map[string]SourceConfig `yaml:"sources"`
	Port    int                     `yaml:"port,omitempty"`
}

// Load reads and strictly decodes the YAML file at path, rejecting unknown
// fields, and validates it.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate enforces the at-least-one-source rule.
func (c *Config) Validate() error {
	if len(c.Sources) == 0 {
		return fmt.Errorf("config: at least one source is required")
	}
	for name, src := range c.Sources {
		if src.URL == "" {
			return fmt.Errorf("config: source %q missing url", name)
		}
	}
	return nil
}

// ListenAddr returns the configured listen address, defaulting to
// rpcserver.DefaultPort when Port is unset.
func (c *Config) ListenAddr() string {
	port := c.Port
	if port == 0 {
		port = rpcserver.DefaultPort
	}
	return fmt.Sprintf(":%d", port)
}

// GeyserConfigs converts the configured sources into geyser.Config values,
// keyed by their map key as the symbolic source name.
func (c *Config) GeyserConfigs() []geyser.Config {
	out := make([]geyser.Config, 0, len(c.Sources))
	for name, src := range c.Sources {
		out = append(out, geyser.Config{
			Name:         name,
			URL:          src.URL,
			XToken:       src.XToken,
			XAccessToken: src.XAccessToken,
		})
	}
	return out
}
