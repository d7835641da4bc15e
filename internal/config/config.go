// Copyright (c) 2019 vizee. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package config carries the immutable startup configuration of the proxy:
// the listen and backend addresses, logging options, and the pipe capacity
// probed at process start. The value is constructed once in main and
// read-only for the remainder of the process.
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultListen is the listen address used when none is given.
	DefaultListen = ":8080"
	// DefaultBackend is the backend address used when none is given.
	DefaultBackend = "127.0.0.1:9090"
)

// Config is the process-wide configuration.
type Config struct {
	Listen  string        `yaml:"listen"`
	Backend string        `yaml:"backend"`
	Logging LoggingConfig `yaml:"logging"`

	// PipeSize is the kernel pipe capacity probed once at startup. It bounds
	// every connection's staging buffers.
	PipeSize int `yaml:"-"`
}

// LoggingConfig selects the log level and an optional log file.
type LoggingConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// Default returns a Config with the built-in addresses.
func Default() *Config {
	return &Config{
		Listen:  DefaultListen,
		Backend: DefaultBackend,
	}
}

// Load reads a YAML config file over the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects addresses the proxy cannot listen on or connect to.
// Violations are startup-time fatal.
func (c *Config) Validate() error {
	if err := checkAddr("listen", c.Listen); err != nil {
		return err
	}
	return checkAddr("backend", c.Backend)
}

func checkAddr(name, addr string) error {
	if addr == "" {
		return fmt.Errorf("config: missing %s address", name)
	}
	if !strings.Contains(addr, ":") {
		return fmt.Errorf("config: %s address %q has no port", name, addr)
	}
	return nil
}
