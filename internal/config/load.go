/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/kentakayama/uptane-trust/resources"
)

var (
	ErrInvalidConfig = errors.New("invalid configuration")
)

// Default returns the embedded default configuration.
func Default() (*Config, error) {
	cfg := &Config{}
	if err := decode(resources.DefaultConfig, cfg); err != nil {
		return nil, fmt.Errorf("default configuration: %w", err)
	}
	return cfg, nil
}

// Load reads the file at path over the embedded default. An empty path
// yields the default.
func Load(path string) (*Config, error) {
	cfg, err := Default()
	if err != nil {
		return nil, err
	}
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := decode(raw, cfg); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decode(raw []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// Validate rejects values no component can work with.
func (c *Config) Validate() error {
	if c.Verifier.MaxRootRotations < 0 {
		return fmt.Errorf("%w: verifier.max_root_rotations is negative", ErrInvalidConfig)
	}
	for name, r := range map[string]RemoteConfig{"director": c.Director, "image": c.Image} {
		if r.MaxRetries < 0 {
			return fmt.Errorf("%w: %s.max_retries is negative", ErrInvalidConfig, name)
		}
		if r.MaxRedirects < 0 {
			return fmt.Errorf("%w: %s.max_redirects is negative", ErrInvalidConfig, name)
		}
	}
	for i, f := range c.Server.Faults {
		if f.Path == "" {
			return fmt.Errorf("%w: server.faults[%d] has no path", ErrInvalidConfig, i)
		}
	}
	return nil
}

// NewLogger builds the process logger.
func (c LogConfig) NewLogger() (*logrus.Logger, error) {
	logger := logrus.New()
	if c.Level != "" {
		level, err := logrus.ParseLevel(c.Level)
		if err != nil {
			return nil, fmt.Errorf("%w: log.level: %v", ErrInvalidConfig, err)
		}
		logger.SetLevel(level)
	}
	switch strings.ToLower(c.Format) {
	case "", "text":
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{})
	default:
		return nil, fmt.Errorf("%w: unknown log.format %q", ErrInvalidConfig, c.Format)
	}
	return logger, nil
}
