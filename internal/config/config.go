/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package config

import (
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Config is the whole configuration file.
type Config struct {
	Log      LogConfig      `yaml:"log"`
	Verifier VerifierConfig `yaml:"verifier"`
	Director RemoteConfig   `yaml:"director"`
	Image    RemoteConfig   `yaml:"image"`
	Server   ServerConfig   `yaml:"server"`
	Store    StoreConfig    `yaml:"store"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// VerifierConfig captures the tunables of a verification session.
type VerifierConfig struct {
	Encoding          string       `yaml:"encoding"`
	SignatureEncoding string       `yaml:"signature_encoding"`
	MaxRootRotations  int          `yaml:"max_root_rotations"`
	Limits            LimitsConfig `yaml:"limits"`

	Logger     logrus.FieldLogger    `yaml:"-"`
	Clock      clockwork.Clock       `yaml:"-"`
	Registerer prometheus.Registerer `yaml:"-"`
}

// LimitsConfig caps the size in bytes of each fetched metadata file.
type LimitsConfig struct {
	Root            int64 `yaml:"root"`
	Timestamp       int64 `yaml:"timestamp"`
	Snapshot        int64 `yaml:"snapshot"`
	DirectorTargets int64 `yaml:"director_targets"`
	ImageTargets    int64 `yaml:"image_targets"`
}

// RemoteConfig describes how one repository is reached over HTTP.
type RemoteConfig struct {
	BaseURL         string   `yaml:"base_url"`
	Timeout         Duration `yaml:"timeout"`
	MaxRetries      int      `yaml:"max_retries"`
	InitialInterval Duration `yaml:"initial_interval"`
	MaxRedirects    int      `yaml:"max_redirects"`
	InsecureTLS     bool     `yaml:"insecure_tls"`

	Logger logrus.FieldLogger `yaml:"-"`
}

// ServerConfig captures the tunables of the repository server.
type ServerConfig struct {
	Addr              string        `yaml:"addr"`
	ReadHeaderTimeout Duration      `yaml:"read_header_timeout"`
	Faults            []FaultConfig `yaml:"faults"`

	Logger logrus.FieldLogger `yaml:"-"`
}

// FaultConfig attaches a fault injection policy to one served file.
type FaultConfig struct {
	// Path is relative to the server root, e.g. "director/timestamp.json".
	Path     string   `yaml:"path"`
	Kind     string   `yaml:"kind"`
	Failures int      `yaml:"failures"`
	Hops     int      `yaml:"hops"`
	Delay    Duration `yaml:"delay"`
}

type StoreConfig struct {
	Path string `yaml:"path"`
}

// Duration is a time.Duration written as "30s" in YAML.
type Duration time.Duration

func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	if s == "" {
		*d = 0
		return nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*d = Duration(v)
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}
