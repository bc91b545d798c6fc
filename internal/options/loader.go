// SPDX-FileCopyrightText: Copyright 2025 Carabiner Systems, Inc
// SPDX-License-Identifier: Apache-2.0

// Package options loads the public option sets from a YAML file and the
// environment. Values override the defaults in this order: file, then
// environment. Command line flags are applied by the caller afterwards.
package options

import (
	"fmt"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/carabiner-dev/tmpvault/options"
)

// EnvPrefix is the prefix of the environment variables read by the loader.
// TMPVAULT_STORAGE_BACKEND sets storage.backend.
const EnvPrefix = options.EnvPrefix

// envAliases maps variables whose names do not follow the section layout.
var envAliases = map[string]string{
	options.DefaultServer.EnvVarSocket: "socket",
	options.DefaultServer.EnvVarDebug:  "debug",
}

// Loader reads configuration into an option set.
type Loader struct {
	k        *koanf.Koanf
	prefix   string
	filePath string
}

// Option configures the Loader.
type Option func(*Loader)

// WithConfigFile reads the YAML file at path before the environment.
func WithConfigFile(path string) Option {
	return func(l *Loader) {
		l.filePath = path
	}
}

// WithEnvPrefix changes the environment variable prefix.
func WithEnvPrefix(prefix string) Option {
	return func(l *Loader) {
		l.prefix = prefix
	}
}

// NewLoader creates a loader.
func NewLoader(opts ...Option) *Loader {
	l := &Loader{
		k:      koanf.New("."),
		prefix: EnvPrefix,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load reads the configured sources and unmarshals them over target. Keys
// missing from every source keep the value already in target.
func (l *Loader) Load(target any) error {
	if l.filePath != "" {
		if err := l.k.Load(file.Provider(l.filePath), yaml.Parser()); err != nil {
			return fmt.Errorf("loading config file %s: %w", l.filePath, err)
		}
	}

	if err := l.k.Load(env.Provider(l.prefix, ".", l.envKey), nil); err != nil {
		return fmt.Errorf("loading environment: %w", err)
	}

	if err := l.k.Unmarshal("", target); err != nil {
		return fmt.Errorf("decoding configuration: %w", err)
	}
	return nil
}

// envKey turns TMPVAULT_LOG_LEVEL into log.level.
func (l *Loader) envKey(name string) string {
	if key, ok := envAliases[name]; ok {
		return key
	}
	return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(name, l.prefix)), "_", ".")
}

// LoadServer returns the default server options overridden by the file at
// path, if any, and the environment.
func LoadServer(path string) (*options.Server, error) {
	opts := options.NewServer()
	if err := NewLoader(WithConfigFile(path)).Load(opts); err != nil {
		return nil, err
	}
	return opts, nil
}

// LoadClient returns the default client options overridden by the
// environment.
func LoadClient(path string) (*options.Client, error) {
	opts := options.NewClient()
	if err := NewLoader(WithConfigFile(path)).Load(opts); err != nil {
		return nil, err
	}
	return opts, nil
}
