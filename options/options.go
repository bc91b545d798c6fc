// SPDX-FileCopyrightText: Copyright 2025 Carabiner Systems, Inc
// SPDX-License-Identifier: Apache-2.0

package options

import (
	"fmt"
	"math"
	"time"
)

// EnvPrefix is the prefix of the environment variables holding settings.
const EnvPrefix = "TMPVAULT_"

// MaxTTLSeconds is the longest lifetime a secret can be given.
const MaxTTLSeconds = math.MaxInt32

// Common options for client and server options
type Common struct {
	SocketPath    string        `json:"socket_path" koanf:"socket"`
	DefaultTTL    time.Duration `json:"default_ttl" koanf:"ttl"`
	Debug         bool          `json:"debug" koanf:"debug"`
	EnvVarSocket  string        `json:"envar_socket" koanf:"-"`
	EnvVarDebug   string        `json:"envar_debug" koanf:"-"`
	MaxSecretSize int64         `json:"max_secret_size" koanf:"maxsize"` // Maximum size of a single secret in bytes
}

// Storage selects and configures the volatile area driver.
type Storage struct {
	Backend      string `json:"backend" koanf:"backend"` // auto, memory, dir, keyring, badger
	Dir          string `json:"dir" koanf:"dir"`         // Root directory for the dir backend
	RequireTmpfs bool   `json:"require_tmpfs" koanf:"tmpfs"`
}

// Log configures the server logger.
type Log struct {
	Level  string `json:"level" koanf:"level"`
	Format string `json:"format" koanf:"format"`
}

// Telemetry configures OpenTelemetry tracing.
type Telemetry struct {
	Enabled      bool    `json:"enabled" koanf:"enabled"`
	Endpoint     string  `json:"endpoint" koanf:"endpoint"`
	ServiceName  string  `json:"service_name" koanf:"service"`
	SamplingRate float64 `json:"sampling_rate" koanf:"sampling"`
}

// Server options set
type Server struct {
	Common `koanf:",squash"`

	Storage           Storage       `json:"storage" koanf:"storage"`
	Cipher            string        `json:"cipher" koanf:"cipher"`
	HTTPAddress       string        `json:"http_address" koanf:"http"`    // Empty disables the HTTP gateway
	HTTPRateLimit     float64       `json:"http_rate_limit" koanf:"rate"` // Requests per second, 0 disables limiting
	InactivityTimeout time.Duration `json:"inactivity_timeout" koanf:"inactivity"`
	MaxSecrets        int           `json:"max_secrets" koanf:"maxsecrets"` // Maximum number of live secrets
	Log               Log           `json:"log" koanf:"log"`
	Telemetry         Telemetry     `json:"telemetry" koanf:"otel"`
}

// Client options set
type Client struct {
	Common `koanf:",squash"`

	// NoServer makes the client run the store in-process instead of
	// talking to a daemon.
	NoServer bool `json:"no_server" koanf:"local"`

	// ServerBinary is the executable started when no daemon is listening.
	// Empty means re-executing the current binary with the "server" argument.
	ServerBinary string `json:"server_binary" koanf:"binary"`
}

// defaultCommon default common options shared by default server and client sets
var defaultCommon = Common{
	SocketPath:    "", // Empty = auto-generate based on client binary hash
	DefaultTTL:    5 * time.Minute,
	Debug:         false,
	EnvVarSocket:  "TMPVAULT_SOCKET_PATH",
	EnvVarDebug:   "TMPVAULT_DEBUG",
	MaxSecretSize: 1024 * 1024, // 1 MB per secret
}

// DefaultClient default client options
var DefaultClient = &Client{
	Common: defaultCommon,
}

// DefaultServer default server options
var DefaultServer = &Server{
	Common: defaultCommon,
	Storage: Storage{
		Backend: "auto",
		Dir:     "/app/secrets",
	},
	Cipher:            "aes-256-gcm",
	HTTPAddress:       "",
	HTTPRateLimit:     50,
	InactivityTimeout: 0, // Inactivity time to shutdown the server when no more requests are received
	MaxSecrets:        100,
	Log: Log{
		Level:  "info",
		Format: "json",
	},
	Telemetry: Telemetry{
		Enabled:      false,
		ServiceName:  "tmpvault",
		SamplingRate: 1.0,
	},
}

// NewServer returns a copy of the default server options.
func NewServer() *Server {
	s := *DefaultServer
	return &s
}

// NewClient returns a copy of the default client options.
func NewClient() *Client {
	c := *DefaultClient
	return &c
}

// Store options passed when storing a secret
type Store struct {
	TtlSeconds int64 //nolint:revive,staticcheck
}

// StoreOptsFn is a function that modifies the store options
type StoreOptsFn func(*Store) error

// WithTTL sets the time to live of the secret. It must be a positive number
// of seconds no larger than MaxTTLSeconds.
func WithTTL(seconds int64) StoreOptsFn {
	return func(s *Store) error {
		if seconds <= 0 {
			return fmt.Errorf("ttl must be a positive number of seconds, got %d", seconds)
		}
		if seconds > MaxTTLSeconds {
			return fmt.Errorf("ttl must be at most %d seconds, got %d", MaxTTLSeconds, seconds)
		}
		s.TtlSeconds = seconds
		return nil
	}
}
