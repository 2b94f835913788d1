// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package config

import (
	"errors"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	sgerr "github.com/sigil-dev/securegraph/pkg/errors"
	"github.com/sigil-dev/securegraph/pkg/visibility"
)

// Config is the top-level securegraph configuration.
type Config struct {
	Storage    StorageConfig    `mapstructure:"storage"`
	Graph      GraphConfig      `mapstructure:"graph"`
	Search     SearchConfig     `mapstructure:"search"`
	Blob       BlobConfig       `mapstructure:"blob"`
	Networking NetworkingConfig `mapstructure:"networking"`
	Auth       AuthConfig       `mapstructure:"auth"`
}

// StorageConfig selects the kv backend and the graph table names.
type StorageConfig struct {
	Backend     string       `mapstructure:"backend"`
	Path        string       `mapstructure:"path"`
	TablePrefix string       `mapstructure:"table_prefix"`
	Badger      BadgerConfig `mapstructure:"badger"`
}

// BadgerConfig tunes the badger backend.
type BadgerConfig struct {
	SyncWrites     bool          `mapstructure:"sync_writes"`
	GCInterval     time.Duration `mapstructure:"gc_interval"`
	GCDiscardRatio float64       `mapstructure:"gc_discard_ratio"`
}

type GraphConfig struct {
	AutoFlush                 bool   `mapstructure:"auto_flush"`
	ServerSideRowFilter       bool   `mapstructure:"server_side_row_filter"`
	MaxStreamingTableDataSize int64  `mapstructure:"max_streaming_table_data_size"`
	MaxPendingWrites          int    `mapstructure:"max_pending_writes"`
	IDGenerator               string `mapstructure:"id_generator"`
}

// SearchConfig selects the search index. The default index keeps nothing
// and queries scan every element.
type SearchConfig struct {
	Backend string `mapstructure:"backend"`
	Path    string `mapstructure:"path"`
}

// BlobConfig sets where streamed values above the data table limit are
// stored. An empty dir keeps them in memory.
type BlobConfig struct {
	Dir string `mapstructure:"dir"`
}

// NetworkingConfig controls how the API server listens for connections.
type NetworkingConfig struct {
	Listen      string          `mapstructure:"listen"`
	CORSOrigins []string        `mapstructure:"cors_origins"`
	RateLimit   RateLimitConfig `mapstructure:"rate_limit"`
}

// RateLimitConfig limits API requests per principal, or per client IP for
// anonymous requests. A zero rate disables limiting.
type RateLimitConfig struct {
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

// AuthConfig maps bearer tokens to principals and their authorizations.
// With no tokens configured every request runs as anonymous.
type AuthConfig struct {
	Tokens                  []TokenConfig `mapstructure:"tokens"`
	AnonymousAuthorizations []string      `mapstructure:"anonymous_authorizations"`
}

type TokenConfig struct {
	Token          string   `mapstructure:"token"`
	Principal      string   `mapstructure:"principal"`
	Authorizations []string `mapstructure:"authorizations"`
}

var (
	validBackends       = []string{"memory", "badger", "sqlite"}
	validSearchBackends = []string{"default", "sqlite"}
	validIDGenerators   = []string{"uuid"}
)

// SetDefaults registers every default value on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("storage.backend", "memory")
	v.SetDefault("storage.path", "")
	v.SetDefault("storage.table_prefix", "securegraph")
	v.SetDefault("storage.badger.sync_writes", true)
	v.SetDefault("storage.badger.gc_interval", 5*time.Minute)
	v.SetDefault("storage.badger.gc_discard_ratio", 0.5)
	v.SetDefault("graph.auto_flush", true)
	v.SetDefault("graph.server_side_row_filter", true)
	v.SetDefault("graph.max_streaming_table_data_size", 10*1024*1024)
	v.SetDefault("graph.max_pending_writes", 1000)
	v.SetDefault("graph.id_generator", "uuid")
	v.SetDefault("search.backend", "default")
	v.SetDefault("search.path", "")
	v.SetDefault("blob.dir", "")
	v.SetDefault("networking.listen", "127.0.0.1:18790")
	v.SetDefault("networking.rate_limit.requests_per_second", 0)
	v.SetDefault("networking.rate_limit.burst", 0)
}

// SetupEnv enables SECUREGRAPH_ environment overrides, so that
// SECUREGRAPH_STORAGE_BACKEND sets storage.backend.
func SetupEnv(v *viper.Viper) {
	v.SetEnvPrefix("SECUREGRAPH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// Load reads configuration from the given path (or defaults) with
// environment variable overrides.
func Load(path string) (*Config, error) {
	v := viper.New()
	SetDefaults(v)
	SetupEnv(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, sgerr.Errorf(sgerr.CodeConfigLoadReadFailure, "reading config %s: %w", path, err)
		}
	}
	return FromViper(v)
}

// FromViper decodes and validates the configuration held by v.
func FromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, sgerr.Errorf(sgerr.CodeConfigParseInvalidFormat, "unmarshalling config: %w", err)
	}
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, sgerr.Errorf(sgerr.CodeConfigValidateInvalidValue, "validating config: %w", errors.Join(errs...))
	}
	return &cfg, nil
}

// Validate checks the configuration for logical errors.
// It returns a slice of all validation errors found, collecting all issues
// rather than stopping at the first one.
func (c *Config) Validate() []error {
	var errs []error

	errs = append(errs, c.validateStorage()...)
	errs = append(errs, c.validateGraph()...)
	errs = append(errs, c.validateSearch()...)
	errs = append(errs, c.validateNetworking()...)
	errs = append(errs, c.validateAuth()...)

	return errs
}

func invalid(format string, args ...any) error {
	return sgerr.Errorf(sgerr.CodeConfigValidateInvalidValue, "config: "+format, args...)
}

func oneOf(value string, valid []string) bool {
	for _, v := range valid {
		if v == value {
			return true
		}
	}
	return false
}

func (c *Config) validateStorage() []error {
	var errs []error

	if !oneOf(c.Storage.Backend, validBackends) {
		errs = append(errs, invalid("storage.backend must be one of %v, got %q", validBackends, c.Storage.Backend))
	}
	if c.Storage.TablePrefix == "" {
		errs = append(errs, invalid("storage.table_prefix must not be empty"))
	}
	if c.Storage.Backend == "badger" {
		if c.Storage.Badger.GCInterval < 0 {
			errs = append(errs, invalid("storage.badger.gc_interval must not be negative, got %s", c.Storage.Badger.GCInterval))
		}
		if r := c.Storage.Badger.GCDiscardRatio; r <= 0 || r >= 1 {
			errs = append(errs, invalid("storage.badger.gc_discard_ratio must be between 0 and 1, got %g", r))
		}
	}

	return errs
}

func (c *Config) validateGraph() []error {
	var errs []error

	if c.Graph.MaxStreamingTableDataSize <= 0 {
		errs = append(errs, invalid("graph.max_streaming_table_data_size must be greater than 0, got %d",
			c.Graph.MaxStreamingTableDataSize))
	}
	if c.Graph.MaxPendingWrites <= 0 {
		errs = append(errs, invalid("graph.max_pending_writes must be greater than 0, got %d", c.Graph.MaxPendingWrites))
	}
	if !oneOf(c.Graph.IDGenerator, validIDGenerators) {
		errs = append(errs, invalid("graph.id_generator must be one of %v, got %q", validIDGenerators, c.Graph.IDGenerator))
	}

	return errs
}

func (c *Config) validateSearch() []error {
	if !oneOf(c.Search.Backend, validSearchBackends) {
		return []error{invalid("search.backend must be one of %v, got %q", validSearchBackends, c.Search.Backend)}
	}
	return nil
}

func (c *Config) validateNetworking() []error {
	var errs []error

	if c.Networking.Listen == "" {
		errs = append(errs, invalid("networking.listen must not be empty"))
		return errs
	}
	_, portStr, err := net.SplitHostPort(c.Networking.Listen)
	if err != nil {
		errs = append(errs, invalid("networking.listen must be a valid host:port address, got %q: %w",
			c.Networking.Listen, err))
		return errs
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		errs = append(errs, invalid("networking.listen port must be a number, got %q", portStr))
	} else if port < 1 || port > 65535 {
		errs = append(errs, invalid("networking.listen port must be between 1 and 65535, got %d", port))
	}

	rl := c.Networking.RateLimit
	if rl.RequestsPerSecond < 0 {
		errs = append(errs, invalid("networking.rate_limit.requests_per_second must not be negative, got %g", rl.RequestsPerSecond))
	} else if rl.RequestsPerSecond > 0 && rl.Burst <= 0 {
		errs = append(errs, invalid("networking.rate_limit.burst must be positive when a rate is set, got %d", rl.Burst))
	}

	return errs
}

func (c *Config) validateAuth() []error {
	var errs []error

	seen := make(map[string]bool, len(c.Auth.Tokens))
	for i, t := range c.Auth.Tokens {
		if t.Token == "" {
			errs = append(errs, invalid("auth.tokens[%d].token must not be empty", i))
		} else if seen[t.Token] {
			errs = append(errs, invalid("auth.tokens[%d].token duplicates an earlier token", i))
		}
		seen[t.Token] = true
		if t.Principal == "" {
			errs = append(errs, invalid("auth.tokens[%d].principal must not be empty", i))
		}
		errs = append(errs, validateTokens("auth.tokens["+strconv.Itoa(i)+"].authorizations", t.Authorizations)...)
	}
	errs = append(errs, validateTokens("auth.anonymous_authorizations", c.Auth.AnonymousAuthorizations)...)

	return errs
}

// validateTokens rejects authorization tokens that could not appear in a
// visibility expression without quoting problems.
func validateTokens(field string, tokens []string) []error {
	var errs []error
	for i, tok := range tokens {
		if tok == "" {
			errs = append(errs, invalid("%s[%d] must not be empty", field, i))
			continue
		}
		if err := visibility.Validate(visibility.Visibility(visibility.Quote(tok))); err != nil {
			errs = append(errs, invalid("%s[%d] is not a valid authorization %q: %w", field, i, tok, err))
		}
	}
	return errs
}

// Anonymous returns the authorizations granted to anonymous
// requests.
func (a AuthConfig) Anonymous() visibility.Authorizations {
	return visibility.NewAuthorizations(a.AnonymousAuthorizations...)
}
