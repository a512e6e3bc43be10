// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config loads pgmcp configuration.
//
// Sources, highest precedence first: command-line flags bound to the viper
// instance, environment variables, the config file, and defaults. A .env
// file is read into the environment first without overriding variables that
// are already set.
//
// Connection parameters use the conventional POSTGRES_HOST, POSTGRES_PORT,
// POSTGRES_USER, POSTGRES_PASSWORD and POSTGRES_DB variables. Every other
// key is read from PGMCP_<KEY>, with dots replaced by underscores
// (PGMCP_LOG_LEVEL, PGMCP_POSTGRES_TIMEOUTS_QUERY).
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
	"go.uber.org/multierr"

	"github.com/teradata-labs/pgmcp/internal/log"
	"github.com/teradata-labs/pgmcp/pkg/postgres"
)

const (
	// EnvPrefix prefixes every environment variable except the POSTGRES_* ones.
	EnvPrefix = "PGMCP"
	// DefaultConfigFileName is searched for (as yaml) when no file is given.
	DefaultConfigFileName = "pgmcp"
	// DefaultEnvFile is loaded when present.
	DefaultEnvFile = ".env"
	// DefaultServerName is reported to MCP clients.
	DefaultServerName = "PostgreSQL MCP Server"
)

// connectionEnv maps config keys to their unprefixed environment variables.
var connectionEnv = map[string]string{
	"postgres.host":     "POSTGRES_HOST",
	"postgres.port":     "POSTGRES_PORT",
	"postgres.user":     "POSTGRES_USER",
	"postgres.password": "POSTGRES_PASSWORD",
	"postgres.database": "POSTGRES_DB",
	"postgres.sslmode":  "POSTGRES_SSLMODE",
	"postgres.schema":   "POSTGRES_SCHEMA",
}

// Config is the complete pgmcp configuration.
type Config struct {
	Postgres postgres.ConnectionConfig `mapstructure:"postgres"`
	Log      log.Options               `mapstructure:"log"`
	Metrics  MetricsConfig             `mapstructure:"metrics"`
	Server   ServerConfig              `mapstructure:"server"`

	// MaxRows caps rows returned per statement; 0 means unlimited.
	MaxRows int `mapstructure:"max_rows"`
	// ConnectRetries is how many times serve retries the eager connect.
	ConnectRetries int `mapstructure:"connect_retries"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	// Addr is the listen address; empty disables the endpoint.
	Addr string `mapstructure:"addr"`
	Path string `mapstructure:"path"`
}

// ServerConfig describes the MCP server identity.
type ServerConfig struct {
	Name string `mapstructure:"name"`
}

// Options selects the files Load reads.
type Options struct {
	// ConfigFile is an explicit config file. When empty, pgmcp.yaml is
	// searched for in the current directory and /etc/pgmcp/.
	ConfigFile string
	// EnvFile is an explicit .env file, which must exist. When empty,
	// ./.env is loaded if present.
	EnvFile string
}

// Load reads configuration into v and returns the validated result. v may
// already have flags bound to it.
func Load(v *viper.Viper, opts Options) (*Config, error) {
	if err := loadEnvFile(opts.EnvFile); err != nil {
		return nil, err
	}

	SetDefaults(v)

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/pgmcp/")
		v.SetConfigName(DefaultConfigFileName)
		v.SetConfigType("yaml")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file %s: %w", v.ConfigFileUsed(), err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, env := range connectionEnv {
		if err := v.BindEnv(key, env, EnvPrefix+"_"+strings.ToUpper(strings.ReplaceAll(key, ".", "_"))); err != nil {
			return nil, fmt.Errorf("bind %s: %w", env, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func loadEnvFile(path string) error {
	explicit := path != ""
	if !explicit {
		path = DefaultEnvFile
	}
	err := gotenv.Load(path)
	if err == nil {
		return nil
	}
	if !explicit && errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("load env file %s: %w", path, err)
}

// SetDefaults registers the default value of every key. Durations are set
// as strings so that AllSettings renders them readably.
func SetDefaults(v *viper.Viper) {
	pg := postgres.DefaultConnectionConfig()
	v.SetDefault("postgres.host", pg.Host)
	v.SetDefault("postgres.port", pg.Port)
	v.SetDefault("postgres.user", pg.User)
	v.SetDefault("postgres.password", pg.Password)
	v.SetDefault("postgres.database", pg.Database)
	v.SetDefault("postgres.sslmode", pg.SSLMode)
	v.SetDefault("postgres.schema", "")
	v.SetDefault("postgres.application_name", "pgmcp")
	v.SetDefault("postgres.exec_mode", pg.ExecMode)
	v.SetDefault("postgres.probe_on_reuse", pg.ProbeOnReuse)

	v.SetDefault("postgres.pool.max_conns", pg.Pool.MaxConns)
	v.SetDefault("postgres.pool.min_conns", 0)
	v.SetDefault("postgres.pool.max_conn_idle_time", pg.Pool.MaxConnIdleTime.String())
	v.SetDefault("postgres.pool.max_conn_lifetime", pg.Pool.MaxConnLifetime.String())
	v.SetDefault("postgres.pool.health_check_period", pg.Pool.HealthCheckPeriod.String())

	v.SetDefault("postgres.timeouts.connect", pg.Timeouts.Connect.String())
	v.SetDefault("postgres.timeouts.acquire", pg.Timeouts.Acquire.String())
	v.SetDefault("postgres.timeouts.query", pg.Timeouts.Query.String())

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", log.DefaultMaxSizeMB)
	v.SetDefault("log.max_backups", log.DefaultMaxBackups)
	v.SetDefault("log.max_age_days", log.DefaultMaxAgeDays)
	v.SetDefault("log.compress", false)

	v.SetDefault("metrics.addr", "")
	v.SetDefault("metrics.path", "/metrics")

	v.SetDefault("server.name", DefaultServerName)

	v.SetDefault("max_rows", 0)
	v.SetDefault("connect_retries", 0)
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs error
	if err := c.Postgres.Validate(); err != nil {
		errs = multierr.Append(errs, err)
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "json", "console":
	default:
		errs = multierr.Append(errs, fmt.Errorf("log.format %q must be json or console", c.Log.Format))
	}
	if c.MaxRows < 0 {
		errs = multierr.Append(errs, fmt.Errorf("max_rows must not be negative"))
	}
	if c.ConnectRetries < 0 {
		errs = multierr.Append(errs, fmt.Errorf("connect_retries must not be negative"))
	}
	if c.Metrics.Addr != "" && !strings.HasPrefix(c.Metrics.Path, "/") {
		errs = multierr.Append(errs, fmt.Errorf("metrics.path %q must start with /", c.Metrics.Path))
	}
	return errs
}

// Redacted returns v's settings with secrets masked, for display.
func Redacted(v *viper.Viper) map[string]any {
	settings := v.AllSettings()
	if pg, ok := settings["postgres"].(map[string]any); ok {
		if pw, ok := pg["password"]; ok && fmt.Sprint(pw) != "" {
			pg["password"] = "********"
		}
	}
	return settings
}
