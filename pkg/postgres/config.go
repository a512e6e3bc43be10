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
package postgres

import (
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/multierr"
)

// Default connection settings, used only when a value is unset.
const (
	DefaultHost     = "localhost"
	DefaultPort     = 5432
	DefaultUser     = "user"
	DefaultPassword = "password"
	DefaultDatabase = "database"
	DefaultSSLMode  = "prefer"
	DefaultExecMode = "exec"
)

// Pool and timeout defaults.
const (
	DefaultMaxConns          int32 = 10
	DefaultMaxConnIdleTime         = 5 * time.Minute
	DefaultMaxConnLifetime         = 1 * time.Hour
	DefaultHealthCheckPeriod       = 30 * time.Second

	DefaultConnectTimeout = 10 * time.Second
	DefaultAcquireTimeout = 5 * time.Second
	DefaultQueryTimeout   = 30 * time.Second
)

var validSSLModes = map[string]bool{
	"disable":     true,
	"allow":       true,
	"prefer":      true,
	"require":     true,
	"verify-ca":   true,
	"verify-full": true,
}

var execModes = map[string]pgx.QueryExecMode{
	"cache_statement": pgx.QueryExecModeCacheStatement,
	"cache_describe":  pgx.QueryExecModeCacheDescribe,
	"describe_exec":   pgx.QueryExecModeDescribeExec,
	"exec":            pgx.QueryExecModeExec,
	"simple_protocol": pgx.QueryExecModeSimpleProtocol,
}

// ConnectionConfig identifies exactly one target database and describes how
// connections to it are pooled. It is built once at startup and passed by
// value; nothing in this package mutates a caller's copy.
type ConnectionConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`

	// SSLMode is a libpq sslmode value (disable, allow, prefer, require,
	// verify-ca, verify-full).
	SSLMode string `mapstructure:"sslmode"`

	// Schema, when set, becomes the search_path of every pooled connection.
	Schema string `mapstructure:"schema"`

	ApplicationName string `mapstructure:"application_name"`

	// ExecMode selects the pgx query execution mode. "exec" sends statements
	// through the extended protocol without preparing them and types
	// parameters from their Go values.
	ExecMode string `mapstructure:"exec_mode"`

	// ProbeOnReuse makes Connect ping an existing pool before handing it out
	// and rebuild it when the ping fails. When false the pool's own periodic
	// health check is trusted.
	ProbeOnReuse bool `mapstructure:"probe_on_reuse"`

	Pool     PoolConfig    `mapstructure:"pool"`
	Timeouts TimeoutConfig `mapstructure:"timeouts"`
}

// PoolConfig bounds the pool. Zero values fall back to the package defaults.
type PoolConfig struct {
	MaxConns          int32         `mapstructure:"max_conns"`
	MinConns          int32         `mapstructure:"min_conns"`
	MaxConnIdleTime   time.Duration `mapstructure:"max_conn_idle_time"`
	MaxConnLifetime   time.Duration `mapstructure:"max_conn_lifetime"`
	HealthCheckPeriod time.Duration `mapstructure:"health_check_period"`
}

// TimeoutConfig bounds every blocking step. Zero values fall back to the
// package defaults.
type TimeoutConfig struct {
	Connect time.Duration `mapstructure:"connect"`
	Acquire time.Duration `mapstructure:"acquire"`
	Query   time.Duration `mapstructure:"query"`
}

// DefaultConnectionConfig returns the configuration used when nothing is set.
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		Host:     DefaultHost,
		Port:     DefaultPort,
		User:     DefaultUser,
		Password: DefaultPassword,
		Database: DefaultDatabase,
		SSLMode:  DefaultSSLMode,
		ExecMode: DefaultExecMode,
		Pool: PoolConfig{
			MaxConns:          DefaultMaxConns,
			MaxConnIdleTime:   DefaultMaxConnIdleTime,
			MaxConnLifetime:   DefaultMaxConnLifetime,
			HealthCheckPeriod: DefaultHealthCheckPeriod,
		},
		Timeouts: TimeoutConfig{
			Connect: DefaultConnectTimeout,
			Acquire: DefaultAcquireTimeout,
			Query:   DefaultQueryTimeout,
		},
	}
}

// Validate reports every invalid field at once. The returned error is a
// configuration error.
func (c ConnectionConfig) Validate() error {
	var errs error
	if strings.TrimSpace(c.Host) == "" {
		errs = multierr.Append(errs, fmt.Errorf("host is required"))
	}
	if c.Port < 1 || c.Port > 65535 {
		errs = multierr.Append(errs, fmt.Errorf("port %d out of range 1-65535", c.Port))
	}
	if c.User == "" {
		errs = multierr.Append(errs, fmt.Errorf("user is required"))
	}
	if c.Database == "" {
		errs = multierr.Append(errs, fmt.Errorf("database is required"))
	}
	if c.SSLMode != "" && !validSSLModes[c.SSLMode] {
		errs = multierr.Append(errs, fmt.Errorf("unknown sslmode %q", c.SSLMode))
	}
	if c.ExecMode != "" {
		if _, ok := execModes[c.ExecMode]; !ok {
			errs = multierr.Append(errs, fmt.Errorf("unknown exec_mode %q", c.ExecMode))
		}
	}
	if c.Pool.MaxConns < 0 || c.Pool.MinConns < 0 {
		errs = multierr.Append(errs, fmt.Errorf("pool sizes must not be negative"))
	}
	if c.Pool.MaxConns > 0 && c.Pool.MinConns > c.Pool.MaxConns {
		errs = multierr.Append(errs, fmt.Errorf("pool min_conns %d exceeds max_conns %d", c.Pool.MinConns, c.Pool.MaxConns))
	}
	if c.Timeouts.Connect < 0 || c.Timeouts.Acquire < 0 || c.Timeouts.Query < 0 {
		errs = multierr.Append(errs, fmt.Errorf("timeouts must not be negative"))
	}
	if errs != nil {
		return newError(KindConfiguration, "validate config", errs)
	}
	return nil
}

// Address returns host:port of the target.
func (c ConnectionConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// connectTimeout, acquireTimeout and queryTimeout resolve zero values to the defaults.
func (c ConnectionConfig) connectTimeout() time.Duration {
	if c.Timeouts.Connect > 0 {
		return c.Timeouts.Connect
	}
	return DefaultConnectTimeout
}

func (c ConnectionConfig) acquireTimeout() time.Duration {
	if c.Timeouts.Acquire > 0 {
		return c.Timeouts.Acquire
	}
	return DefaultAcquireTimeout
}

func (c ConnectionConfig) queryTimeout() time.Duration {
	if c.Timeouts.Query > 0 {
		return c.Timeouts.Query
	}
	return DefaultQueryTimeout
}

func (c ConnectionConfig) execMode() pgx.QueryExecMode {
	if mode, ok := execModes[c.ExecMode]; ok {
		return mode
	}
	return pgx.QueryExecModeExec
}

// buildDSN constructs a libpq keyword/value connection string. Values are
// always single-quoted so spaces, '@' and '=' in credentials are safe. See:
// https://www.postgresql.org/docs/current/libpq-connect.html#LIBPQ-CONNSTRING
func buildDSN(c ConnectionConfig) string {
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = DefaultSSLMode
	}

	dsn := fmt.Sprintf("host=%s port=%d dbname=%s user=%s sslmode=%s",
		dsnQuoteValue(c.Host), c.Port, dsnQuoteValue(c.Database),
		dsnQuoteValue(c.User), dsnQuoteValue(sslMode))

	if c.Password != "" {
		dsn += fmt.Sprintf(" password=%s", dsnQuoteValue(c.Password))
	}
	if c.ApplicationName != "" {
		dsn += fmt.Sprintf(" application_name=%s", dsnQuoteValue(c.ApplicationName))
	}
	return dsn
}

// dsnQuoteValue quotes a value for a libpq keyword/value connection string.
// Backslashes and single quotes inside the value are backslash-escaped.
func dsnQuoteValue(val string) string {
	escaped := strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(val)
	return "'" + escaped + "'"
}
