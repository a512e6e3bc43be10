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
package main

import (
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/teradata-labs/pgmcp/internal/config"
	"github.com/teradata-labs/pgmcp/internal/log"
	"github.com/teradata-labs/pgmcp/internal/version"
	"github.com/teradata-labs/pgmcp/pkg/postgres"
)

// app carries the state shared by every subcommand.
type app struct {
	v       *viper.Viper
	cfgFile string
	envFile string
	cfg     *config.Config

	// dial overrides the pool factory; nil uses pgxpool.
	dial postgres.Dialer

	// stdin and stdout carry the MCP stream in serve.
	stdin  io.Reader
	stdout io.Writer
}

func newApp() *app {
	return &app{
		v:      viper.New(),
		stdin:  os.Stdin,
		stdout: os.Stdout,
	}
}

// flagKeys maps persistent flags to config keys.
var flagKeys = map[string]string{
	"pg-host":         "postgres.host",
	"pg-port":         "postgres.port",
	"pg-user":         "postgres.user",
	"pg-database":     "postgres.database",
	"pg-sslmode":      "postgres.sslmode",
	"pg-schema":       "postgres.schema",
	"log-level":       "log.level",
	"log-format":      "log.format",
	"log-file":        "log.file",
	"metrics-addr":    "metrics.addr",
	"max-rows":        "max_rows",
	"connect-retries": "connect_retries",
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "pgmcp",
		Short: "PostgreSQL MCP server",
		Long: `pgmcp exposes one PostgreSQL database to MCP clients through the execute_sql tool.

Connection settings come from flags, POSTGRES_HOST, POSTGRES_PORT, POSTGRES_USER,
POSTGRES_PASSWORD and POSTGRES_DB (also read from a .env file), or pgmcp.yaml.`,
		Version:      version.Get(),
		SilenceUsage: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return a.loadConfig()
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.cfgFile, "config", "", "config file (default: ./pgmcp.yaml or /etc/pgmcp/pgmcp.yaml)")
	flags.StringVar(&a.envFile, "env-file", "", "dotenv file to load (default: ./.env when present)")

	// Database flags. The password is only read from the environment or the config file.
	flags.String("pg-host", postgres.DefaultHost, "PostgreSQL host")
	flags.Int("pg-port", postgres.DefaultPort, "PostgreSQL port")
	flags.String("pg-user", postgres.DefaultUser, "PostgreSQL user")
	flags.String("pg-database", postgres.DefaultDatabase, "PostgreSQL database")
	flags.String("pg-sslmode", postgres.DefaultSSLMode, "libpq sslmode (disable, allow, prefer, require, verify-ca, verify-full)")
	flags.String("pg-schema", "", "search_path for pooled connections (default: server default)")

	// Logging flags
	flags.String("log-level", "info", "Log level (debug, info, warn, error)")
	flags.String("log-format", "json", "Log format (json, console)")
	flags.String("log-file", "", "Log file path, rotated (default: stderr)")

	flags.String("metrics-addr", "", "Prometheus metrics listen address, e.g. :9187 (default: disabled)")
	flags.Int("max-rows", 0, "Maximum rows returned per statement (0 = unlimited)")
	flags.Int("connect-retries", 0, "Retries of the initial connection before continuing without one")

	for name, key := range flagKeys {
		_ = a.v.BindPFlag(key, flags.Lookup(name))
	}

	root.AddCommand(
		newServeCmd(a),
		newQueryCmd(a),
		newPingCmd(a),
		newConfigCmd(a),
		newVersionCmd(),
	)
	return root
}

func (a *app) loadConfig() error {
	cfg, err := config.Load(a.v, config.Options{ConfigFile: a.cfgFile, EnvFile: a.envFile})
	if err != nil {
		return err
	}
	a.cfg = cfg
	return nil
}

// setupLogger builds the process logger from the loaded config and installs
// it globally.
func (a *app) setupLogger() (*zap.Logger, error) {
	logger, err := log.Build(a.cfg.Log)
	if err != nil {
		return nil, err
	}
	log.SetLogger(logger)
	return logger, nil
}

func (a *app) newManager(logger *zap.Logger, metrics *postgres.Metrics) *postgres.ConnectionManager {
	opts := []postgres.ManagerOption{
		postgres.WithLogger(logger.Named("postgres")),
		postgres.WithManagerMetrics(metrics),
	}
	if a.dial != nil {
		opts = append(opts, postgres.WithDialer(a.dial))
	}
	return postgres.NewConnectionManager(a.cfg.Postgres, opts...)
}

func (a *app) newDriver(manager *postgres.ConnectionManager, logger *zap.Logger, metrics *postgres.Metrics) *postgres.QueryDriver {
	return postgres.NewQueryDriver(manager, nil,
		postgres.WithDriverLogger(logger.Named("postgres")),
		postgres.WithMaxRows(a.cfg.MaxRows),
		postgres.WithDriverMetrics(metrics),
	)
}
