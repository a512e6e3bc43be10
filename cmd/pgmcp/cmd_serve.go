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
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/teradata-labs/pgmcp/internal/log"
	"github.com/teradata-labs/pgmcp/internal/version"
	"github.com/teradata-labs/pgmcp/pkg/mcp/server"
	"github.com/teradata-labs/pgmcp/pkg/mcp/sqltool"
	"github.com/teradata-labs/pgmcp/pkg/mcp/transport"
	"github.com/teradata-labs/pgmcp/pkg/postgres"
)

const serverInstructions = "Use execute_sql to run SQL against the connected PostgreSQL database. " +
	"Pass values through params ($1, $2, ...) instead of formatting them into the statement."

const metricsShutdownTimeout = 5 * time.Second

func newServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve MCP over stdio",
		Long: `Start the MCP server on stdin/stdout.

The database connection is attempted at startup. If it fails the server still
starts and connects on the first execute_sql call.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), a)
		},
	}
}

func runServe(ctx context.Context, a *app) error {
	logger, err := a.setupLogger()
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("starting pgmcp",
		zap.String("version", version.Get()),
		zap.String("address", a.cfg.Postgres.Address()),
		zap.String("database", a.cfg.Postgres.Database),
	)

	var (
		registry *prometheus.Registry
		metrics  *postgres.Metrics
	)
	if a.cfg.Metrics.Addr != "" {
		registry = prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		if metrics, err = postgres.NewMetrics(registry); err != nil {
			return err
		}
	}

	manager := a.newManager(logger, metrics)
	defer manager.Disconnect()

	if registry != nil {
		registry.MustRegister(postgres.NewPoolCollector(manager))
		shutdown := startMetricsServer(a.cfg.Metrics.Addr, metricsHandler(registry, a.cfg.Metrics.Path), logger)
		defer shutdown()
	}

	if err := connectWithRetry(ctx, manager, a.cfg.ConnectRetries, logger); err != nil {
		logger.Warn("initial connection failed, connecting on first query", zap.Error(err))
	}

	provider, err := sqltool.New(a.newDriver(manager, logger, metrics), logger.Named("sqltool"))
	if err != nil {
		return fmt.Errorf("create sql tool: %w", err)
	}

	mcpServer := server.New(a.cfg.Server.Name, version.Get(), logger.Named("mcp"),
		server.WithToolProvider(provider),
		server.WithInstructions(serverInstructions),
	)

	stdio := transport.NewStdioServerTransport(a.stdin, a.stdout)
	defer func() { _ = stdio.Close() }()

	logger.Info("MCP server ready, awaiting requests on stdio")
	if err := mcpServer.Serve(ctx, stdio); err != nil {
		if ctx.Err() != nil {
			logger.Info("server stopped gracefully")
			return nil
		}
		return err
	}
	return nil
}

func metricsHandler(registry *prometheus.Registry, path string) http.Handler {
	mux := http.NewServeMux()
	mux.Handle(path, promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}))
	return mux
}

// startMetricsServer serves handler on addr in the background. The returned
// function stops it.
func startMetricsServer(addr string, handler http.Handler, logger *zap.Logger) func() {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("metrics endpoint listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", zap.Error(err))
		}
	}()
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), metricsShutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}
