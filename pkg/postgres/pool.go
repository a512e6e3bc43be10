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
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Conn is a connection leased from a Pool. Release must be called exactly
// once when the caller is done with it.
type Conn interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Release()
}

// Pool is a bounded set of live connections to one database.
// It is implemented by an adapter over *pgxpool.Pool and can be faked in tests.
type Pool interface {
	Acquire(ctx context.Context) (Conn, error)
	Ping(ctx context.Context) error
	Close()
}

// Dialer creates a pool for cfg. It does not probe liveness; the manager
// does that after dialing.
type Dialer func(ctx context.Context, cfg ConnectionConfig) (Pool, error)

// pgxPool adapts *pgxpool.Pool to Pool.
type pgxPool struct {
	*pgxpool.Pool
}

func (p pgxPool) Acquire(ctx context.Context) (Conn, error) {
	conn, err := p.Pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// DialPgx is the default Dialer. It builds a pgxpool.Pool from cfg.
func DialPgx(ctx context.Context, cfg ConnectionConfig) (Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(buildDSN(cfg))
	if err != nil {
		// The parse error can echo the DSN, which holds the password.
		return nil, fmt.Errorf("failed to parse connection config for %s: connection string invalid", cfg.Address())
	}

	applyPoolConfig(poolCfg, cfg.Pool)
	poolCfg.ConnConfig.ConnectTimeout = cfg.connectTimeout()
	poolCfg.ConnConfig.DefaultQueryExecMode = cfg.execMode()

	if schema := cfg.Schema; schema != "" {
		poolCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
			_, err := conn.Exec(ctx, fmt.Sprintf("SET search_path TO %s", pgx.Identifier{schema}.Sanitize()))
			return err
		}
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool for %s: %w", cfg.Address(), err)
	}
	return pgxPool{Pool: pool}, nil
}

// applyPoolConfig maps pool settings onto pgxpool.Config, using defaults for
// zero values.
func applyPoolConfig(poolCfg *pgxpool.Config, cfg PoolConfig) {
	poolCfg.MaxConns = DefaultMaxConns
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}

	poolCfg.MinConns = 0
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}

	poolCfg.MaxConnIdleTime = DefaultMaxConnIdleTime
	if cfg.MaxConnIdleTime > 0 {
		poolCfg.MaxConnIdleTime = cfg.MaxConnIdleTime
	}

	poolCfg.MaxConnLifetime = DefaultMaxConnLifetime
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}

	poolCfg.HealthCheckPeriod = DefaultHealthCheckPeriod
	if cfg.HealthCheckPeriod > 0 {
		poolCfg.HealthCheckPeriod = cfg.HealthCheckPeriod
	}
}
