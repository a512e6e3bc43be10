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
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"go.uber.org/zap"
)

var (
	errNoConnectionSource = errors.New("neither a connection manager nor a connection config was provided")
	errNotEstablished     = errors.New("connection not established")
	errEmptyStatement     = errors.New("sql statement is empty")
)

// typeNames resolves column type OIDs to names. It is only read after init.
var typeNames = pgtype.NewMap()

// DriverOption configures a QueryDriver.
type DriverOption func(*QueryDriver)

// WithDriverLogger sets the driver's logger.
func WithDriverLogger(logger *zap.Logger) DriverOption {
	return func(d *QueryDriver) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithMaxRows caps the rows returned per statement. Zero means unlimited.
func WithMaxRows(n int) DriverOption {
	return func(d *QueryDriver) {
		if n > 0 {
			d.maxRows = n
		}
	}
}

// WithDriverMetrics records statement outcomes and latency in metrics.
func WithDriverMetrics(metrics *Metrics) DriverOption {
	return func(d *QueryDriver) {
		d.metrics = metrics
	}
}

// WithManagerOptions passes options to the manager the driver builds when it
// was not given one.
func WithManagerOptions(opts ...ManagerOption) DriverOption {
	return func(d *QueryDriver) {
		d.managerOpts = append(d.managerOpts, opts...)
	}
}

// QueryDriver runs single SQL statements against the database reached
// through its ConnectionManager. The pool is established on the first
// statement, not at construction. A QueryDriver is safe for concurrent use.
type QueryDriver struct {
	cfg         *ConnectionConfig
	logger      *zap.Logger
	metrics     *Metrics
	maxRows     int
	managerOpts []ManagerOption

	mu      sync.Mutex
	manager *ConnectionManager
}

// NewQueryDriver creates a driver bound to manager. When manager is nil the
// driver builds its own from cfg on first use. Passing neither is allowed;
// every statement then fails with a configuration error.
func NewQueryDriver(manager *ConnectionManager, cfg *ConnectionConfig, opts ...DriverOption) *QueryDriver {
	d := &QueryDriver{
		cfg:     cfg,
		manager: manager,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Manager returns the manager in use, building it from the config if needed.
func (d *QueryDriver) Manager() (*ConnectionManager, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.manager != nil {
		return d.manager, nil
	}
	if d.cfg == nil {
		return nil, newError(KindConfiguration, "resolve connection", errNoConnectionSource)
	}
	opts := append([]ManagerOption{WithLogger(d.logger), WithManagerMetrics(d.metrics)}, d.managerOpts...)
	d.manager = NewConnectionManager(*d.cfg, opts...)
	return d.manager, nil
}

// Query is shorthand for Execute with positional parameters.
func (d *QueryDriver) Query(ctx context.Context, sql string, params ...any) ([]RowResult, error) {
	return d.Execute(ctx, QueryRequest{SQL: sql, Params: params})
}

// Execute runs one statement and returns its rows in server order. A
// statement that yields no rows returns an empty, non-nil slice.
func (d *QueryDriver) Execute(ctx context.Context, req QueryRequest) ([]RowResult, error) {
	res, err := d.ExecuteResult(ctx, req)
	if err != nil {
		return nil, err
	}
	return res.Rows, nil
}

// ExecuteResult runs one statement and returns its rows together with column
// metadata and the command tag.
func (d *QueryDriver) ExecuteResult(ctx context.Context, req QueryRequest) (*Result, error) {
	start := time.Now()
	res, err := d.execute(ctx, req)
	elapsed := time.Since(start)
	d.metrics.observeQuery(err, elapsed)

	if err != nil {
		d.logger.Error("query failed",
			zap.String("kind", KindOf(err).String()),
			zap.Int("params", len(req.Params)),
			zap.Duration("duration", elapsed),
			zap.Error(err),
		)
		return nil, err
	}

	res.Duration = elapsed
	d.logger.Debug("query executed",
		zap.String("command", res.Command),
		zap.Int("rows", len(res.Rows)),
		zap.Int64("rows_affected", res.RowsAffected),
		zap.Duration("duration", elapsed),
	)
	return res, nil
}

func (d *QueryDriver) execute(ctx context.Context, req QueryRequest) (*Result, error) {
	if strings.TrimSpace(req.SQL) == "" {
		return nil, newError(KindQuery, "execute", errEmptyStatement)
	}

	manager, err := d.Manager()
	if err != nil {
		return nil, err
	}
	pool, err := manager.Connect(ctx)
	if err != nil {
		return nil, err
	}
	if pool == nil {
		return nil, newError(KindConnection, "execute", errNotEstablished)
	}
	cfg := manager.Config()

	acquireCtx, cancelAcquire := context.WithTimeout(ctx, cfg.acquireTimeout())
	conn, err := pool.Acquire(acquireCtx)
	cancelAcquire()
	if err != nil {
		return nil, classify("acquire connection", err)
	}
	defer conn.Release()

	queryCtx, cancelQuery := context.WithTimeout(ctx, cfg.queryTimeout())
	defer cancelQuery()

	rows, err := conn.Query(queryCtx, req.SQL, req.Params...)
	if err != nil {
		return nil, classify("execute", err)
	}
	res, err := d.collect(rows)
	if err != nil {
		return nil, classify("execute", err)
	}
	return res, nil
}

// collect reads every row and closes rows.
func (d *QueryDriver) collect(rows pgx.Rows) (*Result, error) {
	defer rows.Close()

	fields := rows.FieldDescriptions()
	names := make([]string, len(fields))
	columns := make([]Column, len(fields))
	for i, fd := range fields {
		names[i] = fd.Name
		columns[i] = Column{Name: fd.Name, TypeOID: fd.DataTypeOID, Type: typeName(fd.DataTypeOID)}
	}

	res := &Result{Columns: columns, Rows: make([]RowResult, 0)}
	for rows.Next() {
		if d.maxRows > 0 && len(res.Rows) >= d.maxRows {
			res.Truncated = true
			break
		}
		values, err := rows.Values()
		if err != nil {
			return nil, err
		}
		res.Rows = append(res.Rows, NewRowResult(names, values))
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	tag := rows.CommandTag()
	res.RowsAffected = tag.RowsAffected()
	if fields := strings.Fields(tag.String()); len(fields) > 0 {
		res.Command = fields[0]
	}

	if res.Truncated {
		d.logger.Warn("result truncated",
			zap.Int("max_rows", d.maxRows),
			zap.String("command", res.Command),
		)
	}
	return res, nil
}

func typeName(oid uint32) string {
	if t, ok := typeNames.TypeForOID(oid); ok {
		return t.Name
	}
	return ""
}
