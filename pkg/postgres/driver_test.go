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
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTestDriver(t *testing.T, d *countingDialer, opts ...DriverOption) (*QueryDriver, *ConnectionManager) {
	t.Helper()
	m := NewConnectionManager(testConfig(), WithDialer(d.dial), WithLogger(zaptest.NewLogger(t)))
	opts = append([]DriverOption{WithDriverLogger(zaptest.NewLogger(t))}, opts...)
	return NewQueryDriver(m, nil, opts...), m
}

func TestExecute_LazyInitialization(t *testing.T) {
	d := &countingDialer{}
	driver, m := newTestDriver(t, d)

	assert.Zero(t, d.callCount(), "constructing the driver must not connect")
	assert.Equal(t, StateDisconnected, m.State())

	rows, err := driver.Query(context.Background(), "SELECT 1")
	require.NoError(t, err)
	assert.NotNil(t, rows)
	assert.Equal(t, 1, d.callCount())
	assert.Equal(t, StateConnected, m.State())

	_, err = driver.Query(context.Background(), "SELECT 1")
	require.NoError(t, err)
	assert.Equal(t, 1, d.callCount())
}

func TestExecute_BuildsManagerFromConfig(t *testing.T) {
	d := &countingDialer{}
	cfg := testConfig()
	driver := NewQueryDriver(nil, &cfg, WithManagerOptions(WithDialer(d.dial)))

	_, err := driver.Query(context.Background(), "SELECT 1")
	require.NoError(t, err)

	m1, err := driver.Manager()
	require.NoError(t, err)
	m2, err := driver.Manager()
	require.NoError(t, err)
	assert.Same(t, m1, m2)
	assert.Equal(t, "testdb", m1.Config().Database)
	assert.Equal(t, 1, d.callCount())
}

func TestExecute_NoManagerNoConfig(t *testing.T) {
	driver := NewQueryDriver(nil, nil)

	_, err := driver.Query(context.Background(), "SELECT 1")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestExecute_EmptyStatement(t *testing.T) {
	d := &countingDialer{}
	driver, _ := newTestDriver(t, d)

	for _, sql := range []string{"", "   ", "\n\t"} {
		_, err := driver.Query(context.Background(), sql)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrQuery)
	}
	assert.Zero(t, d.callCount())
}

func TestExecute_RowsInServerOrder(t *testing.T) {
	d := &countingDialer{}
	driver, _ := newTestDriver(t, d)

	_, err := driver.Query(context.Background(), "SELECT 1")
	require.NoError(t, err)
	d.pools[0].setQuery(func(ctx context.Context, sql string, args []any) (pgx.Rows, error) {
		return &fakeRows{
			fields: []pgconn.FieldDescription{int8Field("id"), textField("name")},
			data: [][]any{
				{int64(3), "carol"},
				{int64(1), "alice"},
				{int64(2), "bob"},
			},
			tag: "SELECT 3",
		}, nil
	})

	res, err := driver.ExecuteResult(context.Background(), QueryRequest{SQL: "SELECT id, name FROM users"})
	require.NoError(t, err)
	require.Len(t, res.Rows, 3)

	var ids []any
	for _, row := range res.Rows {
		assert.Equal(t, []string{"id", "name"}, row.Columns())
		v, _ := row.Get("id")
		ids = append(ids, v)
	}
	assert.Equal(t, []any{int64(3), int64(1), int64(2)}, ids)

	assert.Equal(t, []Column{
		{Name: "id", TypeOID: 20, Type: "int8"},
		{Name: "name", TypeOID: 25, Type: "text"},
	}, res.Columns)
	assert.Equal(t, int64(3), res.RowsAffected)
	assert.Equal(t, "SELECT", res.Command)
	assert.False(t, res.Truncated)
	assert.Equal(t, int32(2), d.pools[0].released.Load(), "every acquired connection is released")
}

func TestExecute_EmptyResultIsNonNil(t *testing.T) {
	d := &countingDialer{next: func() *fakePool {
		p := &fakePool{}
		p.setQuery(func(ctx context.Context, sql string, args []any) (pgx.Rows, error) {
			return &fakeRows{fields: []pgconn.FieldDescription{textField("name")}, tag: "SELECT 0"}, nil
		})
		return p
	}}
	driver, _ := newTestDriver(t, d)

	rows, err := driver.Query(context.Background(), "SELECT name FROM users WHERE false")
	require.NoError(t, err)
	assert.NotNil(t, rows)
	assert.Empty(t, rows)
}

func TestExecute_StatementWithoutRows(t *testing.T) {
	d := &countingDialer{next: func() *fakePool {
		p := &fakePool{}
		p.setQuery(func(ctx context.Context, sql string, args []any) (pgx.Rows, error) {
			return &fakeRows{tag: "UPDATE 4"}, nil
		})
		return p
	}}
	driver, _ := newTestDriver(t, d)

	res, err := driver.ExecuteResult(context.Background(), QueryRequest{SQL: "UPDATE users SET active = true"})
	require.NoError(t, err)
	assert.NotNil(t, res.Rows)
	assert.Empty(t, res.Rows)
	assert.Empty(t, res.Columns)
	assert.Equal(t, int64(4), res.RowsAffected)
	assert.Equal(t, "UPDATE", res.Command)
}

func TestExecute_ParametersPassedThrough(t *testing.T) {
	d := &countingDialer{next: func() *fakePool {
		p := &fakePool{}
		p.setQuery(func(ctx context.Context, sql string, args []any) (pgx.Rows, error) {
			data := [][]any{{args[0]}}
			return &fakeRows{fields: []pgconn.FieldDescription{int8Field("?column?")}, data: data, tag: "SELECT 1"}, nil
		})
		return p
	}}
	driver, _ := newTestDriver(t, d)

	rows, err := driver.Query(context.Background(), "SELECT $1", int64(42))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	v, ok := rows[0].Get("?column?")
	require.True(t, ok)
	assert.Equal(t, int64(42), v)

	p := d.pools[0]
	p.mu.Lock()
	defer p.mu.Unlock()
	assert.Equal(t, "SELECT $1", p.lastSQL)
	assert.Equal(t, []any{int64(42)}, p.lastArgs)
}

func TestExecute_NilParamsMeansNoParams(t *testing.T) {
	d := &countingDialer{}
	driver, _ := newTestDriver(t, d)

	_, err := driver.Execute(context.Background(), QueryRequest{SQL: "SELECT 1 AS one"})
	require.NoError(t, err)

	p := d.pools[0]
	p.mu.Lock()
	defer p.mu.Unlock()
	assert.Empty(t, p.lastArgs)
}

func TestExecute_ErrorClassification(t *testing.T) {
	tests := []struct {
		name     string
		queryErr error
		iterErr  error
		want     error
	}{
		{
			name:     "syntax error",
			queryErr: &pgconn.PgError{Code: pgerrcode.SyntaxError, Message: `syntax error at or near "SELEC"`},
			want:     ErrQuery,
		},
		{
			name:     "undefined table",
			queryErr: &pgconn.PgError{Code: pgerrcode.UndefinedTable, Message: `relation "missing" does not exist`},
			want:     ErrQuery,
		},
		{
			name:    "unique violation while reading rows",
			iterErr: &pgconn.PgError{Code: pgerrcode.UniqueViolation, Message: "duplicate key value"},
			want:    ErrQuery,
		},
		{
			name:     "statement timeout",
			queryErr: &pgconn.PgError{Code: pgerrcode.QueryCanceled, Message: "canceling statement due to statement timeout"},
			want:     ErrTimeout,
		},
		{
			name:     "admin shutdown",
			queryErr: &pgconn.PgError{Code: pgerrcode.AdminShutdown, Message: "terminating connection due to administrator command"},
			want:     ErrExecution,
		},
		{
			name:     "deadlock",
			queryErr: &pgconn.PgError{Code: pgerrcode.DeadlockDetected, Message: "deadlock detected"},
			want:     ErrExecution,
		},
		{
			name:     "deadline exceeded",
			queryErr: fmt.Errorf("read: %w", context.DeadlineExceeded),
			want:     ErrTimeout,
		},
		{
			name:     "network failure",
			queryErr: errors.New("unexpected EOF"),
			want:     ErrExecution,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := &countingDialer{next: func() *fakePool {
				p := &fakePool{}
				p.setQuery(func(ctx context.Context, sql string, args []any) (pgx.Rows, error) {
					if tt.queryErr != nil {
						return nil, tt.queryErr
					}
					return &fakeRows{err: tt.iterErr}, nil
				})
				return p
			}}
			driver, _ := newTestDriver(t, d)

			rows, err := driver.Query(context.Background(), "SELECT * FROM t")
			require.Error(t, err)
			assert.Nil(t, rows)
			assert.ErrorIs(t, err, tt.want)

			cause := tt.queryErr
			if cause == nil {
				cause = tt.iterErr
			}
			var wantCode string
			var serverErr *pgconn.PgError
			if errors.As(cause, &serverErr) {
				wantCode = serverErr.Code
			}
			var pgErr *Error
			require.ErrorAs(t, err, &pgErr)
			assert.Equal(t, wantCode, pgErr.Code)
			assert.Contains(t, err.Error(), cause.Error())
			assert.Equal(t, int32(1), d.pools[0].released.Load())
		})
	}
}

func TestExecute_ConnectFailure(t *testing.T) {
	d := &countingDialer{next: func() *fakePool { return &fakePool{pingErr: errors.New("password authentication failed")} }}
	driver, _ := newTestDriver(t, d)

	_, err := driver.Query(context.Background(), "SELECT 1")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConnection)
	assert.Contains(t, err.Error(), "password authentication failed")
}

func TestExecute_AcquireTimeout(t *testing.T) {
	cfg := testConfig()
	cfg.Timeouts.Acquire = 10 * time.Millisecond
	d := &countingDialer{next: func() *fakePool { return &fakePool{acquireBlock: true} }}
	m := NewConnectionManager(cfg, WithDialer(d.dial))
	driver := NewQueryDriver(m, nil)

	_, err := driver.Query(context.Background(), "SELECT 1")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.True(t, IsRetryable(err))
}

func TestExecute_MaxRowsTruncates(t *testing.T) {
	d := &countingDialer{next: func() *fakePool {
		p := &fakePool{}
		p.setQuery(func(ctx context.Context, sql string, args []any) (pgx.Rows, error) {
			data := make([][]any, 10)
			for i := range data {
				data[i] = []any{int64(i)}
			}
			return &fakeRows{fields: []pgconn.FieldDescription{int8Field("n")}, data: data, tag: "SELECT 10"}, nil
		})
		return p
	}}
	driver, _ := newTestDriver(t, d, WithMaxRows(3))

	res, err := driver.ExecuteResult(context.Background(), QueryRequest{SQL: "SELECT generate_series(0, 9) AS n"})
	require.NoError(t, err)
	assert.Len(t, res.Rows, 3)
	assert.True(t, res.Truncated)

	v, _ := res.Rows[2].Get("n")
	assert.Equal(t, int64(2), v)
}

func TestExecute_ConcurrentCallsAreIsolated(t *testing.T) {
	d := &countingDialer{next: func() *fakePool {
		p := &fakePool{}
		p.setQuery(func(ctx context.Context, sql string, args []any) (pgx.Rows, error) {
			return &fakeRows{
				fields: []pgconn.FieldDescription{int8Field("n")},
				data:   [][]any{{args[0]}},
				tag:    "SELECT 1",
			}, nil
		})
		return p
	}}
	driver, _ := newTestDriver(t, d)

	const workers = 32
	var wg sync.WaitGroup
	results := make([]any, workers)
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rows, err := driver.Query(context.Background(), "SELECT $1::int8 AS n", int64(i))
			errs[i] = err
			if err == nil && len(rows) == 1 {
				results[i], _ = rows[0].Get("n")
			}
		}(i)
	}
	wg.Wait()

	for i := 0; i < workers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, int64(i), results[i])
	}
	assert.Equal(t, 1, d.callCount())
	p := d.pools[0]
	assert.Equal(t, p.acquires.Load(), p.released.Load())
}
