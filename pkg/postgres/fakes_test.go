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
	"sync"
	"sync/atomic"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// fakeRows is an in-memory pgx.Rows.
type fakeRows struct {
	fields []pgconn.FieldDescription
	data   [][]any
	tag    string
	err    error // reported by Err after iteration

	pos    int
	closed bool
}

func (r *fakeRows) Close()                                       { r.closed = true }
func (r *fakeRows) Err() error                                   { return r.err }
func (r *fakeRows) CommandTag() pgconn.CommandTag                { return pgconn.NewCommandTag(r.tag) }
func (r *fakeRows) FieldDescriptions() []pgconn.FieldDescription { return r.fields }
func (r *fakeRows) RawValues() [][]byte                          { return nil }
func (r *fakeRows) Conn() *pgx.Conn                              { return nil }

func (r *fakeRows) Next() bool {
	if r.closed || r.pos >= len(r.data) {
		return false
	}
	r.pos++
	return true
}

func (r *fakeRows) Values() ([]any, error) {
	return r.data[r.pos-1], nil
}

func (r *fakeRows) Scan(dest ...any) error {
	return errors.New("scan not supported by fakeRows")
}

// queryFunc answers a statement on a fake connection.
type queryFunc func(ctx context.Context, sql string, args []any) (pgx.Rows, error)

type fakeConn struct {
	pool *fakePool
}

func (c *fakeConn) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	c.pool.queries.Add(1)
	c.pool.mu.Lock()
	c.pool.lastSQL = sql
	c.pool.lastArgs = args
	q := c.pool.query
	c.pool.mu.Unlock()
	if q == nil {
		return &fakeRows{tag: "SELECT 0"}, nil
	}
	return q(ctx, sql, args)
}

func (c *fakeConn) Release() {
	c.pool.released.Add(1)
}

// fakePool is a Pool whose behavior is set per test.
type fakePool struct {
	pingErr    error
	acquireErr error
	// acquireBlock makes Acquire wait for ctx to end.
	acquireBlock bool

	mu       sync.Mutex
	query    queryFunc
	lastSQL  string
	lastArgs []any

	pings    atomic.Int32
	acquires atomic.Int32
	released atomic.Int32
	queries  atomic.Int32
	closed   atomic.Bool
}

func (p *fakePool) Acquire(ctx context.Context) (Conn, error) {
	p.acquires.Add(1)
	if p.acquireBlock {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if p.acquireErr != nil {
		return nil, p.acquireErr
	}
	return &fakeConn{pool: p}, nil
}

func (p *fakePool) Ping(ctx context.Context) error {
	p.pings.Add(1)
	if err := ctx.Err(); err != nil {
		return err
	}
	return p.pingErr
}

func (p *fakePool) Close() {
	p.closed.Store(true)
}

func (p *fakePool) setQuery(q queryFunc) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.query = q
}

// countingDialer hands out pools and counts how often it was called.
type countingDialer struct {
	mu    sync.Mutex
	calls int
	pools []*fakePool
	err   error
	// next builds each new pool; nil means a healthy fakePool.
	next func() *fakePool
	// gate, when set, blocks every dial until it is closed.
	gate chan struct{}
}

func (d *countingDialer) dial(ctx context.Context, cfg ConnectionConfig) (Pool, error) {
	if d.gate != nil {
		<-d.gate
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	if d.err != nil {
		return nil, d.err
	}
	p := &fakePool{}
	if d.next != nil {
		p = d.next()
	}
	d.pools = append(d.pools, p)
	return p, nil
}

func (d *countingDialer) callCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

func testConfig() ConnectionConfig {
	cfg := DefaultConnectionConfig()
	cfg.Database = "testdb"
	return cfg
}

func textField(name string) pgconn.FieldDescription {
	return pgconn.FieldDescription{Name: name, DataTypeOID: 25}
}

func int8Field(name string) pgconn.FieldDescription {
	return pgconn.FieldDescription{Name: name, DataTypeOID: 20}
}
