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

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// State is the lifecycle state of a ConnectionManager.
type State int

const (
	StateDisconnected State = iota
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnected:
		return "connected"
	default:
		return "unknown"
	}
}

// Status is the connectivity signal emitted after every establishment
// attempt and on disconnect.
type Status struct {
	State    State
	Address  string
	Database string
	// Err is set when an establishment attempt failed.
	Err error
}

var errDisconnectedDuringConnect = errors.New("disconnected while the pool was being established")

// ManagerOption configures a ConnectionManager.
type ManagerOption func(*ConnectionManager)

// WithLogger sets the manager's logger.
func WithLogger(logger *zap.Logger) ManagerOption {
	return func(m *ConnectionManager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithDialer replaces the pool factory. The default is DialPgx.
func WithDialer(dial Dialer) ManagerOption {
	return func(m *ConnectionManager) {
		if dial != nil {
			m.dial = dial
		}
	}
}

// WithStatusListener registers fn to receive connectivity signals. fn is
// called synchronously and must not call back into the manager.
func WithStatusListener(fn func(Status)) ManagerOption {
	return func(m *ConnectionManager) {
		m.listener = fn
	}
}

// WithManagerMetrics records connect attempts and connectivity in metrics.
func WithManagerMetrics(metrics *Metrics) ManagerOption {
	return func(m *ConnectionManager) {
		m.metrics = metrics
	}
}

// ConnectionManager owns the single pool for one database target.
//
// Pool creation is single-flight: concurrent Connect calls share one
// establishment attempt and observe its outcome. The manager's lock only
// guards the pool reference and is never held across network round trips.
type ConnectionManager struct {
	cfg      ConnectionConfig
	dial     Dialer
	logger   *zap.Logger
	metrics  *Metrics
	listener func(Status)

	mu   sync.RWMutex
	pool Pool
	// generation changes whenever the held pool is dropped, so an
	// establishment that started before a Disconnect cannot install its pool.
	generation uint64

	flight singleflight.Group
}

// NewConnectionManager creates a disconnected manager for cfg.
func NewConnectionManager(cfg ConnectionConfig, opts ...ManagerOption) *ConnectionManager {
	m := &ConnectionManager{
		cfg:    cfg,
		dial:   DialPgx,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Config returns the manager's connection configuration.
func (m *ConnectionManager) Config() ConnectionConfig {
	return m.cfg
}

// Pool returns the live pool, or nil while disconnected.
func (m *ConnectionManager) Pool() Pool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.pool
}

// State returns the current lifecycle state.
func (m *ConnectionManager) State() State {
	if m.Pool() != nil {
		return StateConnected
	}
	return StateDisconnected
}

// Connect returns the live pool, establishing it first if needed.
//
// Establishing dials the target and then runs a liveness probe; the pool is
// stored only if both succeed. Calling Connect while connected returns the
// existing pool (after a ping when ProbeOnReuse is set).
func (m *ConnectionManager) Connect(ctx context.Context) (Pool, error) {
	if err := m.cfg.Validate(); err != nil {
		return nil, err
	}

	if pool := m.Pool(); pool != nil {
		if !m.cfg.ProbeOnReuse {
			return pool, nil
		}
		err := m.probe(ctx, pool)
		if err == nil {
			return pool, nil
		}
		if ctx.Err() != nil {
			// The caller gave up; the pool was not shown to be dead.
			return nil, callerDone(ctx)
		}
		m.logger.Warn("postgres pool failed liveness probe, reconnecting",
			zap.String("address", m.cfg.Address()),
			zap.Error(err),
		)
		m.discard(pool)
	}

	ch := m.flight.DoChan("connect", func() (interface{}, error) {
		return m.establish(ctx)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(Pool), nil
	case <-ctx.Done():
		return nil, callerDone(ctx)
	}
}

// callerDone reports a Connect abandoned through its context: a timeout when
// the deadline passed, otherwise a connection error.
func callerDone(ctx context.Context) *Error {
	err := ctx.Err()
	if errors.Is(err, context.DeadlineExceeded) {
		return newError(KindTimeout, "connect", err)
	}
	return newError(KindConnection, "connect", err)
}

// establish runs inside the single flight. It ignores cancellation of the
// calling context; the connect timeout bounds it instead.
func (m *ConnectionManager) establish(ctx context.Context) (Pool, error) {
	m.mu.RLock()
	existing, gen := m.pool, m.generation
	m.mu.RUnlock()
	if existing != nil {
		return existing, nil
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.cfg.connectTimeout())
	defer cancel()

	pool, err := m.dial(ctx, m.cfg)
	if err != nil {
		return nil, m.fail(connectError("connect", err))
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, m.fail(newError(KindConnection, "liveness probe", err))
	}

	m.mu.Lock()
	if m.generation != gen {
		m.mu.Unlock()
		pool.Close()
		return nil, m.fail(newError(KindConnection, "connect", errDisconnectedDuringConnect))
	}
	m.pool = pool
	m.mu.Unlock()

	m.logger.Info("postgres connection established",
		zap.String("address", m.cfg.Address()),
		zap.String("database", m.cfg.Database),
		zap.String("user", m.cfg.User),
	)
	m.metrics.observeConnect(nil)
	m.metrics.setConnected(true)
	m.notify(Status{State: StateConnected, Address: m.cfg.Address(), Database: m.cfg.Database})
	return pool, nil
}

func (m *ConnectionManager) probe(ctx context.Context, pool Pool) error {
	ctx, cancel := context.WithTimeout(ctx, m.cfg.connectTimeout())
	defer cancel()
	return pool.Ping(ctx)
}

// discard drops pool if it is still the held pool.
func (m *ConnectionManager) discard(pool Pool) {
	m.mu.Lock()
	if m.pool != pool {
		m.mu.Unlock()
		return
	}
	m.pool = nil
	m.generation++
	m.mu.Unlock()

	pool.Close()
	m.metrics.setConnected(false)
}

func (m *ConnectionManager) fail(err *Error) *Error {
	m.logger.Error("failed to connect to postgres",
		zap.String("address", m.cfg.Address()),
		zap.String("database", m.cfg.Database),
		zap.Error(err),
	)
	m.metrics.observeConnect(err)
	m.notify(Status{State: StateDisconnected, Address: m.cfg.Address(), Database: m.cfg.Database, Err: err})
	return err
}

// Disconnect closes the pool and returns to the disconnected state. It is a
// no-op while disconnected and never returns an error. Closing waits for
// leased connections to be released.
func (m *ConnectionManager) Disconnect() {
	m.mu.Lock()
	pool := m.pool
	m.pool = nil
	m.generation++
	m.mu.Unlock()

	if pool == nil {
		return
	}

	pool.Close()
	m.logger.Info("postgres connection closed", zap.String("address", m.cfg.Address()))
	m.metrics.setConnected(false)
	m.notify(Status{State: StateDisconnected, Address: m.cfg.Address(), Database: m.cfg.Database})
}

func (m *ConnectionManager) notify(s Status) {
	if m.listener != nil {
		m.listener(s)
	}
}
