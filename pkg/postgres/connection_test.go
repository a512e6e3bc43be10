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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestConnect_IdempotentWhileConnected(t *testing.T) {
	d := &countingDialer{}
	m := NewConnectionManager(testConfig(), WithDialer(d.dial), WithLogger(zaptest.NewLogger(t)))

	first, err := m.Connect(context.Background())
	require.NoError(t, err)
	second, err := m.Connect(context.Background())
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, 1, d.callCount())
	assert.Equal(t, StateConnected, m.State())
	assert.Equal(t, int32(1), d.pools[0].pings.Load(), "only the establishment is probed")
}

func TestConnect_ConcurrentCallsShareOneEstablishment(t *testing.T) {
	d := &countingDialer{gate: make(chan struct{})}
	m := NewConnectionManager(testConfig(), WithDialer(d.dial))

	const callers = 16
	pools := make([]Pool, callers)
	errs := make([]error, callers)
	var started, wg sync.WaitGroup
	started.Add(callers)
	wg.Add(callers)
	for i := 0; i < callers; i++ {
		go func(i int) {
			defer wg.Done()
			started.Done()
			pools[i], errs[i] = m.Connect(context.Background())
		}(i)
	}
	started.Wait()
	time.Sleep(20 * time.Millisecond)
	close(d.gate)
	wg.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Same(t, pools[0], pools[i])
	}
	assert.Equal(t, 1, d.callCount())
}

func TestConnect_ProbeFailureDiscardsPool(t *testing.T) {
	pingErr := errors.New("server closed the connection unexpectedly")
	d := &countingDialer{next: func() *fakePool { return &fakePool{pingErr: pingErr} }}

	var statuses []Status
	m := NewConnectionManager(testConfig(),
		WithDialer(d.dial),
		WithStatusListener(func(s Status) { statuses = append(statuses, s) }),
	)

	pool, err := m.Connect(context.Background())
	require.Error(t, err)
	assert.Nil(t, pool)
	assert.ErrorIs(t, err, ErrConnection)
	assert.ErrorIs(t, err, pingErr)
	assert.Contains(t, err.Error(), "server closed the connection unexpectedly")

	assert.Nil(t, m.Pool())
	assert.Equal(t, StateDisconnected, m.State())
	assert.True(t, d.pools[0].closed.Load(), "a pool that fails its probe is closed")

	require.Len(t, statuses, 1)
	assert.Equal(t, StateDisconnected, statuses[0].State)
	assert.Error(t, statuses[0].Err)

	// A later attempt dials again.
	_, err = m.Connect(context.Background())
	require.Error(t, err)
	assert.Equal(t, 2, d.callCount())
}

func TestConnect_DialFailureIsConnectionError(t *testing.T) {
	d := &countingDialer{err: errors.New("dial tcp 10.0.0.1:5432: connect: connection refused")}
	m := NewConnectionManager(testConfig(), WithDialer(d.dial))

	_, err := m.Connect(context.Background())
	require.Error(t, err)
	assert.Equal(t, KindConnection, KindOf(err))
	assert.Contains(t, err.Error(), "connection refused")
	assert.Nil(t, m.Pool())
}

func TestConnect_InvalidConfigNeverDials(t *testing.T) {
	cfg := testConfig()
	cfg.Host = ""
	cfg.Port = 0
	d := &countingDialer{}
	m := NewConnectionManager(cfg, WithDialer(d.dial))

	_, err := m.Connect(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConfiguration)
	assert.Contains(t, err.Error(), "host is required")
	assert.Contains(t, err.Error(), "port 0 out of range")
	assert.Zero(t, d.callCount())
}

func TestConnect_ProbeOnReuseRebuildsDeadPool(t *testing.T) {
	cfg := testConfig()
	cfg.ProbeOnReuse = true
	d := &countingDialer{}
	m := NewConnectionManager(cfg, WithDialer(d.dial))

	first, err := m.Connect(context.Background())
	require.NoError(t, err)

	// Healthy pool is reused after a ping.
	again, err := m.Connect(context.Background())
	require.NoError(t, err)
	assert.Same(t, first, again)
	assert.Equal(t, int32(2), d.pools[0].pings.Load())

	d.pools[0].pingErr = errors.New("connection reset by peer")
	second, err := m.Connect(context.Background())
	require.NoError(t, err)
	assert.NotSame(t, first, second)
	assert.True(t, d.pools[0].closed.Load())
	assert.Equal(t, 2, d.callCount())
}

func TestConnect_CallerCancellation(t *testing.T) {
	d := &countingDialer{gate: make(chan struct{})}
	defer close(d.gate)
	m := NewConnectionManager(testConfig(), WithDialer(d.dial))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := m.Connect(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestConnect_ProbeOnReuseKeepsPoolWhenCallerGivesUp(t *testing.T) {
	cfg := testConfig()
	cfg.ProbeOnReuse = true
	d := &countingDialer{}
	m := NewConnectionManager(cfg, WithDialer(d.dial))

	first, err := m.Connect(context.Background())
	require.NoError(t, err)

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = m.Connect(cancelled)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConnection)
	assert.ErrorIs(t, err, context.Canceled)

	expired, cancelExpired := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancelExpired()
	_, err = m.Connect(expired)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTimeout)

	assert.False(t, d.pools[0].closed.Load(), "a healthy pool survives callers that gave up")
	assert.Same(t, first, m.Pool())
	assert.Equal(t, 1, d.callCount())
}

func TestConnect_WaiterCancellationIsConnectionError(t *testing.T) {
	d := &countingDialer{gate: make(chan struct{})}
	defer close(d.gate)
	m := NewConnectionManager(testConfig(), WithDialer(d.dial))

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(10*time.Millisecond, cancel)

	_, err := m.Connect(ctx)
	require.Error(t, err)
	assert.Equal(t, KindConnection, KindOf(err))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDisconnect(t *testing.T) {
	t.Run("no-op while disconnected", func(t *testing.T) {
		m := NewConnectionManager(testConfig())
		assert.NotPanics(t, m.Disconnect)
		assert.NotPanics(t, m.Disconnect)
		assert.Equal(t, StateDisconnected, m.State())
	})

	t.Run("closes and allows reconnect", func(t *testing.T) {
		var statuses []Status
		d := &countingDialer{}
		m := NewConnectionManager(testConfig(),
			WithDialer(d.dial),
			WithLogger(zaptest.NewLogger(t)),
			WithStatusListener(func(s Status) { statuses = append(statuses, s) }),
		)

		_, err := m.Connect(context.Background())
		require.NoError(t, err)
		m.Disconnect()

		assert.True(t, d.pools[0].closed.Load())
		assert.Nil(t, m.Pool())
		assert.Equal(t, StateDisconnected, m.State())

		_, err = m.Connect(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 2, d.callCount())

		require.Len(t, statuses, 3)
		assert.Equal(t, StateConnected, statuses[0].State)
		assert.Equal(t, StateDisconnected, statuses[1].State)
		assert.NoError(t, statuses[1].Err)
		assert.Equal(t, StateConnected, statuses[2].State)
		assert.Equal(t, "localhost:5432", statuses[0].Address)
		assert.Equal(t, "testdb", statuses[0].Database)
	})
}

func TestDisconnect_DuringEstablishmentDoesNotLeakPool(t *testing.T) {
	d := &countingDialer{gate: make(chan struct{})}
	m := NewConnectionManager(testConfig(), WithDialer(d.dial))

	errCh := make(chan error, 1)
	go func() {
		_, err := m.Connect(context.Background())
		errCh <- err
	}()

	time.Sleep(20 * time.Millisecond)
	m.Disconnect()
	close(d.gate)

	err := <-errCh
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConnection)
	assert.Nil(t, m.Pool())
	require.Len(t, d.pools, 1)
	assert.True(t, d.pools[0].closed.Load())
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "disconnected", StateDisconnected.String())
	assert.Equal(t, "connected", StateConnected.String())
	assert.Equal(t, "unknown", State(42).String())
}
