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
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "pgmcp"

var queryDurationBuckets = []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30}

// Metrics groups the query and connection metrics. A nil *Metrics records
// nothing, so components can be built without one.
type Metrics struct {
	queries       *prometheus.CounterVec
	queryDuration prometheus.Histogram
	connects      *prometheus.CounterVec
	connected     prometheus.Gauge
}

// NewMetrics creates the metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		queries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "queries_total",
			Help:      "Statements executed, by outcome (ok or error kind).",
		}, []string{"outcome"}),
		queryDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "query_duration_seconds",
			Help:      "Wall time of Execute calls including pool acquisition.",
			Buckets:   queryDurationBuckets,
		}),
		connects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "connect_attempts_total",
			Help:      "Pool establishment attempts, by result.",
		}, []string{"result"}),
		connected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "connected",
			Help:      "1 while a live pool is held, 0 otherwise.",
		}),
	}

	for _, c := range []prometheus.Collector{m.queries, m.queryDuration, m.connects, m.connected} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("register metric: %w", err)
		}
	}
	return m, nil
}

func (m *Metrics) observeQuery(err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = KindOf(err).String()
	}
	m.queries.WithLabelValues(outcome).Inc()
	m.queryDuration.Observe(elapsed.Seconds())
}

func (m *Metrics) observeConnect(err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.connects.WithLabelValues("failure").Inc()
		return
	}
	m.connects.WithLabelValues("success").Inc()
}

func (m *Metrics) setConnected(up bool) {
	if m == nil {
		return
	}
	if up {
		m.connected.Set(1)
		return
	}
	m.connected.Set(0)
}

// statPool is implemented by pools that expose pgxpool statistics.
type statPool interface {
	Stat() *pgxpool.Stat
}

var (
	poolAcquiredDesc = prometheus.NewDesc(metricsNamespace+"_pool_acquired_conns", "Connections currently leased.", nil, nil)
	poolIdleDesc     = prometheus.NewDesc(metricsNamespace+"_pool_idle_conns", "Idle connections.", nil, nil)
	poolTotalDesc    = prometheus.NewDesc(metricsNamespace+"_pool_total_conns", "Open connections.", nil, nil)
	poolMaxDesc      = prometheus.NewDesc(metricsNamespace+"_pool_max_conns", "Pool capacity.", nil, nil)
	poolWaitsDesc    = prometheus.NewDesc(metricsNamespace+"_pool_empty_acquire_total", "Acquires that had to wait for a connection.", nil, nil)
)

// PoolCollector exports statistics of the manager's current pool.
type PoolCollector struct {
	manager *ConnectionManager
}

// NewPoolCollector returns a collector reading the manager's pool on scrape.
func NewPoolCollector(manager *ConnectionManager) *PoolCollector {
	return &PoolCollector{manager: manager}
}

// Describe implements prometheus.Collector.
func (c *PoolCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- poolAcquiredDesc
	ch <- poolIdleDesc
	ch <- poolTotalDesc
	ch <- poolMaxDesc
	ch <- poolWaitsDesc
}

// Collect implements prometheus.Collector. Nothing is emitted while
// disconnected.
func (c *PoolCollector) Collect(ch chan<- prometheus.Metric) {
	sp, ok := c.manager.Pool().(statPool)
	if !ok {
		return
	}
	stat := sp.Stat()
	ch <- prometheus.MustNewConstMetric(poolAcquiredDesc, prometheus.GaugeValue, float64(stat.AcquiredConns()))
	ch <- prometheus.MustNewConstMetric(poolIdleDesc, prometheus.GaugeValue, float64(stat.IdleConns()))
	ch <- prometheus.MustNewConstMetric(poolTotalDesc, prometheus.GaugeValue, float64(stat.TotalConns()))
	ch <- prometheus.MustNewConstMetric(poolMaxDesc, prometheus.GaugeValue, float64(stat.MaxConns()))
	ch <- prometheus.MustNewConstMetric(poolWaitsDesc, prometheus.CounterValue, float64(stat.EmptyAcquireCount()))
}
