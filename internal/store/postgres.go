// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Turnia Contributors

// Package store holds the PostgreSQL plumbing shared by repositories: the
// connection pool, transactions carried in context, transient-error
// classification and schema migrations.
package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/samber/oops"
)

// Pool defaults. Production gets a larger ceiling.
const (
	DefaultMaxConnsProduction = 20
	DefaultMaxConns           = 10
	DefaultMinConns           = 2
	DefaultMaxConnIdleTime    = 30 * time.Second
	DefaultConnectTimeout     = 2 * time.Second
	DefaultStatementTimeout   = 30 * time.Second
	DefaultHealthCheckTimeout = 2 * time.Second
)

// PoolConfig configures NewPool. Zero values take the defaults.
type PoolConfig struct {
	URL              string
	Production       bool
	MaxConns         int32
	MinConns         int32
	MaxConnIdleTime  time.Duration
	ConnectTimeout   time.Duration
	StatementTimeout time.Duration
}

func (c PoolConfig) withDefaults() PoolConfig {
	if c.MaxConns <= 0 {
		c.MaxConns = DefaultMaxConns
		if c.Production {
			c.MaxConns = DefaultMaxConnsProduction
		}
	}
	if c.MinConns <= 0 {
		c.MinConns = DefaultMinConns
	}
	if c.MinConns > c.MaxConns {
		c.MinConns = c.MaxConns
	}
	if c.MaxConnIdleTime <= 0 {
		c.MaxConnIdleTime = DefaultMaxConnIdleTime
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}
	if c.StatementTimeout <= 0 {
		c.StatementTimeout = DefaultStatementTimeout
	}
	return c
}

// ParsePoolConfig turns a PoolConfig into a pgxpool config without connecting.
func ParsePoolConfig(cfg PoolConfig) (*pgxpool.Config, error) {
	if cfg.URL == "" {
		return nil, oops.Code("DB_URL_MISSING").Errorf("database url is required")
	}
	cfg = cfg.withDefaults()

	pc, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, oops.Code("DB_URL_INVALID").Wrap(err)
	}
	pc.MaxConns = cfg.MaxConns
	pc.MinConns = cfg.MinConns
	pc.MaxConnIdleTime = cfg.MaxConnIdleTime
	pc.ConnConfig.ConnectTimeout = cfg.ConnectTimeout
	if pc.ConnConfig.RuntimeParams == nil {
		pc.ConnConfig.RuntimeParams = map[string]string{}
	}
	pc.ConnConfig.RuntimeParams["statement_timeout"] = durationMillis(cfg.StatementTimeout)
	pc.ConnConfig.RuntimeParams["application_name"] = "turnia"
	return pc, nil
}

func durationMillis(d time.Duration) string {
	return (time.Duration(d.Milliseconds()) * time.Millisecond).String()
}

// NewPool connects a pgx pool and verifies it with a health check.
func NewPool(ctx context.Context, cfg PoolConfig) (*pgxpool.Pool, error) {
	pc, err := ParsePoolConfig(cfg)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, oops.Code("DB_CONNECT_FAILED").With("host", pc.ConnConfig.Host).Wrap(err)
	}
	if err := HealthCheck(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

// Pinger is the part of a pool HealthCheck needs.
type Pinger interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// HealthCheck runs SELECT 1 with a short timeout.
func HealthCheck(ctx context.Context, db Pinger) error {
	ctx, cancel := context.WithTimeout(ctx, DefaultHealthCheckTimeout)
	defer cancel()

	var one int
	if err := db.QueryRow(ctx, "SELECT 1").Scan(&one); err != nil {
		return oops.Code("DB_HEALTH_CHECK_FAILED").Wrap(err)
	}
	return nil
}

// BackendCount is the number of server backends of the current database in
// one pg_stat_activity state.
type BackendCount struct {
	State string `json:"state"`
	Count int64  `json:"count"`
}

// Backends groups the current database's server backends by state. Rows with
// no state (background workers) are reported as "unknown".
func Backends(ctx context.Context, db Querier) ([]BackendCount, error) {
	rows, err := db.Query(ctx, `
		SELECT coalesce(state, 'unknown'), count(*)
		FROM pg_stat_activity
		WHERE datname = current_database()
		GROUP BY 1
		ORDER BY 1
	`)
	if err != nil {
		return nil, oops.Code("DB_ACTIVITY_QUERY_FAILED").Wrap(err)
	}
	counts, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (BackendCount, error) {
		var c BackendCount
		err := row.Scan(&c.State, &c.Count)
		return c, err
	})
	if err != nil {
		return nil, oops.Code("DB_ACTIVITY_SCAN_FAILED").Wrap(err)
	}
	return counts, nil
}

// PoolStats is a snapshot of pool usage.
type PoolStats struct {
	TotalConns    int32 `json:"total_conns"`
	AcquiredConns int32 `json:"acquired_conns"`
	IdleConns     int32 `json:"idle_conns"`
	MaxConns      int32 `json:"max_conns"`
	AcquireCount  int64 `json:"acquire_count"`
	EmptyAcquire  int64 `json:"empty_acquire_count"`
}

// Stats returns a snapshot of the pool's counters.
func Stats(pool *pgxpool.Pool) PoolStats {
	s := pool.Stat()
	return PoolStats{
		TotalConns:    s.TotalConns(),
		AcquiredConns: s.AcquiredConns(),
		IdleConns:     s.IdleConns(),
		MaxConns:      s.MaxConns(),
		AcquireCount:  s.AcquireCount(),
		EmptyAcquire:  s.EmptyAcquireCount(),
	}
}

// PoolCollector exports pool statistics to Prometheus.
type PoolCollector struct {
	stats func() PoolStats

	total    *prometheus.Desc
	acquired *prometheus.Desc
	idle     *prometheus.Desc
	max      *prometheus.Desc
	acquires *prometheus.Desc
	empty    *prometheus.Desc
}

// NewPoolCollector creates a collector reading from stats on every scrape.
func NewPoolCollector(stats func() PoolStats) *PoolCollector {
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc("turnia_db_pool_"+name, help, nil, nil)
	}
	return &PoolCollector{
		stats:    stats,
		total:    desc("total_conns", "Connections currently open"),
		acquired: desc("acquired_conns", "Connections currently in use"),
		idle:     desc("idle_conns", "Connections currently idle"),
		max:      desc("max_conns", "Configured connection ceiling"),
		acquires: desc("acquires_total", "Successful connection acquisitions"),
		empty:    desc("empty_acquires_total", "Acquisitions that waited for a connection"),
	}
}

// Describe implements prometheus.Collector.
func (c *PoolCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.total
	ch <- c.acquired
	ch <- c.idle
	ch <- c.max
	ch <- c.acquires
	ch <- c.empty
}

// Collect implements prometheus.Collector.
func (c *PoolCollector) Collect(ch chan<- prometheus.Metric) {
	s := c.stats()
	ch <- prometheus.MustNewConstMetric(c.total, prometheus.GaugeValue, float64(s.TotalConns))
	ch <- prometheus.MustNewConstMetric(c.acquired, prometheus.GaugeValue, float64(s.AcquiredConns))
	ch <- prometheus.MustNewConstMetric(c.idle, prometheus.GaugeValue, float64(s.IdleConns))
	ch <- prometheus.MustNewConstMetric(c.max, prometheus.GaugeValue, float64(s.MaxConns))
	ch <- prometheus.MustNewConstMetric(c.acquires, prometheus.CounterValue, float64(s.AcquireCount))
	ch <- prometheus.MustNewConstMetric(c.empty, prometheus.CounterValue, float64(s.EmptyAcquire))
}
