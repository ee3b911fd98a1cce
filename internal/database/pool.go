package database

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/vyrodovalexey/items-service/internal/config"
)

// Pool is a bounded pgx connection pool. Each borrowed connection runs one
// statement at a time.
type Pool struct {
	*pgxpool.Pool
	logger    *zap.Logger
	collector prometheus.Collector
}

var _ Handle = (*Pool)(nil)

func connectPool(
	ctx context.Context,
	cfg config.DatabaseConfig,
	tracer pgx.QueryTracer,
	withMetrics bool,
	logger *zap.Logger,
) (*Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parsing connection string: %w", err)
	}
	poolCfg.ConnConfig.Tracer = tracer
	poolCfg.MaxConns = clampInt32(cfg.MaxConns)

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	p := &Pool{
		Pool:   pool,
		logger: logger.With(zap.String("component", "pool")),
	}

	if withMetrics {
		p.registerCollector()
	}

	return p, nil
}

// Close unregisters the pool metrics and closes every connection.
func (p *Pool) Close() {
	if p.collector != nil {
		prometheus.Unregister(p.collector)
	}

	p.logger.Info("closing database connection pool")
	p.Pool.Close()
}

func (p *Pool) registerCollector() {
	collector := newPoolCollector(p.Pool)
	if err := prometheus.Register(collector); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			p.logger.Warn("pool metrics already registered")
			return
		}
		p.logger.Warn("failed to register pool metrics", zap.Error(err))
		return
	}
	p.collector = collector
}

func clampInt32(n int) int32 {
	if n > math.MaxInt32 {
		return math.MaxInt32
	}
	return int32(n)
}

// poolCollector exports pgxpool statistics at scrape time.
type poolCollector struct {
	stat     func() *pgxpool.Stat
	acquired *prometheus.Desc
	idle     *prometheus.Desc
	total    *prometheus.Desc
	max      *prometheus.Desc
}

func newPoolCollector(pool *pgxpool.Pool) *poolCollector {
	return &poolCollector{
		stat: pool.Stat,
		acquired: prometheus.NewDesc("db_pool_acquired_conns",
			"Number of connections currently checked out of the pool", nil, nil),
		idle: prometheus.NewDesc("db_pool_idle_conns",
			"Number of idle connections in the pool", nil, nil),
		total: prometheus.NewDesc("db_pool_total_conns",
			"Total number of connections in the pool", nil, nil),
		max: prometheus.NewDesc("db_pool_max_conns",
			"Maximum size of the pool", nil, nil),
	}
}

func (c *poolCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.acquired
	ch <- c.idle
	ch <- c.total
	ch <- c.max
}

func (c *poolCollector) Collect(ch chan<- prometheus.Metric) {
	s := c.stat()
	ch <- prometheus.MustNewConstMetric(c.acquired, prometheus.GaugeValue, float64(s.AcquiredConns()))
	ch <- prometheus.MustNewConstMetric(c.idle, prometheus.GaugeValue, float64(s.IdleConns()))
	ch <- prometheus.MustNewConstMetric(c.total, prometheus.GaugeValue, float64(s.TotalConns()))
	ch <- prometheus.MustNewConstMetric(c.max, prometheus.GaugeValue, float64(s.MaxConns()))
}
