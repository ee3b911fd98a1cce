package database

import (
	"context"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/tracelog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/vyrodovalexey/items-service/internal/logging"
)

// Query metrics.
var (
	dbQueriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "db_queries_total",
			Help: "Total number of SQL statements executed",
		},
		[]string{"operation", "status"},
	)

	dbQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "db_query_duration_seconds",
			Help:    "SQL statement duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)
)

// newTracer chains SQL logging and query metrics.
func newTracer(logger *zap.Logger) pgx.QueryTracer {
	return &multiTracer{
		tracers: []pgx.QueryTracer{
			&tracelog.TraceLog{
				Logger:   zapTraceLogger(logger.With(zap.String("component", "pgx"))),
				LogLevel: tracelog.LogLevelInfo,
			},
			&metricsTracer{},
		},
	}
}

// multiTracer fans pgx query hooks out to several tracers. pgx accepts a
// single tracer per connection config.
type multiTracer struct {
	tracers []pgx.QueryTracer
}

func (mt *multiTracer) TraceQueryStart(ctx context.Context, conn *pgx.Conn, data pgx.TraceQueryStartData) context.Context {
	for _, t := range mt.tracers {
		ctx = t.TraceQueryStart(ctx, conn, data)
	}
	return ctx
}

func (mt *multiTracer) TraceQueryEnd(ctx context.Context, conn *pgx.Conn, data pgx.TraceQueryEndData) {
	for _, t := range mt.tracers {
		t.TraceQueryEnd(ctx, conn, data)
	}
}

type queryStartKey struct{}

type queryStart struct {
	operation string
	at        time.Time
}

// metricsTracer records db_queries_total and db_query_duration_seconds.
type metricsTracer struct{}

func (metricsTracer) TraceQueryStart(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryStartData) context.Context {
	return context.WithValue(ctx, queryStartKey{}, queryStart{
		operation: operationLabel(data.SQL),
		at:        time.Now(),
	})
}

func (metricsTracer) TraceQueryEnd(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryEndData) {
	start, ok := ctx.Value(queryStartKey{}).(queryStart)
	if !ok {
		return
	}

	status := "ok"
	if data.Err != nil {
		status = "error"
	}

	dbQueriesTotal.WithLabelValues(start.operation, status).Inc()
	dbQueryDuration.WithLabelValues(start.operation).Observe(time.Since(start.at).Seconds())
}

// operationLabel reduces a statement to its leading keyword to keep label
// cardinality fixed.
func operationLabel(sql string) string {
	fields := strings.Fields(sql)
	if len(fields) == 0 {
		return "other"
	}

	switch op := strings.ToLower(fields[0]); op {
	case "select", "insert", "update", "delete", "with":
		return op
	default:
		return "other"
	}
}

// zapTraceLogger routes pgx trace output to zap, tagged with the request ID
// of the statement's context. Statement logs are emitted at debug so they
// only show up with APP_LOG_LEVEL=debug.
func zapTraceLogger(logger *zap.Logger) tracelog.Logger {
	return tracelog.LoggerFunc(func(ctx context.Context, level tracelog.LogLevel, msg string, data map[string]any) {
		zapLevel := traceLevelToZap(level)
		if !logger.Core().Enabled(zapLevel) {
			return
		}

		fields := make([]zap.Field, 0, len(data))
		for k, v := range data {
			fields = append(fields, zap.Any(k, v))
		}

		if ce := logging.WithContext(ctx, logger).Check(zapLevel, msg); ce != nil {
			ce.Write(fields...)
		}
	})
}

func traceLevelToZap(level tracelog.LogLevel) zapcore.Level {
	switch level {
	case tracelog.LogLevelError:
		return zapcore.ErrorLevel
	case tracelog.LogLevelWarn:
		return zapcore.WarnLevel
	default:
		return zapcore.DebugLevel
	}
}
