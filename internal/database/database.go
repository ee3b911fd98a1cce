// Package database owns the connection handle to PostgreSQL.
//
// Two handle modes exist. SerialConn, the default, keeps a single pgx
// connection and runs one statement at a time on it. Pool borrows
// connections from a bounded pgxpool so concurrent requests do not queue
// behind each other. Both modes
// trace every statement into zap and Prometheus.
package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/vyrodovalexey/items-service/internal/config"
)

// Connection errors.
var (
	// ErrConnection is returned by Connect when the store cannot be reached
	// or rejects the credentials.
	ErrConnection = errors.New("database connection failed")

	// ErrConnectionLost is returned by every operation on a single-mode
	// handle once its connection has died or the handle was closed.
	ErrConnectionLost = errors.New("database connection lost")
)

// Querier is the statement surface shared by *pgx.Conn, *pgxpool.Pool and
// both handle modes.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Handle is a live session to the store.
type Handle interface {
	Querier
	Ping(ctx context.Context) error
	Close()
}

// Connect opens a handle according to cfg.Database.Mode and verifies it with
// a ping. The whole attempt is bounded by cfg.Database.ConnectTimeout and is
// never retried.
func Connect(ctx context.Context, cfg *config.Config, logger *zap.Logger) (Handle, error) {
	dbCfg := cfg.Database
	tracer := newTracer(logger)

	connectCtx, cancel := context.WithTimeout(ctx, dbCfg.ConnectTimeout)
	defer cancel()

	var (
		handle Handle
		err    error
	)
	switch dbCfg.Mode {
	case config.DBModePool:
		handle, err = connectPool(connectCtx, dbCfg, tracer, cfg.MetricsEnabled, logger)
	default:
		handle, err = connectSingle(connectCtx, dbCfg, tracer, logger)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnection, err)
	}

	logger.Info("connected to the database",
		zap.String("mode", dbCfg.Mode),
		zap.Int("max_conns", dbCfg.MaxConns),
	)

	return handle, nil
}
