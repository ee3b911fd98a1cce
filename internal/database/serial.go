package database

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/vyrodovalexey/items-service/internal/config"
)

const closeTimeout = 5 * time.Second

// SerialConn is a single pgx connection shared by all requests.
//
// At most one statement is in flight at a time; a Query keeps the slot until
// its rows are closed. A statement that has been sent is never canceled, since
// pgx tears the connection down when a running query's context ends.
// A watcher goroutine pings the connection every keepalive interval and marks
// the handle lost when the connection is gone.
type SerialConn struct {
	conn   *pgx.Conn
	logger *zap.Logger

	// closed reports whether conn has been torn down.
	closed func() bool

	// sem is a one-slot semaphore guarding conn.
	sem chan struct{}

	lost     chan struct{}
	lostOnce sync.Once

	stopWatch context.CancelFunc
	watchDone chan struct{}
	closeOnce sync.Once
}

var _ Handle = (*SerialConn)(nil)

func connectSingle(
	ctx context.Context,
	cfg config.DatabaseConfig,
	tracer pgx.QueryTracer,
	logger *zap.Logger,
) (*SerialConn, error) {
	connCfg, err := pgx.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parsing connection string: %w", err)
	}
	connCfg.Tracer = tracer

	conn, err := pgx.ConnectConfig(ctx, connCfg)
	if err != nil {
		return nil, fmt.Errorf("connecting: %w", err)
	}

	if err := conn.Ping(ctx); err != nil {
		_ = conn.Close(context.Background())
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return newSerialConn(conn, cfg.Keepalive, logger), nil
}

func newSerialConn(conn *pgx.Conn, keepalive time.Duration, logger *zap.Logger) *SerialConn {
	watchCtx, stop := context.WithCancel(context.Background())

	c := &SerialConn{
		conn:      conn,
		closed:    conn.IsClosed,
		logger:    logger.With(zap.String("component", "serial_conn")),
		sem:       make(chan struct{}, 1),
		lost:      make(chan struct{}),
		stopWatch: stop,
		watchDone: make(chan struct{}),
	}

	go c.watch(watchCtx, keepalive)

	return c
}

// Exec runs a statement that returns no rows.
func (c *SerialConn) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if err := c.acquire(ctx); err != nil {
		return pgconn.CommandTag{}, err
	}
	defer c.release()

	tag, err := c.conn.Exec(context.WithoutCancel(ctx), sql, args...)
	if err != nil {
		return tag, c.checkLost(err)
	}

	return tag, nil
}

// Query runs a statement that returns rows. The connection stays reserved
// until the returned rows are closed.
func (c *SerialConn) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	if err := c.acquire(ctx); err != nil {
		return nil, err
	}

	rows, err := c.conn.Query(context.WithoutCancel(ctx), sql, args...)
	if err != nil {
		c.release()
		return nil, c.checkLost(err)
	}

	return &serialRows{Rows: rows, conn: c}, nil
}

// Ping checks the connection round trip.
func (c *SerialConn) Ping(ctx context.Context) error {
	if err := c.acquire(ctx); err != nil {
		return err
	}
	defer c.release()

	if err := c.conn.Ping(context.WithoutCancel(ctx)); err != nil {
		return c.checkLost(err)
	}

	return nil
}

// Close stops the watcher, waits for the in-flight statement and closes the
// connection. Later operations fail with ErrConnectionLost.
func (c *SerialConn) Close() {
	c.closeOnce.Do(func() {
		c.stopWatch()
		<-c.watchDone

		c.sem <- struct{}{}
		c.markLost()

		ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
		defer cancel()

		c.logger.Info("closing database connection")
		if err := c.conn.Close(ctx); err != nil {
			c.logger.Warn("error closing database connection", zap.Error(err))
		}
	})
}

// Lost is closed once the handle can no longer run statements.
func (c *SerialConn) Lost() <-chan struct{} {
	return c.lost
}

// acquire waits for the statement slot. Waiting can be abandoned through ctx.
func (c *SerialConn) acquire(ctx context.Context) error {
	select {
	case <-c.lost:
		return ErrConnectionLost
	default:
	}

	select {
	case c.sem <- struct{}{}:
	case <-c.lost:
		return ErrConnectionLost
	case <-ctx.Done():
		return fmt.Errorf("waiting for database connection: %w", ctx.Err())
	}

	select {
	case <-c.lost:
		c.release()
		return ErrConnectionLost
	default:
	}

	if c.closed() {
		c.markLost()
		c.release()
		return ErrConnectionLost
	}

	return nil
}

func (c *SerialConn) release() {
	<-c.sem
}

func (c *SerialConn) markLost() {
	c.lostOnce.Do(func() {
		close(c.lost)
	})
}

// checkLost tags err with ErrConnectionLost when the statement killed the
// connection. Must be called while holding the slot.
func (c *SerialConn) checkLost(err error) error {
	if c.closed() {
		c.markLost()
		c.logger.Error("database connection lost during statement", zap.Error(err))
		return fmt.Errorf("%w: %w", ErrConnectionLost, err)
	}
	return err
}

func (c *SerialConn) watch(ctx context.Context, interval time.Duration) {
	defer close(c.watchDone)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.lost:
			return
		case <-ticker.C:
			if err := c.probe(ctx); err != nil {
				c.logger.Error("database connection lost", zap.Error(err))
				c.markLost()
				return
			}
		}
	}
}

// probe pings the connection between statements. A ping interrupted by
// Close is not a loss.
func (c *SerialConn) probe(ctx context.Context) error {
	select {
	case c.sem <- struct{}{}:
	case <-ctx.Done():
		return nil
	}
	defer c.release()

	if c.closed() {
		return ErrConnectionLost
	}

	if err := c.conn.Ping(context.WithoutCancel(ctx)); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}

	return nil
}

// serialRows returns the statement slot when closed. An error met while
// reading the result is checked for a dead connection before the slot is
// given back.
type serialRows struct {
	pgx.Rows
	conn *SerialConn
	once sync.Once

	checked bool
	err     error
}

func (r *serialRows) Next() bool {
	if r.Rows.Next() {
		return true
	}
	r.check()
	return false
}

func (r *serialRows) Err() error {
	if r.checked {
		return r.err
	}
	return r.Rows.Err()
}

func (r *serialRows) Close() {
	r.Rows.Close()
	r.once.Do(func() {
		r.check()
		r.conn.release()
	})
}

func (r *serialRows) check() {
	if r.checked {
		return
	}
	r.checked = true

	if err := r.Rows.Err(); err != nil {
		r.err = r.conn.checkLost(err)
	}
}
