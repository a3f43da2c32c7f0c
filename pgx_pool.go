package livequery

import (
	"context"
	"errors"

	"github.com/jackc/pgx"
)

var errNoTransaction = errors.New("no transaction in progress")

// PgxPool adapts a pgx connection pool to Pool.
type PgxPool struct {
	pool *pgx.ConnPool
}

// NewPool wraps a pgx connection pool.
func NewPool(pool *pgx.ConnPool) *PgxPool {
	return &PgxPool{pool: pool}
}

// NewPoolFromConfig opens a pgx connection pool using the database settings.
func NewPoolFromConfig(config *DBConfig, maxConnections int) (*PgxPool, error) {
	pool, err := pgx.NewConnPool(pgx.ConnPoolConfig{
		ConnConfig:     config.ConnConfig(),
		MaxConnections: maxConnections,
	})
	if err != nil {
		return nil, err
	}
	return NewPool(pool), nil
}

// Acquire implements Pool. The pgx v3 pool blocks on its own acquire timeout,
// so ctx is only checked before acquiring.
func (p *PgxPool) Acquire(ctx context.Context) (Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	conn, err := p.pool.Acquire()
	if err != nil {
		return nil, err
	}
	return &pgxConn{pool: p.pool, conn: conn}, nil
}

// Close closes every connection in the pool.
func (p *PgxPool) Close() {
	p.pool.Close()
}

type pgxConn struct {
	pool *pgx.ConnPool
	conn *pgx.Conn
	tx   *pgx.Tx
}

func (c *pgxConn) Begin(ctx context.Context) error {
	tx, err := c.conn.BeginEx(ctx, nil)
	if err != nil {
		return err
	}
	c.tx = tx
	return nil
}

func (c *pgxConn) Commit(ctx context.Context) error {
	if c.tx == nil {
		return errNoTransaction
	}
	tx := c.tx
	c.tx = nil
	return tx.CommitEx(ctx)
}

func (c *pgxConn) Rollback(ctx context.Context) error {
	if c.tx == nil {
		return errNoTransaction
	}
	tx := c.tx
	c.tx = nil
	return tx.RollbackEx(ctx)
}

func (c *pgxConn) QueryJSON(ctx context.Context, sql string, args ...interface{}) ([][]byte, error) {
	var (
		rows *pgx.Rows
		err  error
	)
	if c.tx != nil {
		rows, err = c.tx.QueryEx(ctx, sql, nil, args...)
	} else {
		rows, err = c.conn.QueryEx(ctx, sql, nil, args...)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var values [][]byte
	for rows.Next() {
		var v []byte
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		values = append(values, v)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return values, nil
}

// Listen issues LISTEN on the connection. Inside a transaction it takes effect
// when the transaction commits.
func (c *pgxConn) Listen(_ context.Context, channel string) error {
	return c.conn.Listen(channel)
}

func (c *pgxConn) Unlisten(_ context.Context, channel string) error {
	return c.conn.Unlisten(channel)
}

func (c *pgxConn) WaitForNotification(ctx context.Context) (*Notification, error) {
	n, err := c.conn.WaitForNotification(ctx)
	if err != nil {
		return nil, err
	}
	return &Notification{Channel: n.Channel, Payload: n.Payload}, nil
}

// Release returns the connection to the pool. pgx drops connections that are
// no longer alive, so an unhealthy connection is closed first.
func (c *pgxConn) Release(unhealthy bool) {
	if unhealthy {
		_ = c.conn.Close()
	}
	c.pool.Release(c.conn)
}
