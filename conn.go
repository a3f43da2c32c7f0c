package livequery

import "context"

// Notification is a message received on a LISTEN channel.
type Notification struct {
	Channel string
	Payload string
}

// Pool hands out dedicated connections. A Stream acquires exactly one
// connection and releases it exactly once.
type Pool interface {
	Acquire(ctx context.Context) (Conn, error)
}

// Conn is a single database connection. Implementations are not safe for
// concurrent use; a Stream sequences every call on one goroutine.
type Conn interface {
	Begin(ctx context.Context) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
	// QueryJSON runs a query returning a single JSON column and returns the
	// raw value of each row.
	QueryJSON(ctx context.Context, sql string, args ...interface{}) ([][]byte, error)
	Listen(ctx context.Context, channel string) error
	Unlisten(ctx context.Context, channel string) error
	WaitForNotification(ctx context.Context) (*Notification, error)
	// Release returns the connection to its pool. An unhealthy connection is
	// discarded instead of reused.
	Release(unhealthy bool)
}
