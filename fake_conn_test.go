package livequery

import (
	"context"
	"errors"
	"sync"
)

var errFake = errors.New("fake failure")

type fakePool struct {
	conn       *fakeConn
	acquireErr error
	acquired   int
}

func (p *fakePool) Acquire(ctx context.Context) (Conn, error) {
	p.acquired++
	if p.acquireErr != nil {
		return nil, p.acquireErr
	}
	return p.conn, nil
}

type fakeQuery struct {
	sql  string
	args []interface{}
}

// fakeConn records every call. Snapshot results are returned in call order.
type fakeConn struct {
	mu      sync.Mutex
	calls   []string
	queries []fakeQuery

	results  [][]string
	fail     map[string]error
	blockOn  int // 1-based query index that blocks until ctx is done
	blocking chan struct{}

	notifications chan *Notification
	waitErr       chan error

	released     chan struct{}
	releaseCount int
	unhealthy    bool
}

func newFakeConn(results ...[]string) *fakeConn {
	return &fakeConn{
		results:       results,
		fail:          map[string]error{},
		blocking:      make(chan struct{}),
		notifications: make(chan *Notification, 16),
		waitErr:       make(chan error, 1),
		released:      make(chan struct{}),
	}
}

func (c *fakeConn) record(call string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, call)
	return c.fail[call]
}

func (c *fakeConn) Calls() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.calls...)
}

func (c *fakeConn) Queries() []fakeQuery {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]fakeQuery(nil), c.queries...)
}

func (c *fakeConn) Begin(ctx context.Context) error    { return c.record("begin") }
func (c *fakeConn) Commit(ctx context.Context) error   { return c.record("commit") }
func (c *fakeConn) Rollback(ctx context.Context) error { return c.record("rollback") }

func (c *fakeConn) QueryJSON(ctx context.Context, sql string, args ...interface{}) ([][]byte, error) {
	if err := c.record("query"); err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.queries = append(c.queries, fakeQuery{sql: sql, args: args})
	n := len(c.queries)
	c.mu.Unlock()

	if n == c.blockOn {
		close(c.blocking)
		<-ctx.Done()
		return nil, ctx.Err()
	}

	var values [][]byte
	if n <= len(c.results) {
		for _, r := range c.results[n-1] {
			values = append(values, []byte(r))
		}
	}
	return values, nil
}

func (c *fakeConn) Listen(ctx context.Context, channel string) error {
	return c.record("listen " + channel)
}

func (c *fakeConn) Unlisten(ctx context.Context, channel string) error {
	return c.record("unlisten " + channel)
}

func (c *fakeConn) WaitForNotification(ctx context.Context) (*Notification, error) {
	select {
	case n := <-c.notifications:
		return n, nil
	case err := <-c.waitErr:
		return nil, err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *fakeConn) Release(unhealthy bool) {
	c.mu.Lock()
	c.calls = append(c.calls, "release")
	c.releaseCount++
	c.unhealthy = unhealthy
	c.mu.Unlock()
	close(c.released)
}

func (c *fakeConn) notify(channel, payload string) {
	c.notifications <- &Notification{Channel: channel, Payload: payload}
}
