package livequery

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

var (
	// ErrConnectionLost is returned when the stream's connection fails while
	// waiting for notifications.
	ErrConnectionLost = errors.New("connection lost")
	// ErrInvalidQuery is returned when a query has no table or a malformed filter.
	ErrInvalidQuery = errors.New("invalid query")

	errEmptyChannel = errors.New("notification channel is required")
	errSetupAborted = errors.New("setup aborted")
)

// State is the lifecycle state of a Stream.
type State int

// State constants
const (
	StateIdle State = iota
	StateSettingUp
	StateActive
	StateTearingDown
	StateClosed
)

// String implements Stringer.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSettingUp:
		return "setting-up"
	case StateActive:
		return "active"
	case StateTearingDown:
		return "tearing-down"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Stream is a live query over one or more tables. It emits one initial event
// per query, in query order, followed by change events as matching rows are
// inserted, updated or deleted.
//
// The stream starts on the first call to Next. It holds one connection from
// the pool until it ends. Events are buffered in memory until consumed; the
// buffer is unbounded because notifications cannot be paused, so a consumer
// that falls behind grows it.
type Stream struct {
	pool    Pool
	channel string
	queries []Query

	logger   *logrus.Logger
	log      *logrus.Entry
	metrics  *Metrics
	listener *notifyListener

	ctx       context.Context
	cancel    context.CancelFunc
	startOnce sync.Once
	ready     chan struct{}
	done      chan struct{}

	mu       sync.Mutex
	state    State
	queue    []Event
	err      error
	closing  bool
	reported bool
}

// Open returns a Stream of the rows selected by queries, listening for changes
// on channel. Nothing touches the database until the first call to Next.
// Cancelling ctx closes the stream.
func Open(ctx context.Context, pool Pool, channel string, queries []Query, opts ...Option) *Stream {
	s := &Stream{
		pool:    pool,
		channel: channel,
		queries: append([]Query(nil), queries...),
		logger:  logrus.New(),
		ready:   make(chan struct{}, 1),
		done:    make(chan struct{}),
	}

	for _, opt := range opts {
		opt(s)
	}

	s.ctx, s.cancel = context.WithCancel(ctx)
	s.log = s.logger.WithFields(logrus.Fields{
		"component": "stream",
		"stream_id": uuid.New().String(),
		"channel":   channel,
	})

	return s
}

// Next returns the next event. It blocks until an event is available, the
// stream ends or ctx is done. At the end of a stream Next returns the error
// that terminated it once, and io.EOF afterwards.
func (s *Stream) Next(ctx context.Context) (Event, error) {
	s.start()

	for {
		s.mu.Lock()
		if len(s.queue) > 0 {
			ev := s.queue[0]
			s.queue[0] = Event{}
			s.queue = s.queue[1:]
			s.mu.Unlock()
			return ev, nil
		}
		if s.state == StateClosed {
			defer s.mu.Unlock()
			if s.err != nil && !s.reported && !s.closing {
				s.reported = true
				return Event{}, s.err
			}
			return Event{}, io.EOF
		}
		s.mu.Unlock()

		select {
		case <-s.ready:
		case <-s.done:
		case <-ctx.Done():
			return Event{}, ctx.Err()
		}
	}
}

// Close ends the stream and waits for its connection to be released. Buffered
// events are discarded. Close returns the error that terminated the stream if
// it was not already returned by Next; calling Close again returns nil.
func (s *Stream) Close() error {
	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		<-s.done
		return nil
	}
	s.closing = true
	s.queue = nil
	if s.state == StateIdle {
		s.state = StateClosed
		s.mu.Unlock()
		s.cancel()
		close(s.done)
		s.log.Debug("closed before start")
		return nil
	}
	s.mu.Unlock()

	s.cancel()
	<-s.done

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.reported {
		return nil
	}
	s.reported = true
	return s.err
}

// State returns the current lifecycle state.
func (s *Stream) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Err returns the error that terminated the stream, if any.
func (s *Stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *Stream) start() {
	s.startOnce.Do(func() {
		s.mu.Lock()
		if s.state != StateIdle {
			s.mu.Unlock()
			return
		}
		s.state = StateSettingUp
		s.mu.Unlock()

		go s.run()
	})
}

// run owns the connection: setup, receiving and teardown all happen here so
// the connection is never used concurrently.
func (s *Stream) run() {
	s.log.Debug("setting up stream")

	conn, cause := s.setup(s.ctx)
	if cause == nil {
		s.setState(StateActive)
		s.log.Info("stream active")
		cause = s.listener.receive(s.ctx, conn)
	}

	if cause != nil && s.ctx.Err() != nil {
		// Interrupted by Close or the parent context; not a fault.
		s.log.WithError(cause).Debug("stream interrupted")
		cause = nil
	}

	s.teardown(conn, cause)
}

func (s *Stream) setup(ctx context.Context) (Conn, error) {
	if s.channel == "" {
		return nil, errEmptyChannel
	}
	for _, q := range s.queries {
		if err := q.validate(); err != nil {
			return nil, err
		}
	}

	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire connection: %w", err)
	}
	s.metrics.streamAcquired()

	s.listener = newNotifyListener(s.channel, s.queries, s.push, s.log, s.metrics)

	if err := conn.Begin(ctx); err != nil {
		return conn, fmt.Errorf("failed to begin setup transaction: %w", err)
	}

	if err := s.snapshot(ctx, conn); err != nil {
		if rbErr := conn.Rollback(context.Background()); rbErr != nil {
			s.log.WithError(rbErr).Warn("failed to roll back setup transaction")
		}
		return conn, err
	}

	return conn, nil
}

// snapshot emits one initial event per query, then subscribes and commits. The
// subscription is made inside the snapshot transaction so every change
// committed after it is observed.
func (s *Stream) snapshot(ctx context.Context, conn Conn) error {
	for _, q := range s.queries {
		if ctx.Err() != nil {
			return errSetupAborted
		}

		rows, err := fetchSnapshot(ctx, conn, q)
		if err != nil {
			return err
		}

		s.log.WithField("table", q.Row.String()).Debugf("snapshot: %d rows", len(rows))
		s.push([]Event{{Type: EventTypeInitial, Query: q, Rows: rows}})
	}

	if err := s.listener.listen(ctx, conn); err != nil {
		return err
	}

	if err := conn.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit setup transaction: %w", err)
	}

	return nil
}

// teardown runs at most once, from run. Every step runs even if an earlier one
// fails, and cause takes priority over errors raised here.
func (s *Stream) teardown(conn Conn, cause error) {
	s.setState(StateTearingDown)

	unhealthy := cause != nil
	var teardownErr error
	if conn != nil {
		if err := s.listener.unlisten(conn); err != nil {
			teardownErr = err
			unhealthy = true
		}
		conn.Release(unhealthy)
		s.metrics.streamReleased()
	}

	err := cause
	if err == nil {
		err = teardownErr
	} else if teardownErr != nil {
		s.log.WithError(teardownErr).Debug("suppressed teardown error")
	}

	if err != nil {
		s.log.WithError(err).Error("stream terminated")
	} else {
		s.log.Info("stream closed")
	}

	s.mu.Lock()
	s.state = StateClosed
	s.err = err
	if s.closing {
		s.queue = nil
	}
	s.mu.Unlock()

	s.signal()
	close(s.done)
}

// push buffers events for the consumer. Events pushed after Close are dropped.
func (s *Stream) push(events []Event) {
	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		return
	}
	for _, ev := range events {
		s.metrics.eventEmitted(ev.Type)
	}
	s.queue = append(s.queue, events...)
	s.mu.Unlock()

	s.signal()
}

func (s *Stream) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

func (s *Stream) signal() {
	select {
	case s.ready <- struct{}{}:
	default:
	}
}
