package livequery

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"
)

// notifyListener receives notifications on a stream's dedicated connection and
// hands the events they produce to emit. It holds only what routing needs.
type notifyListener struct {
	channel string
	queries []Query
	emit    func([]Event)
	logger  *log.Entry
	metrics *Metrics
}

func newNotifyListener(channel string, queries []Query, emit func([]Event), logger *log.Entry, metrics *Metrics) *notifyListener {
	return &notifyListener{
		channel: channel,
		queries: queries,
		emit:    emit,
		logger:  logger.WithField("component", "listener"),
		metrics: metrics,
	}
}

// listen subscribes conn to the channel. Issued inside the setup transaction,
// it takes effect on commit; notifications arriving before receive starts are
// buffered by the connection.
func (l *notifyListener) listen(ctx context.Context, conn Conn) error {
	if err := conn.Listen(ctx, l.channel); err != nil {
		return fmt.Errorf("failed to listen on channel %q: %w", l.channel, err)
	}
	return nil
}

// unlisten drops the subscription. It runs on every teardown, so it must not
// depend on the setup transaction having committed.
func (l *notifyListener) unlisten(conn Conn) error {
	if err := conn.Unlisten(context.Background(), l.channel); err != nil {
		return fmt.Errorf("failed to unlisten channel %q: %w", l.channel, err)
	}
	return nil
}

// receive handles notifications until ctx is done or the connection fails.
// A connection failure is returned wrapped in ErrConnectionLost.
func (l *notifyListener) receive(ctx context.Context, conn Conn) error {
	for {
		msg, err := conn.WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			l.logger.WithError(err).Error("encountered an error while waiting for notifications")
			return fmt.Errorf("%w: %w", ErrConnectionLost, err)
		}

		l.handle(msg)
	}
}

func (l *notifyListener) handle(msg *Notification) {
	// the connection may be listening on other channels
	if msg.Channel != l.channel {
		return
	}
	l.metrics.notificationReceived()

	change, err := ParseChange(msg.Payload)
	if err != nil {
		l.metrics.notificationDropped()
		l.logger.WithError(err).Debug("dropping malformed notification payload")
		return
	}

	l.logger.Debugf("handle: change %s", change)
	if events := dispatch(change, l.queries); len(events) > 0 {
		l.emit(events)
	}
}
