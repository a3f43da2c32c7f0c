package livequery

import (
	"github.com/sirupsen/logrus"
)

// Option is a Stream option function
type Option func(*Stream)

// WithLogger is an option for setting the logger streams write to.
func WithLogger(logger *logrus.Logger) Option {
	return func(s *Stream) {
		s.logger = logger
	}
}

// LogLevel is an option for setting the logging level.
func LogLevel(level string) Option {
	return func(s *Stream) {
		lvl, err := logrus.ParseLevel(level)
		if err != nil {
			s.logger.WithError(err).
				Warnf("'%s' is not a valid log level, defaulting to 'info'", level)
			lvl = logrus.InfoLevel
		}
		s.logger.SetLevel(lvl)
	}
}

// WithMetrics is an option for recording stream activity.
func WithMetrics(m *Metrics) Option {
	return func(s *Stream) {
		s.metrics = m
	}
}
