package livequery

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx"
	"github.com/kelseyhightower/envconfig"
	"github.com/sirupsen/logrus"
)

// DBConfig is a struct that stores database connection settings.
type DBConfig struct {
	Host     string `envconfig:"DB_HOST" default:"localhost"`
	Port     int    `envconfig:"DB_PORT" default:"5432"`
	User     string `envconfig:"DB_USER"`
	Password string `envconfig:"DB_PASS"`
	Database string `envconfig:"DB_NAME"`
}

// ConnConfig returns the pgx connection settings.
func (c DBConfig) ConnConfig() pgx.ConnConfig {
	return pgx.ConnConfig{
		Host:     c.Host,
		Port:     uint16(c.Port),
		User:     c.User,
		Password: c.Password,
		Database: c.Database,
	}
}

// Config is a struct that stores live query configuration settings.
type Config struct {
	// Database configuration settings.
	Database DBConfig
	// Channel is the notification channel the database trigger publishes to.
	Channel string `envconfig:"CHANNEL" default:"livequery"`
	// QueriesFile is a TOML file listing the queries to watch.
	QueriesFile string `envconfig:"QUERIES_FILE"`
	// MaxConnections bounds the connection pool.
	MaxConnections int `envconfig:"MAX_CONNECTIONS" default:"4"`
	// OutputFormat is one of `json` or `msgpack`.
	OutputFormat string `envconfig:"OUTPUT_FORMAT" default:"json"`
	// If set, serve Prometheus metrics on this address.
	MetricsAddr string `envconfig:"METRICS_ADDR"`
	// Logging level
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
}

// NewConfigFromEnv returns a new Config initialized with values read from the environment.
func NewConfigFromEnv() (*Config, error) {
	var c Config
	err := envconfig.Process("lq", &c)
	if err != nil {
		return nil, errors.New("unable to parse configuration from environment")
	}
	return &c, nil
}

// ParseLogLevel parses a logrus level.
func ParseLogLevel(level string) (logrus.Level, error) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return 0, fmt.Errorf("Error: '%s' is not a valid log level. Must be one of: 'trace', 'debug', 'info', 'warn', 'error', 'fatal'", level)
	}
	return lvl, err
}
