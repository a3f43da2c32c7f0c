package cli

import (
	"github.com/jackc/pgx"

	"github.com/perangel/livequery"
)

func parseConfig() (*livequery.Config, error) {
	config, err := livequery.NewConfigFromEnv()
	if err != nil {
		return nil, err
	}

	if dbHost != "" {
		config.Database.Host = dbHost
	}

	if dbPort != 0 {
		config.Database.Port = dbPort
	}

	if dbUser != "" {
		config.Database.User = dbUser
	}

	if dbPass != "" {
		config.Database.Password = dbPass
	}

	if dbName != "" {
		config.Database.Database = dbName
	}

	if channel != "" {
		config.Channel = channel
	}

	if queriesPath != "" {
		config.QueriesFile = queriesPath
	}

	if outputFormat != "" {
		config.OutputFormat = outputFormat
	}

	if metricsAddr != "" {
		config.MetricsAddr = metricsAddr
	}

	if maxConnections != 0 {
		config.MaxConnections = maxConnections
	}

	if logLevel != "" {
		config.LogLevel = logLevel
	}

	return config, err
}

func connect(config *livequery.Config) (*pgx.Conn, error) {
	return pgx.Connect(config.Database.ConnConfig())
}
