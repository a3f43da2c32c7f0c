package cli

import (
	"context"
	"errors"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/perangel/livequery"
)

// Flags
var (
	dbHost         string
	dbPort         int
	dbName         string
	dbUser         string
	dbPass         string
	channel        string
	queriesPath    string
	tables         []string
	outputFormat   string
	metricsAddr    string
	maxConnections int
	logLevel       string
)

func init() {
	LiveQueryCmd.PersistentFlags().StringVarP(&logLevel, "log-level", "L", "", "log level")
	LiveQueryCmd.PersistentFlags().StringVarP(&dbHost, "db-host", "H", "", "database host")
	LiveQueryCmd.PersistentFlags().IntVarP(&dbPort, "db-port", "p", 0, "database port")
	LiveQueryCmd.PersistentFlags().StringVarP(&dbName, "db-name", "d", "", "database name")
	LiveQueryCmd.PersistentFlags().StringVarP(&dbUser, "db-user", "U", "", "database user")
	LiveQueryCmd.PersistentFlags().StringVarP(&dbPass, "db-pass", "P", "", "database password")
	LiveQueryCmd.PersistentFlags().StringVarP(&channel, "channel", "c", "", "notification channel")
	LiveQueryCmd.PersistentFlags().SortFlags = false

	watchCmd.Flags().StringVarP(&queriesPath, "queries", "q", "", "TOML file listing the queries to watch")
	watchCmd.Flags().StringSliceVarP(&tables, "table", "t", nil, "tables to watch without a filter")
	watchCmd.Flags().StringVarP(&outputFormat, "format", "f", "", "output format, json or msgpack")
	watchCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	watchCmd.Flags().IntVar(&maxConnections, "max-connections", 0, "connection pool size")
	watchCmd.Flags().SortFlags = false

	LiveQueryCmd.AddCommand(
		watchCmd,
		setupDBCmd,
		teardownDBCmd,
	)
}

// LiveQueryCmd is the root command.
var LiveQueryCmd = &cobra.Command{
	Use:          "livequery",
	Short:        "Live queries over Postgres",
	SilenceUsage: true,
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch live queries",
	Long: `Watch live queries against a Postgres database.

Each query emits its current rows once, then every change to a matching row as
it is committed. Events are written to stdout, one per line.

The database must publish row changes on the notification channel, see 'setup-db'.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		config, err := parseConfig()
		if err != nil {
			return err
		}

		lvl, err := livequery.ParseLogLevel(config.LogLevel)
		if err != nil {
			return err
		}
		logger := log.New()
		logger.SetFormatter(&log.JSONFormatter{})
		logger.SetLevel(lvl)

		queries, err := loadQueries(config.QueriesFile, tables)
		if err != nil {
			return err
		}

		enc, err := newEncoder(config.OutputFormat, os.Stdout)
		if err != nil {
			return err
		}

		pool, err := livequery.NewPoolFromConfig(&config.Database, config.MaxConnections)
		if err != nil {
			return err
		}
		defer pool.Close()

		opts := []livequery.Option{livequery.WithLogger(logger)}
		if config.MetricsAddr != "" {
			reg := prometheus.NewRegistry()
			metrics, err := livequery.NewMetrics(reg)
			if err != nil {
				return err
			}
			opts = append(opts, livequery.WithMetrics(metrics))

			srv := serveMetrics(config.MetricsAddr, reg, logger)
			defer srv.Close()
		}

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		return watch(ctx, livequery.Open(ctx, pool, config.Channel, queries, opts...), enc)
	},
}

type eventSource interface {
	Next(ctx context.Context) (livequery.Event, error)
	Close() error
}

// watch writes events until the stream ends or ctx is done.
func watch(ctx context.Context, stream eventSource, enc encoder) error {
	defer stream.Close()

	for {
		ev, err := stream.Next(ctx)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return stream.Close()
			}
			return err
		}

		if err := enc.Encode(newRecord(ev)); err != nil {
			return err
		}
	}
}
