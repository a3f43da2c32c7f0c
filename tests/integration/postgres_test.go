package integration

import (
	"context"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/jackc/pgx"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/require"

	"github.com/perangel/livequery"
)

const (
	dbUser     = "test"
	dbPassword = "test"
	dbName     = "test"
)

func getFreePort() (int, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, err
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}

func waitForPostgresReady(config pgx.ConnConfig) bool {
	for count := 0; count < 30; count++ {
		conn, err := pgx.Connect(config)
		if err == nil {
			conn.Close()
			return true
		}
		time.Sleep(2 * time.Second)
	}
	return false
}

// startPostgres runs a throwaway postgres container and returns its settings
// once it accepts connections.
func startPostgres(t *testing.T, image string) livequery.DBConfig {
	t.Helper()
	ctx := context.Background()

	docker, err := newDockerClient()
	require.NoError(t, err)

	hostPort, err := getFreePort()
	require.NoError(t, err)

	id, err := docker.start(ctx, containerSpec{
		image: image,
		env: []string{
			fmt.Sprintf("POSTGRES_DB=%s", dbName),
			fmt.Sprintf("POSTGRES_USER=%s", dbUser),
			fmt.Sprintf("POSTGRES_PASSWORD=%s", dbPassword),
		},
		cmd:           []string{"postgres"},
		hostPort:      hostPort,
		containerPort: 5432,
	})
	require.NoError(t, err)

	t.Cleanup(func() {
		if t.Failed() {
			docker.dumpLogs(ctx, id)
		}
		if err := docker.remove(ctx, id); err != nil {
			t.Errorf("could not remove container %s: %v", id, err)
		}
	})

	config := livequery.DBConfig{
		Host:     "127.0.0.1",
		Port:     hostPort,
		User:     dbUser,
		Password: dbPassword,
		Database: dbName,
	}
	require.True(t, waitForPostgresReady(config.ConnConfig()), "database did not become ready in allowed time")
	return config
}

func openSQLX(t *testing.T, config livequery.DBConfig) *sqlx.DB {
	t.Helper()
	dsn := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		config.User, config.Password, config.Host, config.Port, config.Database)
	db, err := sqlx.Connect("postgres", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}
