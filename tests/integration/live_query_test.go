package integration

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/jackc/pgx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/perangel/livequery"
	"github.com/perangel/livequery/db"
	"github.com/perangel/livequery/filter"
)

const testChannel = "livequery_test"

func nextEvent(t *testing.T, s *livequery.Stream) livequery.Event {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	ev, err := s.Next(ctx)
	require.NoError(t, err)
	return ev
}

func assertNoEvent(t *testing.T, s *livequery.Stream) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := s.Next(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestLiveQuery(t *testing.T) {
	for _, image := range []string{"postgres:11", "postgres:12.6", "postgres:15"} {
		image := image
		t.Run(image, func(t *testing.T) {
			t.Parallel()

			config := startPostgres(t, image)

			sqlDB := openSQLX(t, config)
			sqlDB.MustExec(`CREATE TABLE one (id INT PRIMARY KEY, name TEXT)`)
			sqlDB.MustExec(`INSERT INTO one (id, name) VALUES (1, 'one'), (2, 'two')`)

			conn, err := pgx.Connect(config.ConnConfig())
			require.NoError(t, err)
			require.NoError(t, db.Prepare(conn, testChannel, []string{"public"}, nil, nil))
			conn.Close()

			pool, err := livequery.NewPoolFromConfig(&config, 2)
			require.NoError(t, err)
			defer pool.Close()

			query := livequery.NewQuery("public", "one", filter.Match(map[string]interface{}{"id": 2}))
			stream := livequery.Open(context.Background(), pool, testChannel, []livequery.Query{query})
			defer stream.Close()

			ev := nextEvent(t, stream)
			assert.Equal(t, livequery.EventTypeInitial, ev.Type)
			assert.Equal(t, []livequery.Row{{"id": json.Number("2"), "name": "two"}}, ev.Rows)
			assert.Equal(t, livequery.StateActive, stream.State())

			sqlDB.MustExec(`UPDATE one SET name = $1 WHERE id = $2`, "twee", 2)

			ev = nextEvent(t, stream)
			assert.Equal(t, livequery.EventTypeChange, ev.Type)
			assert.Equal(t, livequery.Row{"id": json.Number("2"), "name": "two"}, ev.Old)
			assert.Equal(t, livequery.Row{"id": json.Number("2"), "name": "twee"}, ev.New)

			sqlDB.MustExec(`DELETE FROM one WHERE id = $1`, 1)
			assertNoEvent(t, stream)

			sqlDB.MustExec(`INSERT INTO one (id, name) VALUES ($1, $2)`, 3, "three")
			assertNoEvent(t, stream)

			sqlDB.MustExec(`DELETE FROM one WHERE id = $1`, 2)
			ev = nextEvent(t, stream)
			assert.Equal(t, livequery.EventTypeChange, ev.Type)
			assert.Equal(t, livequery.Row{"id": json.Number("2"), "name": "twee"}, ev.Old)
			assert.Nil(t, ev.New)

			require.NoError(t, stream.Close())
			assert.Equal(t, livequery.StateClosed, stream.State())

			_, err = stream.Next(context.Background())
			assert.True(t, errors.Is(err, io.EOF))
		})
	}
}

func TestTeardownRemovesTriggers(t *testing.T) {
	config := startPostgres(t, "postgres:12.6")

	sqlDB := openSQLX(t, config)
	sqlDB.MustExec(`CREATE TABLE one (id INT PRIMARY KEY, name TEXT)`)
	sqlDB.MustExec(`CREATE TABLE two (id INT PRIMARY KEY)`)

	conn, err := pgx.Connect(config.ConnConfig())
	require.NoError(t, err)
	defer conn.Close()

	tables, err := db.GenerateTablesList(conn, []string{"public"}, nil, []string{"two"})
	require.NoError(t, err)
	assert.Equal(t, []db.Table{{Name: "one", Schema: "public"}}, tables)

	require.NoError(t, db.Prepare(conn, testChannel, []string{"public"}, nil, []string{"two"}))

	var triggers []string
	err = sqlDB.Select(&triggers, `SELECT event_object_table FROM information_schema.triggers WHERE trigger_schema = 'public' GROUP BY 1 ORDER BY 1`)
	require.NoError(t, err)
	assert.Equal(t, []string{"one"}, triggers)

	require.NoError(t, db.Teardown(conn))

	triggers = nil
	err = sqlDB.Select(&triggers, `SELECT event_object_table FROM information_schema.triggers WHERE trigger_schema = 'public' GROUP BY 1 ORDER BY 1`)
	require.NoError(t, err)
	assert.Empty(t, triggers)
}
