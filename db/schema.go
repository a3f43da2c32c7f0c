package db

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/jackc/pgx"
	"github.com/lib/pq"
	log "github.com/sirupsen/logrus"
)

// Table is a schema-qualified table name.
type Table struct {
	Name   string
	Schema string
}

// String implements Stringer.
func (t Table) String() string {
	return fmt.Sprintf("%s.%s", t.Schema, t.Name)
}

var (
	errCreateSchema        = errors.New("error creating `livequery` schema")
	errCreateTriggerFunc   = errors.New("error creating `notify_change` trigger function")
	errRegisterTrigger     = errors.New("error registering `notify_change` trigger on table")
	errTransactionBegin    = errors.New("error starting new transaction")
	errTransactionCommit   = errors.New("error committing transaction")
	errEmptyChannel        = errors.New("notification channel is required")
	errChannelTooLong      = errors.New("notification channel must be shorter than 64 bytes")
	errInvalidTableName    = errors.New("invalid table name")
	errTransactionRollback = errors.New("error rolling back transaction")
)

// Teardown removes the `livequery` schema, the trigger function and every
// trigger registered by Prepare.
func Teardown(conn *pgx.Conn) error {
	_, err := conn.Exec(dropSchemaLiveQuerySQL)
	if err != nil {
		return err
	}

	return nil
}

// Prepare prepares the database for live queries.
// This will setup:
//   - new `livequery` schema
//   - new TRIGGER function that publishes each row change on channel
//   - registers the trigger with all configured tables in the source schemas
func Prepare(conn *pgx.Conn, channel string, schemas []string, includeTables, excludeTables []string) error {
	if channel == "" {
		return errEmptyChannel
	}
	// Postgres truncates identifiers, including channel names, to 63 bytes.
	if len(channel) > 63 {
		return errChannelTooLong
	}

	registerTables, err := GenerateTablesList(conn, schemas, includeTables, excludeTables)
	if err != nil {
		return err
	}

	tx, err := conn.Begin()
	if err != nil {
		return errTransactionBegin
	}

	if err := prepare(tx, channel, registerTables); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			log.WithError(rbErr).Error(errTransactionRollback.Error())
		}
		return err
	}

	if err = tx.Commit(); err != nil {
		log.WithError(err).Error(errTransactionCommit.Error())
		return errTransactionCommit
	}

	return nil
}

func prepare(tx *pgx.Tx, channel string, tables []Table) error {
	if err := createSchema(tx); err != nil {
		if pgErr, ok := err.(pgx.PgError); ok {
			log.Printf("%+v", pgErr)
		}
		return errCreateSchema
	}

	if _, err := tx.Exec(createNotifyChangeTriggerFuncSQL); err != nil {
		return errCreateTriggerFunc
	}

	for _, table := range tables {
		for _, sql := range registerTriggerSQL(table, channel) {
			if _, err := tx.Exec(sql); err != nil {
				if pgErr, ok := err.(pgx.PgError); ok {
					log.Printf("%+v", pgErr)
				}
				return fmt.Errorf("%w: %s", errRegisterTrigger, table)
			}
		}
	}

	return nil
}

func createSchema(tx *pgx.Tx) error {
	for _, sql := range []string{
		createSchemaLiveQuerySQL,
		revokeAllOnSchemaLiveQuerySQL,
		commentOnSchemaLiveQuerySQL,
	} {
		if _, err := tx.Exec(sql); err != nil {
			return err
		}
	}
	return nil
}

// GenerateTablesList using the includes and excludes list. If no tables are specified in the includes list,
// obtain the complete list from Postgres using the supplied schemas. If any of the included tables are listed
// as excluded, remove them from the list. Tables are returned sorted by name.
func GenerateTablesList(conn *pgx.Conn, schemas, includeTables, excludeTables []string) ([]Table, error) {
	tableRegister := make(map[Table]bool)

	if len(includeTables) > 0 {
		for _, name := range includeTables {
			table, err := ParseTableName(name)
			if err != nil {
				return nil, err
			}
			tableRegister[table] = true
		}
	} else {
		for _, schema := range schemas {
			names, err := listTables(conn, schema)
			if err != nil {
				return nil, err
			}
			for _, name := range names {
				tableRegister[Table{Schema: schema, Name: name}] = true
			}
		}
	}

	return filterTables(tableRegister, excludeTables)
}

func filterTables(tableRegister map[Table]bool, excludeTables []string) ([]Table, error) {
	for _, name := range excludeTables {
		table, err := ParseTableName(name)
		if err != nil {
			return nil, err
		}
		if _, ok := tableRegister[table]; ok {
			tableRegister[table] = false
		}
	}

	tables := make([]Table, 0, len(tableRegister))
	for table, include := range tableRegister {
		if include {
			tables = append(tables, table)
		}
	}
	sort.Slice(tables, func(i, j int) bool {
		return tables[i].String() < tables[j].String()
	})

	return tables, nil
}

func listTables(conn *pgx.Conn, schema string) ([]string, error) {
	rows, err := conn.Query(selectTablesInSchemaSQL, schema)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		names = append(names, t)
	}

	return names, rows.Err()
}

// ParseTableName parses `<schema>.<table>` or `<table>`, which defaults to the
// public schema.
func ParseTableName(name string) (Table, error) {
	parts := strings.SplitN(name, ".", 2)
	if len(parts) == 1 {
		parts = []string{"public", parts[0]}
	}
	if parts[0] == "" || parts[1] == "" {
		return Table{}, fmt.Errorf("%w: %q", errInvalidTableName, name)
	}
	return Table{Schema: parts[0], Name: parts[1]}, nil
}

// registerTriggerSQL returns the statements (re)creating the notify trigger on
// table. Recreating lets a later setup switch the channel.
func registerTriggerSQL(table Table, channel string) []string {
	// trigger name is <schema>__<table>_livequery
	triggerName := pq.QuoteIdentifier(fmt.Sprintf("%s__%s_livequery", table.Schema, table.Name))
	qualified := pq.QuoteIdentifier(table.Schema) + "." + pq.QuoteIdentifier(table.Name)

	return []string{
		fmt.Sprintf(`DROP TRIGGER IF EXISTS %s ON %s`, triggerName, qualified),
		fmt.Sprintf(`
		CREATE TRIGGER %s
			AFTER INSERT OR UPDATE OR DELETE
			ON %s
			FOR EACH ROW EXECUTE PROCEDURE livequery.notify_change(%s)`,
			triggerName, qualified, pq.QuoteLiteral(channel)),
	}
}
