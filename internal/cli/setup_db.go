package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/perangel/livequery/db"
)

// Flags
var (
	setupDBSchemas         []string
	setupDBIgnoreTables    []string
	setupDBWhitelistTables []string
)

var setupDBCmd = &cobra.Command{
	Use:   "setup-db",
	Short: "Setup the source database",
	Long: `Setup the source database for live queries.

This command adds a new 'livequery' schema with a 'notify_change' trigger function
to the source database, and registers a TRIGGER that publishes every INSERT, UPDATE,
or DELETE on the selected tables to the notification channel.

Running it again re-registers the triggers, which switches them to a new channel.

Each change is sent as one notification carrying the old and new row as JSON.
Postgres rejects notification payloads of 8000 bytes or more, so a write to a row
whose JSON image exceeds that limit fails with an error from the trigger. Exclude
wide tables with --ignore-tables.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		config, err := parseConfig()
		if err != nil {
			return err
		}

		conn, err := connect(config)
		if err != nil {
			return err
		}
		defer conn.Close()

		err = db.Prepare(conn, config.Channel, setupDBSchemas, setupDBWhitelistTables, setupDBIgnoreTables)
		if err != nil {
			return err
		}

		fmt.Printf("Successfully registered `livequery` triggers on channel %q\n", config.Channel)
		return nil
	},
}

var teardownDBCmd = &cobra.Command{
	Use:   "teardown-db",
	Short: "Teardown the `livequery` schema",
	Long:  `Teardown the 'livequery' schema and every trigger registered by 'setup-db'.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		config, err := parseConfig()
		if err != nil {
			return err
		}

		conn, err := connect(config)
		if err != nil {
			return err
		}
		defer conn.Close()

		err = db.Teardown(conn)
		if err != nil {
			return err
		}

		fmt.Println("Successfully removed `livequery` schema")
		return nil
	},
}

func init() {
	setupDBCmd.Flags().StringSliceVarP(&setupDBIgnoreTables, "ignore-tables", "i", nil, "tables to exclude from setup")
	setupDBCmd.Flags().StringSliceVarP(&setupDBWhitelistTables, "whitelist-tables", "w", nil, "tables to include in setup")
	setupDBCmd.Flags().StringSliceVarP(&setupDBSchemas, "schemas", "S", []string{"public"}, "schemas to setup for live queries")
}
