package db

const (
	// Creates the livequery schema
	createSchemaLiveQuerySQL = `CREATE SCHEMA IF NOT EXISTS livequery`

	// Revokes all privileges from public on the livequery schema
	revokeAllOnSchemaLiveQuerySQL = `REVOKE ALL ON SCHEMA livequery FROM public`

	// Add a comment to the livequery schema
	commentOnSchemaLiveQuerySQL = `COMMENT ON SCHEMA livequery IS 'Change notification trigger functions'`

	// Create livequery.notify_change() trigger function. The first trigger
	// argument is the notification channel.
	createNotifyChangeTriggerFuncSQL = `
		CREATE OR REPLACE FUNCTION livequery.notify_change()
			RETURNS TRIGGER AS $$
				DECLARE
					old_row JSON;
					new_row JSON;
				BEGIN
					IF TG_WHEN <> 'AFTER' THEN
						RAISE EXCEPTION 'livequery.notify_change() may only run as an AFTER trigger';
					END IF;

					IF (TG_OP = 'UPDATE' OR TG_OP = 'DELETE') THEN
						old_row := row_to_json(OLD);
					END IF;

					IF (TG_OP = 'UPDATE' OR TG_OP = 'INSERT') THEN
						new_row := row_to_json(NEW);
					END IF;

					PERFORM pg_notify(
						TG_ARGV[0],
						json_build_object(
							'op', lower(TG_OP),
							'schema', TG_TABLE_SCHEMA,
							'table', TG_TABLE_NAME,
							'old', old_row,
							'new', new_row
						)::TEXT
					);
					RETURN NULL;
				END;
			$$ LANGUAGE plpgsql
			SECURITY DEFINER`

	// List the tables in a schema
	selectTablesInSchemaSQL = `SELECT tablename FROM pg_catalog.pg_tables WHERE schemaname = $1`

	// Drop the livequery schema, its function and every trigger using it
	dropSchemaLiveQuerySQL = `DROP SCHEMA IF EXISTS livequery CASCADE`
)
