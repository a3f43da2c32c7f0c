package cli

import (
	"errors"
	"fmt"

	"github.com/BurntSushi/toml"

	"github.com/perangel/livequery"
	"github.com/perangel/livequery/db"
	"github.com/perangel/livequery/filter"
)

// queriesFile is the TOML file listing the queries to watch:
//
//	[[query]]
//	schema = "public"
//	table = "users"
//	  [query.match]
//	  id = 2
//
//	[[query]]
//	table = "users"
//	  [query.where]
//	  op = "or"
//	    [[query.where.args]]
//	    op = "gte"
//	    field = "id"
//	    value = 10
type queriesFile struct {
	Queries []querySpec `toml:"query"`
}

type querySpec struct {
	Schema string                 `toml:"schema"`
	Table  string                 `toml:"table"`
	Match  map[string]interface{} `toml:"match"`
	Where  *filter.Expr           `toml:"where"`
}

var errNoQueries = errors.New("no queries to watch, use --queries or --table")

func loadQueries(path string, tables []string) ([]livequery.Query, error) {
	var queries []livequery.Query

	if path != "" {
		var f queriesFile
		if _, err := toml.DecodeFile(path, &f); err != nil {
			return nil, fmt.Errorf("failed to read queries file: %w", err)
		}
		parsed, err := parseQueries(f)
		if err != nil {
			return nil, err
		}
		queries = append(queries, parsed...)
	}

	for _, name := range tables {
		table, err := db.ParseTableName(name)
		if err != nil {
			return nil, err
		}
		queries = append(queries, livequery.NewQuery(table.Schema, table.Name, filter.Filter{}))
	}

	if len(queries) == 0 {
		return nil, errNoQueries
	}

	return queries, nil
}

func decodeQueries(data string) ([]livequery.Query, error) {
	var f queriesFile
	if _, err := toml.Decode(data, &f); err != nil {
		return nil, err
	}
	return parseQueries(f)
}

func parseQueries(f queriesFile) ([]livequery.Query, error) {
	queries := make([]livequery.Query, 0, len(f.Queries))
	for i, spec := range f.Queries {
		schema := spec.Schema
		if schema == "" {
			schema = "public"
		}

		var fl filter.Filter
		switch {
		case spec.Match != nil && spec.Where != nil:
			return nil, fmt.Errorf("query %d (%s.%s): `match` and `where` are mutually exclusive", i, schema, spec.Table)
		case spec.Where != nil:
			fl = filter.Where(*spec.Where)
		case spec.Match != nil:
			fl = filter.Match(spec.Match)
		}

		if err := fl.Validate(); err != nil {
			return nil, fmt.Errorf("query %d (%s.%s): %w", i, schema, spec.Table, err)
		}

		queries = append(queries, livequery.NewQuery(schema, spec.Table, fl))
	}
	return queries, nil
}
