package livequery

import (
	"fmt"

	"github.com/perangel/livequery/filter"
)

// Row is a full row image decoded from its JSON representation.
type Row map[string]interface{}

// RowDescriptor identifies a schema-qualified table.
type RowDescriptor struct {
	Schema string `toml:"schema" json:"schema"`
	Table  string `toml:"table" json:"table"`
}

// String implements Stringer.
func (d RowDescriptor) String() string {
	return fmt.Sprintf("%s.%s", d.Schema, d.Table)
}

// Query pairs a table with the filter selecting its rows.
type Query struct {
	Row    RowDescriptor
	Filter filter.Filter
}

// NewQuery returns a Query over schema.table using filter f.
func NewQuery(schema, table string, f filter.Filter) Query {
	return Query{Row: RowDescriptor{Schema: schema, Table: table}, Filter: f}
}

func (q Query) validate() error {
	if q.Row.Schema == "" || q.Row.Table == "" {
		return fmt.Errorf("%w: schema and table are required, got %q", ErrInvalidQuery, q.Row.String())
	}
	if err := q.Filter.Validate(); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidQuery, q.Row, err)
	}
	return nil
}
