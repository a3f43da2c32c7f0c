package livequery

import (
	"context"
	"fmt"
	"strings"

	"github.com/doug-martin/goqu/v9"
	// registers the postgres dialect
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
)

const snapshotRowAlias = "r"

var dialect = goqu.Dialect("postgres")

// snapshotSQL builds the read for q. Selected rows are locked FOR SHARE so
// concurrent writers wait for the enclosing transaction to end.
func snapshotSQL(q Query) (string, []interface{}, error) {
	ds := dialect.
		From(goqu.S(q.Row.Schema).Table(q.Row.Table).As(snapshotRowAlias)).
		Select(goqu.L("row_to_json(?)", goqu.I(snapshotRowAlias)).As("o")).
		ForShare(goqu.Wait).
		Prepared(true)

	if pred, ok := q.Filter.Predicate(snapshotRowAlias); ok {
		ds = ds.Where(pred)
	}

	sql, args, err := ds.ToSQL()
	if err != nil {
		return "", nil, err
	}
	// goqu leaves a trailing space after the lock clause
	return strings.TrimSpace(sql), args, nil
}

// fetchSnapshot returns the rows of q visible to the transaction open on conn.
func fetchSnapshot(ctx context.Context, conn Conn, q Query) ([]Row, error) {
	sql, args, err := snapshotSQL(q)
	if err != nil {
		return nil, fmt.Errorf("failed to build snapshot query for %s: %w", q.Row, err)
	}

	values, err := conn.QueryJSON(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshot for %s: %w", q.Row, err)
	}

	rows := make([]Row, 0, len(values))
	for _, v := range values {
		var row Row
		if err := unmarshalRow(v, &row); err != nil {
			return nil, fmt.Errorf("failed to unmarshal snapshot row for %s: %w", q.Row, err)
		}
		rows = append(rows, row)
	}

	return rows, nil
}
