package store

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Conn is the subset of pgx shared by *pgx.Conn, *pgxpool.Pool and pgx.Tx.
type Conn interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type queryBuilder struct {
	table     pgx.Identifier
	values    []any
	nextIndex int
}

func newQueryBuilder(schema, table string) *queryBuilder {
	return &queryBuilder{table: pgx.Identifier{schema, table}, nextIndex: 1}
}

func (qb *queryBuilder) bind(v any) string {
	qb.values = append(qb.values, v)
	p := fmt.Sprintf("$%d", qb.nextIndex)
	qb.nextIndex++
	return p
}

// insertSQL renders an INSERT of data; columns are emitted in sorted order.
func (qb *queryBuilder) insertSQL(data map[string]any, returning string) string {
	var cols, placeholders []string
	for _, k := range slices.Sorted(maps.Keys(data)) {
		cols = append(cols, pgx.Identifier{k}.Sanitize())
		placeholders = append(placeholders, qb.bind(data[k]))
	}
	q := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		qb.table.Sanitize(), strings.Join(cols, ", "), strings.Join(placeholders, ", "))
	if returning != "" {
		q += " RETURNING " + returning
	}
	return q
}

// updateSQL renders an UPDATE of data filtered by equality on where.
func (qb *queryBuilder) updateSQL(data, where map[string]any, returning string) (string, error) {
	if len(where) == 0 {
		return "", fmt.Errorf("no WHERE conditions provided")
	}
	var sets, conds []string
	for _, k := range slices.Sorted(maps.Keys(data)) {
		sets = append(sets, fmt.Sprintf("%s = %s", pgx.Identifier{k}.Sanitize(), qb.bind(data[k])))
	}
	for _, k := range slices.Sorted(maps.Keys(where)) {
		conds = append(conds, fmt.Sprintf("%s = %s", pgx.Identifier{k}.Sanitize(), qb.bind(where[k])))
	}
	q := fmt.Sprintf("UPDATE %s SET %s WHERE %s",
		qb.table.Sanitize(), strings.Join(sets, ", "), strings.Join(conds, " AND "))
	if returning != "" {
		q += " RETURNING " + returning
	}
	return q, nil
}

// deleteRows deletes rows matching where and reports how many went.
func deleteRows(ctx context.Context, conn Conn, schema, table string, where map[string]any) (int64, error) {
	qb := newQueryBuilder(schema, table)
	var conds []string
	for _, k := range slices.Sorted(maps.Keys(where)) {
		conds = append(conds, fmt.Sprintf("%s = %s", pgx.Identifier{k}.Sanitize(), qb.bind(where[k])))
	}
	if len(conds) == 0 {
		return 0, fmt.Errorf("no WHERE conditions provided")
	}
	tag, err := conn.Exec(ctx, fmt.Sprintf("DELETE FROM %s WHERE %s", qb.table.Sanitize(), strings.Join(conds, " AND ")), qb.values...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete record: %w", err)
	}
	return tag.RowsAffected(), nil
}
