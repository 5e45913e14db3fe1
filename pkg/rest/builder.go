package rest

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/edgeflare/sqlgate/pkg/schema"
)

// statement is a rendered SQL statement and its bind arguments.
type statement struct {
	sql  string
	args []any
}

// builder renders statements for one table in the table's dialect. Bound
// values pass through the column's Typecast.
type builder struct {
	d     schema.Dialect
	table schema.Table
	args  []any
}

func newBuilder(d schema.Dialect, t schema.Table) *builder {
	return &builder{d: d, table: t}
}

func (b *builder) bind(c schema.Column, v any) string {
	b.args = append(b.args, c.Typecast(v))
	return b.d.Placeholder(len(b.args))
}

func (b *builder) statement(sql string) statement {
	return statement{sql: sql, args: b.args}
}

func (b *builder) name() string {
	if b.table.Schema == "" {
		return b.d.Quote(b.table.Name)
	}
	return b.d.Quote(b.table.Schema) + "." + b.d.Quote(b.table.Name)
}

// selectList renders the selected columns, all columns when fields is empty.
func (b *builder) selectList(fields []string) string {
	cols := b.table.Columns
	if len(fields) > 0 {
		cols = cols[:0:0]
		for _, f := range fields {
			if c, ok := b.table.Column(f); ok {
				cols = append(cols, c)
			}
		}
	}
	if len(cols) == 0 {
		return "*"
	}
	exprs := make([]string, len(cols))
	for i, c := range cols {
		exprs[i] = c.SelectExpression(true)
	}
	return strings.Join(exprs, ", ")
}

// where renders the WHERE clause of filters and ids, or "".
func (b *builder) where(q QueryParams) string {
	var clauses []string
	for _, f := range q.Filters {
		c, ok := b.table.Column(f.Column)
		if !ok {
			continue
		}
		col := b.d.Quote(c.Name)
		switch {
		case f.Operator == "IN":
			placeholders := make([]string, len(f.Values))
			for i, v := range f.Values {
				placeholders[i] = b.bind(c, v)
			}
			clauses = append(clauses, fmt.Sprintf("%s IN (%s)", col, strings.Join(placeholders, ", ")))
		case f.Value == nil:
			clauses = append(clauses, fmt.Sprintf("%s %s NULL", col, f.Operator))
		case f.Operator == "LIKE" || f.Operator == "ILIKE":
			op := f.Operator
			if b.d.Driver() != schema.DriverPostgres {
				op = "LIKE"
			}
			b.args = append(b.args, f.Value)
			clauses = append(clauses, fmt.Sprintf("%s %s %s", col, op, b.d.Placeholder(len(b.args))))
		default:
			clauses = append(clauses, fmt.Sprintf("%s %s %s", col, f.Operator, b.bind(c, f.Value)))
		}
	}

	if len(q.IDs) > 0 {
		pk, _ := b.table.PrimaryKey()
		placeholders := make([]string, len(q.IDs))
		for i, id := range q.IDs {
			placeholders[i] = b.bind(pk, id)
		}
		clauses = append(clauses, fmt.Sprintf("%s IN (%s)", b.d.Quote(pk.Name), strings.Join(placeholders, ", ")))
	}

	if len(clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(clauses, " AND ")
}

func (b *builder) orderBy(q QueryParams) string {
	if len(q.Order) == 0 {
		return ""
	}
	terms := make([]string, len(q.Order))
	for i, o := range q.Order {
		terms[i] = orderClause(b.d, o)
	}
	return " ORDER BY " + strings.Join(terms, ", ")
}

// writable returns the record's known, database-writable columns in
// sorted order.
func (b *builder) writable(record map[string]any) []schema.Column {
	var cols []schema.Column
	for _, key := range slices.Sorted(maps.Keys(record)) {
		c, ok := b.table.Column(key)
		if !ok || c.IsReadOnly() {
			continue
		}
		cols = append(cols, c)
	}
	return cols
}

func buildSelect(d schema.Dialect, t schema.Table, q QueryParams) statement {
	b := newBuilder(d, t)
	order := b.orderBy(q)
	sql := "SELECT " + b.selectList(q.Fields) + " FROM " + b.name() + b.where(q) + order +
		d.LimitOffset(q.Limit, q.Offset, order != "")
	return b.statement(sql)
}

func buildCount(d schema.Dialect, t schema.Table, q QueryParams) statement {
	b := newBuilder(d, t)
	return b.statement("SELECT COUNT(*) FROM " + b.name() + b.where(q))
}

func buildInsert(d schema.Dialect, t schema.Table, record map[string]any) (statement, error) {
	b := newBuilder(d, t)
	cols := b.writable(record)
	if len(cols) == 0 {
		return statement{}, ErrNoColumns
	}

	names := make([]string, len(cols))
	placeholders := make([]string, len(cols))
	for i, c := range cols {
		names[i] = d.Quote(c.Name)
		placeholders[i] = b.bind(c, record[c.Name])
	}

	output, returning := d.Returning(schema.OpInsert)
	var sql strings.Builder
	fmt.Fprintf(&sql, "INSERT INTO %s (%s)", b.name(), strings.Join(names, ", "))
	if output != "" {
		sql.WriteString(" " + output)
	}
	fmt.Fprintf(&sql, " VALUES (%s)", strings.Join(placeholders, ", "))
	if returning != "" {
		sql.WriteString(" " + returning)
	}
	return b.statement(sql.String()), nil
}

func buildUpdate(d schema.Dialect, t schema.Table, record map[string]any, q QueryParams) (statement, error) {
	if len(q.Filters) == 0 && len(q.IDs) == 0 {
		return statement{}, ErrNoFilter
	}
	b := newBuilder(d, t)
	cols := b.writable(record)
	if len(cols) == 0 {
		return statement{}, ErrNoColumns
	}

	set := make([]string, len(cols))
	for i, c := range cols {
		set[i] = d.Quote(c.Name) + " = " + b.bind(c, record[c.Name])
	}

	output, returning := d.Returning(schema.OpUpdate)
	var sql strings.Builder
	fmt.Fprintf(&sql, "UPDATE %s SET %s", b.name(), strings.Join(set, ", "))
	if output != "" {
		sql.WriteString(" " + output)
	}
	sql.WriteString(b.where(q))
	if returning != "" {
		sql.WriteString(" " + returning)
	}
	return b.statement(sql.String()), nil
}

func buildDelete(d schema.Dialect, t schema.Table, q QueryParams) (statement, error) {
	if len(q.Filters) == 0 && len(q.IDs) == 0 {
		return statement{}, ErrNoFilter
	}
	b := newBuilder(d, t)

	output, returning := d.Returning(schema.OpDelete)
	var sql strings.Builder
	sql.WriteString("DELETE FROM " + b.name())
	if output != "" {
		sql.WriteString(" " + output)
	}
	sql.WriteString(b.where(q))
	if returning != "" {
		sql.WriteString(" " + returning)
	}
	return b.statement(sql.String()), nil
}
