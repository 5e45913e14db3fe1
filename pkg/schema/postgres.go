package schema

import (
	"fmt"
	"strings"
)

// Postgres is the dialect for PostgreSQL (driver tag "pgsql").
type Postgres struct{}

var _ Dialect = Postgres{}

func (Postgres) Driver() string        { return DriverPostgres }
func (Postgres) SQLDriver() string     { return "pgx" }
func (Postgres) DefaultSchema() string { return "public" }

func (Postgres) ExtractLimit(dbType string) Limits { return parseLimit(dbType) }

func (Postgres) ExtractType(dbType string, _ Limits) LogicalType {
	s := strings.ToLower(strings.TrimSpace(dbType))
	if strings.HasSuffix(s, "[]") || s == "array" {
		return TypeJSON
	}
	return genericType(dbType)
}

// ExtractDefault unwraps "'x'::type" casts. nextval() and other function
// defaults have no static value and yield nil.
func (Postgres) ExtractDefault(t LogicalType, raw string) any {
	s := strings.TrimSpace(raw)
	if s == "" || strings.EqualFold(s, "NULL") || strings.HasPrefix(strings.ToUpper(s), "NULL::") {
		return nil
	}
	if strings.HasPrefix(s, "nextval(") {
		return nil
	}
	if i := strings.LastIndex(s, "::"); i > 0 {
		s = s[:i]
	}
	s = unquote(s)
	return normalize(t, s)
}

func (Postgres) Typecast(t LogicalType, v any) any { return genericTypecast(t, v) }

func (d Postgres) SelectExpression(c Column, quoted bool) string {
	field, alias := c.Name, c.Label
	if quoted {
		field, alias = d.Quote(c.Name), d.Quote(c.Label)
	}
	if c.Label != "" {
		return field + " AS " + alias
	}
	return field
}

func (Postgres) Quote(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func (Postgres) Placeholder(n int) string { return fmt.Sprintf("$%d", n) }

func (Postgres) LimitOffset(limit, offset int, _ bool) string {
	var b strings.Builder
	if limit > 0 {
		fmt.Fprintf(&b, " LIMIT %d", limit)
	}
	if offset > 0 {
		fmt.Fprintf(&b, " OFFSET %d", offset)
	}
	return b.String()
}

func (Postgres) Returning(Op) (string, string) { return "", "RETURNING *" }

// isSerialDefault reports whether a raw column default marks an
// auto-increment column.
func isSerialDefault(raw string) bool {
	return strings.HasPrefix(strings.TrimSpace(raw), "nextval(")
}
