package schema

import (
	"strconv"
	"strings"
)

// MySQL is the dialect for MySQL and MariaDB (driver tag "mysql").
type MySQL struct{}

var _ Dialect = MySQL{}

func (MySQL) Driver() string    { return DriverMySQL }
func (MySQL) SQLDriver() string { return "mysql" }

// DefaultSchema is empty: MySQL services use the database named in the DSN.
func (MySQL) DefaultSchema() string { return "" }

func (MySQL) ExtractLimit(dbType string) Limits { return parseLimit(dbType) }

// ExtractType treats tinyint(1) as BOOLEAN.
func (MySQL) ExtractType(dbType string, _ Limits) LogicalType {
	s := strings.ToLower(strings.TrimSpace(dbType))
	if strings.HasPrefix(s, "tinyint(1)") || s == "bit(1)" {
		return TypeBoolean
	}
	if strings.HasPrefix(s, "bit") {
		return TypeInteger
	}
	if strings.HasPrefix(s, "enum") || strings.HasPrefix(s, "set") {
		return TypeString
	}
	if strings.HasPrefix(s, "year") {
		return TypeInteger
	}
	return genericType(dbType)
}

func (MySQL) ExtractDefault(t LogicalType, raw string) any {
	s := strings.TrimSpace(raw)
	if s == "" || strings.EqualFold(s, "NULL") {
		return nil
	}
	if (t == TypeTimestamp || t == TypeDateTime) && strings.HasPrefix(strings.ToUpper(s), "CURRENT_TIMESTAMP") {
		return nil
	}
	return normalize(t, unquote(s))
}

func (MySQL) Typecast(t LogicalType, v any) any { return genericTypecast(t, v) }

func (d MySQL) SelectExpression(c Column, quoted bool) string {
	field, alias := c.Name, c.Label
	if quoted {
		field, alias = d.Quote(c.Name), d.Quote(c.Label)
	}
	if c.Label != "" {
		return field + " AS " + alias
	}
	return field
}

func (MySQL) Quote(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

func (MySQL) Placeholder(int) string { return "?" }

// LimitOffset always renders LIMIT when an offset is set; MySQL has no
// OFFSET without LIMIT.
func (MySQL) LimitOffset(limit, offset int, _ bool) string {
	switch {
	case limit > 0 && offset > 0:
		return " LIMIT " + strconv.Itoa(limit) + " OFFSET " + strconv.Itoa(offset)
	case limit > 0:
		return " LIMIT " + strconv.Itoa(limit)
	case offset > 0:
		return " LIMIT 18446744073709551615 OFFSET " + strconv.Itoa(offset)
	}
	return ""
}

// Returning is empty; callers fall back to LastInsertId.
func (MySQL) Returning(Op) (string, string) { return "", "" }
