package schema

import (
	"fmt"
	"strings"

	"github.com/edgeflare/sqlgate/pkg/util"
)

// SQLServer is the dialect for Microsoft SQL Server (driver tag "sqlsrv").
// Its loader supplies size, precision and scale from INFORMATION_SCHEMA, so
// ExtractLimit does not parse the type string.
type SQLServer struct{}

var _ Dialect = SQLServer{}

func (SQLServer) Driver() string        { return DriverSQLServer }
func (SQLServer) SQLDriver() string     { return "sqlserver" }
func (SQLServer) DefaultSchema() string { return "dbo" }

func (SQLServer) ExtractLimit(string) Limits { return Limits{} }

// ExtractType treats a varchar without a size, i.e. varchar(max), as TEXT.
func (SQLServer) ExtractType(dbType string, l Limits) LogicalType {
	t := genericType(dbType)
	if strings.Contains(strings.ToLower(dbType), "varchar") && l.Size == nil {
		return TypeText
	}
	return t
}

func (SQLServer) ExtractDefault(t LogicalType, raw string) any {
	s := strings.TrimSpace(raw)
	if strings.EqualFold(s, "(NULL)") {
		return nil
	}
	switch t {
	case TypeBoolean:
		switch s {
		case "((1))":
			return true
		case "((0))":
			return false
		}
		return nil
	case TypeTimestamp:
		return nil
	}
	return normalize(t, unquote(s))
}

// Typecast binds BOOLEAN as 1 or 0; SQL Server has no boolean literal.
func (SQLServer) Typecast(t LogicalType, v any) any {
	if t == TypeBoolean {
		if b, ok := util.ToBool(v); ok {
			if b {
				return 1
			}
			return 0
		}
		if util.Truthy(v) {
			return 1
		}
		return 0
	}
	return genericTypecast(t, v)
}

func (d SQLServer) SelectExpression(c Column, quoted bool) string {
	field, alias := c.Name, c.Alias()
	if quoted {
		field, alias = d.Quote(c.Name), d.Quote(c.Alias())
	}
	switch strings.ToLower(c.DBType) {
	case "datetime", "datetimeoffset":
		return fmt.Sprintf("(CONVERT(nvarchar(30), %s, 127)) AS %s", field, alias)
	case "geometry", "geography", "hierarchyid":
		return fmt.Sprintf("(%s.ToString()) AS %s", field, alias)
	}
	if c.Label != "" {
		return field + " AS " + alias
	}
	return field
}

func (SQLServer) Quote(name string) string {
	return "[" + strings.ReplaceAll(name, "]", "]]") + "]"
}

func (SQLServer) Placeholder(n int) string { return fmt.Sprintf("@p%d", n) }

// LimitOffset renders OFFSET/FETCH, which requires an ORDER BY.
func (SQLServer) LimitOffset(limit, offset int, ordered bool) string {
	if limit <= 0 && offset <= 0 {
		return ""
	}
	var b strings.Builder
	if !ordered {
		b.WriteString(" ORDER BY (SELECT NULL)")
	}
	fmt.Fprintf(&b, " OFFSET %d ROWS", max(offset, 0))
	if limit > 0 {
		fmt.Fprintf(&b, " FETCH NEXT %d ROWS ONLY", limit)
	}
	return b.String()
}

func (SQLServer) Returning(op Op) (string, string) {
	if op == OpDelete {
		return "OUTPUT DELETED.*", ""
	}
	return "OUTPUT INSERTED.*", ""
}
