package schema

import "strings"

// LogicalType is the portable, vendor-independent type of a column.
type LogicalType string

const (
	TypeString    LogicalType = "string"
	TypeText      LogicalType = "text"
	TypeInteger   LogicalType = "integer"
	TypeBigInt    LogicalType = "bigint"
	TypeBoolean   LogicalType = "boolean"
	TypeDecimal   LogicalType = "decimal"
	TypeFloat     LogicalType = "float"
	TypeDate      LogicalType = "date"
	TypeTime      LogicalType = "time"
	TypeDateTime  LogicalType = "datetime"
	TypeTimestamp LogicalType = "timestamp"
	TypeBinary    LogicalType = "binary"
	TypeJSON      LogicalType = "json"
)

// ForeignKeyRef points a column at the column it references.
type ForeignKeyRef struct {
	Table    string `json:"table"`
	Column   string `json:"column"`
	OnUpdate string `json:"on_update,omitempty"`
	OnDelete string `json:"on_delete,omitempty"`
}

// Limits carries size, precision and scale metadata. Nil means unknown.
type Limits struct {
	Size      *int `json:"size,omitempty"`
	Precision *int `json:"precision,omitempty"`
	Scale     *int `json:"scale,omitempty"`
}

func (l Limits) empty() bool {
	return l.Size == nil && l.Precision == nil && l.Scale == nil
}

// RawColumn is the per-column record produced by a schema loader before
// normalization. Default is nil when the column has no default at all.
type RawColumn struct {
	Name            string
	Label           string
	DBType          string
	Limits          Limits
	Default         *string
	IsNullable      bool
	IsPrimaryKey    bool
	IsForeignKey    bool
	IsAutoIncrement bool
	ForeignKey      *ForeignKeyRef
}

// Column is the normalized descriptor of a table column. Build it with
// NewColumn; it is not modified afterwards.
type Column struct {
	Name            string         `json:"name"`
	Label           string         `json:"label,omitempty"`
	DBType          string         `json:"db_type"`
	Type            LogicalType    `json:"type"`
	Limits                         // size, precision, scale
	Default         any            `json:"default"`
	IsPrimaryKey    bool           `json:"is_primary_key"`
	IsForeignKey    bool           `json:"is_foreign_key"`
	IsNullable      bool           `json:"allow_null"`
	IsAutoIncrement bool           `json:"auto_increment"`
	ForeignKey      *ForeignKeyRef `json:"foreign_key,omitempty"`

	dialect Dialect
}

// NewColumn normalizes raw loader metadata using the rules of dialect d.
// Limits supplied by the loader win over limits parsed from the type string.
func NewColumn(d Dialect, raw RawColumn) Column {
	c := Column{
		Name:            raw.Name,
		Label:           raw.Label,
		DBType:          raw.DBType,
		Limits:          raw.Limits,
		IsPrimaryKey:    raw.IsPrimaryKey,
		IsForeignKey:    raw.IsForeignKey || raw.ForeignKey != nil,
		IsNullable:      raw.IsNullable,
		IsAutoIncrement: raw.IsAutoIncrement,
		ForeignKey:      raw.ForeignKey,
		dialect:         d,
	}

	if c.Limits.empty() {
		c.Limits = d.ExtractLimit(raw.DBType)
	}
	c.Type = d.ExtractType(raw.DBType, c.Limits)
	if raw.Default != nil {
		c.Default = d.ExtractDefault(c.Type, *raw.Default)
	}
	return c
}

// Alias returns the name the column is exposed under.
func (c Column) Alias() string {
	if c.Label != "" {
		return c.Label
	}
	return c.Name
}

// IsReadOnly reports whether the database generates the column value:
// auto-increment columns and SQL Server rowversion columns.
func (c Column) IsReadOnly() bool {
	if c.IsAutoIncrement {
		return true
	}
	return c.Type == TypeTimestamp && c.dialect != nil && c.dialect.Driver() == DriverSQLServer
}

// Dialect returns the dialect the column was normalized with.
func (c Column) Dialect() Dialect {
	return c.dialect
}

// Typecast converts v into the representation the column's driver binds.
func (c Column) Typecast(v any) any {
	if c.dialect == nil {
		return v
	}
	return c.dialect.Typecast(c.Type, v)
}

// SelectExpression renders the SQL fragment selecting this column.
func (c Column) SelectExpression(quoted bool) string {
	if c.dialect == nil {
		return c.Name
	}
	return c.dialect.SelectExpression(c, quoted)
}

// NormalizeDefault re-applies default-value normalization to v. Feeding a
// normalized default back in yields the same value.
func (c Column) NormalizeDefault(v any) any {
	return normalize(c.Type, v)
}

// baseTypeName lowercases dbType and strips parameters and modifiers, so
// "NVARCHAR(max)" becomes "nvarchar" and "double precision" becomes "double".
func baseTypeName(dbType string) string {
	t := strings.ToLower(strings.TrimSpace(dbType))
	if i := strings.IndexByte(t, '('); i >= 0 {
		t = t[:i]
	}
	switch {
	case strings.HasPrefix(t, "character varying"):
		return "varchar"
	case strings.HasPrefix(t, "timestamp"):
		return "timestamp"
	case strings.HasPrefix(t, "time with"):
		return "time"
	}
	if i := strings.IndexByte(t, ' '); i >= 0 {
		t = t[:i]
	}
	return strings.TrimSpace(t)
}
