package schema

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/edgeflare/sqlgate/pkg/util"
)

// baseTypes maps a stripped vendor type name to its logical type. It is shared
// by all dialects; a dialect consults it after its own special cases.
var baseTypes = map[string]LogicalType{
	"int":              TypeInteger,
	"integer":          TypeInteger,
	"int2":             TypeInteger,
	"int4":             TypeInteger,
	"smallint":         TypeInteger,
	"tinyint":          TypeInteger,
	"mediumint":        TypeInteger,
	"serial":           TypeInteger,
	"smallserial":      TypeInteger,
	"bigint":           TypeBigInt,
	"int8":             TypeBigInt,
	"bigserial":        TypeBigInt,
	"bit":              TypeBoolean,
	"bool":             TypeBoolean,
	"boolean":          TypeBoolean,
	"decimal":          TypeDecimal,
	"numeric":          TypeDecimal,
	"money":            TypeDecimal,
	"smallmoney":       TypeDecimal,
	"float":            TypeFloat,
	"float4":           TypeFloat,
	"float8":           TypeFloat,
	"real":             TypeFloat,
	"double":           TypeFloat,
	"date":             TypeDate,
	"time":             TypeTime,
	"timetz":           TypeTime,
	"datetime":         TypeDateTime,
	"datetime2":        TypeDateTime,
	"smalldatetime":    TypeDateTime,
	"datetimeoffset":   TypeDateTime,
	"timestamp":        TypeTimestamp,
	"timestamptz":      TypeTimestamp,
	"rowversion":       TypeTimestamp,
	"binary":           TypeBinary,
	"varbinary":        TypeBinary,
	"image":            TypeBinary,
	"blob":             TypeBinary,
	"tinyblob":         TypeBinary,
	"mediumblob":       TypeBinary,
	"longblob":         TypeBinary,
	"bytea":            TypeBinary,
	"text":             TypeText,
	"ntext":            TypeText,
	"tinytext":         TypeText,
	"mediumtext":       TypeText,
	"longtext":         TypeText,
	"clob":             TypeText,
	"json":             TypeJSON,
	"jsonb":            TypeJSON,
	"char":             TypeString,
	"nchar":            TypeString,
	"varchar":          TypeString,
	"nvarchar":         TypeString,
	"uuid":             TypeString,
	"uniqueidentifier": TypeString,
}

// genericType resolves dbType through baseTypes. Unknown names are STRING.
func genericType(dbType string) LogicalType {
	if t, ok := baseTypes[baseTypeName(dbType)]; ok {
		return t
	}
	return TypeString
}

// parseLimit reads "(size)" or "(precision,scale)" from a type string.
// "max" and malformed parameters leave the limit unset.
func parseLimit(dbType string) Limits {
	var l Limits
	open := strings.IndexByte(dbType, '(')
	end := strings.LastIndexByte(dbType, ')')
	if open < 0 || end < open {
		return l
	}
	parts := strings.Split(dbType[open+1:end], ",")
	first, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return l
	}
	switch genericType(dbType) {
	case TypeDecimal, TypeFloat:
		l.Precision = &first
		if len(parts) > 1 {
			if s, err := strconv.Atoi(strings.TrimSpace(parts[1])); err == nil {
				l.Scale = &s
			}
		}
	default:
		l.Size = &first
	}
	return l
}

// Layouts accepted as static date and time defaults.
var (
	dateLayouts     = []string{"2006-01-02"}
	timeLayouts     = []string{"15:04:05", "15:04:05.999999999", "15:04"}
	dateTimeLayouts = []string{
		"2006-01-02 15:04:05",
		"2006-01-02 15:04:05.999999999",
		"2006-01-02T15:04:05",
		"2006-01-02T15:04:05.999999999",
		time.RFC3339,
		time.RFC3339Nano,
		"2006-01-02 15:04:05.999999999-07:00",
		"2006-01-02 15:04:05-07",
	}
)

func layoutsFor(t LogicalType) []string {
	switch t {
	case TypeDate:
		return dateLayouts
	case TypeTime:
		return timeLayouts
	default:
		return dateTimeLayouts
	}
}

// normalize coerces v to the Go representation of logical type t: int64 for
// INTEGER/BIGINT, decimal.Decimal for DECIMAL, float64 for FLOAT, bool for
// BOOLEAN and string for everything else. Values that cannot be represented
// become nil. normalize(t, normalize(t, v)) == normalize(t, v).
func normalize(t LogicalType, v any) any {
	if v == nil {
		return nil
	}
	switch t {
	case TypeInteger, TypeBigInt:
		if n, ok := util.ToInt64(v); ok {
			return n
		}
		return nil
	case TypeDecimal:
		if d, ok := toDecimal(v); ok {
			return d
		}
		return nil
	case TypeFloat:
		if f, ok := util.ToFloat64(v); ok {
			return f
		}
		return nil
	case TypeBoolean:
		if b, ok := util.ToBool(v); ok {
			return b
		}
		return nil
	case TypeDate, TypeTime, TypeDateTime, TypeTimestamp:
		return normalizeTemporal(t, v)
	case TypeBinary, TypeJSON, TypeText, TypeString:
		return toString(v)
	default:
		return toString(v)
	}
}

// normalizeTemporal keeps only values that parse as a static date or time.
// Function defaults such as getdate() or now() are not static and become nil.
func normalizeTemporal(t LogicalType, v any) any {
	switch x := v.(type) {
	case time.Time:
		return x.Format(layoutsFor(t)[0])
	case string:
		s := strings.TrimSpace(x)
		for _, layout := range layoutsFor(t) {
			if _, err := time.Parse(layout, s); err == nil {
				return s
			}
		}
	case []byte:
		return normalizeTemporal(t, string(x))
	}
	return nil
}

func toDecimal(v any) (decimal.Decimal, bool) {
	switch x := v.(type) {
	case decimal.Decimal:
		return x, true
	case string:
		d, err := decimal.NewFromString(strings.TrimSpace(x))
		return d, err == nil
	case []byte:
		return toDecimal(string(x))
	case float32:
		return decimal.NewFromFloat32(x), true
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return decimal.Decimal{}, false
		}
		return decimal.NewFromFloat(x), true
	case json.Number:
		return toDecimal(x.String())
	}
	if n, ok := util.ToInt64(v); ok {
		return decimal.NewFromInt(n), true
	}
	return decimal.Decimal{}, false
}

func toString(v any) any {
	switch x := v.(type) {
	case string:
		return x
	case []byte:
		return string(x)
	case fmt.Stringer:
		return x.String()
	case map[string]any, []any:
		b, err := json.Marshal(x)
		if err != nil {
			return nil
		}
		return string(b)
	}
	return fmt.Sprint(v)
}

// genericTypecast converts v for parameter binding. A value that cannot be
// converted is passed through for the driver to reject.
func genericTypecast(t LogicalType, v any) any {
	if v == nil {
		return nil
	}
	switch t {
	case TypeInteger, TypeBigInt:
		if n, ok := util.ToInt64(v); ok {
			return n
		}
	case TypeDecimal:
		if d, ok := toDecimal(v); ok {
			return d
		}
	case TypeFloat:
		if f, ok := util.ToFloat64(v); ok {
			return f
		}
	case TypeBoolean:
		if b, ok := util.ToBool(v); ok {
			return b
		}
	case TypeJSON:
		switch v.(type) {
		case map[string]any, []any:
			if b, err := json.Marshal(v); err == nil {
				return string(b)
			}
		}
	}
	return v
}

// unquote strips wrapping parentheses and quote characters from a default
// literal, e.g. "(('abc'))" -> "abc" and "N'x'" -> "x".
func unquote(raw string) string {
	s := strings.TrimSpace(raw)
	for len(s) >= 2 && s[0] == '(' && s[len(s)-1] == ')' {
		s = strings.TrimSpace(s[1 : len(s)-1])
	}
	if len(s) >= 3 && (s[0] == 'N' || s[0] == 'n') && s[1] == '\'' && s[len(s)-1] == '\'' {
		s = s[1:]
	}
	if len(s) >= 2 && s[0] == '\'' && s[len(s)-1] == '\'' {
		s = strings.ReplaceAll(s[1:len(s)-1], "''", "'")
	}
	return s
}
