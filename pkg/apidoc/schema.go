package apidoc

import (
	"github.com/edgeflare/sqlgate/pkg/schema"
)

// columnSchema maps a column's logical type to a JSON schema.
func columnSchema(c schema.Column) Schema {
	s := Schema{}
	switch c.Type {
	case schema.TypeInteger:
		s["type"] = "integer"
		s["format"] = "int32"
	case schema.TypeBigInt:
		s["type"] = "integer"
		s["format"] = "int64"
	case schema.TypeDecimal:
		s["type"] = "number"
		s["format"] = "decimal"
	case schema.TypeFloat:
		s["type"] = "number"
		s["format"] = "double"
	case schema.TypeBoolean:
		s["type"] = "boolean"
	case schema.TypeDate:
		s["type"] = "string"
		s["format"] = "date"
	case schema.TypeTime:
		s["type"] = "string"
		s["format"] = "time"
	case schema.TypeDateTime, schema.TypeTimestamp:
		s["type"] = "string"
		s["format"] = "date-time"
	case schema.TypeBinary:
		s["type"] = "string"
		s["format"] = "byte"
	case schema.TypeJSON:
		s["type"] = []string{"object", "array"}
	default:
		s["type"] = "string"
		if c.Size != nil {
			s["maxLength"] = *c.Size
		}
	}
	if c.IsNullable {
		s["nullable"] = true
	}
	if c.Default != nil {
		s["default"] = c.Default
	}
	if c.Label != "" {
		s["title"] = c.Label
	}
	return s
}

// paramSchema is the simplified schema used for path and query parameters.
func paramSchema(c schema.Column) Schema {
	switch c.Type {
	case schema.TypeInteger, schema.TypeBigInt:
		return Schema{"type": "integer"}
	case schema.TypeDecimal, schema.TypeFloat:
		return Schema{"type": "number"}
	case schema.TypeBoolean:
		return Schema{"type": "boolean"}
	}
	return Schema{"type": "string"}
}

// recordSchema describes one record of t. The writable form leaves out
// server-generated columns and requires the non-nullable columns without a
// default.
func recordSchema(t schema.Table, writable bool) Schema {
	props := make(map[string]any, len(t.Columns))
	var required []string
	for _, c := range t.Columns {
		if writable && c.IsReadOnly() {
			continue
		}
		props[c.Alias()] = columnSchema(c)
		if writable && !c.IsNullable && c.Default == nil {
			required = append(required, c.Alias())
		}
	}
	s := Schema{"type": "object", "properties": props}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}
