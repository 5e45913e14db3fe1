package rest

import (
	"strings"

	"github.com/edgeflare/sqlgate/pkg/schema"
)

type OrderParam struct {
	Column        string
	Direction     string // asc or desc
	NullsPosition string // first, last or "" for the database default
}

func parseOrderParam(order string) []OrderParam {
	parts := strings.Split(order, ",")
	result := make([]OrderParam, 0, len(parts))

	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		o := OrderParam{Direction: "asc"}

		// Check for nulls position
		if p, ok := strings.CutSuffix(part, ".nullsfirst"); ok {
			part, o.NullsPosition = p, "first"
		} else if p, ok := strings.CutSuffix(part, ".nullslast"); ok {
			part, o.NullsPosition = p, "last"
		}

		// Check for explicit direction
		if p, ok := strings.CutSuffix(part, ".desc"); ok {
			part, o.Direction = p, "desc"
		} else if p, ok := strings.CutSuffix(part, ".asc"); ok {
			part = p
		} else if c, dir, ok := strings.Cut(part, " "); ok {
			// "col desc" as sent by clients that use SQL syntax
			part = c
			if strings.EqualFold(strings.TrimSpace(dir), "desc") {
				o.Direction = "desc"
			}
		}

		o.Column = part
		result = append(result, o)
	}

	return result
}

// orderClause renders one ORDER BY term. Only PostgreSQL understands
// NULLS FIRST/LAST; other dialects sort on a null indicator first.
func orderClause(d schema.Dialect, o OrderParam) string {
	col := d.Quote(o.Column)
	dir := strings.ToUpper(o.Direction)
	switch {
	case o.NullsPosition == "":
		return col + " " + dir
	case d.Driver() == schema.DriverPostgres:
		return col + " " + dir + " NULLS " + strings.ToUpper(o.NullsPosition)
	case o.NullsPosition == "first":
		return "CASE WHEN " + col + " IS NULL THEN 0 ELSE 1 END, " + col + " " + dir
	default:
		return "CASE WHEN " + col + " IS NULL THEN 1 ELSE 0 END, " + col + " " + dir
	}
}
