package rest

import (
	"cmp"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/edgeflare/sqlgate/pkg/schema"
	"github.com/edgeflare/sqlgate/pkg/util"
)

var (
	// ErrBadParam reports an invalid query parameter.
	ErrBadParam = errors.New("invalid query parameter")
	// ErrNoColumns reports a write whose record names no known column.
	ErrNoColumns = errors.New("no valid columns to write")
	// ErrNoFilter reports an update or delete without filter or ids.
	ErrNoFilter = errors.New("filter or ids required")
	// ErrNotFound reports a record lookup by id that matched nothing.
	ErrNotFound = errors.New("record not found")
)

// QueryParams holds the parsed query parameters of a resource request.
type QueryParams struct {
	Fields       []string     // Columns to select
	Filters      []Filter     // Column filters, combined with AND
	IDs          []string     // Primary key values
	Order        []OrderParam // Order by columns
	Limit        int          // Limit results
	Offset       int          // Offset results
	IncludeCount bool         // Report the unpaged row count
}

// Filter is one column condition, e.g. qty=gte.5.
type Filter struct {
	Column   string
	Operator string // SQL operator
	Value    any    // nil for IS NULL / IS NOT NULL
	Values   []any  // IN list
}

// operators maps PostgREST operator names to SQL.
var operators = []struct{ name, sql string }{
	{"eq", "="},
	{"neq", "<>"},
	{"gte", ">="},
	{"gt", ">"},
	{"lte", "<="},
	{"lt", "<"},
	{"like", "LIKE"},
	{"ilike", "ILIKE"},
	{"in", "IN"},
	{"is", "IS"},
}

var reserved = map[string]bool{
	"fields":        true,
	"select":        true,
	"filter":        true,
	"ids":           true,
	"order":         true,
	"limit":         true,
	"offset":        true,
	"include_count": true,
}

// parseQueryParams reads the resource parameters from params. Parameters named
// after a column are filters; other unknown parameters are ignored.
func parseQueryParams(table schema.Table, params map[string]string, maxRecords int) (QueryParams, error) {
	q := QueryParams{Limit: maxRecords}

	fields := params["fields"]
	if fields == "" {
		fields = params["select"]
	}
	if fields != "" && fields != "*" {
		for _, f := range strings.Split(fields, ",") {
			f = strings.TrimSpace(f)
			if _, ok := table.Column(f); ok {
				q.Fields = append(q.Fields, f)
			}
		}
	}

	if v := params["filter"]; v != "" {
		for _, clause := range strings.Split(v, ";") {
			col, expr, ok := strings.Cut(strings.TrimSpace(clause), "=")
			if !ok {
				return q, fmt.Errorf("%w: filter %q", ErrBadParam, clause)
			}
			if _, ok := table.Column(col); !ok {
				return q, fmt.Errorf("%w: unknown filter column %q", ErrBadParam, col)
			}
			f, err := parseFilterParam(col, expr)
			if err != nil {
				return q, err
			}
			q.Filters = append(q.Filters, f)
		}
	}

	for key, value := range params {
		if reserved[key] {
			continue
		}
		if _, ok := table.Column(key); !ok {
			continue
		}
		f, err := parseFilterParam(key, value)
		if err != nil {
			return q, err
		}
		q.Filters = append(q.Filters, f)
	}
	// map iteration order; keep statements stable
	slices.SortStableFunc(q.Filters, func(a, b Filter) int { return cmp.Compare(a.Column, b.Column) })

	if v := params["ids"]; v != "" {
		if _, ok := table.PrimaryKey(); !ok {
			return q, fmt.Errorf("%w: ids on a table without a single primary key", ErrBadParam)
		}
		for _, id := range strings.Split(v, ",") {
			if id = strings.TrimSpace(id); id != "" {
				q.IDs = append(q.IDs, id)
			}
		}
	}

	if v := params["order"]; v != "" {
		q.Order = parseOrderParam(v)
		for _, o := range q.Order {
			if _, ok := table.Column(o.Column); !ok {
				return q, fmt.Errorf("%w: unknown order column %q", ErrBadParam, o.Column)
			}
		}
	}

	if v := params["limit"]; v != "" {
		q.Limit = parseIntParam(v, maxRecords)
	}
	if maxRecords > 0 && (q.Limit <= 0 || q.Limit > maxRecords) {
		q.Limit = maxRecords
	}
	if v := params["offset"]; v != "" {
		q.Offset = max(parseIntParam(v, 0), 0)
	}
	if v, ok := params["include_count"]; ok {
		q.IncludeCount = v == "" || util.Truthy(v)
	}
	return q, nil
}

// parseFilterParam parses "op.value". A value without operator means eq.
func parseFilterParam(column, value string) (Filter, error) {
	f := Filter{Column: column, Operator: "=", Value: value}
	for _, op := range operators {
		if rest, ok := strings.CutPrefix(value, op.name+"."); ok {
			f.Operator = op.sql
			f.Value = rest
			break
		}
	}

	val := f.Value.(string)
	switch f.Operator {
	case "IN":
		val = strings.TrimSuffix(strings.TrimPrefix(val, "("), ")")
		for _, v := range strings.Split(val, ",") {
			f.Values = append(f.Values, strings.Trim(strings.TrimSpace(v), `"`))
		}
		f.Value = nil
	case "IS":
		switch strings.ToLower(val) {
		case "null":
			f.Value = nil
		case "notnull", "not.null":
			f.Operator = "IS NOT"
			f.Value = nil
		default:
			return f, fmt.Errorf("%w: %s=is.%s", ErrBadParam, column, val)
		}
	case "=":
		if val == "null" {
			f.Operator, f.Value = "IS", nil
		}
	case "<>":
		if val == "null" {
			f.Operator, f.Value = "IS NOT", nil
		}
	}
	return f, nil
}

// Parse integer parameter with default value
func parseIntParam(value string, defaultValue int) int {
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return defaultValue
	}
	return n
}
