package rest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgeflare/sqlgate/pkg/schema"
)

func strp(s string) *string { return &s }

func intp(n int) *int { return &n }

// itemsTable builds the items table in the given dialect.
func itemsTable(d schema.Dialect, schemaName string) schema.Table {
	return schema.Table{
		Schema:      schemaName,
		Name:        "items",
		Type:        schema.TableTypeTable,
		PrimaryKeys: []string{"id"},
		Columns: []schema.Column{
			schema.NewColumn(d, schema.RawColumn{Name: "id", DBType: "int", IsPrimaryKey: true, IsAutoIncrement: true}),
			schema.NewColumn(d, schema.RawColumn{Name: "title", DBType: "nvarchar", Limits: schema.Limits{Size: intp(100)}}),
			schema.NewColumn(d, schema.RawColumn{Name: "qty", DBType: "int", IsNullable: true}),
			schema.NewColumn(d, schema.RawColumn{Name: "done", DBType: "bit", Default: strp("((0))")}),
		},
	}
}

func TestParseQueryParams(t *testing.T) {
	table := itemsTable(schema.SQLServer{}, "dbo")
	q, err := parseQueryParams(table, map[string]string{
		"qty":           "gte.5",
		"filter":        "title=like.a%;done=eq.true",
		"fields":        "title,bogus,id",
		"limit":         "5000",
		"offset":        "-3",
		"order":         "title.desc,qty.nullsfirst",
		"include_count": "",
		"unrelated":     "x",
	}, 100)
	require.NoError(t, err)

	assert.Equal(t, []string{"title", "id"}, q.Fields)
	assert.Equal(t, []Filter{
		{Column: "done", Operator: "=", Value: "true"},
		{Column: "qty", Operator: ">=", Value: "5"},
		{Column: "title", Operator: "LIKE", Value: "a%"},
	}, q.Filters)
	assert.Equal(t, []OrderParam{
		{Column: "title", Direction: "desc"},
		{Column: "qty", Direction: "asc", NullsPosition: "first"},
	}, q.Order)
	assert.Equal(t, 100, q.Limit)
	assert.Equal(t, 0, q.Offset)
	assert.True(t, q.IncludeCount)
}

func TestParseQueryParamsDefaults(t *testing.T) {
	q, err := parseQueryParams(itemsTable(schema.SQLServer{}, "dbo"), map[string]string{"limit": "abc", "ids": "1, 2,"}, 50)
	require.NoError(t, err)
	assert.Equal(t, 50, q.Limit)
	assert.Equal(t, []string{"1", "2"}, q.IDs)
	assert.False(t, q.IncludeCount)
	assert.Empty(t, q.Fields)
}

func TestParseQueryParamsErrors(t *testing.T) {
	table := itemsTable(schema.SQLServer{}, "dbo")
	tests := []struct {
		name   string
		params map[string]string
	}{
		{"unknown filter column", map[string]string{"filter": "owner=eq.1"}},
		{"filter without operator", map[string]string{"filter": "title"}},
		{"unknown order column", map[string]string{"order": "owner.desc"}},
		{"bad is value", map[string]string{"qty": "is.maybe"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseQueryParams(table, tt.params, 100)
			assert.ErrorIs(t, err, ErrBadParam)
		})
	}

	noKey := table
	noKey.PrimaryKeys = nil
	_, err := parseQueryParams(noKey, map[string]string{"ids": "1"}, 100)
	assert.ErrorIs(t, err, ErrBadParam)
}

func TestParseFilterParam(t *testing.T) {
	tests := []struct {
		value string
		want  Filter
	}{
		{"7", Filter{Column: "c", Operator: "=", Value: "7"}},
		{"neq.7", Filter{Column: "c", Operator: "<>", Value: "7"}},
		{"gt.7", Filter{Column: "c", Operator: ">", Value: "7"}},
		{"lte.7", Filter{Column: "c", Operator: "<=", Value: "7"}},
		{"ilike.*x*", Filter{Column: "c", Operator: "ILIKE", Value: "*x*"}},
		{"in.(1,2, 3)", Filter{Column: "c", Operator: "IN", Values: []any{"1", "2", "3"}}},
		{"is.null", Filter{Column: "c", Operator: "IS"}},
		{"is.notnull", Filter{Column: "c", Operator: "IS NOT"}},
		{"eq.null", Filter{Column: "c", Operator: "IS"}},
		{"neq.null", Filter{Column: "c", Operator: "IS NOT"}},
	}
	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			got, err := parseFilterParam("c", tt.value)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseOrderParam(t *testing.T) {
	assert.Equal(t, []OrderParam{
		{Column: "a", Direction: "asc"},
		{Column: "b", Direction: "desc", NullsPosition: "last"},
		{Column: "c", Direction: "desc"},
	}, parseOrderParam("a, b.desc.nullslast,,c DESC"))
}

func TestParsePrefer(t *testing.T) {
	assert.Nil(t, parsePrefer(""))
	p := parsePrefer(`return=minimal, count="exact"`)
	assert.True(t, p.WantsMinimal())
	assert.True(t, p.WantsCountExact())

	p = parsePrefer("return=bogus")
	assert.False(t, p.WantsMinimal())
	assert.False(t, (*Prefer)(nil).WantsCountExact())
}
