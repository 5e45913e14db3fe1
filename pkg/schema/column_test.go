package schema

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intp(n int) *int { return &n }

func strp(s string) *string { return &s }

func TestSQLServerExtractType(t *testing.T) {
	d := SQLServer{}
	tests := []struct {
		name   string
		dbType string
		limits Limits
		want   LogicalType
	}{
		{"varchar without size", "varchar", Limits{}, TypeText},
		{"nvarchar max", "nvarchar(max)", Limits{}, TypeText},
		{"VARCHAR upper without size", "VARCHAR", Limits{}, TypeText},
		{"varchar with size", "varchar", Limits{Size: intp(50)}, TypeString},
		{"nvarchar with size", "nvarchar", Limits{Size: intp(255)}, TypeString},
		{"char", "char", Limits{Size: intp(10)}, TypeString},
		{"bit", "bit", Limits{}, TypeBoolean},
		{"int", "int", Limits{Precision: intp(10)}, TypeInteger},
		{"bigint", "bigint", Limits{}, TypeBigInt},
		{"decimal", "decimal", Limits{Precision: intp(18), Scale: intp(2)}, TypeDecimal},
		{"money", "money", Limits{}, TypeDecimal},
		{"datetime2", "datetime2", Limits{}, TypeDateTime},
		{"datetimeoffset", "datetimeoffset", Limits{}, TypeDateTime},
		{"timestamp is rowversion", "timestamp", Limits{}, TypeTimestamp},
		{"varbinary", "varbinary", Limits{Size: intp(16)}, TypeBinary},
		{"ntext", "ntext", Limits{}, TypeText},
		{"uniqueidentifier", "uniqueidentifier", Limits{}, TypeString},
		{"unknown vendor type", "sql_variant", Limits{}, TypeString},
		{"geography", "geography", Limits{}, TypeString},
		{"malformed", "((int", Limits{}, TypeString},
		{"empty", "", Limits{}, TypeString},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, d.ExtractType(tt.dbType, tt.limits))
		})
	}
}

func TestSQLServerExtractLimitIsNoop(t *testing.T) {
	assert.Equal(t, Limits{}, SQLServer{}.ExtractLimit("varchar(50)"))
	assert.Equal(t, Limits{}, SQLServer{}.ExtractLimit("decimal(18,2)"))
}

func TestSQLServerExtractDefault(t *testing.T) {
	d := SQLServer{}
	tests := []struct {
		name string
		typ  LogicalType
		raw  string
		want any
	}{
		{"null literal string", TypeString, "(NULL)", nil},
		{"null literal integer", TypeInteger, "(NULL)", nil},
		{"null literal boolean", TypeBoolean, "(NULL)", nil},
		{"boolean true", TypeBoolean, "((1))", true},
		{"boolean false", TypeBoolean, "((0))", false},
		{"boolean unparseable", TypeBoolean, "((2))", nil},
		{"boolean bare one", TypeBoolean, "1", nil},
		{"timestamp anything", TypeTimestamp, "(getdate())", nil},
		{"timestamp literal", TypeTimestamp, "('2020-01-01')", nil},
		{"integer", TypeInteger, "((42))", int64(42)},
		{"negative integer", TypeInteger, "((-7))", int64(-7)},
		{"bigint", TypeBigInt, "((9000000000))", int64(9000000000)},
		{"float", TypeFloat, "((1.5))", 1.5},
		{"decimal", TypeDecimal, "((10.25))", decimal.RequireFromString("10.25")},
		{"string", TypeString, "('abc')", "abc"},
		{"text", TypeText, "('hello world')", "hello world"},
		{"datetime function", TypeDateTime, "(getdate())", nil},
		{"datetime literal", TypeDateTime, "('2024-05-01 10:00:00')", "2024-05-01 10:00:00"},
		{"date literal", TypeDate, "('2024-05-01')", "2024-05-01"},
		{"integer garbage", TypeInteger, "(abc)", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := d.ExtractDefault(tt.typ, tt.raw)
			if want, ok := tt.want.(decimal.Decimal); ok {
				require.IsType(t, decimal.Decimal{}, got)
				assert.True(t, want.Equal(got.(decimal.Decimal)))
				return
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSQLServerTypecast(t *testing.T) {
	d := SQLServer{}
	for _, v := range []any{true, 1, "1", "true", "yes", int64(1), 7, "x"} {
		assert.Equal(t, 1, d.Typecast(TypeBoolean, v), "value %v", v)
	}
	for _, v := range []any{false, 0, "0", "false", "", nil, int64(0)} {
		assert.Equal(t, 0, d.Typecast(TypeBoolean, v), "value %v", v)
	}

	assert.Equal(t, int64(12), d.Typecast(TypeInteger, "12"))
	assert.Equal(t, "abc", d.Typecast(TypeString, "abc"))
	assert.Equal(t, "not-a-number", d.Typecast(TypeInteger, "not-a-number"))
}

func TestSQLServerSelectExpression(t *testing.T) {
	tests := []struct {
		name   string
		raw    RawColumn
		quoted bool
		want   string
	}{
		{
			name: "datetime converted with style 127",
			raw:  RawColumn{Name: "created", DBType: "datetime"},
			want: "(CONVERT(nvarchar(30), created, 127)) AS created",
		},
		{
			name:   "datetimeoffset quoted",
			raw:    RawColumn{Name: "at", DBType: "datetimeoffset"},
			quoted: true,
			want:   "(CONVERT(nvarchar(30), [at], 127)) AS [at]",
		},
		{
			name: "geography stringified",
			raw:  RawColumn{Name: "loc", DBType: "geography"},
			want: "(loc.ToString()) AS loc",
		},
		{
			name:   "hierarchyid stringified",
			raw:    RawColumn{Name: "node", DBType: "hierarchyid", Label: "path"},
			quoted: true,
			want:   "([node].ToString()) AS [path]",
		},
		{
			name: "plain column",
			raw:  RawColumn{Name: "name", DBType: "nvarchar", Limits: Limits{Size: intp(50)}},
			want: "name",
		},
		{
			name: "unquoted label",
			raw:  RawColumn{Name: "first_name", DBType: "nvarchar", Label: "firstName"},
			want: "first_name AS firstName",
		},
		{
			name:   "plain column with label",
			raw:    RawColumn{Name: "first_name", DBType: "nvarchar", Label: "firstName", Limits: Limits{Size: intp(50)}},
			quoted: true,
			want:   "[first_name] AS [firstName]",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewColumn(SQLServer{}, tt.raw)
			assert.Equal(t, tt.want, c.SelectExpression(tt.quoted))
		})
	}
}

func TestNewColumn(t *testing.T) {
	c := NewColumn(SQLServer{}, RawColumn{
		Name:         "active",
		DBType:       "bit",
		Default:      strp("((1))"),
		IsNullable:   false,
		IsPrimaryKey: false,
	})
	assert.Equal(t, TypeBoolean, c.Type)
	assert.Equal(t, true, c.Default)

	c = NewColumn(SQLServer{}, RawColumn{Name: "notes", DBType: "varchar"})
	assert.Equal(t, TypeText, c.Type)
	assert.Nil(t, c.Default)

	c = NewColumn(SQLServer{}, RawColumn{
		Name:       "owner_id",
		DBType:     "int",
		ForeignKey: &ForeignKeyRef{Table: "users", Column: "id", OnDelete: "CASCADE"},
	})
	assert.True(t, c.IsForeignKey)
	assert.Equal(t, "users", c.ForeignKey.Table)
	assert.Equal(t, "owner_id", c.Alias())
}

func TestColumnIsReadOnly(t *testing.T) {
	assert.True(t, NewColumn(SQLServer{}, RawColumn{Name: "id", DBType: "int", IsAutoIncrement: true}).IsReadOnly())
	assert.True(t, NewColumn(SQLServer{}, RawColumn{Name: "rv", DBType: "timestamp"}).IsReadOnly())
	assert.False(t, NewColumn(Postgres{}, RawColumn{Name: "created", DBType: "timestamp"}).IsReadOnly())
	assert.False(t, NewColumn(MySQL{}, RawColumn{Name: "name", DBType: "varchar(20)"}).IsReadOnly())
}

func TestNewColumnLimitsFromTypeString(t *testing.T) {
	c := NewColumn(Postgres{}, RawColumn{Name: "price", DBType: "numeric(10,2)"})
	require.NotNil(t, c.Precision)
	require.NotNil(t, c.Scale)
	assert.Equal(t, 10, *c.Precision)
	assert.Equal(t, 2, *c.Scale)

	c = NewColumn(MySQL{}, RawColumn{Name: "code", DBType: "varchar(12)"})
	require.NotNil(t, c.Size)
	assert.Equal(t, 12, *c.Size)
	assert.Equal(t, TypeString, c.Type)

	// loader-supplied limits win
	c = NewColumn(MySQL{}, RawColumn{Name: "code", DBType: "varchar(12)", Limits: Limits{Size: intp(99)}})
	assert.Equal(t, 99, *c.Size)
}

func TestNormalizeDefaultIdempotent(t *testing.T) {
	tests := []struct {
		d      Dialect
		dbType string
		raw    string
	}{
		{SQLServer{}, "int", "((5))"},
		{SQLServer{}, "bigint", "((123456789012))"},
		{SQLServer{}, "bit", "((1))"},
		{SQLServer{}, "bit", "((0))"},
		{SQLServer{}, "decimal", "((3.14))"},
		{SQLServer{}, "float", "((2.5))"},
		{SQLServer{}, "nvarchar", "(N'hi')"},
		{SQLServer{}, "date", "('2024-01-31')"},
		{SQLServer{}, "datetime2", "(getdate())"},
		{Postgres{}, "integer", "nextval('items_id_seq'::regclass)"},
		{Postgres{}, "character varying", "'open'::character varying"},
		{Postgres{}, "boolean", "true"},
		{Postgres{}, "numeric", "0.00"},
		{MySQL{}, "tinyint(1)", "1"},
		{MySQL{}, "timestamp", "CURRENT_TIMESTAMP"},
		{MySQL{}, "varchar(20)", "'x'"},
	}

	for _, tt := range tests {
		t.Run(tt.d.Driver()+"/"+tt.dbType+"/"+tt.raw, func(t *testing.T) {
			c := NewColumn(tt.d, RawColumn{Name: "c", DBType: tt.dbType, Default: strp(tt.raw)})
			once := c.NormalizeDefault(c.Default)
			twice := c.NormalizeDefault(once)
			assert.Equal(t, c.Default, once)
			assert.Equal(t, once, twice)
			assertMatchesType(t, c.Type, once)
		})
	}
}

func assertMatchesType(t *testing.T, typ LogicalType, v any) {
	t.Helper()
	if v == nil {
		return
	}
	switch typ {
	case TypeBoolean:
		assert.IsType(t, true, v)
	case TypeInteger, TypeBigInt:
		assert.IsType(t, int64(0), v)
	case TypeFloat:
		assert.IsType(t, float64(0), v)
	case TypeDecimal:
		assert.IsType(t, decimal.Decimal{}, v)
	default:
		assert.IsType(t, "", v)
	}
}

func TestPostgresDialect(t *testing.T) {
	d := Postgres{}

	assert.Equal(t, TypeBoolean, d.ExtractType("boolean", Limits{}))
	assert.Equal(t, TypeTimestamp, d.ExtractType("timestamp with time zone", Limits{}))
	assert.Equal(t, TypeTime, d.ExtractType("time without time zone", Limits{}))
	assert.Equal(t, TypeFloat, d.ExtractType("double precision", Limits{}))
	assert.Equal(t, TypeString, d.ExtractType("character varying", Limits{Size: intp(10)}))
	assert.Equal(t, TypeJSON, d.ExtractType("ARRAY", Limits{}))
	assert.Equal(t, TypeJSON, d.ExtractType("jsonb", Limits{}))

	assert.Nil(t, d.ExtractDefault(TypeInteger, "nextval('t_id_seq'::regclass)"))
	assert.Nil(t, d.ExtractDefault(TypeString, "NULL::character varying"))
	assert.Equal(t, "open", d.ExtractDefault(TypeString, "'open'::character varying"))
	assert.Equal(t, "it's", d.ExtractDefault(TypeString, "'it''s'::text"))
	assert.Equal(t, false, d.ExtractDefault(TypeBoolean, "false"))
	assert.Nil(t, d.ExtractDefault(TypeTimestamp, "now()"))

	assert.Equal(t, true, d.Typecast(TypeBoolean, "t"))
	assert.Equal(t, `"user"`, d.Quote("user"))
	assert.Equal(t, "$3", d.Placeholder(3))
	assert.Equal(t, " LIMIT 10 OFFSET 20", d.LimitOffset(10, 20, false))

	c := NewColumn(d, RawColumn{Name: "id", DBType: "integer", Label: "ID"})
	assert.Equal(t, `"id" AS "ID"`, c.SelectExpression(true))
	assert.Equal(t, "id AS ID", c.SelectExpression(false))
}

func TestMySQLDialect(t *testing.T) {
	d := MySQL{}

	assert.Equal(t, TypeBoolean, d.ExtractType("tinyint(1)", Limits{}))
	assert.Equal(t, TypeInteger, d.ExtractType("tinyint(4)", Limits{}))
	assert.Equal(t, TypeString, d.ExtractType("enum('a','b')", Limits{}))
	assert.Equal(t, TypeText, d.ExtractType("longtext", Limits{}))
	assert.Equal(t, TypeDateTime, d.ExtractType("datetime", Limits{}))

	assert.Nil(t, d.ExtractDefault(TypeTimestamp, "CURRENT_TIMESTAMP"))
	assert.Nil(t, d.ExtractDefault(TypeDateTime, "current_timestamp()"))
	assert.Equal(t, true, d.ExtractDefault(TypeBoolean, "1"))
	assert.Equal(t, int64(3), d.ExtractDefault(TypeInteger, "3"))

	assert.Equal(t, "`order`", d.Quote("order"))
	assert.Equal(t, "?", d.Placeholder(9))
	assert.Equal(t, " LIMIT 5", d.LimitOffset(5, 0, true))
	out, ret := d.Returning(OpInsert)
	assert.Empty(t, out)
	assert.Empty(t, ret)
}

func TestSQLServerPaging(t *testing.T) {
	d := SQLServer{}
	assert.Equal(t, "", d.LimitOffset(0, 0, false))
	assert.Equal(t, " ORDER BY (SELECT NULL) OFFSET 0 ROWS FETCH NEXT 10 ROWS ONLY", d.LimitOffset(10, 0, false))
	assert.Equal(t, " OFFSET 5 ROWS FETCH NEXT 10 ROWS ONLY", d.LimitOffset(10, 5, true))
	assert.Equal(t, "@p2", d.Placeholder(2))
	assert.Equal(t, "[a]]b]", d.Quote("a]b"))

	out, ret := d.Returning(OpDelete)
	assert.Equal(t, "OUTPUT DELETED.*", out)
	assert.Empty(t, ret)
}

func TestLookupDialect(t *testing.T) {
	for _, tag := range []string{DriverSQLServer, DriverPostgres, DriverMySQL} {
		d, err := LookupDialect(tag)
		require.NoError(t, err)
		assert.Equal(t, tag, d.Driver())
	}

	_, err := LookupDialect("oracle")
	require.ErrorIs(t, err, ErrUnknownDialect)
	assert.Equal(t, []string{"mysql", "pgsql", "sqlsrv"}, Drivers())
}
