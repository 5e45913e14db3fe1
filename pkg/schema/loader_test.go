package schema

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var columnsHeader = []string{
	"TABLE_NAME", "COLUMN_NAME", "DATA_TYPE", "CHARACTER_MAXIMUM_LENGTH",
	"NUMERIC_PRECISION", "NUMERIC_SCALE", "IS_NULLABLE", "COLUMN_DEFAULT", "IS_IDENTITY",
}

var constraintsHeader = []string{
	"TABLE_NAME", "COLUMN_NAME", "CONSTRAINT_TYPE", "REF_TABLE", "REF_COLUMN", "UPDATE_RULE", "DELETE_RULE",
}

func TestSQLLoaderSQLServer(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`FROM INFORMATION_SCHEMA\.TABLES`).WithArgs("dbo").
		WillReturnRows(sqlmock.NewRows([]string{"TABLE_NAME", "TABLE_TYPE"}).
			AddRow("items", "BASE TABLE").
			AddRow("users", "BASE TABLE").
			AddRow("active_items", "VIEW"))

	mock.ExpectQuery(`FROM INFORMATION_SCHEMA\.TABLE_CONSTRAINTS`).WithArgs("dbo").
		WillReturnRows(sqlmock.NewRows(constraintsHeader).
			AddRow("items", "id", "PRIMARY KEY", nil, nil, nil, nil).
			AddRow("items", "owner_id", "FOREIGN KEY", "users", "id", "NO ACTION", "CASCADE").
			AddRow("users", "id", "PRIMARY KEY", nil, nil, nil, nil))

	mock.ExpectQuery(`FROM INFORMATION_SCHEMA\.COLUMNS`).WithArgs("dbo").
		WillReturnRows(sqlmock.NewRows(columnsHeader).
			AddRow("items", "id", "int", nil, int64(10), int64(0), int64(0), nil, int64(1)).
			AddRow("items", "title", "nvarchar", int64(100), nil, nil, int64(0), "('untitled')", int64(0)).
			AddRow("items", "body", "nvarchar", int64(-1), nil, nil, int64(1), "(NULL)", int64(0)).
			AddRow("items", "done", "bit", nil, nil, nil, int64(0), "((0))", int64(0)).
			AddRow("items", "created", "datetime", nil, nil, nil, int64(0), "(getdate())", int64(0)).
			AddRow("items", "owner_id", "int", nil, int64(10), int64(0), int64(1), nil, int64(0)).
			AddRow("users", "id", "int", nil, int64(10), int64(0), int64(0), nil, int64(1)).
			AddRow("gone", "id", "int", nil, nil, nil, int64(0), nil, int64(0)))

	loader := NewSQLLoader(db, SQLServer{}, "")
	tables, err := loader.Load(context.Background())
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	require.Len(t, tables, 3)
	assert.Equal(t, TableTypeView, tables["active_items"].Type)

	items := tables["items"]
	assert.Equal(t, "dbo", items.Schema)
	assert.Equal(t, []string{"id"}, items.PrimaryKeys)
	assert.Equal(t, []string{"id", "title", "body", "done", "created", "owner_id"}, items.ColumnNames())

	id, ok := items.PrimaryKey()
	require.True(t, ok)
	assert.True(t, id.IsAutoIncrement)
	assert.Equal(t, TypeInteger, id.Type)

	title, _ := items.Column("title")
	assert.Equal(t, TypeString, title.Type)
	assert.Equal(t, 100, *title.Size)
	assert.Equal(t, "untitled", title.Default)

	body, _ := items.Column("body")
	assert.Equal(t, TypeText, body.Type)
	assert.Nil(t, body.Size)
	assert.Nil(t, body.Default)
	assert.True(t, body.IsNullable)

	done, _ := items.Column("done")
	assert.Equal(t, TypeBoolean, done.Type)
	assert.Equal(t, false, done.Default)

	created, _ := items.Column("created")
	assert.Equal(t, TypeDateTime, created.Type)
	assert.Nil(t, created.Default)

	owner, _ := items.Column("owner_id")
	assert.True(t, owner.IsForeignKey)
	assert.Equal(t, &ForeignKeyRef{Table: "users", Column: "id", OnUpdate: "NO ACTION", OnDelete: "CASCADE"}, owner.ForeignKey)
}

func TestSQLLoaderPostgresSerial(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`FROM information_schema\.tables`).WithArgs("public").
		WillReturnRows(sqlmock.NewRows([]string{"table_name", "table_type"}).AddRow("todos", "BASE TABLE"))
	mock.ExpectQuery(`FROM information_schema\.table_constraints`).WithArgs("public").
		WillReturnRows(sqlmock.NewRows(constraintsHeader).AddRow("todos", "id", "PRIMARY KEY", nil, nil, nil, nil))
	mock.ExpectQuery(`FROM information_schema\.columns`).WithArgs("public").
		WillReturnRows(sqlmock.NewRows(columnsHeader).
			AddRow("todos", "id", "integer", nil, int64(32), int64(0), false, "nextval('todos_id_seq'::regclass)", false).
			AddRow("todos", "done", "boolean", nil, nil, nil, false, "false", false))

	tables, err := NewSQLLoader(db, Postgres{}, "").Load(context.Background())
	require.NoError(t, err)

	id, ok := tables["todos"].PrimaryKey()
	require.True(t, ok)
	assert.True(t, id.IsAutoIncrement)
	assert.Nil(t, id.Default)

	done, _ := tables["todos"].Column("done")
	assert.Equal(t, false, done.Default)
}

func TestSQLLoaderQueryError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`FROM INFORMATION_SCHEMA\.TABLES`).WillReturnError(errors.New("connection reset"))

	_, err = NewSQLLoader(db, MySQL{}, "crm").Load(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "query tables")
}
