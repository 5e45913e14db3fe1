package testutil

import (
	"database/sql/driver"

	"github.com/DATA-DOG/go-sqlmock"
)

// MockColumn is one INFORMATION_SCHEMA.COLUMNS row.
type MockColumn struct {
	Name          string
	DBType        string
	Size          any
	Nullable      bool
	Default       any
	AutoIncrement bool
	PrimaryKey    bool
}

// ExpectCatalog queues the three catalog queries a schema load issues for a
// single table.
func ExpectCatalog(mock sqlmock.Sqlmock, schemaName, table string, cols ...MockColumn) {
	mock.ExpectQuery(`(?i)FROM INFORMATION_SCHEMA\.TABLES`).WithArgs(schemaName).
		WillReturnRows(sqlmock.NewRows([]string{"TABLE_NAME", "TABLE_TYPE"}).AddRow(table, "BASE TABLE"))

	constraints := sqlmock.NewRows([]string{
		"TABLE_NAME", "COLUMN_NAME", "CONSTRAINT_TYPE", "REF_TABLE", "REF_COLUMN", "UPDATE_RULE", "DELETE_RULE",
	})
	for _, c := range cols {
		if c.PrimaryKey {
			constraints.AddRow(table, c.Name, "PRIMARY KEY", nil, nil, nil, nil)
		}
	}
	mock.ExpectQuery(`(?i)FROM INFORMATION_SCHEMA\.TABLE_CONSTRAINTS`).WithArgs(schemaName).WillReturnRows(constraints)

	columns := sqlmock.NewRows([]string{
		"TABLE_NAME", "COLUMN_NAME", "DATA_TYPE", "CHARACTER_MAXIMUM_LENGTH",
		"NUMERIC_PRECISION", "NUMERIC_SCALE", "IS_NULLABLE", "COLUMN_DEFAULT", "IS_IDENTITY",
	})
	for _, c := range cols {
		columns.AddRow(table, c.Name, c.DBType, c.Size, nil, nil, flag(c.Nullable), c.Default, flag(c.AutoIncrement))
	}
	mock.ExpectQuery(`(?i)FROM INFORMATION_SCHEMA\.COLUMNS`).WithArgs(schemaName).WillReturnRows(columns)
}

func flag(b bool) driver.Value {
	if b {
		return int64(1)
	}
	return int64(0)
}
