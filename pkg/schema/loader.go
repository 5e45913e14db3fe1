package schema

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// catalog holds the INFORMATION_SCHEMA queries of one vendor. Every query
// takes the schema name as its only argument.
//
//	tables:      table_name, table_type
//	columns:     table_name, column_name, db_type, char_len, precision, scale,
//	             is_nullable, column_default, is_auto_increment
//	constraints: table_name, column_name, constraint_type, ref_table,
//	             ref_column, update_rule, delete_rule
type catalog struct {
	tables      string
	columns     string
	constraints string
}

var catalogs = map[string]catalog{
	DriverSQLServer: {
		tables: `SELECT TABLE_NAME, TABLE_TYPE FROM INFORMATION_SCHEMA.TABLES
			WHERE TABLE_SCHEMA = @p1 ORDER BY TABLE_NAME`,
		columns: `SELECT c.TABLE_NAME, c.COLUMN_NAME, c.DATA_TYPE,
				c.CHARACTER_MAXIMUM_LENGTH, c.NUMERIC_PRECISION, c.NUMERIC_SCALE,
				CASE WHEN c.IS_NULLABLE = 'YES' THEN 1 ELSE 0 END,
				c.COLUMN_DEFAULT,
				COALESCE(COLUMNPROPERTY(OBJECT_ID(QUOTENAME(c.TABLE_SCHEMA) + '.' + QUOTENAME(c.TABLE_NAME)), c.COLUMN_NAME, 'IsIdentity'), 0)
			FROM INFORMATION_SCHEMA.COLUMNS c
			WHERE c.TABLE_SCHEMA = @p1
			ORDER BY c.TABLE_NAME, c.ORDINAL_POSITION`,
		constraints: `SELECT kcu.TABLE_NAME, kcu.COLUMN_NAME, tc.CONSTRAINT_TYPE,
				rk.TABLE_NAME, rk.COLUMN_NAME, rc.UPDATE_RULE, rc.DELETE_RULE
			FROM INFORMATION_SCHEMA.TABLE_CONSTRAINTS tc
			JOIN INFORMATION_SCHEMA.KEY_COLUMN_USAGE kcu
				ON kcu.CONSTRAINT_SCHEMA = tc.CONSTRAINT_SCHEMA AND kcu.CONSTRAINT_NAME = tc.CONSTRAINT_NAME
			LEFT JOIN INFORMATION_SCHEMA.REFERENTIAL_CONSTRAINTS rc
				ON rc.CONSTRAINT_SCHEMA = tc.CONSTRAINT_SCHEMA AND rc.CONSTRAINT_NAME = tc.CONSTRAINT_NAME
			LEFT JOIN INFORMATION_SCHEMA.KEY_COLUMN_USAGE rk
				ON rk.CONSTRAINT_SCHEMA = rc.UNIQUE_CONSTRAINT_SCHEMA AND rk.CONSTRAINT_NAME = rc.UNIQUE_CONSTRAINT_NAME
				AND rk.ORDINAL_POSITION = kcu.ORDINAL_POSITION
			WHERE tc.TABLE_SCHEMA = @p1 AND tc.CONSTRAINT_TYPE IN ('PRIMARY KEY', 'FOREIGN KEY')`,
	},
	DriverPostgres: {
		tables: `SELECT table_name, table_type FROM information_schema.tables
			WHERE table_schema = $1 ORDER BY table_name`,
		columns: `SELECT c.table_name, c.column_name, c.data_type,
				c.character_maximum_length, c.numeric_precision, c.numeric_scale,
				c.is_nullable = 'YES',
				c.column_default,
				(c.is_identity = 'YES' OR COALESCE(c.column_default, '') LIKE 'nextval(%')
			FROM information_schema.columns c
			WHERE c.table_schema = $1
			ORDER BY c.table_name, c.ordinal_position`,
		constraints: `SELECT kcu.table_name, kcu.column_name, tc.constraint_type,
				rk.table_name, rk.column_name, rc.update_rule, rc.delete_rule
			FROM information_schema.table_constraints tc
			JOIN information_schema.key_column_usage kcu
				ON kcu.constraint_schema = tc.constraint_schema AND kcu.constraint_name = tc.constraint_name
			LEFT JOIN information_schema.referential_constraints rc
				ON rc.constraint_schema = tc.constraint_schema AND rc.constraint_name = tc.constraint_name
			LEFT JOIN information_schema.key_column_usage rk
				ON rk.constraint_schema = rc.unique_constraint_schema AND rk.constraint_name = rc.unique_constraint_name
				AND rk.ordinal_position = kcu.position_in_unique_constraint
			WHERE tc.table_schema = $1 AND tc.constraint_type IN ('PRIMARY KEY', 'FOREIGN KEY')`,
	},
	DriverMySQL: {
		tables: `SELECT TABLE_NAME, TABLE_TYPE FROM INFORMATION_SCHEMA.TABLES
			WHERE TABLE_SCHEMA = COALESCE(NULLIF(?, ''), DATABASE()) ORDER BY TABLE_NAME`,
		columns: `SELECT c.TABLE_NAME, c.COLUMN_NAME, c.COLUMN_TYPE,
				c.CHARACTER_MAXIMUM_LENGTH, c.NUMERIC_PRECISION, c.NUMERIC_SCALE,
				c.IS_NULLABLE = 'YES',
				c.COLUMN_DEFAULT,
				c.EXTRA LIKE '%auto_increment%'
			FROM INFORMATION_SCHEMA.COLUMNS c
			WHERE c.TABLE_SCHEMA = COALESCE(NULLIF(?, ''), DATABASE())
			ORDER BY c.TABLE_NAME, c.ORDINAL_POSITION`,
		constraints: `SELECT kcu.TABLE_NAME, kcu.COLUMN_NAME, tc.CONSTRAINT_TYPE,
				kcu.REFERENCED_TABLE_NAME, kcu.REFERENCED_COLUMN_NAME, rc.UPDATE_RULE, rc.DELETE_RULE
			FROM INFORMATION_SCHEMA.TABLE_CONSTRAINTS tc
			JOIN INFORMATION_SCHEMA.KEY_COLUMN_USAGE kcu
				ON kcu.CONSTRAINT_SCHEMA = tc.CONSTRAINT_SCHEMA AND kcu.CONSTRAINT_NAME = tc.CONSTRAINT_NAME
				AND kcu.TABLE_NAME = tc.TABLE_NAME
			LEFT JOIN INFORMATION_SCHEMA.REFERENTIAL_CONSTRAINTS rc
				ON rc.CONSTRAINT_SCHEMA = tc.CONSTRAINT_SCHEMA AND rc.CONSTRAINT_NAME = tc.CONSTRAINT_NAME
			WHERE tc.TABLE_SCHEMA = COALESCE(NULLIF(?, ''), DATABASE())
				AND tc.CONSTRAINT_TYPE IN ('PRIMARY KEY', 'FOREIGN KEY')`,
	},
}

// SQLLoader reads tables, columns and key constraints from INFORMATION_SCHEMA
// and normalizes them with the service's dialect.
type SQLLoader struct {
	DB      *sql.DB
	Dialect Dialect
	Schema  string
}

var _ Loader = (*SQLLoader)(nil)

func NewSQLLoader(db *sql.DB, d Dialect, schema string) *SQLLoader {
	if schema == "" {
		schema = d.DefaultSchema()
	}
	return &SQLLoader{DB: db, Dialect: d, Schema: schema}
}

type keyInfo struct {
	primary bool
	fk      *ForeignKeyRef
}

func (l *SQLLoader) Load(ctx context.Context) (map[string]Table, error) {
	q, ok := catalogs[l.Dialect.Driver()]
	if !ok {
		return nil, fmt.Errorf("%w: no catalog for %q", ErrUnknownDialect, l.Dialect.Driver())
	}

	tables, err := l.queryTables(ctx, q.tables)
	if err != nil {
		return nil, fmt.Errorf("query tables: %w", err)
	}
	keys, err := l.queryConstraints(ctx, q.constraints)
	if err != nil {
		return nil, fmt.Errorf("query constraints: %w", err)
	}
	if err := l.queryColumns(ctx, q.columns, tables, keys); err != nil {
		return nil, fmt.Errorf("query columns: %w", err)
	}
	return tables, nil
}

func (l *SQLLoader) queryTables(ctx context.Context, query string) (map[string]Table, error) {
	rows, err := l.DB.QueryContext(ctx, query, l.Schema)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tables := make(map[string]Table)
	for rows.Next() {
		var name, typ string
		if err := rows.Scan(&name, &typ); err != nil {
			return nil, err
		}
		t := Table{Schema: l.Schema, Name: name, Type: TableTypeTable}
		if strings.Contains(strings.ToUpper(typ), "VIEW") {
			t.Type = TableTypeView
		}
		tables[name] = t
	}
	return tables, rows.Err()
}

func (l *SQLLoader) queryConstraints(ctx context.Context, query string) (map[string]map[string]*keyInfo, error) {
	rows, err := l.DB.QueryContext(ctx, query, l.Schema)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	keys := make(map[string]map[string]*keyInfo)
	for rows.Next() {
		var (
			table, column, typ     string
			refTable, refColumn    sql.NullString
			updateRule, deleteRule sql.NullString
		)
		if err := rows.Scan(&table, &column, &typ, &refTable, &refColumn, &updateRule, &deleteRule); err != nil {
			return nil, err
		}
		if keys[table] == nil {
			keys[table] = make(map[string]*keyInfo)
		}
		k := keys[table][column]
		if k == nil {
			k = &keyInfo{}
			keys[table][column] = k
		}
		switch strings.ToUpper(typ) {
		case "PRIMARY KEY":
			k.primary = true
		case "FOREIGN KEY":
			if refTable.Valid {
				k.fk = &ForeignKeyRef{
					Table:    refTable.String,
					Column:   refColumn.String,
					OnUpdate: updateRule.String,
					OnDelete: deleteRule.String,
				}
			}
		}
	}
	return keys, rows.Err()
}

func (l *SQLLoader) queryColumns(ctx context.Context, query string, tables map[string]Table, keys map[string]map[string]*keyInfo) error {
	rows, err := l.DB.QueryContext(ctx, query, l.Schema)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			table, name, dbType     string
			size, precision, scale  sql.NullInt64
			nullable, autoIncrement bool
			def                     sql.NullString
		)
		if err := rows.Scan(&table, &name, &dbType, &size, &precision, &scale, &nullable, &def, &autoIncrement); err != nil {
			return err
		}
		t, ok := tables[table]
		if !ok {
			continue
		}

		raw := RawColumn{
			Name:            name,
			DBType:          dbType,
			Limits:          limitsOf(size, precision, scale),
			IsNullable:      nullable,
			IsAutoIncrement: autoIncrement,
		}
		if def.Valid {
			raw.Default = &def.String
			if isSerialDefault(def.String) {
				raw.IsAutoIncrement = true
			}
		}
		if k := keys[table][name]; k != nil {
			raw.IsPrimaryKey = k.primary
			raw.ForeignKey = k.fk
			raw.IsForeignKey = k.fk != nil
		}

		c := NewColumn(l.Dialect, raw)
		t.Columns = append(t.Columns, c)
		if c.IsPrimaryKey {
			t.PrimaryKeys = append(t.PrimaryKeys, c.Name)
		}
		tables[table] = t
	}
	return rows.Err()
}

// limitsOf converts catalog lengths. A character length of -1 (varchar(max))
// means no size.
func limitsOf(size, precision, scale sql.NullInt64) Limits {
	var l Limits
	if size.Valid && size.Int64 > 0 {
		n := int(size.Int64)
		l.Size = &n
	}
	if precision.Valid {
		n := int(precision.Int64)
		l.Precision = &n
	}
	if scale.Valid {
		n := int(scale.Int64)
		l.Scale = &n
	}
	return l
}
