package rest

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/edgeflare/sqlgate/pkg/schema"
)

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// executor runs resource operations against one table.
type executor struct {
	db    *sql.DB
	d     schema.Dialect
	table schema.Table
}

// returns reports whether write statements return the affected rows.
func (e executor) returns(op schema.Op) bool {
	output, returning := e.d.Returning(op)
	return output != "" || returning != ""
}

func (e executor) list(ctx context.Context, q QueryParams) ([]map[string]any, error) {
	return e.query(ctx, e.db, buildSelect(e.d, e.table, q))
}

func (e executor) count(ctx context.Context, q QueryParams) (int64, error) {
	st := buildCount(e.d, e.table, q)
	var n int64
	if err := e.db.QueryRowContext(ctx, st.sql, st.args...).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (e executor) read(ctx context.Context, id string, fields []string) (map[string]any, error) {
	records, err := e.query(ctx, e.db, buildSelect(e.d, e.table, QueryParams{Fields: fields, IDs: []string{id}}))
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, ErrNotFound
	}
	return records[0], nil
}

// create inserts records in one transaction and returns the stored rows.
func (e executor) create(ctx context.Context, records []map[string]any) ([]map[string]any, error) {
	var out []map[string]any
	err := e.inTx(ctx, func(tx *sql.Tx) error {
		for _, record := range records {
			st, err := buildInsert(e.d, e.table, record)
			if err != nil {
				return err
			}
			if e.returns(schema.OpInsert) {
				rows, err := e.query(ctx, tx, st)
				if err != nil {
					return err
				}
				out = append(out, rows...)
				continue
			}

			res, err := tx.ExecContext(ctx, st.sql, st.args...)
			if err != nil {
				return err
			}
			row, err := e.reselect(ctx, tx, record, res)
			if err != nil {
				return err
			}
			out = append(out, row)
		}
		return nil
	})
	return out, err
}

// reselect reads back an inserted row by primary key. The key comes from
// LastInsertId for auto-increment keys and from the record otherwise.
func (e executor) reselect(ctx context.Context, q querier, record map[string]any, res sql.Result) (map[string]any, error) {
	pk, ok := e.table.PrimaryKey()
	if !ok {
		return record, nil
	}
	id, ok := record[pk.Name]
	if pk.IsAutoIncrement || !ok {
		last, err := res.LastInsertId()
		if err != nil {
			return nil, err
		}
		id = last
	}
	rows, err := e.query(ctx, q, buildSelect(e.d, e.table, QueryParams{IDs: []string{fmt.Sprint(id)}}))
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return record, nil
	}
	return rows[0], nil
}

// update applies patch to the rows matching q.
func (e executor) update(ctx context.Context, patch map[string]any, q QueryParams) ([]map[string]any, error) {
	var out []map[string]any
	err := e.inTx(ctx, func(tx *sql.Tx) error {
		var err error
		out, err = e.updateTx(ctx, tx, patch, q)
		return err
	})
	return out, err
}

// updateRecords updates each record by its primary key in one transaction.
func (e executor) updateRecords(ctx context.Context, records []map[string]any) ([]map[string]any, error) {
	pk, ok := e.table.PrimaryKey()
	if !ok {
		return nil, fmt.Errorf("%w: table %s has no single primary key", ErrBadParam, e.table.Name)
	}
	var out []map[string]any
	err := e.inTx(ctx, func(tx *sql.Tx) error {
		for _, record := range records {
			id, ok := record[pk.Name]
			if !ok || id == nil {
				return fmt.Errorf("%w: record without %s", ErrBadParam, pk.Name)
			}
			rows, err := e.updateTx(ctx, tx, record, QueryParams{IDs: []string{fmt.Sprint(id)}})
			if err != nil {
				return err
			}
			out = append(out, rows...)
		}
		return nil
	})
	return out, err
}

func (e executor) updateTx(ctx context.Context, tx *sql.Tx, patch map[string]any, q QueryParams) ([]map[string]any, error) {
	st, err := buildUpdate(e.d, e.table, patch, q)
	if err != nil {
		return nil, err
	}
	if e.returns(schema.OpUpdate) {
		return e.query(ctx, tx, st)
	}

	// without a returning clause, collect the keys first: the patch may
	// change the filtered columns
	ids, err := e.keys(ctx, tx, q)
	if err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, st.sql, st.args...); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []map[string]any{}, nil
	}
	return e.query(ctx, tx, buildSelect(e.d, e.table, QueryParams{IDs: ids}))
}

// remove deletes the rows matching q and returns them.
func (e executor) remove(ctx context.Context, q QueryParams) ([]map[string]any, error) {
	st, err := buildDelete(e.d, e.table, q)
	if err != nil {
		return nil, err
	}
	var out []map[string]any
	err = e.inTx(ctx, func(tx *sql.Tx) error {
		if e.returns(schema.OpDelete) {
			out, err = e.query(ctx, tx, st)
			return err
		}
		selectQ := q
		selectQ.Fields, selectQ.Order, selectQ.Limit, selectQ.Offset = nil, nil, 0, 0
		if out, err = e.query(ctx, tx, buildSelect(e.d, e.table, selectQ)); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, st.sql, st.args...)
		return err
	})
	return out, err
}

// keys returns the primary key values of the rows matching q.
func (e executor) keys(ctx context.Context, tx querier, q QueryParams) ([]string, error) {
	pk, ok := e.table.PrimaryKey()
	if !ok {
		return nil, nil
	}
	if len(q.Filters) == 0 {
		return q.IDs, nil
	}
	keyQ := QueryParams{Fields: []string{pk.Name}, Filters: q.Filters, IDs: q.IDs}
	rows, err := e.query(ctx, tx, buildSelect(e.d, e.table, keyQ))
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, fmt.Sprint(row[pk.Alias()]))
	}
	return ids, nil
}

func (e executor) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func (e executor) query(ctx context.Context, q querier, st statement) ([]map[string]any, error) {
	rows, err := q.QueryContext(ctx, st.sql, st.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return rowsToMaps(rows)
}

// rowsToMaps scans rows into column-keyed maps. Byte slices become strings.
func rowsToMaps(rows *sql.Rows) ([]map[string]any, error) {
	columnNames, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	result := make([]map[string]any, 0)
	for rows.Next() {
		values := make([]any, len(columnNames))
		valuePointers := make([]any, len(columnNames))
		for i := range values {
			valuePointers[i] = &values[i]
		}

		if err := rows.Scan(valuePointers...); err != nil {
			return nil, err
		}

		rowMap := make(map[string]any, len(columnNames))
		for i, name := range columnNames {
			if b, ok := values[i].([]byte); ok {
				rowMap[name] = string(b)
				continue
			}
			rowMap[name] = values[i]
		}
		result = append(result, rowMap)
	}

	return result, rows.Err()
}
