package schema

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubLoader struct {
	tables map[string]Table
	err    error
	calls  int
}

func (s *stubLoader) Load(context.Context) (map[string]Table, error) {
	s.calls++
	return s.tables, s.err
}

func testTables() map[string]Table {
	id := NewColumn(SQLServer{}, RawColumn{Name: "id", DBType: "int", IsPrimaryKey: true, IsAutoIncrement: true})
	name := NewColumn(SQLServer{}, RawColumn{Name: "name", DBType: "nvarchar", Limits: Limits{Size: intp(50)}})
	return map[string]Table{
		"items": {Schema: "dbo", Name: "items", Type: TableTypeTable, Columns: []Column{id, name}, PrimaryKeys: []string{"id"}},
		"alpha": {Schema: "dbo", Name: "alpha", Type: TableTypeTable},
	}
}

func TestCacheReload(t *testing.T) {
	loader := &stubLoader{tables: testTables()}
	cache := NewCache("db", loader, nil)

	_, err := cache.Table("items")
	require.ErrorIs(t, err, ErrTableNotFound)

	require.NoError(t, cache.Reload(context.Background()))
	assert.Equal(t, 1, loader.calls)

	items, err := cache.Table("items")
	require.NoError(t, err)
	assert.Equal(t, "items", items.Name)

	tables := cache.Tables()
	require.Len(t, tables, 2)
	assert.Equal(t, "alpha", tables[0].Name)
	assert.Equal(t, "db", cache.Service())
}

func TestCacheReloadErrorKeepsSnapshot(t *testing.T) {
	loader := &stubLoader{tables: testTables()}
	cache := NewCache("db", loader, nil)
	require.NoError(t, cache.Reload(context.Background()))

	loader.tables, loader.err = nil, errors.New("down")
	require.Error(t, cache.Reload(context.Background()))

	_, err := cache.Table("items")
	assert.NoError(t, err)
}

func TestCacheWatch(t *testing.T) {
	cache := NewCache("db", &stubLoader{tables: testTables()}, nil)

	// a second reload replaces the unread snapshot instead of blocking
	require.NoError(t, cache.Reload(context.Background()))
	require.NoError(t, cache.Reload(context.Background()))

	select {
	case snap := <-cache.Watch():
		assert.Len(t, snap, 2)
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for schema snapshot")
	}

	select {
	case <-cache.Watch():
		t.Fatal("unexpected second snapshot")
	default:
	}
}

func TestTablesJSON(t *testing.T) {
	cache := NewCache("db", &stubLoader{tables: testTables()}, nil)
	require.NoError(t, cache.Reload(context.Background()))

	data, err := json.Marshal(cache.Tables())
	require.NoError(t, err)

	var tables []struct {
		Name    string `json:"name"`
		Columns []struct {
			Name      string `json:"name"`
			Type      string `json:"type"`
			Size      *int   `json:"size"`
			AllowNull bool   `json:"allow_null"`
		} `json:"columns"`
	}
	require.NoError(t, json.Unmarshal(data, &tables))
	require.Len(t, tables, 2)
	items := tables[1]
	assert.Equal(t, "items", items.Name)
	require.Len(t, items.Columns, 2)
	assert.Equal(t, "string", items.Columns[1].Type)
	assert.Equal(t, 50, *items.Columns[1].Size)
}
