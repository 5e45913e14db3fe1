package store

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgeflare/sqlgate/pkg/event"
)

func TestMemoryScripts(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	clock := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return clock }

	_, err := m.CreateScript(ctx, event.Script{Name: " "})
	assert.ErrorIs(t, err, ErrInvalidName)

	created, err := m.CreateScript(ctx, event.Script{Name: "db.items.get.pre_process", Content: "{}", IsActive: true})
	require.NoError(t, err)
	assert.Equal(t, clock, created.CreatedAt)

	_, err = m.CreateScript(ctx, event.Script{Name: "db.items.get.pre_process"})
	assert.ErrorIs(t, err, ErrAlreadyExists)

	_, err = m.CreateScript(ctx, event.Script{Name: "db.get.pre_process"})
	require.NoError(t, err)

	list, err := m.ListScripts(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "db.get.pre_process", list[0].Name)

	clock = clock.Add(time.Hour)
	updated, err := m.UpdateScript(ctx, event.Script{Name: "db.items.get.pre_process", Content: `{"stop_propagation": true}`})
	require.NoError(t, err)
	assert.Equal(t, created.CreatedAt, updated.CreatedAt)
	assert.Equal(t, clock, updated.UpdatedAt)

	s, found, err := m.FindScript(ctx, "db.items.get.pre_process")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, `{"stop_propagation": true}`, s.Content)

	_, err = m.UpdateScript(ctx, event.Script{Name: "missing"})
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, m.DeleteScript(ctx, "db.get.pre_process"))
	assert.ErrorIs(t, m.DeleteScript(ctx, "db.get.pre_process"), ErrNotFound)
	_, err = m.GetScript(ctx, "db.get.pre_process")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryCatalog(t *testing.T) {
	ctx := context.Background()
	role := 3
	m := NewMemory()
	m.Seed(
		[]App{{ID: 1, Name: "admin", IsActive: true, Type: AppTypePath}, {ID: 2, Name: "public", IsActive: true, Type: AppTypeURL, RoleID: &role}},
		[]AppGroup{{ID: 1, Name: "tools", AppIDs: []int{1}}},
		[]UserAppRole{{UserID: 7, AppID: 1, RoleID: 2}, {UserID: 8, AppID: 2, RoleID: 2}},
		nil,
		&role,
	)

	apps, err := m.Apps(ctx)
	require.NoError(t, err)
	assert.Len(t, apps, 2)
	assert.False(t, apps[0].Public())
	assert.True(t, apps[1].Public())

	roles, err := m.UserAppRoles(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, []UserAppRole{{UserID: 7, AppID: 1, RoleID: 2}}, roles)

	id, err := m.DefaultAppID(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, *id)
}

func TestAppVisible(t *testing.T) {
	tests := []struct {
		app  App
		want bool
	}{
		{App{IsActive: true, Type: AppTypeURL}, true},
		{App{IsActive: false, Type: AppTypeURL}, false},
		{App{IsActive: true, Type: AppTypeNone}, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.app.Visible())
	}
}

type countingScripts struct {
	*Memory
	finds atomic.Int32
}

func (c *countingScripts) FindScript(ctx context.Context, name string) (event.Script, bool, error) {
	c.finds.Add(1)
	return c.Memory.FindScript(ctx, name)
}

func TestCachedScripts(t *testing.T) {
	ctx := context.Background()
	backing := &countingScripts{Memory: NewMemory()}
	c := NewCachedScripts(backing, 8, time.Minute)

	_, found, err := c.FindScript(ctx, "db.get.pre_process")
	require.NoError(t, err)
	assert.False(t, found)
	_, found, _ = c.FindScript(ctx, "db.get.pre_process")
	assert.False(t, found)
	assert.EqualValues(t, 1, backing.finds.Load(), "misses are cached")

	_, err = c.CreateScript(ctx, event.Script{Name: "db.get.pre_process", IsActive: true})
	require.NoError(t, err)
	_, found, _ = c.FindScript(ctx, "db.get.pre_process")
	assert.True(t, found)
	assert.EqualValues(t, 2, backing.finds.Load())

	_, err = c.UpdateScript(ctx, event.Script{Name: "db.get.pre_process", Content: "{}"})
	require.NoError(t, err)
	s, _, _ := c.FindScript(ctx, "db.get.pre_process")
	assert.Equal(t, "{}", s.Content)

	require.NoError(t, c.DeleteScript(ctx, "db.get.pre_process"))
	_, found, _ = c.FindScript(ctx, "db.get.pre_process")
	assert.False(t, found)

	c.Purge()
	_, _, _ = c.FindScript(ctx, "db.get.pre_process")
	assert.EqualValues(t, 5, backing.finds.Load())
}

func TestCachedScriptsExpiry(t *testing.T) {
	ctx := context.Background()
	backing := &countingScripts{Memory: NewMemory()}
	c := NewCachedScripts(backing, 8, 20*time.Millisecond)

	_, _, _ = c.FindScript(ctx, "x")
	require.Eventually(t, func() bool {
		_, _, _ = c.FindScript(ctx, "x")
		return backing.finds.Load() > 1
	}, time.Second, 10*time.Millisecond)
}

func TestQueryBuilder(t *testing.T) {
	qb := newQueryBuilder("sqlgate", "event_script")
	q := qb.insertSQL(map[string]any{"name": "n", "content": "c"}, "name")
	assert.Equal(t, `INSERT INTO "sqlgate"."event_script" ("content", "name") VALUES ($1, $2) RETURNING name`, q)
	assert.Equal(t, []any{"c", "n"}, qb.values)

	qb = newQueryBuilder("sqlgate", "event_script")
	q, err := qb.updateSQL(map[string]any{"content": "c", "is_active": false}, map[string]any{"name": "n"}, "")
	require.NoError(t, err)
	assert.Equal(t, `UPDATE "sqlgate"."event_script" SET "content" = $1, "is_active" = $2 WHERE "name" = $3`, q)
	assert.Equal(t, []any{"c", false, "n"}, qb.values)

	_, err = newQueryBuilder("s", "t").updateSQL(map[string]any{"a": 1}, nil, "")
	assert.Error(t, err)
}
