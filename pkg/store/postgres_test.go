package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgeflare/sqlgate/internal/testutil/pgtest"
	"github.com/edgeflare/sqlgate/pkg/event"
)

func TestPostgresStore(t *testing.T) {
	ctx := context.Background()
	conn := pgtest.Connect(ctx, t)
	p := NewPostgres(conn, pgtest.Schema(ctx, t, conn, "sqlgate_store_test"))
	require.NoError(t, p.Migrate(ctx))
	require.NoError(t, p.Migrate(ctx), "migrations are idempotent")

	t.Run("scripts", func(t *testing.T) {
		_, found, err := p.FindScript(ctx, "db.items.get.pre_process")
		require.NoError(t, err)
		assert.False(t, found)

		created, err := p.CreateScript(ctx, event.Script{
			Name:       "db.items.get.pre_process",
			Content:    `{"request": {"parameters": {"limit": "5"}}}`,
			EngineType: "expr",
			Config:     map[string]any{"limit": float64(5)},
			IsActive:   true,
		})
		require.NoError(t, err)
		assert.False(t, created.CreatedAt.IsZero())

		_, err = p.CreateScript(ctx, event.Script{Name: "db.items.get.pre_process"})
		assert.ErrorIs(t, err, ErrAlreadyExists)

		s, found, err := p.FindScript(ctx, "db.items.get.pre_process")
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, map[string]any{"limit": float64(5)}, s.Config)

		s.IsActive = false
		updated, err := p.UpdateScript(ctx, s)
		require.NoError(t, err)
		assert.False(t, updated.IsActive)
		assert.True(t, !updated.UpdatedAt.Before(created.UpdatedAt))

		_, err = p.UpdateScript(ctx, event.Script{Name: "missing"})
		assert.ErrorIs(t, err, ErrNotFound)

		list, err := p.ListScripts(ctx)
		require.NoError(t, err)
		assert.Len(t, list, 1)

		require.NoError(t, p.DeleteScript(ctx, "db.items.get.pre_process"))
		assert.ErrorIs(t, p.DeleteScript(ctx, "db.items.get.pre_process"), ErrNotFound)
	})

	t.Run("catalog", func(t *testing.T) {
		schema := p.schema
		for _, q := range []string{
			`INSERT INTO "` + schema + `".app (id, name, type, is_active, role_id) VALUES (1, 'admin', 3, true, NULL), (2, 'public', 2, true, 4)`,
			`INSERT INTO "` + schema + `".app_group (id, name) VALUES (1, 'tools'), (2, 'empty')`,
			`INSERT INTO "` + schema + `".app_to_app_group (app_id, group_id) VALUES (1, 1), (2, 1)`,
			`INSERT INTO "` + schema + `".user_to_app_to_role (user_id, app_id, role_id) VALUES (9, 1, 4)`,
			`INSERT INTO "` + schema + `".service (name, label, type, config) VALUES ('github', 'GitHub', 'oauth_github', '{"icon_class": "fa-github"}')`,
			`INSERT INTO "` + schema + `".system_config (default_app_id) VALUES (2)`,
		} {
			_, err := conn.Exec(ctx, q)
			require.NoError(t, err)
		}

		apps, err := p.Apps(ctx)
		require.NoError(t, err)
		require.Len(t, apps, 2)
		assert.Equal(t, AppTypePath, apps[0].Type)
		assert.Nil(t, apps[0].RoleID)
		assert.True(t, apps[1].Public())

		groups, err := p.AppGroups(ctx)
		require.NoError(t, err)
		require.Len(t, groups, 2)
		assert.Equal(t, []int{1, 2}, groups[0].AppIDs)
		assert.Empty(t, groups[1].AppIDs)

		roles, err := p.UserAppRoles(ctx, 9)
		require.NoError(t, err)
		assert.Equal(t, []UserAppRole{{UserID: 9, AppID: 1, RoleID: 4}}, roles)

		services, err := p.Services(ctx)
		require.NoError(t, err)
		require.Len(t, services, 1)
		assert.Equal(t, "fa-github", services[0].Config["icon_class"])

		id, err := p.DefaultAppID(ctx)
		require.NoError(t, err)
		require.NotNil(t, id)
		assert.Equal(t, 2, *id)
	})
}
