package system

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgeflare/sqlgate/pkg/event"
	"github.com/edgeflare/sqlgate/pkg/httputil"
	"github.com/edgeflare/sqlgate/pkg/schema"
	"github.com/edgeflare/sqlgate/pkg/store"
)

type tablesLoader map[string]schema.Table

func (l tablesLoader) Load(context.Context) (map[string]schema.Table, error) {
	return l, nil
}

type caches []*schema.Cache

func (c caches) Caches() []*schema.Cache { return c }

func intp(n int) *int { return &n }

func newTestHandler(t *testing.T, cfg Config) (*Handler, *store.Memory) {
	t.Helper()
	m := store.NewMemory()
	m.Seed(
		[]store.App{
			{ID: 1, Name: "admin-console", Type: store.AppTypePath, IsActive: true},
			{ID: 2, Name: "portal", Type: store.AppTypeURL, IsActive: true, RoleID: intp(4), LaunchURL: "https://portal"},
			{ID: 3, Name: "reports", Type: store.AppTypeURL, IsActive: true},
			{ID: 4, Name: "retired", Type: store.AppTypeURL, IsActive: false, RoleID: intp(4)},
			{ID: 5, Name: "no-type", Type: store.AppTypeNone, IsActive: true, RoleID: intp(4)},
		},
		[]store.AppGroup{
			{ID: 10, Name: "tools", AppIDs: []int{1, 3}},
			{ID: 11, Name: "empty", AppIDs: []int{4}},
		},
		[]store.UserAppRole{{UserID: 7, AppID: 3, RoleID: 2}},
		[]store.Service{
			{ID: 1, Name: "GitHub", Label: "GitHub", Type: "oauth_github", IsActive: true, Config: map[string]any{"icon_class": "fa-github"}},
			{ID: 2, Name: "corp", Label: "Corp AD", Type: "adldap", IsActive: true},
			{ID: 3, Name: "old", Type: "oauth_google", IsActive: false},
			{ID: 4, Name: "db", Type: "sqlsrv", IsActive: true},
		},
		intp(2),
	)

	cache := schema.NewCache("db", tablesLoader{"items": {Name: "items", PrimaryKeys: []string{"id"}}}, nil)
	require.NoError(t, cache.Reload(context.Background()))

	h := NewHandler(m, caches{cache}, "/api/v2", cfg, nil)
	h.host = func(context.Context) (Server, error) {
		return Server{ServerOS: "linux", Release: "6.1", Version: "debian 12", Host: "gw-1", Machine: "x86_64"}, nil
	}
	return h, m
}

func appNames(apps []AppInfo) []string {
	var names []string
	for _, a := range apps {
		names = append(names, a.Name)
	}
	return names
}

func TestEnvironmentAppVisibility(t *testing.T) {
	h, _ := newTestHandler(t, Config{})
	ctx := context.Background()

	tests := []struct {
		name      string
		session   httputil.Session
		groups    []string
		ungrouped []string
	}{
		{name: "anonymous", session: httputil.Session{}, ungrouped: []string{"portal"}},
		{name: "user with role", session: httputil.Session{User: "bob", UserID: 7}, groups: []string{"tools"}, ungrouped: []string{"portal"}},
		{name: "user without role", session: httputil.Session{User: "eve", UserID: 9}, ungrouped: []string{"portal"}},
		{name: "sys-admin", session: httputil.Session{User: "root", IsSysAdmin: true}, groups: []string{"tools"}, ungrouped: []string{"portal"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env, err := h.Environment(ctx, tt.session)
			require.NoError(t, err)

			var groups []string
			for _, g := range env.AppGroup {
				groups = append(groups, g.Name)
			}
			assert.Equal(t, tt.groups, groups)
			assert.Equal(t, tt.ungrouped, appNames(env.NoGroupApp))
		})
	}

	env, err := h.Environment(ctx, httputil.Session{User: "root", IsSysAdmin: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"admin-console", "reports"}, appNames(env.AppGroup[0].App))
	assert.True(t, env.NoGroupApp[0].IsDefault)
	assert.Equal(t, "https://portal", env.NoGroupApp[0].URL)

	env, err = h.Environment(ctx, httputil.Session{User: "bob", UserID: 7})
	require.NoError(t, err)
	assert.Equal(t, []string{"reports"}, appNames(env.AppGroup[0].App))
}

func TestEnvironmentAdminBlocks(t *testing.T) {
	h, _ := newTestHandler(t, Config{
		API:      APIConfig{AlwaysWrapResources: true, DB: DBConfig{DateFormat: "Y-m-d"}},
		Platform: PlatformConfig{VersionCurrent: "1.2.0", VersionLatest: "1.3.0"},
	})
	ctx := context.Background()

	env, err := h.Environment(ctx, httputil.Session{})
	require.NoError(t, err)
	assert.Nil(t, env.Server)
	assert.Nil(t, env.Runtime)
	assert.True(t, env.Platform.UpgradeAvailable)
	assert.Equal(t, APIConfig{
		AlwaysWrapResources: true,
		ResourcesWrapper:    "resource",
		DB:                  DBConfig{MaxRecordsReturned: 1000, DateFormat: "Y-m-d"},
	}, env.Config)

	env, err = h.Environment(ctx, httputil.Session{User: "root", IsSysAdmin: true})
	require.NoError(t, err)
	require.NotNil(t, env.Server)
	assert.Equal(t, "gw-1", env.Server.Host)
	require.NotNil(t, env.Runtime)
	assert.NotEmpty(t, env.Runtime.Version)
}

func TestEnvironmentAuthentication(t *testing.T) {
	h, _ := newTestHandler(t, Config{})
	env, err := h.Environment(context.Background(), httputil.Session{})
	require.NoError(t, err)
	assert.Equal(t, "system/admin/session", env.Authentication.Admin.Path)
	assert.Nil(t, env.Authentication.User)
	assert.Nil(t, env.Authentication.OAuth)

	h, _ = newTestHandler(t, Config{Platform: PlatformConfig{UserModule: true}})
	env, err = h.Environment(context.Background(), httputil.Session{})
	require.NoError(t, err)
	require.NotNil(t, env.Authentication.User)
	require.Len(t, *env.Authentication.OAuth, 1)
	oauth := (*env.Authentication.OAuth)[0]
	assert.Equal(t, "user/session?service=github", oauth.Path)
	assert.Equal(t, "fa-github", oauth.IconClass)
	assert.Equal(t, []string{http.MethodGet, http.MethodPost}, oauth.Verb)
	require.Len(t, *env.Authentication.AdLdap, 1)
	assert.Equal(t, "corp", (*env.Authentication.AdLdap)[0].Payload["service"])
}

func serve(h *Handler, method, target, body string, s httputil.Session) *httptest.ResponseRecorder {
	r := httputil.NewRouter()
	h.Register(r.Group("/api/v2"))

	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req = req.WithContext(httputil.WithSession(req.Context(), s))
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	return rr
}

func TestEventScriptCRUD(t *testing.T) {
	h, m := newTestHandler(t, Config{})
	admin := httputil.Session{User: "root", IsSysAdmin: true}
	const path = "/api/v2/system/event/db.items.get.pre_process"

	rr := serve(h, http.MethodPost, path, `{"content": "{\"stop_propagation\": true}"}`, admin)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = serve(h, http.MethodPost, path, `{"content": "{}", "engine_type": "expr", "config": {"a": 1}}`, admin)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var created event.Script
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &created))
	assert.True(t, created.IsActive)
	assert.Equal(t, "expr", created.EngineType)

	rr = serve(h, http.MethodPost, path, `{"content": "{}", "engine_type": "expr"}`, admin)
	assert.Equal(t, http.StatusConflict, rr.Code)

	rr = serve(h, http.MethodPatch, path, `{"is_active": false}`, admin)
	require.Equal(t, http.StatusOK, rr.Code)
	s, err := m.GetScript(context.Background(), "db.items.get.pre_process")
	require.NoError(t, err)
	assert.False(t, s.IsActive)
	assert.Equal(t, "{}", s.Content)
	assert.Equal(t, map[string]any{"a": float64(1)}, s.Config)

	rr = serve(h, http.MethodGet, "/api/v2/system/event", "", admin)
	require.Equal(t, http.StatusOK, rr.Code)
	var list map[string][]event.Script
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &list))
	assert.Len(t, list["resource"], 1)

	rr = serve(h, http.MethodDelete, path, "", admin)
	assert.Equal(t, http.StatusNoContent, rr.Code)
	rr = serve(h, http.MethodGet, path, "", admin)
	assert.Equal(t, http.StatusNotFound, rr.Code)
	rr = serve(h, http.MethodPatch, path, `{}`, admin)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestSystemAccess(t *testing.T) {
	h, _ := newTestHandler(t, Config{})

	assert.Equal(t, http.StatusUnauthorized, serve(h, http.MethodGet, "/api/v2/system/event", "", httputil.Session{}).Code)
	assert.Equal(t, http.StatusForbidden, serve(h, http.MethodGet, "/api/v2/system/broadcast", "", httputil.Session{User: "bob"}).Code)
	assert.Equal(t, http.StatusOK, serve(h, http.MethodGet, "/api/v2/system/environment", "", httputil.Session{}).Code)

	rr := serve(h, http.MethodGet, "/api/v2/openapi.json", "", httputil.Session{})
	require.Equal(t, http.StatusOK, rr.Code)
	var doc map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &doc))
	assert.Equal(t, "3.1.0", doc["openapi"])
	assert.Contains(t, doc["paths"], "/db/items")
}

func TestBroadcastMap(t *testing.T) {
	h, _ := newTestHandler(t, Config{})
	rr := serve(h, http.MethodGet, "/api/v2/system/broadcast", "", httputil.Session{User: "root", IsSysAdmin: true})
	require.Equal(t, http.StatusOK, rr.Code)

	var got map[string]map[string][]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	assert.Equal(t, []string{
		"db.get.post_process", "db.post.post_process", "db.patch.post_process", "db.delete.post_process",
	}, got["db"]["/"])
	assert.Equal(t, []string{
		"db.items.get.post_process", "db.items.post.post_process", "db.items.patch.post_process", "db.items.delete.post_process",
	}, got["db"]["/items"])
}
