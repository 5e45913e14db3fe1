package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zitadel/oidc/v3/pkg/oidc"

	"github.com/edgeflare/sqlgate/pkg/httputil"
)

func fakeIntrospector(calls *int) Introspector {
	return func(_ context.Context, token string) (*oidc.IntrospectionResponse, error) {
		*calls++
		switch token {
		case "good":
			return &oidc.IntrospectionResponse{Active: true, Subject: "sub-1", Username: "alice"}, nil
		case "expired":
			return &oidc.IntrospectionResponse{Active: false}, nil
		}
		return nil, errors.New("unknown token")
	}
}

func TestVerifyOIDCToken(t *testing.T) {
	calls := 0
	p := NewOIDCProviderWith(OIDCProviderConfig{}, fakeIntrospector(&calls))

	tests := []struct {
		name       string
		header     string
		send401    bool
		wantStatus int
		wantUser   string
	}{
		{name: "missing header", send401: true, wantStatus: http.StatusUnauthorized},
		{name: "missing header optional", wantStatus: http.StatusOK},
		{name: "basic passes when optional", header: "Basic dTpw", wantStatus: http.StatusOK},
		{name: "basic rejected", header: "Basic dTpw", send401: true, wantStatus: http.StatusUnauthorized},
		{name: "valid token", header: "Bearer good", wantStatus: http.StatusOK, wantUser: "alice"},
		{name: "lowercase scheme", header: "bearer good", wantStatus: http.StatusOK, wantUser: "alice"},
		{name: "inactive token", header: "Bearer expired", wantStatus: http.StatusUnauthorized},
		{name: "unknown token", header: "Bearer nope", wantStatus: http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			var user string
			rr := httptest.NewRecorder()
			VerifyOIDCToken(p, tt.send401)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if u, ok := httputil.OIDCUser(r); ok {
					user = u.Username
				}
			})).ServeHTTP(rr, req)

			assert.Equal(t, tt.wantStatus, rr.Code)
			assert.Equal(t, tt.wantUser, user)
		})
	}

	// "good" was introspected once, then served from the cache.
	assert.Equal(t, 3, calls)
}

func TestSession(t *testing.T) {
	cfg := SessionConfig{
		AdminUsers: []string{"root"},
		UserIDs:    map[string]int{"bob": 7},
		OIDC: OIDCProviderConfig{
			AdminClaimKey:   "groups",
			AdminClaimValue: "admins",
			UserIDClaimKey:  "app.user_id",
		},
	}

	tests := []struct {
		name  string
		setup func(r *http.Request) *http.Request
		want  httputil.Session
	}{
		{
			name:  "anonymous",
			setup: func(r *http.Request) *http.Request { return r },
			want:  httputil.Session{},
		},
		{
			name: "basic user",
			setup: func(r *http.Request) *http.Request {
				return r.WithContext(context.WithValue(r.Context(), httputil.BasicAuthCtxKey, "bob"))
			},
			want: httputil.Session{User: "bob", UserID: 7, Method: "basic"},
		},
		{
			name: "basic admin user",
			setup: func(r *http.Request) *http.Request {
				return r.WithContext(context.WithValue(r.Context(), httputil.BasicAuthCtxKey, "root"))
			},
			want: httputil.Session{User: "root", Method: "basic", IsSysAdmin: true},
		},
		{
			name: "oidc admin by claim",
			setup: func(r *http.Request) *http.Request {
				token := &oidc.IntrospectionResponse{Active: true, Subject: "sub-9", Claims: map[string]any{
					"groups": []any{"staff", "admins"},
					"app":    map[string]any{"user_id": float64(3)},
				}}
				return r.WithContext(context.WithValue(r.Context(), httputil.OIDCUserCtxKey, token))
			},
			want: httputil.Session{User: "sub-9", UserID: 3, Method: "oidc", IsSysAdmin: true},
		},
		{
			name: "oidc regular user",
			setup: func(r *http.Request) *http.Request {
				token := &oidc.IntrospectionResponse{Active: true, Username: "carol", Claims: map[string]any{"groups": "staff"}}
				return r.WithContext(context.WithValue(r.Context(), httputil.OIDCUserCtxKey, token))
			},
			want: httputil.Session{User: "carol", Method: "oidc"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got httputil.Session
			h := Session(cfg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				got = httputil.SessionFrom(r.Context())
			}))
			h.ServeHTTP(httptest.NewRecorder(), tt.setup(httptest.NewRequest(http.MethodGet, "/", nil)))
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSessionAdminClaimWildcard(t *testing.T) {
	cfg := SessionConfig{OIDC: OIDCProviderConfig{AdminClaimKey: "roles[*].name", AdminClaimValue: "sys-admin"}}
	var got httputil.Session
	h := Session(cfg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = httputil.SessionFrom(r.Context())
	}))

	token := &oidc.IntrospectionResponse{Active: true, Username: "dana", Claims: map[string]any{
		"roles": []any{map[string]any{"name": "reader"}, map[string]any{"name": "sys-admin"}},
	}}
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	h.ServeHTTP(httptest.NewRecorder(), req.WithContext(context.WithValue(req.Context(), httputil.OIDCUserCtxKey, token)))
	assert.True(t, got.IsSysAdmin)
}

func TestRequireAdmin(t *testing.T) {
	h := RequireAdmin(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	for _, tc := range []struct {
		session httputil.Session
		status  int
	}{
		{httputil.Session{}, http.StatusUnauthorized},
		{httputil.Session{User: "bob"}, http.StatusForbidden},
		{httputil.Session{User: "root", IsSysAdmin: true}, http.StatusNoContent},
	} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req = req.WithContext(httputil.WithSession(req.Context(), tc.session))
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		require.Equal(t, tc.status, rr.Code, tc.session.User)
	}
}
