package middleware

import (
	"fmt"
	"net/http"
	"slices"

	"github.com/edgeflare/sqlgate/pkg/httputil"
	"github.com/edgeflare/sqlgate/pkg/util"
)

// SessionConfig controls how callers are mapped to sessions.
type SessionConfig struct {
	// AdminUsers are user names granted sys-admin regardless of how they
	// authenticated.
	AdminUsers []string
	// UserIDs maps basic-auth user names to app-role user IDs.
	UserIDs map[string]int
	// OIDC supplies the admin and user ID claim settings for bearer tokens.
	OIDC OIDCProviderConfig
}

// Session stores an httputil.Session for every request. It must run after
// VerifyBasicAuth and VerifyOIDCToken; requests neither of them
// authenticated get an anonymous session.
func Session(cfg SessionConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			s := resolveSession(r, cfg)
			if rec, ok := w.(*ResponseRecorder); ok {
				rec.Session = s
			}
			next.ServeHTTP(w, r.WithContext(httputil.WithSession(r.Context(), s)))
		})
	}
}

func resolveSession(r *http.Request, cfg SessionConfig) httputil.Session {
	var s httputil.Session
	if user, ok := httputil.BasicAuthUser(r); ok {
		s = httputil.Session{User: user, UserID: cfg.UserIDs[user], Method: "basic"}
	} else if token, ok := httputil.OIDCUser(r); ok {
		s = httputil.Session{User: token.Username, Method: "oidc"}
		if s.User == "" {
			s.User = token.Subject
		}
		if cfg.OIDC.UserIDClaimKey != "" {
			if v, ok := util.Get(token.Claims, cfg.OIDC.UserIDClaimKey); ok {
				if id, ok := util.ToInt64(v); ok {
					s.UserID = int(id)
				}
			}
		}
		if cfg.OIDC.AdminClaimKey != "" {
			if v, ok := util.Get(token.Claims, cfg.OIDC.AdminClaimKey); ok {
				s.IsSysAdmin = claimMatches(v, cfg.OIDC.AdminClaimValue)
			}
		}
	}
	if s.Authenticated() && slices.Contains(cfg.AdminUsers, s.User) {
		s.IsSysAdmin = true
	}
	return s
}

// claimMatches compares a claim with the configured value. List claims
// (e.g. groups) match when any element does; an empty value matches any
// truthy claim.
func claimMatches(claim any, want string) bool {
	if want == "" {
		return util.Truthy(claim)
	}
	if list, ok := claim.([]any); ok {
		return slices.ContainsFunc(list, func(v any) bool { return fmt.Sprint(v) == want })
	}
	return fmt.Sprint(claim) == want
}

// RequireAdmin rejects callers whose session is not sys-admin: 401 for
// anonymous callers, 403 otherwise.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s := httputil.SessionFrom(r.Context())
		switch {
		case !s.Authenticated():
			httputil.Error(w, http.StatusUnauthorized, "authentication required")
		case !s.IsSysAdmin:
			httputil.Error(w, http.StatusForbidden, "sys-admin privileges required")
		default:
			next.ServeHTTP(w, r)
		}
	})
}
