package middleware

import (
	"context"
	"encoding/base64"
	"net/http"
	"strings"

	"github.com/edgeflare/sqlgate/pkg/httputil"
)

// BasicAuthConfig holds the username-password pairs for basic authentication.
type BasicAuthConfig struct {
	Credentials map[string]string
	// Optional lets requests without Basic credentials through unauthenticated,
	// so anonymous callers and other schemes (Bearer) reach later middleware.
	// Wrong Basic credentials are still rejected.
	Optional bool
}

// BasicAuthCreds creates a new instance of BasicAuthConfig with multiple username/password pairs.
func BasicAuthCreds(credentials map[string]string) *BasicAuthConfig {
	return &BasicAuthConfig{
		Credentials: credentials,
	}
}

// VerifyBasicAuth is a middleware function for basic authentication.
func VerifyBasicAuth(config *BasicAuthConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				if config.Optional {
					next.ServeHTTP(w, r)
					return
				}
				w.Header().Set("WWW-Authenticate", `Basic realm="Restricted"`)
				http.Error(w, "Authorization header missing", http.StatusUnauthorized)
				return
			}

			if !strings.HasPrefix(authHeader, "Basic ") {
				if config.Optional {
					next.ServeHTTP(w, r)
					return
				}
				http.Error(w, "Invalid authorization format", http.StatusUnauthorized)
				return
			}

			encodedCredentials := strings.TrimPrefix(authHeader, "Basic ")
			credentials, err := base64.StdEncoding.DecodeString(encodedCredentials)
			if err != nil {
				http.Error(w, "Invalid base64 encoding", http.StatusUnauthorized)
				return
			}

			username, password, ok := strings.Cut(string(credentials), ":")
			if !ok {
				http.Error(w, "Invalid credentials format", http.StatusUnauthorized)
				return
			}

			if validPassword, ok := config.Credentials[username]; !ok || validPassword != password {
				w.Header().Set("WWW-Authenticate", `Basic realm="Restricted"`)
				http.Error(w, "Invalid credentials", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), httputil.BasicAuthCtxKey, username)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
