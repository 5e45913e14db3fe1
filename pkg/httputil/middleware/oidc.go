package middleware

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/zitadel/oidc/v3/pkg/client/rs"
	"github.com/zitadel/oidc/v3/pkg/oidc"

	"github.com/edgeflare/sqlgate/pkg/httputil"
)

// OIDCProviderConfig holds the configuration for the OIDC provider
type OIDCProviderConfig struct {
	ClientID     string `mapstructure:"clientID"`
	ClientSecret string `mapstructure:"clientSecret"`
	Issuer       string `mapstructure:"issuer"`
	// AdminClaimKey is a jq-style claim path such as "policies.sqlgate" or
	// "roles[*].name"; when the claim equals AdminClaimValue the caller is a
	// sys-admin.
	AdminClaimKey   string `mapstructure:"adminClaimKey"`
	AdminClaimValue string `mapstructure:"adminClaimValue"`
	// UserIDClaimKey names a numeric claim holding the user's app-role ID.
	UserIDClaimKey string `mapstructure:"userIDClaimKey"`
}

// Enabled reports whether enough is configured to introspect tokens.
func (c OIDCProviderConfig) Enabled() bool {
	return c.ClientID != "" && c.ClientSecret != "" && c.Issuer != ""
}

// Introspector resolves an access token to its introspection response.
type Introspector func(ctx context.Context, token string) (*oidc.IntrospectionResponse, error)

// OIDCProvider verifies bearer tokens by introspection, caching active
// tokens for a short while.
type OIDCProvider struct {
	config     OIDCProviderConfig
	introspect Introspector
	cache      *lru.LRU[string, *oidc.IntrospectionResponse]
}

const introspectionTTL = time.Minute

// NewOIDCProvider creates a resource-server client for cfg.Issuer.
func NewOIDCProvider(ctx context.Context, cfg OIDCProviderConfig) (*OIDCProvider, error) {
	if !cfg.Enabled() {
		return nil, errors.New("missing required OIDC configuration")
	}
	provider, err := rs.NewResourceServerClientCredentials(ctx, cfg.Issuer, cfg.ClientID, cfg.ClientSecret)
	if err != nil {
		return nil, fmt.Errorf("creating OIDC resource server: %w", err)
	}
	return NewOIDCProviderWith(cfg, func(ctx context.Context, token string) (*oidc.IntrospectionResponse, error) {
		return rs.Introspect[*oidc.IntrospectionResponse](ctx, provider, token)
	}), nil
}

// NewOIDCProviderWith uses introspect instead of a remote resource server.
func NewOIDCProviderWith(cfg OIDCProviderConfig, introspect Introspector) *OIDCProvider {
	return &OIDCProvider{
		config:     cfg,
		introspect: introspect,
		cache:      lru.NewLRU[string, *oidc.IntrospectionResponse](1024, nil, introspectionTTL),
	}
}

// Config returns the provider configuration.
func (p *OIDCProvider) Config() OIDCProviderConfig {
	return p.config
}

func (p *OIDCProvider) verify(ctx context.Context, token string) (*oidc.IntrospectionResponse, error) {
	sum := sha256.Sum256([]byte(token))
	key := hex.EncodeToString(sum[:])
	if user, ok := p.cache.Get(key); ok {
		return user, nil
	}
	user, err := p.introspect(ctx, token)
	if err != nil {
		return nil, err
	}
	if user == nil || !user.Active {
		return nil, errors.New("token is not active")
	}
	p.cache.Add(key, user)
	return user, nil
}

// VerifyOIDCToken is middleware that verifies OIDC tokens in Authorization headers.
// By default, it sends a 401 Unauthorized response if the token is missing or invalid.
// If send401Unauthorized is false, it allows requests with other authorization schemes
// (e.g., Basic Auth) to continue without interference.
func VerifyOIDCToken(p *OIDCProvider, send401Unauthorized ...bool) func(http.Handler) http.Handler {
	send401 := true
	if len(send401Unauthorized) > 0 {
		send401 = send401Unauthorized[0]
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")

			if authHeader == "" {
				if send401 {
					http.Error(w, "Authorization header missing", http.StatusUnauthorized)
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			if !strings.HasPrefix(strings.ToLower(authHeader), "bearer ") {
				if send401 {
					http.Error(w, "Invalid token format", http.StatusUnauthorized)
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			user, err := p.verify(r.Context(), strings.TrimSpace(authHeader[len("bearer "):]))
			if err != nil {
				http.Error(w, "Invalid token", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), httputil.OIDCUserCtxKey, user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
