package apidoc

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"

	"github.com/edgeflare/sqlgate/pkg/schema"
)

// Info contains API metadata for the OpenAPI document.
type Info struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Version     string `json:"version"`
	Contact     struct {
		Name  string `json:"name,omitempty"`
		Email string `json:"email,omitempty"`
		URL   string `json:"url,omitempty"`
	} `json:"contact,omitzero"`
}

// SecurityConfig defines which authentication methods are advertised.
type SecurityConfig struct {
	EnableJWT   bool
	EnableBasic bool
}

// Catalog lists the schema caches of the registered services.
type Catalog interface {
	Caches() []*schema.Cache
}

// Generator builds an OpenAPI 3.1 document covering all services. The
// encoded document is kept until a followed cache reloads or the set of
// services changes.
type Generator struct {
	catalog  Catalog
	baseURL  string
	wrapper  string
	info     Info
	security SecurityConfig

	mu       sync.Mutex
	encoded  []byte
	services string
}

func NewGenerator(catalog Catalog, baseURL, wrapper string, info Info) *Generator {
	return &Generator{
		catalog:  catalog,
		baseURL:  strings.TrimSuffix(baseURL, "/"),
		wrapper:  wrapper,
		info:     info,
		security: SecurityConfig{EnableJWT: true, EnableBasic: true},
	}
}

// WithSecurity configures authentication options.
func (g *Generator) WithSecurity(config SecurityConfig) *Generator {
	g.security = config
	g.Invalidate()
	return g
}

// Invalidate drops the encoded document.
func (g *Generator) Invalidate() {
	g.mu.Lock()
	g.encoded = nil
	g.mu.Unlock()
}

// Follow invalidates the document after every reload of caches until ctx is
// done. It consumes the caches' Watch channels.
func (g *Generator) Follow(ctx context.Context, caches ...*schema.Cache) {
	for _, c := range caches {
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case <-c.Watch():
					g.Invalidate()
				}
			}
		}()
	}
}

func (g *Generator) encode() ([]byte, error) {
	caches := g.catalog.Caches()
	names := make([]string, len(caches))
	for i, c := range caches {
		names[i] = c.Service()
	}
	services := strings.Join(names, ",")

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.encoded != nil && g.services == services {
		return g.encoded, nil
	}
	data, err := json.Marshal(g.Document())
	if err != nil {
		return nil, err
	}
	g.encoded, g.services = data, services
	return data, nil
}

func (g *Generator) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	data, err := g.encode()
	if err != nil {
		http.Error(w, `{"message":"Internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// Document assembles the OpenAPI document from the current schema snapshots.
// Paths are "/{service}/{table}" and "/{service}/{table}/{id}"; schema names
// and operation ids carry the service name.
func (g *Generator) Document() map[string]any {
	doc := Doc{Paths: map[string]PathItem{}, Schemas: commonModels()}
	var tags []map[string]string
	for _, c := range g.catalog.Caches() {
		tags = append(tags, map[string]string{"name": c.Service()})
		for _, t := range c.Tables() {
			doc.add(builder{names: newNames(c.Service(), t.Name, true), table: t}, "/"+c.Service(), g.wrapper)
		}
	}

	components := map[string]any{"schemas": doc.Schemas}
	if schemes := g.securitySchemes(); len(schemes) > 0 {
		components["securitySchemes"] = schemes
	}

	spec := map[string]any{
		"openapi":    "3.1.0",
		"info":       g.info,
		"servers":    []map[string]any{{"url": g.baseURL, "description": "API Server"}},
		"tags":       tags,
		"paths":      doc.Paths,
		"components": components,
	}
	if security := g.globalSecurity(); len(security) > 0 {
		spec["security"] = security
	}
	return spec
}

func (g *Generator) securitySchemes() map[string]any {
	schemes := make(map[string]any)
	if g.security.EnableJWT {
		schemes["bearerAuth"] = map[string]any{
			"type":         "http",
			"scheme":       "bearer",
			"bearerFormat": "JWT",
			"description":  "JWT token authentication. Use format: Bearer <token>",
		}
	}
	if g.security.EnableBasic {
		schemes["basicAuth"] = map[string]any{
			"type":        "http",
			"scheme":      "basic",
			"description": "Basic HTTP authentication using username and password",
		}
	}
	return schemes
}

// globalSecurity lists the alternative (OR) authentication methods.
func (g *Generator) globalSecurity() []map[string][]string {
	var security []map[string][]string
	if g.security.EnableJWT {
		security = append(security, map[string][]string{"bearerAuth": {}})
	}
	if g.security.EnableBasic {
		security = append(security, map[string][]string{"basicAuth": {}})
	}
	return security
}
