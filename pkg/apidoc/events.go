package apidoc

import (
	"net/http"

	"github.com/edgeflare/sqlgate/pkg/event"
	"github.com/edgeflare/sqlgate/pkg/schema"
)

// Methods served by generated resources, in documentation order.
var Methods = []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete}

// EventMap lists the lifecycle event names raised for a service at point p.
// Service points are keyed "/", resource points "/{table}".
func EventMap(service string, tables []schema.Table, p event.Point) map[string][]string {
	out := make(map[string][]string, len(tables)+1)
	if !p.IsResource() {
		for _, m := range Methods {
			out["/"] = append(out["/"], event.Name(p, service, "", m))
		}
		return out
	}
	for _, t := range tables {
		for _, m := range Methods {
			out["/"+t.Name] = append(out["/"+t.Name], event.Name(p, service, t.Name, m))
		}
	}
	return out
}
