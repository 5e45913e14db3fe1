package event

import (
	"fmt"
	"maps"
	"net/http"
	"strings"

	"github.com/edgeflare/sqlgate/pkg/util"
)

// Request is a snapshot of an inbound request that scripts can read and
// overlay.
type Request struct {
	Method      string
	Path        string
	ContentType string
	Parameters  map[string]string
	Headers     map[string]string
	// Payload is the decoded body: a record, a list of records, or nil.
	Payload any
}

// NewRequest snapshots r. payload is the already decoded body.
func NewRequest(r *http.Request, payload any) Request {
	params := make(map[string]string, len(r.URL.Query()))
	for k, v := range r.URL.Query() {
		params[k] = strings.Join(v, ",")
	}
	headers := make(map[string]string, len(r.Header))
	for k := range r.Header {
		headers[k] = r.Header.Get(k)
	}
	return Request{
		Method:      r.Method,
		Path:        r.URL.Path,
		ContentType: r.Header.Get("Content-Type"),
		Parameters:  params,
		Headers:     headers,
		Payload:     payload,
	}
}

// Param returns the query parameter name, or "".
func (r Request) Param(name string) string {
	return r.Parameters[name]
}

func (r Request) ToMap() map[string]any {
	params := make(map[string]any, len(r.Parameters))
	for k, v := range r.Parameters {
		params[k] = v
	}
	headers := make(map[string]any, len(r.Headers))
	for k, v := range r.Headers {
		headers[k] = v
	}
	return map[string]any{
		"method":       r.Method,
		"path":         r.Path,
		"content_type": r.ContentType,
		"parameters":   params,
		"headers":      headers,
		"payload":      r.Payload,
	}
}

// Merge returns a copy of r with the fields in m written over it. Parameters,
// headers and map payloads are overlaid key by key; unknown keys are ignored.
func (r Request) Merge(m map[string]any) Request {
	out := r
	out.Parameters = maps.Clone(r.Parameters)
	out.Headers = maps.Clone(r.Headers)

	if v, ok := m["method"].(string); ok && v != "" {
		out.Method = strings.ToUpper(v)
	}
	if v, ok := m["content_type"].(string); ok {
		out.ContentType = v
	}
	if v, ok := m["parameters"].(map[string]any); ok {
		out.Parameters = overlayStrings(out.Parameters, v)
	}
	if v, ok := m["headers"].(map[string]any); ok {
		out.Headers = overlayStrings(out.Headers, v)
	}
	if v, ok := m["payload"]; ok {
		base, baseIsMap := r.Payload.(map[string]any)
		top, topIsMap := v.(map[string]any)
		if baseIsMap && topIsMap {
			out.Payload = util.Overlay(base, top)
		} else {
			out.Payload = v
		}
	}
	return out
}

// overlayStrings writes top over base. A nil value removes the key.
func overlayStrings(base map[string]string, top map[string]any) map[string]string {
	if base == nil {
		base = make(map[string]string, len(top))
	}
	for k, v := range top {
		if v == nil {
			delete(base, k)
			continue
		}
		if s, ok := v.(string); ok {
			base[k] = s
		} else {
			base[k] = fmt.Sprint(v)
		}
	}
	return base
}

// Response is the outbound value of a data operation.
type Response interface {
	ToMap() map[string]any
}

// Merger is a Response that accepts a field overlay.
type Merger interface {
	Response
	Merge(m map[string]any) Response
}

// ServiceResponse is the response produced by a data service.
type ServiceResponse struct {
	StatusCode  int
	ContentType string
	Content     any
}

var _ Merger = ServiceResponse{}

func (r ServiceResponse) ToMap() map[string]any {
	return map[string]any{
		"status_code":  r.StatusCode,
		"content_type": r.ContentType,
		"content":      r.Content,
	}
}

// Merge returns a copy of r with status_code, content_type and content taken
// from m where present.
func (r ServiceResponse) Merge(m map[string]any) Response {
	if v, ok := util.ToInt64(m["status_code"]); ok && v > 0 {
		r.StatusCode = int(v)
	}
	if v, ok := m["content_type"].(string); ok && v != "" {
		r.ContentType = v
	}
	if v, ok := m["content"]; ok {
		r.Content = v
	}
	return r
}

// RawResponse is a response without overlay support. A post-process script
// result replaces it wholesale.
type RawResponse map[string]any

func (r RawResponse) ToMap() map[string]any { return r }

// AsServiceResponse converts any Response into a ServiceResponse. A raw
// response becomes the content of a 200 JSON response unless it carries
// the service response fields itself.
func AsServiceResponse(resp Response) ServiceResponse {
	switch r := resp.(type) {
	case nil:
		return ServiceResponse{StatusCode: http.StatusNoContent}
	case ServiceResponse:
		return r
	case *ServiceResponse:
		return *r
	}
	m := resp.ToMap()
	if _, ok := m["content"]; ok {
		return ServiceResponse{StatusCode: http.StatusOK, ContentType: "application/json"}.Merge(m).(ServiceResponse)
	}
	return ServiceResponse{StatusCode: http.StatusOK, ContentType: "application/json", Content: m}
}
