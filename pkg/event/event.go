// Package event turns the request/response lifecycle of a data service into a
// scriptable interception pipeline.
//
// Four lifecycle points exist: service and resource, each pre- and
// post-process. A HookEvent is threaded through the handlers registered on a
// Pipeline for its point; each handler returns the (possibly mutated) event
// and an Outcome. The Dispatcher is the handler that looks up an event script
// by name and runs it.
//
// Event names follow a fixed convention that stored scripts depend on:
//
//	<service>.<method>.pre_process
//	<service>.<resource>.<method>.post_process
package event

import (
	"strings"

	"github.com/edgeflare/sqlgate/pkg/util"
)

// Point is a lifecycle point in request processing.
type Point int

const (
	ServicePreProcess Point = iota
	ServicePostProcess
	ResourcePreProcess
	ResourcePostProcess
)

// Points lists all lifecycle points.
var Points = []Point{ServicePreProcess, ServicePostProcess, ResourcePreProcess, ResourcePostProcess}

func (p Point) String() string {
	switch p {
	case ServicePreProcess:
		return "service.pre_process"
	case ServicePostProcess:
		return "service.post_process"
	case ResourcePreProcess:
		return "resource.pre_process"
	case ResourcePostProcess:
		return "resource.post_process"
	}
	return "unknown"
}

// IsPost reports whether p fires after the data operation.
func (p Point) IsPost() bool {
	return p == ServicePostProcess || p == ResourcePostProcess
}

// IsResource reports whether p is scoped to a resource path.
func (p Point) IsResource() bool {
	return p == ResourcePreProcess || p == ResourcePostProcess
}

func (p Point) suffix() string {
	if p.IsPost() {
		return "post_process"
	}
	return "pre_process"
}

// Name builds the event name for a lifecycle point. resource is ignored for
// service points.
func Name(p Point, service, resource, method string) string {
	parts := []string{service}
	if p.IsResource() {
		parts = append(parts, resource)
	}
	parts = append(parts, strings.ToLower(method), p.suffix())
	return strings.Join(parts, ".")
}

// Outcome is the terminal state of a dispatch.
type Outcome int

const (
	// Continue lets the pipeline proceed.
	Continue Outcome = iota
	// Stopped halts the pipeline; the event holds the last mutated values.
	Stopped
)

func (o Outcome) String() string {
	if o == Stopped {
		return "stopped"
	}
	return "continue"
}

// HookEvent is the accumulator threaded through a pipeline. Handlers return a
// new value instead of mutating the one they receive.
type HookEvent struct {
	Point    Point
	Service  string
	Resource string
	Request  Request
	// Response is nil on pre-process points.
	Response Response
}

// NewServiceEvent creates an event for a service-level point.
func NewServiceEvent(p Point, service string, req Request) HookEvent {
	return HookEvent{Point: p, Service: service, Request: req}
}

// NewResourceEvent creates an event for a resource-level point.
func NewResourceEvent(p Point, service, resource string, req Request) HookEvent {
	return HookEvent{Point: p, Service: service, Resource: resource, Request: req}
}

// Name returns the event name scripts are registered under.
func (e HookEvent) Name() string {
	return Name(e.Point, e.Service, e.Resource, e.Request.Method)
}

// At returns a copy of e moved to another lifecycle point.
func (e HookEvent) At(p Point) HookEvent {
	e.Point = p
	return e
}

// WithResponse returns a copy of e carrying resp.
func (e HookEvent) WithResponse(resp Response) HookEvent {
	e.Response = resp
	return e
}

// Payload is the data handed to an event script: the request snapshot, the
// resource and, on post-process points, the response. It shares no maps or
// slices with e, so edits made by a script only reach the event through its
// result.
func (e HookEvent) Payload() map[string]any {
	data := map[string]any{
		"request":  util.DeepCopyMap(e.Request.ToMap()),
		"resource": e.Resource,
	}
	if e.Point.IsPost() {
		var resp any
		if e.Response != nil {
			resp = util.DeepCopyMap(e.Response.ToMap())
		}
		data["response"] = resp
	}
	return data
}
