package event

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/edgeflare/sqlgate/pkg/util"
)

// CompletionTag marks a result map produced by a script runner that ran the
// script to completion.
const CompletionTag = "__tag__"

// Script is an event script registered under a lifecycle event name.
type Script struct {
	Name       string         `json:"name"`
	Content    string         `json:"content"`
	EngineType string         `json:"engine_type"`
	Config     map[string]any `json:"config,omitempty"`
	IsActive   bool           `json:"is_active"`
	CreatedAt  time.Time      `json:"created_date"`
	UpdatedAt  time.Time      `json:"last_modified_date"`
}

// ScriptFinder resolves an event name to its script. found is false when no
// script is registered under name.
type ScriptFinder interface {
	FindScript(ctx context.Context, name string) (s Script, found bool, err error)
}

// Invocation is everything a Runner needs to execute one script.
type Invocation struct {
	Content string
	Name    string
	Engine  string
	// Config is the script's own configuration with nil values removed.
	Config map[string]any
	// Payload is a private copy of the event data.
	Payload map[string]any
}

// Runner executes event scripts. The returned value is loosely typed; a
// well-behaved runner returns a map carrying CompletionTag. Anything written
// to output is logged by the caller.
type Runner interface {
	Run(ctx context.Context, inv Invocation, output io.Writer) (any, error)
}

// Result is the classified outcome of a script run: one of Unchanged,
// Mutated, Halted, Failed or Malformed.
type Result interface {
	Kind() string
}

// Unchanged is a completed run that asked for nothing.
type Unchanged struct{}

// Mutated is a completed run carrying request and/or response overlays.
type Mutated struct {
	Request  map[string]any
	Response map[string]any
	// HasResponse distinguishes an absent response from an empty one.
	HasResponse bool
}

// Halted is a completed run that halts the pipeline after its overlays are
// applied.
type Halted struct {
	Mutated
}

// Failed is a run that reported an error or raised an exception.
type Failed struct {
	Message string
}

// Malformed is a result that is not a tagged map. It is tolerated.
type Malformed struct {
	Value any
}

func (Unchanged) Kind() string { return "unchanged" }
func (Mutated) Kind() string   { return "mutated" }
func (Halted) Kind() string    { return "stopped" }
func (Failed) Kind() string    { return "failed" }
func (Malformed) Kind() string { return "malformed" }

// Classify maps a raw runner result onto Result. An "exception" key takes
// precedence over "error"; both outrank every other key.
func Classify(raw any) Result {
	m, ok := raw.(map[string]any)
	if ok {
		if v, has := m["exception"]; has && v != nil {
			return Failed{Message: message(v)}
		}
		if v, has := m["error"]; has && v != nil {
			return Failed{Message: message(v)}
		}
	}
	if !ok || m[CompletionTag] == nil {
		return Malformed{Value: raw}
	}

	var mut Mutated
	mut.Request, _ = m["request"].(map[string]any)
	if v, has := m["response"]; has && v != nil {
		mut.HasResponse = true
		if resp, isMap := v.(map[string]any); isMap {
			mut.Response = resp
		} else {
			mut.Response = map[string]any{"content": v}
		}
	}

	if util.Truthy(m["stop_propagation"]) {
		return Halted{Mutated: mut}
	}
	if mut.Request == nil && !mut.HasResponse {
		return Unchanged{}
	}
	return mut
}

func message(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case error:
		return x.Error()
	case map[string]any:
		if s, ok := x["message"].(string); ok {
			return s
		}
	}
	return fmt.Sprint(v)
}
