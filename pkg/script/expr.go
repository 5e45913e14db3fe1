package script

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/edgeflare/sqlgate/pkg/event"
	"github.com/edgeflare/sqlgate/pkg/util"
)

const EngineExpr = "expr"

// ExprEngine evaluates scripts written as expr-lang expressions. The
// expression sees:
//
//	event   the event payload (request, resource, response)
//	config  the script's config
//	name    the event name
//	engine  the engine name
//	log(...)          writes to the script output
//	get(obj, "a.b")   dotted path lookup
//	merge(a, b)       map overlay
//	now()             current time, RFC 3339
//
// A map result is the script result; nil means "no changes". Compile and
// runtime errors are reported under "exception".
type ExprEngine struct {
	programs *lru.Cache[string, *vm.Program]
}

const defaultProgramCacheSize = 512

// NewExprEngine keeps up to size compiled programs, keyed by script content.
func NewExprEngine(size int) *ExprEngine {
	if size <= 0 {
		size = defaultProgramCacheSize
	}
	programs, _ := lru.New[string, *vm.Program](size)
	return &ExprEngine{programs: programs}
}

func exprEnv(inv event.Invocation, output io.Writer) map[string]any {
	return map[string]any{
		"event":  inv.Payload,
		"config": inv.Config,
		"name":   inv.Name,
		"engine": EngineExpr,
		"log": func(args ...any) any {
			fmt.Fprintln(output, args...)
			return nil
		},
		"get": func(obj any, path string) any {
			m, _ := obj.(map[string]any)
			v, _ := util.Get(m, path)
			return v
		},
		"merge": func(a, b any) map[string]any {
			am, _ := a.(map[string]any)
			bm, _ := b.(map[string]any)
			return util.Overlay(am, bm)
		},
		"now": func() string {
			return time.Now().UTC().Format(time.RFC3339)
		},
	}
}

func (e *ExprEngine) program(content string, env map[string]any) (*vm.Program, error) {
	if prog, ok := e.programs.Get(content); ok {
		return prog, nil
	}
	prog, err := expr.Compile(content, expr.Env(env), expr.AllowUndefinedVariables())
	if err != nil {
		return nil, err
	}
	e.programs.Add(content, prog)
	return prog, nil
}

func (e *ExprEngine) Run(_ context.Context, inv event.Invocation, output io.Writer) (any, error) {
	if strings.TrimSpace(inv.Content) == "" {
		return tag(nil), nil
	}

	env := exprEnv(inv, output)
	prog, err := e.program(inv.Content, env)
	if err != nil {
		return map[string]any{"exception": fmt.Sprintf("compile %s: %v", inv.Name, err)}, nil
	}

	out, err := expr.Run(prog, env)
	if err != nil {
		return map[string]any{"exception": err.Error()}, nil
	}

	switch v := out.(type) {
	case nil:
		return tag(nil), nil
	case map[string]any:
		if _, failed := v["error"]; failed {
			return v, nil
		}
		if _, failed := v["exception"]; failed {
			return v, nil
		}
		return tag(v), nil
	}
	return out, nil
}
