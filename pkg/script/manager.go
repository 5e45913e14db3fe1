// Package script executes event scripts. A Manager routes each invocation to
// the engine named by the script's engine type.
package script

import (
	"cmp"
	"context"
	"fmt"
	"io"
	"maps"
	"slices"
	"sync"

	"go.uber.org/zap"

	"github.com/edgeflare/sqlgate/pkg/event"
)

// Engine runs one kind of script.
type Engine interface {
	Run(ctx context.Context, inv event.Invocation, output io.Writer) (any, error)
}

// Manager implements event.Runner over a set of named engines.
type Manager struct {
	engines       map[string]Engine
	defaultEngine string
	logger        *zap.Logger
	mu            sync.RWMutex
}

var _ event.Runner = (*Manager)(nil)

func NewManager(defaultEngine string, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		engines:       make(map[string]Engine),
		defaultEngine: cmp.Or(defaultEngine, EngineExpr),
		logger:        logger,
	}
}

// Register makes e available under name, replacing any previous engine.
func (m *Manager) Register(name string, e Engine) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.engines[name] = e
}

// Engines lists the registered engine names.
func (m *Manager) Engines() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Sorted(maps.Keys(m.engines))
}

// Supports reports whether an engine is registered under name. The empty
// name resolves to the default engine.
func (m *Manager) Supports(name string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.engines[cmp.Or(name, m.defaultEngine)]
	return ok
}

// Run executes inv with its engine. An unknown engine is reported in the
// result's "error" key, like any other script failure.
func (m *Manager) Run(ctx context.Context, inv event.Invocation, output io.Writer) (any, error) {
	name := cmp.Or(inv.Engine, m.defaultEngine)

	m.mu.RLock()
	e, ok := m.engines[name]
	m.mu.RUnlock()
	if !ok {
		return map[string]any{"error": fmt.Sprintf("unsupported script engine %q", name)}, nil
	}

	m.logger.Debug("running script", zap.String("event", inv.Name), zap.String("engine", name))
	return e.Run(ctx, inv, output)
}

// tag returns a copy of m carrying the completion tag.
func tag(m map[string]any) map[string]any {
	out := make(map[string]any, len(m)+1)
	maps.Copy(out, m)
	if out[event.CompletionTag] == nil {
		out[event.CompletionTag] = "exit"
	}
	return out
}
