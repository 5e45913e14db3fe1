package event

import (
	"context"
	"slices"
	"sync"

	"github.com/edgeflare/sqlgate/pkg/metrics"
)

// Handler processes one lifecycle event and returns the event to pass on.
type Handler func(ctx context.Context, e HookEvent) (HookEvent, Outcome, error)

// Pipeline maps each lifecycle point to an ordered list of handlers.
type Pipeline struct {
	handlers map[Point][]Handler
	mu       sync.RWMutex
}

func NewPipeline() *Pipeline {
	return &Pipeline{handlers: make(map[Point][]Handler)}
}

// On appends h to the handlers of point.
func (p *Pipeline) On(point Point, h Handler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handlers[point] = append(p.handlers[point], h)
}

// Len returns the number of handlers registered on point.
func (p *Pipeline) Len(point Point) int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.handlers[point])
}

// Fire threads e through the handlers of its point in registration order.
// It stops at the first handler that returns Stopped or an error; the
// returned event is the last one a handler produced.
func (p *Pipeline) Fire(ctx context.Context, e HookEvent) (HookEvent, Outcome, error) {
	p.mu.RLock()
	handlers := slices.Clone(p.handlers[e.Point])
	p.mu.RUnlock()

	for _, h := range handlers {
		next, outcome, err := h(ctx, e)
		if err != nil {
			metrics.EventsDispatched.WithLabelValues(e.Point.String(), "error").Inc()
			return e, Continue, err
		}
		e = next
		if outcome == Stopped {
			metrics.EventsDispatched.WithLabelValues(e.Point.String(), outcome.String()).Inc()
			return e, Stopped, nil
		}
	}
	metrics.EventsDispatched.WithLabelValues(e.Point.String(), Continue.String()).Inc()
	return e, Continue, nil
}
