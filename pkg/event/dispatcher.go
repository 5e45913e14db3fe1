package event

import (
	"context"

	"go.uber.org/zap"
)

// Dispatcher runs the event script registered for each lifecycle event and
// applies its result to the event.
type Dispatcher struct {
	bridge *Bridge
	logger *zap.Logger
}

func NewDispatcher(scripts ScriptFinder, runner Runner, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{bridge: NewBridge(scripts, runner, logger), logger: logger}
}

// Subscribe registers the dispatcher on every lifecycle point of p.
func (d *Dispatcher) Subscribe(p *Pipeline) {
	for _, point := range Points {
		p.On(point, d.Handle)
	}
}

// Handle is the Pipeline handler: it names the event and routes it to
// OnPreProcess or OnPostProcess.
func (d *Dispatcher) Handle(ctx context.Context, e HookEvent) (HookEvent, Outcome, error) {
	name := e.Name()
	if e.Point.IsResource() {
		d.logger.Debug("resource event", zap.String("event", name))
	} else {
		d.logger.Debug("service event", zap.String("event", name))
	}

	if e.Point.IsPost() {
		return d.OnPostProcess(ctx, name, e)
	}
	return d.OnPreProcess(ctx, name, e)
}

// OnPreProcess runs the script registered under name and overlays the
// request portion of its result. The resource is never changed.
func (d *Dispatcher) OnPreProcess(ctx context.Context, name string, e HookEvent) (HookEvent, Outcome, error) {
	res, err := d.run(ctx, name, e)
	if err != nil || res == nil {
		return e, Continue, err
	}

	switch r := res.(type) {
	case Mutated:
		e.Request = mergeRequest(e.Request, r)
	case Halted:
		e.Request = mergeRequest(e.Request, r.Mutated)
		d.logger.Info("propagation stopped by script", zap.String("event", name))
		return e, Stopped, nil
	case Unchanged, Malformed:
	}
	return e, Continue, nil
}

// OnPostProcess runs the script registered under name and applies the
// response portion of its result: overlaid when the response supports it,
// replaced wholesale otherwise.
func (d *Dispatcher) OnPostProcess(ctx context.Context, name string, e HookEvent) (HookEvent, Outcome, error) {
	res, err := d.run(ctx, name, e)
	if err != nil || res == nil {
		return e, Continue, err
	}

	switch r := res.(type) {
	case Unchanged:
		e.Response = mergeResponse(e.Response, Mutated{})
	case Mutated:
		e.Response = mergeResponse(e.Response, r)
	case Halted:
		e.Response = mergeResponse(e.Response, r.Mutated)
		d.logger.Info("propagation stopped by script", zap.String("event", name))
		return e, Stopped, nil
	case Malformed:
	}
	return e, Continue, nil
}

// run returns nil when no script is registered under name. A Failed result
// becomes a *ScriptError.
func (d *Dispatcher) run(ctx context.Context, name string, e HookEvent) (Result, error) {
	res, found, err := d.bridge.Run(ctx, name, e.Payload())
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	if f, ok := res.(Failed); ok {
		return nil, &ScriptError{Event: name, Message: f.Message}
	}
	return res, nil
}

func mergeRequest(req Request, m Mutated) Request {
	if m.Request == nil {
		return req
	}
	return req.Merge(m.Request)
}

// mergeResponse overlays a mergeable response. Any other response is
// replaced by the result's response, or emptied when the result has none.
func mergeResponse(resp Response, m Mutated) Response {
	if mr, ok := resp.(Merger); ok {
		return mr.Merge(m.Response)
	}
	if resp == nil && !m.HasResponse {
		return nil
	}
	out := RawResponse{}
	for k, v := range m.Response {
		out[k] = v
	}
	return out
}
