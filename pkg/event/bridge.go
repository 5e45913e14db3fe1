package event

import (
	"bytes"
	"cmp"
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/edgeflare/sqlgate/pkg/metrics"
	"github.com/edgeflare/sqlgate/pkg/util"
)

// Bridge resolves event names to scripts and classifies what the runner
// returns. It does not interpret script semantics.
type Bridge struct {
	scripts ScriptFinder
	runner  Runner
	logger  *zap.Logger
}

func NewBridge(scripts ScriptFinder, runner Runner, logger *zap.Logger) *Bridge {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bridge{scripts: scripts, runner: runner, logger: logger}
}

// Run executes the script registered under name with payload. found is false,
// and res nil, when no active script is registered.
func (b *Bridge) Run(ctx context.Context, name string, payload map[string]any) (res Result, found bool, err error) {
	s, found, err := b.scripts.FindScript(ctx, name)
	if err != nil {
		return nil, false, fmt.Errorf("find script %s: %w", name, err)
	}
	if !found || !s.IsActive {
		return nil, false, nil
	}
	if b.runner == nil {
		return nil, true, ErrNoRunner
	}

	var output bytes.Buffer
	start := time.Now()
	raw, runErr := b.runner.Run(ctx, Invocation{
		Content: s.Content,
		Name:    name,
		Engine:  s.EngineType,
		Config:  util.DeepCopyMap(util.Clean(s.Config)),
		Payload: payload,
	}, &output)
	metrics.ScriptDuration.WithLabelValues(cmp.Or(s.EngineType, "default")).Observe(time.Since(start).Seconds())

	if runErr != nil {
		res = Failed{Message: runErr.Error()}
	} else {
		res = Classify(raw)
	}
	metrics.ScriptResults.WithLabelValues(res.Kind()).Inc()

	if m, ok := res.(Malformed); ok {
		b.logger.Error("script did not return a tagged result", zap.String("event", name), zap.Any("result", m.Value))
	}
	if output.Len() > 0 {
		b.logger.Info("script output", zap.String("event", name), zap.String("output", output.String()))
	}
	return res, true, nil
}
