// Package broadcast publishes post-process lifecycle events to external
// sinks (NATS JetStream, Kafka, MQTT or the log).
//
// Sink types register themselves from their packages' init functions, the
// way database/sql drivers do:
//
//	import _ "github.com/edgeflare/sqlgate/pkg/broadcast/nats"
//
//	b := broadcast.New(logger)
//	if err := b.Open(broadcast.SinkConfig{Name: "events", Type: "nats", Config: cfg}); err != nil {
//		return err
//	}
//	b.Subscribe(pipeline)
package broadcast

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/mitchellh/mapstructure"
	"go.uber.org/zap"

	"github.com/edgeflare/sqlgate/pkg/event"
	"github.com/edgeflare/sqlgate/pkg/metrics"
)

var (
	ErrUnknownSink  = errors.New("unknown broadcast sink type")
	ErrNotConnected = errors.New("sink not connected")
)

// Message is what sinks publish for one lifecycle event.
type Message struct {
	Name      string         `json:"name"`
	Service   string         `json:"service"`
	Resource  string         `json:"resource,omitempty"`
	Method    string         `json:"method"`
	Request   map[string]any `json:"request"`
	Response  map[string]any `json:"response,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// NewMessage snapshots e.
func NewMessage(e event.HookEvent, now time.Time) Message {
	m := Message{
		Name:      e.Name(),
		Service:   e.Service,
		Method:    strings.ToLower(e.Request.Method),
		Request:   e.Request.ToMap(),
		Timestamp: now.UTC(),
	}
	if e.Point.IsResource() {
		m.Resource = e.Resource
	}
	if e.Response != nil {
		m.Response = e.Response.ToMap()
	}
	return m
}

// Sink delivers messages to one destination.
type Sink interface {
	Publish(ctx context.Context, m Message) error
	Close() error
}

// SinkConfig configures one named sink.
type SinkConfig struct {
	Name string `mapstructure:"name"`
	Type string `mapstructure:"type"`
	// Config is decoded by the sink type into its own config struct.
	Config map[string]any `mapstructure:"config"`
}

// Factory creates a sink of one type from its raw configuration.
type Factory func(cfg map[string]any, logger *zap.Logger) (Sink, error)

var (
	factories   = make(map[string]Factory)
	factoriesMu sync.RWMutex
)

// Register makes a sink type available to Open. It panics on duplicates.
func Register(typ string, f Factory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	if _, dup := factories[typ]; dup {
		panic("broadcast: Register called twice for sink type " + typ)
	}
	factories[typ] = f
}

// Types lists the registered sink types.
func Types() []string {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()
	return slices.Sorted(maps.Keys(factories))
}

// DecodeConfig decodes a raw sink configuration into out, accepting string
// forms of numbers and booleans as they come from environment variables.
func DecodeConfig(in map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
	})
	if err != nil {
		return err
	}
	return dec.Decode(in)
}

type namedSink struct {
	name string
	sink Sink
}

// Broadcaster fans post-process events out to its sinks.
type Broadcaster struct {
	sinks  []namedSink
	logger *zap.Logger
	now    func() time.Time
	mu     sync.RWMutex
}

func New(logger *zap.Logger) *Broadcaster {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Broadcaster{logger: logger, now: time.Now}
}

// Open creates a sink from cfg and adds it.
func (b *Broadcaster) Open(cfg SinkConfig) error {
	factoriesMu.RLock()
	f, ok := factories[cfg.Type]
	factoriesMu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownSink, cfg.Type)
	}
	name := cfg.Name
	if name == "" {
		name = cfg.Type
	}
	s, err := f(cfg.Config, b.logger.With(zap.String("sink", name)))
	if err != nil {
		return fmt.Errorf("open sink %s: %w", name, err)
	}
	b.Add(name, s)
	return nil
}

// Add registers an already opened sink under name.
func (b *Broadcaster) Add(name string, s Sink) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sinks = append(b.sinks, namedSink{name: name, sink: s})
	b.logger.Info("broadcast sink added", zap.String("sink", name))
}

// Len returns the number of sinks.
func (b *Broadcaster) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.sinks)
}

// Handle publishes e to every sink. Publish failures are logged and
// counted; they never change the event or stop the pipeline.
func (b *Broadcaster) Handle(ctx context.Context, e event.HookEvent) (event.HookEvent, event.Outcome, error) {
	b.mu.RLock()
	sinks := slices.Clone(b.sinks)
	b.mu.RUnlock()
	if len(sinks) == 0 {
		return e, event.Continue, nil
	}

	msg := NewMessage(e, b.now())
	for _, s := range sinks {
		if err := s.sink.Publish(ctx, msg); err != nil {
			metrics.BroadcastErrors.WithLabelValues(s.name).Inc()
			b.logger.Error("broadcast failed", zap.String("sink", s.name), zap.String("event", msg.Name), zap.Error(err))
			continue
		}
		metrics.BroadcastPublished.WithLabelValues(s.name).Inc()
	}
	return e, event.Continue, nil
}

// Subscribe registers Handle on the post-process points of p. Register it
// after the script dispatcher so sinks see the final response.
func (b *Broadcaster) Subscribe(p *event.Pipeline) {
	p.On(event.ResourcePostProcess, b.Handle)
	p.On(event.ServicePostProcess, b.Handle)
}

// Close closes all sinks.
func (b *Broadcaster) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	var errs []error
	for _, s := range b.sinks {
		if err := s.sink.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close sink %s: %w", s.name, err))
		}
	}
	b.sinks = nil
	return errors.Join(errs...)
}
