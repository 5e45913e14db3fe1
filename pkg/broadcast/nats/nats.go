// Package nats is the NATS JetStream broadcast sink. Messages are
// published to "<subjectPrefix>.<event name>" on a stream covering
// "<subjectPrefix>.>".
package nats

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/edgeflare/sqlgate/pkg/broadcast"
)

// Config represents NATS configuration
type Config struct {
	Servers       []string `mapstructure:"servers"`
	Stream        string   `mapstructure:"stream"`
	SubjectPrefix string   `mapstructure:"subjectPrefix"`
	Username      string   `mapstructure:"username"`
	Password      string   `mapstructure:"password"`
	TLS           struct {
		Enabled  bool   `mapstructure:"enabled"`
		CertFile string `mapstructure:"certFile"`
		KeyFile  string `mapstructure:"keyFile"`
		CAFile   string `mapstructure:"caFile"`
	} `mapstructure:"tls"`
}

// publisher is the part of nats.JetStreamContext the sink uses.
type publisher interface {
	Publish(subj string, data []byte, opts ...nats.PubOpt) (*nats.PubAck, error)
}

// Sink publishes broadcast messages to JetStream.
type Sink struct {
	nc     *nats.Conn
	js     publisher
	prefix string
	logger *zap.Logger
}

// New connects to the first reachable server and ensures the stream exists.
func New(raw map[string]any, logger *zap.Logger) (broadcast.Sink, error) {
	var cfg Config
	if err := broadcast.DecodeConfig(raw, &cfg); err != nil {
		return nil, fmt.Errorf("decode NATS config: %w", err)
	}
	if len(cfg.Servers) == 0 {
		cfg.Servers = []string{nats.DefaultURL}
	}
	cfg.SubjectPrefix = cmp.Or(cfg.SubjectPrefix, "sqlgate")
	cfg.Stream = cmp.Or(cfg.Stream, cfg.SubjectPrefix+"-events")

	opts := defaultOptions(cfg)
	var (
		nc  *nats.Conn
		err error
	)
	for _, server := range cfg.Servers {
		if nc, err = nats.Connect(server, opts...); err == nil {
			break
		}
	}
	if err != nil {
		return nil, fmt.Errorf("connect to NATS server: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}
	if err := ensureStream(js, cfg, logger); err != nil {
		nc.Close()
		return nil, fmt.Errorf("ensure stream: %w", err)
	}
	return &Sink{nc: nc, js: js, prefix: cfg.SubjectPrefix, logger: logger}, nil
}

// Subject returns the subject a message is published to.
func (s *Sink) Subject(m broadcast.Message) string {
	return s.prefix + "." + m.Name
}

func (s *Sink) Publish(ctx context.Context, m broadcast.Message) error {
	if s.js == nil {
		return broadcast.ErrNotConnected
	}
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	if _, err := s.js.Publish(s.Subject(m), data, nats.Context(ctx)); err != nil {
		return fmt.Errorf("publish message: %w", err)
	}
	return nil
}

func (s *Sink) Close() error {
	if s.nc != nil {
		return s.nc.Drain()
	}
	return nil
}

func ensureStream(js nats.JetStreamContext, cfg Config, logger *zap.Logger) error {
	want := &nats.StreamConfig{
		Name:     cfg.Stream,
		Subjects: []string{cfg.SubjectPrefix + ".>"},
		Storage:  nats.FileStorage,
		Replicas: 1,
	}

	info, err := js.StreamInfo(cfg.Stream)
	if err == nil {
		if !streamConfigEqual(info.Config, *want) {
			if _, err = js.UpdateStream(want); err != nil {
				return fmt.Errorf("update stream: %w", err)
			}
			logger.Info("updated stream", zap.String("stream", cfg.Stream))
		}
		return nil
	}
	if !errors.Is(err, nats.ErrStreamNotFound) {
		return fmt.Errorf("get stream info: %w", err)
	}
	if _, err := js.AddStream(want); err != nil {
		return fmt.Errorf("create stream: %w", err)
	}
	logger.Info("created stream", zap.String("stream", cfg.Stream))
	return nil
}

func streamConfigEqual(a, b nats.StreamConfig) bool {
	return a.Name == b.Name && a.Storage == b.Storage && a.Replicas == b.Replicas &&
		slices.Equal(a.Subjects, b.Subjects)
}

func defaultOptions(c Config) []nats.Option {
	opts := []nats.Option{
		nats.Name("sqlgate"),
		nats.Timeout(5 * time.Second),
		nats.PingInterval(10 * time.Second),
		nats.MaxPingsOutstanding(3),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
	}
	if c.Username != "" && c.Password != "" {
		opts = append(opts, nats.UserInfo(c.Username, c.Password))
	}
	if c.TLS.Enabled {
		if c.TLS.CAFile != "" {
			opts = append(opts, nats.RootCAs(c.TLS.CAFile))
		}
		if c.TLS.CertFile != "" && c.TLS.KeyFile != "" {
			opts = append(opts, nats.ClientCert(c.TLS.CertFile, c.TLS.KeyFile))
		}
	}
	return opts
}

func init() {
	broadcast.Register("nats", New)
}
