// Package mqtt is the MQTT broadcast sink. Resource events go to
// "<topicPrefix>/<service>/<resource>/<method>" and service events to
// "<topicPrefix>/<service>/<method>".
package mqtt

import (
	"cmp"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/edgeflare/sqlgate/pkg/broadcast"
)

// Config holds the broker connection and publishing options.
type Config struct {
	Servers        []string      `mapstructure:"servers"`
	ClientID       string        `mapstructure:"clientID"`
	Username       string        `mapstructure:"username"`
	Password       string        `mapstructure:"password"`
	TopicPrefix    string        `mapstructure:"topicPrefix"`
	QoS            byte          `mapstructure:"qos"`
	Retained       bool          `mapstructure:"retained"`
	ConnectTimeout time.Duration `mapstructure:"connectTimeout"`
	TLS            *TLSOptions   `mapstructure:"tls"`
}

// TLSOptions holds TLS configuration
type TLSOptions struct {
	InsecureSkipVerify bool   `mapstructure:"insecureSkipVerify"`
	ServerName         string `mapstructure:"serverName"`
	CAFile             string `mapstructure:"caFile"`
	CertFile           string `mapstructure:"certFile"`
	KeyFile            string `mapstructure:"keyFile"`
}

// client is the part of mqtt.Client the sink uses.
type client interface {
	Publish(topic string, qos byte, retained bool, payload any) mqtt.Token
	Disconnect(quiesce uint)
}

// Sink publishes broadcast messages to an MQTT broker.
type Sink struct {
	client   client
	prefix   string
	qos      byte
	retained bool
	timeout  time.Duration
	logger   *zap.Logger
}

// New connects to the broker.
func New(raw map[string]any, logger *zap.Logger) (broadcast.Sink, error) {
	var cfg Config
	if err := broadcast.DecodeConfig(raw, &cfg); err != nil {
		return nil, fmt.Errorf("decode MQTT config: %w", err)
	}
	opts, err := pahoOptions(&cfg)
	if err != nil {
		return nil, err
	}

	c := mqtt.NewClient(opts)
	token := c.Connect()
	if !token.WaitTimeout(cfg.ConnectTimeout) {
		return nil, fmt.Errorf("broker connection timed out after %s", cfg.ConnectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("broker connection error: %w", err)
	}
	logger.Info("connected to MQTT broker", zap.Strings("servers", cfg.Servers), zap.String("clientID", cfg.ClientID))
	return newSink(c, cfg, logger), nil
}

func newSink(c client, cfg Config, logger *zap.Logger) *Sink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sink{
		client:   c,
		prefix:   strings.TrimSuffix(cmp.Or(cfg.TopicPrefix, "sqlgate"), "/"),
		qos:      cfg.QoS,
		retained: cfg.Retained,
		timeout:  cmp.Or(cfg.ConnectTimeout, 10*time.Second),
		logger:   logger,
	}
}

// Topic returns the topic a message is published to.
func (s *Sink) Topic(m broadcast.Message) string {
	parts := []string{s.prefix, m.Service}
	if m.Resource != "" {
		parts = append(parts, m.Resource)
	}
	return strings.Join(append(parts, m.Method), "/")
}

func (s *Sink) Publish(ctx context.Context, m broadcast.Message) error {
	if s.client == nil {
		return broadcast.ErrNotConnected
	}
	payload, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	topic := s.Topic(m)
	token := s.client.Publish(topic, s.qos, s.retained, payload)
	select {
	case <-token.Done():
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(s.timeout):
		return fmt.Errorf("publish to %s timed out", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}
	s.logger.Debug("message published", zap.String("topic", topic))
	return nil
}

func (s *Sink) Close() error {
	if s.client != nil {
		s.client.Disconnect(250)
	}
	return nil
}

// defaultClientID fits the 23 character limit of MQTT 3.1 brokers.
func defaultClientID() string {
	return "sqlgate-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:15]
}

func pahoOptions(cfg *Config) (*mqtt.ClientOptions, error) {
	if len(cfg.Servers) == 0 {
		cfg.Servers = []string{"tcp://127.0.0.1:1883"}
	}
	cfg.ClientID = cmp.Or(cfg.ClientID, defaultClientID())
	cfg.ConnectTimeout = cmp.Or(cfg.ConnectTimeout, 10*time.Second)

	opts := mqtt.NewClientOptions()
	for _, server := range cfg.Servers {
		opts.AddBroker(server)
	}
	opts.SetClientID(cfg.ClientID)
	opts.SetUsername(cfg.Username)
	opts.SetPassword(cfg.Password)
	opts.SetConnectTimeout(cfg.ConnectTimeout)
	opts.SetAutoReconnect(true)
	opts.SetCleanSession(true)
	opts.SetOrderMatters(false)

	if cfg.TLS != nil {
		tlsConfig, err := createTLSConfig(cfg.TLS)
		if err != nil {
			return nil, err
		}
		opts.SetTLSConfig(tlsConfig)
	}
	return opts, nil
}

func createTLSConfig(o *TLSOptions) (*tls.Config, error) {
	config := &tls.Config{
		InsecureSkipVerify: o.InsecureSkipVerify,
		ServerName:         o.ServerName,
	}
	if o.CAFile != "" {
		caCert, err := os.ReadFile(o.CAFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA file: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caCert) {
			return nil, fmt.Errorf("failed to parse CA certificate")
		}
		config.RootCAs = pool
	}
	if o.CertFile != "" && o.KeyFile != "" {
		cert, err := tls.LoadX509KeyPair(o.CertFile, o.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load client certificate: %w", err)
		}
		config.Certificates = []tls.Certificate{cert}
	}
	return config, nil
}

func init() {
	broadcast.Register("mqtt", New)
}
