// Package kafka is the Kafka broadcast sink. Each service gets its own
// topic "<topicPrefix>.<service>" and messages are keyed by event name.
package kafka

import (
	"cmp"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/IBM/sarama"
	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/edgeflare/sqlgate/pkg/broadcast"
)

// Config represents Kafka-specific configuration
type Config struct {
	Brokers     []string `mapstructure:"brokers"`
	TopicPrefix string   `mapstructure:"topicPrefix"`
	Version     string   `mapstructure:"version"`
	// ConnectRetries bounds the attempts to reach the brokers at startup.
	ConnectRetries int  `mapstructure:"connectRetries"`
	SASL           SASL `mapstructure:"sasl"`
	TLS            TLS  `mapstructure:"tls"`
}

// SASL represents SASL authentication configuration
type SASL struct {
	Enable    bool   `mapstructure:"enable"`
	Username  string `mapstructure:"username"`
	Password  string `mapstructure:"password"`
	Algorithm string `mapstructure:"algorithm"`
}

// TLS represents TLS configuration
type TLS struct {
	Enable     bool   `mapstructure:"enable"`
	CertFile   string `mapstructure:"certFile"`
	KeyFile    string `mapstructure:"keyFile"`
	CAFile     string `mapstructure:"caFile"`
	SkipVerify bool   `mapstructure:"skipVerify"`
}

// Sink publishes broadcast messages through a synchronous producer.
type Sink struct {
	producer sarama.SyncProducer
	prefix   string
	logger   *zap.Logger
}

// New creates the producer, retrying with exponential backoff while the
// brokers are unreachable.
func New(raw map[string]any, logger *zap.Logger) (broadcast.Sink, error) {
	var cfg Config
	if err := broadcast.DecodeConfig(raw, &cfg); err != nil {
		return nil, fmt.Errorf("decode Kafka config: %w", err)
	}
	if len(cfg.Brokers) == 0 {
		cfg.Brokers = []string{"localhost:9092"}
	}
	cfg.TopicPrefix = cmp.Or(cfg.TopicPrefix, "sqlgate")
	cfg.Version = cmp.Or(cfg.Version, "2.1.1")
	cfg.ConnectRetries = cmp.Or(cfg.ConnectRetries, 5)

	saramaConfig, err := cfg.ToSaramaConfig()
	if err != nil {
		return nil, err
	}

	var producer sarama.SyncProducer
	operation := func() error {
		var err error
		producer, err = sarama.NewSyncProducer(cfg.Brokers, saramaConfig)
		if err != nil {
			logger.Warn("kafka brokers unreachable", zap.Strings("brokers", cfg.Brokers), zap.Error(err))
		}
		return err
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	if err := backoff.Retry(operation, backoff.WithMaxRetries(b, uint64(cfg.ConnectRetries))); err != nil {
		return nil, fmt.Errorf("create producer: %w", err)
	}
	return NewWithProducer(producer, cfg.TopicPrefix, logger), nil
}

// NewWithProducer wraps an existing producer.
func NewWithProducer(p sarama.SyncProducer, topicPrefix string, logger *zap.Logger) *Sink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sink{producer: p, prefix: topicPrefix, logger: logger}
}

// Topic returns the topic a message is published to.
func (s *Sink) Topic(m broadcast.Message) string {
	return s.prefix + "." + m.Service
}

func (s *Sink) Publish(_ context.Context, m broadcast.Message) error {
	if s.producer == nil {
		return broadcast.ErrNotConnected
	}
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	partition, offset, err := s.producer.SendMessage(&sarama.ProducerMessage{
		Topic:     s.Topic(m),
		Key:       sarama.StringEncoder(m.Name),
		Value:     sarama.ByteEncoder(data),
		Timestamp: m.Timestamp,
	})
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	s.logger.Debug("message published", zap.String("topic", s.Topic(m)), zap.Int32("partition", partition), zap.Int64("offset", offset))
	return nil
}

func (s *Sink) Close() error {
	if s.producer != nil {
		return s.producer.Close()
	}
	return nil
}

// ToSaramaConfig converts the Config to a sarama.Config
func (c Config) ToSaramaConfig() (*sarama.Config, error) {
	conf := sarama.NewConfig()

	version, err := sarama.ParseKafkaVersion(c.Version)
	if err != nil {
		return nil, fmt.Errorf("invalid Kafka version: %w", err)
	}
	conf.Version = version
	conf.ClientID = "sqlgate"

	conf.Producer.RequiredAcks = sarama.WaitForAll
	conf.Producer.Retry.Max = 5
	conf.Producer.Retry.Backoff = time.Second
	conf.Producer.Return.Successes = true
	conf.Producer.Return.Errors = true

	if c.SASL.Enable {
		conf.Net.SASL.Enable = true
		conf.Net.SASL.User = c.SASL.Username
		conf.Net.SASL.Password = c.SASL.Password
		conf.Net.SASL.Handshake = true

		switch c.SASL.Algorithm {
		case "sha512":
			conf.Net.SASL.SCRAMClientGeneratorFunc = func() sarama.SCRAMClient { return &scramClient{HashGeneratorFcn: SHA512} }
			conf.Net.SASL.Mechanism = sarama.SASLTypeSCRAMSHA512
		case "sha256":
			conf.Net.SASL.SCRAMClientGeneratorFunc = func() sarama.SCRAMClient { return &scramClient{HashGeneratorFcn: SHA256} }
			conf.Net.SASL.Mechanism = sarama.SASLTypeSCRAMSHA256
		case "", "plain":
			conf.Net.SASL.Mechanism = sarama.SASLTypePlaintext
		default:
			return nil, fmt.Errorf("invalid SASL algorithm: %s", c.SASL.Algorithm)
		}
	}

	if c.TLS.Enable {
		tlsConfig, err := c.TLS.config()
		if err != nil {
			return nil, err
		}
		conf.Net.TLS.Enable = true
		conf.Net.TLS.Config = tlsConfig
	}
	return conf, nil
}

func (t TLS) config() (*tls.Config, error) {
	conf := &tls.Config{InsecureSkipVerify: t.SkipVerify}
	if t.CAFile != "" {
		caCert, err := os.ReadFile(t.CAFile)
		if err != nil {
			return nil, fmt.Errorf("read CA file: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caCert) {
			return nil, fmt.Errorf("parse CA certificate %s", t.CAFile)
		}
		conf.RootCAs = pool
	}
	if t.CertFile != "" && t.KeyFile != "" {
		cert, err := tls.LoadX509KeyPair(t.CertFile, t.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("load client certificate: %w", err)
		}
		conf.Certificates = []tls.Certificate{cert}
	}
	return conf, nil
}

func init() {
	broadcast.Register("kafka", New)
}
