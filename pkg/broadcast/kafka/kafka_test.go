package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgeflare/sqlgate/pkg/broadcast"
)

func TestSinkPublish(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	s := NewWithProducer(producer, "gw", nil)

	msg := broadcast.Message{
		Name:      "db.items.post.post_process",
		Service:   "db",
		Resource:  "items",
		Method:    "post",
		Timestamp: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
	}
	assert.Equal(t, "gw.db", s.Topic(msg))

	producer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(pm *sarama.ProducerMessage) error {
		if pm.Topic != "gw.db" {
			return errors.New("unexpected topic " + pm.Topic)
		}
		key, _ := pm.Key.Encode()
		if string(key) != msg.Name {
			return errors.New("unexpected key " + string(key))
		}
		value, _ := pm.Value.Encode()
		var got broadcast.Message
		if err := json.Unmarshal(value, &got); err != nil {
			return err
		}
		if got.Resource != "items" {
			return errors.New("unexpected resource " + got.Resource)
		}
		return nil
	})
	require.NoError(t, s.Publish(context.Background(), msg))

	producer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)
	assert.ErrorIs(t, s.Publish(context.Background(), msg), sarama.ErrOutOfBrokers)

	require.NoError(t, s.Close())
}

func TestSinkNotConnected(t *testing.T) {
	s := &Sink{}
	assert.ErrorIs(t, s.Publish(context.Background(), broadcast.Message{}), broadcast.ErrNotConnected)
	assert.NoError(t, s.Close())
}

func TestToSaramaConfig(t *testing.T) {
	conf, err := Config{Version: "2.1.1", SASL: SASL{Enable: true, Username: "u", Password: "p", Algorithm: "sha512"}}.ToSaramaConfig()
	require.NoError(t, err)
	assert.Equal(t, sarama.SASLMechanism(sarama.SASLTypeSCRAMSHA512), conf.Net.SASL.Mechanism)
	assert.NotNil(t, conf.Net.SASL.SCRAMClientGeneratorFunc())
	assert.True(t, conf.Producer.Return.Successes)

	_, err = Config{Version: "2.1.1", SASL: SASL{Enable: true, Algorithm: "md5"}}.ToSaramaConfig()
	assert.ErrorContains(t, err, "invalid SASL algorithm")

	_, err = Config{Version: "not-a-version"}.ToSaramaConfig()
	assert.Error(t, err)
}

func TestScramClientBegin(t *testing.T) {
	c := &scramClient{HashGeneratorFcn: SHA256}
	require.NoError(t, c.Begin("user", "pencil", ""))
	first, err := c.Step("")
	require.NoError(t, err)
	assert.Contains(t, first, "n=user")
	assert.False(t, c.Done())
}

func TestRegistered(t *testing.T) {
	assert.Contains(t, broadcast.Types(), "kafka")
}
