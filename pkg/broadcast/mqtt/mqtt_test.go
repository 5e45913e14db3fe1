package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgeflare/sqlgate/pkg/broadcast"
)

type fakeToken struct {
	err  error
	done chan struct{}
}

func newToken(err error, complete bool) *fakeToken {
	t := &fakeToken{err: err, done: make(chan struct{})}
	if complete {
		close(t.done)
	}
	return t
}

func (t *fakeToken) Wait() bool                     { <-t.done; return true }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t *fakeToken) Done() <-chan struct{}          { return t.done }
func (t *fakeToken) Error() error                   { return t.err }

type published struct {
	topic   string
	qos     byte
	payload []byte
}

type fakeClient struct {
	sent         []published
	next         mqtt.Token
	disconnected bool
}

func (c *fakeClient) Publish(topic string, qos byte, _ bool, payload any) mqtt.Token {
	c.sent = append(c.sent, published{topic: topic, qos: qos, payload: payload.([]byte)})
	if c.next != nil {
		return c.next
	}
	return newToken(nil, true)
}

func (c *fakeClient) Disconnect(uint) { c.disconnected = true }

func TestSinkTopic(t *testing.T) {
	s := newSink(&fakeClient{}, Config{TopicPrefix: "gw/"}, nil)
	assert.Equal(t, "gw/db/items/post", s.Topic(broadcast.Message{Service: "db", Resource: "items", Method: "post"}))
	assert.Equal(t, "gw/db/get", s.Topic(broadcast.Message{Service: "db", Method: "get"}))
}

func TestSinkPublish(t *testing.T) {
	c := &fakeClient{}
	s := newSink(c, Config{QoS: 1}, nil)
	msg := broadcast.Message{Name: "db.items.patch.post_process", Service: "db", Resource: "items", Method: "patch"}

	require.NoError(t, s.Publish(context.Background(), msg))
	require.Len(t, c.sent, 1)
	assert.Equal(t, "sqlgate/db/items/patch", c.sent[0].topic)
	assert.Equal(t, byte(1), c.sent[0].qos)
	var got broadcast.Message
	require.NoError(t, json.Unmarshal(c.sent[0].payload, &got))
	assert.Equal(t, msg.Name, got.Name)

	c.next = newToken(errors.New("not connected"), true)
	assert.ErrorContains(t, s.Publish(context.Background(), msg), "not connected")

	c.next = newToken(nil, false)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, s.Publish(ctx, msg), context.Canceled)

	require.NoError(t, s.Close())
	assert.True(t, c.disconnected)
}

func TestPahoOptionsDefaults(t *testing.T) {
	cfg := Config{}
	opts, err := pahoOptions(&cfg)
	require.NoError(t, err)
	require.Len(t, opts.Servers, 1)
	assert.Equal(t, "tcp://127.0.0.1:1883", opts.Servers[0].String())
	assert.True(t, strings.HasPrefix(cfg.ClientID, "sqlgate-"))
	assert.Len(t, cfg.ClientID, 23)
	assert.NotEqual(t, cfg.ClientID, defaultClientID())
	assert.Equal(t, 10*time.Second, cfg.ConnectTimeout)
}

func TestRegistered(t *testing.T) {
	assert.Contains(t, broadcast.Types(), "mqtt")
}
