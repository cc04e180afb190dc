// Copyright 2025 Ewout Prangsma
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//
// Author Ewout Prangsma
//


package mqtt

import (
	"context"
	"sync"
	"testing"
	"time"

	mqttapi "github.com/eclipse/paho.mqtt.golang"
	"github.com/fxamacker/cbor/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/printhost/VirtualPins/pkg/config"
	"github.com/printhost/VirtualPins/pkg/reactor"
	"github.com/printhost/VirtualPins/pkg/vpin"
)

type fakeToken struct {
	err  error
	done chan struct{}
}

func newFakeToken(err error) *fakeToken {
	t := &fakeToken{err: err, done: make(chan struct{})}
	close(t.done)
	return t
}

func (t *fakeToken) Wait() bool                     { return true }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t *fakeToken) Done() <-chan struct{}          { return t.done }
func (t *fakeToken) Error() error                   { return t.err }

type published struct {
	topic    string
	payload  []byte
	retained bool
}

type fakeClient struct {
	mqttapi.Client
	opts *mqttapi.ClientOptions

	mutex        sync.Mutex
	published    []published
	handlers     map[string]mqttapi.MessageHandler
	disconnected bool
}

func (c *fakeClient) Connect() mqttapi.Token {
	if c.opts.OnConnect != nil {
		c.opts.OnConnect(c)
	}
	return newFakeToken(nil)
}

func (c *fakeClient) Subscribe(topic string, qos byte, cb mqttapi.MessageHandler) mqttapi.Token {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.handlers[topic] = cb
	return newFakeToken(nil)
}

func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqttapi.Token {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.published = append(c.published, published{topic: topic, payload: payload.([]byte), retained: retained})
	return newFakeToken(nil)
}

func (c *fakeClient) Disconnect(quiesce uint) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.disconnected = true
}

// last returns the payload of the last message published to given topic.
func (c *fakeClient) last(topic string) (published, bool) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	for i := len(c.published) - 1; i >= 0; i-- {
		if c.published[i].topic == topic {
			return c.published[i], true
		}
	}
	return published{}, false
}

func (c *fakeClient) handler(topic string) mqttapi.MessageHandler {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.handlers[topic]
}

type fakeMessage struct {
	mqttapi.Message
	topic   string
	payload string
}

func (m fakeMessage) Topic() string   { return m.topic }
func (m fakeMessage) Payload() []byte { return []byte(m.payload) }

type reactorSetter struct {
	reactor  *reactor.Reactor
	registry *vpin.Registry
}

func (s reactorSetter) SetPin(ctx context.Context, name string, value bool) error {
	return s.reactor.Do(ctx, func() error {
		p, found := s.registry.Pin(name)
		if !found {
			return vpin.PinNotFoundError
		}
		p.SetValue(value)
		return nil
	})
}

type testEnv struct {
	reactor  *reactor.Reactor
	registry *vpin.Registry
	bridge   *Bridge
	client   *fakeClient
}

func newTestEnv(t *testing.T, cfg Config, pins ...string) *testEnv {
	t.Helper()
	r := reactor.New(zerolog.Nop())
	registry := vpin.NewRegistry(r, zerolog.Nop())
	for _, name := range pins {
		_, err := registry.NewPin(name)
		require.NoError(t, err)
	}
	env := &testEnv{
		reactor:  r,
		registry: registry,
		client:   &fakeClient{handlers: make(map[string]mqttapi.MessageHandler)},
	}
	factory := func(opts *mqttapi.ClientOptions) mqttapi.Client {
		env.client.opts = opts
		return env.client
	}
	b, err := NewBridge(cfg, registry, reactorSetter{r, registry}, factory, zerolog.Nop())
	require.NoError(t, err)
	env.bridge = b
	return env
}

func (env *testEnv) start(t *testing.T) {
	env.reactor.OnReady(func() {
		env.registry.RunConfigCallbacks()
	})
	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		env.reactor.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		assert.NoError(t, env.bridge.Run(ctx))
	}()
	t.Cleanup(func() {
		cancel()
		wg.Wait()
	})
}

func (env *testEnv) query(t *testing.T, name string) bool {
	var result bool
	require.NoError(t, env.reactor.Do(context.Background(), func() error {
		p, _ := env.registry.Pin(name)
		result = p.Query()
		return nil
	}))
	return result
}

func testConfig() Config {
	return Config{
		MQTTConfig: config.MQTTConfig{
			Enabled:     true,
			Broker:      "tcp://localhost:1883",
			ClientID:    "test",
			TopicPrefix: "vpin",
		},
	}
}

func eventuallyPublished(t *testing.T, c *fakeClient, topic string, payload string) {
	t.Helper()
	assert.Eventually(t, func() bool {
		msg, found := c.last(topic)
		return found && string(msg.payload) == payload && msg.retained
	}, time.Second, time.Millisecond*5, "%s=%s", topic, payload)
}

func TestBridgePublishesStates(t *testing.T) {
	env := newTestEnv(t, testConfig(), "a", "b")
	p, _ := env.registry.Pin("b")
	p.SetValue(true)
	env.start(t)

	eventuallyPublished(t, env.client, "vpin/a/state", "OFF")
	eventuallyPublished(t, env.client, "vpin/b/state", "ON")
}

func TestBridgeHandlesCommands(t *testing.T) {
	env := newTestEnv(t, testConfig(), "a")
	env.start(t)

	var h mqttapi.MessageHandler
	require.Eventually(t, func() bool {
		h = env.client.handler("vpin/+/command")
		return h != nil
	}, time.Second, time.Millisecond*5)

	h(env.client, fakeMessage{topic: "vpin/a/command", payload: "on"})
	assert.True(t, env.query(t, "a"))
	eventuallyPublished(t, env.client, "vpin/a/state", "ON")

	h(env.client, fakeMessage{topic: "vpin/a/command", payload: "bogus"})
	assert.True(t, env.query(t, "a"))

	h(env.client, fakeMessage{topic: "vpin/a/command", payload: "0"})
	assert.False(t, env.query(t, "a"))

	// Unknown pin & other topics are ignored
	h(env.client, fakeMessage{topic: "vpin/x/command", payload: "1"})
	h(env.client, fakeMessage{topic: "vpin/a/state", payload: "1"})
	assert.False(t, env.query(t, "a"))
}

func TestBridgePublishesButtonGroups(t *testing.T) {
	cfg := testConfig()
	cfg.PublishButtonGroups = true
	cfg.ButtonGroups = []config.ButtonGroupConfig{
		{Name: "lanes", Pins: []string{"lane0", "lane1", "lane2"}},
	}
	env := newTestEnv(t, cfg, "lane0", "lane1", "lane2")
	env.start(t)

	decodeLast := func() (vpin.ButtonState, bool) {
		msg, found := env.client.last("vpin/buttons/lanes")
		if !found {
			return vpin.ButtonState{}, false
		}
		var s vpin.ButtonState
		if err := cbor.Unmarshal(msg.payload, &s); err != nil {
			return vpin.ButtonState{}, false
		}
		return s, true
	}

	require.Eventually(t, func() bool {
		_, found := decodeLast()
		return found
	}, time.Second, time.Millisecond*5)
	s, _ := decodeLast()
	assert.Equal(t, uint8(0), s.AckCount)
	assert.Equal(t, []byte{0x00}, s.State)

	require.NoError(t, reactorSetter{env.reactor, env.registry}.SetPin(context.Background(), "lane2", true))
	require.Eventually(t, func() bool {
		s, _ := decodeLast()
		return s.AckCount == 1
	}, time.Second, time.Millisecond*5)
	s, _ = decodeLast()
	assert.Equal(t, []byte{0x04}, s.State)
}

func TestBridgeEnqueueDropsOldest(t *testing.T) {
	b := &Bridge{outbox: make(chan message, 2)}
	b.enqueue(message{topic: "1"})
	b.enqueue(message{topic: "2"})
	b.enqueue(message{topic: "3"})
	require.Len(t, b.outbox, 2)
	assert.Equal(t, "2", (<-b.outbox).topic)
	assert.Equal(t, "3", (<-b.outbox).topic)
}

func TestBridgeTopics(t *testing.T) {
	env := newTestEnv(t, testConfig())
	assert.Equal(t, "vpin/lane0/state", env.bridge.StateTopic("lane0"))
	assert.Equal(t, "vpin/lane0/command", env.bridge.CommandTopic("lane0"))
	assert.Equal(t, "vpin/buttons/g", env.bridge.ButtonTopic("g"))
	assert.Equal(t, "vpin/logs", env.bridge.LogTopic())
}

func TestParseBool(t *testing.T) {
	for _, s := range []string{"1", "true", "ON", "yes", " t "} {
		v, err := parseBool(s)
		require.NoError(t, err, s)
		assert.True(t, v, s)
	}
	for _, s := range []string{"0", "false", "OFF", "no", "f"} {
		v, err := parseBool(s)
		require.NoError(t, err, s)
		assert.False(t, v, s)
	}
	_, err := parseBool("maybe")
	assert.Error(t, err)
	assert.Equal(t, "ON", formatBool(true))
	assert.Equal(t, "OFF", formatBool(false))
}
