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
	"strings"
	"sync"
	"time"

	mqttapi "github.com/eclipse/paho.mqtt.golang"
	aerr "github.com/ewoutp/go-aggregate-error"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/printhost/VirtualPins/pkg/config"
	"github.com/printhost/VirtualPins/pkg/vpin"
)

var (
	maskAny = errors.WithStack
)

// Config of the bridge.
type Config struct {
	config.MQTTConfig
	ButtonGroups []config.ButtonGroupConfig
}

// PinSetter is used to set pins from received commands.
type PinSetter interface {
	SetPin(ctx context.Context, name string, value bool) error
}

// ClientFactory creates an MQTT client from the given options.
type ClientFactory func(opts *mqttapi.ClientOptions) mqttapi.Client

// Bridge connects virtual pins to an MQTT broker.
// Pin states are published as retained `<prefix>/<pin>/state` messages,
// commands are received on `<prefix>/<pin>/command`.
type Bridge struct {
	log       zerolog.Logger
	cfg       Config
	setter    PinSetter
	newClient ClientFactory
	outbox    chan message

	mutex  sync.Mutex
	states map[string]bool
}

type message struct {
	kind     string
	topic    string
	payload  []byte
	retained bool
}

const (
	outboxSize        = 512
	publishTimeout    = time.Millisecond * 200
	commandTimeout    = time.Second * 2
	disconnectQuiesce = 250
	watcherKey        = "mqtt"
)

// NewBridge creates a bridge for all pins of the given registry.
// It must be called before the reactor that owns the registry is running.
func NewBridge(cfg Config, registry *vpin.Registry, setter PinSetter, newClient ClientFactory, log zerolog.Logger) (*Bridge, error) {
	if newClient == nil {
		newClient = mqttapi.NewClient
	}
	b := &Bridge{
		log:       log.With().Str("component", "mqtt").Logger(),
		cfg:       cfg,
		setter:    setter,
		newClient: newClient,
		outbox:    make(chan message, outboxSize),
		states:    make(map[string]bool),
	}
	registry.WatchAll(watcherKey, b.onPinChanged)
	if cfg.PublishButtonGroups && len(cfg.ButtonGroups) > 0 {
		registry.RegisterConfigCallback(func() error {
			return b.subscribeButtonGroups(registry)
		})
	}
	return b, nil
}

// StateTopic returns the topic that holds the state of the pin with given name.
func (b *Bridge) StateTopic(pinName string) string {
	return b.cfg.TopicPrefix + "/" + pinName + "/state"
}

// CommandTopic returns the topic used to set the pin with given name.
func (b *Bridge) CommandTopic(pinName string) string {
	return b.cfg.TopicPrefix + "/" + pinName + "/command"
}

// ButtonTopic returns the topic that button group reports are published to.
func (b *Bridge) ButtonTopic(groupName string) string {
	return b.cfg.TopicPrefix + "/buttons/" + groupName
}

// LogTopic returns the topic that log lines are published to.
func (b *Bridge) LogTopic() string {
	return b.cfg.TopicPrefix + "/logs"
}

// Publish queues a message for the given topic.
// Used by the MQTT log writer.
func (b *Bridge) Publish(topic string, payload []byte) {
	b.enqueue(message{kind: "log", topic: topic, payload: payload})
}

// Run connects to the broker and publishes queued messages
// until the given context is canceled.
func (b *Bridge) Run(ctx context.Context) error {
	opts := mqttapi.NewClientOptions().
		AddBroker(b.cfg.Broker).
		SetClientID(b.cfg.ClientID).
		SetUsername(b.cfg.Username).
		SetPassword(b.cfg.Password)
	opts.SetKeepAlive(2 * time.Second)
	opts.SetPingTimeout(1 * time.Second)
	opts.SetOrderMatters(false)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetOnConnectHandler(b.onConnect)
	opts.SetConnectionLostHandler(func(c mqttapi.Client, err error) {
		connectedGauge.Set(0)
		b.log.Warn().Err(err).Msg("Lost connection to MQTT broker")
	})
	opts.SetDefaultPublishHandler(func(c mqttapi.Client, m mqttapi.Message) {
		// Ignore messages when no subscription match
	})

	client := b.newClient(opts)

	b.log.Info().Str("broker", b.cfg.Broker).Msg("Connecting to MQTT broker")
	token := client.Connect()
	select {
	case <-token.Done():
		if err := token.Error(); err != nil {
			return errors.Wrapf(err, "failed to connect to mqtt broker %s", b.cfg.Broker)
		}
	case <-ctx.Done():
		client.Disconnect(disconnectQuiesce)
		return nil
	}
	defer func() {
		client.Disconnect(disconnectQuiesce)
		connectedGauge.Set(0)
		b.log.Info().Msg("Disconnected from MQTT broker")
	}()

	for {
		select {
		case msg := <-b.outbox:
			b.publish(client, msg)
		case <-ctx.Done():
			// Context canceled
			return nil
		}
	}
}

// onConnect subscribes to command topics & republishes all known states.
// Called by the client on every (re)connect.
func (b *Bridge) onConnect(c mqttapi.Client) {
	connectedGauge.Set(1)
	topic := b.cfg.TopicPrefix + "/+/command"
	if token := c.Subscribe(topic, byte(b.cfg.QoS), b.onMessage); token.Wait() && token.Error() != nil {
		b.log.Error().Err(token.Error()).Msgf("failed to subscribe to '%s'", topic)
		return
	}
	b.log.Debug().Msgf("Subscribed to MQTT topic '%s'", topic)

	b.mutex.Lock()
	states := make(map[string]bool, len(b.states))
	for name, value := range b.states {
		states[name] = value
	}
	b.mutex.Unlock()
	for name, value := range states {
		b.enqueueState(name, value)
	}
}

// onMessage handles a received command message.
func (b *Bridge) onMessage(c mqttapi.Client, msg mqttapi.Message) {
	topic := strings.TrimPrefix(msg.Topic(), b.cfg.TopicPrefix+"/")
	if !strings.HasSuffix(topic, "/command") {
		// Not a valid message
		return
	}
	pinName := strings.TrimSuffix(topic, "/command")
	commandsReceivedTotal.Inc()
	log := b.log.With().Str("pin", pinName).Logger()
	value, err := parseBool(string(msg.Payload()))
	if err != nil {
		commandErrorsTotal.Inc()
		log.Warn().Err(err).Msg("Invalid command payload")
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()
	if err := b.setter.SetPin(ctx, pinName, value); err != nil {
		commandErrorsTotal.Inc()
		log.Warn().Err(err).Bool("value", value).Msg("Failed to set pin")
		return
	}
	log.Debug().Bool("value", value).Msg("Set pin from MQTT command")
}

// onPinChanged is called on the reactor for every pin change.
func (b *Bridge) onPinChanged(pin *vpin.Pin, value bool) error {
	b.mutex.Lock()
	b.states[pin.Name()] = value
	b.mutex.Unlock()
	b.enqueueState(pin.Name(), value)
	return nil
}

// subscribeButtonGroups subscribes a handler for every configured
// button group. Called on the reactor.
func (b *Bridge) subscribeButtonGroups(registry *vpin.Registry) error {
	var ae aerr.AggregateError
	for _, gc := range b.cfg.ButtonGroups {
		topic := b.ButtonTopic(gc.Name)
		if _, err := registry.SubscribeButtonGroup(func(s vpin.ButtonState) error {
			payload, err := encodeButtonState(s)
			if err != nil {
				return err
			}
			b.enqueue(message{kind: "buttons", topic: topic, payload: payload})
			return nil
		}, gc.Pins); err != nil {
			b.log.Error().Err(err).Str("group", gc.Name).Msg("Failed to subscribe button group")
			ae.Add(errors.Wrapf(err, "button group %s", gc.Name))
		}
	}
	return ae.AsError()
}

func (b *Bridge) enqueueState(name string, value bool) {
	b.enqueue(message{
		kind:     "state",
		topic:    b.StateTopic(name),
		payload:  []byte(formatBool(value)),
		retained: true,
	})
}

// enqueue adds a message to the outbox, dropping the oldest
// message when the outbox is full. It never blocks.
func (b *Bridge) enqueue(msg message) {
	for attempt := 0; attempt < 10; attempt++ {
		select {
		case b.outbox <- msg:
			return
		default:
			// Outbox full; Take 1 out and try again
			select {
			case <-b.outbox:
				messagesDroppedTotal.Inc()
			default:
				// Also continue
			}
		}
	}
	messagesDroppedTotal.Inc()
}

// publish a single message
func (b *Bridge) publish(client mqttapi.Client, msg message) {
	token := client.Publish(msg.topic, byte(b.cfg.QoS), msg.retained, msg.payload)
	if msg.kind == "log" {
		// Failures are not logged, that would feed back into the log topic.
		if token.WaitTimeout(publishTimeout) && token.Error() == nil {
			messagesPublishedTotal.WithLabelValues(msg.kind).Inc()
		}
		return
	}
	if !token.WaitTimeout(publishTimeout) {
		b.log.Error().
			Str("topic", msg.topic).
			Msg("failed to deliver MQTT message in time")
		return
	}
	if err := token.Error(); err != nil {
		b.log.Error().Err(err).
			Str("topic", msg.topic).
			Msg("failed to deliver MQTT message")
		return
	}
	messagesPublishedTotal.WithLabelValues(msg.kind).Inc()
}
