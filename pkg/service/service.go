//    Copyright 2017-2022 Ewout Prangsma
//
//    Licensed under the Apache License, Version 2.0 (the "License");
//    you may not use this file except in compliance with the License.
//    You may obtain a copy of the License at
//
//        http://www.apache.org/licenses/LICENSE-2.0
//
//    Unless required by applicable law or agreed to in writing, software
//    distributed under the License is distributed on an "AS IS" BASIS,
//    WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
//    See the License for the specific language governing permissions and
//    limitations under the License.

package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	aerr "github.com/ewoutp/go-aggregate-error"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/printhost/VirtualPins/pkg/config"
	"github.com/printhost/VirtualPins/pkg/gcode"
	"github.com/printhost/VirtualPins/pkg/logging"
	"github.com/printhost/VirtualPins/pkg/reactor"
	"github.com/printhost/VirtualPins/pkg/service/bridge"
	"github.com/printhost/VirtualPins/pkg/service/gpio"
	"github.com/printhost/VirtualPins/pkg/service/history"
	"github.com/printhost/VirtualPins/pkg/service/mqtt"
	"github.com/printhost/VirtualPins/pkg/service/util"
	"github.com/printhost/VirtualPins/pkg/vpin"
)

var (
	maskAny = errors.WithStack
)

type Service interface {
	// Run the service until the given context is cancelled.
	Run(ctx context.Context) error
	// PinStatuses returns the status of all pins in registration order.
	PinStatuses(ctx context.Context) ([]PinStatus, error)
	// PinStatus returns the status of the pin with given name.
	PinStatus(ctx context.Context, name string) (PinStatus, error)
	// SetPin sets the value of the pin with given name.
	SetPin(ctx context.Context, name string, value bool) error
	// TogglePin inverts the value of the pin with given name.
	// Returns the new value.
	TogglePin(ctx context.Context, name string) (bool, error)
	// RunCommand executes a single command line.
	RunCommand(ctx context.Context, line string) ([]string, error)
	// Endstops returns the status of all configured endstops.
	Endstops(ctx context.Context) ([]EndstopStatus, error)
	// ButtonGroups returns the last report of all configured button groups.
	ButtonGroups(ctx context.Context) ([]ButtonGroupStatus, error)
	// Subscribe to pin change events.
	Subscribe() (<-chan PinEvent, context.CancelFunc)
}

type Config struct {
	config.Config
	ProgramVersion string
}

type Dependencies struct {
	Logger zerolog.Logger
	// Bridge providing physical inputs. Only required when GPIO inputs are configured.
	Bridge bridge.API
	// If set, log lines are published over MQTT (when enabled in config)
	MQTTWriter logging.MQTTWriter
	// If set, used to create the MQTT client
	MQTTClientFactory mqtt.ClientFactory
}

// PinStatus is the status of a single pin.
type PinStatus struct {
	Name      string    `json:"name"`
	Index     int       `json:"index"`
	Value     int       `json:"value"`
	ChangedAt time.Time `json:"changed_at"`
}

// EndstopStatus is the status of a single endstop.
type EndstopStatus struct {
	Name      string `json:"name"`
	Pin       string `json:"pin"`
	Invert    bool   `json:"invert"`
	Triggered bool   `json:"triggered"`
}

// ButtonGroupStatus holds the last report of a button group.
type ButtonGroupStatus struct {
	Name        string   `json:"name"`
	Pins        []string `json:"pins"`
	AckCount    uint8    `json:"ack_count"`
	State       byte     `json:"state"`
	ReceiveTime float64  `json:"receive_time"`
}

type service struct {
	Config
	Dependencies

	reactor    *reactor.Reactor
	registry   *vpin.Registry
	dispatcher *gcode.Dispatcher
	events     *EventHub
	startedAt  time.Time

	endstops     map[string]*vpin.Endstop
	endstopNames []string
	// Last report per button group. Only accessed on the reactor.
	buttonReports map[string]ButtonGroupStatus

	mqttBridge *mqtt.Bridge
	mirror     *gpio.Mirror
	history    *history.Sink
}

const (
	cmdQueryEndstops     = "QUERY_ENDSTOPS"
	cmdQueryEndstopsHelp = "Report on the status of each endstop"
	eventsWatcherKey     = "events"
	historyWatcherKey    = "history"
	blinkDelay           = time.Millisecond * 250
)

// NewService creates a Service instance and returns it.
func NewService(conf Config, deps Dependencies) (Service, error) {
	deps.Logger = deps.Logger.With().Str("component", "service").Logger()
	r := reactor.New(deps.Logger)
	s := &service{
		Config:        conf,
		Dependencies:  deps,
		reactor:       r,
		registry:      vpin.NewRegistry(r, deps.Logger),
		dispatcher:    gcode.NewDispatcher(deps.Logger),
		events:        NewEventHub(deps.Logger),
		startedAt:     time.Now(),
		endstops:      make(map[string]*vpin.Endstop),
		buttonReports: make(map[string]ButtonGroupStatus),
	}
	if err := s.configurePins(); err != nil {
		return nil, err
	}
	if err := s.dispatcher.Register(cmdQueryEndstops, s.cmdQueryEndstops, cmdQueryEndstopsHelp); err != nil {
		return nil, maskAny(err)
	}
	s.registry.WatchAll(eventsWatcherKey, s.events.publish)
	if len(conf.ButtonGroups) > 0 {
		s.registry.RegisterConfigCallback(s.subscribeButtonGroups)
	}

	if conf.InfluxDB.Enabled {
		s.history = history.New(conf.InfluxDB, deps.Logger)
		s.registry.WatchAll(historyWatcherKey, s.history.Record)
	}
	if conf.MQTT.Enabled {
		b, err := mqtt.NewBridge(mqtt.Config{
			MQTTConfig:   conf.MQTT,
			ButtonGroups: conf.ButtonGroups,
		}, s.registry, s, deps.MQTTClientFactory, deps.Logger)
		if err != nil {
			return nil, maskAny(err)
		}
		s.mqttBridge = b
		if conf.MQTT.Log && deps.MQTTWriter != nil {
			deps.MQTTWriter.SetDestination(b.LogTopic(), b)
			deps.MQTTWriter.Enable(true)
		}
	}
	if len(conf.GPIO.Inputs) > 0 {
		if deps.Bridge == nil {
			return nil, errors.New("gpio inputs configured without a bridge")
		}
		m, err := gpio.NewMirror(gpio.Config{
			PollInterval: conf.GPIO.PollInterval,
			Inputs:       conf.GPIO.Inputs,
		}, deps.Bridge, s, deps.Logger)
		if err != nil {
			return nil, maskAny(err)
		}
		s.mirror = m
	}

	r.OnReady(s.onReady)
	pinsConfiguredTotal.Set(float64(len(s.registry.Names())))
	return s, nil
}

// configurePins creates all pins & endstops.
// Called before the reactor is running.
func (s *service) configurePins() error {
	var ae aerr.AggregateError
	for _, pc := range s.Pins {
		pin, err := s.registry.NewPin(pc.Name)
		if err != nil {
			ae.Add(err)
			continue
		}
		pin.SetValue(pc.InitialValue)
		if err := vpin.RegisterCommands(s.dispatcher, pin); err != nil {
			ae.Add(err)
		}
	}
	for _, ec := range s.Config.Endstops {
		params, err := vpin.ParsePin(ec.Pin)
		if err != nil {
			ae.Add(errors.Wrapf(err, "endstop %s", ec.Name))
			continue
		}
		es, err := s.registry.Setup(vpin.PinTypeEndstop, params)
		if err != nil {
			ae.Add(errors.Wrapf(err, "endstop %s", ec.Name))
			continue
		}
		s.endstops[ec.Name] = es
		s.endstopNames = append(s.endstopNames, ec.Name)
	}
	sort.Strings(s.endstopNames)
	return ae.AsError()
}

// onReady is called on the reactor once it is running.
func (s *service) onReady() {
	log := s.Logger
	if err := s.registry.RunConfigCallbacks(); err != nil {
		log.Error().Err(err).Msg("Config callbacks failed")
	}
	if s.Bridge != nil {
		s.Bridge.SetStatusLED(true)
	}
	log.Info().
		Strs("pins", s.registry.Names()).
		Strs("endstops", s.endstopNames).
		Msg("Virtual pins ready")
}

// subscribeButtonGroups records the reports of all configured button groups.
// Called on the reactor.
func (s *service) subscribeButtonGroups() error {
	var ae aerr.AggregateError
	for _, gc := range s.Config.ButtonGroups {
		name := gc.Name
		g, err := s.registry.SubscribeButtonGroup(func(bs vpin.ButtonState) error {
			status := s.buttonReports[name]
			status.AckCount = bs.AckCount
			status.State = bs.State[0]
			status.ReceiveTime = bs.ReceiveTime
			s.buttonReports[name] = status
			return nil
		}, gc.Pins)
		if err != nil {
			ae.Add(errors.Wrapf(err, "button group %s", name))
			continue
		}
		status := s.buttonReports[name]
		status.Name = name
		status.Pins = g.PinNames()
		s.buttonReports[name] = status
	}
	return ae.AsError()
}

// Run the service until the given context is canceled.
func (s *service) Run(ctx context.Context) error {
	log := s.Logger.With().Str("version", s.ProgramVersion).Logger()
	log.Info().Msg("Starting service")
	if s.Bridge != nil {
		s.Bridge.BlinkStatusLED(blinkDelay)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.reactor.Run(ctx) })
	if s.mqttBridge != nil {
		g.Go(func() error { return s.mqttBridge.Run(ctx) })
	}
	if s.mirror != nil {
		g.Go(func() error { return s.mirror.Run(ctx) })
	}
	if s.history != nil {
		g.Go(func() error { return s.history.Run(ctx) })
	}
	err := g.Wait()

	var closers []func() error
	if s.history != nil {
		closers = append(closers, s.history.Close)
	}
	if s.Bridge != nil {
		closers = append(closers, s.Bridge.Close)
	}
	if cerr := util.CloseAll(closers...); cerr != nil {
		log.Warn().Err(cerr).Msg("Failed to close resources")
		if err == nil {
			err = cerr
		}
	}
	s.events.Close()
	log.Info().Dur("uptime", time.Since(s.startedAt)).Msg("Service stopped")
	return err
}

// lookupPin returns the pin with given name. Must be called on the reactor.
func (s *service) lookupPin(name string) (*vpin.Pin, error) {
	pin, found := s.registry.Pin(name)
	if !found {
		return nil, errors.Wrapf(vpin.PinNotFoundError, "virtual_pin %s not configured", name)
	}
	return pin, nil
}

func (s *service) pinStatus(pin *vpin.Pin) PinStatus {
	index, _ := s.registry.Index(pin.Name())
	return PinStatus{
		Name:      pin.Name(),
		Index:     index,
		Value:     pin.Status().Value,
		ChangedAt: pin.ChangedAt(),
	}
}

// PinStatuses returns the status of all pins in registration order.
func (s *service) PinStatuses(ctx context.Context) ([]PinStatus, error) {
	var result []PinStatus
	if err := s.reactor.Do(ctx, func() error {
		pins := s.registry.Pins()
		result = make([]PinStatus, 0, len(pins))
		for _, p := range pins {
			result = append(result, s.pinStatus(p))
		}
		return nil
	}); err != nil {
		return nil, err
	}
	return result, nil
}

// PinStatus returns the status of the pin with given name.
func (s *service) PinStatus(ctx context.Context, name string) (PinStatus, error) {
	var result PinStatus
	err := s.reactor.Do(ctx, func() error {
		pin, err := s.lookupPin(name)
		if err != nil {
			return err
		}
		result = s.pinStatus(pin)
		return nil
	})
	return result, err
}

// SetPin sets the value of the pin with given name.
func (s *service) SetPin(ctx context.Context, name string, value bool) error {
	setPinRequestsTotal.Inc()
	return s.reactor.Do(ctx, func() error {
		pin, err := s.lookupPin(name)
		if err != nil {
			return err
		}
		pin.SetValue(value)
		return nil
	})
}

// TogglePin inverts the value of the pin with given name.
func (s *service) TogglePin(ctx context.Context, name string) (bool, error) {
	setPinRequestsTotal.Inc()
	var result bool
	err := s.reactor.Do(ctx, func() error {
		pin, err := s.lookupPin(name)
		if err != nil {
			return err
		}
		result = !pin.Query()
		pin.SetValue(result)
		return nil
	})
	return result, err
}

// RunCommand executes a single command line.
func (s *service) RunCommand(ctx context.Context, line string) ([]string, error) {
	commandRequestsTotal.Inc()
	var responses []string
	err := s.reactor.Do(ctx, func() error {
		var err error
		responses, err = s.dispatcher.Run(line)
		return err
	})
	return responses, err
}

// Endstops returns the status of all configured endstops.
func (s *service) Endstops(ctx context.Context) ([]EndstopStatus, error) {
	var result []EndstopStatus
	err := s.reactor.Do(ctx, func() error {
		result = s.endstopStatuses()
		return nil
	})
	return result, err
}

// endstopStatuses must be called on the reactor.
func (s *service) endstopStatuses() []EndstopStatus {
	result := make([]EndstopStatus, 0, len(s.endstopNames))
	now := s.reactor.Monotonic()
	for _, name := range s.endstopNames {
		es := s.endstops[name]
		result = append(result, EndstopStatus{
			Name:      name,
			Pin:       es.Pin().Name(),
			Invert:    es.Invert(),
			Triggered: es.Query(now),
		})
	}
	return result
}

// ButtonGroups returns the last report of all configured button groups.
func (s *service) ButtonGroups(ctx context.Context) ([]ButtonGroupStatus, error) {
	var result []ButtonGroupStatus
	err := s.reactor.Do(ctx, func() error {
		for _, gc := range s.Config.ButtonGroups {
			if status, found := s.buttonReports[gc.Name]; found {
				status.Pins = append([]string(nil), status.Pins...)
				result = append(result, status)
			}
		}
		return nil
	})
	return result, err
}

// Subscribe to pin change events.
func (s *service) Subscribe() (<-chan PinEvent, context.CancelFunc) {
	return s.events.Subscribe()
}

// cmdQueryEndstops reports the state of all endstops.
func (s *service) cmdQueryEndstops(cmd *gcode.Command) error {
	statuses := s.endstopStatuses()
	if len(statuses) == 0 {
		cmd.RespondInfo("No endstops configured")
		return nil
	}
	parts := make([]string, 0, len(statuses))
	for _, st := range statuses {
		state := "open"
		if st.Triggered {
			state = "TRIGGERED"
		}
		parts = append(parts, fmt.Sprintf("%s:%s", st.Name, state))
	}
	cmd.RespondInfo(strings.Join(parts, " "))
	return nil
}
