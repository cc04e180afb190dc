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


package vpin

import (
	aerr "github.com/ewoutp/go-aggregate-error"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/printhost/VirtualPins/pkg/reactor"
)

const (
	// PinTypeEndstop is the only pin type supported by Setup.
	PinTypeEndstop = "endstop"
)

// Registry is the namespace of all virtual pins of a process.
//
// A Registry is not safe for concurrent use. All access must happen on
// the reactor that owns it.
type Registry struct {
	log             zerolog.Logger
	clock           reactor.Clock
	pins            map[string]registeredPin
	order           []*Pin
	groups          []*ButtonGroup
	configCallbacks []func() error
}

type registeredPin struct {
	pin   *Pin
	index int
}

// NewRegistry creates an empty registry.
func NewRegistry(clock reactor.Clock, log zerolog.Logger) *Registry {
	return &Registry{
		log:   log.With().Str("component", "registry").Logger(),
		clock: clock,
		pins:  make(map[string]registeredPin),
	}
}

// NewPin creates a pin with given name and registers it.
func (r *Registry) NewPin(name string) (*Pin, error) {
	pin := NewPin(name, r.clock, r.log)
	if err := r.Register(pin); err != nil {
		return nil, err
	}
	return pin, nil
}

// Register adds the given pin to the registry.
func (r *Registry) Register(pin *Pin) error {
	name := pin.Name()
	if _, found := r.pins[name]; found {
		return errors.Wrapf(DuplicatePinError, "duplicate virtual_pin %s", name)
	}
	r.pins[name] = registeredPin{
		pin:   pin,
		index: len(r.order),
	}
	r.order = append(r.order, pin)
	r.log.Debug().Str("pin", name).Int("index", len(r.order)-1).Msg("registered pin")
	return nil
}

// Pin returns the pin with given name.
func (r *Registry) Pin(name string) (*Pin, bool) {
	entry, found := r.pins[name]
	return entry.pin, found
}

// Index returns the registration index of the pin with given name.
func (r *Registry) Index(name string) (int, bool) {
	entry, found := r.pins[name]
	return entry.index, found
}

// Pins returns all pins in registration order.
func (r *Registry) Pins() []*Pin {
	return append([]*Pin(nil), r.order...)
}

// Names returns the names of all pins in registration order.
func (r *Registry) Names() []string {
	return lo.Map(r.order, pinName)
}

// Setup prepares the pin referenced by params for use as the given type.
// Only the endstop type is supported.
func (r *Registry) Setup(pinType string, params PinParams) (*Endstop, error) {
	entry, found := r.pins[params.Pin]
	if !found {
		return nil, errors.Wrapf(PinNotFoundError, "virtual_pin %s not configured", params.Pin)
	}
	if pinType != PinTypeEndstop {
		return nil, errors.Wrapf(UnsupportedPinTypeError, "virtual_pin pins only support endstop type, got '%s'", pinType)
	}
	return &Endstop{
		pin:    entry.pin,
		invert: params.Invert,
	}, nil
}

// SubscribeButtonGroup creates a button group for the pins with given
// names, in the given order.
// Names that are not registered are logged and skipped.
// The handler receives an initial report before this function returns.
func (r *Registry) SubscribeButtonGroup(handler ButtonHandler, pinNames []string) (*ButtonGroup, error) {
	pins := make([]*Pin, 0, len(pinNames))
	for _, name := range pinNames {
		entry, found := r.pins[name]
		if !found {
			r.log.Error().Str("pin", name).Msg("virtual pin not configured, skipping in button group")
			continue
		}
		pins = append(pins, entry.pin)
	}
	if len(pins) == 0 {
		return nil, errors.Wrapf(PinNotFoundError, "none of the virtual pins %v are configured", pinNames)
	}
	if len(pins) > MaxButtonGroupPins {
		return nil, errors.Wrapf(GroupTooLargeError, "%d pins, at most %d supported", len(pins), MaxButtonGroupPins)
	}
	g := newButtonGroup(handler, pins, r.clock, r.log)
	r.groups = append(r.groups, g)
	for _, p := range pins {
		p.attach(g)
	}
	g.deliver()
	return g, nil
}

// ButtonGroups returns all groups created by SubscribeButtonGroup.
func (r *Registry) ButtonGroups() []*ButtonGroup {
	return append([]*ButtonGroup(nil), r.groups...)
}

// WatchAll registers a watcher under given key on every registered pin.
func (r *Registry) WatchAll(key string, fn func(pin *Pin, value bool) error) {
	for _, p := range r.order {
		p := p
		p.RegisterWatcher(key, func(value bool) error {
			return fn(p, value)
		})
	}
}

// RegisterConfigCallback adds a callback that is called by RunConfigCallbacks.
func (r *Registry) RegisterConfigCallback(cb func() error) {
	r.configCallbacks = append(r.configCallbacks, cb)
}

// RunConfigCallbacks calls all registered config callbacks once and
// clears the list.
// A failing callback does not stop the others.
func (r *Registry) RunConfigCallbacks() error {
	var ae aerr.AggregateError
	callbacks := r.configCallbacks
	r.configCallbacks = nil
	for _, cb := range callbacks {
		if err := cb(); err != nil {
			configCallbackErrorsTotal.Inc()
			r.log.Error().Err(err).Msg("config callback failed")
			ae.Add(maskAny(err))
		}
	}
	return ae.AsError()
}
