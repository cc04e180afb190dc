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
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/printhost/VirtualPins/pkg/reactor"
)

// WatchFunc is called with the value of a pin.
type WatchFunc func(value bool) error

// Status is the record reported to status collectors.
type Status struct {
	Value int `json:"value"`
}

// Pin is a named boolean signal that behaves like a digital input
// of a micro controller.
//
// A Pin is not safe for concurrent use. All access must happen on the
// reactor that owns the registry.
type Pin struct {
	name      string
	log       zerolog.Logger
	clock     reactor.Clock
	state     bool
	changedAt time.Time
	watchers  []watcher
	groups    []*ButtonGroup
}

type watcher struct {
	key string
	fn  WatchFunc
}

// NewPin creates a new pin with given name and an initial value of false.
func NewPin(name string, clock reactor.Clock, log zerolog.Logger) *Pin {
	return &Pin{
		name:      name,
		log:       log.With().Str("pin", name).Logger(),
		clock:     clock,
		changedAt: time.Now(),
	}
}

// Name returns the name of the pin.
func (p *Pin) Name() string {
	return p.name
}

// Query returns the current value of the pin.
func (p *Pin) Query() bool {
	return p.state
}

// ChangedAt returns the time of the last change of the pin value.
func (p *Pin) ChangedAt() time.Time {
	return p.changedAt
}

// Status returns the status record of the pin.
func (p *Pin) Status() Status {
	return Status{Value: boolToInt(p.state)}
}

// SetValue sets the value of the pin.
// When the value differs from the current value, all watchers are
// called, followed by all button groups that contain this pin.
func (p *Pin) SetValue(value bool) {
	if p.state == value {
		return
	}
	p.state = value
	p.changedAt = time.Now()
	pinChangesTotal.WithLabelValues(p.name).Inc()
	pinValueGauge.WithLabelValues(p.name).Set(float64(boolToInt(value)))
	p.log.Debug().Bool("value", value).Msg("pin changed")

	// Watchers may register other watchers while being called.
	watchers := append([]watcher(nil), p.watchers...)
	for _, w := range watchers {
		p.notify(w, value)
	}
	groups := append([]*ButtonGroup(nil), p.groups...)
	for _, g := range groups {
		g.deliver()
	}
}

// RegisterWatcher adds a watcher under the given key and calls it once
// with the current value.
// Registering a second watcher with the same key replaces the first.
func (p *Pin) RegisterWatcher(key string, fn WatchFunc) {
	w := watcher{key: key, fn: fn}
	replaced := false
	for i, existing := range p.watchers {
		if existing.key == key {
			p.watchers[i] = w
			replaced = true
			break
		}
	}
	if !replaced {
		p.watchers = append(p.watchers, w)
	}
	p.notify(w, p.state)
}

// Watch adds a watcher under a newly generated key and calls it once
// with the current value.
// Returns the key, to be used with Unwatch.
func (p *Pin) Watch(fn WatchFunc) string {
	key := uuid.New().String()
	p.RegisterWatcher(key, fn)
	return key
}

// Unwatch removes the watcher with given key.
func (p *Pin) Unwatch(key string) {
	for i, existing := range p.watchers {
		if existing.key == key {
			p.watchers = append(p.watchers[:i], p.watchers[i+1:]...)
			return
		}
	}
}

// WatcherCount returns the number of registered watchers.
func (p *Pin) WatcherCount() int {
	return len(p.watchers)
}

// SubscribeButtons creates a button group containing only this pin.
// The handler receives an initial message immediately.
func (p *Pin) SubscribeButtons(handler ButtonHandler) *ButtonGroup {
	g := newButtonGroup(handler, []*Pin{p}, p.clock, p.log)
	p.attach(g)
	g.deliver()
	return g
}

// attach the given group to this pin
func (p *Pin) attach(g *ButtonGroup) {
	for _, existing := range p.groups {
		if existing == g {
			return
		}
	}
	p.groups = append(p.groups, g)
}

// notify calls a single watcher, logging any failure.
func (p *Pin) notify(w watcher, value bool) {
	if err := callWatcher(w.fn, value); err != nil {
		watcherErrorsTotal.WithLabelValues(p.name).Inc()
		p.log.Error().Err(err).Str("watcher", w.key).Msg("pin watcher failed")
	}
}

// callWatcher invokes the given function, turning a panic into an error.
func callWatcher(fn WatchFunc, value bool) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = errors.WithStack(fmt.Errorf("watcher panicked: %v", rec))
		}
	}()
	return fn(value)
}

// pinName is used with lo.Map.
func pinName(p *Pin, _ int) string {
	return p.Name()
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
