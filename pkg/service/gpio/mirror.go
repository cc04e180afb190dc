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


package gpio

import (
	"context"
	"time"

	aerr "github.com/ewoutp/go-aggregate-error"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/printhost/VirtualPins/pkg/config"
	"github.com/printhost/VirtualPins/pkg/service/bridge"
	"github.com/printhost/VirtualPins/pkg/service/util"
)

// Config of the mirror.
type Config struct {
	PollInterval time.Duration
	Inputs       []config.GPIOInputConfig
}

// PinSetter is used to set virtual pins.
type PinSetter interface {
	SetPin(ctx context.Context, name string, value bool) error
}

// Mirror polls physical inputs and copies their value onto virtual pins.
type Mirror struct {
	log    zerolog.Logger
	cfg    Config
	bridge bridge.API
	setter PinSetter
	inputs []*input
}

type input struct {
	config.GPIOInputConfig
	pin     bridge.InputPin
	known   bool
	last    bool
	failing bool
}

// NewMirror opens all configured inputs on the given bridge.
func NewMirror(cfg Config, br bridge.API, setter PinSetter, log zerolog.Logger) (*Mirror, error) {
	m := &Mirror{
		log:    log.With().Str("component", "gpio").Logger(),
		cfg:    cfg,
		bridge: br,
		setter: setter,
	}
	var ae aerr.AggregateError
	for _, ic := range cfg.Inputs {
		pin, err := br.Input(ic.GPIO, ic.ActiveLow)
		if err != nil {
			ae.Add(errors.Wrapf(err, "gpio %d for pin %s", ic.GPIO, ic.Pin))
			continue
		}
		m.inputs = append(m.inputs, &input{
			GPIOInputConfig: ic,
			pin:             pin,
		})
	}
	if err := ae.AsError(); err != nil {
		return nil, err
	}
	return m, nil
}

// Run polls all inputs until the given context is canceled.
func (m *Mirror) Run(ctx context.Context) error {
	if len(m.inputs) == 0 {
		return nil
	}
	m.log.Info().Int("inputs", len(m.inputs)).Dur("interval", m.cfg.PollInterval).Msg("Mirroring GPIO inputs")
	return util.UntilCanceled(ctx, m.log, "gpio poll", m.cfg.PollInterval, func() error {
		return m.poll(ctx)
	})
}

// poll reads all inputs once.
// Read failures are logged once per streak. Only failures to set
// a pin are returned.
func (m *Mirror) poll(ctx context.Context) error {
	var ae aerr.AggregateError
	anyFailing := false
	for _, in := range m.inputs {
		log := m.log.With().Str("pin", in.Pin).Int("gpio", in.GPIO).Logger()
		value, err := in.pin.Read()
		if err != nil {
			readErrorsTotal.WithLabelValues(in.Pin).Inc()
			if !in.failing {
				log.Error().Err(err).Msg("Failed to read input")
				in.failing = true
			}
			anyFailing = true
			continue
		}
		if in.failing {
			log.Info().Msg("Input readable again")
			in.failing = false
		}
		if in.known && in.last == value {
			continue
		}
		if err := m.setter.SetPin(ctx, in.Pin, value); err != nil {
			ae.Add(errors.Wrapf(err, "pin %s", in.Pin))
			continue
		}
		in.known, in.last = true, value
		changesMirroredTotal.WithLabelValues(in.Pin).Inc()
		log.Debug().Bool("value", value).Msg("Mirrored input")
	}
	if err := m.bridge.SetErrorLED(anyFailing); err != nil {
		m.log.Debug().Err(err).Msg("Failed to set error led")
	}
	return ae.AsError()
}
