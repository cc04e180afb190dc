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

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/printhost/VirtualPins/pkg/reactor"
)

const (
	// MaxButtonGroupPins is the maximum number of pins in a single
	// button group. The state of a group is reported as a single byte.
	MaxButtonGroupPins = 8
)

// ButtonState is a batched button report, shaped like the report
// of a micro controller that polls its buttons.
type ButtonState struct {
	// AckCount increments by one for every delivered report and wraps around.
	AckCount uint8 `json:"ack_count" cbor:"ack_count"`
	// State holds a single byte. Bit i is set when pin i of the group is set.
	State []byte `json:"state" cbor:"state"`
	// ReceiveTime is the monotonic time of the report.
	ReceiveTime float64 `json:"receive_time" cbor:"receive_time"`
}

// ButtonHandler is called with every report of a button group.
type ButtonHandler func(state ButtonState) error

// EncodeButtonState packs the given states into a single byte.
// Bit i (LSB first) is set when states[i] is true.
func EncodeButtonState(states []bool) (byte, error) {
	if len(states) > MaxButtonGroupPins {
		return 0, errors.Wrapf(GroupTooLargeError, "%d pins, at most %d supported", len(states), MaxButtonGroupPins)
	}
	var result byte
	for i, s := range states {
		if s {
			result |= 1 << uint(i)
		}
	}
	return result, nil
}

// ButtonGroup is an ordered group of pins whose combined state
// is reported to a single handler.
type ButtonGroup struct {
	log      zerolog.Logger
	clock    reactor.Clock
	handler  ButtonHandler
	pins     []*Pin
	ackCount uint8
}

// newButtonGroup creates a group. The number of pins must not exceed MaxButtonGroupPins.
func newButtonGroup(handler ButtonHandler, pins []*Pin, clock reactor.Clock, log zerolog.Logger) *ButtonGroup {
	return &ButtonGroup{
		log:     log,
		clock:   clock,
		handler: handler,
		pins:    pins,
	}
}

// PinNames returns the names of the pins in the group, in order.
func (g *ButtonGroup) PinNames() []string {
	return lo.Map(g.pins, pinName)
}

// NextAckCount returns the ack count of the next report.
func (g *ButtonGroup) NextAckCount() uint8 {
	return g.ackCount
}

// Encode returns the current state of the group.
func (g *ButtonGroup) Encode() byte {
	states := make([]bool, len(g.pins))
	for i, p := range g.pins {
		states[i] = p.Query()
	}
	// Group size is checked on creation.
	result, _ := EncodeButtonState(states)
	return result
}

// deliver builds a report of the current state & passes it to the handler.
// The ack counter advances even when the handler fails.
func (g *ButtonGroup) deliver() {
	msg := ButtonState{
		AckCount:    g.ackCount,
		State:       []byte{g.Encode()},
		ReceiveTime: g.clock.Monotonic(),
	}
	g.ackCount++
	buttonMessagesTotal.Inc()
	if err := callButtonHandler(g.handler, msg); err != nil {
		buttonHandlerErrorsTotal.Inc()
		g.log.Error().Err(err).
			Strs("pins", g.PinNames()).
			Uint8("ack_count", msg.AckCount).
			Msg("button handler failed")
	}
}

// callButtonHandler invokes the given handler, turning a panic into an error.
func callButtonHandler(handler ButtonHandler, msg ButtonState) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = errors.WithStack(fmt.Errorf("button handler panicked: %v", rec))
		}
	}()
	return handler(msg)
}
