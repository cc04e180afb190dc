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
	"github.com/printhost/VirtualPins/pkg/reactor"
)

// Endstop exposes a pin as a homing endstop.
// It holds no state of its own.
type Endstop struct {
	pin    *Pin
	invert bool
}

// Pin returns the underlying pin.
func (e *Endstop) Pin() *Pin {
	return e.pin
}

// Invert returns true when the endstop is triggered on a low pin.
func (e *Endstop) Invert() bool {
	return e.invert
}

// MCU returns the micro controller of the endstop.
// Virtual endstops have none.
func (e *Endstop) MCU() interface{} {
	return nil
}

// AddStepper does nothing; virtual endstops do not drive steppers.
func (e *Endstop) AddStepper(name string) {}

// Steppers returns an empty list.
func (e *Endstop) Steppers() []string {
	return []string{}
}

// Query returns true when the endstop is triggered.
func (e *Endstop) Query(printTime float64) bool {
	return e.pin.Query() != e.invert
}

// HomeStart starts a homing move.
// The returned completion is already completed with the current
// trigger state, since a virtual pin has no propagation delay.
func (e *Endstop) HomeStart(printTime, sampleTime float64, sampleCount int, restTime float64, triggered bool) *reactor.Completion {
	c := reactor.NewCompletion()
	c.Complete(e.Query(printTime))
	return c
}

// HomeWait returns homeEndTime when the endstop is triggered,
// 0.0 otherwise.
func (e *Endstop) HomeWait(homeEndTime float64) float64 {
	if e.Query(homeEndTime) {
		return homeEndTime
	}
	return 0.0
}
