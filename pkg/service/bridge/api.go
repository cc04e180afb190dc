//    Copyright 2017 Ewout Prangsma
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


package bridge

import (
	"strconv"
	"time"
)

// API of the bridge, the hardware that provides physical inputs
// which can be mirrored onto virtual pins.
type API interface {
	// Turn status led on/off
	SetStatusLED(on bool) error
	// Blink status led with given duration between on/off
	BlinkStatusLED(delay time.Duration) error
	// Turn error led on/off
	SetErrorLED(on bool) error

	// Returns number of local pins
	PinCount() int
	// Input initializes a GPIO input pin with the given pin number.
	Input(pinNumber int, activeLow bool) (InputPin, error)

	Close() error
}

// InputPin is the interface satisfied by GPIO input pins.
type InputPin interface {
	Read() (bool, error)
}

// countingInput counts reads & read failures of an input.
type countingInput struct {
	InputPin
	label string
}

func newCountingInput(pin InputPin, pinNumber int) InputPin {
	return &countingInput{
		InputPin: pin,
		label:    strconv.Itoa(pinNumber),
	}
}

// Read the input, updating metrics.
func (i *countingInput) Read() (bool, error) {
	inputReadCounters.WithLabelValues(i.label).Inc()
	value, err := i.InputPin.Read()
	if err != nil {
		inputReadErrorCounters.WithLabelValues(i.label).Inc()
	}
	return value, err
}
