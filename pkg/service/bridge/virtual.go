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
	"sync"
	"time"

	"github.com/pkg/errors"
)

// VirtualBridge is a bridge without hardware.
// Its inputs are set in memory, which makes it usable for machines
// without GPIO & for tests.
type VirtualBridge struct {
	mutex     sync.Mutex
	pinCount  int
	values    map[int]bool
	errors    map[int]error
	statusLed bool
	blinking  bool
	errorLed  bool
}

// NewVirtualBridge implements the bridge for a machine without GPIO.
func NewVirtualBridge(pinCount int) *VirtualBridge {
	return &VirtualBridge{
		pinCount: pinCount,
		values:   make(map[int]bool),
		errors:   make(map[int]error),
	}
}

// Returns number of local pins
func (p *VirtualBridge) PinCount() int {
	return p.pinCount
}

// Input initializes a GPIO input pin with the given pin number.
func (p *VirtualBridge) Input(pinNumber int, activeLow bool) (InputPin, error) {
	if pinNumber < 0 || pinNumber >= p.pinCount {
		return nil, errors.Errorf("invalid pin %d", pinNumber)
	}
	return newCountingInput(&virtualInput{
		bridge:    p,
		pinNumber: pinNumber,
		activeLow: activeLow,
	}, pinNumber), nil
}

// SetInput sets the physical level of the input with given number.
func (p *VirtualBridge) SetInput(pinNumber int, value bool) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.values[pinNumber] = value
}

// SetInputError causes reads of the input with given number to fail
// with given error. Pass nil to clear it.
func (p *VirtualBridge) SetInputError(pinNumber int, err error) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	if err == nil {
		delete(p.errors, pinNumber)
	} else {
		p.errors[pinNumber] = err
	}
}

// Turn status led on/off
func (p *VirtualBridge) SetStatusLED(on bool) error {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.statusLed, p.blinking = on, false
	return nil
}

// Blink status led with given duration between on/off
func (p *VirtualBridge) BlinkStatusLED(delay time.Duration) error {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.blinking = true
	return nil
}

// Turn error led on/off
func (p *VirtualBridge) SetErrorLED(on bool) error {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.errorLed = on
	return nil
}

// LEDs returns the state of the status led (on, blinking) & error led.
func (p *VirtualBridge) LEDs() (status, blinking, errorLed bool) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return p.statusLed, p.blinking, p.errorLed
}

func (p *VirtualBridge) Close() error {
	return nil
}

type virtualInput struct {
	bridge    *VirtualBridge
	pinNumber int
	activeLow bool
}

// Read returns the logical value of the input.
func (i *virtualInput) Read() (bool, error) {
	i.bridge.mutex.Lock()
	defer i.bridge.mutex.Unlock()
	if err := i.bridge.errors[i.pinNumber]; err != nil {
		return false, err
	}
	return i.bridge.values[i.pinNumber] != i.activeLow, nil
}
