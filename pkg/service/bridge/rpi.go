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
	"context"
	"sync"
	"time"

	"github.com/ecc1/gpio"
	"github.com/pkg/errors"
)

const (
	statusLedPin = 23
	errorLedPin  = 24
	rpiPinCount  = 28
)

type led struct {
	sync.Mutex
	pin         gpio.OutputPin
	cancelBlink func()
}

// Turn led on/off, cancel blink
func (l *led) Set(on bool) error {
	l.Mutex.Lock()
	defer l.Mutex.Unlock()

	l.stopBlink()
	if err := l.pin.Write(on); err != nil {
		return errors.Wrap(err, "Write failed")
	}
	return nil
}

// Blink led on/off
func (l *led) Blink(delay time.Duration) error {
	l.Mutex.Lock()
	defer l.Mutex.Unlock()

	l.stopBlink()
	ctx, cancel := context.WithCancel(context.Background())
	l.cancelBlink = cancel
	go func() {
		value := true
		for {
			l.Mutex.Lock()
			if ctx.Err() == nil {
				l.pin.Write(value)
				value = !value
			}
			l.Mutex.Unlock()
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return
			}
		}
	}()
	return nil
}

// stopBlink cancels a running blink. Requires the mutex to be held.
func (l *led) stopBlink() {
	if cancel := l.cancelBlink; cancel != nil {
		l.cancelBlink = nil
		cancel()
	}
}

type piBridge struct {
	mutex     sync.Mutex
	statusLed led
	errorLed  led
	inputs    map[int]InputPin
}

// NewRaspberryPiBridge implements the bridge for Raspberry PI's
func NewRaspberryPiBridge() (API, error) {
	activeLow := true
	initialValue := false
	statusLed, err := gpio.Output(statusLedPin, activeLow, initialValue)
	if err != nil {
		return nil, errors.Wrap(err, "Output[statusLed] failed")
	}
	errorLed, err := gpio.Output(errorLedPin, activeLow, initialValue)
	if err != nil {
		return nil, errors.Wrap(err, "Output[errorLed] failed")
	}
	return &piBridge{
		statusLed: led{pin: statusLed},
		errorLed:  led{pin: errorLed},
		inputs:    make(map[int]InputPin),
	}, nil
}

// Returns number of local pins
func (p *piBridge) PinCount() int {
	return rpiPinCount
}

// Input initializes a GPIO input pin with the given pin number.
// Pins used for the leds cannot be used as input.
func (p *piBridge) Input(pinNumber int, activeLow bool) (InputPin, error) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if pinNumber < 0 || pinNumber >= rpiPinCount {
		return nil, errors.Errorf("invalid pin %d", pinNumber)
	}
	if pinNumber == statusLedPin || pinNumber == errorLedPin {
		return nil, errors.Errorf("pin %d is reserved for a led", pinNumber)
	}
	if _, found := p.inputs[pinNumber]; found {
		return nil, errors.Errorf("pin %d already in use", pinNumber)
	}
	pin, err := gpio.Input(pinNumber, activeLow)
	if err != nil {
		return nil, errors.Wrapf(err, "Input[%d] failed", pinNumber)
	}
	result := newCountingInput(pin, pinNumber)
	p.inputs[pinNumber] = result
	return result, nil
}

// Turn status led on/off
func (p *piBridge) SetStatusLED(on bool) error {
	if err := p.statusLed.Set(on); err != nil {
		return errors.Wrap(err, "Set[statusLed] failed")
	}
	return nil
}

// Blink status led with given duration between on/off
func (p *piBridge) BlinkStatusLED(delay time.Duration) error {
	if err := p.statusLed.Blink(delay); err != nil {
		return errors.Wrap(err, "Blink[statusLed] failed")
	}
	return nil
}

// Turn error led on/off
func (p *piBridge) SetErrorLED(on bool) error {
	if err := p.errorLed.Set(on); err != nil {
		return errors.Wrap(err, "Set[errorLed] failed")
	}
	return nil
}

// Close turns off the leds.
func (p *piBridge) Close() error {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	p.inputs = make(map[int]InputPin)
	if err := p.statusLed.Set(false); err != nil {
		return errors.Wrap(err, "Close failed")
	}
	if err := p.errorLed.Set(false); err != nil {
		return errors.Wrap(err, "Close failed")
	}
	return nil
}
