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


package bridge

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVirtualBridgeInputs(t *testing.T) {
	b := NewVirtualBridge(8)
	var _ API = b
	assert.Equal(t, 8, b.PinCount())

	high, err := b.Input(3, false)
	require.NoError(t, err)
	low, err := b.Input(4, true)
	require.NoError(t, err)

	v, err := high.Read()
	require.NoError(t, err)
	assert.False(t, v)
	v, err = low.Read()
	require.NoError(t, err)
	assert.True(t, v, "active low input reads true when level is low")

	b.SetInput(3, true)
	b.SetInput(4, true)
	v, _ = high.Read()
	assert.True(t, v)
	v, _ = low.Read()
	assert.False(t, v)

	b.SetInputError(3, errors.New("bus error"))
	_, err = high.Read()
	assert.Error(t, err)
	b.SetInputError(3, nil)
	_, err = high.Read()
	assert.NoError(t, err)

	_, err = b.Input(8, false)
	assert.Error(t, err)
	_, err = b.Input(-1, false)
	assert.Error(t, err)
}

func TestVirtualBridgeLEDs(t *testing.T) {
	b := NewVirtualBridge(1)
	require.NoError(t, b.BlinkStatusLED(time.Millisecond*250))
	status, blinking, errorLed := b.LEDs()
	assert.False(t, status)
	assert.True(t, blinking)
	assert.False(t, errorLed)

	require.NoError(t, b.SetStatusLED(true))
	require.NoError(t, b.SetErrorLED(true))
	status, blinking, errorLed = b.LEDs()
	assert.True(t, status)
	assert.False(t, blinking)
	assert.True(t, errorLed)
	assert.NoError(t, b.Close())
}
