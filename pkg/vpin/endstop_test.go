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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEndstopQueryInvert(t *testing.T) {
	tests := []struct {
		state    bool
		invert   bool
		expected bool
	}{
		{true, false, true},
		{true, true, false},
		{false, false, false},
		{false, true, true},
	}
	for _, tc := range tests {
		p := newTestPin("probe")
		p.SetValue(tc.state)
		es := &Endstop{pin: p, invert: tc.invert}
		assert.Equal(t, tc.expected, es.Query(0), "state=%v invert=%v", tc.state, tc.invert)
		assert.Equal(t, tc.expected, es.Query(123.4), "time is ignored")
	}
}

func TestEndstopHoming(t *testing.T) {
	r, _ := newTestRegistry(t, "probe")
	es, err := r.Setup(PinTypeEndstop, PinParams{Pin: "probe"})
	require.NoError(t, err)

	c := es.HomeStart(1.0, 0.001, 4, 0.0, true)
	require.True(t, c.Test(), "resolves immediately")
	select {
	case <-c.Done():
	default:
		t.Fatal("completion not done")
	}
	assert.Equal(t, 0.0, es.HomeWait(5.5))

	mustPin(t, r, "probe").SetValue(true)
	c = es.HomeStart(2.0, 0.001, 4, 0.0, true)
	require.True(t, c.Test())
	assert.Equal(t, 5.5, es.HomeWait(5.5))
}

func TestEndstopMCUShims(t *testing.T) {
	es := &Endstop{pin: newTestPin("p")}
	assert.Nil(t, es.MCU())
	es.AddStepper("stepper_x")
	assert.Empty(t, es.Steppers())
	assert.NotNil(t, es.Steppers())
}
