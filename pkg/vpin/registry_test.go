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
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRegistry(t *testing.T, names ...string) (*Registry, *manualClock) {
	t.Helper()
	clock := &manualClock{}
	r := NewRegistry(clock, zerolog.Nop())
	for _, name := range names {
		_, err := r.NewPin(name)
		require.NoError(t, err)
	}
	return r, clock
}

func mustPin(t *testing.T, r *Registry, name string) *Pin {
	t.Helper()
	p, found := r.Pin(name)
	require.True(t, found, name)
	return p
}

func TestRegistryRegisterDuplicate(t *testing.T) {
	r, _ := newTestRegistry(t, "a", "b")
	original := mustPin(t, r, "a")

	err := r.Register(NewPin("a", &manualClock{}, zerolog.Nop()))
	require.Error(t, err)
	assert.True(t, IsDuplicatePin(err))
	assert.Same(t, original, mustPin(t, r, "a"))
	assert.Equal(t, []string{"a", "b"}, r.Names())
	assert.Len(t, r.Pins(), 2)
}

func TestRegistryIndex(t *testing.T) {
	r, _ := newTestRegistry(t, "x", "y", "z")
	for i, name := range []string{"x", "y", "z"} {
		idx, found := r.Index(name)
		require.True(t, found)
		assert.Equal(t, i, idx)
	}
	_, found := r.Index("missing")
	assert.False(t, found)
}

func TestRegistrySetup(t *testing.T) {
	r, _ := newTestRegistry(t, "probe")

	es, err := r.Setup(PinTypeEndstop, PinParams{Chip: ChipName, Pin: "probe", Invert: true})
	require.NoError(t, err)
	assert.Same(t, mustPin(t, r, "probe"), es.Pin())
	assert.True(t, es.Invert())

	es, err = r.Setup("pwm", PinParams{Pin: "probe"})
	assert.Nil(t, es)
	assert.True(t, IsUnsupportedPinType(err))
	assert.Equal(t, 0, mustPin(t, r, "probe").WatcherCount())

	es, err = r.Setup(PinTypeEndstop, PinParams{Pin: "missing"})
	assert.Nil(t, es)
	assert.True(t, IsPinNotFound(err))
	assert.Contains(t, err.Error(), "virtual_pin missing not configured")
}

func TestRegistryLaneScenario(t *testing.T) {
	r, clock := newTestRegistry(t, "lane0", "lane1", "lane2", "lane3")
	clock.now = 12.5

	var reports []ButtonState
	g, err := r.SubscribeButtonGroup(func(s ButtonState) error {
		reports = append(reports, s)
		return nil
	}, []string{"lane0", "lane1", "lane2", "lane3"})
	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.Equal(t, ButtonState{AckCount: 0, State: []byte{0x00}, ReceiveTime: 12.5}, reports[0])

	clock.now = 13
	mustPin(t, r, "lane2").SetValue(true)
	require.Len(t, reports, 2)
	assert.Equal(t, ButtonState{AckCount: 1, State: []byte{0x04}, ReceiveTime: 13}, reports[1])
	assert.Equal(t, uint8(2), g.NextAckCount())
	assert.Equal(t, []string{"lane0", "lane1", "lane2", "lane3"}, g.PinNames())
	assert.Len(t, r.ButtonGroups(), 1)
}

func TestRegistryButtonGroupSkipsMissingPins(t *testing.T) {
	r, _ := newTestRegistry(t, "a", "b")
	mustPin(t, r, "b").SetValue(true)

	var reports []ButtonState
	g, err := r.SubscribeButtonGroup(func(s ButtonState) error {
		reports = append(reports, s)
		return nil
	}, []string{"missing", "b", "a"})
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a"}, g.PinNames())
	require.Len(t, reports, 1)
	assert.Equal(t, []byte{0x01}, reports[0].State)
}

func TestRegistryButtonGroupNoPins(t *testing.T) {
	r, _ := newTestRegistry(t, "a")
	called := false
	g, err := r.SubscribeButtonGroup(func(ButtonState) error {
		called = true
		return nil
	}, []string{"x", "y"})
	assert.Nil(t, g)
	assert.True(t, IsPinNotFound(err))
	assert.False(t, called)
	assert.Empty(t, r.ButtonGroups())
}

func TestRegistryButtonGroupTooLarge(t *testing.T) {
	names := []string{"p0", "p1", "p2", "p3", "p4", "p5", "p6", "p7", "p8"}
	r, _ := newTestRegistry(t, names...)
	_, err := r.SubscribeButtonGroup(func(ButtonState) error { return nil }, names)
	assert.True(t, IsGroupTooLarge(err))
	assert.Empty(t, r.ButtonGroups())

	_, err = r.SubscribeButtonGroup(func(ButtonState) error { return nil }, names[:8])
	assert.NoError(t, err)
}

func TestRegistryButtonGroupsAreIndependent(t *testing.T) {
	r, _ := newTestRegistry(t, "a", "b")
	var first, second []ButtonState
	_, err := r.SubscribeButtonGroup(func(s ButtonState) error {
		first = append(first, s)
		return errors.New("handler failure")
	}, []string{"a", "b"})
	require.NoError(t, err)
	_, err = r.SubscribeButtonGroup(func(s ButtonState) error {
		second = append(second, s)
		return nil
	}, []string{"b"})
	require.NoError(t, err)

	mustPin(t, r, "b").SetValue(true)
	require.Len(t, first, 2)
	require.Len(t, second, 2)
	assert.Equal(t, []byte{0x02}, first[1].State)
	assert.Equal(t, []byte{0x01}, second[1].State)
	assert.Equal(t, uint8(1), first[1].AckCount, "counter advances even when the handler fails")

	// Only "a" is in the first group
	mustPin(t, r, "a").SetValue(true)
	assert.Len(t, first, 3)
	assert.Len(t, second, 2)
}

func TestRegistryButtonGroupDuplicatePinDeliversOnce(t *testing.T) {
	r, _ := newTestRegistry(t, "a")
	var reports []ButtonState
	_, err := r.SubscribeButtonGroup(func(s ButtonState) error {
		reports = append(reports, s)
		return nil
	}, []string{"a", "a"})
	require.NoError(t, err)

	mustPin(t, r, "a").SetValue(true)
	require.Len(t, reports, 2)
	assert.Equal(t, []byte{0x03}, reports[1].State)
}

func TestRegistryWatchAll(t *testing.T) {
	r, _ := newTestRegistry(t, "a", "b")
	changes := map[string][]bool{}
	r.WatchAll("all", func(p *Pin, v bool) error {
		changes[p.Name()] = append(changes[p.Name()], v)
		return nil
	})
	mustPin(t, r, "b").SetValue(true)
	assert.Equal(t, map[string][]bool{"a": {false}, "b": {false, true}}, changes)
}

func TestRegistryConfigCallbacks(t *testing.T) {
	r, _ := newTestRegistry(t)
	var calls []int
	r.RegisterConfigCallback(func() error { calls = append(calls, 1); return errors.New("first failed") })
	r.RegisterConfigCallback(func() error { calls = append(calls, 2); return nil })
	r.RegisterConfigCallback(func() error { calls = append(calls, 3); return errors.New("third failed") })

	err := r.RunConfigCallbacks()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "first failed")
	assert.Contains(t, err.Error(), "third failed")
	assert.Equal(t, []int{1, 2, 3}, calls)

	// List is cleared
	assert.NoError(t, r.RunConfigCallbacks())
	assert.Equal(t, []int{1, 2, 3}, calls)
}
