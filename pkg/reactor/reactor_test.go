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

package reactor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startReactor(t *testing.T) *Reactor {
	t.Helper()
	r := New(zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		r.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return r
}

func TestReactorDoSerializesTasks(t *testing.T) {
	r := startReactor(t)
	ctx := context.Background()

	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			require.NoError(t, r.Do(ctx, func() error {
				// Not atomic on purpose; the reactor serializes tasks.
				v := counter
				time.Sleep(time.Microsecond)
				counter = v + 1
				return nil
			}))
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, counter)
}

func TestReactorDoReturnsTaskError(t *testing.T) {
	r := startReactor(t)
	expected := errors.New("boom")
	err := r.Do(context.Background(), func() error { return expected })
	assert.Equal(t, expected, err)
}

func TestReactorDoRecoversPanic(t *testing.T) {
	r := startReactor(t)
	err := r.Do(context.Background(), func() error { panic("kaboom") })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "kaboom")

	// Loop keeps running
	assert.NoError(t, r.Do(context.Background(), func() error { return nil }))
}

func TestReactorReadyHandlersRunFirst(t *testing.T) {
	r := New(zerolog.Nop())
	var order []string
	r.OnReady(func() { order = append(order, "ready") })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Run(ctx)

	require.NoError(t, r.Do(ctx, func() error {
		order = append(order, "task")
		return nil
	}))
	assert.Equal(t, []string{"ready", "task"}, order)
}

func TestReactorDoCanceledContext(t *testing.T) {
	r := New(zerolog.Nop()) // Not running
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := r.Do(ctx, func() error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestReactorMonotonic(t *testing.T) {
	r := New(zerolog.Nop())
	a := r.Monotonic()
	time.Sleep(time.Millisecond)
	b := r.Monotonic()
	assert.GreaterOrEqual(t, a, 0.0)
	assert.Greater(t, b, a)
}

func TestCompletion(t *testing.T) {
	c := NewCompletion()
	assert.False(t, c.Test())

	c.Complete(true)
	c.Complete(false) // Ignored
	assert.True(t, c.Test())

	result, err := c.Wait(context.Background())
	require.NoError(t, err)
	assert.True(t, result)
}

func TestCompletionWaitCanceled(t *testing.T) {
	c := NewCompletion()
	ctx, cancel := context.WithTimeout(context.Background(), time.Millisecond)
	defer cancel()
	_, err := c.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
