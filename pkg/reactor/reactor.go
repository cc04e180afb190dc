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
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// Clock provides the monotonic time shared by all users of a reactor.
type Clock interface {
	// Monotonic returns the number of seconds since an arbitrary,
	// fixed starting point. It never decreases.
	Monotonic() float64
}

// Reactor is a single owner event loop.
// All tasks submitted to it are executed one at a time on the goroutine
// that called Run, so state owned by the reactor needs no further locking.
//
// Tasks running on the reactor must never call Do themselves.
type Reactor struct {
	log   zerolog.Logger
	start time.Time
	tasks chan task

	mutex         sync.Mutex
	readyHandlers []func()
}

type task struct {
	fn     func() error
	result chan error
}

const (
	taskQueueSize = 32
)

// New creates a new reactor. Call Run to start processing tasks.
func New(log zerolog.Logger) *Reactor {
	return &Reactor{
		log:   log.With().Str("component", "reactor").Logger(),
		start: time.Now(),
		tasks: make(chan task, taskQueueSize),
	}
}

// Monotonic returns the number of seconds since the reactor was created.
func (r *Reactor) Monotonic() float64 {
	return time.Since(r.start).Seconds()
}

// OnReady registers a handler that is executed on the reactor
// once Run has started and before any task is executed.
func (r *Reactor) OnReady(handler func()) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.readyHandlers = append(r.readyHandlers, handler)
}

// Run executes tasks until the given context is canceled.
func (r *Reactor) Run(ctx context.Context) error {
	r.mutex.Lock()
	handlers := r.readyHandlers
	r.readyHandlers = nil
	r.mutex.Unlock()

	for _, h := range handlers {
		r.exec(func() error { h(); return nil })
	}
	r.log.Debug().Int("ready_handlers", len(handlers)).Msg("reactor ready")

	for {
		select {
		case <-ctx.Done():
			// Context canceled
			return nil
		case t := <-r.tasks:
			t.result <- r.exec(t.fn)
		}
	}
}

// Do executes the given function on the reactor and waits for it to finish.
func (r *Reactor) Do(ctx context.Context, fn func() error) error {
	t := task{
		fn:     fn,
		result: make(chan error, 1),
	}
	select {
	case r.tasks <- t:
		// Queued
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-t.result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// exec runs a single task, turning a panic into an error so the
// loop keeps running.
func (r *Reactor) exec(fn func() error) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error().Interface("panic", rec).Msg("reactor task panicked")
			err = errors.WithStack(fmt.Errorf("task panicked: %v", rec))
		}
	}()
	return fn()
}
