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
	"sync"
)

// Completion holds the boolean result of an operation that
// finishes at some point in time.
type Completion struct {
	once   sync.Once
	done   chan struct{}
	result bool
}

// NewCompletion creates a completion that is not yet completed.
func NewCompletion() *Completion {
	return &Completion{
		done: make(chan struct{}),
	}
}

// Complete sets the result. Only the first call has an effect.
func (c *Completion) Complete(result bool) {
	c.once.Do(func() {
		c.result = result
		close(c.done)
	})
}

// Test returns true when the completion has a result.
func (c *Completion) Test() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// Done returns a channel that is closed once a result is available.
func (c *Completion) Done() <-chan struct{} {
	return c.done
}

// Wait blocks until a result is available or the context is canceled.
func (c *Completion) Wait(ctx context.Context) (bool, error) {
	select {
	case <-c.done:
		return c.result, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}
