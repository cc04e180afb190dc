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


package service

import (
	"context"
	"sync"
	"time"

	"github.com/mattn/go-pubsub"
	"github.com/rs/zerolog"

	"github.com/printhost/VirtualPins/pkg/vpin"
)

// PinEvent is published every time the value of a pin changes.
type PinEvent struct {
	Name  string    `json:"name"`
	Value bool      `json:"value"`
	Time  time.Time `json:"time"`
}

// EventHub distributes pin events to any number of subscribers.
// Slow subscribers lose events instead of blocking the reactor.
type EventHub struct {
	log    zerolog.Logger
	ps     *pubsub.PubSub
	mutex  sync.Mutex
	subs   map[int]chan PinEvent
	nextID int
	closed bool
}

const (
	subscriberBufferSize = 64
)

// NewEventHub creates a new hub.
func NewEventHub(log zerolog.Logger) *EventHub {
	h := &EventHub{
		log:  log.With().Str("component", "events").Logger(),
		ps:   pubsub.New(),
		subs: make(map[int]chan PinEvent),
	}
	h.ps.Sub(h.dispatch)
	return h
}

// publish is registered as a watcher on all pins.
func (h *EventHub) publish(pin *vpin.Pin, value bool) error {
	h.mutex.Lock()
	closed := h.closed
	h.mutex.Unlock()
	if closed {
		return nil
	}
	h.ps.Pub(PinEvent{
		Name:  pin.Name(),
		Value: value,
		Time:  pin.ChangedAt(),
	})
	return nil
}

// dispatch hands the event to all subscribers.
func (h *EventHub) dispatch(e PinEvent) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	for id, ch := range h.subs {
		select {
		case ch <- e:
		default:
			eventsDroppedTotal.Inc()
			h.log.Debug().Int("subscriber", id).Str("pin", e.Name).Msg("Dropping event")
		}
	}
}

// Subscribe returns a channel receiving all future pin events.
// Call the returned function to unsubscribe; the channel is closed then.
func (h *EventHub) Subscribe() (<-chan PinEvent, context.CancelFunc) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	ch := make(chan PinEvent, subscriberBufferSize)
	if h.closed {
		close(ch)
		return ch, func() {}
	}
	id := h.nextID
	h.nextID++
	h.subs[id] = ch
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mutex.Lock()
			defer h.mutex.Unlock()
			if c, found := h.subs[id]; found {
				delete(h.subs, id)
				close(c)
			}
		})
	}
}

// Close closes all subscriber channels.
func (h *EventHub) Close() {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.closed = true
	for id, ch := range h.subs {
		delete(h.subs, id)
		close(ch)
	}
}
