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


package history

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/printhost/VirtualPins/pkg/vpin"
)

type recordingWriter struct {
	mutex   sync.Mutex
	points  []*write.Point
	flushed int
}

func (w *recordingWriter) WritePoint(p *write.Point) {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	w.points = append(w.points, p)
}

func (w *recordingWriter) Flush() {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	w.flushed++
}

type zeroClock struct{}

func (zeroClock) Monotonic() float64 { return 0 }

func TestSinkRecordsPinChanges(t *testing.T) {
	w := &recordingWriter{}
	s := newSink(w, nil, zerolog.Nop())

	registry := vpin.NewRegistry(zeroClock{}, zerolog.Nop())
	pin, err := registry.NewPin("lane0")
	require.NoError(t, err)
	registry.WatchAll("history", s.Record)
	pin.SetValue(true)

	require.Len(t, w.points, 2, "initial value & change")
	p := w.points[1]
	assert.Equal(t, Measurement, p.Name())
	require.Len(t, p.TagList(), 1)
	assert.Equal(t, "pin", p.TagList()[0].Key)
	assert.Equal(t, "lane0", p.TagList()[0].Value)
	require.Len(t, p.FieldList(), 1)
	assert.Equal(t, "value", p.FieldList()[0].Key)
	assert.Equal(t, int64(1), p.FieldList()[0].Value)
	assert.Equal(t, pin.ChangedAt(), p.Time())
	assert.Equal(t, int64(0), w.points[0].FieldList()[0].Value)

	require.NoError(t, s.Close())
	assert.Equal(t, 1, w.flushed)
}

func TestSinkRunDrainsErrors(t *testing.T) {
	errs := make(chan error)
	s := newSink(&recordingWriter{}, errs, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() { done <- s.Run(ctx) }()

	select {
	case errs <- errors.New("write failed"):
	case <-time.After(time.Second):
		t.Fatal("error not drained")
	}
	cancel()
	assert.NoError(t, <-done)
}
