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


package logging

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingWriter struct{}

func (failingWriter) Write(p []byte) (int, error) {
	return 0, errors.New("write failed")
}

func TestMultiWriter(t *testing.T) {
	var a, b bytes.Buffer
	w := NewMultiWriter(&a, failingWriter{}, &b)
	n, err := w.Write([]byte("hello"))
	assert.Equal(t, 5, n)
	assert.Error(t, err)
	assert.Equal(t, "hello", a.String())
	assert.Equal(t, "hello", b.String())
}

type recordingPublisher struct {
	mutex    sync.Mutex
	topics   []string
	payloads []string
}

func (p *recordingPublisher) Publish(topic string, payload []byte) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.topics = append(p.topics, topic)
	p.payloads = append(p.payloads, string(payload))
}

func (p *recordingPublisher) count() int {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return len(p.payloads)
}

func TestMQTTWriter(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w := NewMQTTWriter(ctx)
	pub := &recordingPublisher{}

	log := zerolog.New(w)
	log.Info().Str("pin", "lane0").Msg("first")

	w.SetDestination("vpin/logs", pub)
	w.Enable(true)
	log.Info().Msg("second")

	require.Eventually(t, func() bool { return pub.count() == 2 }, time.Second*3, time.Millisecond*10)
	pub.mutex.Lock()
	defer pub.mutex.Unlock()
	assert.Equal(t, []string{"vpin/logs", "vpin/logs"}, pub.topics)
	assert.Contains(t, pub.payloads[0], `"message":"first"`)
	assert.Contains(t, pub.payloads[0], `"pin":"lane0"`)
	assert.Contains(t, pub.payloads[1], `"message":"second"`)
}

func TestMQTTWriterDropsOldest(t *testing.T) {
	l := &mqttLogger{queue: make(chan []byte, 2)}
	for _, s := range []string{"1", "2", "3"} {
		n, err := l.Write([]byte(s))
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	}
	assert.Equal(t, "2", string(<-l.queue))
	assert.Equal(t, "3", string(<-l.queue))
}
