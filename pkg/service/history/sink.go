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
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/rs/zerolog"

	"github.com/printhost/VirtualPins/pkg/config"
	"github.com/printhost/VirtualPins/pkg/vpin"
)

const (
	// Measurement is the name of the measurement pin changes are written to.
	Measurement = "virtual_pin"

	pingTimeout = time.Second * 5
)

// pointWriter is the part of the InfluxDB write API used by the sink.
type pointWriter interface {
	WritePoint(point *write.Point)
	Flush()
}

// Sink writes every pin change to InfluxDB.
// State is never read back.
type Sink struct {
	log    zerolog.Logger
	client influxdb2.Client
	writer pointWriter
	errors <-chan error
}

// New creates a sink that writes to the configured bucket using
// the non-blocking write API.
func New(cfg config.InfluxDBConfig, log zerolog.Logger) *Sink {
	opts := influxdb2.DefaultOptions()
	if cfg.BatchSize > 0 {
		opts.SetBatchSize(cfg.BatchSize)
	}
	if cfg.FlushInterval > 0 {
		opts.SetFlushInterval(uint(cfg.FlushInterval.Milliseconds()))
	}
	client := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token, opts)
	writeAPI := client.WriteAPI(cfg.Org, cfg.Bucket)
	s := newSink(writeAPI, writeAPI.Errors(), log)
	s.client = client
	return s
}

func newSink(writer pointWriter, errors <-chan error, log zerolog.Logger) *Sink {
	return &Sink{
		log:    log.With().Str("component", "history").Logger(),
		writer: writer,
		errors: errors,
	}
}

// Record writes a point for the given pin value.
// Called on the reactor for every pin change.
func (s *Sink) Record(pin *vpin.Pin, value bool) error {
	v := 0
	if value {
		v = 1
	}
	point := write.NewPoint(Measurement,
		map[string]string{
			"pin": pin.Name(),
		},
		map[string]interface{}{
			"value": v,
		},
		pin.ChangedAt())
	s.writer.WritePoint(point)
	pointsWrittenTotal.Inc()
	return nil
}

// Run logs asynchronous write errors until the given context is canceled.
func (s *Sink) Run(ctx context.Context) error {
	if s.client != nil {
		pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
		healthy, err := s.client.Ping(pingCtx)
		cancel()
		if err != nil || !healthy {
			s.log.Warn().Err(err).Msg("InfluxDB not reachable, points are buffered")
		}
	}
	for {
		select {
		case err, ok := <-s.errors:
			if !ok {
				<-ctx.Done()
				return nil
			}
			writeErrorsTotal.Inc()
			s.log.Warn().Err(err).Msg("Failed to write points")
		case <-ctx.Done():
			// Context canceled
			return nil
		}
	}
}

// Close flushes pending points.
func (s *Sink) Close() error {
	s.writer.Flush()
	if s.client != nil {
		s.client.Close()
	}
	return nil
}
