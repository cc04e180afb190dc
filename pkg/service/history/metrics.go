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
	"github.com/printhost/VirtualPins/pkg/metrics"
)

const (
	subSystem = "history"
)

var (
	// Number of points handed to the InfluxDB writer
	pointsWrittenTotal = metrics.MustRegisterCounter(subSystem,
		"points_written_total",
		"Number of points handed to the InfluxDB writer")
	// Number of asynchronous write failures
	writeErrorsTotal = metrics.MustRegisterCounter(subSystem,
		"write_errors_total",
		"Number of asynchronous InfluxDB write failures")
)
