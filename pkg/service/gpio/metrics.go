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


package gpio

import (
	"github.com/printhost/VirtualPins/pkg/metrics"
)

const (
	subSystem = "gpio"
)

var (
	// Number of failed input reads per pin
	readErrorsTotal = metrics.MustRegisterCounterVec(subSystem,
		"read_errors_total",
		"Number of failed input reads",
		"pin")
	// Number of input changes copied onto a pin
	changesMirroredTotal = metrics.MustRegisterCounterVec(subSystem,
		"changes_mirrored_total",
		"Number of input changes copied onto a virtual pin",
		"pin")
)
