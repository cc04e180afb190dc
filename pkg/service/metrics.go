//    Copyright 2021 Ewout Prangsma
//
//    Licensed under the Apache License, Version 2.0 (the "License");
//    you may not use this file except in compliance with the License.
//    You may obtain a copy of the License at
//
//        http://www.apache.org/licenses/LICENSE-2.0
//
//    Unless required by applicable law or agreed to in writing, software
//    distributed under the License is distributed on an "AS IS" BASIS,
//    WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
//    See the License for the specific language governing permissions and
//    limitations under the License.

package service

import (
	"github.com/printhost/VirtualPins/pkg/metrics"
)

const (
	subSystem = "service"
)

var (
	// Number of configured pins
	pinsConfiguredTotal = metrics.MustRegisterGauge(subSystem,
		"pins_configured",
		"Number of configured virtual pins")
	// Total number of SetPin & TogglePin calls
	setPinRequestsTotal = metrics.MustRegisterCounter(subSystem,
		"set_pin_requests_total",
		"Total number of SetPin & TogglePin calls")
	// Total number of RunCommand calls
	commandRequestsTotal = metrics.MustRegisterCounter(subSystem,
		"command_requests_total",
		"Total number of RunCommand calls")
	// Total number of pin events dropped because a subscriber was too slow
	eventsDroppedTotal = metrics.MustRegisterCounter(subSystem,
		"events_dropped_total",
		"Total number of pin events dropped for slow subscribers")
)
