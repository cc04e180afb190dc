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


package vpin

import (
	"github.com/printhost/VirtualPins/pkg/metrics"
)

const (
	subSystem = "pin"
)

var (
	// Current value of each pin (0|1)
	pinValueGauge = metrics.MustRegisterGaugeVec(subSystem,
		"value",
		"Current value of the pin",
		"pin")
	// Number of effective value changes per pin
	pinChangesTotal = metrics.MustRegisterCounterVec(subSystem,
		"changes_total",
		"Number of effective value changes of the pin",
		"pin")
	// Number of watcher invocations that failed
	watcherErrorsTotal = metrics.MustRegisterCounterVec(subSystem,
		"watcher_errors_total",
		"Number of watcher invocations that failed",
		"pin")
	// Number of button messages delivered
	buttonMessagesTotal = metrics.MustRegisterCounter(subSystem,
		"button_messages_total",
		"Number of button state messages delivered")
	// Number of button handler invocations that failed
	buttonHandlerErrorsTotal = metrics.MustRegisterCounter(subSystem,
		"button_handler_errors_total",
		"Number of button state handler invocations that failed")
	// Number of config callbacks that failed
	configCallbackErrorsTotal = metrics.MustRegisterCounter(subSystem,
		"config_callback_errors_total",
		"Number of config callbacks that failed")
)
