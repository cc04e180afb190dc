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


package mqtt

import (
	"github.com/printhost/VirtualPins/pkg/metrics"
)

const (
	subSystem = "mqtt"
)

var (
	// Number of messages published per kind
	messagesPublishedTotal = metrics.MustRegisterCounterVec(subSystem,
		"messages_published_total",
		"Number of MQTT messages published",
		"kind")
	// Number of messages dropped because the outbox was full
	messagesDroppedTotal = metrics.MustRegisterCounter(subSystem,
		"messages_dropped_total",
		"Number of MQTT messages dropped because the outbox was full")
	// Number of received command messages
	commandsReceivedTotal = metrics.MustRegisterCounter(subSystem,
		"commands_received_total",
		"Number of command messages received")
	// Number of received command messages that could not be applied
	commandErrorsTotal = metrics.MustRegisterCounter(subSystem,
		"command_errors_total",
		"Number of command messages that could not be applied")
	// 1 when connected to the broker, 0 otherwise
	connectedGauge = metrics.MustRegisterGauge(subSystem,
		"connected",
		"1 when connected to the MQTT broker")
)
