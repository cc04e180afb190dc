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
	"fmt"

	"github.com/printhost/VirtualPins/pkg/gcode"
)

const (
	cmdSetVirtualPin       = "SET_VIRTUAL_PIN"
	cmdSetVirtualPinHelp   = "Set the value of a virtual input pin"
	cmdQueryVirtualPin     = "QUERY_VIRTUAL_PIN"
	cmdQueryVirtualPinHelp = "Report the value of a virtual input pin"
)

// RegisterCommands registers the SET_VIRTUAL_PIN & QUERY_VIRTUAL_PIN
// commands for the given pin.
func RegisterCommands(d *gcode.Dispatcher, pin *Pin) error {
	name := pin.Name()
	if err := d.RegisterMux(cmdSetVirtualPin, "PIN", name, func(cmd *gcode.Command) error {
		value, err := cmd.GetInt("VALUE", 1)
		if err != nil {
			return maskAny(err)
		}
		pin.SetValue(value != 0)
		return nil
	}, cmdSetVirtualPinHelp); err != nil {
		return maskAny(err)
	}
	if err := d.RegisterMux(cmdQueryVirtualPin, "PIN", name, func(cmd *gcode.Command) error {
		cmd.RespondInfo(fmt.Sprintf("virtual_pin %s: %d", name, boolToInt(pin.Query())))
		return nil
	}, cmdQueryVirtualPinHelp); err != nil {
		return maskAny(err)
	}
	return nil
}
