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
	"strings"

	"github.com/pkg/errors"
)

const (
	// ChipName is the chip prefix of virtual pin descriptors.
	ChipName = "virtual_pin"
)

// PinParams holds the parsed form of a pin descriptor such as
// `^!virtual_pin:lane0`.
type PinParams struct {
	Chip string
	Pin  string
	// Invert is set by a '!' prefix
	Invert bool
	// Pullup is 1 for a '^' prefix, -1 for a '~' prefix, 0 otherwise
	Pullup int
}

// ParsePin parses a pin descriptor.
// A descriptor without chip prefix refers to a virtual pin.
func ParsePin(desc string) (PinParams, error) {
	result := PinParams{}
	d := strings.TrimSpace(desc)
	if strings.HasPrefix(d, "^") || strings.HasPrefix(d, "~") {
		result.Pullup = 1
		if d[0] == '~' {
			result.Pullup = -1
		}
		d = strings.TrimSpace(d[1:])
	}
	if strings.HasPrefix(d, "!") {
		result.Invert = true
		d = strings.TrimSpace(d[1:])
	}
	if chip, pin, found := strings.Cut(d, ":"); found {
		result.Chip = strings.TrimSpace(chip)
		result.Pin = strings.TrimSpace(pin)
	} else {
		result.Chip = ChipName
		result.Pin = d
	}
	if result.Chip != ChipName {
		return PinParams{}, errors.Wrapf(InvalidPinDescriptorError, "unknown chip '%s' in '%s'", result.Chip, desc)
	}
	if result.Pin == "" {
		return PinParams{}, errors.Wrapf(InvalidPinDescriptorError, "missing pin name in '%s'", desc)
	}
	return result, nil
}

// String returns the descriptor form of the params.
func (pp PinParams) String() string {
	var sb strings.Builder
	switch {
	case pp.Pullup > 0:
		sb.WriteString("^")
	case pp.Pullup < 0:
		sb.WriteString("~")
	}
	if pp.Invert {
		sb.WriteString("!")
	}
	chip := pp.Chip
	if chip == "" {
		chip = ChipName
	}
	sb.WriteString(chip)
	sb.WriteString(":")
	sb.WriteString(pp.Pin)
	return sb.String()
}
