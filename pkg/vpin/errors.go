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

import "github.com/pkg/errors"

var (
	DuplicatePinError         = errors.New("duplicate pin")
	IsDuplicatePin            = isErrorFunc(DuplicatePinError)
	PinNotFoundError          = errors.New("pin not found")
	IsPinNotFound             = isErrorFunc(PinNotFoundError)
	UnsupportedPinTypeError   = errors.New("unsupported pin type")
	IsUnsupportedPinType      = isErrorFunc(UnsupportedPinTypeError)
	GroupTooLargeError        = errors.New("button group too large")
	IsGroupTooLarge           = isErrorFunc(GroupTooLargeError)
	InvalidPinDescriptorError = errors.New("invalid pin descriptor")
	IsInvalidPinDescriptor    = isErrorFunc(InvalidPinDescriptorError)

	maskAny = errors.WithStack
)

func isErrorFunc(typeOfError error) func(err error) bool {
	return func(err error) bool {
		return err == typeOfError || errors.Cause(err) == typeOfError
	}
}
