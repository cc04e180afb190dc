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

package gcode

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Command is a single parsed command line.
type Command struct {
	name      string
	params    map[string]string
	raw       string
	responses []string
}

// ParseLine parses a command line of the form `NAME KEY=VALUE ...`.
// Anything after a ';' is a comment.
// Returns nil, nil for empty lines.
func ParseLine(line string) (*Command, error) {
	raw := strings.TrimSpace(line)
	if idx := strings.IndexByte(raw, ';'); idx >= 0 {
		raw = strings.TrimSpace(raw[:idx])
	}
	if raw == "" {
		return nil, nil
	}
	fields := strings.Fields(raw)
	cmd := &Command{
		name:   fields[0],
		params: make(map[string]string, len(fields)-1),
		raw:    raw,
	}
	for _, f := range fields[1:] {
		key, value, found := strings.Cut(f, "=")
		if !found || key == "" {
			return nil, errors.Wrapf(MalformedCommandError, "malformed parameter '%s' in '%s'", f, raw)
		}
		cmd.params[key] = value
	}
	return cmd, nil
}

// Name returns the name of the command.
func (c *Command) Name() string {
	return c.name
}

// Raw returns the command line (without comment).
func (c *Command) Raw() string {
	return c.raw
}

// Has returns true when the given parameter is present.
func (c *Command) Has(key string) bool {
	_, found := c.params[key]
	return found
}

// Get returns the value of the parameter with given key,
// or the given default when the parameter is missing.
func (c *Command) Get(key, defaultValue string) string {
	if v, found := c.params[key]; found {
		return v
	}
	return defaultValue
}

// GetInt returns the integer value of the parameter with given key,
// or the given default when the parameter is missing.
func (c *Command) GetInt(key string, defaultValue int) (int, error) {
	v, found := c.params[key]
	if !found {
		return defaultValue, nil
	}
	result, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, errors.Wrapf(InvalidParameterError, "unable to parse '%s' as an int for %s", v, key)
	}
	return result, nil
}

// RespondInfo adds a human readable response line.
func (c *Command) RespondInfo(msg string) {
	c.responses = append(c.responses, msg)
}

// Responses returns all response lines added so far.
func (c *Command) Responses() []string {
	return append([]string(nil), c.responses...)
}
