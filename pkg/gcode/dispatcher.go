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
	"fmt"
	"sort"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// Handler executes a single command.
type Handler func(cmd *Command) error

// Dispatcher maps command names to handlers.
// Command names & parameter keys are case sensitive.
//
// A Dispatcher is not safe for concurrent use. Run it from the
// goroutine that owns the state its handlers modify.
type Dispatcher struct {
	log      zerolog.Logger
	commands map[string]*entry
}

type entry struct {
	description string
	handler     Handler
	// Set for mux commands only
	muxKey    string
	muxValues map[string]Handler
}

const (
	helpCommand = "HELP"
)

// NewDispatcher creates a dispatcher with only the HELP command registered.
func NewDispatcher(log zerolog.Logger) *Dispatcher {
	d := &Dispatcher{
		log:      log.With().Str("component", "gcode").Logger(),
		commands: make(map[string]*entry),
	}
	d.commands[helpCommand] = &entry{
		description: "Report the list of available commands",
		handler:     d.cmdHelp,
	}
	return d
}

// Register a handler for the command with given name.
func (d *Dispatcher) Register(name string, handler Handler, description string) error {
	if _, found := d.commands[name]; found {
		return errors.Wrapf(DuplicateCommandError, "command '%s'", name)
	}
	d.commands[name] = &entry{
		description: description,
		handler:     handler,
	}
	return nil
}

// RegisterMux registers a handler for the command with given name that is
// only invoked when parameter key has the given value.
// All registrations for the same command must use the same key.
func (d *Dispatcher) RegisterMux(name, key, value string, handler Handler, description string) error {
	e, found := d.commands[name]
	if !found {
		e = &entry{
			description: description,
			muxKey:      key,
			muxValues:   make(map[string]Handler),
		}
		d.commands[name] = e
	} else if e.muxValues == nil {
		return errors.Wrapf(DuplicateCommandError, "command '%s' is not a mux command", name)
	} else if e.muxKey != key {
		return errors.Wrapf(DuplicateCommandError, "mux command '%s' already uses key %s, got %s", name, e.muxKey, key)
	}
	if _, found := e.muxValues[value]; found {
		return errors.Wrapf(DuplicateCommandError, "mux command '%s' %s=%s", name, key, value)
	}
	e.muxValues[value] = handler
	return nil
}

// Commands returns the sorted names of all registered commands.
func (d *Dispatcher) Commands() []string {
	result := make([]string, 0, len(d.commands))
	for name := range d.commands {
		result = append(result, name)
	}
	sort.Strings(result)
	return result
}

// Run parses & executes a single command line.
// Returns the response lines of the command.
func (d *Dispatcher) Run(line string) ([]string, error) {
	cmd, err := ParseLine(line)
	if err != nil {
		return nil, err
	}
	if cmd == nil {
		return nil, nil
	}
	if err := d.execute(cmd); err != nil {
		commandErrorsTotal.WithLabelValues(cmd.Name()).Inc()
		d.log.Debug().Err(err).Str("command", cmd.Raw()).Msg("command failed")
		return cmd.Responses(), err
	}
	return cmd.Responses(), nil
}

// execute the given command
func (d *Dispatcher) execute(cmd *Command) error {
	e, found := d.commands[cmd.Name()]
	if !found {
		return errors.Wrapf(UnknownCommandError, "unknown command: %s", cmd.Name())
	}
	commandsTotal.WithLabelValues(cmd.Name()).Inc()
	handler := e.handler
	if e.muxValues != nil {
		value := cmd.Get(e.muxKey, "")
		h, found := e.muxValues[value]
		if !found {
			return errors.Wrapf(InvalidParameterError, "the value '%s' is not valid for %s", value, e.muxKey)
		}
		handler = h
	}
	return handler(cmd)
}

// cmdHelp reports all commands with their description.
func (d *Dispatcher) cmdHelp(cmd *Command) error {
	cmd.RespondInfo("Available commands:")
	for _, name := range d.Commands() {
		cmd.RespondInfo(fmt.Sprintf("%-20s: %s", name, d.commands[name].description))
	}
	return nil
}
