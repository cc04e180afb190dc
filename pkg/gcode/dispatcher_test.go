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
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLine(t *testing.T) {
	tests := []struct {
		line   string
		name   string
		params map[string]string
	}{
		{"SET_VIRTUAL_PIN PIN=lane0 VALUE=1", "SET_VIRTUAL_PIN", map[string]string{"PIN": "lane0", "VALUE": "1"}},
		{"  QUERY_VIRTUAL_PIN   PIN=x ; trailing comment", "QUERY_VIRTUAL_PIN", map[string]string{"PIN": "x"}},
		{"HELP", "HELP", map[string]string{}},
		{"M117 MSG=", "M117", map[string]string{"MSG": ""}},
	}
	for _, tc := range tests {
		t.Run(tc.line, func(t *testing.T) {
			cmd, err := ParseLine(tc.line)
			require.NoError(t, err)
			require.NotNil(t, cmd)
			assert.Equal(t, tc.name, cmd.Name())
			assert.Equal(t, tc.params, cmd.params)
		})
	}
}

func TestParseLineEmpty(t *testing.T) {
	for _, line := range []string{"", "   ", "; only a comment"} {
		cmd, err := ParseLine(line)
		assert.NoError(t, err)
		assert.Nil(t, cmd)
	}
}

func TestParseLineMalformed(t *testing.T) {
	_, err := ParseLine("SET_VIRTUAL_PIN lane0")
	assert.True(t, IsMalformedCommand(err))

	_, err = ParseLine("SET_VIRTUAL_PIN =1")
	assert.True(t, IsMalformedCommand(err))
}

func TestCommandGetInt(t *testing.T) {
	cmd, err := ParseLine("X A=12 B=abc")
	require.NoError(t, err)

	v, err := cmd.GetInt("A", 0)
	require.NoError(t, err)
	assert.Equal(t, 12, v)

	v, err = cmd.GetInt("MISSING", 7)
	require.NoError(t, err)
	assert.Equal(t, 7, v)

	_, err = cmd.GetInt("B", 0)
	require.Error(t, err)
	assert.True(t, IsInvalidParameter(err))
	assert.Contains(t, err.Error(), "B")
}

func TestDispatcherRegisterAndRun(t *testing.T) {
	d := NewDispatcher(zerolog.Nop())
	var got string
	require.NoError(t, d.Register("ECHO", func(cmd *Command) error {
		got = cmd.Get("MSG", "")
		cmd.RespondInfo("echo: " + got)
		return nil
	}, "Echo a message"))

	responses, err := d.Run("ECHO MSG=hello")
	require.NoError(t, err)
	assert.Equal(t, "hello", got)
	assert.Equal(t, []string{"echo: hello"}, responses)

	err = d.Register("ECHO", func(*Command) error { return nil }, "again")
	assert.True(t, IsDuplicateCommand(err))
}

func TestDispatcherCaseSensitive(t *testing.T) {
	d := NewDispatcher(zerolog.Nop())
	require.NoError(t, d.Register("ECHO", func(*Command) error { return nil }, ""))

	_, err := d.Run("echo")
	assert.True(t, IsUnknownCommand(err))
}

func TestDispatcherMux(t *testing.T) {
	d := NewDispatcher(zerolog.Nop())
	var called []string
	for _, name := range []string{"a", "b"} {
		name := name
		require.NoError(t, d.RegisterMux("SET_X", "PIN", name, func(*Command) error {
			called = append(called, name)
			return nil
		}, "Set x"))
	}

	_, err := d.Run("SET_X PIN=b")
	require.NoError(t, err)
	_, err = d.Run("SET_X PIN=a EXTRA=1")
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a"}, called)

	_, err = d.Run("SET_X PIN=c")
	require.Error(t, err)
	assert.True(t, IsInvalidParameter(err))

	_, err = d.Run("SET_X")
	assert.True(t, IsInvalidParameter(err))

	// Same value twice
	err = d.RegisterMux("SET_X", "PIN", "a", func(*Command) error { return nil }, "")
	assert.True(t, IsDuplicateCommand(err))
	// Different key
	err = d.RegisterMux("SET_X", "NAME", "z", func(*Command) error { return nil }, "")
	assert.True(t, IsDuplicateCommand(err))
	// Mux over plain command
	err = d.RegisterMux("HELP", "PIN", "z", func(*Command) error { return nil }, "")
	assert.True(t, IsDuplicateCommand(err))
}

func TestDispatcherHelp(t *testing.T) {
	d := NewDispatcher(zerolog.Nop())
	require.NoError(t, d.Register("ECHO", func(*Command) error { return nil }, "Echo a message"))

	responses, err := d.Run("HELP")
	require.NoError(t, err)
	require.Len(t, responses, 3)
	assert.Equal(t, "Available commands:", responses[0])
	assert.Contains(t, responses[1], "ECHO")
	assert.Contains(t, responses[1], "Echo a message")
	assert.Contains(t, responses[2], "HELP")
	assert.Equal(t, []string{"ECHO", "HELP"}, d.Commands())
}
