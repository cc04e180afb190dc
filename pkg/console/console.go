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


package console

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/chzyer/readline"
	"github.com/pkg/errors"
)

// Runner executes command lines.
type Runner interface {
	RunCommand(ctx context.Context, line string) ([]string, error)
}

type lineReader interface {
	Readline() (string, error)
	Close() error
}

// Console is an interactive prompt that runs commands typed by the user.
type Console struct {
	reader lineReader
	stdout io.Writer
}

const (
	prompt = "vpin> "
)

// New creates a console reading from the terminal.
func New() (*Console, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          prompt,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create readline")
	}
	return &Console{
		reader: rl,
		stdout: rl.Stdout(),
	}, nil
}

// Stdout returns a writer that does not interfere with the prompt.
func (c *Console) Stdout() io.Writer {
	return c.stdout
}

// Run reads lines & executes them with the given runner until the input is
// closed, the user exits or the given context is canceled.
func (c *Console) Run(ctx context.Context, runner Runner) error {
	defer c.reader.Close()
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			// Unblocks Readline
			c.reader.Close()
		case <-done:
		}
	}()
	for {
		if ctx.Err() != nil {
			return nil
		}
		line, err := c.reader.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			continue
		} else if err != nil {
			// EOF or closed
			return nil
		}
		if !c.execute(ctx, runner, line) {
			return nil
		}
	}
}

// execute a single line. Returns false when the console must stop.
func (c *Console) execute(ctx context.Context, runner Runner, line string) bool {
	line = strings.TrimSpace(line)
	switch strings.ToLower(line) {
	case "":
		return true
	case "exit", "quit":
		fmt.Fprintln(c.stdout, "Exiting...")
		return false
	}
	responses, err := runner.RunCommand(ctx, line)
	for _, r := range responses {
		fmt.Fprintf(c.stdout, "// %s\n", r)
	}
	if err != nil {
		fmt.Fprintf(c.stdout, "!! %s\n", err)
	} else {
		fmt.Fprintln(c.stdout, "ok")
	}
	return true
}
