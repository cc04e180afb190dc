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


package ui

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/ssh"
)

// UI serves the pin table over SSH sessions.
type UI struct {
	service Service
	title   string
}

// New creates a UI for the given service.
func New(svc Service, programVersion string) *UI {
	return &UI{
		service: svc,
		title:   "Virtual pins " + programVersion,
	}
}

// Handler creates a model for a single SSH session.
func (u *UI) Handler(s ssh.Session) (tea.Model, []tea.ProgramOption) {
	pty, _, _ := s.Pty()
	r := NewRoot(u.service, u.title, pty.Term, pty.Window.Width, pty.Window.Height)
	go func() {
		<-s.Context().Done()
		r.Close()
	}()
	return r, []tea.ProgramOption{tea.WithAltScreen()}
}
