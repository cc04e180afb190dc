// Copyright 2023 Ewout Prangsma
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
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	humanize "github.com/dustin/go-humanize"

	"github.com/printhost/VirtualPins/pkg/service"
)

// Service is the part of the virtual pin service used by the UI.
type Service interface {
	PinStatuses(ctx context.Context) ([]service.PinStatus, error)
	TogglePin(ctx context.Context, name string) (bool, error)
	Subscribe() (<-chan service.PinEvent, context.CancelFunc)
}

type Root struct {
	service Service
	events  <-chan service.PinEvent
	cancel  context.CancelFunc
	title   string
	term    string
	width   int
	height  int

	pins        []service.PinStatus
	table       table.Model
	lastErr     error
	refreshedAt time.Time
}

var _ tea.Model = Root{}

const (
	refreshInterval = time.Second * 2
	requestTimeout  = time.Second * 5
	headerHeight    = 3
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	helpStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

// NewRoot creates the root model, subscribed to pin events of the given service.
func NewRoot(svc Service, title, term string, width, height int) Root {
	events, cancel := svc.Subscribe()
	t := table.New(
		table.WithColumns([]table.Column{
			{Title: "#", Width: 3},
			{Title: "Pin", Width: 24},
			{Title: "Value", Width: 5},
			{Title: "Changed", Width: 20},
		}),
		table.WithFocused(true),
	)
	styles := table.DefaultStyles()
	styles.Header = styles.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderBottom(true).
		Bold(true)
	styles.Selected = styles.Selected.
		Foreground(lipgloss.Color("229")).
		Background(lipgloss.Color("57"))
	t.SetStyles(styles)
	r := Root{
		service: svc,
		events:  events,
		cancel:  cancel,
		title:   title,
		term:    term,
		table:   t,
	}
	return r.resize(width, height)
}

// Init is the first function that will be called.
func (r Root) Init() tea.Cmd {
	return tea.Batch(r.loadPins(), waitForEvent(r.events), doTick())
}

// Update is called when a message is received.
func (r Root) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case pinsMsg:
		r.lastErr = msg.err
		if msg.err == nil {
			r.pins = msg.pins
			r.refreshedAt = time.Now()
			r.table.SetRows(r.rows())
		}
		return r, nil
	case eventMsg:
		return r, tea.Batch(r.loadPins(), waitForEvent(r.events))
	case tickMsg:
		// Refresh relative times
		r.table.SetRows(r.rows())
		return r, doTick()
	case tea.WindowSizeMsg:
		return r.resize(msg.Width, msg.Height), nil
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			r.Close()
			return r, tea.Quit
		case " ", "space", "enter":
			if row := r.table.SelectedRow(); len(row) > 1 {
				return r, r.togglePin(row[1])
			}
			return r, nil
		case "r":
			return r, r.loadPins()
		}
	}
	var cmd tea.Cmd
	r.table, cmd = r.table.Update(msg)
	return r, cmd
}

// View renders the program's UI.
func (r Root) View() string {
	header := titleStyle.Render(r.title)
	if !r.refreshedAt.IsZero() {
		header += helpStyle.Render(fmt.Sprintf("  %d pins, refreshed %s", len(r.pins), humanize.Time(r.refreshedAt)))
	}
	status := ""
	if r.lastErr != nil {
		status = errorStyle.Render(r.lastErr.Error())
	}
	return lipgloss.JoinVertical(lipgloss.Left,
		header,
		status,
		r.table.View(),
		helpStyle.Render("space - Toggle pin   r - Refresh   q - Disconnect"),
	) + "\n"
}

// Close the event subscription.
func (r Root) Close() {
	if r.cancel != nil {
		r.cancel()
	}
}

func (r Root) resize(width, height int) Root {
	r.width = width
	r.height = height
	if h := height - headerHeight - 2; h > 0 {
		r.table.SetHeight(h)
	}
	return r
}

func (r Root) rows() []table.Row {
	rows := make([]table.Row, 0, len(r.pins))
	for _, p := range r.pins {
		changed := "never"
		if !p.ChangedAt.IsZero() {
			changed = humanize.Time(p.ChangedAt)
		}
		rows = append(rows, table.Row{
			strconv.Itoa(p.Index),
			p.Name,
			strconv.Itoa(p.Value),
			changed,
		})
	}
	return rows
}

type pinsMsg struct {
	pins []service.PinStatus
	err  error
}

type eventMsg service.PinEvent

type tickMsg time.Time

func (r Root) loadPins() tea.Cmd {
	svc := r.service
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		pins, err := svc.PinStatuses(ctx)
		return pinsMsg{pins: pins, err: err}
	}
}

func (r Root) togglePin(name string) tea.Cmd {
	svc := r.service
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		if _, err := svc.TogglePin(ctx, name); err != nil {
			return pinsMsg{err: err}
		}
		pins, err := svc.PinStatuses(ctx)
		return pinsMsg{pins: pins, err: err}
	}
}

// waitForEvent returns nil when the subscription is closed.
func waitForEvent(events <-chan service.PinEvent) tea.Cmd {
	return func() tea.Msg {
		e, ok := <-events
		if !ok {
			return nil
		}
		return eventMsg(e)
	}
}

func doTick() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}
