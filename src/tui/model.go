// Copyright (c) 2026 Khaled Abbas
//
// This source code is licensed under the Business Source License 1.1.
//
// Change Date: 4 years after the first public release of this version.
// Change License: MIT
//
// On the Change Date, this version of the code automatically converts
// to the MIT License. Prior to that date, use is subject to the
// Additional Use Grant. See the LICENSE file for details.

// Package tui draws an attached session and forwards host events to it.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"gittrainer/src/session"
)

const helpLine = "exit: leave the task | git-trainer: check or reset the task"

type tickMsg time.Time

type pollMsg struct {
	state session.State
	err   error
}

type screenMsg struct{}

type endedMsg struct{}

// Model renders the title bar, the session screen and a help line. It owns
// no session logic.
type Model struct {
	ctx      context.Context
	session  *session.Session
	interval time.Duration

	width   int
	height  int
	polling bool
	notice  string
	err     error
}

func New(ctx context.Context, s *session.Session, interval time.Duration) Model {
	return Model{ctx: ctx, session: s, interval: interval}
}

// Err returns the failure that ended the session view, if any.
func (m Model) Err() error {
	return m.err
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.tick(), m.waitScreen(), m.waitEnded())
}

func (m Model) tick() tea.Cmd {
	return tea.Tick(m.interval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m Model) waitScreen() tea.Cmd {
	updates := m.session.Screen().Updates()
	ended := m.session.Done()
	return func() tea.Msg {
		select {
		case <-updates:
			return screenMsg{}
		case <-ended:
			return endedMsg{}
		}
	}
}

func (m Model) waitEnded() tea.Cmd {
	ended := m.session.Done()
	return func() tea.Msg {
		<-ended
		return endedMsg{}
	}
}

func (m Model) poll() tea.Cmd {
	ctx, s := m.ctx, m.session
	return func() tea.Msg {
		state, err := s.Poll(ctx)
		return pollMsg{state: state, err: err}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if err := m.session.Send(msg); err != nil {
			m.err = err
			return m, tea.Quit
		}
		return m, nil

	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.session.Resize(m.ctx, msg.Height, msg.Width)
		return m, nil

	case tickMsg:
		if m.polling {
			return m, m.tick()
		}
		m.polling = true
		return m, m.poll()

	case pollMsg:
		m.polling = false
		if msg.err != nil {
			m.err = msg.err
			return m, tea.Quit
		}
		if attempt, ok := m.session.LastAttempt(); ok {
			verdict := "failed"
			if attempt.Passed() {
				verdict = "passed"
			}
			m.notice = fmt.Sprintf("Attempt %d %s at %s", attempt.ID, verdict, attempt.LocalTime())
		}
		if msg.state != session.Streaming {
			return m, tea.Quit
		}
		return m, m.tick()

	case screenMsg:
		return m, m.waitScreen()

	case endedMsg:
		return m, tea.Quit
	}
	return m, nil
}

func (m Model) View() string {
	snap := m.session.Snapshot()
	width := snap.Cols + session.ChromeCols

	var b strings.Builder
	title := fmt.Sprintf(" %s ", m.session.Task().Name)
	if m.notice != "" {
		title += "| " + m.notice + " "
	}
	b.WriteString(fit(title, width))
	b.WriteByte('\n')

	b.WriteString("┌" + strings.Repeat("─", snap.Cols) + "┐\n")
	for _, line := range snap.Lines {
		b.WriteString("│" + pad(line, snap.Cols) + "│\n")
	}
	b.WriteString("└" + strings.Repeat("─", snap.Cols) + "┘\n")
	b.WriteString(fit(helpLine, width))
	return b.String()
}

func pad(line string, width int) string {
	runes := []rune(line)
	if len(runes) >= width {
		return string(runes[:width])
	}
	return line + strings.Repeat(" ", width-len(runes))
}

func fit(line string, width int) string {
	runes := []rune(line)
	if len(runes) > width {
		return string(runes[:width])
	}
	return line
}
