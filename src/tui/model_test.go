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

package tui

import (
	"context"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gittrainer/src/containerization"
	"gittrainer/src/model"
	"gittrainer/src/session"
)

type stubContainers struct {
	mu       sync.Mutex
	out      *io.PipeReader
	stdin    strings.Builder
	sentinel string
}

func (c *stubContainers) EnsureRunning(context.Context, model.Task) (string, error) { return "id", nil }

func (c *stubContainers) ResizeTTY(context.Context, model.Task, int, int) error { return nil }

func (c *stubContainers) Attach(context.Context, model.Task) (*containerization.Attachment, error) {
	return containerization.NewAttachment(c.out, writerFunc(func(p []byte) (int, error) {
		c.mu.Lock()
		defer c.mu.Unlock()
		return c.stdin.Write(p)
	}), false, func() { c.out.Close() }), nil
}

func (c *stubContainers) Exec(context.Context, model.Task, []string) (containerization.ExecResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return containerization.ExecResult{Stdout: c.sentinel}, nil
}

type writerFunc func(p []byte) (int, error)

func (f writerFunc) Write(p []byte) (int, error) { return f(p) }

type noGrader struct{}

func (noGrader) Run(context.Context, model.Task) (model.Attempt, error) { return model.Attempt{}, nil }

func openSession(t *testing.T, sentinel string) (*session.Session, *stubContainers) {
	t.Helper()
	r, _ := io.Pipe()
	containers := &stubContainers{out: r, sentinel: sentinel}
	s, err := session.Open(context.Background(), containers, noGrader{}, model.Task{Name: "Hello, world!", WorkName: "hello-world"}, 10, 30)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s, containers
}

func TestViewDrawsChromeAroundScreen(t *testing.T) {
	s, _ := openSession(t, "0")
	m := New(context.Background(), s, time.Millisecond)

	lines := strings.Split(m.View(), "\n")
	require.Len(t, lines, 10)
	assert.Contains(t, lines[0], "Hello, world!")
	assert.Equal(t, "┌"+strings.Repeat("─", 28)+"┐", lines[1])
	assert.Equal(t, "│"+strings.Repeat(" ", 28)+"│", lines[2])
	assert.Equal(t, fit(helpLine, 30), lines[9])
}

func TestWindowSizeResizesSession(t *testing.T) {
	s, _ := openSession(t, "0")
	m := New(context.Background(), s, time.Millisecond)

	updated, _ := m.Update(tea.WindowSizeMsg{Width: 50, Height: 20})
	assert.Equal(t, 16, s.Snapshot().Rows)
	assert.Equal(t, 48, s.Snapshot().Cols)
	assert.Equal(t, 50, updated.(Model).width)
}

func TestPollRestartQuits(t *testing.T) {
	s, _ := openSession(t, "1")
	m := New(context.Background(), s, time.Millisecond)

	updated, cmd := m.Update(tickMsg(time.Now()))
	require.NotNil(t, cmd)
	assert.True(t, updated.(Model).polling)

	msg := cmd()
	require.IsType(t, pollMsg{}, msg)
	assert.Equal(t, session.RestartRequested, msg.(pollMsg).state)

	_, cmd = updated.Update(msg)
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}

func TestKeysAreForwarded(t *testing.T) {
	s, containers := openSession(t, "0")
	m := New(context.Background(), s, time.Millisecond)

	m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	s.Close()

	containers.mu.Lock()
	defer containers.mu.Unlock()
	assert.Equal(t, "q", containers.stdin.String())
}
