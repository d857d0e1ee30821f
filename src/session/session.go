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

// Package session streams one interactive attachment to a task container:
// output into the screen emulator, key input to stdin, TTY resizes and the
// sentinel-file poll that asks for a restart or a grading run.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"gittrainer/src/containerization"
	"gittrainer/src/logging"
	"gittrainer/src/model"
	"gittrainer/src/vt"
)

// Sentinel protocol written by the in-container agent.
const (
	StatusFile    = "/etc/git-trainer/status"
	SignalIdle    = "0"
	SignalRestart = "1"
	SignalSubmit  = "2"
	AckCommand    = "git-trainer task"
)

// Rows and columns taken by the title bar, borders and help line.
const (
	ChromeRows = 4
	ChromeCols = 2
)

var ErrClosed = errors.New("session closed")

type State int32

const (
	Attaching State = iota
	Streaming
	Exited
	RestartRequested
)

func (s State) String() string {
	switch s {
	case Attaching:
		return "attaching"
	case Streaming:
		return "streaming"
	case Exited:
		return "exited"
	case RestartRequested:
		return "restart-requested"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Origin tags a chunk of container output.
type Origin int

const (
	OriginStdin Origin = iota
	OriginStdout
	OriginStderr
	OriginConsole
)

// Containers is what a session needs from the lifecycle controller.
type Containers interface {
	EnsureRunning(ctx context.Context, task model.Task) (string, error)
	ResizeTTY(ctx context.Context, task model.Task, rows, cols int) error
	Attach(ctx context.Context, task model.Task) (*containerization.Attachment, error)
	Exec(ctx context.Context, task model.Task, cmd []string) (containerization.ExecResult, error)
}

// Grader runs the test pipeline for a task and returns the stored attempt.
type Grader interface {
	Run(ctx context.Context, task model.Task) (model.Attempt, error)
}

// Outcome is what the caller gets back once every duty has been joined.
// RestartRequested tells the caller to restart the container.
type Outcome struct {
	State State
	Err   error
}

type Session struct {
	ID string

	task       model.Task
	containers Containers
	grader     Grader
	screen     *vt.Screen
	attachment *containerization.Attachment

	state   atomic.Int32
	closing atomic.Bool
	ended   chan struct{}
	endOnce sync.Once
	errMu   sync.Mutex
	err     error

	inputMu     sync.RWMutex
	input       chan []byte
	inputClosed bool

	inputDone  sync.WaitGroup
	outputDone sync.WaitGroup
	resizes    sync.WaitGroup
	closeOnce  sync.Once

	pollMu      sync.Mutex
	attemptMu   sync.Mutex
	lastAttempt *model.Attempt

	bytesByOrigin [4]atomic.Int64
}

// ChromeAdjust returns the container TTY size for a host terminal size.
func ChromeAdjust(rows, cols int) (int, int) {
	return max(rows-ChromeRows, 1), max(cols-ChromeCols, 1)
}

// Open starts the task container if needed, sizes its TTY to the host
// terminal minus chrome and attaches to it.
func Open(ctx context.Context, containers Containers, grader Grader, task model.Task, rows, cols int) (*Session, error) {
	s := &Session{
		ID:         uuid.NewString(),
		task:       task,
		containers: containers,
		grader:     grader,
		ended:      make(chan struct{}),
		input:      make(chan []byte, 64),
	}
	s.state.Store(int32(Attaching))

	ctx, span := logging.StartSpan(ctx, "session.open",
		attribute.String("session", s.ID), attribute.String("task", task.WorkName))
	defer span.End()

	if _, err := containers.EnsureRunning(ctx, task); err != nil {
		return nil, err
	}

	ttyRows, ttyCols := ChromeAdjust(rows, cols)
	if err := containers.ResizeTTY(ctx, task, ttyRows, ttyCols); err != nil {
		logging.Log(fmt.Sprintf("Session %s: initial resize failed: %v", s.ID, err), slog.LevelWarn)
	}
	s.screen = vt.New(ttyRows, ttyCols)

	attachment, err := containers.Attach(ctx, task)
	if err != nil {
		s.screen.Close()
		return nil, err
	}
	s.attachment = attachment
	s.state.Store(int32(Streaming))

	s.outputDone.Add(1)
	go s.pumpOutput()
	s.inputDone.Add(1)
	go s.pumpInput()

	logging.Increment(ctx, logging.SessionsStarted, attribute.String("task", task.WorkName))
	logging.Log(fmt.Sprintf("Session %s attached to %s", s.ID, task.WorkName), slog.LevelInfo)
	return s, nil
}

func (s *Session) Task() model.Task {
	return s.task
}

func (s *Session) State() State {
	return State(s.state.Load())
}

// Done is closed when the session reaches Exited or RestartRequested.
func (s *Session) Done() <-chan struct{} {
	return s.ended
}

func (s *Session) Err() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

func (s *Session) Screen() *vt.Screen {
	return s.screen
}

func (s *Session) Snapshot() vt.Snapshot {
	return s.screen.Snapshot()
}

// BytesFrom reports how many output bytes arrived with the given origin.
func (s *Session) BytesFrom(origin Origin) int64 {
	return s.bytesByOrigin[origin].Load()
}

// LastAttempt returns the attempt recorded by the most recent grading run.
func (s *Session) LastAttempt() (model.Attempt, bool) {
	s.attemptMu.Lock()
	defer s.attemptMu.Unlock()
	if s.lastAttempt == nil {
		return model.Attempt{}, false
	}
	return *s.lastAttempt, true
}

func (s *Session) end(state State, err error) {
	s.endOnce.Do(func() {
		s.state.Store(int32(state))
		if err != nil {
			s.errMu.Lock()
			s.err = err
			s.errMu.Unlock()
		}
		close(s.ended)
		logging.Log(fmt.Sprintf("Session %s ended: %s", s.ID, state), slog.LevelInfo)
	})
}

type originWriter struct {
	s      *Session
	origin Origin
}

func (w originWriter) Write(p []byte) (int, error) {
	w.s.bytesByOrigin[w.origin].Add(int64(len(p)))
	return w.s.screen.Write(p)
}

func (s *Session) pumpOutput() {
	defer s.outputDone.Done()

	var err error
	if s.attachment.Multiplexed {
		_, err = stdcopy.StdCopy(originWriter{s, OriginStdout}, originWriter{s, OriginStderr}, s.attachment.Output)
	} else {
		_, err = io.Copy(originWriter{s, OriginConsole}, s.attachment.Output)
	}

	if err != nil && !errors.Is(err, io.EOF) && !s.closing.Load() {
		logging.Log(fmt.Sprintf("Session %s: output stream failed: %v", s.ID, err), slog.LevelWarn)
		s.end(Exited, fmt.Errorf("read container output: %w", err))
		return
	}
	s.end(Exited, nil)
}

func (s *Session) pumpInput() {
	defer s.inputDone.Done()

	for chunk := range s.input {
		if _, err := s.attachment.Input.Write(chunk); err != nil {
			if !s.closing.Load() {
				s.end(Exited, fmt.Errorf("write container input: %w", err))
			}
			// Keep draining so senders never block on a dead pump.
			for range s.input {
			}
			return
		}
	}
}

func (s *Session) enqueue(chunk []byte) error {
	s.inputMu.RLock()
	defer s.inputMu.RUnlock()
	if s.inputClosed {
		return ErrClosed
	}
	s.input <- chunk
	return nil
}

// Send queues the bytes for a host key event to the container's stdin.
func (s *Session) Send(msg tea.KeyMsg) error {
	chunk := KeyBytes(msg)
	if len(chunk) == 0 {
		return nil
	}
	return s.enqueue(chunk)
}

// Resize applies a host terminal resize to the screen right away and to the
// container TTY in the background. A failed engine resize is only logged.
func (s *Session) Resize(ctx context.Context, rows, cols int) vt.Snapshot {
	ttyRows, ttyCols := ChromeAdjust(rows, cols)
	snap := s.screen.Resize(ttyRows, ttyCols)

	s.resizes.Add(1)
	go func() {
		defer s.resizes.Done()
		if err := s.containers.ResizeTTY(ctx, s.task, ttyRows, ttyCols); err != nil {
			logging.Log(fmt.Sprintf("Session %s: resize to %dx%d failed: %v", s.ID, ttyRows, ttyCols, err), slog.LevelWarn)
		}
	}()
	return snap
}

// Poll reads the sentinel file once. Reads never overlap. A restart
// request queues "exit" for the shell and ends the session; a grading
// request runs the pipeline before returning.
func (s *Session) Poll(ctx context.Context) (State, error) {
	s.pollMu.Lock()
	defer s.pollMu.Unlock()

	if state := s.State(); state != Streaming {
		return state, nil
	}

	res, err := s.containers.Exec(ctx, s.task, []string{"cat", StatusFile})
	if err != nil {
		logging.Log(fmt.Sprintf("Session %s: sentinel read failed: %v", s.ID, err), slog.LevelDebug)
		return s.State(), nil
	}

	switch strings.TrimSpace(res.Stdout) {
	case SignalRestart:
		if err := s.enqueue([]byte("exit\n")); err != nil {
			logging.Log(fmt.Sprintf("Session %s: could not send exit: %v", s.ID, err), slog.LevelWarn)
		}
		s.end(RestartRequested, nil)
		logging.Increment(ctx, logging.SessionsRestarted, attribute.String("task", s.task.WorkName))
	case SignalSubmit:
		if err := s.grade(ctx); err != nil {
			return s.State(), err
		}
	}
	return s.State(), nil
}

func (s *Session) grade(ctx context.Context) error {
	ctx, span := logging.StartSpan(ctx, "session.grade",
		attribute.String("session", s.ID), attribute.String("task", s.task.WorkName))
	defer span.End()

	ack, err := s.containers.Exec(ctx, s.task, strings.Fields(AckCommand))
	if err != nil {
		logging.Log(fmt.Sprintf("Session %s: acknowledgement failed: %v", s.ID, err), slog.LevelWarn)
	} else if ack.ExitCode != 0 {
		logging.Log(fmt.Sprintf("Session %s: acknowledgement exited with %d", s.ID, ack.ExitCode), slog.LevelWarn)
	}

	attempt, err := s.grader.Run(ctx, s.task)
	if err != nil {
		err = fmt.Errorf("grade %s: %w", s.task.WorkName, err)
		s.end(Exited, err)
		return err
	}

	s.attemptMu.Lock()
	s.lastAttempt = &attempt
	s.attemptMu.Unlock()
	return nil
}

// Close ends the session and joins every duty: the input queue is closed,
// the attach stream released, and in-flight resizes awaited.
func (s *Session) Close() Outcome {
	s.closeOnce.Do(func() {
		s.inputMu.Lock()
		s.inputClosed = true
		close(s.input)
		s.inputMu.Unlock()
		s.inputDone.Wait()

		s.closing.Store(true)
		s.attachment.Close()
		s.outputDone.Wait()
		s.resizes.Wait()

		s.end(Exited, nil)
		s.screen.Close()
	})
	return Outcome{State: s.State(), Err: s.Err()}
}
