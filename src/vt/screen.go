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

// Package vt keeps the terminal emulator state for an attached session.
// One goroutine owns the emulator; writers, resizes and readers talk to it
// over channels and readers only ever see copied snapshots.
package vt

import (
	"errors"
	"strings"
	"sync"

	"github.com/hinshun/vt10x"
)

var ErrClosed = errors.New("screen closed")

// Snapshot is an immutable copy of the visible screen.
type Snapshot struct {
	Rows          int
	Cols          int
	Lines         []string
	CursorRow     int
	CursorCol     int
	CursorVisible bool
}

func (s Snapshot) String() string {
	return strings.Join(s.Lines, "\n")
}

type opKind int

const (
	opWrite opKind = iota
	opResize
	opSnapshot
)

type op struct {
	kind  opKind
	data  []byte
	rows  int
	cols  int
	reply chan Snapshot
}

type Screen struct {
	ops     chan op
	updates chan struct{}
	quit    chan struct{}
	done    chan struct{}
	once    sync.Once

	// final is written by the owner before done is closed.
	final Snapshot
}

func New(rows, cols int) *Screen {
	rows, cols = max(rows, 1), max(cols, 1)
	s := &Screen{
		ops:     make(chan op, 256),
		updates: make(chan struct{}, 1),
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go s.run(vt10x.New(vt10x.WithSize(cols, rows)))
	return s
}

func (s *Screen) run(term vt10x.Terminal) {
	defer close(s.done)
	for {
		select {
		case <-s.quit:
			s.final = capture(term)
			return
		case o := <-s.ops:
			switch o.kind {
			case opWrite:
				term.Write(o.data)
				s.notify()
			case opResize:
				term.Resize(o.cols, o.rows)
				o.reply <- capture(term)
				s.notify()
			case opSnapshot:
				o.reply <- capture(term)
			}
		}
	}
}

func (s *Screen) notify() {
	select {
	case s.updates <- struct{}{}:
	default:
	}
}

// Write feeds output bytes to the emulator. Writes are applied in the order
// they are made.
func (s *Screen) Write(p []byte) (int, error) {
	select {
	case <-s.quit:
		return 0, ErrClosed
	default:
	}
	data := make([]byte, len(p))
	copy(data, p)
	select {
	case <-s.quit:
		return 0, ErrClosed
	case s.ops <- op{kind: opWrite, data: data}:
		return len(p), nil
	}
}

// Resize changes the emulator size and returns once it has been applied.
func (s *Screen) Resize(rows, cols int) Snapshot {
	return s.request(op{kind: opResize, rows: max(rows, 1), cols: max(cols, 1)})
}

func (s *Screen) Snapshot() Snapshot {
	return s.request(op{kind: opSnapshot})
}

func (s *Screen) request(o op) Snapshot {
	o.reply = make(chan Snapshot, 1)
	select {
	case <-s.done:
		return s.final
	default:
	}
	select {
	case <-s.quit:
		<-s.done
		return s.final
	case s.ops <- o:
	}
	select {
	case snap := <-o.reply:
		return snap
	case <-s.done:
		return s.final
	}
}

// Updates signals, coalesced, that the screen changed since the last receive.
func (s *Screen) Updates() <-chan struct{} {
	return s.updates
}

// Close stops the owner goroutine. Later snapshots return the final state.
func (s *Screen) Close() {
	s.once.Do(func() { close(s.quit) })
	<-s.done
}

func capture(term vt10x.Terminal) Snapshot {
	term.Lock()
	defer term.Unlock()

	cols, rows := term.Size()
	cursor := term.Cursor()
	snap := Snapshot{
		Rows:          rows,
		Cols:          cols,
		Lines:         make([]string, rows),
		CursorRow:     cursor.Y,
		CursorCol:     cursor.X,
		CursorVisible: term.CursorVisible(),
	}

	line := make([]rune, cols)
	for y := 0; y < rows; y++ {
		for x := 0; x < cols; x++ {
			ch := term.Cell(x, y).Char
			if ch == 0 {
				ch = ' '
			}
			line[x] = ch
		}
		snap.Lines[y] = strings.TrimRight(string(line), " ")
	}
	return snap
}
