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

package session

import (
	tea "github.com/charmbracelet/bubbletea"
)

const esc = 0x1b

var keySequences = map[tea.KeyType]string{
	tea.KeyUp:       "\x1b[A",
	tea.KeyDown:     "\x1b[B",
	tea.KeyRight:    "\x1b[C",
	tea.KeyLeft:     "\x1b[D",
	tea.KeyHome:     "\x1b[H",
	tea.KeyEnd:      "\x1b[F",
	tea.KeyPgUp:     "\x1b[5~",
	tea.KeyPgDown:   "\x1b[6~",
	tea.KeyInsert:   "\x1b[2~",
	tea.KeyDelete:   "\x1b[3~",
	tea.KeyShiftTab: "\x1b[Z",
	tea.KeyF1:       "\x1bOP",
	tea.KeyF2:       "\x1bOQ",
	tea.KeyF3:       "\x1bOR",
	tea.KeyF4:       "\x1bOS",
	tea.KeyF5:       "\x1b[15~",
	tea.KeyF6:       "\x1b[17~",
	tea.KeyF7:       "\x1b[18~",
	tea.KeyF8:       "\x1b[19~",
	tea.KeyF9:       "\x1b[20~",
	tea.KeyF10:      "\x1b[21~",
	tea.KeyF11:      "\x1b[23~",
	tea.KeyF12:      "\x1b[24~",
}

// KeyBytes translates a host key event into the bytes a terminal would send.
// Unknown keys translate to nil.
func KeyBytes(msg tea.KeyMsg) []byte {
	var body []byte
	switch {
	case msg.Type == tea.KeyRunes:
		body = []byte(string(msg.Runes))
	case msg.Type == tea.KeySpace:
		body = []byte{' '}
	case msg.Type >= 0 && msg.Type <= 31, msg.Type == tea.KeyBackspace:
		// Control keys, Enter, Tab, Esc and Backspace are their own byte.
		body = []byte{byte(msg.Type)}
	default:
		seq, ok := keySequences[msg.Type]
		if !ok {
			return nil
		}
		body = []byte(seq)
	}

	if msg.Alt {
		return append([]byte{esc}, body...)
	}
	return body
}
