// SAGE - Secure Agent Guarantee Engine
// Copyright (C) 2025 SAGE-X-project
//
// This file is part of SAGE.
//
// SAGE is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// SAGE is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with SAGE. If not, see <https://www.gnu.org/licenses/>.

// Package framing turns ad-hoc partial-read loops into a single
// abstraction: read exactly N bytes, write exactly N bytes, both mapping
// early stream closure to ErrTransportClosed so the rest of the module
// never has to reason about short I/O (§4.1).
package framing

import (
	"errors"
	"io"
	"net"
)

// ErrTransportClosed is returned when the underlying stream closes before
// a full record could be read or written.
var ErrTransportClosed = errors.New("framing: transport closed early")

// Conn is the minimal duplex byte stream the framer needs.
type Conn interface {
	io.Reader
	io.Writer
}

// Framer wraps a duplex connection with exact-size read/write primitives.
type Framer struct {
	conn Conn
}

// New wraps conn in a Framer.
func New(conn Conn) *Framer {
	return &Framer{conn: conn}
}

// ReadFull reads exactly n bytes from the connection. A read-deadline
// timeout is returned unchanged (a net.Error whose Timeout() is true) so
// callers can tell an idle connection from a closed one; any other
// failure before n bytes arrive is reported as ErrTransportClosed.
func (f *Framer) ReadFull(n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(f.conn, buf); err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return nil, err
		}
		return nil, ErrTransportClosed
	}
	return buf, nil
}

// WriteAll writes every byte of b to the connection. A short write is
// reported as ErrTransportClosed.
func (f *Framer) WriteAll(b []byte) error {
	written := 0
	for written < len(b) {
		n, err := f.conn.Write(b[written:])
		if err != nil {
			return ErrTransportClosed
		}
		if n == 0 {
			return ErrTransportClosed
		}
		written += n
	}
	return nil
}
