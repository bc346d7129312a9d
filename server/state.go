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

// Package server implements the per-connection state machine (§4.7), the
// command dispatcher, and the upload/download/list data planes (§4.8,
// §4.9, §4.10). One connection is one goroutine running a sequential
// read-dispatch-write loop; Go's scheduler plays the role the original
// design gave to a single-process reactor, so ordering within a
// connection falls out of the loop being straight-line code rather than
// needing an explicit event queue.
package server

// State is a connection's position in the handshake/transfer state
// machine. States advance strictly monotonically except that
// Authenticated is re-entered after each Transferring episode completes.
type State int

const (
	StateHandshakeInit State = iota
	StateHandshakeResponse
	StateSessionKey
	StateAuthenticated
	StateTransferring
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateHandshakeInit:
		return "HANDSHAKE_INIT"
	case StateHandshakeResponse:
		return "HANDSHAKE_RESPONSE"
	case StateSessionKey:
		return "SESSION_KEY"
	case StateAuthenticated:
		return "AUTHENTICATED"
	case StateTransferring:
		return "TRANSFERRING"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// maxConsecutiveMisuses is the number of ignored-and-drained
// wrong-state/unknown records tolerated before a connection is closed
// (§4.7).
const maxConsecutiveMisuses = 3
