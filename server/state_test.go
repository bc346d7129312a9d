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

package server

import (
	"io"
	"testing"

	"github.com/sage-x-project/sage/internal/logger"
	"github.com/stretchr/testify/assert"
)

func TestStateString(t *testing.T) {
	cases := map[State]string{
		StateHandshakeInit:     "HANDSHAKE_INIT",
		StateHandshakeResponse: "HANDSHAKE_RESPONSE",
		StateSessionKey:        "SESSION_KEY",
		StateAuthenticated:     "AUTHENTICATED",
		StateTransferring:      "TRANSFERRING",
		StateClosed:            "CLOSED",
		State(99):              "UNKNOWN",
	}
	for state, want := range cases {
		assert.Equal(t, want, state.String())
	}
}

func TestNoteMisuseClosesAfterThreshold(t *testing.T) {
	c := &conn{state: StateAuthenticated, log: logger.NewLogger(io.Discard, logger.ErrorLevel)}
	for i := 0; i < maxConsecutiveMisuses-1; i++ {
		c.noteMisuse()
		assert.Equal(t, StateAuthenticated, c.state, "must stay open before threshold")
	}
	c.noteMisuse()
	assert.Equal(t, StateClosed, c.state, "must close at threshold")
}
