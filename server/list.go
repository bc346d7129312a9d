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
	"context"
	"fmt"
	"strings"

	"github.com/sage-x-project/sage/internal/logger"
	"github.com/sage-x-project/sage/pkg/storage"
	"github.com/sage-x-project/sage/protocol/codec"
)

// handleList implements the list plane (§4.10): every non-deleted object
// this connection's identity may read, one tab-delimited "name\tsize\n"
// line per object (Open Question (c)). An empty result is a Success
// response with payload_size 0.
func (c *conn) handleList(cmd *codec.CommandRecord) bool {
	var lines strings.Builder
	err := c.server.store.Iter(context.Background(), func(obj *storage.Object) error {
		if !obj.CanRead(c.fingerprint) {
			return nil
		}
		fmt.Fprintf(&lines, "%s\t%d\n", obj.Filename, obj.Size)
		return nil
	})
	if err != nil {
		c.log.Error("store iteration failed during list", logger.Error(err))
		_ = c.sendStatus(codec.StatusError, 0)
		return false
	}

	payload := []byte(lines.String())
	if err := c.sendStatus(codec.StatusSuccess, int64(len(payload))); err != nil {
		return false
	}
	if len(payload) == 0 {
		return true
	}
	return c.framer.WriteAll(payload) == nil
}
