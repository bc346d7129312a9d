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
	"errors"
	"io"
	"time"

	"github.com/sage-x-project/sage/audit"
	"github.com/sage-x-project/sage/internal/logger"
	"github.com/sage-x-project/sage/internal/metrics"
	"github.com/sage-x-project/sage/pkg/storage"
	"github.com/sage-x-project/sage/protocol/codec"
	"github.com/sage-x-project/sage/session"
)

// handleDownload implements the download plane (§4.9). It returns false
// when the connection must close.
func (c *conn) handleDownload(cmd *codec.CommandRecord) bool {
	meta, err := c.sess.OpenMetadata(&cmd.Metadata)
	if err != nil {
		if errors.Is(err, session.ErrInvalidRecipient) {
			_ = c.sendStatus(codec.StatusPermissionDenied, 0)
			return true
		}
		_ = c.sendStatus(codec.StatusAuthFailed, 0)
		return false
	}

	ctx := context.Background()
	obj, err := c.server.store.FindOne(ctx, meta.Filename)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			_ = c.sendStatus(codec.StatusFileNotFound, 0)
			return true
		}
		c.log.Error("store lookup failed during download", logger.Error(err))
		_ = c.sendStatus(codec.StatusError, 0)
		return false
	}

	if !obj.CanRead(c.fingerprint) {
		_ = c.sendStatus(codec.StatusPermissionDenied, 0)
		return true
	}

	f, err := c.server.files.Read(obj.Filename)
	if err != nil {
		c.log.Error("on-disk object missing for known document", logger.Error(err), logger.String("filename", obj.Filename))
		_ = c.sendStatus(codec.StatusError, 0)
		return false
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		_ = c.sendStatus(codec.StatusError, 0)
		return false
	}
	if stat.Size() != obj.Size {
		c.log.Error("on-disk size disagrees with document", logger.Int("doc_size", int(obj.Size)), logger.Int("disk_size", int(stat.Size())))
		_ = c.sendStatus(codec.StatusError, 0)
		return false
	}

	if cmd.Offset < 0 || cmd.Offset > obj.Size {
		_ = c.sendStatus(codec.StatusInvalidOffset, 0)
		return true
	}
	offset := cmd.Offset

	c.state = StateTransferring
	start := time.Now()

	ciphertext, err := io.ReadAll(f)
	if err != nil {
		c.state = StateAuthenticated
		_ = c.sendStatus(codec.StatusError, 0)
		return false
	}

	plaintext, err := c.server.cipher.Open(obj.IV, ciphertext, obj.Tag)
	if err != nil {
		metrics.IntegrityFailures.WithLabelValues("download").Inc()
		obj.AppendAudit(audit.Download(storage.AuditIntegrityFailure, time.Now().UnixMilli(), c.connID))
		_ = c.server.store.UpdateOne(ctx, obj)
		c.state = StateAuthenticated
		_ = c.sendStatus(codec.StatusIntegrityError, 0)
		return true
	}

	payload := plaintext[offset:]
	if err := c.sendStatus(codec.StatusSuccess, int64(len(payload))); err != nil {
		return false
	}
	if err := c.framer.WriteAll(payload); err != nil {
		return false
	}

	obj.AppendAudit(audit.Download(storage.AuditSuccess, time.Now().UnixMilli(), c.connID))
	_ = c.server.store.UpdateOne(ctx, obj)

	metrics.TransferBytes.WithLabelValues("download").Add(float64(len(payload)))
	metrics.TransferDuration.WithLabelValues("download").Observe(time.Since(start).Seconds())

	c.state = StateAuthenticated
	return true
}
