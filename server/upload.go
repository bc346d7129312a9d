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
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/sage-x-project/sage/audit"
	"github.com/sage-x-project/sage/integrity"
	"github.com/sage-x-project/sage/internal/logger"
	"github.com/sage-x-project/sage/internal/metrics"
	"github.com/sage-x-project/sage/pkg/storage"
	"github.com/sage-x-project/sage/protocol/codec"
	"github.com/sage-x-project/sage/session"
)

const (
	uploadChunkSize = 4096
	maxUploadSize   = 1 << 30 // 1 GiB (§4.8 step 3)
)

// handleUpload implements the upload plane (§4.8). It returns false when
// the connection must close.
func (c *conn) handleUpload(cmd *codec.CommandRecord) bool {
	meta, err := c.sess.OpenMetadata(&cmd.Metadata)
	if err != nil {
		if errors.Is(err, session.ErrInvalidRecipient) {
			_ = c.sendStatus(codec.StatusPermissionDenied, 0)
			return true
		}
		_ = c.sendStatus(codec.StatusAuthFailed, 0)
		return false
	}

	if strings.Contains(meta.Filename, "..") || strings.Contains(meta.Filename, "/") {
		_ = c.sendStatus(codec.StatusPermissionDenied, 0)
		return true
	}
	if meta.Size <= 0 || meta.Size > maxUploadSize {
		_ = c.sendStatus(codec.StatusPermissionDenied, 0)
		return true
	}

	ctx := context.Background()
	if _, err := c.server.store.FindOne(ctx, meta.Filename); err == nil {
		_ = c.sendStatus(codec.StatusPermissionDenied, 0)
		return true
	} else if !errors.Is(err, storage.ErrNotFound) {
		c.log.Error("store lookup failed during upload", logger.Error(err))
		_ = c.sendStatus(codec.StatusError, 0)
		return false
	}

	_ = c.sendStatus(codec.StatusSuccess, 0)
	c.state = StateTransferring
	start := time.Now()

	var plaintext bytes.Buffer
	verifier := integrity.NewVerifier(cmd.FileHash)
	dst := io.MultiWriter(&plaintext, verifier)

	buf := make([]byte, uploadChunkSize)
	remaining := meta.Size
	c.raw.SetReadDeadline(time.Time{})
	for remaining > 0 {
		n := int64(uploadChunkSize)
		if n > remaining {
			n = remaining
		}
		read, err := io.ReadFull(c.raw, buf[:n])
		if err != nil {
			c.log.Warn("connection closed mid-upload", logger.String("filename", meta.Filename))
			return false
		}
		if _, err := dst.Write(buf[:read]); err != nil {
			c.log.Error("failed buffering upload bytes", logger.Error(err))
			c.state = StateAuthenticated
			_ = c.sendStatus(codec.StatusError, 0)
			return false
		}
		remaining -= int64(read)
	}
	c.raw.SetReadDeadline(time.Now().Add(c.server.cfg.IdleTimeout))

	if err := verifier.Finish(); err != nil {
		metrics.IntegrityFailures.WithLabelValues("upload").Inc()
		c.recordUploadFailure(ctx, meta.Filename, storage.AuditIntegrityFailure)
		c.state = StateAuthenticated
		_ = c.sendStatus(codec.StatusIntegrityError, 0)
		return true
	}

	iv, ciphertext, tag, err := c.server.cipher.Seal(plaintext.Bytes())
	if err != nil {
		c.log.Error("at-rest seal failed", logger.Error(err))
		c.state = StateAuthenticated
		_ = c.sendStatus(codec.StatusError, 0)
		return false
	}

	if err := c.server.files.Write(meta.Filename, bytes.NewReader(ciphertext)); err != nil {
		c.state = StateAuthenticated
		_ = c.sendStatus(codec.StatusPermissionDenied, 0)
		return true
	}

	obj := &storage.Object{
		Filename:             meta.Filename,
		Size:                 meta.Size,
		Encrypted:            true,
		IV:                   iv,
		Tag:                  tag,
		OwnerFingerprint:     c.fingerprint,
		RecipientFingerprint: meta.Recipient,
		Public:               cmd.Flags&codec.FlagPublic != 0,
		UploadedAtMillis:     time.Now().UnixMilli(),
	}
	obj.AppendAudit(audit.Upload(storage.AuditSuccess, time.Now().UnixMilli(), c.connID))

	if err := c.server.store.Insert(ctx, obj); err != nil {
		_ = c.server.files.Remove(meta.Filename)
		c.state = StateAuthenticated
		_ = c.sendStatus(codec.StatusPermissionDenied, 0)
		return true
	}

	metrics.TransferBytes.WithLabelValues("upload").Add(float64(meta.Size))
	metrics.TransferDuration.WithLabelValues("upload").Observe(time.Since(start).Seconds())

	c.state = StateAuthenticated
	_ = c.sendStatus(codec.StatusSuccess, 0)
	return true
}

// recordUploadFailure inserts a soft-deleted tombstone document carrying
// only the failure audit event, since an upload that never completed has
// no real document to attach the event to (§4.4). The soft-deleted
// filename can still be reused by a later successful upload.
func (c *conn) recordUploadFailure(ctx context.Context, filename, status string) {
	obj := &storage.Object{
		Filename:         filename,
		Deleted:          true,
		OwnerFingerprint: c.fingerprint,
		UploadedAtMillis: time.Now().UnixMilli(),
	}
	obj.AppendAudit(audit.Upload(status, time.Now().UnixMilli(), c.connID))
	if err := c.server.store.Insert(ctx, obj); err != nil {
		c.log.Warn("failed to record upload failure audit tombstone", logger.Error(err))
	}
}
