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

// Package audit builds the audit trail events appended to an Object's
// document on every upload, download, and delete (§3, §4.4, §4.8, §4.9).
// Each event additionally carries a connection_id so multiple sessions
// from the same fingerprint are distinguishable in the trail, a detail
// the distilled protocol left implicit but the admin panel's per-client
// tracking relies on.
package audit

import (
	"github.com/google/uuid"

	"github.com/sage-x-project/sage/pkg/storage"
)

// NewConnectionID mints a fresh correlation id for one connection's
// lifetime, attached to every audit event it produces.
func NewConnectionID() string {
	return uuid.NewString()
}

// Event builds an audit event with the given type/status, stamped with
// nowMillis (wall-clock milliseconds since epoch) and connectionID.
func Event(eventType, status string, nowMillis int64, connectionID string) storage.AuditEvent {
	return storage.AuditEvent{
		At:           nowMillis,
		Type:         eventType,
		Status:       status,
		ConnectionID: connectionID,
	}
}

// Upload builds an upload audit event.
func Upload(status string, nowMillis int64, connectionID string) storage.AuditEvent {
	return Event(storage.AuditUpload, status, nowMillis, connectionID)
}

// Download builds a download audit event.
func Download(status string, nowMillis int64, connectionID string) storage.AuditEvent {
	return Event(storage.AuditDownload, status, nowMillis, connectionID)
}

// Delete builds a delete audit event.
func Delete(status string, nowMillis int64, connectionID string) storage.AuditEvent {
	return Event(storage.AuditDelete, status, nowMillis, connectionID)
}
