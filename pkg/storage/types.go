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

package storage

// AuditEvent is one entry of an Object's audit trail (§3): "at" is
// wall-clock milliseconds since epoch, "type" is one of upload/download/
// delete, and "status" is success/failure or a specific error kind.
type AuditEvent struct {
	At           int64  `bson:"at" json:"at"`
	Type         string `bson:"type" json:"type"`
	Status       string `bson:"status" json:"status"`
	ConnectionID string `bson:"connection_id,omitempty" json:"connection_id,omitempty"`
}

// Audit event types and statuses (§4.4, §4.8, §4.9).
const (
	AuditUpload   = "upload"
	AuditDownload = "download"
	AuditDelete   = "delete"

	AuditSuccess          = "success"
	AuditFailure          = "failure"
	AuditIntegrityFailure = "integrity_failure"
)

// Object is the metadata document for one stored file (§3). The document
// is keyed by Filename; the corresponding ciphertext lives on disk at
// <storage-root>/<filename>.
type Object struct {
	Filename             string       `bson:"filename" json:"filename"`
	Size                 int64        `bson:"size" json:"size"`
	Encrypted            bool         `bson:"encrypted" json:"encrypted"`
	IV                   []byte       `bson:"iv" json:"iv"`
	Tag                  []byte       `bson:"tag" json:"tag"`
	Deleted              bool         `bson:"deleted" json:"deleted"`
	OwnerFingerprint     string       `bson:"owner_fingerprint" json:"owner_fingerprint"`
	RecipientFingerprint string       `bson:"recipient_fingerprint,omitempty" json:"recipient_fingerprint,omitempty"`
	Public               bool         `bson:"public" json:"public"`
	UploadedAtMillis     int64        `bson:"uploaded_at" json:"uploaded_at"`
	Audit                []AuditEvent `bson:"audit" json:"audit"`
}

// AppendAudit adds ev to the object's ordered audit trail.
func (o *Object) AppendAudit(ev AuditEvent) {
	o.Audit = append(o.Audit, ev)
}

// CanRead reports whether a peer with the given fingerprint may download
// the object (§4.9 step 3 ACL check).
func (o *Object) CanRead(requesterFingerprint string) bool {
	if o.Public {
		return true
	}
	if requesterFingerprint == o.OwnerFingerprint {
		return true
	}
	return o.RecipientFingerprint != "" && requesterFingerprint == o.RecipientFingerprint
}
