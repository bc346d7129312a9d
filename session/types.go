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

// Package session implements the per-connection cryptographic context:
// ephemeral key agreement, session-key derivation, metadata sealing, and
// replay protection for command/response records.
package session

import "errors"

// sessionKeyLabel is the fixed HKDF-style label mixed into the session-key
// derivation, per §4.3.
const sessionKeyLabel = "session-key/v1"

var (
	// ErrNotEstablished is returned by operations that require AcceptPeer
	// to have completed successfully first.
	ErrNotEstablished = errors.New("session: not established")
	// ErrReplay is returned when a per-packet nonce has already been seen
	// in the bounded replay window for its direction.
	ErrReplay = errors.New("session: nonce replay detected")
	// ErrInvalidRecipient is returned when a recipient fingerprint fails
	// length or hex validation.
	ErrInvalidRecipient = errors.New("session: invalid recipient fingerprint")
)

// recipientFingerprintLen is the length in hex characters of a SHA-256
// fingerprint (§3).
const recipientFingerprintLen = 64

// Metadata is the decoded form of a command record's encrypted metadata
// blob: filename, plaintext size, and optional recipient fingerprint.
type Metadata struct {
	Filename  string
	Size      int64
	Recipient string // empty means no addressed recipient
}
