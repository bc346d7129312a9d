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

// Package integrity verifies uploaded file bytes against the hash the
// client committed to in its Command record (§4.4): stream the bytes
// through BLAKE3 as they arrive rather than buffering the whole file, then
// compare in constant time.
package integrity

import (
	"errors"
	"io"

	"github.com/sage-x-project/sage/cryptoengine"
)

// ErrMismatch is returned when the streamed digest does not match the
// digest the client declared up front.
var ErrMismatch = errors.New("integrity: digest mismatch")

// Verifier wraps a streaming BLAKE3 hash and the digest it must match once
// all bytes have passed through.
type Verifier struct {
	hasher   *cryptoengine.StreamingHasher
	expected [32]byte
}

// NewVerifier creates a Verifier that will check incoming bytes against
// expected.
func NewVerifier(expected [32]byte) *Verifier {
	return &Verifier{
		hasher:   cryptoengine.NewStreamingHasher(),
		expected: expected,
	}
}

// Write feeds bytes into the running hash. It never fails; it satisfies
// io.Writer so a Verifier can sit in an io.MultiWriter or io.TeeReader
// alongside the at-rest storage writer.
func (v *Verifier) Write(p []byte) (int, error) {
	return v.hasher.Write(p)
}

// Finish returns nil if the accumulated digest matches the expected
// digest, and ErrMismatch otherwise. The comparison is constant-time.
func (v *Verifier) Finish() error {
	sum := v.hasher.Sum()
	if !cryptoengine.ConstantTimeEqual(sum[:], v.expected[:]) {
		return ErrMismatch
	}
	return nil
}

// VerifyReader drains r through a Verifier and reports the result,
// writing every byte read to dst (typically the at-rest storage writer)
// as it goes.
func VerifyReader(dst io.Writer, r io.Reader, expected [32]byte) error {
	v := NewVerifier(expected)
	mw := io.MultiWriter(dst, v)
	if _, err := io.Copy(mw, r); err != nil {
		return err
	}
	return v.Finish()
}
