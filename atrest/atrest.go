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

// Package atrest holds the single long-lived at-rest file key K_file
// (§4.5) and the AES-256-GCM sealing it performs, plus the storage writer
// that persists ciphertext atomically: temp file, fsync, link into place.
package atrest

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/sage-x-project/sage/cryptoengine"
)

// ErrPermissionDenied is returned when a caller tries to overwrite an
// existing object — uploads of the same name race and the second loses.
var ErrPermissionDenied = errors.New("atrest: object already exists")

const (
	dirMode  = 0o755
	fileMode = 0o644
)

// Cipher holds K_file, generated once at server startup and never
// persisted or logged. Go has no portable mlock, so Zero best-effort
// overwrites the key bytes at shutdown; it is not a guarantee against a
// determined local attacker with memory access, a limitation the original
// spec's "never leaves memory" intent cannot be fully honored in a
// garbage-collected runtime.
type Cipher struct {
	key []byte
}

// NewCipher generates a fresh random K_file.
func NewCipher() (*Cipher, error) {
	key, err := cryptoengine.RandBytes(32)
	if err != nil {
		return nil, fmt.Errorf("atrest: generate key: %w", err)
	}
	return &Cipher{key: key}, nil
}

// Seal encrypts plaintext under K_file with a fresh random 12-byte IV,
// returning the IV, ciphertext, and 16-byte tag to be stored in the
// object's metadata document (§4.5).
func (c *Cipher) Seal(plaintext []byte) (iv, ciphertext, tag []byte, err error) {
	iv, err = cryptoengine.RandBytes(cryptoengine.AtRestNonceSize)
	if err != nil {
		return nil, nil, nil, err
	}
	ciphertext, tag, err = cryptoengine.AtRestSeal(c.key, iv, plaintext)
	if err != nil {
		return nil, nil, nil, err
	}
	return iv, ciphertext, tag, nil
}

// Open reverses Seal. It returns cryptoengine.ErrAuthFailed on tag
// mismatch, which callers surface as IntegrityError (§7).
func (c *Cipher) Open(iv, ciphertext, tag []byte) ([]byte, error) {
	return cryptoengine.AtRestOpen(c.key, iv, ciphertext, tag)
}

// Zero overwrites K_file's bytes. Call once at shutdown.
func (c *Cipher) Zero() {
	for i := range c.key {
		c.key[i] = 0
	}
}

// Store persists ciphertext under a storage root via temp-file + fsync +
// hard link into place (§4.5), rejecting a pre-existing object as
// ErrPermissionDenied.
type Store struct {
	root string
}

// NewStore ensures root exists with mode 0755 and returns a Store rooted
// there.
func NewStore(root string) (*Store, error) {
	if err := os.MkdirAll(root, dirMode); err != nil {
		return nil, fmt.Errorf("atrest: ensure storage root: %w", err)
	}
	return &Store{root: root}, nil
}

// Path returns the on-disk path for the given object name. Callers must
// have already validated name against path traversal (§4.8 step 2).
func (s *Store) Path(name string) string {
	return filepath.Join(s.root, name)
}

// Write atomically persists ciphertext to name, failing
// ErrPermissionDenied if an object with that name already exists.
//
// The publish step uses os.Link rather than a stat-then-rename: Link fails
// atomically with EEXIST if finalPath is already occupied, so two
// connections racing to write the same name can never both believe they
// won. os.Rename has no such guarantee — it silently replaces an existing
// destination — which would let a losing connection's upload overwrite (or,
// combined with a caller's failure-path Remove, delete) the winner's
// already-committed object.
func (s *Store) Write(name string, ciphertext io.Reader) error {
	finalPath := s.Path(name)

	tmp, err := os.CreateTemp(s.root, ".upload-*")
	if err != nil {
		return fmt.Errorf("atrest: create temp: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if err := tmp.Chmod(fileMode); err != nil {
		tmp.Close()
		return fmt.Errorf("atrest: chmod temp: %w", err)
	}
	if _, err := io.Copy(tmp, ciphertext); err != nil {
		tmp.Close()
		return fmt.Errorf("atrest: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("atrest: fsync temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("atrest: close temp: %w", err)
	}

	if err := os.Link(tmpPath, finalPath); err != nil {
		if os.IsExist(err) {
			return ErrPermissionDenied
		}
		return fmt.Errorf("atrest: link into place: %w", err)
	}
	return nil
}

// Read opens the stored ciphertext for name.
func (s *Store) Read(name string) (*os.File, error) {
	return os.Open(s.Path(name))
}

// Remove deletes the stored ciphertext for name, used when the metadata
// insert for an upload fails after its ciphertext has already landed.
func (s *Store) Remove(name string) error {
	return os.Remove(s.Path(name))
}
