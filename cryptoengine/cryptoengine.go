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

// Package cryptoengine is the single narrow surface through which every
// other package touches cryptographic primitives. No primitive is
// re-implemented here; the package only wires together vetted
// implementations so the rest of the module never imports crypto/aes,
// crypto/ecdh, or BLAKE3 directly. The one exception is the server's
// certificate fingerprint, which uses crypto/sha256 itself.
package cryptoengine

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/ecdh"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"io"
	"time"

	"golang.org/x/crypto/chacha20poly1305"
	"lukechampine.com/blake3"

	"github.com/sage-x-project/sage/internal/metrics"
)

var (
	// ErrInvalidKey is returned when a key-exchange peer key is the
	// identity point or otherwise rejected by the curve implementation.
	ErrInvalidKey = errors.New("cryptoengine: invalid or low-order key")
	// ErrAuthFailed is returned when an AEAD open fails tag verification.
	ErrAuthFailed = errors.New("cryptoengine: authentication failed")
)

// WireNonceSize is the XChaCha20-Poly1305 nonce size used for on-the-wire
// metadata records (§4.1, §4.3).
const WireNonceSize = chacha20poly1305.NonceSizeX

// AtRestNonceSize is the AES-256-GCM IV size used for at-rest objects (§4.5).
const AtRestNonceSize = 12

// AtRestTagSize is the AES-256-GCM authentication tag size.
const AtRestTagSize = 16

// Hash32 returns the 32-byte BLAKE3 digest of data.
func Hash32(data []byte) [32]byte {
	return blake3.Sum256(data)
}

// StreamingHasher computes a BLAKE3 digest incrementally, used by the
// integrity package to hash upload bytes as they arrive without buffering
// the whole file.
type StreamingHasher struct {
	h *blake3.Hasher
}

// NewStreamingHasher creates an empty streaming BLAKE3 hasher.
func NewStreamingHasher() *StreamingHasher {
	return &StreamingHasher{h: blake3.New(32, nil)}
}

// Write feeds more plaintext bytes into the running digest.
func (s *StreamingHasher) Write(p []byte) (int, error) {
	return s.h.Write(p)
}

// Sum returns the 32-byte digest of everything written so far.
func (s *StreamingHasher) Sum() [32]byte {
	var out [32]byte
	copy(out[:], s.h.Sum(nil))
	return out
}

// ConstantTimeEqual reports whether a and b hold the same bytes, in time
// independent of where they first differ.
func ConstantTimeEqual(a, b []byte) bool {
	return subtle.ConstantTimeCompare(a, b) == 1
}

// RandBytes returns n cryptographically random bytes from the OS CSPRNG.
func RandBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		return nil, fmt.Errorf("cryptoengine: rand_bytes: %w", err)
	}
	return b, nil
}

// WireSeal encrypts aad-authenticated metadata with XChaCha20-Poly1305
// under key, using the given 24-byte nonce. Returns ciphertext and a
// 16-byte tag, the layout the wire records expect.
func WireSeal(key, nonce, aad, plaintext []byte) (ciphertext, tag []byte, err error) {
	start := time.Now()
	defer func() {
		metrics.CryptoOperationDuration.WithLabelValues("wire_seal", "xchacha20poly1305").Observe(time.Since(start).Seconds())
		if err != nil {
			metrics.CryptoErrors.WithLabelValues("wire_seal").Inc()
		}
	}()
	metrics.CryptoOperations.WithLabelValues("wire_seal", "xchacha20poly1305").Inc()

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, nil, fmt.Errorf("cryptoengine: wire aead: %w", err)
	}
	sealed := aead.Seal(nil, nonce, plaintext, aad)
	tagStart := len(sealed) - aead.Overhead()
	return sealed[:tagStart], sealed[tagStart:], nil
}

// WireOpen reverses WireSeal. It returns ErrAuthFailed on any tag mismatch.
func WireOpen(key, nonce, aad, ciphertext, tag []byte) ([]byte, error) {
	start := time.Now()
	var err error
	defer func() {
		metrics.CryptoOperationDuration.WithLabelValues("wire_open", "xchacha20poly1305").Observe(time.Since(start).Seconds())
		if err != nil {
			metrics.CryptoErrors.WithLabelValues("wire_open").Inc()
		}
	}()
	metrics.CryptoOperations.WithLabelValues("wire_open", "xchacha20poly1305").Inc()

	aead, aeadErr := chacha20poly1305.NewX(key)
	if aeadErr != nil {
		err = aeadErr
		return nil, fmt.Errorf("cryptoengine: wire aead: %w", err)
	}
	sealed := append(append([]byte{}, ciphertext...), tag...)
	pt, openErr := aead.Open(nil, nonce, sealed, aad)
	if openErr != nil {
		err = ErrAuthFailed
		return nil, ErrAuthFailed
	}
	return pt, nil
}

// AtRestSeal encrypts a plaintext object under K_file with AES-256-GCM
// and a fresh 12-byte IV supplied by the caller. Returns ciphertext (same
// length as plaintext) and a 16-byte tag, per §4.5.
func AtRestSeal(key, iv, plaintext []byte) (ciphertext, tag []byte, err error) {
	start := time.Now()
	defer func() {
		metrics.CryptoOperationDuration.WithLabelValues("atrest_seal", "aes256gcm").Observe(time.Since(start).Seconds())
		if err != nil {
			metrics.CryptoErrors.WithLabelValues("atrest_seal").Inc()
		}
	}()
	metrics.CryptoOperations.WithLabelValues("atrest_seal", "aes256gcm").Inc()

	aead, err := newGCM(key)
	if err != nil {
		return nil, nil, err
	}
	sealed := aead.Seal(nil, iv, plaintext, nil)
	tagStart := len(sealed) - aead.Overhead()
	return sealed[:tagStart], sealed[tagStart:], nil
}

// AtRestOpen reverses AtRestSeal, returning ErrAuthFailed on tag mismatch.
func AtRestOpen(key, iv, ciphertext, tag []byte) ([]byte, error) {
	start := time.Now()
	var err error
	defer func() {
		metrics.CryptoOperationDuration.WithLabelValues("atrest_open", "aes256gcm").Observe(time.Since(start).Seconds())
		if err != nil {
			metrics.CryptoErrors.WithLabelValues("atrest_open").Inc()
		}
	}()
	metrics.CryptoOperations.WithLabelValues("atrest_open", "aes256gcm").Inc()

	aead, gcmErr := newGCM(key)
	if gcmErr != nil {
		err = gcmErr
		return nil, err
	}
	sealed := append(append([]byte{}, ciphertext...), tag...)
	pt, openErr := aead.Open(nil, iv, sealed, nil)
	if openErr != nil {
		err = ErrAuthFailed
		return nil, ErrAuthFailed
	}
	return pt, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("cryptoengine: at-rest cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("cryptoengine: at-rest gcm: %w", err)
	}
	return aead, nil
}

// KeyExchangeKeyPair is an ephemeral X25519 key pair used once per
// connection for session-key agreement (§4.2, §4.3).
type KeyExchangeKeyPair struct {
	priv *ecdh.PrivateKey
	pub  *ecdh.PublicKey
}

// GenerateKeyExchangeKeyPair generates a fresh ephemeral X25519 key pair.
func GenerateKeyExchangeKeyPair() (*KeyExchangeKeyPair, error) {
	priv, err := ecdh.X25519().GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("cryptoengine: kx_keypair: %w", err)
	}
	return &KeyExchangeKeyPair{priv: priv, pub: priv.PublicKey()}, nil
}

// PublicBytes returns the 32-byte wire representation of the public point.
func (k *KeyExchangeKeyPair) PublicBytes() []byte {
	return k.pub.Bytes()
}

// Agree performs X25519 scalar multiplication against peerPub and rejects
// the identity point or any other low-order point the curve implementation
// refuses, returning ErrInvalidKey.
func (k *KeyExchangeKeyPair) Agree(peerPub []byte) ([]byte, error) {
	start := time.Now()
	var err error
	defer func() {
		metrics.CryptoOperationDuration.WithLabelValues("ecdh", "x25519").Observe(time.Since(start).Seconds())
		if err != nil {
			metrics.CryptoErrors.WithLabelValues("ecdh").Inc()
		}
	}()
	metrics.CryptoOperations.WithLabelValues("ecdh", "x25519").Inc()

	peer, keyErr := ecdh.X25519().NewPublicKey(peerPub)
	if keyErr != nil {
		err = ErrInvalidKey
		return nil, ErrInvalidKey
	}
	shared, agreeErr := k.priv.ECDH(peer)
	if agreeErr != nil {
		err = ErrInvalidKey
		return nil, ErrInvalidKey
	}
	var zero [32]byte
	if subtle.ConstantTimeCompare(shared, zero[:]) == 1 {
		err = ErrInvalidKey
		return nil, ErrInvalidKey
	}
	return shared, nil
}
