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

package session

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/sage-x-project/sage/cryptoengine"
	"github.com/sage-x-project/sage/internal/metrics"
)

// EncryptedMetadata is the wire form of a command record's metadata blob
// (§4.1, §4.3): one random 24-byte nonce shared by three independently
// sealed fields.
type EncryptedMetadata struct {
	Nonce        [cryptoengine.WireNonceSize]byte
	FilenameCT   []byte
	FilenameTag  [16]byte
	SizeCT       [8]byte
	SizeTag      [16]byte
	RecipientCT  []byte
	RecipientTag [16]byte
}

// Context holds the per-connection ephemeral key pair, the peer's public
// key once received, the derived session key, and the bounded nonce
// replay windows for each direction (§3, §4.3).
type Context struct {
	local       *cryptoengine.KeyExchangeKeyPair
	peerPublic  []byte
	sessionKey  []byte
	established bool

	inbound  *ReplayWindow
	outbound *ReplayWindow
}

// NewContext creates a session context and generates the local ephemeral
// key pair. established is false until AcceptPeer succeeds.
func NewContext() (*Context, error) {
	kp, err := cryptoengine.GenerateKeyExchangeKeyPair()
	if err != nil {
		return nil, fmt.Errorf("session: init: %w", err)
	}
	return &Context{
		local:    kp,
		inbound:  NewReplayWindow(1024),
		outbound: NewReplayWindow(1024),
	}, nil
}

// LocalPublicKey returns the bytes to place in the outgoing key-exchange
// record.
func (c *Context) LocalPublicKey() []byte {
	return c.local.PublicBytes()
}

// AcceptPeer stores the peer's ephemeral public key, performs the X25519
// agreement, and derives the 32-byte session key by hashing the shared
// secret together with the fixed label "session-key/v1" (§4.3). It fails
// with cryptoengine.ErrInvalidKey if the peer key is the identity point or
// any other low-order point rejected by the curve.
func (c *Context) AcceptPeer(peerPublic []byte) error {
	start := time.Now()
	shared, err := c.local.Agree(peerPublic)
	if err != nil {
		metrics.SessionsCreated.WithLabelValues("failure").Inc()
		return err
	}
	defer zero(shared)

	labelled := make([]byte, 0, len(shared)+len(sessionKeyLabel))
	labelled = append(labelled, shared...)
	labelled = append(labelled, []byte(sessionKeyLabel)...)
	digest := cryptoengine.Hash32(labelled)

	c.peerPublic = append([]byte(nil), peerPublic...)
	c.sessionKey = append([]byte(nil), digest[:]...)
	c.established = true

	metrics.SessionsCreated.WithLabelValues("success").Inc()
	metrics.SessionsActive.Inc()
	metrics.SessionDuration.WithLabelValues("create").Observe(time.Since(start).Seconds())
	return nil
}

// Established reports whether AcceptPeer has completed successfully.
func (c *Context) Established() bool {
	return c.established
}

// SessionKeyHash returns BLAKE3(session_key). The client sends it to the
// server in the key-exchange Session-key record, and the server compares
// it with its own, so agreement is confirmed without exposing the raw key
// on the wire.
func (c *Context) SessionKeyHash() ([32]byte, error) {
	if !c.established {
		return [32]byte{}, ErrNotEstablished
	}
	return cryptoengine.Hash32(c.sessionKey), nil
}

// SessionKeyHex returns the session key hex-encoded, the form used to key
// ban-list lookups (§4.6). Callers must not log this value.
func (c *Context) SessionKeyHex() (string, error) {
	if !c.established {
		return "", ErrNotEstablished
	}
	return hex.EncodeToString(c.sessionKey), nil
}

// SealMetadata encrypts filename, size, and recipient independently under
// the session key with a single fresh random nonce (§4.3). An empty
// recipient encodes as an empty ciphertext and a zero tag.
func (c *Context) SealMetadata(filename string, size int64, recipient string) (*EncryptedMetadata, error) {
	if !c.established {
		return nil, ErrNotEstablished
	}
	nonce, err := cryptoengine.RandBytes(cryptoengine.WireNonceSize)
	if err != nil {
		return nil, err
	}

	out := &EncryptedMetadata{}
	copy(out.Nonce[:], nonce)

	fnCT, fnTag, err := cryptoengine.WireSeal(c.sessionKey, nonce, []byte("filename"), []byte(filename))
	if err != nil {
		return nil, err
	}
	out.FilenameCT = fnCT
	copy(out.FilenameTag[:], fnTag)

	var sizeBuf [8]byte
	binary.BigEndian.PutUint64(sizeBuf[:], uint64(size))
	sizeCT, sizeTag, err := cryptoengine.WireSeal(c.sessionKey, nonce, []byte("size"), sizeBuf[:])
	if err != nil {
		return nil, err
	}
	copy(out.SizeCT[:], sizeCT)
	copy(out.SizeTag[:], sizeTag)

	if recipient != "" {
		recCT, recTag, err := cryptoengine.WireSeal(c.sessionKey, nonce, []byte("recipient"), []byte(recipient))
		if err != nil {
			return nil, err
		}
		out.RecipientCT = recCT
		copy(out.RecipientTag[:], recTag)
	}

	metrics.SessionMessageSize.WithLabelValues("outbound").Observe(float64(len(out.FilenameCT) + len(out.RecipientCT) + 8))
	return out, nil
}

// OpenMetadata reverses SealMetadata. It fails with
// cryptoengine.ErrAuthFailed on any tag mismatch, and with
// ErrInvalidRecipient if a non-empty recipient fails length or hex
// validation.
func (c *Context) OpenMetadata(enc *EncryptedMetadata) (Metadata, error) {
	if !c.established {
		return Metadata{}, ErrNotEstablished
	}
	nonce := enc.Nonce[:]

	fn, err := cryptoengine.WireOpen(c.sessionKey, nonce, []byte("filename"), enc.FilenameCT, enc.FilenameTag[:])
	if err != nil {
		return Metadata{}, err
	}

	sizeBuf, err := cryptoengine.WireOpen(c.sessionKey, nonce, []byte("size"), enc.SizeCT[:], enc.SizeTag[:])
	if err != nil {
		return Metadata{}, err
	}
	if len(sizeBuf) != 8 {
		return Metadata{}, fmt.Errorf("session: malformed size field")
	}
	size := int64(binary.BigEndian.Uint64(sizeBuf))

	var recipient string
	if len(enc.RecipientCT) > 0 {
		rec, err := cryptoengine.WireOpen(c.sessionKey, nonce, []byte("recipient"), enc.RecipientCT, enc.RecipientTag[:])
		if err != nil {
			return Metadata{}, err
		}
		if !isValidFingerprint(rec) {
			return Metadata{}, ErrInvalidRecipient
		}
		recipient = string(rec)
	}

	metrics.SessionMessageSize.WithLabelValues("inbound").Observe(float64(len(enc.FilenameCT) + len(enc.RecipientCT) + 8))
	return Metadata{Filename: string(fn), Size: size, Recipient: recipient}, nil
}

// SealRecordAuth authenticates aad (a record's unencrypted fields, e.g. a
// Command record's tag/offset/flags/hash) under the session key and
// nonce, using an AEAD seal of an empty plaintext purely for its tag
// (§4.1's per-record auth tag).
func (c *Context) SealRecordAuth(nonce, aad []byte) ([16]byte, error) {
	var out [16]byte
	if !c.established {
		return out, ErrNotEstablished
	}
	_, tag, err := cryptoengine.WireSeal(c.sessionKey, nonce, aad, nil)
	if err != nil {
		return out, err
	}
	copy(out[:], tag)
	return out, nil
}

// VerifyRecordAuth is the inverse of SealRecordAuth, failing with
// cryptoengine.ErrAuthFailed if tag does not authenticate aad.
func (c *Context) VerifyRecordAuth(nonce, aad, tag []byte) error {
	if !c.established {
		return ErrNotEstablished
	}
	_, err := cryptoengine.WireOpen(c.sessionKey, nonce, aad, nil, tag)
	return err
}

// CheckInboundNonce records and validates a nonce on a record received
// from the peer, failing ErrReplay on reuse within the bounded window.
func (c *Context) CheckInboundNonce(nonce []byte) error {
	if !c.inbound.Observe(nonce) {
		metrics.NonceValidations.WithLabelValues("invalid").Inc()
		metrics.ReplayAttacksDetected.Inc()
		return ErrReplay
	}
	metrics.NonceValidations.WithLabelValues("valid").Inc()
	return nil
}

// NextOutboundNonce returns a fresh random nonce for a record this side
// is about to send and records it in the outbound window.
func (c *Context) NextOutboundNonce() ([]byte, error) {
	nonce, err := cryptoengine.RandBytes(cryptoengine.WireNonceSize)
	if err != nil {
		return nil, err
	}
	c.outbound.Observe(nonce)
	return nonce, nil
}

// Zeroize erases the session key and shared key material from memory.
// Callers must invoke this before releasing a connection record (§3
// invariant 4).
func (c *Context) Zeroize() {
	if c.established {
		metrics.SessionsActive.Dec()
		metrics.SessionsClosed.Inc()
	}
	zero(c.sessionKey)
	zero(c.peerPublic)
	c.established = false
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

func isValidFingerprint(b []byte) bool {
	if len(b) != recipientFingerprintLen {
		return false
	}
	for _, c := range b {
		switch {
		case c >= '0' && c <= '9':
		case c >= 'a' && c <= 'f':
		default:
			return false
		}
	}
	return true
}
