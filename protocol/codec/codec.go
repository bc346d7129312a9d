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

// Package codec defines the fixed-layout wire records of §4.1 and their
// (de)serialization. All multi-byte integers are big-endian. Variable
// length ciphertext fields (filename, recipient) are length-prefixed with
// a uint16 rather than padded into a fixed buffer — the field widths and
// order are still frozen and documented here, just without the C
// original's fixed-size-buffer padding.
package codec

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/sage-x-project/sage/protocol/framing"
	"github.com/sage-x-project/sage/session"
)

// ErrRecordTooLarge guards against a peer claiming an implausible
// variable-length field size and forcing a huge allocation.
var ErrRecordTooLarge = errors.New("codec: record field exceeds maximum size")

const (
	maxFilenameLen  = 256
	maxRecipientLen = 64
)

// CommandTag identifies the operation a Command record requests.
type CommandTag uint32

const (
	CmdUpload CommandTag = iota
	CmdDownload
	CmdList
	CmdPing
	CmdDisconnect
	CmdConnect
	CmdApprove
	CmdReject
	CmdListPending
	CmdUnknown = CommandTag(0xFFFFFFFF)
)

// StatusTag identifies the outcome carried by a Response record (§7).
type StatusTag uint32

const (
	StatusSuccess StatusTag = iota
	StatusFailure
	StatusFileNotFound
	StatusPermissionDenied
	StatusError
	StatusInvalidOffset
	StatusIntegrityError
	StatusUnknownCommand
	StatusRateLimited
	StatusConnectionLimit
	StatusInvalidKey
	StatusAuthFailed
	StatusWaitingApproval
	StatusApproved
	StatusRejected
	StatusBanned
)

// Flag bits in a Command record's flag byte.
const (
	FlagPublic    uint8 = 1 << 0
	FlagAnonymous uint8 = 1 << 1
)

// CommandRecord is the client→server record of §4.1.
type CommandRecord struct {
	Command  CommandTag
	Metadata session.EncryptedMetadata
	Offset   int64
	Flags    uint8
	FileHash [32]byte
	Nonce    [24]byte
	AuthTag  [16]byte
}

// ResponseRecord is the server→client record of §4.1. PayloadSize is
// nonzero when payload bytes (list results, download bytes) follow.
type ResponseRecord struct {
	Status      StatusTag
	PayloadSize int64
	Nonce       [24]byte
	AuthTag     [16]byte
}

// CommandAAD returns the bytes a Command record's outer AuthTag
// authenticates: the fields carried in the clear (command tag, offset,
// flags, integrity hash) rather than the independently-sealed metadata
// blob (§4.1).
func CommandAAD(c *CommandRecord) []byte {
	buf := make([]byte, 0, 4+8+1+32)
	buf = appendUint32(buf, uint32(c.Command))
	buf = appendInt64(buf, c.Offset)
	buf = append(buf, c.Flags)
	buf = append(buf, c.FileHash[:]...)
	return buf
}

// ResponseAAD returns the bytes a Response record's outer AuthTag
// authenticates: status and payload size.
func ResponseAAD(r *ResponseRecord) []byte {
	buf := make([]byte, 0, 4+8)
	buf = appendUint32(buf, uint32(r.Status))
	buf = appendInt64(buf, r.PayloadSize)
	return buf
}

// WriteCommand serializes and writes a Command record.
func WriteCommand(f *framing.Framer, c *CommandRecord) error {
	buf := make([]byte, 0, 128+len(c.Metadata.FilenameCT)+len(c.Metadata.RecipientCT))
	buf = appendUint32(buf, uint32(c.Command))

	buf = append(buf, c.Metadata.Nonce[:]...)
	buf = appendLenPrefixed(buf, c.Metadata.FilenameCT, maxFilenameLen)
	buf = append(buf, c.Metadata.FilenameTag[:]...)
	buf = append(buf, c.Metadata.SizeCT[:]...)
	buf = append(buf, c.Metadata.SizeTag[:]...)
	buf = appendLenPrefixed(buf, c.Metadata.RecipientCT, maxRecipientLen)
	buf = append(buf, c.Metadata.RecipientTag[:]...)

	buf = appendInt64(buf, c.Offset)
	buf = append(buf, c.Flags)
	buf = append(buf, c.FileHash[:]...)
	buf = append(buf, c.Nonce[:]...)
	buf = append(buf, c.AuthTag[:]...)

	return f.WriteAll(buf)
}

// ReadCommand reads and decodes a Command record.
func ReadCommand(f *framing.Framer) (*CommandRecord, error) {
	c := &CommandRecord{}

	tagBytes, err := f.ReadFull(4)
	if err != nil {
		return nil, err
	}
	c.Command = CommandTag(binary.BigEndian.Uint32(tagBytes))

	nonce, err := f.ReadFull(24)
	if err != nil {
		return nil, err
	}
	copy(c.Metadata.Nonce[:], nonce)

	fnCT, err := readLenPrefixed(f, maxFilenameLen)
	if err != nil {
		return nil, err
	}
	c.Metadata.FilenameCT = fnCT

	fnTag, err := f.ReadFull(16)
	if err != nil {
		return nil, err
	}
	copy(c.Metadata.FilenameTag[:], fnTag)

	sizeCT, err := f.ReadFull(8)
	if err != nil {
		return nil, err
	}
	copy(c.Metadata.SizeCT[:], sizeCT)

	sizeTag, err := f.ReadFull(16)
	if err != nil {
		return nil, err
	}
	copy(c.Metadata.SizeTag[:], sizeTag)

	recCT, err := readLenPrefixed(f, maxRecipientLen)
	if err != nil {
		return nil, err
	}
	c.Metadata.RecipientCT = recCT

	recTag, err := f.ReadFull(16)
	if err != nil {
		return nil, err
	}
	copy(c.Metadata.RecipientTag[:], recTag)

	offsetBytes, err := f.ReadFull(8)
	if err != nil {
		return nil, err
	}
	c.Offset = int64(binary.BigEndian.Uint64(offsetBytes))

	flagByte, err := f.ReadFull(1)
	if err != nil {
		return nil, err
	}
	c.Flags = flagByte[0]

	hash, err := f.ReadFull(32)
	if err != nil {
		return nil, err
	}
	copy(c.FileHash[:], hash)

	pktNonce, err := f.ReadFull(24)
	if err != nil {
		return nil, err
	}
	copy(c.Nonce[:], pktNonce)

	authTag, err := f.ReadFull(16)
	if err != nil {
		return nil, err
	}
	copy(c.AuthTag[:], authTag)

	return c, nil
}

// WriteResponse serializes and writes a Response record.
func WriteResponse(f *framing.Framer, r *ResponseRecord) error {
	buf := make([]byte, 0, 4+8+24+16)
	buf = appendUint32(buf, uint32(r.Status))
	buf = appendInt64(buf, r.PayloadSize)
	buf = append(buf, r.Nonce[:]...)
	buf = append(buf, r.AuthTag[:]...)
	return f.WriteAll(buf)
}

// ReadResponse reads and decodes a Response record.
func ReadResponse(f *framing.Framer) (*ResponseRecord, error) {
	r := &ResponseRecord{}

	statusBytes, err := f.ReadFull(4)
	if err != nil {
		return nil, err
	}
	r.Status = StatusTag(binary.BigEndian.Uint32(statusBytes))

	sizeBytes, err := f.ReadFull(8)
	if err != nil {
		return nil, err
	}
	r.PayloadSize = int64(binary.BigEndian.Uint64(sizeBytes))

	nonce, err := f.ReadFull(24)
	if err != nil {
		return nil, err
	}
	copy(r.Nonce[:], nonce)

	tag, err := f.ReadFull(16)
	if err != nil {
		return nil, err
	}
	copy(r.AuthTag[:], tag)

	return r, nil
}

// KXInit is the client's key-exchange init record.
type KXInit struct {
	PublicPoint [32]byte
	Nonce       [24]byte
}

// WriteKXInit serializes and writes a KXInit record.
func WriteKXInit(f *framing.Framer, k *KXInit) error {
	buf := make([]byte, 0, 56)
	buf = append(buf, k.PublicPoint[:]...)
	buf = append(buf, k.Nonce[:]...)
	return f.WriteAll(buf)
}

// ReadKXInit reads and decodes a KXInit record.
func ReadKXInit(f *framing.Framer) (*KXInit, error) {
	pub, err := f.ReadFull(32)
	if err != nil {
		return nil, err
	}
	nonce, err := f.ReadFull(24)
	if err != nil {
		return nil, err
	}
	k := &KXInit{}
	copy(k.PublicPoint[:], pub)
	copy(k.Nonce[:], nonce)
	return k, nil
}

// KXResponse is the server's key-exchange response record.
type KXResponse struct {
	PublicPoint [32]byte
	Metadata    session.EncryptedMetadata
	Tag         [16]byte
}

// WriteKXResponse serializes and writes a KXResponse record.
func WriteKXResponse(f *framing.Framer, k *KXResponse) error {
	buf := make([]byte, 0, 128)
	buf = append(buf, k.PublicPoint[:]...)
	buf = append(buf, k.Metadata.Nonce[:]...)
	buf = appendLenPrefixed(buf, k.Metadata.FilenameCT, maxFilenameLen)
	buf = append(buf, k.Metadata.FilenameTag[:]...)
	buf = append(buf, k.Tag[:]...)
	return f.WriteAll(buf)
}

// ReadKXResponse reads and decodes a KXResponse record.
func ReadKXResponse(f *framing.Framer) (*KXResponse, error) {
	k := &KXResponse{}

	pub, err := f.ReadFull(32)
	if err != nil {
		return nil, err
	}
	copy(k.PublicPoint[:], pub)

	nonce, err := f.ReadFull(24)
	if err != nil {
		return nil, err
	}
	copy(k.Metadata.Nonce[:], nonce)

	fnCT, err := readLenPrefixed(f, maxFilenameLen)
	if err != nil {
		return nil, err
	}
	k.Metadata.FilenameCT = fnCT

	fnTag, err := f.ReadFull(16)
	if err != nil {
		return nil, err
	}
	copy(k.Metadata.FilenameTag[:], fnTag)

	tag, err := f.ReadFull(16)
	if err != nil {
		return nil, err
	}
	copy(k.Tag[:], tag)

	return k, nil
}

// KXSessionKey is the confirmation record the client sends after
// session-key derivation: a session-key field plus a BLAKE3 hash of the
// session key. The server checks only KeyHash, and the clients in this
// module leave SessionKey zeroed so the raw key never crosses the wire.
type KXSessionKey struct {
	SessionKey [32]byte
	KeyHash    [32]byte
}

// WriteKXSessionKey serializes and writes a KXSessionKey record.
func WriteKXSessionKey(f *framing.Framer, k *KXSessionKey) error {
	buf := make([]byte, 0, 64)
	buf = append(buf, k.SessionKey[:]...)
	buf = append(buf, k.KeyHash[:]...)
	return f.WriteAll(buf)
}

// ReadKXSessionKey reads and decodes a KXSessionKey record.
func ReadKXSessionKey(f *framing.Framer) (*KXSessionKey, error) {
	key, err := f.ReadFull(32)
	if err != nil {
		return nil, err
	}
	hash, err := f.ReadFull(32)
	if err != nil {
		return nil, err
	}
	k := &KXSessionKey{}
	copy(k.SessionKey[:], key)
	copy(k.KeyHash[:], hash)
	return k, nil
}

func appendUint32(buf []byte, v uint32) []byte {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], v)
	return append(buf, tmp[:]...)
}

func appendInt64(buf []byte, v int64) []byte {
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], uint64(v))
	return append(buf, tmp[:]...)
}

func appendLenPrefixed(buf []byte, field []byte, max int) []byte {
	var tmp [2]byte
	binary.BigEndian.PutUint16(tmp[:], uint16(len(field)))
	buf = append(buf, tmp[:]...)
	return append(buf, field...)
}

func readLenPrefixed(f *framing.Framer, max int) ([]byte, error) {
	lenBytes, err := f.ReadFull(2)
	if err != nil {
		return nil, err
	}
	n := int(binary.BigEndian.Uint16(lenBytes))
	if n > max {
		return nil, fmt.Errorf("%w: %d > %d", ErrRecordTooLarge, n, max)
	}
	if n == 0 {
		return nil, nil
	}
	return f.ReadFull(n)
}
