package codec

import (
	"bytes"
	"testing"

	"github.com/sage-x-project/sage/protocol/framing"
	"github.com/sage-x-project/sage/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type buf struct {
	bytes.Buffer
}

func newFramer() *framing.Framer {
	return framing.New(&buf{})
}

func TestCommandRecordRoundTrip(t *testing.T) {
	f := newFramer()

	c := &CommandRecord{
		Command: CmdUpload,
		Offset:  1024,
		Flags:   FlagPublic,
	}
	c.Metadata.FilenameCT = []byte("ciphertext-bytes")
	c.Metadata.RecipientCT = []byte("0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcd")
	fillPattern(c.FileHash[:])
	fillPattern(c.Nonce[:])
	fillPattern(c.AuthTag[:])

	require.NoError(t, WriteCommand(f, c))
	got, err := ReadCommand(f)
	require.NoError(t, err)

	assert.Equal(t, c.Command, got.Command)
	assert.Equal(t, c.Offset, got.Offset)
	assert.Equal(t, c.Flags, got.Flags)
	assert.Equal(t, c.Metadata.FilenameCT, got.Metadata.FilenameCT)
	assert.Equal(t, c.Metadata.RecipientCT, got.Metadata.RecipientCT)
	assert.Equal(t, c.FileHash, got.FileHash)
	assert.Equal(t, c.Nonce, got.Nonce)
	assert.Equal(t, c.AuthTag, got.AuthTag)
}

func TestCommandRecordRoundTripWithEmptyRecipient(t *testing.T) {
	f := newFramer()
	c := &CommandRecord{Command: CmdDownload}
	c.Metadata.FilenameCT = []byte("f")

	require.NoError(t, WriteCommand(f, c))
	got, err := ReadCommand(f)
	require.NoError(t, err)
	assert.Empty(t, got.Metadata.RecipientCT)
}

func TestResponseRecordRoundTrip(t *testing.T) {
	f := newFramer()
	r := &ResponseRecord{Status: StatusSuccess, PayloadSize: 4096}
	fillPattern(r.Nonce[:])
	fillPattern(r.AuthTag[:])

	require.NoError(t, WriteResponse(f, r))
	got, err := ReadResponse(f)
	require.NoError(t, err)
	assert.Equal(t, *r, *got)
}

func TestKXRecordsRoundTrip(t *testing.T) {
	f := newFramer()

	init := &KXInit{}
	fillPattern(init.PublicPoint[:])
	fillPattern(init.Nonce[:])
	require.NoError(t, WriteKXInit(f, init))
	gotInit, err := ReadKXInit(f)
	require.NoError(t, err)
	assert.Equal(t, *init, *gotInit)

	resp := &KXResponse{}
	fillPattern(resp.PublicPoint[:])
	resp.Metadata = session.EncryptedMetadata{FilenameCT: []byte("name-ct")}
	require.NoError(t, WriteKXResponse(f, resp))
	gotResp, err := ReadKXResponse(f)
	require.NoError(t, err)
	assert.Equal(t, resp.PublicPoint, gotResp.PublicPoint)
	assert.Equal(t, resp.Metadata.FilenameCT, gotResp.Metadata.FilenameCT)

	sk := &KXSessionKey{}
	fillPattern(sk.SessionKey[:])
	fillPattern(sk.KeyHash[:])
	require.NoError(t, WriteKXSessionKey(f, sk))
	gotSK, err := ReadKXSessionKey(f)
	require.NoError(t, err)
	assert.Equal(t, *sk, *gotSK)
}

func TestReadCommandRejectsOversizedField(t *testing.T) {
	var raw bytes.Buffer
	raw.Write([]byte{0, 0, 0, 0})     // command tag
	raw.Write(make([]byte, 24))       // metadata nonce
	raw.Write([]byte{0xFF, 0xFF})     // filename length: 65535, exceeds max
	f := framing.New(&buf{Buffer: raw})

	_, err := ReadCommand(f)
	assert.ErrorIs(t, err, ErrRecordTooLarge)
}

func TestCommandAADChangesWithFields(t *testing.T) {
	base := &CommandRecord{Command: CmdUpload, Offset: 10, Flags: FlagPublic}
	fillPattern(base.FileHash[:])

	other := *base
	other.Offset = 11

	assert.NotEqual(t, CommandAAD(base), CommandAAD(&other))
}

func TestResponseAADChangesWithFields(t *testing.T) {
	base := &ResponseRecord{Status: StatusSuccess, PayloadSize: 10}
	other := &ResponseRecord{Status: StatusSuccess, PayloadSize: 11}
	assert.NotEqual(t, ResponseAAD(base), ResponseAAD(other))
}

func fillPattern(b []byte) {
	for i := range b {
		b[i] = byte(i + 1)
	}
}
