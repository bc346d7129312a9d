package framing

import (
	"io"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadFullAndWriteAllRoundTrip(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	sf := New(server)
	cf := New(client)

	payload := []byte("exchange-protocol-record")
	done := make(chan error, 1)
	go func() {
		done <- sf.WriteAll(payload)
	}()

	got, err := cf.ReadFull(len(payload))
	require.NoError(t, err)
	require.NoError(t, <-done)
	assert.Equal(t, payload, got)
}

func TestReadFullReportsTransportClosedOnEarlyEOF(t *testing.T) {
	server, client := net.Pipe()
	cf := New(client)

	go func() {
		server.Write([]byte("ab"))
		server.Close()
	}()

	_, err := cf.ReadFull(8)
	assert.ErrorIs(t, err, ErrTransportClosed)
}

func TestWriteAllReportsTransportClosedAfterClose(t *testing.T) {
	server, client := net.Pipe()
	client.Close()
	server.Close()

	sf := New(server)
	err := sf.WriteAll([]byte("x"))
	assert.ErrorIs(t, err, ErrTransportClosed)
}

type shortWriteConn struct {
	io.Reader
}

func (shortWriteConn) Write(b []byte) (int, error) {
	return 0, nil
}

func TestWriteAllDetectsZeroProgress(t *testing.T) {
	f := New(shortWriteConn{})
	err := f.WriteAll([]byte("stall"))
	assert.ErrorIs(t, err, ErrTransportClosed)
}
