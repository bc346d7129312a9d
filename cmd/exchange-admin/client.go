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

package main

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"

	"github.com/sage-x-project/sage/protocol/codec"
	"github.com/sage-x-project/sage/protocol/framing"
	"github.com/sage-x-project/sage/session"
)

// adminClient is a short-lived connection to exchanged, established for a
// single administrator command and torn down afterward.
type adminClient struct {
	raw    *tls.Conn
	framer *framing.Framer
	sess   *session.Context
}

// dialAdmin opens a mutual-TLS connection to addr and completes the
// key-exchange handshake, the same §4.1/§4.7 sequence an ordinary client
// runs.
func dialAdmin(addr, certFile, keyFile, caFile string) (*adminClient, error) {
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, fmt.Errorf("load admin certificate: %w", err)
	}
	caPEM, err := os.ReadFile(caFile)
	if err != nil {
		return nil, fmt.Errorf("read server CA bundle: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(caPEM) {
		return nil, fmt.Errorf("no certificates parsed from %s", caFile)
	}

	raw, err := tls.Dial("tcp", addr, &tls.Config{
		Certificates: []tls.Certificate{cert},
		RootCAs:      pool,
		MinVersion:   tls.VersionTLS12,
	})
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}

	sess, err := session.NewContext()
	if err != nil {
		raw.Close()
		return nil, err
	}
	c := &adminClient{raw: raw, framer: framing.New(raw), sess: sess}

	if err := c.handshake(); err != nil {
		raw.Close()
		return nil, err
	}
	return c, nil
}

func (c *adminClient) handshake() error {
	init := &codec.KXInit{}
	copy(init.PublicPoint[:], c.sess.LocalPublicKey())
	if err := codec.WriteKXInit(c.framer, init); err != nil {
		return err
	}

	resp, err := codec.ReadKXResponse(c.framer)
	if err != nil {
		return err
	}
	if err := c.sess.AcceptPeer(resp.PublicPoint[:]); err != nil {
		return err
	}

	hash, err := c.sess.SessionKeyHash()
	if err != nil {
		return err
	}
	if err := codec.WriteKXSessionKey(c.framer, &codec.KXSessionKey{KeyHash: hash}); err != nil {
		return err
	}

	final, err := codec.ReadResponse(c.framer)
	if err != nil {
		return err
	}
	if final.Status != codec.StatusSuccess {
		return fmt.Errorf("handshake rejected: status %d", final.Status)
	}
	return nil
}

// decide sends an Approve or Reject command addressing targetFingerprint
// via the sealed metadata's recipient field (§4 supplemented
// administrator interface).
func (c *adminClient) decide(command codec.CommandTag, targetFingerprint string) error {
	meta, err := c.sess.SealMetadata("", 0, targetFingerprint)
	if err != nil {
		return err
	}
	cmd := &codec.CommandRecord{Command: command, Metadata: *meta}
	return c.sendAndCheck(cmd)
}

// listPending sends CmdListPending and returns the newline-separated
// fingerprint list the server returns.
func (c *adminClient) listPending() (string, error) {
	cmd := &codec.CommandRecord{Command: codec.CmdListPending}
	return c.sendAndRead(cmd)
}

func (c *adminClient) sendAndCheck(cmd *codec.CommandRecord) error {
	_, err := c.sendAndRead(cmd)
	return err
}

func (c *adminClient) sendAndRead(cmd *codec.CommandRecord) (string, error) {
	nonce, err := c.sess.NextOutboundNonce()
	if err != nil {
		return "", err
	}
	copy(cmd.Nonce[:], nonce)
	tag, err := c.sess.SealRecordAuth(nonce, codec.CommandAAD(cmd))
	if err != nil {
		return "", err
	}
	cmd.AuthTag = tag
	if err := codec.WriteCommand(c.framer, cmd); err != nil {
		return "", err
	}

	resp, err := codec.ReadResponse(c.framer)
	if err != nil {
		return "", err
	}
	if resp.Status != codec.StatusSuccess {
		return "", fmt.Errorf("server returned status %d", resp.Status)
	}
	if resp.PayloadSize == 0 {
		return "", nil
	}
	payload, err := c.framer.ReadFull(int(resp.PayloadSize))
	if err != nil {
		return "", err
	}
	return string(payload), nil
}

func (c *adminClient) close() {
	c.sess.Zeroize()
	c.raw.Close()
}
