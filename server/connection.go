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

package server

import (
	"crypto/sha256"
	"crypto/tls"
	"encoding/hex"
	"errors"
	"net"
	"strings"
	"time"

	"github.com/sage-x-project/sage/audit"
	"github.com/sage-x-project/sage/cryptoengine"
	"github.com/sage-x-project/sage/internal/logger"
	"github.com/sage-x-project/sage/internal/metrics"
	"github.com/sage-x-project/sage/protocol/codec"
	"github.com/sage-x-project/sage/protocol/framing"
	"github.com/sage-x-project/sage/session"
)

// errNoClientCert is an internal sentinel; a connection lacking a client
// certificate cannot be identified and is closed without a response.
var errNoClientCert = errors.New("server: no client certificate presented")

// handshakeBanner is the plaintext sealed into the KXResponse record's
// metadata blob as a protocol-version confirmation once the session key
// is derived. It carries no secret; its purpose is only to give the
// metadata-sealing machinery a well-formed field to exercise at this step.
const handshakeBanner = "sage-exchange/v1"

// conn holds one connection's state-machine position and collaborators.
// It is not shared across goroutines: one goroutine owns a conn for its
// entire lifetime.
type conn struct {
	server *Server
	log    logger.Logger

	raw    net.Conn
	framer *framing.Framer
	sess   *session.Context

	remote      string
	fingerprint string
	connID      string

	state   State
	misuses int
}

// handle runs one connection end to end: admission, handshake, dispatch
// loop, teardown. It never returns an error; all failures are logged and
// result in the connection being closed.
func (s *Server) handle(raw net.Conn) {
	remote := raw.RemoteAddr().String()
	host, _, err := net.SplitHostPort(remote)
	if err != nil {
		host = remote
	}

	if !s.connLimiter.TryAcquire(host) {
		metrics.ConnectionsRejected.WithLabelValues("connection_limit").Inc()
		raw.Close()
		return
	}
	defer s.connLimiter.Release(host)

	metrics.ConnectionsActive.Inc()
	defer metrics.ConnectionsActive.Dec()

	fingerprint, err := clientFingerprint(raw)
	if err != nil {
		s.log.Warn("rejecting connection without client certificate", logger.String("remote", remote))
		raw.Close()
		return
	}

	sess, err := session.NewContext()
	if err != nil {
		s.log.Error("failed to initialize session context", logger.Error(err))
		raw.Close()
		return
	}

	c := &conn{
		server:      s,
		log:         s.log.WithFields(logger.String("remote", remote), logger.String("fingerprint", fingerprint)),
		raw:         raw,
		framer:      framing.New(raw),
		sess:        sess,
		remote:      host,
		fingerprint: fingerprint,
		connID:      audit.NewConnectionID(),
		state:       StateHandshakeInit,
	}
	defer func() {
		c.sess.Zeroize()
		raw.Close()
	}()

	if !c.runHandshake() {
		return
	}
	c.dispatchLoop()
}

// clientFingerprint extracts the SHA-256 fingerprint of the TLS peer's
// leaf certificate, the identity used throughout admission control and
// object ownership (§3, §6).
func clientFingerprint(raw net.Conn) (string, error) {
	tlsConn, ok := raw.(*tls.Conn)
	if !ok {
		return "", errNoClientCert
	}
	state := tlsConn.ConnectionState()
	if len(state.PeerCertificates) == 0 {
		return "", errNoClientCert
	}
	sum := sha256.Sum256(state.PeerCertificates[0].Raw)
	return hex.EncodeToString(sum[:]), nil
}

// runHandshake drives HANDSHAKE_INIT through AUTHENTICATED (§4.7). It
// returns false if the connection should be torn down.
func (c *conn) runHandshake() bool {
	metrics.HandshakesInitiated.WithLabelValues("server").Inc()
	fail := func(reason string) bool {
		metrics.HandshakesFailed.WithLabelValues(reason).Inc()
		metrics.HandshakesCompleted.WithLabelValues("failure").Inc()
		return false
	}

	stageStart := time.Now()
	c.raw.SetReadDeadline(time.Now().Add(c.server.cfg.IdleTimeout))

	init, err := codec.ReadKXInit(c.framer)
	if err != nil {
		return fail("timeout")
	}

	if err := c.sess.AcceptPeer(init.PublicPoint[:]); err != nil {
		c.sendBareStatus(codec.StatusInvalidKey)
		c.log.Warn("key exchange failed", logger.Error(err))
		return fail("invalid")
	}
	c.state = StateHandshakeResponse
	metrics.HandshakeDuration.WithLabelValues("init").Observe(time.Since(stageStart).Seconds())

	stageStart = time.Now()
	resp, err := c.buildKXResponse()
	if err != nil {
		c.log.Error("failed to build key-exchange response", logger.Error(err))
		return fail("internal")
	}
	if err := codec.WriteKXResponse(c.framer, resp); err != nil {
		return fail("network")
	}
	c.state = StateSessionKey
	metrics.HandshakeDuration.WithLabelValues("process").Observe(time.Since(stageStart).Seconds())

	stageStart = time.Now()
	confirm, err := codec.ReadKXSessionKey(c.framer)
	if err != nil {
		return fail("timeout")
	}

	ourHash, err := c.sess.SessionKeyHash()
	if err != nil {
		c.log.Error("session key not established after key exchange", logger.Error(err))
		return fail("internal")
	}
	if !cryptoengine.ConstantTimeEqual(ourHash[:], confirm.KeyHash[:]) {
		c.sendBareStatus(codec.StatusAuthFailed)
		c.log.Warn("session-key confirmation mismatch")
		return fail("invalid")
	}

	sessionKeyHex, err := c.sess.SessionKeyHex()
	if err != nil {
		return fail("internal")
	}
	if reason, banned := c.server.bans.IsBanned(sessionKeyHex); banned {
		c.sendBanned(reason)
		return fail("banned")
	}

	c.state = StateAuthenticated
	c.sendBareStatus(codec.StatusSuccess)
	metrics.HandshakeDuration.WithLabelValues("finalize").Observe(time.Since(stageStart).Seconds())
	metrics.HandshakesCompleted.WithLabelValues("success").Inc()
	return true
}

// buildKXResponse seals the handshake banner under the now-established
// session key and binds the exchange with a BLAKE3 tag (truncated to 16
// bytes) over the server's ephemeral public point and the BLAKE3 hash of
// the derived key, distinct in purpose from the later session-key
// confirmation record.
func (c *conn) buildKXResponse() (*codec.KXResponse, error) {
	meta, err := c.sess.SealMetadata(handshakeBanner, 0, "")
	if err != nil {
		return nil, err
	}

	keyHash, err := c.sess.SessionKeyHash()
	if err != nil {
		return nil, err
	}
	binding := append([]byte{}, c.sess.LocalPublicKey()...)
	binding = append(binding, keyHash[:]...)
	tag := cryptoengine.Hash32(binding)

	resp := &codec.KXResponse{Metadata: *meta}
	copy(resp.PublicPoint[:], c.sess.LocalPublicKey())
	copy(resp.Tag[:], tag[:16])
	return resp, nil
}

// sendBareStatus writes a Response record carrying only a status, with
// zeroed nonce/tag/payload — used for handshake-phase failures that occur
// before a session key (and therefore an AEAD-protected channel) exists.
func (c *conn) sendBareStatus(status codec.StatusTag) {
	_ = codec.WriteResponse(c.framer, &codec.ResponseRecord{Status: status})
}

// sendStatus writes a Response record authenticated under the session key
// once it is established: a fresh outbound nonce and a tag over the
// record's outer fields (§4.1), so a tampered status or payload size is
// detectable by the peer. Before the session key exists it falls back to
// sendBareStatus.
func (c *conn) sendStatus(status codec.StatusTag, payloadSize int64) error {
	if !c.sess.Established() {
		c.sendBareStatus(status)
		return nil
	}
	resp := &codec.ResponseRecord{Status: status, PayloadSize: payloadSize}
	nonce, err := c.sess.NextOutboundNonce()
	if err != nil {
		return err
	}
	copy(resp.Nonce[:], nonce)
	tag, err := c.sess.SealRecordAuth(nonce, codec.ResponseAAD(resp))
	if err != nil {
		return err
	}
	resp.AuthTag = tag
	return codec.WriteResponse(c.framer, resp)
}

// sendBanned writes the Banned status followed by the raw reason bytes
// (§4.6 rule 3), then the caller closes the connection.
func (c *conn) sendBanned(reason string) {
	payload := []byte(reason)
	_ = codec.WriteResponse(c.framer, &codec.ResponseRecord{
		Status:      codec.StatusBanned,
		PayloadSize: int64(len(payload)),
	})
	_ = c.framer.WriteAll(payload)
}

// dispatchLoop reads Command records while AUTHENTICATED, dispatching
// each to its plane and tracking consecutive misuse (§4.7).
func (c *conn) dispatchLoop() {
	for {
		c.raw.SetReadDeadline(time.Now().Add(c.server.cfg.IdleTimeout))

		start := time.Now()
		cmd, err := codec.ReadCommand(c.framer)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				metrics.SessionsExpired.Inc()
			}
			return
		}

		if c.state != StateAuthenticated {
			c.noteMisuse()
			continue
		}

		if !c.server.rateLimiter.Allow(c.remote) {
			metrics.CommandsRateLimited.Inc()
			_ = c.sendStatus(codec.StatusRateLimited, 0)
			continue
		}

		if err := c.sess.CheckInboundNonce(cmd.Nonce[:]); err != nil {
			c.log.Warn("rejecting command with replayed nonce", logger.Error(err))
			c.noteMisuse()
			_ = c.sendStatus(codec.StatusAuthFailed, 0)
			if c.state == StateClosed {
				return
			}
			continue
		}
		if err := c.sess.VerifyRecordAuth(cmd.Nonce[:], codec.CommandAAD(cmd), cmd.AuthTag[:]); err != nil {
			c.log.Warn("rejecting command with invalid record auth tag", logger.Error(err))
			c.noteMisuse()
			_ = c.sendStatus(codec.StatusAuthFailed, 0)
			metrics.MessagesProcessed.WithLabelValues("command", "failure").Inc()
			if c.state == StateClosed {
				return
			}
			continue
		}

		ok := c.dispatch(cmd)
		metrics.MessageProcessingDuration.Observe(time.Since(start).Seconds())
		if ok {
			metrics.MessagesProcessed.WithLabelValues("command", "success").Inc()
		} else {
			metrics.MessagesProcessed.WithLabelValues("command", "failure").Inc()
			return
		}
	}
}

// noteMisuse counts one ignored-and-drained record; the connection closes
// after maxConsecutiveMisuses in a row (§4.7).
func (c *conn) noteMisuse() {
	c.misuses++
	if c.misuses >= maxConsecutiveMisuses {
		c.log.Warn("closing connection after repeated misuse", logger.Int("misuses", c.misuses))
		c.state = StateClosed
	}
}

// dispatch handles one Command record while AUTHENTICATED, returning
// false if the connection must close.
func (c *conn) dispatch(cmd *codec.CommandRecord) bool {
	switch cmd.Command {
	case codec.CmdUpload:
		c.misuses = 0
		return c.handleUpload(cmd)
	case codec.CmdDownload:
		c.misuses = 0
		return c.handleDownload(cmd)
	case codec.CmdList:
		c.misuses = 0
		return c.handleList(cmd)
	case codec.CmdPing:
		c.misuses = 0
		_ = c.sendStatus(codec.StatusSuccess, 0)
		return true
	case codec.CmdDisconnect:
		_ = c.sendStatus(codec.StatusSuccess, 0)
		return false
	case codec.CmdConnect:
		c.misuses = 0
		return c.handleConnectGate()
	case codec.CmdApprove, codec.CmdReject:
		c.misuses = 0
		return c.handleAdminDecision(cmd)
	case codec.CmdListPending:
		c.misuses = 0
		return c.handleListPending()
	default:
		c.noteMisuse()
		_ = c.sendStatus(codec.StatusUnknownCommand, 0)
		return c.state != StateClosed
	}
}

// handleConnectGate implements the administrator-approval pending
// sub-state inside AUTHENTICATED (§4.7): block, emitting WaitingApproval
// every ApprovalInterval, until Approve or Reject resolves this
// connection's fingerprint.
func (c *conn) handleConnectGate() bool {
	ch := c.server.registerPending(c.fingerprint)
	defer c.server.unregisterPending(c.fingerprint)

	ticker := time.NewTicker(c.server.cfg.ApprovalInterval)
	defer ticker.Stop()

	c.raw.SetReadDeadline(time.Time{})
	defer c.raw.SetReadDeadline(time.Now().Add(c.server.cfg.IdleTimeout))

	for {
		select {
		case d := <-ch:
			if !d.approved {
				_ = c.sendStatus(codec.StatusRejected, 0)
				return false
			}
			_ = c.sendStatus(codec.StatusApproved, 0)
			return true
		case <-ticker.C:
			_ = c.sendStatus(codec.StatusWaitingApproval, 0)
		}
	}
}

// handleAdminDecision lets an allow-listed administrator connection
// approve or reject another connection's pending gate, addressing the
// target by fingerprint carried in the command's recipient metadata field
// (§4 supplemented administrator interface).
func (c *conn) handleAdminDecision(cmd *codec.CommandRecord) bool {
	if !c.server.isAdmin(c.fingerprint) {
		_ = c.sendStatus(codec.StatusPermissionDenied, 0)
		return true
	}
	meta, err := c.sess.OpenMetadata(&cmd.Metadata)
	if err != nil {
		_ = c.sendStatus(codec.StatusAuthFailed, 0)
		return true
	}
	target := strings.TrimSpace(meta.Recipient)

	var decErr error
	if cmd.Command == codec.CmdApprove {
		decErr = c.server.Approve(target)
	} else {
		decErr = c.server.Reject(target, meta.Filename)
	}
	if decErr != nil {
		_ = c.sendStatus(codec.StatusError, 0)
		return true
	}
	_ = c.sendStatus(codec.StatusSuccess, 0)
	return true
}

// handleListPending lets an allow-listed administrator connection list the
// fingerprints currently waiting on a Connect-gate decision (§4
// supplemented `list-pending` admin query).
func (c *conn) handleListPending() bool {
	if !c.server.isAdmin(c.fingerprint) {
		_ = c.sendStatus(codec.StatusPermissionDenied, 0)
		return true
	}
	payload := []byte(strings.Join(c.server.ListPending(), "\n"))
	if len(payload) > 0 {
		payload = append(payload, '\n')
	}
	if err := c.sendStatus(codec.StatusSuccess, int64(len(payload))); err != nil {
		return false
	}
	if len(payload) == 0 {
		return true
	}
	return c.framer.WriteAll(payload) == nil
}
