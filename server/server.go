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
	"context"
	"errors"
	"fmt"
	"net"
	"sort"
	"sync"
	"time"

	"github.com/sage-x-project/sage/admission"
	"github.com/sage-x-project/sage/atrest"
	"github.com/sage-x-project/sage/internal/config"
	"github.com/sage-x-project/sage/internal/logger"
	"github.com/sage-x-project/sage/internal/metrics"
	"github.com/sage-x-project/sage/pkg/storage"
)

// ErrUnknownPending is returned by Approve/Reject when no connection is
// currently waiting for a decision on the given fingerprint.
var ErrUnknownPending = errors.New("server: no pending connection for fingerprint")

// approvalDecision is sent on a pending connection's channel once an
// administrator resolves its Connect gate.
type approvalDecision struct {
	approved bool
	reason   string
}

// Server owns every long-lived collaborator a connection needs: the
// metadata store, the at-rest cipher and object store, admission control,
// and the administrator approval gate's pending-connection table.
type Server struct {
	cfg    *config.Config
	log    logger.Logger
	store  storage.ObjectStore
	cipher *atrest.Cipher
	files  *atrest.Store

	connLimiter *admission.ConnectionLimiter
	rateLimiter *admission.RateLimiter
	bans        *admission.BanList

	adminFingerprints map[string]struct{}

	mu      sync.Mutex
	pending map[string]chan approvalDecision

	wg sync.WaitGroup
}

// New wires a Server from its collaborators. adminFingerprints lists the
// SHA-256 client-certificate fingerprints (lowercase hex) permitted to
// issue Approve/Reject commands (§4 supplemented administrator interface).
func New(
	cfg *config.Config,
	log logger.Logger,
	store storage.ObjectStore,
	cipher *atrest.Cipher,
	files *atrest.Store,
	connLimiter *admission.ConnectionLimiter,
	rateLimiter *admission.RateLimiter,
	bans *admission.BanList,
	adminFingerprints []string,
) *Server {
	admins := make(map[string]struct{}, len(adminFingerprints))
	for _, fp := range adminFingerprints {
		admins[fp] = struct{}{}
	}
	return &Server{
		cfg:               cfg,
		log:               log,
		store:             store,
		cipher:            cipher,
		files:             files,
		connLimiter:       connLimiter,
		rateLimiter:       rateLimiter,
		bans:              bans,
		adminFingerprints: admins,
		pending:           make(map[string]chan approvalDecision),
	}
}

// Serve accepts connections from l until it is closed, handling each on
// its own goroutine.
func (s *Server) Serve(l net.Listener) error {
	for {
		raw, err := l.Accept()
		if err != nil {
			return err
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handle(raw)
		}()
	}
}

// Shutdown waits for in-flight connections to finish, up to ctx's
// deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// isAdmin reports whether fingerprint is permitted to issue Approve/Reject
// commands.
func (s *Server) isAdmin(fingerprint string) bool {
	_, ok := s.adminFingerprints[fingerprint]
	return ok
}

// registerPending creates (or replaces) the decision channel a connection
// blocks on after sending Connect, keyed by its own fingerprint.
func (s *Server) registerPending(fingerprint string) chan approvalDecision {
	ch := make(chan approvalDecision, 1)
	s.mu.Lock()
	s.pending[fingerprint] = ch
	s.mu.Unlock()
	return ch
}

func (s *Server) unregisterPending(fingerprint string) {
	s.mu.Lock()
	delete(s.pending, fingerprint)
	s.mu.Unlock()
}

// Approve resolves a pending Connect gate for fingerprint, admitting the
// connection to ordinary AUTHENTICATED operation.
func (s *Server) Approve(fingerprint string) error {
	return s.resolve(fingerprint, approvalDecision{approved: true})
}

// Reject resolves a pending Connect gate for fingerprint, causing the
// connection to close.
func (s *Server) Reject(fingerprint, reason string) error {
	return s.resolve(fingerprint, approvalDecision{approved: false, reason: reason})
}

func (s *Server) resolve(fingerprint string, d approvalDecision) error {
	s.mu.Lock()
	ch, ok := s.pending[fingerprint]
	if ok {
		delete(s.pending, fingerprint)
	}
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPending, fingerprint)
	}
	ch <- d
	return nil
}

// ListPending returns the fingerprints currently waiting on an
// administrator decision, sorted for stable output (§4 supplemented
// `list-pending` admin query).
func (s *Server) ListPending() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.pending))
	for fp := range s.pending {
		out = append(out, fp)
	}
	sort.Strings(out)
	return out
}

// Ban adds a session key (hex) to the ban list. Exposed for the
// administrator interface (§6): the session key is only known once a
// client has connected at least once, so this bans by session-key hex as
// the spec requires, not by certificate fingerprint.
func (s *Server) Ban(sessionKeyHex, reason string) {
	s.bans.Ban(sessionKeyHex, reason, time.Now())
	metrics.ConnectionsRejected.WithLabelValues("banned").Inc()
}

// Unban removes a session key from the ban list.
func (s *Server) Unban(sessionKeyHex string) bool {
	return s.bans.Unban(sessionKeyHex)
}

// PersistBans writes the current ban set to disk (§3 "Shared resources").
func (s *Server) PersistBans() error {
	return s.bans.Persist()
}
