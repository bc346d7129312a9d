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

// Package admission implements the three checks applied at connection
// acceptance and on every command (§4.6): a per-remote connection cap, a
// sliding-window request-rate limiter, and a banned-identity list.
package admission

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/sage-x-project/sage/banlist"
)

// MaxConnectionsPerRemote is the live-connection ceiling for a single
// remote network address (§4.6 rule 1).
const MaxConnectionsPerRemote = 10

// RateLimitWindow and RateLimitCeiling define the sliding window applied
// per remote address (§4.6 rule 2).
const (
	RateLimitWindow  = 60 * time.Second
	RateLimitCeiling = 100
)

// ConnectionLimiter tracks live connection counts per remote address,
// grounded on the teacher's sync.Map-of-atomic-counters idiom.
type ConnectionLimiter struct {
	counts sync.Map // remote string -> *int64
}

// NewConnectionLimiter creates an empty limiter.
func NewConnectionLimiter() *ConnectionLimiter {
	return &ConnectionLimiter{}
}

// TryAcquire increments remote's connection count and reports whether the
// new connection is admitted (current count including this one ≤
// MaxConnectionsPerRemote). Callers must call Release exactly once for
// every TryAcquire that returned true. A rejected acquisition undoes its
// own increment before returning false, so it must not be released.
func (l *ConnectionLimiter) TryAcquire(remote string) bool {
	v, _ := l.counts.LoadOrStore(remote, new(int64))
	counter := v.(*int64)
	n := atomic.AddInt64(counter, 1)
	if n > MaxConnectionsPerRemote {
		atomic.AddInt64(counter, -1)
		return false
	}
	return true
}

// Release decrements remote's connection count.
func (l *ConnectionLimiter) Release(remote string) {
	v, ok := l.counts.Load(remote)
	if !ok {
		return
	}
	atomic.AddInt64(v.(*int64), -1)
}

// windowState is the (last_window_start, count_in_window) pair of §4.6
// rule 2.
type windowState struct {
	mu          sync.Mutex
	windowStart time.Time
	count       int
}

// RateLimiter enforces a sliding window of RateLimitWindow allowing at
// most RateLimitCeiling commands per remote.
type RateLimiter struct {
	states sync.Map // remote string -> *windowState
	now    func() time.Time
}

// NewRateLimiter creates an empty rate limiter.
func NewRateLimiter() *RateLimiter {
	return &RateLimiter{now: time.Now}
}

// Allow records one command from remote and reports whether it is within
// the window's ceiling. If now-windowStart ≥ RateLimitWindow, the window
// resets before counting this command.
func (r *RateLimiter) Allow(remote string) bool {
	v, _ := r.states.LoadOrStore(remote, &windowState{windowStart: r.now()})
	s := v.(*windowState)

	s.mu.Lock()
	defer s.mu.Unlock()

	now := r.now()
	if now.Sub(s.windowStart) >= RateLimitWindow {
		s.windowStart = now
		s.count = 0
	}
	s.count++
	return s.count <= RateLimitCeiling
}

// BanList tracks banned identities keyed by hex-encoded session key
// (§3, §4.6 rule 3), backed by the banlist package's versioned flat file.
type BanList struct {
	mu     sync.RWMutex
	path   string
	banned map[string]banlist.Record
}

// LoadBanList loads the banned set from path (empty if the file does not
// exist yet, matching first-run startup).
func LoadBanList(path string) (*BanList, error) {
	records, err := banlist.Load(path)
	if err != nil {
		return nil, err
	}
	b := &BanList{path: path, banned: make(map[string]banlist.Record, len(records))}
	for _, rec := range records {
		b.banned[rec.SessionKeyHex] = rec
	}
	return b, nil
}

// IsBanned reports whether sessionKeyHex is on the ban list, and the
// reason if so.
func (b *BanList) IsBanned(sessionKeyHex string) (reason string, banned bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	rec, ok := b.banned[sessionKeyHex]
	return rec.Reason, ok
}

// Ban adds sessionKeyHex to the ban list with the given reason and time.
func (b *BanList) Ban(sessionKeyHex, reason string, at time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.banned[sessionKeyHex] = banlist.Record{
		SessionKeyHex: sessionKeyHex,
		BannedAtUnix:  at.Unix(),
		Reason:        reason,
	}
}

// Unban removes sessionKeyHex from the ban list. It reports whether an
// entry was actually removed.
func (b *BanList) Unban(sessionKeyHex string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.banned[sessionKeyHex]; !ok {
		return false
	}
	delete(b.banned, sessionKeyHex)
	return true
}

// List returns every banned record, for the administrator list-bans
// query (§4 supplemented features).
func (b *BanList) List() []banlist.Record {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]banlist.Record, 0, len(b.banned))
	for _, rec := range b.banned {
		out = append(out, rec)
	}
	return out
}

// Persist writes the current ban set to the path it was loaded from,
// under the single writer-lock-for-the-duration-of-the-write invariant
// (§3 "Shared resources").
func (b *BanList) Persist() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	records := make([]banlist.Record, 0, len(b.banned))
	for _, rec := range b.banned {
		records = append(records, rec)
	}
	return banlist.Save(b.path, records)
}
