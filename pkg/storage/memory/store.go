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

// Package memory implements storage.ObjectStore in process memory, used
// by tests and by single-node deployments that don't need a Mongo
// backend.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/sage-x-project/sage/pkg/storage"
)

// Store implements storage.ObjectStore with a guarded map.
type Store struct {
	mu      sync.RWMutex
	objects map[string]*storage.Object
}

// NewStore creates an empty in-memory object store.
func NewStore() *Store {
	return &Store{objects: make(map[string]*storage.Object)}
}

// Insert adds a new object document.
func (s *Store) Insert(ctx context.Context, obj *storage.Object) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.objects[obj.Filename]; ok && !existing.Deleted {
		return storage.ErrAlreadyExists
	}

	s.objects[obj.Filename] = cloneObject(obj)
	return nil
}

// FindOne retrieves the object document for filename.
func (s *Store) FindOne(ctx context.Context, filename string) (*storage.Object, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	obj, ok := s.objects[filename]
	if !ok || obj.Deleted {
		return nil, storage.ErrNotFound
	}
	return cloneObject(obj), nil
}

// UpdateOne replaces the stored document for obj.Filename.
func (s *Store) UpdateOne(ctx context.Context, obj *storage.Object) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.objects[obj.Filename]; !ok {
		return storage.ErrNotFound
	}
	s.objects[obj.Filename] = cloneObject(obj)
	return nil
}

// Iter streams every non-deleted object in filename order, for
// deterministic test assertions and a stable `list` command output.
func (s *Store) Iter(ctx context.Context, fn func(*storage.Object) error) error {
	s.mu.RLock()
	names := make([]string, 0, len(s.objects))
	for name, obj := range s.objects {
		if !obj.Deleted {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	objs := make([]*storage.Object, 0, len(names))
	for _, name := range names {
		objs = append(objs, cloneObject(s.objects[name]))
	}
	s.mu.RUnlock()

	for _, obj := range objs {
		if err := fn(obj); err != nil {
			return err
		}
	}
	return nil
}

// Close is a no-op for the in-memory store.
func (s *Store) Close(ctx context.Context) error { return nil }

// Ping always succeeds for the in-memory store.
func (s *Store) Ping(ctx context.Context) error { return nil }

func cloneObject(obj *storage.Object) *storage.Object {
	out := *obj
	out.IV = append([]byte(nil), obj.IV...)
	out.Tag = append([]byte(nil), obj.Tag...)
	out.Audit = append([]storage.AuditEvent(nil), obj.Audit...)
	return &out
}
