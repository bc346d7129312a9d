package storage

import (
	"context"
	"errors"
)

// ErrNotFound is returned by FindOne when no document matches filename.
// ErrAlreadyExists maps to status PermissionDenied at the call site (§3
// "unique-key error maps to PermissionDenied").
var (
	ErrNotFound      = errors.New("storage: object not found")
	ErrAlreadyExists = errors.New("storage: object already exists")
)

// ObjectStore is the metadata document store adapter (§4's "Metadata
// store adapter" component): insert/find/update/iter over Object
// documents, independent of the concrete backend.
type ObjectStore interface {
	// Insert adds a new object document, failing ErrAlreadyExists if a
	// non-deleted document with that filename is present. A soft-deleted
	// document with the same filename is replaced, so its name can be
	// reused.
	Insert(ctx context.Context, obj *Object) error

	// FindOne retrieves the object document for filename, failing
	// ErrNotFound if absent or soft-deleted.
	FindOne(ctx context.Context, filename string) (*Object, error)

	// UpdateOne replaces the stored document for obj.Filename in place.
	UpdateOne(ctx context.Context, obj *Object) error

	// Iter streams every non-deleted object document to fn in an
	// implementation-defined order; fn returning an error stops
	// iteration and that error is returned.
	Iter(ctx context.Context, fn func(*Object) error) error

	// Close releases any resources held by the store.
	Close(ctx context.Context) error

	// Ping checks connectivity to the backing store.
	Ping(ctx context.Context) error
}
