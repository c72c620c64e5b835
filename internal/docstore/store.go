package docstore

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound    = errors.New("document not found")
	ErrConflict    = errors.New("document version conflict")
	ErrUnavailable = errors.New("store unavailable")
)

// Document is an opaque JSON payload with a version token used for
// optimistic concurrency. Version 0 means "does not exist yet".
type Document struct {
	ID        string
	Version   int64
	Body      []byte
	UpdatedAt time.Time
}

// Predicate filters documents during a Query. It must not retain the
// document it is handed.
type Predicate func(doc Document) bool

// Store is the adapter every component above persists through.
//
// Put with version 0 inserts and fails ErrConflict if the id already
// exists; Put with a positive version updates only if the stored version
// matches, failing ErrConflict on a stale token and ErrNotFound if the
// document is gone.
type Store interface {
	Get(ctx context.Context, collection, id string) (Document, error)
	Query(ctx context.Context, collection string, pred Predicate) ([]Document, error)
	Put(ctx context.Context, collection, id string, body []byte, version int64) (int64, error)
	Delete(ctx context.Context, collection, id string) error
}
