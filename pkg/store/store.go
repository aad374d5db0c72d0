// Package store defines the blob store contract the pipeline uses for source
// audio, per-chunk inputs, and cleaned-chunk artifacts.
//
// The store itself (cloud object storage, CDN, ...) is an external
// collaborator; recut only depends on this minimal surface. A filesystem
// implementation is provided for local operation and tests.
package store

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Download when no blob exists at the URI. The
// chunk orchestrator polls on it to detect not-yet-completed chunks, so
// implementations must return it (wrapped is fine) rather than a generic
// error for missing blobs.
var ErrNotFound = errors.New("store: blob not found")

// Store is the blob storage abstraction.
//
// Implementations must be safe for concurrent use: chunk uploads fan out in
// parallel, and workers write cleaned artifacts while the orchestrator polls.
type Store interface {
	// Download returns the blob at uri, or ErrNotFound.
	Download(ctx context.Context, uri string) ([]byte, error)

	// Upload stores data at uri and returns the canonical URI of the stored
	// blob (implementations may rewrite the requested URI, e.g. to add a
	// bucket prefix). contentType is advisory.
	Upload(ctx context.Context, data []byte, uri, contentType string) (string, error)
}
