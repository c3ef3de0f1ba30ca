// Package storage keeps the artifacts of an analysis: the rendered figures
// and the PDF report. Artifacts are written once and served back by name, so
// the same code runs against local disk or an S3 compatible bucket.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
)

// ErrInvalidPath is returned for keys that would escape the store root.
var ErrInvalidPath = errors.New("storage: invalid path")

// Store is a minimal artifact store.
//
// Paths are forward-slash separated and relative to the store root.
// Implementations must be safe for concurrent use.
type Store interface {
	// Put writes the object at path, replacing any previous content.
	Put(ctx context.Context, path, contentType string, r io.Reader) error

	// Open returns the object at path. The caller must close it.
	// A missing object yields an error wrapping os.ErrNotExist.
	Open(ctx context.Context, path string) (io.ReadCloser, error)

	// Ping checks that the backend is reachable.
	Ping(ctx context.Context) error
}

// Clean validates a storage path and returns its canonical form.
func Clean(p string) (string, error) {
	if p == "" || strings.HasPrefix(p, "/") || strings.Contains(p, "\\") {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, p)
	}
	c := path.Clean(p)
	if c == "." || c == ".." || strings.HasPrefix(c, "../") {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, p)
	}
	return c, nil
}
