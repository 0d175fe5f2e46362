// Package blob defines the contract of the remote key-blob store that holds
// the kit datasets, and the errors every backend reports.
package blob

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrNotFound     = errors.New("dataset not found")
	ErrConflict     = errors.New("version conflict")
	ErrInvalidToken = errors.New("missing or invalid version token")
	ErrTransport    = errors.New("store transport error")
)

// ConflictError reports a write whose version token no longer matches the
// stored content.
type ConflictError struct {
	Path     string
	Expected string
	Current  string // empty when the backend does not report it
}

func (e *ConflictError) Error() string {
	if e.Current != "" {
		return fmt.Sprintf("version conflict on %s: have %s, store has %s", e.Path, short(e.Expected), short(e.Current))
	}
	return fmt.Sprintf("version conflict on %s: token %s is stale", e.Path, short(e.Expected))
}

func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict
}

func short(token string) string {
	if len(token) > 12 {
		return token[:12]
	}
	return token
}

// Backend reads and conditionally writes whole blobs addressed by path.
//
// Get returns the current content and an opaque version token for it.
// Put replaces the content only if version still identifies the stored
// content, and returns the version of the new content. Put never performs an
// unconditional overwrite: an empty version is rejected with ErrInvalidToken.
type Backend interface {
	Get(ctx context.Context, path string) (content []byte, version string, err error)
	Put(ctx context.Context, path string, content []byte, version, message string) (newVersion string, err error)
}

// Creator is implemented by backends that can create a blob that does not
// exist yet. Create fails with ErrConflict if the path already exists.
type Creator interface {
	Create(ctx context.Context, path string, content []byte, message string) (version string, err error)
}
