package store

import (
	"context"
	"crypto/sha1"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"

	"github.com/erazemk/kitstok/internal/blob"
)

// Datasets keeps dataset files in the local database. It implements
// blob.Backend with the same compare-and-swap contract as the remote store.
type Datasets struct {
	DB *sql.DB
}

var (
	_ blob.Backend = (*Datasets)(nil)
	_ blob.Creator = (*Datasets)(nil)
)

// ContentVersion returns the git blob hash of content, the same value the
// GitHub contents API reports as a file's sha.
func ContentVersion(content []byte) string {
	h := sha1.New()
	h.Write([]byte("blob " + strconv.Itoa(len(content)) + "\x00"))
	h.Write(content)
	return hex.EncodeToString(h.Sum(nil))
}

// Get returns a dataset's content and version.
func (d *Datasets) Get(ctx context.Context, path string) ([]byte, string, error) {
	var content []byte
	var version string
	err := d.DB.QueryRowContext(ctx,
		`SELECT content, version FROM datasets WHERE path = ?`, path,
	).Scan(&content, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, "", fmt.Errorf("%w: %s", blob.ErrNotFound, path)
	}
	if err != nil {
		return nil, "", fmt.Errorf("reading dataset %s: %w: %w", path, blob.ErrTransport, err)
	}
	return content, version, nil
}

// Put replaces a dataset's content if version is still current.
func (d *Datasets) Put(ctx context.Context, path string, content []byte, version, message string) (string, error) {
	if version == "" {
		return "", blob.ErrInvalidToken
	}

	tx, err := d.DB.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("beginning transaction: %w: %w", blob.ErrTransport, err)
	}
	defer tx.Rollback()

	var current string
	err = tx.QueryRowContext(ctx,
		`SELECT version FROM datasets WHERE path = ?`, path,
	).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%w: %s", blob.ErrNotFound, path)
	}
	if err != nil {
		return "", fmt.Errorf("reading dataset version: %w: %w", blob.ErrTransport, err)
	}
	if current != version {
		return "", &blob.ConflictError{Path: path, Expected: version, Current: current}
	}

	newVersion := ContentVersion(content)
	result, err := tx.ExecContext(ctx,
		`UPDATE datasets SET content = ?, version = ?, message = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE path = ? AND version = ?`,
		content, newVersion, message, path, version,
	)
	if err != nil {
		return "", fmt.Errorf("writing dataset %s: %w: %w", path, blob.ErrTransport, err)
	}
	// A concurrent writer may have committed between the read and the update.
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return "", &blob.ConflictError{Path: path, Expected: version}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("committing dataset %s: %w: %w", path, blob.ErrTransport, err)
	}
	return newVersion, nil
}

// Create stores a new dataset. It fails with a conflict if the path exists.
func (d *Datasets) Create(ctx context.Context, path string, content []byte, message string) (string, error) {
	version := ContentVersion(content)
	result, err := d.DB.ExecContext(ctx,
		`INSERT OR IGNORE INTO datasets (path, content, version, message) VALUES (?, ?, ?, ?)`,
		path, content, version, message,
	)
	if err != nil {
		return "", fmt.Errorf("creating dataset %s: %w: %w", path, blob.ErrTransport, err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return "", fmt.Errorf("creating dataset %s: %w: %w", path, blob.ErrTransport, err)
	}
	if n == 0 {
		return "", &blob.ConflictError{Path: path}
	}
	return version, nil
}
