package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// RevokeToken records that the session jti was logged out by username. The
// row is only needed until the token itself expires.
func RevokeToken(ctx context.Context, db *sql.DB, jti, username string, expiresAt time.Time) error {
	now := time.Now().UTC()
	_, err := db.ExecContext(ctx,
		`INSERT INTO revoked_tokens (jti, username, expires_at, revoked_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(jti) DO NOTHING`,
		jti, username, expiresAt.UTC().Unix(), now.Unix(),
	)
	if err != nil {
		return fmt.Errorf("revoking token: %w", err)
	}

	if _, err := PurgeRevokedTokens(ctx, db, now); err != nil {
		return err
	}
	return nil
}

// PurgeRevokedTokens deletes revocations whose token expired before now and
// returns how many were removed.
func PurgeRevokedTokens(ctx context.Context, db *sql.DB, now time.Time) (int64, error) {
	result, err := db.ExecContext(ctx,
		`DELETE FROM revoked_tokens WHERE expires_at < ?`, now.UTC().Unix(),
	)
	if err != nil {
		return 0, fmt.Errorf("purging revoked tokens: %w", err)
	}
	return result.RowsAffected()
}

// IsTokenRevoked reports whether the session jti was logged out.
func IsTokenRevoked(ctx context.Context, db *sql.DB, jti string) (bool, error) {
	var revoked bool
	err := db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM revoked_tokens WHERE jti = ?)`, jti,
	).Scan(&revoked)
	if err != nil {
		return false, fmt.Errorf("checking token revocation: %w", err)
	}
	return revoked, nil
}
