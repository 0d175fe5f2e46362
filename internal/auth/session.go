package auth

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/erazemk/kitstok/internal/store"
)

var (
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrInvalidSession     = errors.New("invalid or expired session")
)

// Session is an authenticated login. It ends when the token expires or is
// revoked by Logout.
type Session struct {
	Username  string
	TokenID   string
	ExpiresAt time.Time
	Token     string
}

// Authenticator checks credentials against the single configured account
// and issues sessions.
type Authenticator struct {
	db           *sql.DB
	secret       string
	username     string
	passwordHash string
	ttl          time.Duration
	logger       *slog.Logger
}

// NewAuthenticator creates an authenticator. The signing secret is kept in
// the settings table so sessions survive restarts.
func NewAuthenticator(ctx context.Context, db *sql.DB, username, passwordHash string, ttl time.Duration, logger *slog.Logger) (*Authenticator, error) {
	secret, err := store.GetJWTSecret(ctx, db)
	if err != nil {
		return nil, fmt.Errorf("loading JWT secret: %w", err)
	}
	logger = logger.With(slog.String("component", "auth"))
	if IsLegacyHash(passwordHash) {
		logger.Warn("password hash is unsalted SHA-256; generate a bcrypt hash with `kitstok hash-password`")
	}
	return &Authenticator{
		db:           db,
		secret:       secret,
		username:     username,
		passwordHash: passwordHash,
		ttl:          ttl,
		logger:       logger,
	}, nil
}

// Login checks the credentials and starts a new session.
func (a *Authenticator) Login(ctx context.Context, username, password string) (*Session, error) {
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(a.username)) == 1
	passOK := CheckPassword(a.passwordHash, password)
	if a.username == "" || !userOK || !passOK {
		a.logger.Warn("login failed", "user", username)
		return nil, ErrInvalidCredentials
	}

	token, claims, err := GenerateToken(a.secret, a.username, a.ttl)
	if err != nil {
		return nil, err
	}

	a.logger.Info("user logged in", "user", a.username)
	return sessionFromClaims(claims, token), nil
}

// Authenticate resolves a token to its session. Revoked and expired tokens
// fail with ErrInvalidSession.
func (a *Authenticator) Authenticate(ctx context.Context, token string) (*Session, error) {
	claims, err := ValidateToken(a.secret, token)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSession, err)
	}

	revoked, err := store.IsTokenRevoked(ctx, a.db, claims.ID)
	if err != nil {
		return nil, fmt.Errorf("checking token revocation: %w", err)
	}
	if revoked {
		return nil, fmt.Errorf("%w: token revoked", ErrInvalidSession)
	}
	return sessionFromClaims(claims, token), nil
}

// Logout ends a session by revoking its token.
func (a *Authenticator) Logout(ctx context.Context, s *Session) error {
	if s == nil || s.TokenID == "" {
		return nil
	}
	if err := store.RevokeToken(ctx, a.db, s.TokenID, s.Username, s.ExpiresAt); err != nil {
		return fmt.Errorf("revoking session: %w", err)
	}
	a.logger.Info("user logged out", "user", s.Username)
	return nil
}

// TTL returns the session lifetime.
func (a *Authenticator) TTL() time.Duration {
	if a.ttl <= 0 {
		return TokenExpiry
	}
	return a.ttl
}

func sessionFromClaims(c *Claims, token string) *Session {
	s := &Session{Username: c.Username, TokenID: c.ID, Token: token}
	if c.ExpiresAt != nil {
		s.ExpiresAt = c.ExpiresAt.Time
	}
	return s
}

// HashPassword returns a bcrypt hash of password.
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", errors.New("password must not be empty")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hashing password: %w", err)
	}
	return string(hash), nil
}

// CheckPassword compares password with a bcrypt hash, or with a hex SHA-256
// digest as written by older deployments.
func CheckPassword(hash, password string) bool {
	if hash == "" {
		return false
	}
	if IsLegacyHash(hash) {
		sum := sha256.Sum256([]byte(password))
		return subtle.ConstantTimeCompare([]byte(hex.EncodeToString(sum[:])), []byte(strings.ToLower(hash))) == 1
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// IsLegacyHash reports whether hash is a 64 character hex SHA-256 digest.
func IsLegacyHash(hash string) bool {
	if len(hash) != 64 {
		return false
	}
	_, err := hex.DecodeString(hash)
	return err == nil
}
