package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestGenerateAndValidateToken(t *testing.T) {
	secret := "test-secret-key"

	token, issued, err := GenerateToken(secret, "laborant", time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	if token == "" {
		t.Fatal("expected non-empty token")
	}

	claims, err := ValidateToken(secret, token)
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}

	if claims.Username != "laborant" {
		t.Errorf("expected username 'laborant', got %q", claims.Username)
	}
	if claims.ID == "" || claims.ID != issued.ID {
		t.Errorf("expected JTI %q, got %q", issued.ID, claims.ID)
	}
}

func TestGenerateTokenUniqueIDs(t *testing.T) {
	_, a, _ := GenerateToken("s", "u", time.Hour)
	_, b, _ := GenerateToken("s", "u", time.Hour)
	if a.ID == b.ID {
		t.Error("expected distinct token IDs")
	}
}

func TestValidateTokenWrongSecret(t *testing.T) {
	token, _, _ := GenerateToken("secret1", "laborant", time.Hour)

	_, err := ValidateToken("secret2", token)
	if err == nil {
		t.Error("expected error for wrong secret")
	}
}

func TestValidateTokenInvalid(t *testing.T) {
	_, err := ValidateToken("secret", "not-a-token")
	if err == nil {
		t.Error("expected error for invalid token")
	}
}

func TestValidateTokenExpired(t *testing.T) {
	claims := &Claims{
		Username: "laborant",
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        "old",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("s"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := ValidateToken("s", token); err == nil {
		t.Error("expected error for expired token")
	}
}

func TestValidateTokenWithoutExpiry(t *testing.T) {
	claims := &Claims{Username: "laborant", RegisteredClaims: jwt.RegisteredClaims{ID: "forever"}}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("s"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := ValidateToken("s", token); err == nil {
		t.Error("expected error for token without expiry")
	}
}

func TestTokenExpiry(t *testing.T) {
	secret := "test"
	token, _, _ := GenerateToken(secret, "test", 0)
	claims, _ := ValidateToken(secret, token)

	expiresAt := claims.ExpiresAt.Time
	expectedExpiry := time.Now().Add(TokenExpiry)

	// Should be within a few seconds.
	diff := expectedExpiry.Sub(expiresAt)
	if diff < -5*time.Second || diff > 5*time.Second {
		t.Errorf("token expiry too far from expected: diff=%v", diff)
	}
}
