package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestGenerateAndValidateToken(t *testing.T) {
	secret := "super-secret-key"
	issuer := "bazaar"
	validity := time.Hour
	auth := NewAuthenticator(secret, issuer, validity)

	userID := "65f1c0ffee"
	email := "seller@example.com"

	token, err := auth.GenerateToken(userID, email, "user")
	if err != nil {
		t.Fatalf("failed to generate token: %v", err)
	}
	if token == "" {
		t.Fatal("generated token is empty")
	}

	claims, err := auth.ValidateToken(token)
	if err != nil {
		t.Fatalf("failed to validate token: %v", err)
	}

	if claims.UserID != userID {
		t.Errorf("expected user ID %s, got %s", userID, claims.UserID)
	}
	if claims.Email != email {
		t.Errorf("expected email %s, got %s", email, claims.Email)
	}
	if claims.Role != "user" {
		t.Errorf("expected role user, got %s", claims.Role)
	}
	if claims.Issuer != issuer {
		t.Errorf("expected issuer %s, got %s", issuer, claims.Issuer)
	}
}

func TestExpiredToken(t *testing.T) {
	auth := NewAuthenticator("super-secret-key", "bazaar", -time.Minute) // Expired immediately

	token, err := auth.GenerateToken("u1", "u1@example.com", "user")
	if err != nil {
		t.Fatalf("failed to generate token: %v", err)
	}

	_, err = auth.ValidateToken(token)
	if !errors.Is(err, ErrExpiredToken) {
		t.Fatalf("expected ErrExpiredToken, got %v", err)
	}
}

func TestInvalidSignature(t *testing.T) {
	auth1 := NewAuthenticator("secret1", "bazaar", time.Hour)
	auth2 := NewAuthenticator("secret2", "bazaar", time.Hour)

	token, _ := auth1.GenerateToken("u1", "u1@example.com", "user")

	_, err := auth2.ValidateToken(token)
	if err == nil {
		t.Fatal("expected error for invalid signature, got nil")
	}
}

func TestEmptySubjectRejected(t *testing.T) {
	auth := NewAuthenticator("secret", "bazaar", time.Hour)

	token, err := auth.GenerateToken("", "anon@example.com", "user")
	if err != nil {
		t.Fatalf("failed to generate token: %v", err)
	}
	if _, err := auth.ValidateToken(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestForeignIssuerRejected(t *testing.T) {
	other := NewAuthenticator("secret", "someone-else", time.Hour)
	auth := NewAuthenticator("secret", "bazaar", time.Hour)

	token, err := other.GenerateToken("u1", "u1@example.com", "user")
	if err != nil {
		t.Fatalf("failed to generate token: %v", err)
	}
	if _, err := auth.ValidateToken(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestUnsignedTokenRejected(t *testing.T) {
	auth := NewAuthenticator("secret", "bazaar", time.Hour)

	unsigned := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"sub": "u1", "iss": "bazaar"})
	token, err := unsigned.SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("failed to build token: %v", err)
	}
	if _, err := auth.ValidateToken(token); err == nil {
		t.Fatal("expected error for unsigned token, got nil")
	}
}
