package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "test-signing-secret"

func signToken(t *testing.T, secret string, method jwt.SigningMethod, claims jwt.Claims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(method, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("Failed to sign token: %v", err)
	}
	return token
}

func validClaims() Claims {
	return Claims{
		Email: "farmer@example.com",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-123",
			Issuer:    "https://securetoken.example/agro",
			Audience:  jwt.ClaimStrings{"agro"},
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
}

func TestJWTVerifier_Verify_Success(t *testing.T) {
	verifier := NewJWTVerifier(testSecret, "https://securetoken.example/agro", "agro")
	token := signToken(t, testSecret, jwt.SigningMethodHS256, validClaims())

	identity, err := verifier.Verify(context.Background(), token)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if identity.UserID != "user-123" || identity.Email != "farmer@example.com" {
		t.Errorf("Unexpected identity %+v", identity)
	}
}

func TestJWTVerifier_Verify_LegacyUserIDClaim(t *testing.T) {
	verifier := NewJWTVerifier(testSecret, "", "")
	claims := validClaims()
	claims.Subject = ""
	claims.UserID = "legacy-7"

	identity, err := verifier.Verify(context.Background(), signToken(t, testSecret, jwt.SigningMethodHS256, claims))
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if identity.UserID != "legacy-7" {
		t.Errorf("Expected legacy-7, got %s", identity.UserID)
	}
}

func TestJWTVerifier_Verify_Rejections(t *testing.T) {
	verifier := NewJWTVerifier(testSecret, "https://securetoken.example/agro", "agro")

	expired := validClaims()
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))

	noExpiry := validClaims()
	noExpiry.ExpiresAt = nil

	wrongIssuer := validClaims()
	wrongIssuer.Issuer = "https://attacker.example"

	wrongAudience := validClaims()
	wrongAudience.Audience = jwt.ClaimStrings{"other-app"}

	noSubject := validClaims()
	noSubject.Subject = ""

	tests := []struct {
		name  string
		token string
	}{
		{"garbage", "not-a-jwt"},
		{"wrong secret", signToken(t, "other-secret", jwt.SigningMethodHS256, validClaims())},
		{"wrong algorithm", signToken(t, testSecret, jwt.SigningMethodHS512, validClaims())},
		{"expired", signToken(t, testSecret, jwt.SigningMethodHS256, expired)},
		{"missing expiry", signToken(t, testSecret, jwt.SigningMethodHS256, noExpiry)},
		{"wrong issuer", signToken(t, testSecret, jwt.SigningMethodHS256, wrongIssuer)},
		{"wrong audience", signToken(t, testSecret, jwt.SigningMethodHS256, wrongAudience)},
		{"no subject", signToken(t, testSecret, jwt.SigningMethodHS256, noSubject)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := verifier.Verify(context.Background(), tt.token)
			if !errors.Is(err, ErrUnauthorized) {
				t.Errorf("Expected ErrUnauthorized, got %v", err)
			}
		})
	}
}

func TestJWTVerifier_Verify_EmptySecret(t *testing.T) {
	verifier := NewJWTVerifier("", "", "")
	token := signToken(t, testSecret, jwt.SigningMethodHS256, validClaims())

	if _, err := verifier.Verify(context.Background(), token); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("Expected ErrUnauthorized, got %v", err)
	}
}
