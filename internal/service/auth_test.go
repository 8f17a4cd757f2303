package service_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/msomdec/murmur/internal/domain"
	"github.com/msomdec/murmur/internal/service"
)

const testPassword = "Passw0rd"

func newTestAuthService(t *testing.T) (*service.AuthService, domain.UserRepository) {
	t.Helper()
	db := newTestDB(t)
	users := db.Users()
	// Use cost 4 for fast tests.
	return service.NewAuthService(users, testJWTSecret, 4, 0), users
}

func TestAuthService_Register_Success(t *testing.T) {
	auth, users := newTestAuthService(t)
	ctx := context.Background()

	user, token, err := auth.Register(ctx, "  New@Example.com ", " New User ", testPassword)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if user.ID == "" {
		t.Fatal("expected user ID to be set")
	}
	if user.Email != "new@example.com" {
		t.Fatalf("expected normalized email new@example.com, got %s", user.Email)
	}
	if user.Name != "New User" {
		t.Fatalf("expected trimmed name, got %q", user.Name)
	}
	if token == "" {
		t.Fatal("expected a token")
	}

	stored := getUser(t, users, user.ID)
	if stored.PasswordHash == "" || stored.PasswordHash == testPassword {
		t.Fatalf("expected a bcrypt hash to be stored, got %q", stored.PasswordHash)
	}
}

func TestAuthService_Register_DuplicateEmail(t *testing.T) {
	auth, _ := newTestAuthService(t)
	ctx := context.Background()

	if _, _, err := auth.Register(ctx, "dup@example.com", "User 1", testPassword); err != nil {
		t.Fatalf("first register: %v", err)
	}

	_, _, err := auth.Register(ctx, "DUP@example.com", "User 2", "An0therPass")
	if !errors.Is(err, domain.ErrDuplicateEmail) {
		t.Fatalf("expected ErrDuplicateEmail, got %v", err)
	}
}

func TestAuthService_Register_WeakPassword(t *testing.T) {
	auth, users := newTestAuthService(t)
	ctx := context.Background()

	_, _, err := auth.Register(ctx, "weak@example.com", "Weak", "short")
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if _, err := users.GetByEmail(ctx, "weak@example.com"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected no account to remain, got %v", err)
	}
}

func TestAuthService_Register_InvalidFields(t *testing.T) {
	auth, _ := newTestAuthService(t)
	ctx := context.Background()

	tests := []struct {
		name     string
		email    string
		display  string
		password string
	}{
		{"empty email", "", "Name", testPassword},
		{"malformed email", "not-an-email", "Name", testPassword},
		{"empty display name", "a@b.com", "", testPassword},
		{"short display name", "a@b.com", "Al", testPassword},
		{"long display name", "a@b.com", strings.Repeat("n", 65), testPassword},
		{"empty password", "a@b.com", "Name", ""},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := auth.Register(ctx, tc.email, tc.display, tc.password)
			if !errors.Is(err, domain.ErrInvalidInput) {
				t.Fatalf("expected ErrInvalidInput, got %v", err)
			}
		})
	}
}

func TestAuthService_SetPassword_RejectsWithoutWriting(t *testing.T) {
	auth, users := newTestAuthService(t)
	ctx := context.Background()

	user, _, err := auth.Register(ctx, "keep@example.com", "Keep", testPassword)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	before := getUser(t, users, user.ID).PasswordHash

	_, err = auth.SetPassword(ctx, user.ID, "has space1A")
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if !strings.Contains(err.Error(), "spaces") {
		t.Fatalf("expected the violated rule in the message, got %v", err)
	}

	if after := getUser(t, users, user.ID).PasswordHash; after != before {
		t.Fatal("expected stored hash to be unchanged after rejection")
	}
}

func TestAuthService_SetPassword_FreshSalt(t *testing.T) {
	auth, users := newTestAuthService(t)
	ctx := context.Background()

	user, _, err := auth.Register(ctx, "salt@example.com", "Salt", testPassword)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	first := getUser(t, users, user.ID).PasswordHash

	updated, err := auth.SetPassword(ctx, user.ID, testPassword)
	if err != nil {
		t.Fatalf("SetPassword: %v", err)
	}
	if updated.PasswordHash == first {
		t.Fatal("expected a fresh salt to produce a different hash")
	}
	if !auth.ComparePassword(updated.PasswordHash, testPassword) {
		t.Fatal("expected new hash to verify")
	}
}

func TestAuthService_SetPassword_MissingUser(t *testing.T) {
	auth, _ := newTestAuthService(t)

	_, err := auth.SetPassword(context.Background(), "missing", testPassword)
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestAuthService_ComparePassword_SingleCharacterMutations(t *testing.T) {
	auth, _ := newTestAuthService(t)
	ctx := context.Background()

	user, _, err := auth.Register(ctx, "mutate@example.com", "Mutate", testPassword)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	if !auth.ComparePassword(user.PasswordHash, testPassword) {
		t.Fatal("expected the original password to match")
	}

	for i := range testPassword {
		mutated := []byte(testPassword)
		mutated[i] ^= 0x01
		if auth.ComparePassword(user.PasswordHash, string(mutated)) {
			t.Fatalf("mutation at %d (%q) unexpectedly matched", i, mutated)
		}
	}
	if auth.ComparePassword(user.PasswordHash, testPassword+"x") {
		t.Fatal("expected appended character not to match")
	}
	if auth.ComparePassword("", testPassword) {
		t.Fatal("expected empty hash never to match")
	}
}

func TestAuthService_Login(t *testing.T) {
	auth, _ := newTestAuthService(t)
	ctx := context.Background()

	if _, _, err := auth.Register(ctx, "login@example.com", "Login User", testPassword); err != nil {
		t.Fatalf("Register: %v", err)
	}

	token, err := auth.Login(ctx, "LOGIN@example.com", testPassword)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if token == "" {
		t.Fatal("expected non-empty token")
	}

	if _, err := auth.Login(ctx, "login@example.com", "Wr0ngpass"); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for wrong password, got %v", err)
	}
	if _, err := auth.Login(ctx, "nobody@example.com", testPassword); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for unknown email, got %v", err)
	}
}

func TestAuthService_Token_Claims(t *testing.T) {
	auth, users := newTestAuthService(t)
	ctx := context.Background()

	user, token, err := auth.Register(ctx, "jwt@example.com", "JWT User", testPassword)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	claims, err := auth.ValidateToken(token)
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}
	if claims.Subject != user.ID || claims.Email != user.Email || claims.Name != user.Name {
		t.Fatalf("unexpected claims %+v", claims)
	}
	if claims.ExpiresAt != nil {
		t.Fatalf("expected no exp claim with zero TTL, got %v", claims.ExpiresAt)
	}

	authed, err := auth.Authenticate(ctx, token)
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if authed.ID != user.ID {
		t.Fatalf("expected %s, got %s", user.ID, authed.ID)
	}

	if err := users.Delete(ctx, user.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := auth.Authenticate(ctx, token); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for deleted account, got %v", err)
	}
}

func TestAuthService_Token_Expiry(t *testing.T) {
	db := newTestDB(t)
	users := db.Users()
	auth := service.NewAuthService(users, testJWTSecret, 4, time.Hour)
	user := createUser(t, users, "exp@example.com")

	token, err := auth.IssueToken(user)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	claims, err := auth.ValidateToken(token)
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}
	if claims.ExpiresAt == nil || time.Until(claims.ExpiresAt.Time) > time.Hour {
		t.Fatalf("expected exp within an hour, got %v", claims.ExpiresAt)
	}

	expired := jwt.NewWithClaims(jwt.SigningMethodHS256, service.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
	})
	signed, err := expired.SignedString([]byte(testJWTSecret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := auth.ValidateToken(signed); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for expired token, got %v", err)
	}
}

func TestAuthService_Token_Rejected(t *testing.T) {
	auth, _ := newTestAuthService(t)
	ctx := context.Background()

	_, token, err := auth.Register(ctx, "tamper@example.com", "Tamper", testPassword)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	other := service.NewAuthService(nil, "a-different-secret-that-is-long-enough", 4, 0)
	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{Subject: "x"}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign none: %v", err)
	}

	tests := []struct {
		name  string
		auth  *service.AuthService
		token string
	}{
		{"garbage", auth, "not-a-valid-jwt"},
		{"tampered signature", auth, token[:len(token)-5] + "XXXXX"},
		{"wrong secret", other, token},
		{"alg none", auth, none},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := tc.auth.ValidateToken(tc.token); !errors.Is(err, domain.ErrUnauthorized) {
				t.Fatalf("expected ErrUnauthorized, got %v", err)
			}
		})
	}
}
