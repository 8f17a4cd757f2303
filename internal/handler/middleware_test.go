package handler_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/msomdec/murmur/internal/cache"
	"github.com/msomdec/murmur/internal/events"
	"github.com/msomdec/murmur/internal/handler"
	"github.com/msomdec/murmur/internal/repository/sqlite"
	"github.com/msomdec/murmur/internal/service"
)

const (
	testJWTSecret = "test-secret-for-handler-tests-0123456789"
	testPassword  = "Passw0rd"
)

func newTestServices(t *testing.T) handler.Services {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := sqlite.New(dbPath)
	if err != nil {
		t.Fatalf("New DB: %v", err)
	}
	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	publisher := events.Nop{}
	profiles := cache.Nop{}
	images := service.NewImageProcessor()
	auth := service.NewAuthService(db.Users(), testJWTSecret, 4, 0)
	return handler.Services{
		Auth:          auth,
		Users:         service.NewUserService(db.Users(), auth, images, profiles),
		Relationships: service.NewRelationshipService(db.Users(), publisher, profiles),
		Posts:         service.NewPostService(db.Posts(), db.FileStore(), images, publisher),
	}
}

func registerUser(t *testing.T, auth *service.AuthService, email, name string) string {
	t.Helper()
	_, token, err := auth.Register(context.Background(), email, name, testPassword)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	return token
}

func TestRequireAuth_BearerToken(t *testing.T) {
	s := newTestServices(t)
	token := registerUser(t, s.Auth, "valid@example.com", "Valid User")

	var gotUser string
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if caller, ok := handler.CallerFromContext(r.Context()); ok {
			gotUser = caller.Name
		}
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()

	handler.RequireAuth(s.Auth, inner).ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if gotUser != "Valid User" {
		t.Fatalf("expected user 'Valid User', got %q", gotUser)
	}
}

func TestRequireAuth_LegacyHeader(t *testing.T) {
	s := newTestServices(t)
	token := registerUser(t, s.Auth, "legacy@example.com", "Legacy")

	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if handler.UserFromContext(r.Context()) == nil {
			t.Fatal("expected user in context")
		}
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("x-auth-token", token)
	w := httptest.NewRecorder()

	handler.RequireAuth(s.Auth, inner).ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestRequireAuth_Rejected(t *testing.T) {
	s := newTestServices(t)
	token := registerUser(t, s.Auth, "tamper@example.com", "Tamper")

	tests := []struct {
		name   string
		header string
		value  string
	}{
		{"missing", "", ""},
		{"garbage", "Authorization", "Bearer invalid.jwt.token"},
		{"tampered", "Authorization", "Bearer " + token[:len(token)-1] + "X"},
		{"wrong scheme", "Authorization", "Basic " + token},
	}

	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("inner handler should not be called")
	})

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/protected", nil)
			if tc.header != "" {
				req.Header.Set(tc.header, tc.value)
			}
			w := httptest.NewRecorder()

			handler.RequireAuth(s.Auth, inner).ServeHTTP(w, req)

			if w.Code != http.StatusUnauthorized {
				t.Fatalf("expected 401, got %d", w.Code)
			}
		})
	}
}

func TestRateLimit(t *testing.T) {
	limiter := service.NewTokenBucket(0, 2)
	defer limiter.Stop()
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	h := handler.RateLimit(limiter, inner)

	codes := make([]int, 0, 3)
	for range 3 {
		req := httptest.NewRequest(http.MethodPost, "/api/auth", nil)
		req.RemoteAddr = "203.0.113.7:5555"
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		codes = append(codes, w.Code)
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusOK || codes[2] != http.StatusTooManyRequests {
		t.Fatalf("expected 200, 200, 429, got %v", codes)
	}

	// Another client has its own bucket.
	req := httptest.NewRequest(http.MethodPost, "/api/auth", nil)
	req.RemoteAddr = "198.51.100.1:5555"
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 for a different client, got %d", w.Code)
	}
}

func TestSecurityHeaders(t *testing.T) {
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	w := httptest.NewRecorder()
	handler.SecurityHeaders(inner).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	for header, want := range map[string]string{
		"X-Content-Type-Options": "nosniff",
		"X-Frame-Options":        "DENY",
		"Referrer-Policy":        "no-referrer",
	} {
		if got := w.Header().Get(header); got != want {
			t.Fatalf("%s: expected %q, got %q", header, want, got)
		}
	}
}
