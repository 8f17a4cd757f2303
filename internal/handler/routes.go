package handler

import (
	"net/http"

	"github.com/msomdec/murmur/internal/service"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Services bundles what the HTTP layer needs.
type Services struct {
	Auth          *service.AuthService
	Users         *service.UserService
	Relationships *service.RelationshipService
	Posts         *service.PostService
	// Limiter throttles sign-in and sign-up per client IP. Nil disables it.
	Limiter *service.TokenBucket
}

// RegisterRoutes sets up all HTTP routes on the given mux.
func RegisterRoutes(mux *http.ServeMux, s Services) {
	authH := NewAuthHandler(s.Auth)
	userH := NewUserHandler(s.Users, s.Relationships, s.Posts)
	postH := NewPostHandler(s.Posts)

	requireAuth := func(h http.HandlerFunc) http.Handler {
		return RequireAuth(s.Auth, h)
	}
	limited := func(h http.HandlerFunc) http.Handler {
		if s.Limiter == nil {
			return h
		}
		return RateLimit(s.Limiter, h)
	}

	mux.HandleFunc("GET /healthz", HandleHealthz)
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.Handle("POST /api/auth", limited(authH.HandleLogin))
	mux.Handle("POST /api/users", limited(authH.HandleRegister))

	mux.HandleFunc("GET /api/users/{id}", userH.HandleProfile)
	mux.HandleFunc("GET /api/users/{id}/posts", userH.HandleListPosts)
	mux.Handle("PATCH /api/users/{id}", requireAuth(userH.HandleUpdate))
	mux.Handle("DELETE /api/users/{id}", requireAuth(userH.HandleDelete))
	mux.Handle("PATCH /api/users/{id}/password", requireAuth(userH.HandleChangePassword))
	mux.HandleFunc("GET /api/users/{id}/avatar", userH.HandleAvatar)
	mux.Handle("PATCH /api/users/{id}/avatar", requireAuth(userH.HandleSetAvatar))
	mux.Handle("DELETE /api/users/{id}/avatar", requireAuth(userH.HandleDeleteAvatar))
	mux.Handle("PATCH /api/users/{id}/follow", requireAuth(userH.HandleFollow))
	mux.Handle("PATCH /api/users/{id}/unfollow", requireAuth(userH.HandleUnfollow))
	mux.HandleFunc("GET /api/users/{id}/followed", userH.HandleFollowed)
	mux.HandleFunc("GET /api/users/{id}/followers", userH.HandleFollowers)

	mux.Handle("POST /api/posts", requireAuth(postH.HandleCreate))
	mux.HandleFunc("GET /api/posts/{id}", postH.HandleGet)
	mux.HandleFunc("GET /api/posts/{id}/media/{n}", postH.HandleMedia)
	mux.Handle("PATCH /api/posts/{id}/like", requireAuth(postH.HandleLike))
	mux.Handle("DELETE /api/posts/{id}", requireAuth(postH.HandleDelete))
}

// NewServer returns the full handler chain: routes wrapped with request
// instrumentation and security headers.
func NewServer(s Services) http.Handler {
	mux := http.NewServeMux()
	RegisterRoutes(mux, s)
	return SecurityHeaders(Instrument(mux))
}
