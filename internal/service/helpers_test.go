package service_test

import (
	"context"
	"path/filepath"
	"slices"
	"sync"
	"testing"

	"github.com/msomdec/murmur/internal/domain"
	"github.com/msomdec/murmur/internal/repository/sqlite"
)

const testJWTSecret = "test-secret-key-for-unit-tests-0123456789"

func newTestDB(t *testing.T) *sqlite.DB {
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
	return db
}

func createUser(t *testing.T, users domain.UserRepository, email string) *domain.User {
	t.Helper()
	user := &domain.User{Email: email, Name: "User " + email}
	if err := users.Create(context.Background(), user); err != nil {
		t.Fatalf("Create %s: %v", email, err)
	}
	return user
}

func getUser(t *testing.T, users domain.UserRepository, id string) *domain.User {
	t.Helper()
	user, err := users.GetByID(context.Background(), id)
	if err != nil {
		t.Fatalf("GetByID %s: %v", id, err)
	}
	return user
}

type publishedEvent struct {
	Subject string
	Event   any
}

// recordingPublisher keeps every published event in memory.
type recordingPublisher struct {
	mu     sync.Mutex
	events []publishedEvent
}

func (p *recordingPublisher) Publish(_ context.Context, subject string, event any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, publishedEvent{subject, event})
	return nil
}

func (p *recordingPublisher) subjects() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for _, e := range p.events {
		out = append(out, e.Subject)
	}
	return out
}

// memoryCache is a map-backed ProfileCache that records invalidations.
type memoryCache struct {
	mu          sync.Mutex
	profiles    map[string]domain.Profile
	invalidated []string
}

func newMemoryCache() *memoryCache {
	return &memoryCache{profiles: make(map[string]domain.Profile)}
}

func (c *memoryCache) Get(_ context.Context, id string) (*domain.Profile, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.profiles[id]
	if !ok {
		return nil, false, nil
	}
	return &p, true, nil
}

func (c *memoryCache) Set(_ context.Context, p domain.Profile) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.profiles[p.ID] = p
	return nil
}

func (c *memoryCache) Invalidate(_ context.Context, ids ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range ids {
		delete(c.profiles, id)
	}
	c.invalidated = append(c.invalidated, ids...)
	return nil
}

func (c *memoryCache) wasInvalidated(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Contains(c.invalidated, id)
}

// hookedUsers wraps a UserRepository so tests can inject failures or
// concurrent interference between saga steps.
type hookedUsers struct {
	domain.UserRepository
	afterAddFollower func()
	addFollowed      func() error
	removeFollower   func() error
	removeFollowed   func() error
	addFollower      func() error
}

func (h *hookedUsers) AddFollower(ctx context.Context, id, followerID string) (*domain.User, error) {
	if h.addFollower != nil {
		if err := h.addFollower(); err != nil {
			return nil, err
		}
	}
	user, err := h.UserRepository.AddFollower(ctx, id, followerID)
	if err == nil && h.afterAddFollower != nil {
		h.afterAddFollower()
	}
	return user, err
}

func (h *hookedUsers) AddFollowed(ctx context.Context, id, followedID string, limit int) (*domain.User, error) {
	if h.addFollowed != nil {
		if err := h.addFollowed(); err != nil {
			return nil, err
		}
	}
	return h.UserRepository.AddFollowed(ctx, id, followedID, limit)
}

func (h *hookedUsers) RemoveFollower(ctx context.Context, id, followerID string) (*domain.User, error) {
	if h.removeFollower != nil {
		if err := h.removeFollower(); err != nil {
			return nil, err
		}
	}
	return h.UserRepository.RemoveFollower(ctx, id, followerID)
}

func (h *hookedUsers) RemoveFollowed(ctx context.Context, id, followedID string) (*domain.User, error) {
	if h.removeFollowed != nil {
		if err := h.removeFollowed(); err != nil {
			return nil, err
		}
	}
	return h.UserRepository.RemoveFollowed(ctx, id, followedID)
}
