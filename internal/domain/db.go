package domain

import "context"

// Database defines lifecycle operations for the underlying document store
// and hands out its repositories. Each implementation (SQLite, MongoDB) owns
// its own schema and migration strategy, so the backend is swappable.
type Database interface {
	Migrate(ctx context.Context) error
	Close() error
	Users() UserRepository
	Posts() PostRepository
	FileStore() FileStore
}
