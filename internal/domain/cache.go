package domain

import "context"

// ProfileCache caches public profiles keyed by user ID.
type ProfileCache interface {
	Get(ctx context.Context, id string) (*Profile, bool, error)
	Set(ctx context.Context, profile Profile) error
	Invalidate(ctx context.Context, ids ...string) error
}
