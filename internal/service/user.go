package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/msomdec/murmur/internal/domain"
	"github.com/msomdec/murmur/internal/metrics"
	"golang.org/x/sync/singleflight"
)

// UserService manages account profiles and avatars.
type UserService struct {
	users    domain.UserRepository
	auth     *AuthService
	images   *ImageProcessor
	profiles domain.ProfileCache
	flight   singleflight.Group
}

// NewUserService creates a new UserService.
func NewUserService(users domain.UserRepository, auth *AuthService, images *ImageProcessor, profiles domain.ProfileCache) *UserService {
	return &UserService{users: users, auth: auth, images: images, profiles: profiles}
}

// Profile returns the public profile of id. Profiles are served from the
// cache when possible; concurrent misses for the same ID share one load.
func (s *UserService) Profile(ctx context.Context, id string) (*domain.Profile, error) {
	cached, ok, err := s.profiles.Get(ctx, id)
	if err != nil {
		slog.Warn("read cached profile", "user", id, "error", err)
	}
	if ok {
		metrics.ProfileCacheLookups.WithLabelValues("hit").Inc()
		return cached, nil
	}
	metrics.ProfileCacheLookups.WithLabelValues("miss").Inc()

	// The load is shared by every caller waiting on id, so one caller's
	// cancellation must not fail the others.
	loadCtx := context.WithoutCancel(ctx)
	v, err, _ := s.flight.Do(id, func() (any, error) {
		user, err := s.users.GetByID(loadCtx, id)
		if err != nil {
			return nil, err
		}
		profile := user.Profile()
		if err := s.profiles.Set(loadCtx, profile); err != nil {
			slog.Warn("cache profile", "user", id, "error", err)
		}
		return &profile, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*domain.Profile), nil
}

// Update changes the email and name of account id. When callers update
// themselves the returned token carries the new claims; otherwise it is
// empty.
func (s *UserService) Update(ctx context.Context, caller domain.Caller, id, email, name string) (string, error) {
	if !caller.CanManageUser(id) {
		return "", domain.ErrForbidden
	}

	in := AccountInput{Email: email, Name: name}
	in.normalize()
	if err := validateStruct(in); err != nil {
		return "", err
	}

	user, err := s.users.Update(ctx, id, in.Email, in.Name)
	if err != nil {
		return "", err
	}
	s.invalidate(ctx, id)

	if caller.ID != id {
		return "", nil
	}
	token, err := s.auth.IssueToken(user)
	if err != nil {
		return "", fmt.Errorf("issue token: %w", err)
	}
	return token, nil
}

// ChangePassword sets a new password. Users may only change their own.
func (s *UserService) ChangePassword(ctx context.Context, caller domain.Caller, id, password string) error {
	if caller.ID != id {
		return domain.ErrForbidden
	}
	_, err := s.auth.SetPassword(ctx, id, password)
	return err
}

// Avatar returns the avatar of id, or nil when none is set.
func (s *UserService) Avatar(ctx context.Context, id string) ([]byte, error) {
	return s.users.GetAvatar(ctx, id)
}

// SetAvatar resizes data and stores it as the avatar of id. Users may only
// change their own avatar.
func (s *UserService) SetAvatar(ctx context.Context, caller domain.Caller, id string, data []byte) error {
	if caller.ID != id {
		return domain.ErrForbidden
	}
	avatar, err := s.images.Avatar(data)
	if err != nil {
		return err
	}
	return s.users.SetAvatar(ctx, id, avatar)
}

// DeleteAvatar clears the avatar of id.
func (s *UserService) DeleteAvatar(ctx context.Context, caller domain.Caller, id string) error {
	if !caller.CanManageUser(id) {
		return domain.ErrForbidden
	}
	return s.users.SetAvatar(ctx, id, nil)
}

// Delete removes account id. Follow edges pointing at it are left in place
// and are cleaned up lazily by Unfollow.
func (s *UserService) Delete(ctx context.Context, caller domain.Caller, id string) error {
	if !caller.CanManageUser(id) {
		return domain.ErrForbidden
	}
	if err := s.users.Delete(ctx, id); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return err
		}
		return fmt.Errorf("delete user: %w", err)
	}
	s.invalidate(ctx, id)
	return nil
}

func (s *UserService) invalidate(ctx context.Context, id string) {
	if err := s.profiles.Invalidate(ctx, id); err != nil {
		slog.Warn("invalidate cached profile", "user", id, "error", err)
	}
}
