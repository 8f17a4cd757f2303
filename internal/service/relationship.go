package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/msomdec/murmur/internal/domain"
	"github.com/msomdec/murmur/internal/metrics"
	"go.opentelemetry.io/otel/attribute"
)

// RelationshipService maintains the mirrored follow edge between two users.
//
// An edge lives in two documents: the follower's followed set and the
// followed user's followers set. There is no cross-document transaction, so
// Follow and Unfollow run as a two-step saga. Each step is a single-document
// conditional update, and a failed second step is compensated by reversing
// the first, so no call returns with a one-sided edge it created.
type RelationshipService struct {
	users    domain.UserRepository
	events   domain.EventPublisher
	profiles domain.ProfileCache
}

// NewRelationshipService creates a new RelationshipService.
func NewRelationshipService(users domain.UserRepository, events domain.EventPublisher, profiles domain.ProfileCache) *RelationshipService {
	return &RelationshipService{users: users, events: events, profiles: profiles}
}

// Follow makes followerID follow followedID and returns the updated follower.
//
// Errors: ErrInvalidInput for a self-follow, ErrNotFound when either user is
// missing, ErrAlreadyFollowing when the edge exists, ErrFollowLimit when the
// follower already follows MaxFollowed users.
func (s *RelationshipService) Follow(ctx context.Context, followerID, followedID string) (_ *domain.User, err error) {
	ctx, span := startSpan(ctx, "RelationshipService.Follow",
		attribute.String("follower", followerID), attribute.String("followed", followedID))
	defer func() {
		metrics.RelationshipOps.WithLabelValues("follow", outcome(err)).Inc()
		endSpan(span, err)
	}()

	if followerID == followedID {
		return nil, fmt.Errorf("%w: users cannot follow themselves", domain.ErrInvalidInput)
	}

	if _, err := s.users.FindNotFollowing(ctx, followerID, followedID); err != nil {
		if errors.Is(err, domain.ErrNoMatch) {
			return nil, s.missingOr(ctx, followerID, domain.ErrAlreadyFollowing)
		}
		return nil, fmt.Errorf("check follower: %w", err)
	}

	// Step A. A no-match on an existing user means a stale half edge is
	// already in place; it is not ours to compensate.
	added := true
	if _, err := s.users.AddFollower(ctx, followedID, followerID); err != nil {
		if !errors.Is(err, domain.ErrNoMatch) {
			return nil, fmt.Errorf("add follower: %w", err)
		}
		if _, err := s.users.GetByID(ctx, followedID); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return nil, err
			}
			return nil, fmt.Errorf("get followed user: %w", err)
		}
		added = false
	}

	// Step B.
	follower, err := s.users.AddFollowed(ctx, followerID, followedID, domain.MaxFollowed)
	if err != nil {
		cause := fmt.Errorf("add followed: %w", err)
		if errors.Is(err, domain.ErrNoMatch) {
			cause = s.classifyFollowMiss(ctx, followerID)
		}
		if added {
			cerr := s.compensate(ctx, "follow", followerID, followedID, func(ctx context.Context) error {
				_, err := s.users.RemoveFollower(ctx, followedID, followerID)
				return err
			})
			if cerr != nil {
				return nil, errors.Join(cause, cerr)
			}
		}
		return nil, cause
	}

	s.afterEdgeChange(ctx, domain.SubjectUserFollowed, followerID, followedID)
	return follower, nil
}

// Unfollow removes the edge from followerID to followedID and returns the
// updated follower. It mirrors Follow, including compensation: if the
// follower's side cannot be updated, followedID's followers entry is
// restored.
//
// Errors: ErrNotFound when the follower is missing, ErrNotFollowing when
// there is no edge to remove.
func (s *RelationshipService) Unfollow(ctx context.Context, followerID, followedID string) (_ *domain.User, err error) {
	ctx, span := startSpan(ctx, "RelationshipService.Unfollow",
		attribute.String("follower", followerID), attribute.String("followed", followedID))
	defer func() {
		metrics.RelationshipOps.WithLabelValues("unfollow", outcome(err)).Inc()
		endSpan(span, err)
	}()

	if _, err := s.users.FindFollowing(ctx, followerID, followedID); err != nil {
		if errors.Is(err, domain.ErrNoMatch) {
			return nil, s.missingOr(ctx, followerID, domain.ErrNotFollowing)
		}
		return nil, fmt.Errorf("check follower: %w", err)
	}

	// Step A. A no-match means the followed user is gone or never recorded
	// the follower; the follower's dangling entry is still removed below.
	removed := true
	if _, err := s.users.RemoveFollower(ctx, followedID, followerID); err != nil {
		if !errors.Is(err, domain.ErrNoMatch) {
			return nil, fmt.Errorf("remove follower: %w", err)
		}
		removed = false
	}

	// Step B.
	follower, err := s.users.RemoveFollowed(ctx, followerID, followedID)
	if err != nil {
		cause := fmt.Errorf("remove followed: %w", err)
		if errors.Is(err, domain.ErrNoMatch) {
			cause = s.missingOr(ctx, followerID, domain.ErrNotFollowing)
		}
		if removed {
			cerr := s.compensate(ctx, "unfollow", followerID, followedID, func(ctx context.Context) error {
				_, err := s.users.AddFollower(ctx, followedID, followerID)
				return err
			})
			if cerr != nil {
				return nil, errors.Join(cause, cerr)
			}
		}
		return nil, cause
	}

	s.afterEdgeChange(ctx, domain.SubjectUserUnfollowed, followerID, followedID)
	return follower, nil
}

// ListFollowed returns the IDs userID follows.
func (s *RelationshipService) ListFollowed(ctx context.Context, userID string) ([]string, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return user.Followed, nil
}

// ListFollowers returns the IDs following userID.
func (s *RelationshipService) ListFollowers(ctx context.Context, userID string) ([]string, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return user.Followers, nil
}

// compensate runs undo on a context detached from the caller's cancellation.
// A no-match counts as success: the state undo would restore is already in
// place.
func (s *RelationshipService) compensate(ctx context.Context, op, followerID, followedID string, undo func(context.Context) error) error {
	err := undo(context.WithoutCancel(ctx))
	if err == nil || errors.Is(err, domain.ErrNoMatch) {
		metrics.Compensations.WithLabelValues(op, "ok").Inc()
		slog.Warn("relationship step compensated", "op", op, "follower", followerID, "followed", followedID)
		return nil
	}

	metrics.Compensations.WithLabelValues(op, "failed").Inc()
	slog.Error("relationship compensation failed", "op", op, "follower", followerID, "followed", followedID, "error", err)
	return fmt.Errorf("%w: %s %s -> %s: %v", domain.ErrCompensationFailed, op, followerID, followedID, err)
}

// missingOr returns ErrNotFound when userID does not exist and conflict
// otherwise.
func (s *RelationshipService) missingOr(ctx context.Context, userID string, conflict error) error {
	if _, err := s.users.GetByID(ctx, userID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return err
		}
		return fmt.Errorf("get user: %w", err)
	}
	return conflict
}

// classifyFollowMiss explains why the follower-side add matched nothing.
func (s *RelationshipService) classifyFollowMiss(ctx context.Context, followerID string) error {
	follower, err := s.users.GetByID(ctx, followerID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return err
		}
		return fmt.Errorf("get follower: %w", err)
	}
	if follower.FollowedCount >= domain.MaxFollowed {
		return domain.ErrFollowLimit
	}
	return domain.ErrAlreadyFollowing
}

func (s *RelationshipService) afterEdgeChange(ctx context.Context, subject, followerID, followedID string) {
	if err := s.profiles.Invalidate(ctx, followerID, followedID); err != nil {
		slog.Warn("invalidate cached profiles", "follower", followerID, "followed", followedID, "error", err)
	}

	event := domain.FollowEvent{FollowerID: followerID, FollowedID: followedID, Timestamp: time.Now().UTC()}
	if err := s.events.Publish(ctx, subject, event); err != nil {
		slog.Warn("publish relationship event", "subject", subject, "error", err)
	}
}
