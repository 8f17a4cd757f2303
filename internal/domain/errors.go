package domain

import "errors"

var (
	ErrNotFound           = errors.New("not found")
	ErrDuplicateEmail     = errors.New("email already exists")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrInvalidInput       = errors.New("invalid input")
	ErrAlreadyFollowing   = errors.New("already following this user")
	ErrNotFollowing       = errors.New("not following this user")
	ErrFollowLimit        = errors.New("following too many users")
	ErrCompensationFailed = errors.New("compensation failed")

	// ErrNoMatch is returned by conditional updates whose predicate matched
	// no document. It is a business outcome, not a storage fault.
	ErrNoMatch = errors.New("no matching document")
)
