package service

import "errors"

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrReviewClosed       = errors.New("review already resolved")
	ErrEventDropped       = errors.New("event dropped: queue at capacity")
	ErrInvalidRole        = errors.New("invalid role")
	ErrPlatformMismatch   = errors.New("event platform does not match authenticated client")
)
