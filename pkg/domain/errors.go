package domain

import "errors"

// Common domain errors
var (
	ErrUserNotFound  = errors.New("user not found")
	ErrNoKnownIssue  = errors.New("no known issue match")
	ErrConfigInvalid = errors.New("invalid configuration")
)
