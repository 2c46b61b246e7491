package domain

import "errors"

// Failure kinds shared across the trigger and report services. Callers match
// with errors.Is; messages carry the specifics.
var (
	ErrInvalidTrigger          = errors.New("invalid automation trigger")
	ErrInvalidResults          = errors.New("invalid results payload")
	ErrInvalidContextView      = errors.New("invalid context view")
	ErrInvalidStatusTransition = errors.New("invalid status change")
	ErrAuthorizationDenied     = errors.New("authorization denied")
)
