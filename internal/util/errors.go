package util

import "errors"

var (
	ErrUserNotFound      = errors.New("user not found")
	ErrEmailRegistered   = errors.New("email already registered")
	ErrInvalidCredential = errors.New("invalid email or password")
	ErrPermissionDenied  = errors.New("permission denied")

	ErrInvalidModule   = errors.New("unknown module type")
	ErrInvalidActivity = errors.New("activity id is required")
	ErrInvalidScore    = errors.New("score, duration and accuracy must be within range")
	ErrInvalidDetails  = errors.New("attempt details do not match module type")
	ErrPersistence     = errors.New("failed to persist activity")

	ErrNotificationNotFound = errors.New("notification not found")
	ErrNotLinked            = errors.New("patient is not linked to this doctor")
	ErrInvalidPatient       = errors.New("patient must be an existing child account")

	ErrInvalidFilter    = errors.New("invalid realtime filter")
	ErrChannelClosed    = errors.New("realtime channel closed")
	ErrRealtimeDisabled = errors.New("realtime provider unavailable")
)
