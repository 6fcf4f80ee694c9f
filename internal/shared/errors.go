package shared

import "errors"

var (
	// ErrSessionCollision occurs when a freshly generated session id is already taken.
	ErrSessionCollision = errors.New("session id collision")
	// ErrSessionCorrupt occurs when a stored session payload cannot be decoded.
	ErrSessionCorrupt = errors.New("session payload corrupt")
)
