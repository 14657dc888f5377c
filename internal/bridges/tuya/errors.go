package tuya

import "errors"

// Domain errors for the Tuya bridge package.
var (
	// ErrInvalidCommand is returned when a command message cannot be parsed
	// or carries no action.
	ErrInvalidCommand = errors.New("tuya bridge: invalid command")

	// ErrNoProfile is returned when a device has no configured profile and
	// detection found no full match.
	ErrNoProfile = errors.New("tuya bridge: no matching profile")

	// ErrNotStarted is returned by operations that need a running bridge.
	ErrNotStarted = errors.New("tuya bridge: not started")
)
