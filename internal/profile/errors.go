package profile

import "errors"

// Domain errors for device profiles.
var (
	// ErrInvalidProfile is returned when a profile document fails schema or
	// semantic validation.
	ErrInvalidProfile = errors.New("profile: invalid profile")

	// ErrProfileNotFound is returned when a profile ID is not in the catalog.
	ErrProfileNotFound = errors.New("profile: not found")

	// ErrDuplicateProfile is returned when two documents declare the same ID.
	ErrDuplicateProfile = errors.New("profile: duplicate id")

	// ErrUnknownProperty is returned when a property name is not bound by the profile.
	ErrUnknownProperty = errors.New("profile: unknown property")
)
