package device

import (
	"errors"

	"github.com/nerrad567/localtuya-core/internal/profile"
)

// Domain errors for the device package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, device.ErrDeviceNotFound) {
//	    // handle not found case
//	}
var (
	// ErrDeviceNotFound is returned when a device ID is not registered.
	ErrDeviceNotFound = errors.New("device: not found")

	// ErrDeviceExists is returned when registering a device ID twice.
	ErrDeviceExists = errors.New("device: already exists")

	// ErrInvalidIdentity is returned when a device identity is incomplete.
	ErrInvalidIdentity = errors.New("device: invalid identity")

	// ErrClientClosed is returned by operations on a closed client, and to
	// write awaiters whose batch was still pending at Close.
	ErrClientClosed = errors.New("device: client closed")

	// ErrUnknownProperty is returned when the profile does not expose a property.
	ErrUnknownProperty = profile.ErrUnknownProperty
)

// ErrInvalidOptions is returned when client options are inconsistent.
var ErrInvalidOptions = errors.New("device: invalid options")
