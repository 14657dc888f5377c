package tuya

import "errors"

// Domain errors for the Tuya local protocol package.
var (
	// ErrProtocol is returned when a frame cannot be parsed, verified,
	// decrypted or decoded. Frames failing with ErrProtocol never reach
	// any cache.
	ErrProtocol = errors.New("tuya: protocol error")

	// ErrConnection is returned when the transport is unreachable,
	// times out or drops mid-request.
	ErrConnection = errors.New("tuya: connection error")

	// ErrNotConnected is returned when a request is issued on a closed connection.
	ErrNotConnected = errors.New("tuya: not connected")

	// ErrInvalidKey is returned when the local key is not 16 bytes long.
	ErrInvalidKey = errors.New("tuya: local key must be 16 bytes")

	// ErrUnsupportedVersion is returned for protocol versions other than 3.3.
	ErrUnsupportedVersion = errors.New("tuya: unsupported protocol version")

	// ErrFrameTooLarge is returned when a frame length exceeds maxFrameSize.
	// The stream cannot be resynchronised, so the connection is dropped.
	ErrFrameTooLarge = errors.New("tuya: frame too large")
)
