package ooredoo

import "errors"

// Error taxonomy for the carrier client. Everything here is recoverable: the
// conversation stays where it was and the user may retry.
var (
	// ErrTransport marks network or timeout failures.
	ErrTransport = errors.New("transport failure")

	// ErrProtocol marks an unexpected status code from a remote endpoint.
	// The wrapped message carries the raw status and body for diagnosis.
	ErrProtocol = errors.New("unexpected backend response")

	// ErrValidation marks malformed user input, e.g. a bad phone format.
	ErrValidation = errors.New("invalid input")

	// ErrSessionExpired marks a stored access token past its advertised
	// expiry. The caller should restart the login flow.
	ErrSessionExpired = errors.New("session expired")
)
