package domain

import "errors"

var (
	// ErrUnrecognizedMessageType is returned when an inbound panel message
	// carries a type the router does not know.
	ErrUnrecognizedMessageType = errors.New("unrecognized message type")

	// ErrInvalidParameter is returned when a known message type carries a
	// parameter it cannot act on.
	ErrInvalidParameter = errors.New("invalid message parameter")

	// ErrInvalidPattern is returned when a match pattern cannot be parsed,
	// typically because a malformed entry made it into the blocklist.
	ErrInvalidPattern = errors.New("invalid match pattern")

	// ErrStorageUnavailable wraps failures of the persistent list store.
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrNoActiveTab is returned when no tab has navigated yet.
	ErrNoActiveTab = errors.New("no active tab")

	// ErrUnknownTab is returned when navigating a tab the host has no
	// in-flight request for.
	ErrUnknownTab = errors.New("unknown tab")
)
