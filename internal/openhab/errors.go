package openhab

import "errors"

// Sentinel errors for controller operations.
var (
	// ErrMalformedMessage is returned when a stream message cannot be decoded
	// or does not carry an item topic.
	ErrMalformedMessage = errors.New("openhab: malformed event message")

	// ErrUnexpectedStatus is returned when a REST call answers outside 200..210.
	ErrUnexpectedStatus = errors.New("openhab: unexpected response status")

	// ErrServiceUnavailable is returned when the server answers 503, which
	// openHAB does while it is still starting.
	ErrServiceUnavailable = errors.New("openhab: service unavailable")

	// ErrRequestFailed wraps transport failures of REST calls.
	ErrRequestFailed = errors.New("openhab: request failed")

	// ErrStreamClosed is reported when the server ends the event stream.
	ErrStreamClosed = errors.New("openhab: event stream closed")

	// ErrControllerClosed is returned for work submitted after Stop.
	ErrControllerClosed = errors.New("openhab: controller closed")

	// ErrInvalidConfig is returned by NewController for unusable options.
	ErrInvalidConfig = errors.New("openhab: invalid controller configuration")
)
