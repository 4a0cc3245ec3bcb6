package flow

import "errors"

var (
	// ErrUnknownController is returned when a node names a controller
	// that is not configured.
	ErrUnknownController = errors.New("flow: unknown controller")

	// ErrUnknownNode is returned by Inject for an unknown node id.
	ErrUnknownNode = errors.New("flow: unknown node")

	// ErrDuplicate is returned when two controllers or two nodes share a name.
	ErrDuplicate = errors.New("flow: duplicate name")

	// ErrStopped is returned by Inject after Stop.
	ErrStopped = errors.New("flow: host stopped")
)
