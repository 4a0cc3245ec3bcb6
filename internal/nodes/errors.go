package nodes

import "errors"

var (
	// ErrNoTopic is reported when no item or command topic could be resolved.
	ErrNoTopic = errors.New("nodes: no topic specified")

	// ErrNoPayload is reported when no payload could be resolved.
	ErrNoPayload = errors.New("nodes: no payload specified")

	// ErrUnknownType is returned by New for an unregistered node type.
	ErrUnknownType = errors.New("nodes: unknown node type")

	// ErrInvalidSettings is returned by New when settings cannot be used.
	ErrInvalidSettings = errors.New("nodes: invalid settings")
)
