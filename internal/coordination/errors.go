package coordination

import "errors"

var (
	// ErrConnectionClosed indicates an operation on a connection after Close
	ErrConnectionClosed = errors.New("connection is closed")

	// ErrUnrecognizedFrame indicates an inbound frame carrying none of the
	// known coordination fields
	ErrUnrecognizedFrame = errors.New("unrecognized coordination frame")

	// ErrInvalidJSON indicates a frame that is not valid JSON
	ErrInvalidJSON = errors.New("invalid JSON frame")
)
