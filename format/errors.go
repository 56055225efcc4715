package format

import "errors"

// Errors returned by the formatter registry and its formatters.
var (
	// ErrUnregisteredType indicates Get was called for a type with no
	// registered formatter.
	ErrUnregisteredType = errors.New("format: unregistered type")

	// ErrSerializationLimit indicates a string or array exceeded the
	// registry's configured maximum length.
	ErrSerializationLimit = errors.New("format: serialization limit exceeded")

	// ErrInvalidNullable indicates a nullable flag byte outside {0,1}.
	ErrInvalidNullable = errors.New("format: invalid nullable flag byte")

	// ErrFrozen indicates Register was called after Freeze.
	ErrFrozen = errors.New("format: registry already frozen")
)
