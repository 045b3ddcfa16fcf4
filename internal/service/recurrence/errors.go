package recurrence

import "errors"

var (
	// ErrInvalidDefinition means a pattern-specific field is missing or malformed.
	ErrInvalidDefinition = errors.New("invalid recurrence definition")
	// ErrOutOfWindow means the scan walked past the definition's end date.
	// Callers report it as "no next occurrence".
	ErrOutOfWindow = errors.New("no occurrence within validity window")
	// ErrDefinitionNotFound is returned by stores for unknown ids.
	ErrDefinitionNotFound = errors.New("recurrence definition not found")
	// ErrInvalidRange means a requested date range is reversed or too long.
	ErrInvalidRange = errors.New("invalid date range")
)
