package queue

import "errors"

var (
	// ErrTransientPublishFailure wraps every failure reported by the publish collaborator.
	ErrTransientPublishFailure = errors.New("publish failed")
	// ErrInvalidTransition means the entry was not in a status the operation accepts.
	ErrInvalidTransition = errors.New("invalid queue entry status transition")
	// ErrAlreadyProcessing means another call in this process holds the entry.
	ErrAlreadyProcessing = errors.New("queue entry is already being processed")
	// ErrRetryExhausted means the retry policy allows no further attempts.
	ErrRetryExhausted = errors.New("retry attempts exhausted")
	// ErrBackoffPending means the entry's next retry time has not been reached.
	ErrBackoffPending = errors.New("retry backoff has not elapsed")
	// ErrEntryNotFound is returned by stores for unknown entry ids.
	ErrEntryNotFound = errors.New("queue entry not found")
	// ErrPostNotFound is returned when an entry references a missing post.
	ErrPostNotFound = errors.New("post not found")
)
