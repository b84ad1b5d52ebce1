package chat

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidRequest is terminal: the caller must not retry the same input.
	ErrInvalidRequest = errors.New("chat: invalid request")
	ErrSelfContact    = fmt.Errorf("%w: cannot contact yourself", ErrInvalidRequest)

	ErrValidation  = fmt.Errorf("%w: validation failed", ErrInvalidRequest)
	ErrEmptyBody   = fmt.Errorf("%w: message body is empty", ErrValidation)
	ErrBodyTooLong = fmt.Errorf("%w: message body is too long", ErrValidation)
	ErrBadCursor   = fmt.Errorf("%w: malformed cursor", ErrValidation)

	ErrNotParticipant       = errors.New("chat: user is not a participant in the conversation")
	ErrConversationNotFound = errors.New("chat: conversation not found")

	// ErrRaceLost is returned by stores when a conditional write lost against a
	// concurrent writer. The resolver recovers from it by re-reading.
	ErrRaceLost = errors.New("chat: concurrent write won the race")

	// ErrTransientStore marks infrastructure failures. It is the only retryable class.
	ErrTransientStore = errors.New("chat: store unavailable")
)

func transient(err error) error {
	return fmt.Errorf("%w: %v", ErrTransientStore, err)
}

// IsRetryable reports whether the caller may safely retry the operation.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransientStore)
}
