package messaging

import (
	"errors"
	"fmt"
)

var (
	ErrNoActiveConversation = errors.New("no active conversation")
	ErrConversationNotFound = errors.New("conversation not found")
)

// TransportError wraps a failed gateway call. Transport failures are never
// fatal: they surface as a user-visible notice or a per-message failed flag.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport: %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
