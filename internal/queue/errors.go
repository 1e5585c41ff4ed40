package queue

import (
	"errors"
	"fmt"
)

// ErrAlreadyQueued marks an enqueue whose external id is already present.
var ErrAlreadyQueued = errors.New("item already queued")

// TransitionError reports an attempted illegal status transition. It
// indicates a caller bug, not an environmental failure, and is never
// swallowed.
type TransitionError struct {
	ID   int64
	From Status
	To   Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("illegal transition for item %d: %s -> %s", e.ID, e.From, e.To)
}
