package domain

import (
	"errors"
	"fmt"
)

var (
	ErrItemNotFound   = errors.New("work item not found")
	ErrDiarioNotFound = errors.New("diario not found")
	ErrInvalidURL     = errors.New("invalid URL")
	ErrMissingURL     = errors.New("work item metadata has no url")
)

// UnknownSourceError reports a lookup for a source code that was never
// registered. It signals a configuration problem, not a transient failure,
// so callers should surface it instead of queueing a retry.
type UnknownSourceError struct {
	Code string
}

func (e *UnknownSourceError) Error() string {
	return fmt.Sprintf("unknown source code %q", e.Code)
}
