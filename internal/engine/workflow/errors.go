package workflow

import (
	"fmt"

	"caseline/internal/domain"
)

// ValidationError reports bad input shape. No mutation is performed.
type ValidationError struct {
	Field  string
	Reason string
}

func (e ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// ConflictError reports a precondition that the current case state violates.
type ConflictError struct {
	Action domain.Action
	Reason string
}

func (e ConflictError) Error() string {
	return fmt.Sprintf("%s rejected: %s", e.Action, e.Reason)
}
