package auth

import (
	"fmt"

	"caseline/internal/domain"
)

// ForbiddenError indicates the caller's roles do not allow the action in the
// case's current operational state.
type ForbiddenError struct {
	Action domain.Action
	State  domain.OperationalState
}

func (e ForbiddenError) Error() string {
	if e.State == "" {
		return fmt.Sprintf("action %s not allowed", e.Action)
	}
	return fmt.Sprintf("action %s not allowed in state %s", e.Action, e.State)
}

// Authorize returns ForbiddenError unless one of roles allows action in state.
func Authorize(roles []domain.Role, state domain.OperationalState, action domain.Action) error {
	if !IsAllowed(roles, state, action) {
		return ForbiddenError{Action: action, State: state}
	}
	return nil
}

// ParseRoles parses caller role names, rejecting unknown ones and dropping duplicates.
func ParseRoles(names []string) ([]domain.Role, error) {
	seen := map[domain.Role]bool{}
	roles := make([]domain.Role, 0, len(names))
	for _, n := range names {
		r, err := domain.ParseRole(n)
		if err != nil {
			return nil, err
		}
		if seen[r] {
			continue
		}
		seen[r] = true
		roles = append(roles, r)
	}
	return roles, nil
}

func HasRole(roles []domain.Role, want domain.Role) bool {
	for _, r := range roles {
		if r == want {
			return true
		}
	}
	return false
}
