package engine

import (
	"caseline/internal/domain"
	"caseline/internal/engine/auth"
	"caseline/internal/engine/workflow"
)

// Policy returns the full action matrix. Admin only.
func (e Engine) Policy(caller workflow.Caller) ([]auth.PolicyRow, error) {
	if !auth.HasRole(caller.Roles, domain.RoleAdmin) {
		return nil, auth.ForbiddenError{Action: "VIEW_POLICY"}
	}
	return auth.Matrix(), nil
}
