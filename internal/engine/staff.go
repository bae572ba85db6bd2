package engine

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"caseline/internal/domain"
	"caseline/internal/engine/auth"
	"caseline/internal/engine/workflow"
)

type StaffInput struct {
	Person PersonInput `json:"person"`
	Role   string      `json:"role" validate:"required,oneof=OPERATOR MANAGER SPECIALIST" enum:"OPERATOR,MANAGER,SPECIALIST"`
}

// RegisterStaff enables a person for a functional role, creating the person
// when the document is unknown. Registering again reactivates.
func (e Engine) RegisterStaff(ctx context.Context, in StaffInput, caller workflow.Caller) (domain.Staff, error) {
	if !auth.HasRole(caller.Roles, domain.RoleAdmin) {
		return domain.Staff{}, auth.ForbiddenError{Action: "REGISTER_STAFF"}
	}
	if err := validateStruct(in); err != nil {
		return domain.Staff{}, err
	}
	role := domain.Role(in.Role)
	ts := e.now().UTC().Format(time.RFC3339)

	tx, err := e.DB.BeginTxx(ctx, nil)
	if err != nil {
		return domain.Staff{}, AtomicityError{Op: "begin register staff", Err: err}
	}
	defer tx.Rollback()

	p, err := e.findOrCreatePerson(ctx, tx, in.Person, ts)
	if err != nil {
		return domain.Staff{}, err
	}
	if err := e.Repo.UpsertStaff(ctx, tx, p.ID, role, true, ts); err != nil {
		return domain.Staff{}, AtomicityError{Op: "upsert staff", Err: err}
	}
	if err := tx.Commit(); err != nil {
		return domain.Staff{}, AtomicityError{Op: "commit register staff", Err: err}
	}
	e.log().Info("staff registered", zap.String("person_id", p.ID), zap.String("role", string(role)))
	return domain.Staff{PersonID: p.ID, Name: p.DisplayName(), Role: role, Active: true}, nil
}

// SetStaffActive toggles a staff record. Existing assignments are kept; an
// inactive person simply cannot be assigned again.
func (e Engine) SetStaffActive(ctx context.Context, personID string, role domain.Role, active bool, caller workflow.Caller) error {
	if !auth.HasRole(caller.Roles, domain.RoleAdmin) {
		return auth.ForbiddenError{Action: "REGISTER_STAFF"}
	}
	if !role.IsFunctional() {
		return workflow.ValidationError{Field: "role", Reason: fmt.Sprintf("%s is not a staff role", role)}
	}
	if err := e.Repo.SetStaffActive(ctx, e.DB, personID, role, active); err != nil {
		return fmt.Errorf("staff %s/%s: %w", personID, role, err)
	}
	e.log().Info("staff updated", zap.String("person_id", personID), zap.String("role", string(role)), zap.Bool("active", active))
	return nil
}

func (e Engine) ListStaff(ctx context.Context, role domain.Role) ([]domain.Staff, error) {
	return e.Repo.ListStaff(ctx, e.DB, role)
}

func (e Engine) ListServices(ctx context.Context) ([]domain.Service, error) {
	return e.Repo.ListServices(ctx, e.DB)
}
