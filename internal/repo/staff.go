package repo

import (
	"context"
	"errors"

	"caseline/internal/domain"
)

func (r Repo) UpsertStaff(ctx context.Context, q Queryer, personID string, role domain.Role, active bool, createdAt string) error {
	_, err := exec(ctx, q, `INSERT INTO staff(person_id,role,active,created_at) VALUES (?,?,?,?)
ON CONFLICT(person_id, role) DO UPDATE SET active=excluded.active`, personID, role, active, createdAt)
	return err
}

func (r Repo) SetStaffActive(ctx context.Context, q Queryer, personID string, role domain.Role, active bool) error {
	return execOne(ctx, q, `UPDATE staff SET active=? WHERE person_id=? AND role=?`, active, personID, role)
}

func (r Repo) GetStaff(ctx context.Context, q Queryer, personID string, role domain.Role) (domain.Staff, error) {
	var s domain.Staff
	err := get(ctx, q, &s, `SELECT s.person_id, s.role, s.active, p.first_names || ' ' || p.last_names AS name
FROM staff s JOIN persons p ON p.id=s.person_id WHERE s.person_id=? AND s.role=?`, personID, role)
	return s, err
}

func (r Repo) ListStaff(ctx context.Context, q Queryer, role domain.Role) ([]domain.Staff, error) {
	query := `SELECT s.person_id, s.role, s.active, p.first_names || ' ' || p.last_names AS name
FROM staff s JOIN persons p ON p.id=s.person_id`
	var args []any
	if role != "" {
		query += ` WHERE s.role=?`
		args = append(args, role)
	}
	query += ` ORDER BY p.last_names, p.first_names, s.role`
	res := []domain.Staff{}
	if err := selectAll(ctx, q, &res, query, args...); err != nil {
		return nil, err
	}
	return res, nil
}

// StaffRegistry adapts the staff table to workflow.StaffRegistry for one
// transaction.
type StaffRegistry struct {
	Repo Repo
	Q    Queryer
}

func (s StaffRegistry) LookupStaff(ctx context.Context, personID string, role domain.Role) (domain.Staff, bool, error) {
	st, err := s.Repo.GetStaff(ctx, s.Q, personID, role)
	if errors.Is(err, ErrNotFound) {
		return domain.Staff{}, false, nil
	}
	if err != nil {
		return domain.Staff{}, false, err
	}
	return st, true, nil
}
