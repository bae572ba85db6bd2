package repo

import (
	"context"

	"caseline/internal/domain"
)

// ListAssignments returns the full assignment history of a case, oldest
// first, with the holder's display name.
func (r Repo) ListAssignments(ctx context.Context, q Queryer, caseID string) ([]domain.Assignment, error) {
	res := []domain.Assignment{}
	err := selectAll(ctx, q, &res, `SELECT a.id,a.case_id,a.person_id,a.role,a.is_current,a.assigned_by,a.assigned_at,
a.superseded_by,a.superseded_at, p.first_names || ' ' || p.last_names AS person_name
FROM assignments a JOIN persons p ON p.id=a.person_id
WHERE a.case_id=? ORDER BY a.assigned_at, a.id`, caseID)
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (r Repo) InsertAssignment(ctx context.Context, q Queryer, a domain.Assignment) error {
	_, err := exec(ctx, q, `INSERT INTO assignments(id,case_id,person_id,role,is_current,assigned_by,assigned_at,superseded_by,superseded_at)
VALUES (?,?,?,?,?,?,?,?,?)`,
		a.ID, a.CaseID, a.PersonID, a.Role, a.IsCurrent, a.AssignedBy, a.AssignedAt, a.SupersededBy, a.SupersededAt)
	return err
}

// SupersedeAssignment flips a current assignment to not-current. It fails
// with ErrNotFound when the row is no longer current.
func (r Repo) SupersedeAssignment(ctx context.Context, q Queryer, a domain.Assignment) error {
	return execOne(ctx, q, `UPDATE assignments SET is_current=FALSE, superseded_by=?, superseded_at=? WHERE id=? AND is_current=TRUE`,
		a.SupersededBy, a.SupersededAt, a.ID)
}
