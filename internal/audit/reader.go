package audit

import (
	"context"

	"github.com/jmoiron/sqlx"

	"caseline/internal/domain"
)

type Reader struct{}

// List returns a case's entries newest first. Entries sharing a timestamp
// are ordered by sequence, latest first.
func (r Reader) List(ctx context.Context, q sqlx.ExtContext, caseID string, limit int) ([]domain.AuditEntry, error) {
	query := `SELECT id,case_id,seq,field,old_value,new_value,actor_id,at,comment FROM audit_entries WHERE case_id=? ORDER BY at DESC, seq DESC`
	args := []any{caseID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	res := []domain.AuditEntry{}
	if err := sqlx.SelectContext(ctx, q, &res, q.Rebind(query), args...); err != nil {
		return nil, err
	}
	return res, nil
}
