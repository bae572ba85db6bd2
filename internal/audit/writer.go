// Package audit persists case audit entries. The store is append-only: it
// exposes no update or delete.
package audit

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"caseline/internal/domain"
)

type Writer struct{}

// Append inserts entries in order inside the caller's transaction. Each gets
// the next per-case sequence number. A timestamp earlier than the case's
// latest entry is raised to it so the trail never goes backwards. The
// stored entries are returned.
func (w Writer) Append(ctx context.Context, tx sqlx.ExtContext, entries ...domain.AuditEntry) ([]domain.AuditEntry, error) {
	out := make([]domain.AuditEntry, 0, len(entries))
	for _, e := range entries {
		var last struct {
			Seq int64   `db:"seq"`
			At  *string `db:"at"`
		}
		err := sqlx.GetContext(ctx, tx, &last, tx.Rebind(`SELECT COALESCE(MAX(seq),0) AS seq, MAX(at) AS at FROM audit_entries WHERE case_id=?`), e.CaseID)
		if err != nil {
			return nil, fmt.Errorf("read audit position for case %s: %w", e.CaseID, err)
		}
		e.Seq = last.Seq + 1
		if last.At != nil && e.At < *last.At {
			e.At = *last.At
		}
		_, err = tx.ExecContext(ctx, tx.Rebind(`INSERT INTO audit_entries(id,case_id,seq,field,old_value,new_value,actor_id,at,comment) VALUES (?,?,?,?,?,?,?,?,?)`),
			e.ID, e.CaseID, e.Seq, e.Field, e.OldValue, e.NewValue, e.ActorID, e.At, e.Comment)
		if err != nil {
			return nil, fmt.Errorf("append audit %s for case %s: %w", e.Field, e.CaseID, err)
		}
		out = append(out, e)
	}
	return out, nil
}
