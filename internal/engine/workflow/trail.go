package workflow

import (
	"caseline/internal/domain"
)

// Trail collects the audit entries of one transition in append order.
// Sequence numbers are assigned when the entries are persisted.
type Trail struct {
	caseID  string
	actorID string
	at      string
	newID   func() string
	entries []domain.AuditEntry
}

func NewTrail(caseID, actorID, at string, newID func() string) *Trail {
	return &Trail{caseID: caseID, actorID: actorID, at: at, newID: newID}
}

func (t *Trail) Append(field string, oldValue, newValue, comment *string) domain.AuditEntry {
	e := domain.AuditEntry{
		ID:       t.newID(),
		CaseID:   t.caseID,
		Field:    field,
		OldValue: oldValue,
		NewValue: newValue,
		ActorID:  t.actorID,
		At:       t.at,
		Comment:  comment,
	}
	t.entries = append(t.entries, e)
	return e
}

func (t *Trail) Entries() []domain.AuditEntry { return t.entries }

func strPtr(s string) *string { return &s }
