package workflow

import (
	"caseline/internal/domain"
)

// AssignmentChange describes one ledger operation. Previous is nil when the
// role had no current holder.
type AssignmentChange struct {
	Previous     *domain.Assignment
	Current      domain.Assignment
	PreviousName *string
	CurrentName  string
}

// Ledger keeps at most one current assignment per role on an aggregate and
// records which rows were superseded or inserted so they can be persisted
// in that order.
type Ledger struct {
	agg        *Aggregate
	newID      func() string
	superseded []domain.Assignment
	inserted   []domain.Assignment
}

func NewLedger(agg *Aggregate, newID func() string) *Ledger {
	return &Ledger{agg: agg, newID: newID}
}

// Assign supersedes the current holder of staff.Role and makes staff the
// current holder. The caller has already checked the staff registry.
// Re-assigning the current holder is allowed and still recorded.
func (l *Ledger) Assign(staff domain.Staff, actorID, at string) AssignmentChange {
	var change AssignmentChange
	for i := range l.agg.Assignments {
		a := &l.agg.Assignments[i]
		if a.Role != staff.Role || !a.IsCurrent {
			continue
		}
		a.IsCurrent = false
		a.SupersededBy = &actorID
		a.SupersededAt = &at
		prev := *a
		name := prev.PersonName
		if name == "" {
			name = prev.PersonID
		}
		change.Previous = &prev
		change.PreviousName = &name
		l.superseded = append(l.superseded, prev)
	}
	next := domain.Assignment{
		ID:         l.newID(),
		CaseID:     l.agg.Case.ID,
		PersonID:   staff.PersonID,
		PersonName: staff.Name,
		Role:       staff.Role,
		IsCurrent:  true,
		AssignedBy: actorID,
		AssignedAt: at,
	}
	l.agg.Assignments = append(l.agg.Assignments, next)
	l.inserted = append(l.inserted, next)
	change.Current = next
	change.CurrentName = staff.Name
	if change.CurrentName == "" {
		change.CurrentName = staff.PersonID
	}
	return change
}

// Superseded lists assignments flipped to not-current, in order.
func (l *Ledger) Superseded() []domain.Assignment { return l.superseded }

// Inserted lists new current assignments, in order.
func (l *Ledger) Inserted() []domain.Assignment { return l.inserted }
