// Package workflow derives operational state and applies case transitions
// over an in-memory aggregate. It performs no I/O of its own: staff and
// service lookups are injected, and persistence belongs to the caller.
package workflow

import (
	"caseline/internal/domain"
)

// Derive classifies a case. The first matching rule wins, so CANCELLED and
// CLOSED absorb any assignment or payment facts.
func Derive(attention domain.AttentionStatus, payment domain.PaymentStatus, hasCurrentManager, hasCurrentSpecialist bool) domain.OperationalState {
	switch {
	case attention == domain.AttentionCancelled:
		return domain.StateCancelled
	case attention == domain.AttentionAttended:
		return domain.StateClosed
	case payment == domain.PaymentPaid && hasCurrentSpecialist:
		return domain.StateSpecialistAssigned
	case payment == domain.PaymentPaid:
		return domain.StatePaid
	case hasCurrentManager:
		return domain.StateManagerAssigned
	default:
		return domain.StateRegistered
	}
}

// Aggregate is a case with everything the executor reads or mutates.
// Assignments holds the full history, current and superseded.
type Aggregate struct {
	Case        domain.Case
	Client      domain.Person
	Assignments []domain.Assignment
	Payments    []domain.Payment
}

func (a Aggregate) State() domain.OperationalState {
	return Derive(a.Case.AttentionStatus, a.Case.PaymentStatus,
		a.Current(domain.RoleManager) != nil, a.Current(domain.RoleSpecialist) != nil)
}

// Current returns the current holder of role, or nil.
func (a Aggregate) Current(role domain.Role) *domain.Assignment {
	for i := range a.Assignments {
		if a.Assignments[i].Role == role && a.Assignments[i].IsCurrent {
			return &a.Assignments[i]
		}
	}
	return nil
}

func (a Aggregate) clone() Aggregate {
	out := a
	out.Assignments = append([]domain.Assignment(nil), a.Assignments...)
	out.Payments = append([]domain.Payment(nil), a.Payments...)
	return out
}
