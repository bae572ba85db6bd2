package domain

import (
	"fmt"
	"strings"
)

type AttentionStatus string

const (
	AttentionRegistered AttentionStatus = "REGISTERED"
	AttentionInProgress AttentionStatus = "IN_PROGRESS"
	AttentionAttended   AttentionStatus = "ATTENDED"
	AttentionObserved   AttentionStatus = "OBSERVED"
	AttentionCancelled  AttentionStatus = "CANCELLED"
)

type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "PENDING"
	PaymentPaid     PaymentStatus = "PAID"
	PaymentObserved PaymentStatus = "OBSERVED"
)

const (
	CertificateApproved = "APPROVED"
	CertificateObserved = "OBSERVED"
)

const (
	AttentionVirtual  = "VIRTUAL"
	AttentionInPerson = "IN_PERSON"
)

const (
	TariffFromService  = "SERVICE"
	TariffFromOverride = "OVERRIDE"
)

var DocumentTypes = []string{"DNI", "CE", "PASSPORT", "RUC"}

// PromoterKind says how a promoter is identified: a person by document, a
// company by business name, or a free-form name.
type PromoterKind string

const (
	PromoterPerson  PromoterKind = "PERSON"
	PromoterCompany PromoterKind = "COMPANY"
	PromoterOther   PromoterKind = "OTHER"
)

// Role is a caller capability. ADMIN is never assigned to a case; the other
// roles are both caller roles and functional roles held through assignments.
type Role string

const (
	RoleAdmin      Role = "ADMIN"
	RoleOperator   Role = "OPERATOR"
	RoleManager    Role = "MANAGER"
	RoleSpecialist Role = "SPECIALIST"
)

var AllRoles = []Role{RoleAdmin, RoleOperator, RoleManager, RoleSpecialist}

// IsFunctional reports whether the role can be held on a case through the
// assignment ledger.
func (r Role) IsFunctional() bool {
	return r == RoleOperator || r == RoleManager || r == RoleSpecialist
}

type Action string

const (
	ActionEditData         Action = "EDIT_DATA"
	ActionAssignManager    Action = "ASSIGN_MANAGER"
	ActionChangeManager    Action = "CHANGE_MANAGER"
	ActionRegisterPayment  Action = "REGISTER_PAYMENT"
	ActionAssignSpecialist Action = "ASSIGN_SPECIALIST"
	ActionChangeSpecialist Action = "CHANGE_SPECIALIST"
	ActionClose            Action = "CLOSE"
	ActionCancel           Action = "CANCEL"
	ActionOverride         Action = "OVERRIDE"
)

var AllActions = []Action{
	ActionEditData,
	ActionAssignManager,
	ActionChangeManager,
	ActionRegisterPayment,
	ActionAssignSpecialist,
	ActionChangeSpecialist,
	ActionClose,
	ActionCancel,
	ActionOverride,
}

// OperationalState is derived from persisted attributes and never stored.
type OperationalState string

const (
	StateRegistered         OperationalState = "REGISTERED"
	StateManagerAssigned    OperationalState = "MANAGER_ASSIGNED"
	StatePaid               OperationalState = "PAID"
	StateSpecialistAssigned OperationalState = "SPECIALIST_ASSIGNED"
	StateClosed             OperationalState = "CLOSED"
	StateCancelled          OperationalState = "CANCELLED"
)

var AllStates = []OperationalState{
	StateRegistered,
	StateManagerAssigned,
	StatePaid,
	StateSpecialistAssigned,
	StateClosed,
	StateCancelled,
}

func (s OperationalState) Terminal() bool {
	return s == StateClosed || s == StateCancelled
}

func ParseRole(s string) (Role, error) {
	r := Role(strings.ToUpper(strings.TrimSpace(s)))
	for _, known := range AllRoles {
		if r == known {
			return r, nil
		}
	}
	return "", fmt.Errorf("unknown role %q", s)
}

func ParseAction(s string) (Action, error) {
	a := Action(strings.ToUpper(strings.TrimSpace(s)))
	for _, known := range AllActions {
		if a == known {
			return a, nil
		}
	}
	return "", fmt.Errorf("unknown action %q", s)
}

func ParseState(s string) (OperationalState, error) {
	st := OperationalState(strings.ToUpper(strings.TrimSpace(s)))
	for _, known := range AllStates {
		if st == known {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown operational state %q", s)
}

func ValidAttentionStatus(s string) bool {
	switch AttentionStatus(s) {
	case AttentionRegistered, AttentionInProgress, AttentionAttended, AttentionObserved, AttentionCancelled:
		return true
	}
	return false
}

func ValidCertificateStatus(s string) bool {
	return s == CertificateApproved || s == CertificateObserved
}

func ValidAttentionType(s string) bool {
	return s == AttentionVirtual || s == AttentionInPerson
}

func ValidDocumentType(s string) bool {
	for _, t := range DocumentTypes {
		if s == t {
			return true
		}
	}
	return false
}
