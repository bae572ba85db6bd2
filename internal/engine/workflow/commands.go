package workflow

import (
	"github.com/shopspring/decimal"

	"caseline/internal/domain"
)

// Command is one action request. Each action has its own type.
type Command interface {
	Action() domain.Action
}

// EditData changes scalar case and client fields. Nil means untouched; an
// empty string clears an optional field.
type EditData struct {
	AttentionType     *string `json:"attention_type,omitempty"`
	AttentionPlace    *string `json:"attention_place,omitempty"`
	Comment           *string `json:"comment,omitempty"`
	ServiceID         *string `json:"service_id,omitempty"`
	CertificateStatus *string `json:"certificate_status,omitempty"`
	ClientFirstNames  *string `json:"client_first_names,omitempty"`
	ClientLastNames   *string `json:"client_last_names,omitempty"`
	ClientPhone       *string `json:"client_phone,omitempty"`
	ClientEmail       *string `json:"client_email,omitempty"`
	AdminComment      *string `json:"admin_comment,omitempty"`
}

type AssignManager struct {
	PersonID string `json:"person_id"`
}

type ChangeManager struct {
	PersonID string `json:"person_id"`
}

type RegisterPayment struct {
	Channel   string          `json:"channel"`
	PaidOn    string          `json:"paid_on"`
	Amount    decimal.Decimal `json:"amount"`
	Currency  string          `json:"currency,omitempty"`
	Reference *string         `json:"reference,omitempty"`
	Comment   *string         `json:"comment,omitempty"`
}

type AssignSpecialist struct {
	PersonID string `json:"person_id"`
}

type ChangeSpecialist struct {
	PersonID string `json:"person_id"`
}

type Close struct {
	Comment *string `json:"comment,omitempty"`
}

type Cancel struct {
	Reason *string `json:"reason,omitempty"`
}

// OverrideTarget is the closed set of commands an override may wrap.
type OverrideTarget interface {
	Command
	overrideTarget()
}

// Override applies Target's effect without its policy check or state
// preconditions. Data validity checks still apply.
type Override struct {
	Justification string
	Target        OverrideTarget
}

func (EditData) Action() domain.Action         { return domain.ActionEditData }
func (AssignManager) Action() domain.Action    { return domain.ActionAssignManager }
func (ChangeManager) Action() domain.Action    { return domain.ActionChangeManager }
func (RegisterPayment) Action() domain.Action  { return domain.ActionRegisterPayment }
func (AssignSpecialist) Action() domain.Action { return domain.ActionAssignSpecialist }
func (ChangeSpecialist) Action() domain.Action { return domain.ActionChangeSpecialist }
func (Close) Action() domain.Action            { return domain.ActionClose }
func (Cancel) Action() domain.Action           { return domain.ActionCancel }
func (Override) Action() domain.Action         { return domain.ActionOverride }

func (EditData) overrideTarget()         {}
func (ChangeManager) overrideTarget()    {}
func (ChangeSpecialist) overrideTarget() {}
func (RegisterPayment) overrideTarget()  {}
func (Close) overrideTarget()            {}
func (Cancel) overrideTarget()           {}
