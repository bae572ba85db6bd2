package workflow

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"caseline/internal/domain"
	"caseline/internal/engine/auth"
)

// StaffRegistry resolves a person's staff record for a role. found is false
// when the person has never been staff with that role.
type StaffRegistry interface {
	LookupStaff(ctx context.Context, personID string, role domain.Role) (staff domain.Staff, found bool, err error)
}

type ServiceCatalog interface {
	LookupService(ctx context.Context, id string) (svc domain.Service, found bool, err error)
}

// Caller identifies who executes a transition and with which roles.
type Caller struct {
	PersonID string
	Roles    []domain.Role
}

// Result is the authoritative outcome of a transition. Aggregate is the
// updated case; the remaining fields describe what must be persisted.
type Result struct {
	Aggregate     Aggregate
	Before        domain.OperationalState
	After         domain.OperationalState
	Entries       []domain.AuditEntry
	Superseded    []domain.Assignment
	Inserted      []domain.Assignment
	Payment       *domain.Payment
	CaseChanged   bool
	ClientChanged bool
}

// Changed reports whether the transition produced anything to persist.
func (r Result) Changed() bool {
	return len(r.Entries) > 0 || r.CaseChanged || r.ClientChanged
}

type Executor struct {
	Staff      StaffRegistry
	Services   ServiceCatalog
	Currencies []string
	NewID      func() string
}

var validate = validator.New()

// Execute derives the case state, authorizes the caller, checks the
// action's preconditions and applies its effect to a copy of agg. On error
// agg is untouched and nothing needs persisting.
func (x Executor) Execute(ctx context.Context, agg Aggregate, caller Caller, cmd Command, now time.Time) (Result, error) {
	if cmd == nil {
		return Result{}, ValidationError{Field: "action", Reason: "required"}
	}
	if strings.TrimSpace(caller.PersonID) == "" {
		return Result{}, ValidationError{Field: "actor", Reason: "required"}
	}
	state := agg.State()
	if err := auth.Authorize(caller.Roles, state, cmd.Action()); err != nil {
		return Result{}, err
	}
	work := agg.clone()
	at := now.UTC().Format(time.RFC3339)
	t := &transition{
		x:      x,
		ctx:    ctx,
		agg:    &work,
		caller: caller,
		state:  state,
		at:     at,
		ledger: NewLedger(&work, x.NewID),
		trail:  NewTrail(work.Case.ID, caller.PersonID, at, x.NewID),
	}
	if err := t.apply(cmd); err != nil {
		return Result{}, err
	}
	res := Result{
		Aggregate:     work,
		Before:        state,
		Entries:       t.trail.Entries(),
		Superseded:    t.ledger.Superseded(),
		Inserted:      t.ledger.Inserted(),
		Payment:       t.payment,
		CaseChanged:   t.caseChanged,
		ClientChanged: t.clientChanged,
	}
	if res.Changed() {
		res.CaseChanged = true
		res.Aggregate.Case.UpdatedAt = at
		res.Aggregate.Case.UpdatedBy = caller.PersonID
	}
	res.After = res.Aggregate.State()
	return res, nil
}

type transition struct {
	x             Executor
	ctx           context.Context
	agg           *Aggregate
	caller        Caller
	state         domain.OperationalState
	at            string
	ledger        *Ledger
	trail         *Trail
	payment       *domain.Payment
	caseChanged   bool
	clientChanged bool
}

func (t *transition) apply(cmd Command) error {
	switch c := cmd.(type) {
	case EditData:
		return t.editData(c)
	case AssignManager:
		return t.assign(domain.RoleManager, c.PersonID, "manager_assignment")
	case ChangeManager:
		return t.assign(domain.RoleManager, c.PersonID, "manager_change")
	case RegisterPayment:
		return t.registerPayment(c)
	case AssignSpecialist:
		return t.assign(domain.RoleSpecialist, c.PersonID, "specialist_assignment")
	case ChangeSpecialist:
		return t.assign(domain.RoleSpecialist, c.PersonID, "specialist_change")
	case Close:
		return t.close(c, true)
	case Cancel:
		return t.cancel(c.Reason, true)
	case Override:
		return t.override(c)
	default:
		return ValidationError{Field: "action", Reason: fmt.Sprintf("unsupported command %T", cmd)}
	}
}

func (t *transition) override(c Override) error {
	justification := strings.TrimSpace(c.Justification)
	if justification == "" {
		return ValidationError{Field: "justification", Reason: "required"}
	}
	if c.Target == nil {
		return ValidationError{Field: "target", Reason: "required"}
	}
	t.trail.Append("override", strPtr(string(t.state)), strPtr("true"), &justification)
	switch target := c.Target.(type) {
	case EditData:
		return t.editData(target)
	case ChangeManager:
		return t.assign(domain.RoleManager, target.PersonID, "override_manager_change")
	case ChangeSpecialist:
		return t.assign(domain.RoleSpecialist, target.PersonID, "override_specialist_change")
	case RegisterPayment:
		return t.registerPayment(target)
	case Close:
		return t.close(target, false)
	case Cancel:
		reason := target.Reason
		if reason == nil || strings.TrimSpace(*reason) == "" {
			reason = &justification
		}
		return t.cancel(reason, false)
	default:
		return ValidationError{Field: "target", Reason: fmt.Sprintf("%s cannot be overridden", c.Target.Action())}
	}
}

func (t *transition) assign(role domain.Role, personID, field string) error {
	personID = strings.TrimSpace(personID)
	if personID == "" {
		return ValidationError{Field: "person_id", Reason: "required"}
	}
	staff, found, err := t.x.Staff.LookupStaff(t.ctx, personID, role)
	if err != nil {
		return fmt.Errorf("lookup staff %s: %w", personID, err)
	}
	if !found {
		return ValidationError{Field: "person_id", Reason: fmt.Sprintf("person %s is not staff with role %s", personID, role)}
	}
	if !staff.Active {
		return ValidationError{Field: "person_id", Reason: fmt.Sprintf("staff %s with role %s is not active", personID, role)}
	}
	staff.Role = role
	change := t.ledger.Assign(staff, t.caller.PersonID, t.at)
	t.trail.Append(field, change.PreviousName, &change.CurrentName, nil)
	t.caseChanged = true
	return nil
}

func (t *transition) registerPayment(c RegisterPayment) error {
	if !c.Amount.IsPositive() {
		return ValidationError{Field: "amount", Reason: "must be greater than zero"}
	}
	currency := strings.ToUpper(strings.TrimSpace(c.Currency))
	if currency == "" && len(t.x.Currencies) > 0 {
		currency = t.x.Currencies[0]
	}
	if !contains(t.x.Currencies, currency) {
		return ValidationError{Field: "currency", Reason: fmt.Sprintf("unknown currency %q", c.Currency)}
	}
	channel := strings.TrimSpace(c.Channel)
	if channel == "" {
		return ValidationError{Field: "channel", Reason: "required"}
	}
	paidOn := strings.TrimSpace(c.PaidOn)
	if paidOn == "" {
		paidOn = t.at[:len("2006-01-02")]
	} else if _, err := time.Parse("2006-01-02", paidOn); err != nil {
		return ValidationError{Field: "paid_on", Reason: "must be a YYYY-MM-DD date"}
	}
	p := domain.Payment{
		ID:          t.x.NewID(),
		CaseID:      t.agg.Case.ID,
		Channel:     channel,
		PaidOn:      paidOn,
		Amount:      c.Amount,
		Currency:    currency,
		Reference:   trimmedOrNil(c.Reference),
		Comment:     trimmedOrNil(c.Comment),
		ValidatedBy: t.caller.PersonID,
		ValidatedAt: t.at,
	}
	t.agg.Payments = append(t.agg.Payments, p)
	t.payment = &p
	t.trail.Append("payment_registered", nil, strPtr(c.Amount.String()), nil)
	if old := t.agg.Case.PaymentStatus; old != domain.PaymentPaid {
		t.agg.Case.PaymentStatus = domain.PaymentPaid
		t.trail.Append("payment_status", strPtr(string(old)), strPtr(string(domain.PaymentPaid)), nil)
	}
	t.caseChanged = true
	return nil
}

func (t *transition) close(c Close, checked bool) error {
	if checked {
		switch {
		case t.agg.Case.AttentionStatus == domain.AttentionAttended:
			return ConflictError{Action: domain.ActionClose, Reason: "case is already attended"}
		case t.agg.Case.AttentionStatus == domain.AttentionCancelled:
			return ConflictError{Action: domain.ActionClose, Reason: "case is cancelled"}
		case len(t.agg.Payments) == 0:
			return ConflictError{Action: domain.ActionClose, Reason: "at least one payment is required"}
		case t.agg.Current(domain.RoleSpecialist) == nil:
			return ConflictError{Action: domain.ActionClose, Reason: "a current specialist is required"}
		}
	}
	old := t.agg.Case.AttentionStatus
	t.agg.Case.AttentionStatus = domain.AttentionAttended
	t.agg.Case.ClosedAt = strPtr(t.at)
	t.agg.Case.ClosedBy = strPtr(t.caller.PersonID)
	t.trail.Append("attention_status", strPtr(string(old)), strPtr(string(domain.AttentionAttended)), trimmedOrNil(c.Comment))
	t.caseChanged = true
	return nil
}

func (t *transition) cancel(reason *string, checked bool) error {
	if checked && t.agg.Case.AttentionStatus == domain.AttentionCancelled {
		return ConflictError{Action: domain.ActionCancel, Reason: "case is already cancelled"}
	}
	reason = trimmedOrNil(reason)
	old := t.agg.Case.AttentionStatus
	t.agg.Case.AttentionStatus = domain.AttentionCancelled
	t.agg.Case.CancelledAt = strPtr(t.at)
	t.agg.Case.CancelledBy = strPtr(t.caller.PersonID)
	if reason != nil {
		t.agg.Case.CancelReason = reason
	}
	t.trail.Append("attention_status", strPtr(string(old)), strPtr(string(domain.AttentionCancelled)), reason)
	t.caseChanged = true
	return nil
}

func (t *transition) editData(c EditData) error {
	if err := t.checkEdit(c); err != nil {
		return err
	}
	cs := &t.agg.Case
	t.setOptional("attention_type", &cs.AttentionType, c.AttentionType, &t.caseChanged)
	t.setOptional("attention_place", &cs.AttentionPlace, c.AttentionPlace, &t.caseChanged)
	t.setOptional("comment", &cs.Comment, c.Comment, &t.caseChanged)
	if c.ServiceID != nil {
		if err := t.changeService(strings.TrimSpace(*c.ServiceID)); err != nil {
			return err
		}
	}
	t.setOptional("certificate_status", &cs.CertificateStatus, c.CertificateStatus, &t.caseChanged)

	cl := &t.agg.Client
	t.setRequired("client.first_names", &cl.FirstNames, c.ClientFirstNames)
	t.setRequired("client.last_names", &cl.LastNames, c.ClientLastNames)
	t.setOptional("client.phone", &cl.Phone, c.ClientPhone, &t.clientChanged)
	t.setOptional("client.email", &cl.Email, c.ClientEmail, &t.clientChanged)

	t.setOptional("admin_comment", &cs.AdminComment, c.AdminComment, &t.caseChanged)
	return nil
}

func (t *transition) checkEdit(c EditData) error {
	if v := trimmedOrNil(c.AttentionType); v != nil && !domain.ValidAttentionType(*v) {
		return ValidationError{Field: "attention_type", Reason: fmt.Sprintf("unknown attention type %q", *v)}
	}
	if v := trimmedOrNil(c.CertificateStatus); v != nil && !domain.ValidCertificateStatus(*v) {
		return ValidationError{Field: "certificate_status", Reason: fmt.Sprintf("unknown certificate status %q", *v)}
	}
	if c.ServiceID != nil && strings.TrimSpace(*c.ServiceID) == "" {
		return ValidationError{Field: "service_id", Reason: "cannot be empty"}
	}
	if c.ClientFirstNames != nil && strings.TrimSpace(*c.ClientFirstNames) == "" {
		return ValidationError{Field: "client.first_names", Reason: "cannot be empty"}
	}
	if c.ClientLastNames != nil && strings.TrimSpace(*c.ClientLastNames) == "" {
		return ValidationError{Field: "client.last_names", Reason: "cannot be empty"}
	}
	if v := trimmedOrNil(c.ClientEmail); v != nil {
		if err := validate.Var(*v, "email"); err != nil {
			return ValidationError{Field: "client.email", Reason: "invalid email address"}
		}
	}
	if c.AdminComment != nil && !auth.HasRole(t.caller.Roles, domain.RoleAdmin) {
		return auth.ForbiddenError{Action: domain.ActionEditData, State: t.state}
	}
	return nil
}

func (t *transition) changeService(id string) error {
	cs := &t.agg.Case
	if cs.ServiceID != nil && *cs.ServiceID == id {
		return nil
	}
	svc, found, err := t.x.Services.LookupService(t.ctx, id)
	if err != nil {
		return fmt.Errorf("lookup service %s: %w", id, err)
	}
	if !found {
		return ValidationError{Field: "service_id", Reason: fmt.Sprintf("unknown service %q", id)}
	}
	t.trail.Append("service_id", cs.ServiceID, strPtr(svc.ID), nil)
	cs.ServiceID = strPtr(svc.ID)

	var oldAmount *string
	if cs.TariffAmount != nil {
		oldAmount = strPtr(cs.TariffAmount.String())
	}
	if oldAmount == nil || !cs.TariffAmount.Equal(svc.TariffAmount) {
		t.trail.Append("tariff_amount", oldAmount, strPtr(svc.TariffAmount.String()), nil)
	}
	if cs.TariffCurrency == nil || *cs.TariffCurrency != svc.TariffCurrency {
		t.trail.Append("tariff_currency", cs.TariffCurrency, strPtr(svc.TariffCurrency), nil)
	}
	amount := svc.TariffAmount
	cs.TariffAmount = &amount
	cs.TariffCurrency = strPtr(svc.TariffCurrency)
	cs.TariffSource = strPtr(domain.TariffFromService)
	t.caseChanged = true
	return nil
}

// setOptional writes one audit entry when next differs from *cur. An empty
// next clears the field.
func (t *transition) setOptional(field string, cur **string, next *string, changed *bool) {
	if next == nil {
		return
	}
	v := trimmedOrNil(next)
	if equalPtr(*cur, v) {
		return
	}
	t.trail.Append(field, *cur, v, nil)
	*cur = v
	*changed = true
}

func (t *transition) setRequired(field string, cur *string, next *string) {
	if next == nil {
		return
	}
	v := strings.TrimSpace(*next)
	if *cur == v {
		return
	}
	t.trail.Append(field, strPtr(*cur), strPtr(v), nil)
	*cur = v
	t.clientChanged = true
}

func trimmedOrNil(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}

func equalPtr(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
