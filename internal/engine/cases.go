package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"caseline/internal/domain"
	"caseline/internal/engine/workflow"
	"caseline/internal/repo"
)

type PersonInput struct {
	DocumentType   string `json:"document_type" validate:"required,oneof=DNI CE PASSPORT RUC" enum:"DNI,CE,PASSPORT,RUC"`
	DocumentNumber string `json:"document_number" validate:"required,max=20"`
	FirstNames     string `json:"first_names" validate:"required,max=120"`
	LastNames      string `json:"last_names" validate:"required,max=120"`
	Phone          string `json:"phone,omitempty" validate:"omitempty,max=30" required:"false"`
	Email          string `json:"email,omitempty" validate:"omitempty,email" required:"false"`
}

type CreateCaseInput struct {
	Client         PersonInput    `json:"client"`
	Proxy          *PersonInput   `json:"proxy,omitempty" required:"false"`
	ServiceID      string         `json:"service_id,omitempty" required:"false"`
	PromoterID     string         `json:"promoter_id,omitempty" required:"false"`
	Promoter       *PromoterInput `json:"promoter,omitempty" required:"false"`
	AttentionType  string         `json:"attention_type,omitempty" validate:"omitempty,oneof=VIRTUAL IN_PERSON" required:"false" enum:"VIRTUAL,IN_PERSON"`
	AttentionPlace string         `json:"attention_place,omitempty" required:"false"`
	Comment        string         `json:"comment,omitempty" required:"false"`
}

// CreateCase registers a new case in REGISTERED/PENDING with no
// assignments. Client and proxy are matched by document or created. The
// promoter is either an existing one by id or created inline, never both.
func (e Engine) CreateCase(ctx context.Context, in CreateCaseInput, caller workflow.Caller) (workflow.Aggregate, error) {
	if strings.TrimSpace(caller.PersonID) == "" {
		return workflow.Aggregate{}, workflow.ValidationError{Field: "actor", Reason: "required"}
	}
	if err := validateStruct(in); err != nil {
		return workflow.Aggregate{}, err
	}
	promoterID := strings.TrimSpace(in.PromoterID)
	if promoterID != "" && in.Promoter != nil {
		return workflow.Aggregate{}, workflow.ValidationError{Field: "promoter", Reason: "give either promoter_id or promoter"}
	}
	now := e.now().UTC()
	ts := now.Format(time.RFC3339)

	tx, err := e.DB.BeginTxx(ctx, nil)
	if err != nil {
		return workflow.Aggregate{}, AtomicityError{Op: "begin create case", Err: err}
	}
	defer tx.Rollback()

	client, err := e.findOrCreatePerson(ctx, tx, in.Client, ts)
	if err != nil {
		return workflow.Aggregate{}, err
	}
	c := domain.Case{
		ID:              e.newID(),
		ClientID:        client.ID,
		AttentionStatus: domain.AttentionRegistered,
		PaymentStatus:   domain.PaymentPending,
		AttentionType:   optionalString(in.AttentionType),
		AttentionPlace:  optionalString(in.AttentionPlace),
		Comment:         optionalString(in.Comment),
		CreatedAt:       ts,
		CreatedBy:       caller.PersonID,
		UpdatedAt:       ts,
		UpdatedBy:       caller.PersonID,
	}
	if in.Proxy != nil {
		proxy, err := e.findOrCreatePerson(ctx, tx, *in.Proxy, ts)
		if err != nil {
			return workflow.Aggregate{}, err
		}
		c.ProxyID = &proxy.ID
	}
	switch {
	case promoterID != "":
		p, err := e.Repo.GetPromoter(ctx, tx, promoterID)
		if errors.Is(err, repo.ErrNotFound) {
			return workflow.Aggregate{}, workflow.ValidationError{Field: "promoter_id", Reason: fmt.Sprintf("unknown promoter %q", promoterID)}
		}
		if err != nil {
			return workflow.Aggregate{}, err
		}
		c.PromoterID = &p.ID
	case in.Promoter != nil:
		p, err := e.createPromoter(ctx, tx, *in.Promoter, caller.PersonID, ts)
		if err != nil {
			return workflow.Aggregate{}, err
		}
		c.PromoterID = &p.ID
	}
	if id := strings.TrimSpace(in.ServiceID); id != "" {
		svc, err := e.Repo.GetService(ctx, tx, id)
		if errors.Is(err, repo.ErrNotFound) {
			return workflow.Aggregate{}, workflow.ValidationError{Field: "service_id", Reason: fmt.Sprintf("unknown service %q", id)}
		}
		if err != nil {
			return workflow.Aggregate{}, err
		}
		amount := svc.TariffAmount
		c.ServiceID = &svc.ID
		c.TariffAmount = &amount
		c.TariffCurrency = &svc.TariffCurrency
		source := domain.TariffFromService
		c.TariffSource = &source
	}
	n, err := e.Repo.NextCaseNumber(ctx, tx, now.Year())
	if err != nil {
		return workflow.Aggregate{}, AtomicityError{Op: "allocate case code", Err: err}
	}
	c.Code = fmt.Sprintf("%s-%d-%04d", e.codePrefix(), now.Year(), n)

	if err := e.Repo.InsertCase(ctx, tx, c); err != nil {
		return workflow.Aggregate{}, AtomicityError{Op: "insert case", Err: err}
	}
	registered := string(domain.AttentionRegistered)
	entry := domain.AuditEntry{
		ID:       e.newID(),
		CaseID:   c.ID,
		Field:    "case_created",
		NewValue: &registered,
		ActorID:  caller.PersonID,
		At:       ts,
	}
	if _, err := e.Audit.Append(ctx, tx, entry); err != nil {
		return workflow.Aggregate{}, AtomicityError{Op: "append audit", Err: err}
	}
	if err := tx.Commit(); err != nil {
		return workflow.Aggregate{}, AtomicityError{Op: "commit create case", Err: err}
	}
	e.log().Info("case created", zap.String("case_id", c.ID), zap.String("code", c.Code), zap.String("actor_id", caller.PersonID))
	return workflow.Aggregate{Case: c, Client: client, Assignments: []domain.Assignment{}, Payments: []domain.Payment{}}, nil
}

func (e Engine) findOrCreatePerson(ctx context.Context, q repo.Queryer, in PersonInput, ts string) (domain.Person, error) {
	p, err := e.Repo.FindPersonByDocument(ctx, q, in.DocumentType, strings.TrimSpace(in.DocumentNumber))
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, repo.ErrNotFound) {
		return domain.Person{}, err
	}
	p = domain.Person{
		ID:             e.newID(),
		DocumentType:   in.DocumentType,
		DocumentNumber: strings.TrimSpace(in.DocumentNumber),
		FirstNames:     strings.TrimSpace(in.FirstNames),
		LastNames:      strings.TrimSpace(in.LastNames),
		Phone:          optionalString(in.Phone),
		Email:          optionalString(in.Email),
		CreatedAt:      ts,
	}
	if err := e.Repo.InsertPerson(ctx, q, p); err != nil {
		return domain.Person{}, AtomicityError{Op: "insert person", Err: err}
	}
	return p, nil
}

func (e Engine) codePrefix() string {
	if e.Config != nil && e.Config.Case.CodePrefix != "" {
		return e.Config.Case.CodePrefix
	}
	return "CASE"
}

// validateStruct turns validator failures into a ValidationError naming the
// first offending field.
func validateStruct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return workflow.ValidationError{Field: fieldPath(fe.Namespace()), Reason: fmt.Sprintf("failed %s", fe.Tag())}
	}
	return workflow.ValidationError{Reason: err.Error()}
}

// fieldPath turns "CreateCaseInput.Client.DocumentNumber" into
// "client.document_number".
func fieldPath(ns string) string {
	parts := strings.Split(ns, ".")
	if len(parts) > 1 {
		parts = parts[1:]
	}
	for i, p := range parts {
		parts[i] = snake(p)
	}
	return strings.Join(parts, ".")
}

func snake(s string) string {
	var b strings.Builder
	for i, r := range s {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return b.String()
}

func optionalString(v string) *string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	return &v
}
