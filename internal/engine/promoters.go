package engine

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"caseline/internal/domain"
	"caseline/internal/engine/workflow"
	"caseline/internal/repo"
)

// PromoterInput describes a new promoter. Which name field is required
// depends on Kind.
type PromoterInput struct {
	Kind         string       `json:"kind" validate:"required,oneof=PERSON COMPANY OTHER" enum:"PERSON,COMPANY,OTHER"`
	Person       *PersonInput `json:"person,omitempty" validate:"required_if=Kind PERSON" required:"false"`
	BusinessName string       `json:"business_name,omitempty" validate:"required_if=Kind COMPANY,max=200" required:"false"`
	OtherName    string       `json:"other_name,omitempty" validate:"required_if=Kind OTHER,max=200" required:"false"`
	RUC          string       `json:"ruc,omitempty" validate:"omitempty,len=11,numeric" required:"false"`
	Email        string       `json:"email,omitempty" validate:"omitempty,email" required:"false"`
	Phone        string       `json:"phone,omitempty" validate:"omitempty,max=30" required:"false"`
	Source       string       `json:"source,omitempty" validate:"omitempty,max=120" required:"false"`
	Comment      string       `json:"comment,omitempty" validate:"omitempty,max=500" required:"false"`
}

// CreatePromoter registers a promoter. A PERSON promoter reuses the person
// with the same document.
func (e Engine) CreatePromoter(ctx context.Context, in PromoterInput, caller workflow.Caller) (domain.Promoter, error) {
	if strings.TrimSpace(caller.PersonID) == "" {
		return domain.Promoter{}, workflow.ValidationError{Field: "actor", Reason: "required"}
	}
	if err := validateStruct(in); err != nil {
		return domain.Promoter{}, err
	}
	ts := e.now().UTC().Format(time.RFC3339)

	tx, err := e.DB.BeginTxx(ctx, nil)
	if err != nil {
		return domain.Promoter{}, AtomicityError{Op: "begin create promoter", Err: err}
	}
	defer tx.Rollback()

	p, err := e.createPromoter(ctx, tx, in, caller.PersonID, ts)
	if err != nil {
		return domain.Promoter{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Promoter{}, AtomicityError{Op: "commit create promoter", Err: err}
	}
	e.log().Info("promoter created", zap.String("promoter_id", p.ID), zap.String("kind", string(p.Kind)), zap.String("actor_id", caller.PersonID))
	return p, nil
}

// createPromoter expects in to be validated already.
func (e Engine) createPromoter(ctx context.Context, q repo.Queryer, in PromoterInput, actorID, ts string) (domain.Promoter, error) {
	p := domain.Promoter{
		ID:        e.newID(),
		Kind:      domain.PromoterKind(in.Kind),
		RUC:       optionalString(in.RUC),
		Email:     optionalString(in.Email),
		Phone:     optionalString(in.Phone),
		Source:    optionalString(in.Source),
		Comment:   optionalString(in.Comment),
		CreatedAt: ts,
		CreatedBy: actorID,
	}
	field := "other_name"
	switch p.Kind {
	case domain.PromoterPerson:
		person, err := e.findOrCreatePerson(ctx, q, *in.Person, ts)
		if err != nil {
			return domain.Promoter{}, err
		}
		p.PersonID = &person.ID
		p.Name = person.DisplayName()
		field = "person"
	case domain.PromoterCompany:
		p.BusinessName = optionalString(in.BusinessName)
		p.Name = strings.TrimSpace(in.BusinessName)
		field = "business_name"
	default:
		p.Name = strings.TrimSpace(in.OtherName)
	}
	if p.Name == "" {
		return domain.Promoter{}, workflow.ValidationError{Field: field, Reason: "cannot be empty"}
	}
	if err := e.Repo.InsertPromoter(ctx, q, p); err != nil {
		return domain.Promoter{}, AtomicityError{Op: "insert promoter", Err: err}
	}
	return p, nil
}

func (e Engine) ListPromoters(ctx context.Context, kind domain.PromoterKind) ([]domain.Promoter, error) {
	return e.Repo.ListPromoters(ctx, e.DB, kind)
}
