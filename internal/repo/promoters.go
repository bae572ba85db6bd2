package repo

import (
	"context"

	"caseline/internal/domain"
)

const promoterColumns = `id,kind,person_id,name,business_name,ruc,email,phone,source,comment,created_at,created_by`

func (r Repo) InsertPromoter(ctx context.Context, q Queryer, p domain.Promoter) error {
	_, err := exec(ctx, q, `INSERT INTO promoters(`+promoterColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		p.ID, p.Kind, nullableStringPtr(p.PersonID), p.Name, nullableStringPtr(p.BusinessName), nullableStringPtr(p.RUC),
		nullableStringPtr(p.Email), nullableStringPtr(p.Phone), nullableStringPtr(p.Source), nullableStringPtr(p.Comment),
		p.CreatedAt, p.CreatedBy)
	return err
}

func (r Repo) GetPromoter(ctx context.Context, q Queryer, id string) (domain.Promoter, error) {
	var p domain.Promoter
	err := get(ctx, q, &p, `SELECT `+promoterColumns+` FROM promoters WHERE id=?`, id)
	return p, err
}

// ListPromoters lists promoters by name, optionally of one kind.
func (r Repo) ListPromoters(ctx context.Context, q Queryer, kind domain.PromoterKind) ([]domain.Promoter, error) {
	query := `SELECT ` + promoterColumns + ` FROM promoters`
	var args []any
	if kind != "" {
		query += ` WHERE kind=?`
		args = append(args, kind)
	}
	query += ` ORDER BY name, id`
	res := []domain.Promoter{}
	if err := selectAll(ctx, q, &res, query, args...); err != nil {
		return nil, err
	}
	return res, nil
}
