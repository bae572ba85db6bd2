package repo

import (
	"context"

	"caseline/internal/domain"
)

func (r Repo) InsertPayment(ctx context.Context, q Queryer, p domain.Payment) error {
	_, err := exec(ctx, q, `INSERT INTO payments(id,case_id,channel,paid_on,amount,currency,reference,comment,validated_by,validated_at)
VALUES (?,?,?,?,?,?,?,?,?,?)`,
		p.ID, p.CaseID, p.Channel, p.PaidOn, p.Amount, p.Currency, p.Reference, p.Comment, p.ValidatedBy, p.ValidatedAt)
	return err
}

func (r Repo) ListPayments(ctx context.Context, q Queryer, caseID string) ([]domain.Payment, error) {
	res := []domain.Payment{}
	err := selectAll(ctx, q, &res, `SELECT id,case_id,channel,paid_on,amount,currency,reference,comment,validated_by,validated_at
FROM payments WHERE case_id=? ORDER BY validated_at, id`, caseID)
	if err != nil {
		return nil, err
	}
	return res, nil
}
