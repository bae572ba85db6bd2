package repo

import (
	"context"
	"errors"

	"caseline/internal/domain"
)

func (r Repo) UpsertService(ctx context.Context, q Queryer, s domain.Service) error {
	_, err := exec(ctx, q, `INSERT INTO services(id,description,tariff_amount,tariff_currency) VALUES (?,?,?,?)
ON CONFLICT(id) DO UPDATE SET description=excluded.description, tariff_amount=excluded.tariff_amount, tariff_currency=excluded.tariff_currency`,
		s.ID, s.Description, s.TariffAmount, s.TariffCurrency)
	return err
}

func (r Repo) GetService(ctx context.Context, q Queryer, id string) (domain.Service, error) {
	var s domain.Service
	err := get(ctx, q, &s, `SELECT id,description,tariff_amount,tariff_currency FROM services WHERE id=?`, id)
	return s, err
}

func (r Repo) ListServices(ctx context.Context, q Queryer) ([]domain.Service, error) {
	res := []domain.Service{}
	if err := selectAll(ctx, q, &res, `SELECT id,description,tariff_amount,tariff_currency FROM services ORDER BY id`); err != nil {
		return nil, err
	}
	return res, nil
}

// ServiceCatalog adapts the services table to workflow.ServiceCatalog.
type ServiceCatalog struct {
	Repo Repo
	Q    Queryer
}

func (c ServiceCatalog) LookupService(ctx context.Context, id string) (domain.Service, bool, error) {
	s, err := c.Repo.GetService(ctx, c.Q, id)
	if errors.Is(err, ErrNotFound) {
		return domain.Service{}, false, nil
	}
	if err != nil {
		return domain.Service{}, false, err
	}
	return s, true, nil
}
