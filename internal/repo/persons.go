package repo

import (
	"context"

	"caseline/internal/domain"
)

const personColumns = `id,document_type,document_number,first_names,last_names,phone,email,created_at`

func (r Repo) InsertPerson(ctx context.Context, q Queryer, p domain.Person) error {
	_, err := exec(ctx, q, `INSERT INTO persons(`+personColumns+`) VALUES (?,?,?,?,?,?,?,?)`,
		p.ID, p.DocumentType, p.DocumentNumber, p.FirstNames, p.LastNames, nullableStringPtr(p.Phone), nullableStringPtr(p.Email), p.CreatedAt)
	return err
}

func (r Repo) UpdatePerson(ctx context.Context, q Queryer, p domain.Person) error {
	return execOne(ctx, q, `UPDATE persons SET first_names=?,last_names=?,phone=?,email=? WHERE id=?`,
		p.FirstNames, p.LastNames, nullableStringPtr(p.Phone), nullableStringPtr(p.Email), p.ID)
}

func (r Repo) GetPerson(ctx context.Context, q Queryer, id string) (domain.Person, error) {
	var p domain.Person
	err := get(ctx, q, &p, `SELECT `+personColumns+` FROM persons WHERE id=?`, id)
	return p, err
}

func (r Repo) FindPersonByDocument(ctx context.Context, q Queryer, docType, docNumber string) (domain.Person, error) {
	var p domain.Person
	err := get(ctx, q, &p, `SELECT `+personColumns+` FROM persons WHERE document_type=? AND document_number=?`, docType, docNumber)
	return p, err
}
