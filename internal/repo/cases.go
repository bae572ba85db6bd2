package repo

import (
	"context"
	"fmt"
	"strings"

	"caseline/internal/domain"
)

const caseColumns = `id,code,client_id,proxy_id,service_id,promoter_id,attention_status,payment_status,
certificate_status,attention_type,attention_place,comment,tariff_amount,tariff_currency,tariff_source,
closed_at,closed_by,cancelled_at,cancelled_by,cancel_reason,admin_comment,created_at,created_by,updated_at,updated_by`

func (r Repo) InsertCase(ctx context.Context, q Queryer, c domain.Case) error {
	_, err := exec(ctx, q, `INSERT INTO cases(`+caseColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		c.ID, c.Code, c.ClientID, c.ProxyID, c.ServiceID, c.PromoterID, c.AttentionStatus, c.PaymentStatus,
		c.CertificateStatus, c.AttentionType, c.AttentionPlace, c.Comment, c.TariffAmount, c.TariffCurrency, c.TariffSource,
		c.ClosedAt, c.ClosedBy, c.CancelledAt, c.CancelledBy, c.CancelReason, c.AdminComment,
		c.CreatedAt, c.CreatedBy, c.UpdatedAt, c.UpdatedBy)
	return err
}

// UpdateCase writes every mutable column of c.
func (r Repo) UpdateCase(ctx context.Context, q Queryer, c domain.Case) error {
	return execOne(ctx, q, `UPDATE cases SET service_id=?,attention_status=?,payment_status=?,certificate_status=?,
attention_type=?,attention_place=?,comment=?,tariff_amount=?,tariff_currency=?,tariff_source=?,
closed_at=?,closed_by=?,cancelled_at=?,cancelled_by=?,cancel_reason=?,admin_comment=?,updated_at=?,updated_by=?
WHERE id=?`,
		c.ServiceID, c.AttentionStatus, c.PaymentStatus, c.CertificateStatus,
		c.AttentionType, c.AttentionPlace, c.Comment, c.TariffAmount, c.TariffCurrency, c.TariffSource,
		c.ClosedAt, c.ClosedBy, c.CancelledAt, c.CancelledBy, c.CancelReason, c.AdminComment, c.UpdatedAt, c.UpdatedBy,
		c.ID)
}

func (r Repo) GetCase(ctx context.Context, q Queryer, id string) (domain.Case, error) {
	var c domain.Case
	err := get(ctx, q, &c, `SELECT `+caseColumns+` FROM cases WHERE id=?`, id)
	return c, err
}

// LockCase loads a case for update. On sqlite the enclosing transaction
// already holds the write lock.
func (r Repo) LockCase(ctx context.Context, q Queryer, id string) (domain.Case, error) {
	query := `SELECT ` + caseColumns + ` FROM cases WHERE id=?`
	if IsPostgres(q) {
		query += ` FOR UPDATE`
	}
	var c domain.Case
	err := get(ctx, q, &c, query, id)
	return c, err
}

func (r Repo) GetCaseByCode(ctx context.Context, q Queryer, code string) (domain.Case, error) {
	var c domain.Case
	err := get(ctx, q, &c, `SELECT `+caseColumns+` FROM cases WHERE code=?`, code)
	return c, err
}

// NextCaseNumber increments and returns the per-year case counter.
func (r Repo) NextCaseNumber(ctx context.Context, q Queryer, year int) (int, error) {
	var n int
	err := get(ctx, q, &n, `INSERT INTO case_counters(year, counter) VALUES (?, 1)
ON CONFLICT(year) DO UPDATE SET counter = case_counters.counter + 1
RETURNING counter`, year)
	if err != nil {
		return 0, fmt.Errorf("next case number: %w", err)
	}
	return n, nil
}

// CaseListItem carries enough to derive the operational state without
// loading assignments.
type CaseListItem struct {
	domain.Case
	ClientName    string `db:"client_name" json:"client_name"`
	HasManager    bool   `db:"has_manager" json:"-"`
	HasSpecialist bool   `db:"has_specialist" json:"-"`
}

type CaseFilters struct {
	// Query matches the case code or the client's names or document number.
	Query string
	// MinePersonID with MineRoles restricts the list to cases the person
	// created (OPERATOR) or currently holds (MANAGER, SPECIALIST). ADMIN
	// sees everything.
	MinePersonID    string
	MineRoles       []domain.Role
	CursorCreatedAt string
	CursorID        string
	Limit           int
}

func (r Repo) ListCases(ctx context.Context, q Queryer, f CaseFilters) ([]CaseListItem, error) {
	var clauses []string
	var args []any
	if s := strings.TrimSpace(f.Query); s != "" {
		like := "%" + strings.ToLower(s) + "%"
		clauses = append(clauses, "(LOWER(c.code) LIKE ? OR LOWER(p.first_names) LIKE ? OR LOWER(p.last_names) LIKE ? OR p.document_number LIKE ?)")
		args = append(args, like, like, like, like)
	}
	if f.MinePersonID != "" && !hasRole(f.MineRoles, domain.RoleAdmin) {
		var mine []string
		for _, role := range f.MineRoles {
			switch role {
			case domain.RoleOperator:
				mine = append(mine, "c.created_by=?")
				args = append(args, f.MinePersonID)
			case domain.RoleManager, domain.RoleSpecialist:
				mine = append(mine, "EXISTS (SELECT 1 FROM assignments a WHERE a.case_id=c.id AND a.person_id=? AND a.role=? AND a.is_current=TRUE)")
				args = append(args, f.MinePersonID, role)
			}
		}
		if len(mine) == 0 {
			return []CaseListItem{}, nil
		}
		clauses = append(clauses, "("+strings.Join(mine, " OR ")+")")
	}
	if f.CursorCreatedAt != "" && f.CursorID != "" {
		clauses = append(clauses, "(c.created_at < ? OR (c.created_at = ? AND c.id < ?))")
		args = append(args, f.CursorCreatedAt, f.CursorCreatedAt, f.CursorID)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	cols := "c." + strings.ReplaceAll(strings.ReplaceAll(caseColumns, "\n", ""), ",", ",c.")
	query := `SELECT ` + cols + `, p.first_names || ' ' || p.last_names AS client_name,
EXISTS (SELECT 1 FROM assignments a WHERE a.case_id=c.id AND a.role='MANAGER' AND a.is_current=TRUE) AS has_manager,
EXISTS (SELECT 1 FROM assignments a WHERE a.case_id=c.id AND a.role='SPECIALIST' AND a.is_current=TRUE) AS has_specialist
FROM cases c JOIN persons p ON p.id=c.client_id ` + where + ` ORDER BY c.created_at DESC, c.id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	res := []CaseListItem{}
	if err := selectAll(ctx, q, &res, query, args...); err != nil {
		return nil, err
	}
	return res, nil
}

func hasRole(roles []domain.Role, want domain.Role) bool {
	for _, r := range roles {
		if r == want {
			return true
		}
	}
	return false
}
