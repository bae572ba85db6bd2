package domain

import "github.com/shopspring/decimal"

type Case struct {
	ID                string           `json:"id" db:"id"`
	Code              string           `json:"code" db:"code"`
	ClientID          string           `json:"client_id" db:"client_id"`
	ProxyID           *string          `json:"proxy_id,omitempty" db:"proxy_id"`
	ServiceID         *string          `json:"service_id,omitempty" db:"service_id"`
	PromoterID        *string          `json:"promoter_id,omitempty" db:"promoter_id"`
	AttentionStatus   AttentionStatus  `json:"attention_status" db:"attention_status" enum:"REGISTERED,IN_PROGRESS,ATTENDED,OBSERVED,CANCELLED"`
	PaymentStatus     PaymentStatus    `json:"payment_status" db:"payment_status" enum:"PENDING,PAID,OBSERVED"`
	CertificateStatus *string          `json:"certificate_status,omitempty" db:"certificate_status"`
	AttentionType     *string          `json:"attention_type,omitempty" db:"attention_type"`
	AttentionPlace    *string          `json:"attention_place,omitempty" db:"attention_place"`
	Comment           *string          `json:"comment,omitempty" db:"comment"`
	TariffAmount      *decimal.Decimal `json:"tariff_amount,omitempty" db:"tariff_amount"`
	TariffCurrency    *string          `json:"tariff_currency,omitempty" db:"tariff_currency"`
	TariffSource      *string          `json:"tariff_source,omitempty" db:"tariff_source"`
	ClosedAt          *string          `json:"closed_at,omitempty" db:"closed_at" format:"date-time"`
	ClosedBy          *string          `json:"closed_by,omitempty" db:"closed_by"`
	CancelledAt       *string          `json:"cancelled_at,omitempty" db:"cancelled_at" format:"date-time"`
	CancelledBy       *string          `json:"cancelled_by,omitempty" db:"cancelled_by"`
	CancelReason      *string          `json:"cancel_reason,omitempty" db:"cancel_reason"`
	AdminComment      *string          `json:"admin_comment,omitempty" db:"admin_comment"`
	CreatedAt         string           `json:"created_at" db:"created_at" format:"date-time"`
	CreatedBy         string           `json:"created_by" db:"created_by"`
	UpdatedAt         string           `json:"updated_at" db:"updated_at" format:"date-time"`
	UpdatedBy         string           `json:"updated_by" db:"updated_by"`
}

// Person is anyone the system knows by document: clients, proxies and staff.
type Person struct {
	ID             string  `json:"id" db:"id"`
	DocumentType   string  `json:"document_type" db:"document_type" enum:"DNI,CE,PASSPORT,RUC"`
	DocumentNumber string  `json:"document_number" db:"document_number"`
	FirstNames     string  `json:"first_names" db:"first_names"`
	LastNames      string  `json:"last_names" db:"last_names"`
	Phone          *string `json:"phone,omitempty" db:"phone"`
	Email          *string `json:"email,omitempty" db:"email"`
	CreatedAt      string  `json:"created_at" db:"created_at" format:"date-time"`
}

func (p Person) DisplayName() string {
	switch {
	case p.FirstNames == "":
		return p.LastNames
	case p.LastNames == "":
		return p.FirstNames
	}
	return p.FirstNames + " " + p.LastNames
}

type Assignment struct {
	ID           string  `json:"id" db:"id"`
	CaseID       string  `json:"case_id" db:"case_id"`
	PersonID     string  `json:"person_id" db:"person_id"`
	PersonName   string  `json:"person_name,omitempty" db:"person_name"`
	Role         Role    `json:"role" db:"role" enum:"OPERATOR,MANAGER,SPECIALIST"`
	IsCurrent    bool    `json:"is_current" db:"is_current"`
	AssignedBy   string  `json:"assigned_by" db:"assigned_by"`
	AssignedAt   string  `json:"assigned_at" db:"assigned_at" format:"date-time"`
	SupersededBy *string `json:"superseded_by,omitempty" db:"superseded_by"`
	SupersededAt *string `json:"superseded_at,omitempty" db:"superseded_at" format:"date-time"`
}

// AuditEntry records one field transition. Entries are never updated or deleted.
type AuditEntry struct {
	ID       string  `json:"id" db:"id"`
	CaseID   string  `json:"case_id" db:"case_id"`
	Seq      int64   `json:"seq" db:"seq"`
	Field    string  `json:"field" db:"field"`
	OldValue *string `json:"old_value,omitempty" db:"old_value"`
	NewValue *string `json:"new_value,omitempty" db:"new_value"`
	ActorID  string  `json:"actor_id" db:"actor_id"`
	At       string  `json:"at" db:"at" format:"date-time"`
	Comment  *string `json:"comment,omitempty" db:"comment"`
}

type Payment struct {
	ID          string          `json:"id" db:"id"`
	CaseID      string          `json:"case_id" db:"case_id"`
	Channel     string          `json:"channel" db:"channel"`
	PaidOn      string          `json:"paid_on" db:"paid_on" format:"date"`
	Amount      decimal.Decimal `json:"amount" db:"amount"`
	Currency    string          `json:"currency" db:"currency"`
	Reference   *string         `json:"reference,omitempty" db:"reference"`
	Comment     *string         `json:"comment,omitempty" db:"comment"`
	ValidatedBy string          `json:"validated_by" db:"validated_by"`
	ValidatedAt string          `json:"validated_at" db:"validated_at" format:"date-time"`
}

// Staff is a person enabled to hold a functional role on cases.
type Staff struct {
	PersonID string `json:"person_id" db:"person_id"`
	Name     string `json:"name" db:"name"`
	Role     Role   `json:"role" db:"role" enum:"OPERATOR,MANAGER,SPECIALIST"`
	Active   bool   `json:"active" db:"active"`
}

type Service struct {
	ID             string          `json:"id" db:"id"`
	Description    string          `json:"description" db:"description"`
	TariffAmount   decimal.Decimal `json:"tariff_amount" db:"tariff_amount"`
	TariffCurrency string          `json:"tariff_currency" db:"tariff_currency"`
}

// Promoter referred a case. Name is resolved once at creation from the
// person, business name or free-form name depending on Kind.
type Promoter struct {
	ID           string       `json:"id" db:"id"`
	Kind         PromoterKind `json:"kind" db:"kind" enum:"PERSON,COMPANY,OTHER"`
	PersonID     *string      `json:"person_id,omitempty" db:"person_id"`
	Name         string       `json:"name" db:"name"`
	BusinessName *string      `json:"business_name,omitempty" db:"business_name"`
	RUC          *string      `json:"ruc,omitempty" db:"ruc"`
	Email        *string      `json:"email,omitempty" db:"email"`
	Phone        *string      `json:"phone,omitempty" db:"phone"`
	Source       *string      `json:"source,omitempty" db:"source"`
	Comment      *string      `json:"comment,omitempty" db:"comment"`
	CreatedAt    string       `json:"created_at" db:"created_at" format:"date-time"`
	CreatedBy    string       `json:"created_by" db:"created_by"`
}

// APIKey authenticates a person with fixed roles. Only the hash of the key
// is stored.
type APIKey struct {
	ID        string  `json:"id" db:"id"`
	PersonID  string  `json:"person_id" db:"person_id"`
	Name      *string `json:"name,omitempty" db:"name"`
	KeyHash   string  `json:"-" db:"key_hash"`
	Roles     string  `json:"roles" db:"roles"`
	CreatedAt string  `json:"created_at" db:"created_at" format:"date-time"`
	CreatedBy string  `json:"created_by" db:"created_by"`
	RevokedAt *string `json:"revoked_at,omitempty" db:"revoked_at" format:"date-time"`
}
