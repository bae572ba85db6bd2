package server

import (
	"caseline/internal/domain"
	"caseline/internal/engine"
	"caseline/internal/engine/auth"
	"caseline/internal/engine/workflow"
)

// Response payloads

type CaseResponse struct {
	Case           domain.Case             `json:"case"`
	Client         domain.Person           `json:"client"`
	Assignments    []domain.Assignment     `json:"assignments"`
	Payments       []domain.Payment        `json:"payments"`
	State          domain.OperationalState `json:"state" enum:"REGISTERED,MANAGER_ASSIGNED,PAID,SPECIALIST_ASSIGNED,CLOSED,CANCELLED"`
	AllowedActions []domain.Action         `json:"allowed_actions"`
}

type TransitionResponse struct {
	CaseResponse
	From    domain.OperationalState `json:"from"`
	Entries []domain.AuditEntry     `json:"entries"`
}

type CaseListResponse struct {
	Items      []engine.CaseSummary `json:"items"`
	NextCursor string               `json:"next_cursor,omitempty"`
}

type AuditListResponse struct {
	Items []domain.AuditEntry `json:"items"`
}

type StaffListResponse struct {
	Items []domain.Staff `json:"items"`
}

type ServiceListResponse struct {
	Items []domain.Service `json:"items"`
}

type PromoterListResponse struct {
	Items []domain.Promoter `json:"items"`
}

type PolicyResponse struct {
	Items []auth.PolicyRow `json:"items"`
}

type SetStaffActiveRequest struct {
	Active bool `json:"active"`
}

type IssueAPIKeyRequest struct {
	PersonID string   `json:"person_id"`
	Name     string   `json:"name,omitempty" required:"false"`
	Roles    []string `json:"roles"`
}

type IssueAPIKeyResponse struct {
	domain.APIKey
	Key string `json:"key"`
}

func caseResponse(v engine.CaseView) CaseResponse {
	return CaseResponse{
		Case:           v.Case,
		Client:         v.Client,
		Assignments:    nonNilSlice(v.Assignments),
		Payments:       nonNilSlice(v.Payments),
		State:          v.State,
		AllowedActions: nonNilSlice(v.Allowed),
	}
}

func transitionResponse(res workflow.Result, caller workflow.Caller) TransitionResponse {
	view := engine.CaseView{
		Aggregate: res.Aggregate,
		State:     res.After,
	}
	view.Allowed = allowedFor(caller, res.After)
	return TransitionResponse{
		CaseResponse: caseResponse(view),
		From:         res.Before,
		Entries:      nonNilSlice(res.Entries),
	}
}

func nonNilSlice[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}
