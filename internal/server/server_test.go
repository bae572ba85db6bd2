package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"caseline/internal/config"
	"caseline/internal/db"
	"caseline/internal/domain"
	"caseline/internal/engine"
	"caseline/internal/engine/auth"
	"caseline/internal/engine/workflow"
	"caseline/internal/migrate"
	"caseline/internal/repo"
)

const testSecret = "test-secret"

type testServer struct {
	URL    string
	client *http.Client
	auth   AuthConfig
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	cfg := config.Default()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if _, err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e := engine.New(conn, cfg, nil)
	if err := e.Repo.UpsertService(context.Background(), conn, domain.Service{
		ID: "consult.virtual", Description: "Virtual consultation", TariffAmount: decimal.RequireFromString("150"), TariffCurrency: "PEN",
	}); err != nil {
		t.Fatalf("seed service: %v", err)
	}
	authCfg := AuthConfig{JWTSecret: testSecret, Issuer: "caseline", Audience: "caseline-api"}
	handler, err := New(Config{Engine: e, BasePath: "/v0", Auth: authCfg})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	srv := httptest.NewServer(handler)
	t.Cleanup(func() {
		srv.Close()
		conn.Close()
	})
	return &testServer{URL: srv.URL, client: srv.Client(), auth: authCfg}
}

func (s *testServer) token(t *testing.T, subject string, roles ...string) string {
	t.Helper()
	tok, err := SignToken(s.auth, subject, roles, time.Hour, time.Now())
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return tok
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) (*http.Response, []byte) {
	t.Helper()
	var reader io.Reader = bytes.NewReader(nil)
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, s.URL+path, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	res, err := s.client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func expectStatus(t *testing.T, res *http.Response, data []byte, want int) {
	t.Helper()
	if res.StatusCode != want {
		t.Fatalf("expected %d, got %d: %s", want, res.StatusCode, string(data))
	}
}

func errorCode(t *testing.T, data []byte) string {
	t.Helper()
	var env struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("unmarshal error envelope: %v (%s)", err, string(data))
	}
	return env.Error.Code
}

func (s *testServer) registerStaff(t *testing.T, admin, doc, role string) domain.Staff {
	t.Helper()
	res, data := s.do(t, http.MethodPost, "/v0/staff", admin, map[string]any{
		"person": map[string]any{"document_type": "DNI", "document_number": doc, "first_names": "Staff", "last_names": doc},
		"role":   role,
	})
	expectStatus(t, res, data, http.StatusCreated)
	var st domain.Staff
	if err := json.Unmarshal(data, &st); err != nil {
		t.Fatalf("unmarshal staff: %v", err)
	}
	return st
}

func (s *testServer) createCase(t *testing.T, token string) CaseResponse {
	t.Helper()
	res, data := s.do(t, http.MethodPost, "/v0/cases", token, map[string]any{
		"client":     map[string]any{"document_type": "DNI", "document_number": "44556677", "first_names": "Juan", "last_names": "Perez"},
		"service_id": "consult.virtual",
	})
	expectStatus(t, res, data, http.StatusCreated)
	var c CaseResponse
	if err := json.Unmarshal(data, &c); err != nil {
		t.Fatalf("unmarshal case: %v", err)
	}
	return c
}

func TestHealthIsPublic(t *testing.T) {
	srv := newTestServer(t)
	res, data := srv.do(t, http.MethodGet, "/v0/health", "", nil)
	expectStatus(t, res, data, http.StatusOK)
}

func TestAuthRequired(t *testing.T) {
	srv := newTestServer(t)
	res, data := srv.do(t, http.MethodGet, "/v0/cases", "", nil)
	expectStatus(t, res, data, http.StatusUnauthorized)
	if code := errorCode(t, data); code != "unauthorized" {
		t.Fatalf("unexpected code %s", code)
	}
	res, data = srv.do(t, http.MethodGet, "/v0/cases", "not-a-token", nil)
	expectStatus(t, res, data, http.StatusUnauthorized)

	bad := AuthConfig{JWTSecret: "other", Issuer: "caseline", Audience: "caseline-api"}
	tok, err := SignToken(bad, "u1", []string{"ADMIN"}, time.Hour, time.Now())
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	res, data = srv.do(t, http.MethodGet, "/v0/cases", tok, nil)
	expectStatus(t, res, data, http.StatusUnauthorized)
}

func TestCaseFlowOverHTTP(t *testing.T) {
	srv := newTestServer(t)
	admin := srv.token(t, "admin-1", "ADMIN")
	operator := srv.token(t, "op-1", "OPERATOR")
	mgr := srv.registerStaff(t, admin, "20000001", "MANAGER")
	spc := srv.registerStaff(t, admin, "20000002", "SPECIALIST")
	manager := srv.token(t, mgr.PersonID, "MANAGER")
	specialist := srv.token(t, spc.PersonID, "SPECIALIST")

	created := srv.createCase(t, operator)
	if created.State != domain.StateRegistered {
		t.Fatalf("expected REGISTERED, got %s", created.State)
	}
	base := "/v0/cases/" + created.Case.ID

	res, data := srv.do(t, http.MethodPost, base+"/actions/CLOSE", operator, nil)
	expectStatus(t, res, data, http.StatusForbidden)
	if code := errorCode(t, data); code != "forbidden" {
		t.Fatalf("unexpected code %s", code)
	}

	res, data = srv.do(t, http.MethodPost, base+"/actions/ASSIGN_MANAGER", operator, map[string]any{"person_id": mgr.PersonID})
	expectStatus(t, res, data, http.StatusOK)
	var tr TransitionResponse
	if err := json.Unmarshal(data, &tr); err != nil {
		t.Fatalf("unmarshal transition: %v", err)
	}
	if tr.From != domain.StateRegistered || tr.State != domain.StateManagerAssigned {
		t.Fatalf("unexpected transition %s -> %s", tr.From, tr.State)
	}

	res, data = srv.do(t, http.MethodPost, base+"/actions/REGISTER_PAYMENT", manager, map[string]any{"channel": "cash", "amount": "0"})
	expectStatus(t, res, data, http.StatusUnprocessableEntity)

	res, data = srv.do(t, http.MethodPost, base+"/actions/REGISTER_PAYMENT", manager, map[string]any{"channel": "cash", "amount": "150.00"})
	expectStatus(t, res, data, http.StatusOK)
	res, data = srv.do(t, http.MethodPost, base+"/actions/ASSIGN_SPECIALIST", manager, map[string]any{"person_id": spc.PersonID})
	expectStatus(t, res, data, http.StatusOK)
	res, data = srv.do(t, http.MethodPost, base+"/actions/CLOSE", specialist, map[string]any{"comment": "done"})
	expectStatus(t, res, data, http.StatusOK)

	res, data = srv.do(t, http.MethodGet, "/v0/cases/"+created.Case.Code, admin, nil)
	expectStatus(t, res, data, http.StatusOK)
	var view CaseResponse
	if err := json.Unmarshal(data, &view); err != nil {
		t.Fatalf("unmarshal case: %v", err)
	}
	if view.State != domain.StateClosed {
		t.Fatalf("expected CLOSED, got %s", view.State)
	}
	if len(view.AllowedActions) != 1 || view.AllowedActions[0] != domain.ActionOverride {
		t.Fatalf("expected OVERRIDE only, got %v", view.AllowedActions)
	}

	res, data = srv.do(t, http.MethodPost, base+"/actions/OVERRIDE", admin, map[string]any{
		"justification": "typo in place",
		"action":        "EDIT_DATA",
		"payload":       map[string]any{"attention_place": "Cusco"},
	})
	expectStatus(t, res, data, http.StatusOK)

	res, data = srv.do(t, http.MethodGet, base+"/audit?limit=2", operator, nil)
	expectStatus(t, res, data, http.StatusOK)
	var audit AuditListResponse
	if err := json.Unmarshal(data, &audit); err != nil {
		t.Fatalf("unmarshal audit: %v", err)
	}
	if len(audit.Items) != 2 || audit.Items[0].Field != "attention_place" || audit.Items[1].Field != "override" {
		t.Fatalf("unexpected newest audit entries %+v", audit.Items)
	}
}

func TestEarlySpecialistDoesNotUnlockClose(t *testing.T) {
	srv := newTestServer(t)
	admin := srv.token(t, "admin-1", "ADMIN")
	mgr := srv.registerStaff(t, admin, "30000001", "MANAGER")
	spc := srv.registerStaff(t, admin, "30000002", "SPECIALIST")
	created := srv.createCase(t, admin)
	base := "/v0/cases/" + created.Case.ID

	res, data := srv.do(t, http.MethodPost, base+"/actions/ASSIGN_MANAGER", admin, map[string]any{"person_id": mgr.PersonID})
	expectStatus(t, res, data, http.StatusOK)
	res, data = srv.do(t, http.MethodPost, base+"/actions/ASSIGN_SPECIALIST", admin, map[string]any{"person_id": spc.PersonID})
	expectStatus(t, res, data, http.StatusOK)
	var tr TransitionResponse
	if err := json.Unmarshal(data, &tr); err != nil {
		t.Fatalf("unmarshal transition: %v", err)
	}
	if tr.State != domain.StateManagerAssigned {
		t.Fatalf("expected MANAGER_ASSIGNED until payment, got %s", tr.State)
	}
	res, data = srv.do(t, http.MethodPost, base+"/actions/CLOSE", admin, nil)
	expectStatus(t, res, data, http.StatusForbidden)
}

func TestHandleErrorStatuses(t *testing.T) {
	cases := []struct {
		err  error
		want int
		code string
	}{
		{auth.ForbiddenError{Action: domain.ActionClose, State: domain.StatePaid}, http.StatusForbidden, "forbidden"},
		{fmt.Errorf("case x: %w", repo.ErrNotFound), http.StatusNotFound, "not_found"},
		{workflow.ValidationError{Field: "amount", Reason: "must be greater than zero"}, http.StatusUnprocessableEntity, "validation_failed"},
		{workflow.ConflictError{Action: domain.ActionClose, Reason: "no payments"}, http.StatusConflict, "conflict"},
		{engine.AtomicityError{Op: "append audit", Err: errors.New("disk full")}, http.StatusInternalServerError, "atomicity_failed"},
		{errors.New("boom"), http.StatusInternalServerError, "internal_error"},
	}
	for _, tc := range cases {
		got := handleError(tc.err).(*apiError)
		if got.GetStatus() != tc.want || got.Body.Code != tc.code {
			t.Fatalf("%v: got %d/%s, want %d/%s", tc.err, got.GetStatus(), got.Body.Code, tc.want, tc.code)
		}
	}
}

func TestUnknownCaseAndPayload(t *testing.T) {
	srv := newTestServer(t)
	admin := srv.token(t, "admin-1", "ADMIN")
	res, data := srv.do(t, http.MethodGet, "/v0/cases/does-not-exist", admin, nil)
	expectStatus(t, res, data, http.StatusNotFound)

	created := srv.createCase(t, admin)
	res, data = srv.do(t, http.MethodPost, "/v0/cases/"+created.Case.ID+"/actions/ASSIGN_MANAGER", admin, map[string]any{"person": "x"})
	expectStatus(t, res, data, http.StatusUnprocessableEntity)
}

func TestStaffRegistrationIsAdminOnly(t *testing.T) {
	srv := newTestServer(t)
	operator := srv.token(t, "op-1", "OPERATOR")
	res, data := srv.do(t, http.MethodPost, "/v0/staff", operator, map[string]any{
		"person": map[string]any{"document_type": "DNI", "document_number": "1", "first_names": "A", "last_names": "B"},
		"role":   "MANAGER",
	})
	expectStatus(t, res, data, http.StatusForbidden)
}

func TestListCasesAndMetrics(t *testing.T) {
	srv := newTestServer(t)
	admin := srv.token(t, "admin-1", "ADMIN")
	srv.createCase(t, admin)
	srv.createCase(t, admin)

	res, data := srv.do(t, http.MethodGet, "/v0/cases?limit=1", admin, nil)
	expectStatus(t, res, data, http.StatusOK)
	var page CaseListResponse
	if err := json.Unmarshal(data, &page); err != nil {
		t.Fatalf("unmarshal list: %v", err)
	}
	if len(page.Items) != 1 || page.NextCursor == "" {
		t.Fatalf("expected one item and a cursor, got %d items cursor=%q", len(page.Items), page.NextCursor)
	}
	res, data = srv.do(t, http.MethodGet, "/v0/cases?state=NOPE", admin, nil)
	expectStatus(t, res, data, http.StatusUnprocessableEntity)

	res, data = srv.do(t, http.MethodGet, "/metrics", "", nil)
	expectStatus(t, res, data, http.StatusOK)
	if !strings.Contains(string(data), "caseline_http_requests_total") {
		t.Fatalf("expected http metrics in exposition")
	}
}

func TestAPIKeyAuthentication(t *testing.T) {
	srv := newTestServer(t)
	admin := srv.token(t, "admin-1", "ADMIN")
	operator := srv.token(t, "op-1", "OPERATOR")

	res, data := srv.do(t, http.MethodPost, "/v0/api-keys", operator, map[string]any{"person_id": "op-1", "roles": []string{"OPERATOR"}})
	expectStatus(t, res, data, http.StatusForbidden)

	res, data = srv.do(t, http.MethodPost, "/v0/api-keys", admin, map[string]any{"person_id": "kiosk-1", "name": "front desk", "roles": []string{"OPERATOR"}})
	expectStatus(t, res, data, http.StatusCreated)
	var issued IssueAPIKeyResponse
	if err := json.Unmarshal(data, &issued); err != nil {
		t.Fatalf("unmarshal key: %v", err)
	}
	if !strings.HasPrefix(issued.Key, "cl_") {
		t.Fatalf("unexpected key format %q", issued.Key)
	}

	withKey := func(path string) (*http.Response, []byte) {
		req, err := http.NewRequest(http.MethodGet, srv.URL+path, nil)
		if err != nil {
			t.Fatalf("new request: %v", err)
		}
		req.Header.Set("X-Api-Key", issued.Key)
		r, err := srv.client.Do(req)
		if err != nil {
			t.Fatalf("do request: %v", err)
		}
		defer r.Body.Close()
		b, _ := io.ReadAll(r.Body)
		return r, b
	}
	res, data = withKey("/v0/services")
	expectStatus(t, res, data, http.StatusOK)

	res, data = srv.do(t, http.MethodDelete, "/v0/api-keys/"+issued.ID, admin, nil)
	expectStatus(t, res, data, http.StatusNoContent)
	res, data = withKey("/v0/services")
	expectStatus(t, res, data, http.StatusUnauthorized)
}

func TestPromotersOverHTTP(t *testing.T) {
	srv := newTestServer(t)
	operator := srv.token(t, "op-1", "OPERATOR")

	res, data := srv.do(t, http.MethodPost, "/v0/promoters", operator, map[string]any{"kind": "COMPANY"})
	expectStatus(t, res, data, http.StatusUnprocessableEntity)

	res, data = srv.do(t, http.MethodPost, "/v0/promoters", operator, map[string]any{"kind": "OTHER", "other_name": "Radio Sur", "source": "ads"})
	expectStatus(t, res, data, http.StatusCreated)
	var p domain.Promoter
	if err := json.Unmarshal(data, &p); err != nil {
		t.Fatalf("unmarshal promoter: %v", err)
	}

	client := map[string]any{"document_type": "DNI", "document_number": "44556677", "first_names": "Juan", "last_names": "Perez"}
	res, data = srv.do(t, http.MethodPost, "/v0/cases", operator, map[string]any{"client": client, "promoter_id": "missing"})
	expectStatus(t, res, data, http.StatusUnprocessableEntity)
	res, data = srv.do(t, http.MethodPost, "/v0/cases", operator, map[string]any{"client": client, "promoter_id": p.ID})
	expectStatus(t, res, data, http.StatusCreated)

	res, data = srv.do(t, http.MethodGet, "/v0/promoters", operator, nil)
	expectStatus(t, res, data, http.StatusOK)
	var list PromoterListResponse
	if err := json.Unmarshal(data, &list); err != nil {
		t.Fatalf("unmarshal promoters: %v", err)
	}
	if len(list.Items) != 1 || list.Items[0].Name != "Radio Sur" {
		t.Fatalf("unexpected promoters %+v", list.Items)
	}
}

func TestPolicyIsAdminOnlyOverHTTP(t *testing.T) {
	srv := newTestServer(t)
	admin := srv.token(t, "admin-1", "ADMIN")
	operator := srv.token(t, "op-1", "OPERATOR")

	res, data := srv.do(t, http.MethodGet, "/v0/policy", operator, nil)
	expectStatus(t, res, data, http.StatusForbidden)

	res, data = srv.do(t, http.MethodGet, "/v0/policy", admin, nil)
	expectStatus(t, res, data, http.StatusOK)
	var pol PolicyResponse
	if err := json.Unmarshal(data, &pol); err != nil {
		t.Fatalf("unmarshal policy: %v", err)
	}
	if len(pol.Items) != len(domain.AllRoles)*len(domain.AllStates) {
		t.Fatalf("expected full matrix, got %d rows", len(pol.Items))
	}
	for _, row := range pol.Items {
		if row.Role == domain.RoleAdmin && row.State == domain.StateClosed {
			if len(row.Actions) != 1 || row.Actions[0] != domain.ActionOverride {
				t.Fatalf("admin in CLOSED should only override, got %v", row.Actions)
			}
			return
		}
	}
	t.Fatalf("admin CLOSED row missing")
}
