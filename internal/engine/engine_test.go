package engine_test

import (
	"context"
	"errors"
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

type testEnv struct {
	Engine     engine.Engine
	Ctx        context.Context
	Manager    domain.Staff
	Manager2   domain.Staff
	Specialist domain.Staff
}

var (
	adminCaller    = workflow.Caller{PersonID: "admin", Roles: []domain.Role{domain.RoleAdmin}}
	operatorCaller = workflow.Caller{PersonID: "operator", Roles: []domain.Role{domain.RoleOperator}}
)

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if _, err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	cfg := config.Default()
	eng := engine.New(conn, cfg, nil)
	eng.Now = func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }
	ctx := context.Background()
	if err := eng.Repo.UpsertService(ctx, conn, domain.Service{
		ID: "consult.virtual", Description: "Virtual consultation", TariffAmount: decimal.RequireFromString("150.00"), TariffCurrency: "PEN",
	}); err != nil {
		t.Fatalf("seed service: %v", err)
	}
	env := testEnv{Engine: eng, Ctx: ctx}
	env.Manager = registerStaff(t, env, "10000001", "Marta", "Gil", "MANAGER")
	env.Manager2 = registerStaff(t, env, "10000002", "Pablo", "Ruiz", "MANAGER")
	env.Specialist = registerStaff(t, env, "10000003", "Sara", "Vega", "SPECIALIST")
	return env
}

func registerStaff(t *testing.T, env testEnv, doc, first, last, role string) domain.Staff {
	t.Helper()
	s, err := env.Engine.RegisterStaff(env.Ctx, engine.StaffInput{
		Person: engine.PersonInput{DocumentType: "DNI", DocumentNumber: doc, FirstNames: first, LastNames: last},
		Role:   role,
	}, adminCaller)
	if err != nil {
		t.Fatalf("register staff %s: %v", doc, err)
	}
	return s
}

func createCase(t *testing.T, env testEnv) workflow.Aggregate {
	t.Helper()
	agg, err := env.Engine.CreateCase(env.Ctx, engine.CreateCaseInput{
		Client:    engine.PersonInput{DocumentType: "DNI", DocumentNumber: "44556677", FirstNames: "Juan", LastNames: "Perez"},
		ServiceID: "consult.virtual",
	}, operatorCaller)
	if err != nil {
		t.Fatalf("create case: %v", err)
	}
	return agg
}

func caller(s domain.Staff) workflow.Caller {
	return workflow.Caller{PersonID: s.PersonID, Roles: []domain.Role{s.Role}}
}

func mustExec(t *testing.T, env testEnv, caseID string, c workflow.Caller, cmd workflow.Command) workflow.Result {
	t.Helper()
	res, err := env.Engine.Execute(env.Ctx, caseID, c, cmd)
	if err != nil {
		t.Fatalf("%s: %v", cmd.Action(), err)
	}
	return res
}

func chronological(t *testing.T, env testEnv, caseID string) []string {
	t.Helper()
	entries, err := env.Engine.AuditTrail(env.Ctx, caseID, 0)
	if err != nil {
		t.Fatalf("audit trail: %v", err)
	}
	out := make([]string, len(entries))
	for i, e := range entries {
		out[len(entries)-1-i] = e.Field
	}
	return out
}

func equalFields(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestCaseLifecycleEndToEnd(t *testing.T) {
	env := newTestEnv(t)
	agg := createCase(t, env)
	if agg.Case.Code != "CASE-2024-0001" {
		t.Fatalf("unexpected code %s", agg.Case.Code)
	}
	if agg.State() != domain.StateRegistered {
		t.Fatalf("expected REGISTERED, got %s", agg.State())
	}
	if agg.Case.TariffAmount == nil || !agg.Case.TariffAmount.Equal(decimal.RequireFromString("150")) {
		t.Fatalf("expected tariff snapshot, got %v", agg.Case.TariffAmount)
	}
	id := agg.Case.ID

	res := mustExec(t, env, id, operatorCaller, workflow.AssignManager{PersonID: env.Manager.PersonID})
	if res.After != domain.StateManagerAssigned {
		t.Fatalf("expected MANAGER_ASSIGNED, got %s", res.After)
	}
	res = mustExec(t, env, id, caller(env.Manager), workflow.RegisterPayment{Channel: "transfer", Amount: decimal.NewFromInt(100), Currency: "PEN"})
	if res.After != domain.StatePaid {
		t.Fatalf("expected PAID, got %s", res.After)
	}
	res = mustExec(t, env, id, caller(env.Manager), workflow.AssignSpecialist{PersonID: env.Specialist.PersonID})
	if res.After != domain.StateSpecialistAssigned {
		t.Fatalf("expected SPECIALIST_ASSIGNED, got %s", res.After)
	}
	res = mustExec(t, env, id, caller(env.Specialist), workflow.Close{})
	if res.After != domain.StateClosed {
		t.Fatalf("expected CLOSED, got %s", res.After)
	}

	view, err := env.Engine.GetCase(env.Ctx, id, adminCaller)
	if err != nil {
		t.Fatalf("get case: %v", err)
	}
	if view.State != domain.StateClosed || view.Case.AttentionStatus != domain.AttentionAttended {
		t.Fatalf("unexpected persisted state %s/%s", view.State, view.Case.AttentionStatus)
	}
	if len(view.Allowed) != 1 || view.Allowed[0] != domain.ActionOverride {
		t.Fatalf("expected only OVERRIDE for admin, got %v", view.Allowed)
	}
	if len(view.Payments) != 1 || !view.Payments[0].Amount.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("expected one payment of 100, got %+v", view.Payments)
	}

	want := []string{"case_created", "manager_assignment", "payment_registered", "payment_status", "specialist_assignment", "attention_status"}
	if got := chronological(t, env, id); !equalFields(got, want) {
		t.Fatalf("audit order: got %v want %v", got, want)
	}
}

func TestGetCaseByCode(t *testing.T) {
	env := newTestEnv(t)
	agg := createCase(t, env)
	view, err := env.Engine.GetCase(env.Ctx, agg.Case.Code, operatorCaller)
	if err != nil {
		t.Fatalf("get by code: %v", err)
	}
	if view.Case.ID != agg.Case.ID {
		t.Fatalf("expected %s, got %s", agg.Case.ID, view.Case.ID)
	}
	if _, err := env.Engine.GetCase(env.Ctx, "CASE-2024-9999", operatorCaller); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestCreateCaseReusesClientAndNumbersCodes(t *testing.T) {
	env := newTestEnv(t)
	first := createCase(t, env)
	second := createCase(t, env)
	if second.Case.Code != "CASE-2024-0002" {
		t.Fatalf("unexpected second code %s", second.Case.Code)
	}
	if first.Client.ID != second.Client.ID {
		t.Fatalf("expected client reused by document")
	}
}

func TestCreateCaseValidation(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.CreateCase(env.Ctx, engine.CreateCaseInput{
		Client: engine.PersonInput{DocumentType: "DNI", FirstNames: "Ana", LastNames: "Diaz"},
	}, operatorCaller)
	var ve workflow.ValidationError
	if !errors.As(err, &ve) || ve.Field != "client.document_number" {
		t.Fatalf("expected client.document_number validation error, got %v", err)
	}
	_, err = env.Engine.CreateCase(env.Ctx, engine.CreateCaseInput{
		Client:    engine.PersonInput{DocumentType: "DNI", DocumentNumber: "1", FirstNames: "Ana", LastNames: "Diaz"},
		ServiceID: "nope",
	}, operatorCaller)
	if !errors.As(err, &ve) || ve.Field != "service_id" {
		t.Fatalf("expected service_id validation error, got %v", err)
	}
}

func TestChangeManagerLeavesOneCurrentRow(t *testing.T) {
	env := newTestEnv(t)
	id := createCase(t, env).Case.ID
	mustExec(t, env, id, operatorCaller, workflow.AssignManager{PersonID: env.Manager.PersonID})
	res := mustExec(t, env, id, operatorCaller, workflow.ChangeManager{PersonID: env.Manager2.PersonID})
	if len(res.Entries) != 1 || res.Entries[0].Field != "manager_change" {
		t.Fatalf("expected one manager_change entry, got %+v", res.Entries)
	}
	if *res.Entries[0].OldValue != "Marta Gil" || *res.Entries[0].NewValue != "Pablo Ruiz" {
		t.Fatalf("unexpected names %s -> %s", *res.Entries[0].OldValue, *res.Entries[0].NewValue)
	}
	var current int
	err := env.Engine.DB.Get(&current, `SELECT count(*) FROM assignments WHERE case_id=? AND role='MANAGER' AND is_current=TRUE`, id)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if current != 1 {
		t.Fatalf("expected one current manager, got %d", current)
	}
	var total int
	if err := env.Engine.DB.Get(&total, `SELECT count(*) FROM assignments WHERE case_id=?`, id); err != nil {
		t.Fatalf("count: %v", err)
	}
	if total != 2 {
		t.Fatalf("expected superseded row kept, got %d rows", total)
	}
}

func TestRejectedTransitionsAreNotAudited(t *testing.T) {
	env := newTestEnv(t)
	id := createCase(t, env).Case.ID

	_, err := env.Engine.Execute(env.Ctx, id, caller(env.Specialist), workflow.AssignManager{PersonID: env.Manager.PersonID})
	var fe auth.ForbiddenError
	if !errors.As(err, &fe) {
		t.Fatalf("expected forbidden, got %v", err)
	}
	_, err = env.Engine.Execute(env.Ctx, id, operatorCaller, workflow.RegisterPayment{Channel: "cash", Amount: decimal.Zero})
	var ve workflow.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if got := chronological(t, env, id); !equalFields(got, []string{"case_created"}) {
		t.Fatalf("expected only case_created, got %v", got)
	}
}

func TestCancelTwiceIsForbidden(t *testing.T) {
	env := newTestEnv(t)
	id := createCase(t, env).Case.ID
	mustExec(t, env, id, operatorCaller, workflow.Cancel{})
	_, err := env.Engine.Execute(env.Ctx, id, operatorCaller, workflow.Cancel{})
	var fe auth.ForbiddenError
	if !errors.As(err, &fe) || fe.State != domain.StateCancelled {
		t.Fatalf("expected forbidden in CANCELLED, got %v", err)
	}
}

func TestOverrideOnClosedCase(t *testing.T) {
	env := newTestEnv(t)
	id := createCase(t, env).Case.ID
	mustExec(t, env, id, operatorCaller, workflow.AssignManager{PersonID: env.Manager.PersonID})
	mustExec(t, env, id, caller(env.Manager), workflow.RegisterPayment{Channel: "cash", Amount: decimal.NewFromInt(150)})
	mustExec(t, env, id, caller(env.Manager), workflow.AssignSpecialist{PersonID: env.Specialist.PersonID})
	mustExec(t, env, id, caller(env.Specialist), workflow.Close{})

	place := "Arequipa"
	res := mustExec(t, env, id, adminCaller, workflow.Override{
		Justification: "client moved",
		Target:        workflow.EditData{AttentionPlace: &place},
	})
	if len(res.Entries) != 2 || res.Entries[0].Field != "override" || res.Entries[1].Field != "attention_place" {
		t.Fatalf("unexpected override entries %+v", res.Entries)
	}
	if res.Entries[0].Seq+1 != res.Entries[1].Seq {
		t.Fatalf("expected consecutive sequence numbers, got %d and %d", res.Entries[0].Seq, res.Entries[1].Seq)
	}
	view, err := env.Engine.GetCase(env.Ctx, id, adminCaller)
	if err != nil {
		t.Fatal(err)
	}
	if view.Case.AttentionPlace == nil || *view.Case.AttentionPlace != "Arequipa" {
		t.Fatalf("expected place updated")
	}
	if view.State != domain.StateClosed {
		t.Fatalf("expected still CLOSED, got %s", view.State)
	}
}

func TestAuditFailureRollsBackTransition(t *testing.T) {
	env := newTestEnv(t)
	id := createCase(t, env).Case.ID
	if _, err := env.Engine.DB.Exec(`DROP TABLE audit_entries`); err != nil {
		t.Fatalf("drop audit table: %v", err)
	}
	_, err := env.Engine.Execute(env.Ctx, id, adminCaller, workflow.AssignManager{PersonID: env.Manager.PersonID})
	var ae engine.AtomicityError
	if !errors.As(err, &ae) {
		t.Fatalf("expected atomicity error, got %v", err)
	}
	var rows int
	if err := env.Engine.DB.Get(&rows, `SELECT count(*) FROM assignments WHERE case_id=?`, id); err != nil {
		t.Fatalf("count: %v", err)
	}
	if rows != 0 {
		t.Fatalf("expected assignment rolled back, got %d rows", rows)
	}
	var updatedBy string
	if err := env.Engine.DB.Get(&updatedBy, `SELECT updated_by FROM cases WHERE id=?`, id); err != nil {
		t.Fatalf("read case: %v", err)
	}
	if updatedBy != operatorCaller.PersonID {
		t.Fatalf("expected case untouched, got updated_by=%s", updatedBy)
	}
}

func TestExecuteUnknownCase(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.Execute(env.Ctx, "missing", operatorCaller, workflow.Cancel{})
	if !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestInactiveStaffCannotBeAssigned(t *testing.T) {
	env := newTestEnv(t)
	id := createCase(t, env).Case.ID
	if err := env.Engine.SetStaffActive(env.Ctx, env.Manager.PersonID, domain.RoleManager, false, adminCaller); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	_, err := env.Engine.Execute(env.Ctx, id, operatorCaller, workflow.AssignManager{PersonID: env.Manager.PersonID})
	var ve workflow.ValidationError
	if !errors.As(err, &ve) || ve.Field != "person_id" {
		t.Fatalf("expected person_id validation error, got %v", err)
	}
	if err := env.Engine.SetStaffActive(env.Ctx, env.Manager.PersonID, domain.RoleManager, true, operatorCaller); err == nil {
		t.Fatalf("expected non-admin staff update to be forbidden")
	}
}

func TestListCasesByStateAndOwnership(t *testing.T) {
	env := newTestEnv(t)
	a := createCase(t, env).Case.ID
	b := createCase(t, env).Case.ID
	mustExec(t, env, a, operatorCaller, workflow.AssignManager{PersonID: env.Manager.PersonID})

	all, err := env.Engine.ListCases(env.Ctx, adminCaller, engine.ListOptions{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 cases, got %d", len(all))
	}
	assigned, err := env.Engine.ListCases(env.Ctx, adminCaller, engine.ListOptions{State: domain.StateManagerAssigned})
	if err != nil {
		t.Fatalf("list by state: %v", err)
	}
	if len(assigned) != 1 || assigned[0].ID != a {
		t.Fatalf("expected only %s in MANAGER_ASSIGNED, got %+v", a, assigned)
	}
	mine, err := env.Engine.ListCases(env.Ctx, caller(env.Manager), engine.ListOptions{Mine: true})
	if err != nil {
		t.Fatalf("list mine: %v", err)
	}
	if len(mine) != 1 || mine[0].ID != a {
		t.Fatalf("expected manager to see only %s, got %+v", a, mine)
	}
	found, err := env.Engine.ListCases(env.Ctx, adminCaller, engine.ListOptions{Query: "perez", Limit: 1})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(found) != 1 {
		t.Fatalf("expected one match with limit, got %d", len(found))
	}
	next, err := env.Engine.ListCases(env.Ctx, adminCaller, engine.ListOptions{Limit: 1, Cursor: engine.Cursor(found[0])})
	if err != nil {
		t.Fatalf("next page: %v", err)
	}
	if len(next) != 1 || next[0].ID == found[0].ID {
		t.Fatalf("expected a different case on the next page")
	}
	_ = b
}

func TestAPIKeyLifecycle(t *testing.T) {
	env := newTestEnv(t)
	if _, _, err := env.Engine.IssueAPIKey(env.Ctx, "kiosk", "", []domain.Role{domain.RoleOperator}, operatorCaller); err == nil {
		t.Fatalf("expected non-admin issue to be forbidden")
	}
	key, secret, err := env.Engine.IssueAPIKey(env.Ctx, "kiosk", "front desk", []domain.Role{domain.RoleOperator, domain.RoleManager}, adminCaller)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if key.KeyHash == secret || key.KeyHash == "" {
		t.Fatalf("expected only the hash to be kept")
	}
	c, err := env.Engine.AuthenticateAPIKey(env.Ctx, secret)
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if c.PersonID != "kiosk" || len(c.Roles) != 2 {
		t.Fatalf("unexpected caller %+v", c)
	}
	if err := env.Engine.RevokeAPIKey(env.Ctx, key.ID, adminCaller); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if _, err := env.Engine.AuthenticateAPIKey(env.Ctx, secret); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected revoked key to be unknown, got %v", err)
	}
	if err := env.Engine.RevokeAPIKey(env.Ctx, key.ID, adminCaller); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected second revoke to report not found, got %v", err)
	}
}
