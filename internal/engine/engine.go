package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"caseline/internal/audit"
	"caseline/internal/config"
	"caseline/internal/domain"
	"caseline/internal/engine/auth"
	"caseline/internal/engine/workflow"
	"caseline/internal/metrics"
	"caseline/internal/repo"
)

// Engine is the only component that mutates cases. Every mutation runs in
// one transaction that also carries its audit entries.
type Engine struct {
	DB     *sqlx.DB
	Repo   repo.Repo
	Audit  audit.Writer
	Trail  audit.Reader
	Config *config.Config
	Now    func() time.Time
	NewID  func() string
	Log    *zap.Logger
}

func New(db *sqlx.DB, cfg *config.Config, log *zap.Logger) Engine {
	if log == nil {
		log = zap.NewNop()
	}
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Config: cfg,
		Now:    time.Now,
		NewID:  func() string { return uuid.NewString() },
		Log:    log,
	}
}

// AtomicityError reports that the transaction carrying a mutation and its
// audit entries could not be opened, written or committed. Nothing was
// persisted.
type AtomicityError struct {
	Op  string
	Err error
}

func (e AtomicityError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e AtomicityError) Unwrap() error { return e.Err }

var validate = validator.New()

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) newID() string {
	if e.NewID != nil {
		return e.NewID()
	}
	return uuid.NewString()
}

func (e Engine) log() *zap.Logger {
	if e.Log != nil {
		return e.Log
	}
	return zap.NewNop()
}

func (e Engine) currencies() []string {
	if e.Config != nil && len(e.Config.Currencies) > 0 {
		return e.Config.Currencies
	}
	return []string{"PEN", "USD"}
}

func (e Engine) executor(q repo.Queryer) workflow.Executor {
	return workflow.Executor{
		Staff:      repo.StaffRegistry{Repo: e.Repo, Q: q},
		Services:   repo.ServiceCatalog{Repo: e.Repo, Q: q},
		Currencies: e.currencies(),
		NewID:      e.newID,
	}
}

// Execute runs one transition against a case and returns the updated
// aggregate as committed.
func (e Engine) Execute(ctx context.Context, caseID string, caller workflow.Caller, cmd workflow.Command) (workflow.Result, error) {
	started := time.Now()
	action := "UNKNOWN"
	if cmd != nil {
		action = string(cmd.Action())
	}
	res, err := e.execute(ctx, caseID, caller, cmd)
	metrics.ObserveTransition(action, started, err)
	if err != nil {
		e.log().Info("transition rejected",
			zap.String("case_id", caseID),
			zap.String("action", action),
			zap.String("actor_id", caller.PersonID),
			zap.String("outcome", metrics.Outcome(err)),
			zap.Error(err))
		return workflow.Result{}, err
	}
	e.log().Info("transition applied",
		zap.String("case_id", caseID),
		zap.String("action", action),
		zap.String("actor_id", caller.PersonID),
		zap.String("from", string(res.Before)),
		zap.String("to", string(res.After)),
		zap.Int("audit_entries", len(res.Entries)))
	return res, nil
}

func (e Engine) execute(ctx context.Context, caseID string, caller workflow.Caller, cmd workflow.Command) (workflow.Result, error) {
	tx, err := e.DB.BeginTxx(ctx, nil)
	if err != nil {
		return workflow.Result{}, AtomicityError{Op: "begin transition", Err: err}
	}
	defer tx.Rollback()

	agg, err := e.loadAggregate(ctx, tx, caseID, true)
	if err != nil {
		return workflow.Result{}, err
	}
	res, err := e.executor(tx).Execute(ctx, agg, caller, cmd, e.now())
	if err != nil {
		return workflow.Result{}, err
	}
	if !res.Changed() {
		return res, nil
	}
	if err := e.persist(ctx, tx, &res); err != nil {
		return workflow.Result{}, err
	}
	if err := tx.Commit(); err != nil {
		return workflow.Result{}, AtomicityError{Op: "commit transition", Err: err}
	}
	metrics.AddAuditEntries(len(res.Entries))
	return res, nil
}

// persist writes a transition result. Superseded assignments are written
// before new ones so the current-assignment index never sees two rows.
func (e Engine) persist(ctx context.Context, tx *sqlx.Tx, res *workflow.Result) error {
	agg := res.Aggregate
	if res.ClientChanged {
		if err := e.Repo.UpdatePerson(ctx, tx, agg.Client); err != nil {
			return AtomicityError{Op: "update client", Err: err}
		}
	}
	for _, a := range res.Superseded {
		if err := e.Repo.SupersedeAssignment(ctx, tx, a); err != nil {
			return AtomicityError{Op: "supersede assignment", Err: err}
		}
	}
	for _, a := range res.Inserted {
		if err := e.Repo.InsertAssignment(ctx, tx, a); err != nil {
			return AtomicityError{Op: "insert assignment", Err: err}
		}
	}
	if res.Payment != nil {
		if err := e.Repo.InsertPayment(ctx, tx, *res.Payment); err != nil {
			return AtomicityError{Op: "insert payment", Err: err}
		}
	}
	if res.CaseChanged {
		if err := e.Repo.UpdateCase(ctx, tx, agg.Case); err != nil {
			return AtomicityError{Op: "update case", Err: err}
		}
	}
	stored, err := e.Audit.Append(ctx, tx, res.Entries...)
	if err != nil {
		return AtomicityError{Op: "append audit", Err: err}
	}
	res.Entries = stored
	return nil
}

func (e Engine) loadAggregate(ctx context.Context, q repo.Queryer, caseID string, lock bool) (workflow.Aggregate, error) {
	var (
		c   domain.Case
		err error
	)
	if lock {
		c, err = e.Repo.LockCase(ctx, q, caseID)
	} else {
		c, err = e.Repo.GetCase(ctx, q, caseID)
	}
	if errors.Is(err, repo.ErrNotFound) {
		return workflow.Aggregate{}, fmt.Errorf("case %s: %w", caseID, repo.ErrNotFound)
	}
	if err != nil {
		return workflow.Aggregate{}, fmt.Errorf("load case %s: %w", caseID, err)
	}
	client, err := e.Repo.GetPerson(ctx, q, c.ClientID)
	if err != nil {
		return workflow.Aggregate{}, fmt.Errorf("load client %s: %w", c.ClientID, err)
	}
	assignments, err := e.Repo.ListAssignments(ctx, q, c.ID)
	if err != nil {
		return workflow.Aggregate{}, fmt.Errorf("load assignments: %w", err)
	}
	payments, err := e.Repo.ListPayments(ctx, q, c.ID)
	if err != nil {
		return workflow.Aggregate{}, fmt.Errorf("load payments: %w", err)
	}
	return workflow.Aggregate{Case: c, Client: client, Assignments: assignments, Payments: payments}, nil
}

// CaseView is a case with its derived state and the actions the viewing
// caller may perform right now.
type CaseView struct {
	workflow.Aggregate
	State   domain.OperationalState
	Allowed []domain.Action
}

// GetCase loads a case by id, or by code when ref looks like one.
func (e Engine) GetCase(ctx context.Context, ref string, caller workflow.Caller) (CaseView, error) {
	id := ref
	if e.Config != nil && strings.HasPrefix(ref, e.Config.Case.CodePrefix+"-") {
		c, err := e.Repo.GetCaseByCode(ctx, e.DB, ref)
		if errors.Is(err, repo.ErrNotFound) {
			return CaseView{}, fmt.Errorf("case %s: %w", ref, repo.ErrNotFound)
		}
		if err != nil {
			return CaseView{}, err
		}
		id = c.ID
	}
	agg, err := e.loadAggregate(ctx, e.DB, id, false)
	if err != nil {
		return CaseView{}, err
	}
	state := agg.State()
	return CaseView{
		Aggregate: agg,
		State:     state,
		Allowed:   auth.AllowedActions(caller.Roles, state).Actions(),
	}, nil
}

// AuditTrail lists a case's audit entries newest first.
func (e Engine) AuditTrail(ctx context.Context, caseID string, limit int) ([]domain.AuditEntry, error) {
	if _, err := e.Repo.GetCase(ctx, e.DB, caseID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, fmt.Errorf("case %s: %w", caseID, repo.ErrNotFound)
		}
		return nil, err
	}
	return e.Trail.List(ctx, e.DB, caseID, limit)
}

type CaseSummary struct {
	repo.CaseListItem
	State domain.OperationalState `json:"state"`
}

type ListOptions struct {
	Query string
	// State filters on the derived operational state.
	State domain.OperationalState
	// Mine restricts the list to the caller's own cases.
	Mine   bool
	Limit  int
	Cursor string
}

// ListCases lists cases newest first with their derived state.
func (e Engine) ListCases(ctx context.Context, caller workflow.Caller, opts ListOptions) ([]CaseSummary, error) {
	f := repo.CaseFilters{Query: opts.Query}
	if opts.Mine {
		f.MinePersonID = caller.PersonID
		f.MineRoles = caller.Roles
	}
	if opts.Cursor != "" {
		createdAt, id, ok := strings.Cut(opts.Cursor, "|")
		if !ok {
			return nil, workflow.ValidationError{Field: "cursor", Reason: "malformed"}
		}
		f.CursorCreatedAt, f.CursorID = createdAt, id
	}
	// The state filter runs after derivation, so fetch without a limit.
	if opts.State == "" {
		f.Limit = opts.Limit
	}
	items, err := e.Repo.ListCases(ctx, e.DB, f)
	if err != nil {
		return nil, err
	}
	out := []CaseSummary{}
	for _, it := range items {
		st := workflow.Derive(it.AttentionStatus, it.PaymentStatus, it.HasManager, it.HasSpecialist)
		if opts.State != "" && st != opts.State {
			continue
		}
		out = append(out, CaseSummary{CaseListItem: it, State: st})
		if opts.Limit > 0 && len(out) == opts.Limit {
			break
		}
	}
	return out, nil
}

// Cursor returns the pagination cursor that continues after s.
func Cursor(s CaseSummary) string {
	return s.CreatedAt + "|" + s.ID
}
