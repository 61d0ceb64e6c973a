/*
Package sqlite provides a SQLite-backed implementation of the incentive
storage interfaces.

INTERFACES IMPLEMENTED:
  incentive.Directory:        employees, departments, plans
  incentive.CalculationStore: calculations and their approvals

KEY TABLES:
  employees:     Reference data for payees
  departments:   Approval hierarchy (parent_id links)
  plans:         Plan definitions stored as factory JSON
  calculations:  One row per Calculation aggregate, with a version column
  approvals:     Approval history, rewritten with its calculation on save

INDEXES:
  - idx_calculations_triple: partial UNIQUE index on (employee, plan,
    period) WHERE status <> 'voided'. Two concurrent Creates for the same
    triple cannot both commit.
  - idx_approvals_queue:     pending approvals by approver (approval queue)
  - idx_approvals_expiry:    pending approvals by deadline (SLA sweep)

CONCURRENCY:
  Save is optimistic: UPDATE ... WHERE id = ? AND version = ?. Zero rows
  affected means another writer committed first and the caller gets
  incentive.ErrConcurrentModification. The calculation row and its approvals
  are written in one transaction.

WAL MODE:
  Opened with WAL so readers do not block the single writer.

TIME FORMAT:
  Timestamps are stored as fixed-width UTC strings so that lexical order is
  chronological order (the SLA sweep compares them in SQL).

USAGE:
  store, err := sqlite.New("./data/incentive.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/warp/incentive-engine/factory"
	"github.com/warp/incentive-engine/incentive"
)

const timeFormat = "2006-01-02T15:04:05.000000000Z"

var (
	_ incentive.Directory        = (*Store)(nil)
	_ incentive.CalculationStore = (*Store)(nil)
)

// Store implements the incentive storage interfaces using SQLite.
type Store struct {
	db    *sql.DB
	mu    sync.RWMutex
	plans *factory.PlanFactory
}

// New opens (and migrates) the database at dbPath.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if strings.Contains(dbPath, ":memory:") {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}

	store := &Store{db: db, plans: factory.NewPlanFactory()}
	if err := store.Migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Migrate creates the schema if it does not exist.
func (s *Store) Migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS departments (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL DEFAULT '',
		manager_id TEXT NOT NULL DEFAULT '',
		parent_id TEXT,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_departments_parent
		ON departments(parent_id);

	CREATE TABLE IF NOT EXISTS employees (
		id TEXT PRIMARY KEY,
		code TEXT NOT NULL DEFAULT '',
		email TEXT NOT NULL DEFAULT '',
		base_salary TEXT NOT NULL,
		currency TEXT NOT NULL,
		department_id TEXT NOT NULL,
		manager_id TEXT,
		status TEXT NOT NULL,
		joined_on TEXT,
		exited_on TEXT,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_employees_department
		ON employees(department_id);

	CREATE TABLE IF NOT EXISTS plans (
		id TEXT PRIMARY KEY,
		code TEXT NOT NULL,
		status TEXT NOT NULL,
		config_json TEXT NOT NULL,
		version INTEGER NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS calculations (
		id TEXT PRIMARY KEY,
		employee_id TEXT NOT NULL,
		plan_id TEXT NOT NULL,
		period_start TEXT NOT NULL,
		period_end TEXT NOT NULL,
		target_value TEXT NOT NULL,
		actual_value TEXT NOT NULL,
		base_salary TEXT NOT NULL,
		base_salary_currency TEXT NOT NULL,
		currency TEXT NOT NULL,
		achievement TEXT NOT NULL,
		applied_slab_id TEXT,
		gross TEXT NOT NULL,
		net TEXT NOT NULL,
		prorata TEXT,
		maximum_payout TEXT,
		minimum_payout TEXT,
		below_threshold BOOLEAN NOT NULL DEFAULT FALSE,
		status TEXT NOT NULL,
		rejection_reason TEXT NOT NULL DEFAULT '',
		rejected_by TEXT NOT NULL DEFAULT '',
		void_reason TEXT NOT NULL DEFAULT '',
		voided_by TEXT NOT NULL DEFAULT '',
		paid_by TEXT NOT NULL DEFAULT '',
		payment_reference TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		submitted_at TEXT,
		approved_at TEXT,
		paid_at TEXT,
		voided_at TEXT,
		version INTEGER NOT NULL
	);

	-- At most one live calculation per (employee, plan, period).
	CREATE UNIQUE INDEX IF NOT EXISTS idx_calculations_triple
		ON calculations(employee_id, plan_id, period_start, period_end)
		WHERE status <> 'voided';

	-- Overlapping periods are rejected in Create.
	CREATE INDEX IF NOT EXISTS idx_calculations_lookup
		ON calculations(employee_id, plan_id, period_start, period_end, created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_calculations_status
		ON calculations(status);

	CREATE TABLE IF NOT EXISTS approvals (
		id TEXT PRIMARY KEY,
		calculation_id TEXT NOT NULL REFERENCES calculations(id),
		seq INTEGER NOT NULL,
		approver_id TEXT NOT NULL,
		level INTEGER NOT NULL,
		status TEXT NOT NULL,
		action_date TEXT,
		comments TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		expires_at TEXT,
		delegated_to_id TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_approvals_calculation
		ON approvals(calculation_id, seq);
	CREATE INDEX IF NOT EXISTS idx_approvals_queue
		ON approvals(approver_id, status);
	CREATE INDEX IF NOT EXISTS idx_approvals_expiry
		ON approvals(status, expires_at);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// withTx runs fn inside a database transaction, committing on nil.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// =============================================================================
// DEPARTMENTS
// =============================================================================

func (s *Store) PutDepartment(ctx context.Context, d incentive.Department) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var parent sql.NullString
	if d.ParentID != nil {
		parent = nullString(string(*d.ParentID))
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO departments (id, name, manager_id, parent_id, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			manager_id = excluded.manager_id,
			parent_id = excluded.parent_id,
			updated_at = excluded.updated_at
	`, d.ID, d.Name, d.ManagerID, parent, formatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("failed to save department: %w", err)
	}
	return nil
}

func (s *Store) GetDepartment(ctx context.Context, id incentive.DepartmentID) (*incentive.Department, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getDepartment(ctx, id)
}

func (s *Store) getDepartment(ctx context.Context, id incentive.DepartmentID) (*incentive.Department, error) {
	var (
		d      incentive.Department
		parent sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT id, name, manager_id, parent_id FROM departments WHERE id = ?", id,
	).Scan(&d.ID, &d.Name, &d.ManagerID, &parent)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, incentive.NotFoundError("department", string(id))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load department: %w", err)
	}
	if parent.Valid {
		p := incentive.DepartmentID(parent.String)
		d.ParentID = &p
	}
	return &d, nil
}

// GetHierarchy walks parent links to the root. A missing department
// anywhere on the way is NotFound; a cycle ends the walk.
func (s *Store) GetHierarchy(ctx context.Context, id incentive.DepartmentID) ([]incentive.Department, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var chain []incentive.Department
	seen := make(map[incentive.DepartmentID]bool)
	current := id
	for !seen[current] {
		seen[current] = true
		d, err := s.getDepartment(ctx, current)
		if err != nil {
			return nil, err
		}
		chain = append(chain, *d)
		if d.ParentID == nil {
			break
		}
		current = *d.ParentID
	}
	return chain, nil
}

// =============================================================================
// EMPLOYEES
// =============================================================================

func (s *Store) PutEmployee(ctx context.Context, e incentive.Employee) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var manager sql.NullString
	if e.ManagerID != nil {
		manager = nullString(string(*e.ManagerID))
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO employees (id, code, email, base_salary, currency, department_id, manager_id,
		                       status, joined_on, exited_on, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			code = excluded.code,
			email = excluded.email,
			base_salary = excluded.base_salary,
			currency = excluded.currency,
			department_id = excluded.department_id,
			manager_id = excluded.manager_id,
			status = excluded.status,
			joined_on = excluded.joined_on,
			exited_on = excluded.exited_on,
			updated_at = excluded.updated_at
	`,
		e.ID, e.Code, e.Email, e.BaseSalary.Amount.String(), e.BaseSalary.Currency,
		e.DepartmentID, manager, e.Status,
		nullTime(e.JoinedOn), nullTime(e.ExitedOn), formatTime(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("failed to save employee: %w", err)
	}
	return nil
}

func (s *Store) GetEmployee(ctx context.Context, id incentive.EmployeeID) (*incentive.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		e                incentive.Employee
		salary, currency string
		manager          sql.NullString
		joined, exited   sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, code, email, base_salary, currency, department_id, manager_id, status, joined_on, exited_on
		FROM employees WHERE id = ?
	`, id).Scan(&e.ID, &e.Code, &e.Email, &salary, &currency, &e.DepartmentID, &manager, &e.Status, &joined, &exited)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, incentive.NotFoundError("employee", string(id))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load employee: %w", err)
	}

	amount, err := decimal.NewFromString(salary)
	if err != nil {
		return nil, fmt.Errorf("corrupt base salary for employee %s: %w", id, err)
	}
	e.BaseSalary = incentive.Money{Amount: amount, Currency: currency}
	if manager.Valid {
		m := incentive.EmployeeID(manager.String)
		e.ManagerID = &m
	}
	if e.JoinedOn, err = parseNullTime(joined); err != nil {
		return nil, err
	}
	if e.ExitedOn, err = parseNullTime(exited); err != nil {
		return nil, err
	}
	return &e, nil
}

// =============================================================================
// PLANS
// =============================================================================

// PutPlan stores the plan's JSON definition and bumps its version.
func (s *Store) PutPlan(ctx context.Context, p incentive.Plan) error {
	config, err := s.plans.Marshal(&p)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := formatTime(time.Now())
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO plans (id, code, status, config_json, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, 1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			code = excluded.code,
			status = excluded.status,
			config_json = excluded.config_json,
			version = plans.version + 1,
			updated_at = excluded.updated_at
	`, p.ID, p.Code, p.Status, config, now, now)
	if err != nil {
		return fmt.Errorf("failed to save plan: %w", err)
	}
	return nil
}

func (s *Store) GetPlan(ctx context.Context, id incentive.PlanID) (*incentive.Plan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var config string
	err := s.db.QueryRowContext(ctx, "SELECT config_json FROM plans WHERE id = ?", id).Scan(&config)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, incentive.NotFoundError("plan", string(id))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load plan: %w", err)
	}
	plan, err := s.plans.ParsePlan(config)
	if err != nil {
		return nil, fmt.Errorf("corrupt plan %s: %w", id, err)
	}
	return plan, nil
}

// =============================================================================
// CALCULATIONS
// =============================================================================

const calculationColumns = `
	id, employee_id, plan_id, period_start, period_end, target_value, actual_value,
	base_salary, base_salary_currency, currency, achievement, applied_slab_id, gross, net,
	prorata, maximum_payout, minimum_payout, below_threshold, status,
	rejection_reason, rejected_by, void_reason, voided_by, paid_by, payment_reference,
	created_at, updated_at, submitted_at, approved_at, paid_at, voided_at, version`

// Create inserts a new calculation with version 1.
func (s *Store) Create(ctx context.Context, c *incentive.Calculation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := c.Record()
	rec.Version = 1
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var existing incentive.CalculationID
		err := tx.QueryRowContext(ctx, `
			SELECT id FROM calculations
			WHERE employee_id = ? AND plan_id = ? AND status <> 'voided'
			  AND period_start < ? AND period_end > ?
			ORDER BY created_at ASC, rowid ASC
			LIMIT 1
		`, rec.EmployeeID, rec.PlanID, formatTime(rec.Period.End), formatTime(rec.Period.Start)).Scan(&existing)
		switch {
		case err == nil:
			return incentive.DuplicateError(existing)
		case !errors.Is(err, sql.ErrNoRows):
			return err
		}

		args := calculationArgs(rec)
		_, err = tx.ExecContext(ctx,
			"INSERT INTO calculations ("+calculationColumns+") VALUES ("+placeholders(len(args))+")",
			args...)
		if err != nil {
			return err
		}
		return insertApprovals(ctx, tx, rec)
	})
	if incentive.IsClientError(err) {
		return err
	}
	if isUniqueConstraintError(err) {
		existing, findErr := s.latestID(ctx, rec.EmployeeID, rec.PlanID, rec.Period)
		if findErr != nil || existing == "" {
			existing = rec.ID
		}
		return incentive.DuplicateError(existing)
	}
	if err != nil {
		return fmt.Errorf("failed to create calculation: %w", err)
	}
	c.Committed(1)
	return nil
}

// Save writes a mutated calculation if its version is still current.
func (s *Store) Save(ctx context.Context, c *incentive.Calculation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := c.Record()
	next := rec.Version + 1
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE calculations SET
				achievement = ?, applied_slab_id = ?, gross = ?, net = ?, prorata = ?,
				maximum_payout = ?, minimum_payout = ?, below_threshold = ?, status = ?,
				rejection_reason = ?, rejected_by = ?, void_reason = ?, voided_by = ?,
				paid_by = ?, payment_reference = ?, updated_at = ?,
				submitted_at = ?, approved_at = ?, paid_at = ?, voided_at = ?,
				version = ?
			WHERE id = ? AND version = ?
		`,
			rec.Achievement.Value.String(), slabArg(rec.AppliedSlabID), rec.Gross.Amount.String(), rec.Net.Amount.String(),
			percentArg(rec.Prorata), moneyArg(rec.MaximumPayout), moneyArg(rec.MinimumPayout),
			rec.BelowThreshold, rec.Status,
			rec.RejectionReason, rec.RejectedBy, rec.VoidReason, rec.VoidedBy,
			rec.PaidBy, rec.PaymentReference, formatTime(rec.UpdatedAt),
			nullTime(rec.SubmittedAt), nullTime(rec.ApprovedAt), nullTime(rec.PaidAt), nullTime(rec.VoidedAt),
			next, rec.ID, rec.Version,
		)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			var exists int
			if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM calculations WHERE id = ?", rec.ID).Scan(&exists); err != nil {
				return err
			}
			if exists == 0 {
				return incentive.NotFoundError("calculation", string(rec.ID))
			}
			return incentive.ConflictError(rec.ID, rec.Version)
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM approvals WHERE calculation_id = ?", rec.ID); err != nil {
			return err
		}
		return insertApprovals(ctx, tx, rec)
	})
	if incentive.IsClientError(err) {
		return err
	}
	if err != nil {
		return fmt.Errorf("failed to save calculation: %w", err)
	}
	c.Committed(next)
	return nil
}

func (s *Store) Get(ctx context.Context, id incentive.CalculationID) (*incentive.Calculation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, "SELECT "+calculationColumns+" FROM calculations WHERE id = ?", id)
	rec, err := scanCalculation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, incentive.NotFoundError("calculation", string(id))
	}
	if err != nil {
		return nil, err
	}
	if rec.Approvals, err = s.loadApprovals(ctx, rec.ID); err != nil {
		return nil, err
	}
	return incentive.Restore(rec), nil
}

// FindLatest returns the most recently created calculation for the triple.
func (s *Store) FindLatest(ctx context.Context, employeeID incentive.EmployeeID, planID incentive.PlanID, period incentive.DateRange) (*incentive.Calculation, error) {
	s.mu.RLock()
	id, err := s.latestID(ctx, employeeID, planID, period)
	s.mu.RUnlock()
	if err != nil {
		return nil, err
	}
	if id == "" {
		return nil, incentive.NotFoundError("calculation", string(employeeID)+"/"+string(planID))
	}
	return s.Get(ctx, id)
}

func (s *Store) latestID(ctx context.Context, employeeID incentive.EmployeeID, planID incentive.PlanID, period incentive.DateRange) (incentive.CalculationID, error) {
	var id incentive.CalculationID
	err := s.db.QueryRowContext(ctx, `
		SELECT id FROM calculations
		WHERE employee_id = ? AND plan_id = ? AND period_start = ? AND period_end = ?
		ORDER BY created_at DESC, rowid DESC
		LIMIT 1
	`, employeeID, planID, formatTime(period.Start), formatTime(period.End)).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to find calculation: %w", err)
	}
	return id, nil
}

// FindOverlapping returns the live calculations for the employee and plan
// whose half-open period intersects period.
func (s *Store) FindOverlapping(ctx context.Context, employeeID incentive.EmployeeID, planID incentive.PlanID, period incentive.DateRange) ([]*incentive.Calculation, error) {
	return s.queryCalculations(ctx, `
		SELECT `+calculationColumns+` FROM calculations
		WHERE employee_id = ? AND plan_id = ? AND status <> 'voided'
		  AND period_start < ? AND period_end > ?
		ORDER BY created_at ASC, rowid ASC
	`, employeeID, planID, formatTime(period.End), formatTime(period.Start))
}

func (s *Store) List(ctx context.Context, f incentive.CalculationFilter) ([]*incentive.Calculation, error) {
	var (
		where []string
		args  []any
	)
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, f.Status)
	}
	if f.EmployeeID != "" {
		where = append(where, "employee_id = ?")
		args = append(args, f.EmployeeID)
	}
	if f.ApproverID != "" {
		where = append(where, `status = 'pending_approval' AND EXISTS (
			SELECT 1 FROM approvals a
			WHERE a.calculation_id = calculations.id AND a.approver_id = ? AND a.status = 'pending')`)
		args = append(args, f.ApproverID)
	}
	query := "SELECT " + calculationColumns + " FROM calculations"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at ASC, rowid ASC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	return s.queryCalculations(ctx, query, args...)
}

// ListOverdue returns pending calculations whose active approval expired.
func (s *Store) ListOverdue(ctx context.Context, now time.Time) ([]*incentive.Calculation, error) {
	return s.queryCalculations(ctx, `
		SELECT `+calculationColumns+` FROM calculations
		WHERE status = 'pending_approval' AND EXISTS (
			SELECT 1 FROM approvals a
			WHERE a.calculation_id = calculations.id AND a.status = 'pending'
			  AND a.expires_at IS NOT NULL AND a.expires_at < ?)
		ORDER BY created_at ASC, rowid ASC
	`, formatTime(now))
}

func (s *Store) queryCalculations(ctx context.Context, query string, args ...any) ([]*incentive.Calculation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query calculations: %w", err)
	}
	var recs []incentive.CalculationRecord
	for rows.Next() {
		rec, err := scanCalculation(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		recs = append(recs, rec)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]*incentive.Calculation, len(recs))
	for i := range recs {
		if recs[i].Approvals, err = s.loadApprovals(ctx, recs[i].ID); err != nil {
			return nil, err
		}
		out[i] = incentive.Restore(recs[i])
	}
	return out, nil
}

// =============================================================================
// APPROVALS
// =============================================================================

func insertApprovals(ctx context.Context, db execer, rec incentive.CalculationRecord) error {
	for i, a := range rec.Approvals {
		_, err := db.ExecContext(ctx, `
			INSERT INTO approvals (id, calculation_id, seq, approver_id, level, status,
			                       action_date, comments, created_at, expires_at, delegated_to_id)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			a.ID, rec.ID, i, a.ApproverID, int(a.Level), a.Status,
			nullTime(a.ActionDate), a.Comments, formatTime(a.CreatedAt), nullTime(a.ExpiresAt), a.DelegatedToID,
		)
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) loadApprovals(ctx context.Context, id incentive.CalculationID) ([]incentive.Approval, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, approver_id, level, status, action_date, comments, created_at, expires_at, delegated_to_id
		FROM approvals WHERE calculation_id = ? ORDER BY seq ASC
	`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load approvals: %w", err)
	}
	defer rows.Close()

	var out []incentive.Approval
	for rows.Next() {
		var (
			a               incentive.Approval
			level           int
			action, expires sql.NullString
			created         string
		)
		if err := rows.Scan(&a.ID, &a.ApproverID, &level, &a.Status, &action, &a.Comments, &created, &expires, &a.DelegatedToID); err != nil {
			return nil, err
		}
		a.CalculationID = id
		a.Level = incentive.ApprovalLevel(level)
		if a.CreatedAt, err = parseTime(created); err != nil {
			return nil, err
		}
		if a.ActionDate, err = parseNullTime(action); err != nil {
			return nil, err
		}
		if a.ExpiresAt, err = parseNullTime(expires); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// =============================================================================
// ROW MAPPING
// =============================================================================

type scanner interface {
	Scan(dest ...any) error
}

func calculationArgs(r incentive.CalculationRecord) []any {
	return []any{
		r.ID, r.EmployeeID, r.PlanID, formatTime(r.Period.Start), formatTime(r.Period.End),
		r.TargetValue.String(), r.ActualValue.String(),
		r.BaseSalary.Amount.String(), r.BaseSalary.Currency, r.Currency,
		r.Achievement.Value.String(), slabArg(r.AppliedSlabID), r.Gross.Amount.String(), r.Net.Amount.String(),
		percentArg(r.Prorata), moneyArg(r.MaximumPayout), moneyArg(r.MinimumPayout),
		r.BelowThreshold, r.Status,
		r.RejectionReason, r.RejectedBy, r.VoidReason, r.VoidedBy, r.PaidBy, r.PaymentReference,
		formatTime(r.CreatedAt), formatTime(r.UpdatedAt),
		nullTime(r.SubmittedAt), nullTime(r.ApprovedAt), nullTime(r.PaidAt), nullTime(r.VoidedAt),
		r.Version,
	}
}

func scanCalculation(row scanner) (incentive.CalculationRecord, error) {
	var (
		r                                 incentive.CalculationRecord
		periodStart, periodEnd            string
		target, actual, salary, salaryCur string
		achievement, gross, net           string
		slab, prorata, maxPay, minPay     sql.NullString
		created, updated                  string
		submitted, approved, paid, voided sql.NullString
	)
	err := row.Scan(
		&r.ID, &r.EmployeeID, &r.PlanID, &periodStart, &periodEnd, &target, &actual,
		&salary, &salaryCur, &r.Currency, &achievement, &slab, &gross, &net,
		&prorata, &maxPay, &minPay, &r.BelowThreshold, &r.Status,
		&r.RejectionReason, &r.RejectedBy, &r.VoidReason, &r.VoidedBy, &r.PaidBy, &r.PaymentReference,
		&created, &updated, &submitted, &approved, &paid, &voided, &r.Version,
	)
	if err != nil {
		return r, err
	}

	p := &parser{}
	r.Period.Start = p.time(periodStart)
	r.Period.End = p.time(periodEnd)
	r.TargetValue = p.decimal(target)
	r.ActualValue = p.decimal(actual)
	r.BaseSalary = incentive.Money{Amount: p.decimal(salary), Currency: salaryCur}
	r.Achievement = incentive.Percentage{Value: p.decimal(achievement)}
	r.Gross = incentive.Money{Amount: p.decimal(gross), Currency: r.Currency}
	r.Net = incentive.Money{Amount: p.decimal(net), Currency: r.Currency}
	if slab.Valid {
		id := incentive.SlabID(slab.String)
		r.AppliedSlabID = &id
	}
	if prorata.Valid {
		r.Prorata = &incentive.Percentage{Value: p.decimal(prorata.String)}
	}
	r.MaximumPayout = p.money(maxPay, r.Currency)
	r.MinimumPayout = p.money(minPay, r.Currency)
	r.CreatedAt = p.time(created)
	r.UpdatedAt = p.time(updated)
	r.SubmittedAt = p.nullTime(submitted)
	r.ApprovedAt = p.nullTime(approved)
	r.PaidAt = p.nullTime(paid)
	r.VoidedAt = p.nullTime(voided)
	if p.err != nil {
		return r, fmt.Errorf("corrupt calculation %s: %w", r.ID, p.err)
	}
	return r, nil
}

// parser collects the first conversion error so row mapping stays linear.
type parser struct{ err error }

func (p *parser) decimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil && p.err == nil {
		p.err = err
	}
	return d
}

func (p *parser) time(s string) time.Time {
	t, err := parseTime(s)
	if err != nil && p.err == nil {
		p.err = err
	}
	return t
}

func (p *parser) nullTime(s sql.NullString) *time.Time {
	t, err := parseNullTime(s)
	if err != nil && p.err == nil {
		p.err = err
	}
	return t
}

func (p *parser) money(s sql.NullString, currency string) *incentive.Money {
	if !s.Valid {
		return nil
	}
	return &incentive.Money{Amount: p.decimal(s.String), Currency: currency}
}

// =============================================================================
// HELPERS
// =============================================================================

func formatTime(t time.Time) string {
	return t.UTC().Format(timeFormat)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeFormat, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("bad timestamp %q: %w", s, err)
	}
	return t, nil
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func parseNullTime(s sql.NullString) (*time.Time, error) {
	if !s.Valid {
		return nil, nil
	}
	t, err := parseTime(s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func slabArg(id *incentive.SlabID) sql.NullString {
	if id == nil {
		return sql.NullString{}
	}
	return nullString(string(*id))
}

func percentArg(p *incentive.Percentage) sql.NullString {
	if p == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: p.Value.String(), Valid: true}
}

func moneyArg(m *incentive.Money) sql.NullString {
	if m == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: m.Amount.String(), Valid: true}
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func isUniqueConstraintError(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}
