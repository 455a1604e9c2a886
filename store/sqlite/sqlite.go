/*
Package sqlite provides a SQLite-backed implementation of the project-controls
read and write interfaces.

PURPOSE:
  Persists projects and everything hanging off them (purchase requests and
  their line items, payment requests, inflows, tasks, budget lines) plus the
  company-wide records (resources, suppliers, departments). In production
  the same patterns apply to PostgreSQL with minor dialect differences.

INTERFACES IMPLEMENTED:
  report.Source:          per-project reads for the report aggregator
  report.BudgetSource:    per-category budget lines
  cache.CollectionSource: full-collection reads for the cache stores

KEY TABLES:
  projects:            contract value lives in total_planned_budget
  purchase_requests:   PYC header (status, priority, total_amount)
  purchase_line_items: PYC rows, line_total computed here on write
  payment_requests:    DNTT, outflows
  inflows:             money received from the client
  tasks, budget_lines, resources, suppliers, departments

MONEY:
  Stored as decimal TEXT. Reads go through finance.ParseAmount, so a
  malformed or NULL value comes back as zero instead of failing the query.

TIME:
  Timestamps (created_at) are RFC3339 text. Business dates (project
  start/end, task due date, inflow and payment dates) are YYYY-MM-DD
  calendar dates, NULL when unset.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. An in-memory database is limited to
  one connection (each connection would otherwise see its own empty
  database), so no method issues a query while another result set is open.

USAGE:
  store, err := sqlite.New("./data/project-controls.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  agg := report.NewAggregator(store)

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - report/aggregator.go: Source / BudgetSource
  - cache/stores.go: CollectionSource
  - store/memory: in-memory implementation for tests
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
	"github.com/warp/project-controls/cache"
	"github.com/warp/project-controls/finance"
	"github.com/warp/project-controls/report"
)

var (
	_ report.Source          = (*Store)(nil)
	_ report.BudgetSource    = (*Store)(nil)
	_ cache.CollectionSource = (*Store)(nil)
)

// Store implements all storage interfaces using SQLite.
type Store struct {
	db  *sql.DB
	mu  sync.RWMutex
	now func() time.Time
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	store := &Store{db: db, now: time.Now}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// dsn appends the driver options to dbPath, which may already carry a
// query string (file: URIs).
func dsn(dbPath string) string {
	sep := "?"
	if strings.Contains(dbPath, "?") {
		sep = "&"
	}
	return dbPath + sep + "_foreign_keys=on&_journal_mode=WAL"
}

// NewFromDB wraps an already opened handle. The schema is assumed to exist.
func NewFromDB(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS projects (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		total_planned_budget TEXT NOT NULL DEFAULT '0',
		status TEXT NOT NULL DEFAULT '',
		start_date TEXT,
		end_date TEXT,
		progress_percent INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS budget_lines (
		id TEXT PRIMARY KEY,
		project_id TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
		category TEXT NOT NULL,
		amount TEXT NOT NULL DEFAULT '0'
	);

	CREATE INDEX IF NOT EXISTS idx_budget_lines_project
		ON budget_lines(project_id);

	-- Purchase requests (PYC)
	CREATE TABLE IF NOT EXISTS purchase_requests (
		id TEXT PRIMARY KEY,
		project_id TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
		code TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		priority TEXT NOT NULL DEFAULT '',
		total_amount TEXT NOT NULL DEFAULT '0',
		requested_by TEXT,
		supplier_id TEXT,
		note TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_purchase_requests_project
		ON purchase_requests(project_id);
	CREATE INDEX IF NOT EXISTS idx_purchase_requests_status
		ON purchase_requests(status);

	-- line_total is always quantity * unit_price, written by SavePurchaseRequest
	CREATE TABLE IF NOT EXISTS purchase_line_items (
		id TEXT PRIMARY KEY,
		request_id TEXT NOT NULL REFERENCES purchase_requests(id) ON DELETE CASCADE,
		position INTEGER NOT NULL,
		category TEXT,
		item_name TEXT NOT NULL,
		unit TEXT,
		quantity TEXT NOT NULL DEFAULT '0',
		unit_price TEXT NOT NULL DEFAULT '0',
		line_total TEXT NOT NULL DEFAULT '0'
	);

	CREATE INDEX IF NOT EXISTS idx_line_items_request
		ON purchase_line_items(request_id, position);

	-- Payment requests (DNTT)
	CREATE TABLE IF NOT EXISTS payment_requests (
		id TEXT PRIMARY KEY,
		project_id TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
		code TEXT NOT NULL DEFAULT '',
		category TEXT,
		total_gross TEXT NOT NULL DEFAULT '0',
		request_date TEXT,
		status TEXT NOT NULL DEFAULT '',
		supplier_id TEXT,
		note TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_payment_requests_project
		ON payment_requests(project_id);

	CREATE TABLE IF NOT EXISTS inflows (
		id TEXT PRIMARY KEY,
		project_id TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
		amount TEXT NOT NULL DEFAULT '0',
		date TEXT,
		note TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_inflows_project
		ON inflows(project_id);

	CREATE TABLE IF NOT EXISTS tasks (
		id TEXT PRIMARY KEY,
		project_id TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
		name TEXT NOT NULL,
		assignee TEXT,
		status TEXT,
		due_date TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_tasks_project
		ON tasks(project_id);

	-- Company-wide records
	CREATE TABLE IF NOT EXISTS resources (
		id TEXT PRIMARY KEY,
		code TEXT NOT NULL,
		name TEXT NOT NULL,
		category TEXT,
		unit TEXT,
		quantity TEXT NOT NULL DEFAULT '0',
		unit_price TEXT NOT NULL DEFAULT '0',
		warehouse TEXT
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_resources_code
		ON resources(code);

	CREATE TABLE IF NOT EXISTS suppliers (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		tax_code TEXT,
		phone TEXT,
		address TEXT
	);

	CREATE TABLE IF NOT EXISTS departments (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL UNIQUE
	);
	`

	if _, err := s.db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return err
	}
	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// PROJECTS
// =============================================================================

const projectColumns = `id, name, total_planned_budget, status, start_date, end_date, progress_percent, created_at`

// SaveProject inserts or updates a project. CreatedAt is set on first insert.
func (s *Store) SaveProject(ctx context.Context, p finance.Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	createdAt := p.CreatedAt
	if createdAt.IsZero() {
		createdAt = s.now().UTC()
	}

	query := `
		INSERT INTO projects (` + projectColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			total_planned_budget = excluded.total_planned_budget,
			status = excluded.status,
			start_date = excluded.start_date,
			end_date = excluded.end_date,
			progress_percent = excluded.progress_percent
	`

	_, err := s.db.ExecContext(ctx, query,
		p.ID, p.Name, p.TotalPlannedBudget.String(), p.Status,
		formatOptionalDate(p.StartDate), formatOptionalDate(p.EndDate),
		p.ProgressPercent,
		createdAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to save project: %w", err)
	}
	return nil
}

// GetProject retrieves a project by ID. Returns nil, nil if absent.
func (s *Store) GetProject(ctx context.Context, id string) (*finance.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, "SELECT "+projectColumns+" FROM projects WHERE id = ?", id)
	p, err := scanProject(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// FindProjectByID is GetProject under the name report.Source expects.
func (s *Store) FindProjectByID(ctx context.Context, id string) (*finance.Project, error) {
	return s.GetProject(ctx, id)
}

// ListProjects returns all projects, oldest first.
func (s *Store) ListProjects(ctx context.Context) ([]finance.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, "SELECT "+projectColumns+" FROM projects ORDER BY created_at, name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	projects := []finance.Project{}
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

// DeleteProject removes a project and, through the foreign keys, every
// record attached to it.
func (s *Store) DeleteProject(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// Children are removed explicitly so the delete does not depend on the
	// connection having foreign keys enabled.
	children := []string{
		"DELETE FROM purchase_line_items WHERE request_id IN (SELECT id FROM purchase_requests WHERE project_id = ?)",
		"DELETE FROM purchase_requests WHERE project_id = ?",
		"DELETE FROM payment_requests WHERE project_id = ?",
		"DELETE FROM inflows WHERE project_id = ?",
		"DELETE FROM tasks WHERE project_id = ?",
		"DELETE FROM budget_lines WHERE project_id = ?",
	}
	for _, q := range children {
		if _, err := tx.ExecContext(ctx, q, id); err != nil {
			return fmt.Errorf("failed to delete project records: %w", err)
		}
	}

	res, err := tx.ExecContext(ctx, "DELETE FROM projects WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete project: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("project %q: %w", id, finance.ErrProjectNotFound)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit project delete: %w", err)
	}
	return nil
}

func scanProject(row scanner) (finance.Project, error) {
	var p finance.Project
	var budget, createdAt string
	var start, end sql.NullString

	err := row.Scan(&p.ID, &p.Name, &budget, &p.Status, &start, &end, &p.ProgressPercent, &createdAt)
	if err != nil {
		return p, err
	}
	p.TotalPlannedBudget = finance.ParseAmount(budget)
	p.StartDate = parseOptionalDate(start)
	p.EndDate = parseOptionalDate(end)
	p.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return p, nil
}

// =============================================================================
// BUDGET LINES (report.BudgetSource)
// =============================================================================

// SaveBudgetLine inserts or updates a per-category budget.
func (s *Store) SaveBudgetLine(ctx context.Context, b finance.BudgetLine) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO budget_lines (id, project_id, category, amount)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			category = excluded.category,
			amount = excluded.amount
	`, b.ID, b.ProjectID, b.Category, b.Amount.String())
	if err != nil {
		return fmt.Errorf("failed to save budget line: %w", err)
	}
	return nil
}

// FindBudgetLinesByProject returns a project's budget lines in insertion order.
func (s *Store) FindBudgetLinesByProject(ctx context.Context, projectID string) ([]finance.BudgetLine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, project_id, category, amount FROM budget_lines WHERE project_id = ? ORDER BY rowid",
		projectID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	lines := []finance.BudgetLine{}
	for rows.Next() {
		var b finance.BudgetLine
		var amount string
		if err := rows.Scan(&b.ID, &b.ProjectID, &b.Category, &amount); err != nil {
			return nil, err
		}
		b.Amount = finance.ParseAmount(amount)
		lines = append(lines, b)
	}
	return lines, rows.Err()
}

// =============================================================================
// PURCHASE REQUESTS (PYC)
// =============================================================================

const purchaseRequestColumns = `id, project_id, code, status, priority, total_amount, requested_by, supplier_id, note, created_at`

// SavePurchaseRequest writes a request and replaces its line items in one
// transaction. Each item's LineTotal is computed as quantity × unit price;
// when the request has items, TotalAmount becomes their sum. The stored
// request is returned.
func (s *Store) SavePurchaseRequest(ctx context.Context, r finance.PurchaseRequest) (finance.PurchaseRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if r.CreatedAt.IsZero() {
		r.CreatedAt = s.now().UTC()
	}
	if r.Status == "" {
		r.Status = finance.StatusPending
	}

	items := make([]finance.PurchaseLineItem, len(r.Items))
	total := decimal.Zero
	for i, it := range r.Items {
		it.RequestID = r.ID
		if it.ID == "" {
			it.ID = fmt.Sprintf("%s-%d", r.ID, i+1)
		}
		it.LineTotal = it.ComputeLineTotal()
		total = total.Add(it.LineTotal)
		items[i] = it
	}
	r.Items = items
	if len(items) > 0 {
		r.TotalAmount = total
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return r, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO purchase_requests (`+purchaseRequestColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			code = excluded.code,
			status = excluded.status,
			priority = excluded.priority,
			total_amount = excluded.total_amount,
			requested_by = excluded.requested_by,
			supplier_id = excluded.supplier_id,
			note = excluded.note
	`,
		r.ID, r.ProjectID, r.Code, string(r.Status), string(r.Priority), r.TotalAmount.String(),
		nullString(r.RequestedBy), nullString(r.SupplierID), nullString(r.Note),
		r.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return r, fmt.Errorf("failed to save purchase request: %w", err)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM purchase_line_items WHERE request_id = ?", r.ID); err != nil {
		return r, fmt.Errorf("failed to clear line items: %w", err)
	}

	for i, it := range items {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO purchase_line_items
			(id, request_id, position, category, item_name, unit, quantity, unit_price, line_total)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			it.ID, r.ID, i, nullString(it.Category), it.ItemName, nullString(it.Unit),
			it.Quantity.String(), it.UnitPrice.String(), it.LineTotal.String(),
		)
		if err != nil {
			return r, fmt.Errorf("failed to save line item %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return r, fmt.Errorf("failed to commit purchase request: %w", err)
	}
	return r, nil
}

// SetPurchaseRequestStatus moves a pending request to status (approve /
// reject). The pending check is part of the UPDATE, so of two concurrent
// decisions exactly one wins; the other gets finance.ErrConflict.
func (s *Store) SetPurchaseRequestStatus(ctx context.Context, id string, status finance.RequestStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		"UPDATE purchase_requests SET status = ? WHERE id = ? AND status = ?",
		string(status), id, string(finance.StatusPending),
	)
	if err != nil {
		return fmt.Errorf("failed to update purchase request: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update purchase request: %w", err)
	}
	if n > 0 {
		return nil
	}

	var current string
	err = s.db.QueryRowContext(ctx, "SELECT status FROM purchase_requests WHERE id = ?", id).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("purchase request %q: %w", id, finance.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to read purchase request status: %w", err)
	}
	return fmt.Errorf("purchase request %q is already %q: %w", id, current, finance.ErrConflict)
}

// GetPurchaseRequest retrieves one request with its items. Returns nil, nil if absent.
func (s *Store) GetPurchaseRequest(ctx context.Context, id string) (*finance.PurchaseRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	requests, err := s.queryPurchaseRequests(ctx, "WHERE id = ?", id)
	if err != nil {
		return nil, err
	}
	if len(requests) == 0 {
		return nil, nil
	}
	return &requests[0], nil
}

// FindPurchaseRequestsByProject returns a project's requests with their
// line items, oldest first.
func (s *Store) FindPurchaseRequestsByProject(ctx context.Context, projectID string) ([]finance.PurchaseRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryPurchaseRequests(ctx, "WHERE project_id = ?", projectID)
}

// queryPurchaseRequests loads the headers first and the items in a second
// query, once the first result set is closed.
func (s *Store) queryPurchaseRequests(ctx context.Context, where string, args ...any) ([]finance.PurchaseRequest, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+purchaseRequestColumns+" FROM purchase_requests "+where+" ORDER BY created_at, rowid",
		args...,
	)
	if err != nil {
		return nil, err
	}

	requests := []finance.PurchaseRequest{}
	index := map[string]int{}
	for rows.Next() {
		var r finance.PurchaseRequest
		var status, priority, total, createdAt string
		var requestedBy, supplierID, note sql.NullString
		if err := rows.Scan(&r.ID, &r.ProjectID, &r.Code, &status, &priority, &total,
			&requestedBy, &supplierID, &note, &createdAt); err != nil {
			rows.Close()
			return nil, err
		}
		r.Status = finance.RequestStatus(status)
		r.Priority = finance.Priority(priority)
		r.TotalAmount = finance.ParseAmount(total)
		r.RequestedBy = requestedBy.String
		r.SupplierID = supplierID.String
		r.Note = note.String
		r.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		r.Items = []finance.PurchaseLineItem{}
		index[r.ID] = len(requests)
		requests = append(requests, r)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	if len(requests) == 0 {
		return requests, nil
	}

	itemRows, err := s.db.QueryContext(ctx, `
		SELECT id, request_id, category, item_name, unit, quantity, unit_price, line_total
		FROM purchase_line_items
		WHERE request_id IN (SELECT id FROM purchase_requests `+where+`)
		ORDER BY request_id, position
	`, args...)
	if err != nil {
		return nil, err
	}
	defer itemRows.Close()

	for itemRows.Next() {
		var it finance.PurchaseLineItem
		var category, unit sql.NullString
		var qty, price, lineTotal string
		if err := itemRows.Scan(&it.ID, &it.RequestID, &category, &it.ItemName, &unit, &qty, &price, &lineTotal); err != nil {
			return nil, err
		}
		it.Category = category.String
		it.Unit = unit.String
		it.Quantity = finance.ParseAmount(qty)
		it.UnitPrice = finance.ParseAmount(price)
		it.LineTotal = finance.ParseAmount(lineTotal)
		if i, ok := index[it.RequestID]; ok {
			requests[i].Items = append(requests[i].Items, it)
		}
	}
	return requests, itemRows.Err()
}

// =============================================================================
// PAYMENT REQUESTS (DNTT)
// =============================================================================

const paymentRequestColumns = `id, project_id, code, category, total_gross, request_date, status, supplier_id, note`

// SavePaymentRequest inserts or updates a payment request.
func (s *Store) SavePaymentRequest(ctx context.Context, p finance.PaymentRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO payment_requests (`+paymentRequestColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			code = excluded.code,
			category = excluded.category,
			total_gross = excluded.total_gross,
			request_date = excluded.request_date,
			status = excluded.status,
			supplier_id = excluded.supplier_id,
			note = excluded.note
	`,
		p.ID, p.ProjectID, p.Code, nullString(p.Category), p.TotalGross.String(),
		formatDate(p.RequestDate), string(p.Status), nullString(p.SupplierID), nullString(p.Note),
	)
	if err != nil {
		return fmt.Errorf("failed to save payment request: %w", err)
	}
	return nil
}

// FindPaymentRequestsByProject returns a project's payment requests by date.
func (s *Store) FindPaymentRequestsByProject(ctx context.Context, projectID string) ([]finance.PaymentRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryPaymentRequests(ctx, "WHERE project_id = ?", projectID)
}

// FindAllPaymentRequests returns every payment request (cache.CollectionSource).
func (s *Store) FindAllPaymentRequests(ctx context.Context) ([]finance.PaymentRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryPaymentRequests(ctx, "")
}

func (s *Store) queryPaymentRequests(ctx context.Context, where string, args ...any) ([]finance.PaymentRequest, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+paymentRequestColumns+" FROM payment_requests "+where+" ORDER BY request_date, rowid",
		args...,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	payments := []finance.PaymentRequest{}
	for rows.Next() {
		var p finance.PaymentRequest
		var category, date, supplierID, note sql.NullString
		var gross, status string
		if err := rows.Scan(&p.ID, &p.ProjectID, &p.Code, &category, &gross, &date, &status, &supplierID, &note); err != nil {
			return nil, err
		}
		p.Category = category.String
		p.TotalGross = finance.ParseAmount(gross)
		p.RequestDate = parseDate(date)
		p.Status = finance.RequestStatus(status)
		p.SupplierID = supplierID.String
		p.Note = note.String
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

// =============================================================================
// INFLOWS
// =============================================================================

// SaveInflow inserts or updates a client payment.
func (s *Store) SaveInflow(ctx context.Context, in finance.Inflow) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO inflows (id, project_id, amount, date, note)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			amount = excluded.amount,
			date = excluded.date,
			note = excluded.note
	`, in.ID, in.ProjectID, in.Amount.String(), formatDate(in.Date), nullString(in.Note))
	if err != nil {
		return fmt.Errorf("failed to save inflow: %w", err)
	}
	return nil
}

// FindInflowsByProject returns a project's inflows by date.
func (s *Store) FindInflowsByProject(ctx context.Context, projectID string) ([]finance.Inflow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, project_id, amount, date, note FROM inflows WHERE project_id = ? ORDER BY date, rowid",
		projectID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	inflows := []finance.Inflow{}
	for rows.Next() {
		var in finance.Inflow
		var amount string
		var date, note sql.NullString
		if err := rows.Scan(&in.ID, &in.ProjectID, &amount, &date, &note); err != nil {
			return nil, err
		}
		in.Amount = finance.ParseAmount(amount)
		in.Date = parseDate(date)
		in.Note = note.String
		inflows = append(inflows, in)
	}
	return inflows, rows.Err()
}

// =============================================================================
// TASKS
// =============================================================================

// SaveTask inserts or updates a task.
func (s *Store) SaveTask(ctx context.Context, t finance.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tasks (id, project_id, name, assignee, status, due_date)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			assignee = excluded.assignee,
			status = excluded.status,
			due_date = excluded.due_date
	`, t.ID, t.ProjectID, t.Name, nullString(t.Assignee), nullString(string(t.Status)), formatOptionalDate(t.DueDate))
	if err != nil {
		return fmt.Errorf("failed to save task: %w", err)
	}
	return nil
}

// FindTasksByProject returns a project's tasks in insertion order.
func (s *Store) FindTasksByProject(ctx context.Context, projectID string) ([]finance.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryTasks(ctx, "WHERE project_id = ?", projectID)
}

// FindAllTasks returns every task (cache.CollectionSource).
func (s *Store) FindAllTasks(ctx context.Context) ([]finance.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryTasks(ctx, "")
}

func (s *Store) queryTasks(ctx context.Context, where string, args ...any) ([]finance.Task, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, project_id, name, assignee, status, due_date FROM tasks "+where+" ORDER BY rowid",
		args...,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tasks := []finance.Task{}
	for rows.Next() {
		var t finance.Task
		var assignee, status, due sql.NullString
		if err := rows.Scan(&t.ID, &t.ProjectID, &t.Name, &assignee, &status, &due); err != nil {
			return nil, err
		}
		t.Assignee = assignee.String
		t.Status = finance.TaskStatus(status.String)
		t.DueDate = parseOptionalDate(due)
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// =============================================================================
// RESOURCES (inventory)
// =============================================================================

// SaveResource inserts or updates an inventory item.
func (s *Store) SaveResource(ctx context.Context, r finance.Resource) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO resources (id, code, name, category, unit, quantity, unit_price, warehouse)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			code = excluded.code,
			name = excluded.name,
			category = excluded.category,
			unit = excluded.unit,
			quantity = excluded.quantity,
			unit_price = excluded.unit_price,
			warehouse = excluded.warehouse
	`,
		r.ID, r.Code, r.Name, nullString(r.Category), nullString(r.Unit),
		r.Quantity.String(), r.UnitPrice.String(), nullString(r.Warehouse),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("resource code %q already exists: %w", r.Code, finance.ErrInvalidInput)
		}
		return fmt.Errorf("failed to save resource: %w", err)
	}
	return nil
}

// ListResources returns every inventory item ordered by code.
func (s *Store) ListResources(ctx context.Context) ([]finance.Resource, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, code, name, category, unit, quantity, unit_price, warehouse FROM resources ORDER BY code",
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	resources := []finance.Resource{}
	for rows.Next() {
		var r finance.Resource
		var category, unit, warehouse sql.NullString
		var qty, price string
		if err := rows.Scan(&r.ID, &r.Code, &r.Name, &category, &unit, &qty, &price, &warehouse); err != nil {
			return nil, err
		}
		r.Category = category.String
		r.Unit = unit.String
		r.Quantity = finance.ParseAmount(qty)
		r.UnitPrice = finance.ParseAmount(price)
		r.Warehouse = warehouse.String
		resources = append(resources, r)
	}
	return resources, rows.Err()
}

// FindAllResources is ListResources for cache.CollectionSource.
func (s *Store) FindAllResources(ctx context.Context) ([]finance.Resource, error) {
	return s.ListResources(ctx)
}

// =============================================================================
// SUPPLIERS / DEPARTMENTS
// =============================================================================

// SaveSupplier inserts or updates a supplier.
func (s *Store) SaveSupplier(ctx context.Context, sup finance.Supplier) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO suppliers (id, name, tax_code, phone, address)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			tax_code = excluded.tax_code,
			phone = excluded.phone,
			address = excluded.address
	`, sup.ID, sup.Name, nullString(sup.TaxCode), nullString(sup.Phone), nullString(sup.Address))
	return err
}

// ListSuppliers returns all suppliers.
func (s *Store) ListSuppliers(ctx context.Context) ([]finance.Supplier, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, "SELECT id, name, tax_code, phone, address FROM suppliers ORDER BY name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	suppliers := []finance.Supplier{}
	for rows.Next() {
		var sup finance.Supplier
		var taxCode, phone, address sql.NullString
		if err := rows.Scan(&sup.ID, &sup.Name, &taxCode, &phone, &address); err != nil {
			return nil, err
		}
		sup.TaxCode = taxCode.String
		sup.Phone = phone.String
		sup.Address = address.String
		suppliers = append(suppliers, sup)
	}
	return suppliers, rows.Err()
}

// SaveDepartment inserts or renames a department.
func (s *Store) SaveDepartment(ctx context.Context, d finance.Department) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO departments (id, name) VALUES (?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name
	`, d.ID, d.Name)
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("department %q already exists: %w", d.Name, finance.ErrInvalidInput)
		}
		return err
	}
	return nil
}

// ListDepartments returns all departments.
func (s *Store) ListDepartments(ctx context.Context) ([]finance.Department, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, "SELECT id, name FROM departments ORDER BY name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	departments := []finance.Department{}
	for rows.Next() {
		var d finance.Department
		if err := rows.Scan(&d.ID, &d.Name); err != nil {
			return nil, err
		}
		departments = append(departments, d)
	}
	return departments, rows.Err()
}

// =============================================================================
// UTILITIES
// =============================================================================

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Children before parents.
	tables := []string{
		"purchase_line_items", "purchase_requests", "payment_requests", "inflows",
		"tasks", "budget_lines", "projects", "resources", "suppliers", "departments",
	}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// dateLayout stores business dates (inflow and payment dates, due dates,
// project start/end) as calendar dates. The day is taken in the value's own
// location, so 2024-02-01 00:00 +07:00 stays in February.
const dateLayout = "2006-01-02"

func formatDate(t time.Time) sql.NullString {
	if t.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: t.Format(dateLayout), Valid: true}
}

func formatOptionalDate(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return formatDate(*t)
}

// parseDate reads a calendar date (or an RFC3339 value written by older
// versions). NULL or unparseable values give the zero time.
func parseDate(s sql.NullString) time.Time {
	if !s.Valid {
		return time.Time{}
	}
	if t, err := time.Parse(dateLayout, s.String); err == nil {
		return t
	}
	t, err := time.Parse(time.RFC3339, s.String)
	if err != nil {
		return time.Time{}
	}
	return t
}

func parseOptionalDate(s sql.NullString) *time.Time {
	t := parseDate(s)
	if t.IsZero() {
		return nil
	}
	return &t
}

func isUniqueConstraintError(err error) bool {
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
}
