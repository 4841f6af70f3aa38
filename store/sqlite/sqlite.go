/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Implements ledger.Store and ledger.TxStore using SQLite. A body shop
  runs one of these per location; the same SQL applies to PostgreSQL
  with minor dialect changes.

KEY TABLES:
  repair_orders:      Live RO records (stage, status, hour totals)
  ro_buckets:         Named hour buckets per RO (body_hours, ...)
  ro_roles:           Responsible employee per role per RO
  ro_allocations:     Percent/fixed credit splits (allocation source)
  stage_transitions:  Append-only stage-change event log
  credit_baseline:    Frozen first-seen bucket values (insert-or-ignore)
  credit_adjustments: Append-only signed residuals
  credit_overrides:   Operator corrections keyed by row identity
  credit_audit:       Posted credit, the payroll record
  employees:          Crediting identity directory
  time_clock_records: Worked hours for the efficiency view

WRITE DISCIPLINE:
  credit_baseline has no UPDATE path; EnsureBaseline is INSERT OR
  IGNORE. credit_adjustments has no UPDATE path either; the single
  DELETE exists for operator supplement removal. Everything hour-valued
  is stored as TEXT and parsed with shopspring/decimal, never float.

ORDERING:
  ListTransitions orders by date ASC, id ASC. Milestone matching takes
  the first row in that order, so the ORDER BY is part of the contract.

DELETION CASCADE:
  All per-RO tables declare ON DELETE CASCADE against repair_orders;
  deleting an RO is one statement and takes the whole credit history
  with it.

CONCURRENCY:
  WAL mode, foreign keys on. A mutex serializes writers; SQLite allows
  one anyway, and it keeps WithTx bodies from interleaving.

USAGE:
  store, err := sqlite.New("./data/shop.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  engine := ledger.NewEngine(store, cfgHolder)

SEE ALSO:
  - ledger/store.go: Interface definitions and write constraints
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/warp/production-ledger/ledger"
)

// Store implements ledger.TxStore using SQLite.
type Store struct {
	conn
	db *sql.DB
	mu sync.Mutex
}

var (
	_ ledger.TxStore = (*Store)(nil)
	_ ledger.Store   = (*conn)(nil)
)

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// Every pooled connection to ":memory:" is a separate database, so
	// the pool must stay at one connection.
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	store := &Store{db: db, conn: conn{db: db}}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS repair_orders (
		ro_number TEXT PRIMARY KEY,
		date TEXT NOT NULL,
		total_hours TEXT NOT NULL DEFAULT '0',
		hours_taken TEXT NOT NULL DEFAULT '0',
		hours_remaining TEXT NOT NULL DEFAULT '0',
		stage TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'open'
	);

	CREATE TABLE IF NOT EXISTS ro_buckets (
		ro_number TEXT NOT NULL REFERENCES repair_orders(ro_number) ON DELETE CASCADE,
		bucket TEXT NOT NULL,
		hours TEXT NOT NULL DEFAULT '0',
		PRIMARY KEY (ro_number, bucket)
	);

	CREATE TABLE IF NOT EXISTS ro_roles (
		ro_number TEXT NOT NULL REFERENCES repair_orders(ro_number) ON DELETE CASCADE,
		role TEXT NOT NULL,
		employee TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (ro_number, role)
	);

	CREATE TABLE IF NOT EXISTS ro_allocations (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		ro_number TEXT NOT NULL REFERENCES repair_orders(ro_number) ON DELETE CASCADE,
		employee TEXT NOT NULL,
		role TEXT NOT NULL,
		phase TEXT NOT NULL,
		percent TEXT NOT NULL DEFAULT '0',
		hours TEXT NOT NULL DEFAULT '0'
	);

	CREATE INDEX IF NOT EXISTS idx_allocations_ro
		ON ro_allocations(ro_number);

	-- Append-only: the event log milestone matching scans.
	CREATE TABLE IF NOT EXISTS stage_transitions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		ro_number TEXT NOT NULL REFERENCES repair_orders(ro_number) ON DELETE CASCADE,
		from_stage TEXT NOT NULL,
		to_stage TEXT NOT NULL,
		date TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_transitions_ro_date
		ON stage_transitions(ro_number, date, id);

	-- Write-once: no UPDATE path exists for baselines.
	CREATE TABLE IF NOT EXISTS credit_baseline (
		ro_number TEXT NOT NULL REFERENCES repair_orders(ro_number) ON DELETE CASCADE,
		milestone TEXT NOT NULL,
		base_hours TEXT NOT NULL,
		PRIMARY KEY (ro_number, milestone)
	);

	CREATE TABLE IF NOT EXISTS credit_adjustments (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		ro_number TEXT NOT NULL REFERENCES repair_orders(ro_number) ON DELETE CASCADE,
		milestone TEXT NOT NULL,
		from_stage TEXT NOT NULL,
		to_stage TEXT NOT NULL,
		date TEXT NOT NULL,
		tech TEXT NOT NULL,
		delta_hours TEXT NOT NULL,
		share TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_adjustments_ro_milestone
		ON credit_adjustments(ro_number, milestone);

	CREATE TABLE IF NOT EXISTS credit_overrides (
		ro_number TEXT NOT NULL REFERENCES repair_orders(ro_number) ON DELETE CASCADE,
		from_stage TEXT NOT NULL,
		to_stage TEXT NOT NULL,
		note TEXT NOT NULL,
		date TEXT,
		tech TEXT,
		hours TEXT,
		PRIMARY KEY (ro_number, from_stage, to_stage, note)
	);

	CREATE TABLE IF NOT EXISTS credit_audit (
		id TEXT PRIMARY KEY,
		ro_number TEXT NOT NULL REFERENCES repair_orders(ro_number) ON DELETE CASCADE,
		date TEXT NOT NULL,
		employee TEXT NOT NULL,
		hours TEXT NOT NULL,
		note TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_audit_identity
		ON credit_audit(ro_number, employee, note);

	CREATE TABLE IF NOT EXISTS employees (
		name TEXT PRIMARY KEY,
		role TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS time_clock_records (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		date TEXT NOT NULL,
		employee TEXT NOT NULL,
		clock_in TEXT NOT NULL DEFAULT '',
		clock_out TEXT NOT NULL DEFAULT '',
		hours TEXT NOT NULL DEFAULT '0'
	);

	CREATE INDEX IF NOT EXISTS idx_timeclock_date
		ON time_clock_records(date, employee);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// TRANSACTIONAL STORE (ledger.TxStore interface)
// =============================================================================

// WithTx executes a function within a database transaction. The Store
// passed to fn routes every read and write through the transaction.
func (s *Store) WithTx(ctx context.Context, fn func(store ledger.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&conn{db: sqlTx}); err != nil {
		return err
	}
	return sqlTx.Commit()
}

// dbtx is satisfied by both *sql.DB and *sql.Tx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// conn implements ledger.Store over either the database or a
// transaction.
type conn struct {
	db dbtx
}

// =============================================================================
// REPAIR ORDERS
// =============================================================================

func (c *conn) GetRepairOrder(ctx context.Context, ron ledger.RONumber) (*ledger.RepairOrder, error) {
	var (
		ro                   ledger.RepairOrder
		date                 string
		total, taken, remain string
	)
	err := c.db.QueryRowContext(ctx,
		`SELECT ro_number, date, total_hours, hours_taken, hours_remaining, stage, status
		 FROM repair_orders WHERE ro_number = ?`, ron,
	).Scan(&ro.RONumber, &date, &total, &taken, &remain, &ro.Stage, &ro.Status)
	if err == sql.ErrNoRows {
		return nil, ledger.ErrRONotFound
	}
	if err != nil {
		return nil, err
	}
	ro.Date = parseDay(date)
	ro.TotalHours = parseDec(total)
	ro.HoursTaken = parseDec(taken)
	ro.HoursRemaining = parseDec(remain)
	if err := c.loadBucketsAndRoles(ctx, &ro); err != nil {
		return nil, err
	}
	return &ro, nil
}

func (c *conn) ListRepairOrders(ctx context.Context) ([]ledger.RepairOrder, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT ro_number, date, total_hours, hours_taken, hours_remaining, stage, status
		 FROM repair_orders ORDER BY ro_number`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ledger.RepairOrder
	for rows.Next() {
		var (
			ro                   ledger.RepairOrder
			date                 string
			total, taken, remain string
		)
		if err := rows.Scan(&ro.RONumber, &date, &total, &taken, &remain, &ro.Stage, &ro.Status); err != nil {
			return nil, err
		}
		ro.Date = parseDay(date)
		ro.TotalHours = parseDec(total)
		ro.HoursTaken = parseDec(taken)
		ro.HoursRemaining = parseDec(remain)
		out = append(out, ro)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range out {
		if err := c.loadBucketsAndRoles(ctx, &out[i]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (c *conn) loadBucketsAndRoles(ctx context.Context, ro *ledger.RepairOrder) error {
	rows, err := c.db.QueryContext(ctx,
		"SELECT bucket, hours FROM ro_buckets WHERE ro_number = ?", ro.RONumber)
	if err != nil {
		return err
	}
	defer rows.Close()
	ro.Buckets = make(map[ledger.Bucket]decimal.Decimal)
	for rows.Next() {
		var b, h string
		if err := rows.Scan(&b, &h); err != nil {
			return err
		}
		ro.Buckets[ledger.Bucket(b)] = parseDec(h)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	roleRows, err := c.db.QueryContext(ctx,
		"SELECT role, employee FROM ro_roles WHERE ro_number = ?", ro.RONumber)
	if err != nil {
		return err
	}
	defer roleRows.Close()
	ro.Assignments = make(map[ledger.Role]string)
	for roleRows.Next() {
		var r, e string
		if err := roleRows.Scan(&r, &e); err != nil {
			return err
		}
		ro.Assignments[ledger.Role(r)] = e
	}
	return roleRows.Err()
}

func (c *conn) PutRepairOrder(ctx context.Context, ro *ledger.RepairOrder) error {
	if ro.Status == "" {
		ro.Status = ledger.StatusOpen
	}
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO repair_orders (ro_number, date, total_hours, hours_taken, hours_remaining, stage, status)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(ro_number) DO UPDATE SET
			date = excluded.date,
			total_hours = excluded.total_hours,
			stage = excluded.stage,
			status = excluded.status`,
		ro.RONumber, ro.Date.Format(ledger.DateLayout),
		ro.TotalHours.String(), ro.HoursTaken.String(), ro.HoursRemaining.String(),
		ro.Stage, ro.Status,
	)
	if err != nil {
		return err
	}

	if _, err := c.db.ExecContext(ctx, "DELETE FROM ro_buckets WHERE ro_number = ?", ro.RONumber); err != nil {
		return err
	}
	for b, h := range ro.Buckets {
		if _, err := c.db.ExecContext(ctx,
			"INSERT INTO ro_buckets (ro_number, bucket, hours) VALUES (?, ?, ?)",
			ro.RONumber, b, h.String()); err != nil {
			return err
		}
	}

	if _, err := c.db.ExecContext(ctx, "DELETE FROM ro_roles WHERE ro_number = ?", ro.RONumber); err != nil {
		return err
	}
	for r, e := range ro.Assignments {
		if _, err := c.db.ExecContext(ctx,
			"INSERT INTO ro_roles (ro_number, role, employee) VALUES (?, ?, ?)",
			ro.RONumber, r, e); err != nil {
			return err
		}
	}
	return nil
}

func (c *conn) DeleteRepairOrder(ctx context.Context, ron ledger.RONumber) error {
	// Child tables cascade.
	res, err := c.db.ExecContext(ctx, "DELETE FROM repair_orders WHERE ro_number = ?", ron)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ledger.ErrRONotFound
	}
	return nil
}

func (c *conn) UpdateROHours(ctx context.Context, ron ledger.RONumber, taken, remaining decimal.Decimal) error {
	_, err := c.db.ExecContext(ctx,
		"UPDATE repair_orders SET hours_taken = ?, hours_remaining = ? WHERE ro_number = ?",
		taken.String(), remaining.String(), ron)
	return err
}

func (c *conn) UpdateROStage(ctx context.Context, ron ledger.RONumber, stage string) error {
	_, err := c.db.ExecContext(ctx,
		"UPDATE repair_orders SET stage = ? WHERE ro_number = ?", stage, ron)
	return err
}

func (c *conn) UpdateROStatus(ctx context.Context, ron ledger.RONumber, status ledger.Status) error {
	_, err := c.db.ExecContext(ctx,
		"UPDATE repair_orders SET status = ? WHERE ro_number = ?", status, ron)
	return err
}

// =============================================================================
// STAGE TRANSITIONS
// =============================================================================

func (c *conn) AppendTransition(ctx context.Context, t ledger.StageTransition) (int64, error) {
	res, err := c.db.ExecContext(ctx,
		"INSERT INTO stage_transitions (ro_number, from_stage, to_stage, date) VALUES (?, ?, ?, ?)",
		t.RONumber, t.FromStage, t.ToStage, t.Date.Format(ledger.DateLayout))
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (c *conn) ListTransitions(ctx context.Context, ron ledger.RONumber) ([]ledger.StageTransition, error) {
	// date ASC, id ASC is load-bearing: "first matching transition"
	// means first in this order.
	rows, err := c.db.QueryContext(ctx,
		`SELECT id, ro_number, from_stage, to_stage, date
		 FROM stage_transitions WHERE ro_number = ?
		 ORDER BY date ASC, id ASC`, ron)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ledger.StageTransition
	for rows.Next() {
		var t ledger.StageTransition
		var date string
		if err := rows.Scan(&t.ID, &t.RONumber, &t.FromStage, &t.ToStage, &date); err != nil {
			return nil, err
		}
		t.Date = parseDay(date)
		out = append(out, t)
	}
	return out, rows.Err()
}

// =============================================================================
// CREDIT BASELINES (write-once)
// =============================================================================

func (c *conn) GetBaseline(ctx context.Context, ron ledger.RONumber, milestone string) (*ledger.CreditBaseline, error) {
	var b ledger.CreditBaseline
	var base string
	err := c.db.QueryRowContext(ctx,
		"SELECT ro_number, milestone, base_hours FROM credit_baseline WHERE ro_number = ? AND milestone = ?",
		ron, milestone,
	).Scan(&b.RONumber, &b.Milestone, &base)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	b.BaseHours = parseDec(base)
	return &b, nil
}

func (c *conn) EnsureBaseline(ctx context.Context, b ledger.CreditBaseline) (bool, error) {
	res, err := c.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO credit_baseline (ro_number, milestone, base_hours) VALUES (?, ?, ?)",
		b.RONumber, b.Milestone, b.BaseHours.String())
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// =============================================================================
// CREDIT ADJUSTMENTS (append-only, scoped delete)
// =============================================================================

func (c *conn) AppendAdjustment(ctx context.Context, a ledger.CreditAdjustment) error {
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO credit_adjustments (ro_number, milestone, from_stage, to_stage, date, tech, delta_hours, share)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		a.RONumber, a.Milestone, a.FromStage, a.ToStage,
		a.Date.Format(ledger.DateLayout), a.Tech, a.DeltaHours.String(), a.Share.String())
	return err
}

func (c *conn) ListAdjustments(ctx context.Context, ron ledger.RONumber, milestone string) ([]ledger.CreditAdjustment, error) {
	return c.queryAdjustments(ctx,
		`SELECT id, ro_number, milestone, from_stage, to_stage, date, tech, delta_hours, share
		 FROM credit_adjustments WHERE ro_number = ? AND milestone = ? ORDER BY id ASC`,
		ron, milestone)
}

func (c *conn) ListAdjustmentsForRO(ctx context.Context, ron ledger.RONumber) ([]ledger.CreditAdjustment, error) {
	return c.queryAdjustments(ctx,
		`SELECT id, ro_number, milestone, from_stage, to_stage, date, tech, delta_hours, share
		 FROM credit_adjustments WHERE ro_number = ? ORDER BY id ASC`,
		ron)
}

func (c *conn) queryAdjustments(ctx context.Context, query string, args ...any) ([]ledger.CreditAdjustment, error) {
	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ledger.CreditAdjustment
	for rows.Next() {
		var a ledger.CreditAdjustment
		var date, delta, share string
		if err := rows.Scan(&a.ID, &a.RONumber, &a.Milestone, &a.FromStage, &a.ToStage,
			&date, &a.Tech, &delta, &share); err != nil {
			return nil, err
		}
		a.Date = parseDay(date)
		a.DeltaHours = parseDec(delta)
		a.Share = parseDec(share)
		out = append(out, a)
	}
	return out, rows.Err()
}

func (c *conn) DeleteAdjustment(ctx context.Context, id int64) error {
	_, err := c.db.ExecContext(ctx, "DELETE FROM credit_adjustments WHERE id = ?", id)
	return err
}

// =============================================================================
// CREDIT OVERRIDES
// =============================================================================

func (c *conn) UpsertOverride(ctx context.Context, o ledger.CreditOverride) error {
	var date, tech, hours sql.NullString
	if o.Date != nil {
		date = sql.NullString{String: o.Date.Format(ledger.DateLayout), Valid: true}
	}
	if o.Tech != nil {
		tech = sql.NullString{String: *o.Tech, Valid: true}
	}
	if o.Hours != nil {
		hours = sql.NullString{String: o.Hours.String(), Valid: true}
	}
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO credit_overrides (ro_number, from_stage, to_stage, note, date, tech, hours)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(ro_number, from_stage, to_stage, note) DO UPDATE SET
			date = excluded.date,
			tech = excluded.tech,
			hours = excluded.hours`,
		o.Key.RONumber, o.Key.FromStage, o.Key.ToStage, o.Key.Note, date, tech, hours)
	return err
}

func (c *conn) GetOverride(ctx context.Context, key ledger.OverrideKey) (*ledger.CreditOverride, error) {
	row := c.db.QueryRowContext(ctx,
		`SELECT ro_number, from_stage, to_stage, note, date, tech, hours
		 FROM credit_overrides
		 WHERE ro_number = ? AND from_stage = ? AND to_stage = ? AND note = ?`,
		key.RONumber, key.FromStage, key.ToStage, key.Note)
	o, err := scanOverride(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return o, nil
}

func (c *conn) ListOverrides(ctx context.Context, ron ledger.RONumber) ([]ledger.CreditOverride, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT ro_number, from_stage, to_stage, note, date, tech, hours
		 FROM credit_overrides WHERE ro_number = ?`, ron)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ledger.CreditOverride
	for rows.Next() {
		o, err := scanOverride(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *o)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanOverride(s scanner) (*ledger.CreditOverride, error) {
	var o ledger.CreditOverride
	var date, tech, hours sql.NullString
	if err := s.Scan(&o.Key.RONumber, &o.Key.FromStage, &o.Key.ToStage, &o.Key.Note,
		&date, &tech, &hours); err != nil {
		return nil, err
	}
	if date.Valid {
		d := parseDay(date.String)
		o.Date = &d
	}
	if tech.Valid {
		t := tech.String
		o.Tech = &t
	}
	if hours.Valid {
		h := parseDec(hours.String)
		o.Hours = &h
	}
	return &o, nil
}

func (c *conn) DeleteOverride(ctx context.Context, key ledger.OverrideKey) error {
	_, err := c.db.ExecContext(ctx,
		"DELETE FROM credit_overrides WHERE ro_number = ? AND from_stage = ? AND to_stage = ? AND note = ?",
		key.RONumber, key.FromStage, key.ToStage, key.Note)
	return err
}

// =============================================================================
// CREDIT AUDIT LOG
// =============================================================================

func (c *conn) InsertAuditEntry(ctx context.Context, e ledger.CreditAuditEntry) error {
	_, err := c.db.ExecContext(ctx,
		"INSERT INTO credit_audit (id, ro_number, date, employee, hours, note) VALUES (?, ?, ?, ?, ?, ?)",
		e.ID, e.RONumber, e.Date.Format(ledger.DateLayout), e.Employee, e.Hours.String(), e.Note)
	return err
}

func (c *conn) AuditEntryExists(ctx context.Context, ron ledger.RONumber, employee, note string) (bool, error) {
	var count int
	err := c.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM credit_audit WHERE ro_number = ? AND employee = ? AND note = ?",
		ron, employee, note).Scan(&count)
	return count > 0, err
}

func (c *conn) ListAuditEntries(ctx context.Context, ron ledger.RONumber) ([]ledger.CreditAuditEntry, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT id, ro_number, date, employee, hours, note
		 FROM credit_audit WHERE ro_number = ? ORDER BY date ASC, id ASC`, ron)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ledger.CreditAuditEntry
	for rows.Next() {
		var e ledger.CreditAuditEntry
		var date, hours string
		if err := rows.Scan(&e.ID, &e.RONumber, &date, &e.Employee, &hours, &e.Note); err != nil {
			return nil, err
		}
		e.Date = parseDay(date)
		e.Hours = parseDec(hours)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (c *conn) SumAuditHours(ctx context.Context, ron ledger.RONumber) (map[string]decimal.Decimal, error) {
	// Hours are stored as TEXT; sum with decimal in Go rather than
	// letting SQLite coerce to float.
	rows, err := c.db.QueryContext(ctx,
		"SELECT employee, hours FROM credit_audit WHERE ro_number = ?", ron)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sums := make(map[string]decimal.Decimal)
	for rows.Next() {
		var emp, hours string
		if err := rows.Scan(&emp, &hours); err != nil {
			return nil, err
		}
		sums[emp] = sums[emp].Add(parseDec(hours))
	}
	return sums, rows.Err()
}

func (c *conn) DeleteAuditEntry(ctx context.Context, ron ledger.RONumber, employee, note string) error {
	_, err := c.db.ExecContext(ctx,
		"DELETE FROM credit_audit WHERE ro_number = ? AND employee = ? AND note = ?",
		ron, employee, note)
	return err
}

// =============================================================================
// ALLOCATIONS
// =============================================================================

func (c *conn) ListAllocations(ctx context.Context, ron ledger.RONumber) ([]ledger.Allocation, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT id, ro_number, employee, role, phase, percent, hours
		 FROM ro_allocations WHERE ro_number = ? ORDER BY id ASC`, ron)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ledger.Allocation
	for rows.Next() {
		var a ledger.Allocation
		var percent, hours string
		if err := rows.Scan(&a.ID, &a.RONumber, &a.Employee, &a.Role, &a.Phase, &percent, &hours); err != nil {
			return nil, err
		}
		a.Percent = parseDec(percent)
		a.Hours = parseDec(hours)
		out = append(out, a)
	}
	return out, rows.Err()
}

func (c *conn) ReplaceAllocations(ctx context.Context, ron ledger.RONumber, allocs []ledger.Allocation) error {
	if _, err := c.db.ExecContext(ctx, "DELETE FROM ro_allocations WHERE ro_number = ?", ron); err != nil {
		return err
	}
	for _, a := range allocs {
		if _, err := c.db.ExecContext(ctx, `
			INSERT INTO ro_allocations (ro_number, employee, role, phase, percent, hours)
			VALUES (?, ?, ?, ?, ?, ?)`,
			ron, a.Employee, a.Role, a.Phase, a.Percent.String(), a.Hours.String()); err != nil {
			return err
		}
	}
	return nil
}

// =============================================================================
// EMPLOYEES AND TIMECLOCK
// =============================================================================

func (c *conn) ListEmployees(ctx context.Context) ([]ledger.Employee, error) {
	rows, err := c.db.QueryContext(ctx, "SELECT name, role FROM employees ORDER BY name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ledger.Employee
	for rows.Next() {
		var e ledger.Employee
		if err := rows.Scan(&e.Name, &e.Role); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (c *conn) PutEmployee(ctx context.Context, e ledger.Employee) error {
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO employees (name, role) VALUES (?, ?)
		ON CONFLICT(name) DO UPDATE SET role = excluded.role`,
		e.Name, e.Role)
	return err
}

func (c *conn) DeleteEmployee(ctx context.Context, name string) error {
	_, err := c.db.ExecContext(ctx, "DELETE FROM employees WHERE name = ?", name)
	return err
}

func (c *conn) AppendWorked(ctx context.Context, entries []ledger.WorkedEntry) error {
	for _, w := range entries {
		if _, err := c.db.ExecContext(ctx, `
			INSERT INTO time_clock_records (date, employee, clock_in, clock_out, hours)
			VALUES (?, ?, ?, ?, ?)`,
			w.Date.Format(ledger.DateLayout), w.Employee, w.ClockIn, w.ClockOut, w.Hours.String()); err != nil {
			return err
		}
	}
	return nil
}

func (c *conn) SumWorkedHours(ctx context.Context, from, to time.Time) (map[string]decimal.Decimal, error) {
	rows, err := c.db.QueryContext(ctx,
		"SELECT employee, hours FROM time_clock_records WHERE date >= ? AND date <= ?",
		from.Format(ledger.DateLayout), to.Format(ledger.DateLayout))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sums := make(map[string]decimal.Decimal)
	for rows.Next() {
		var emp, hours string
		if err := rows.Scan(&emp, &hours); err != nil {
			return nil, err
		}
		sums[emp] = sums[emp].Add(parseDec(hours))
	}
	return sums, rows.Err()
}

// =============================================================================
// HELPERS
// =============================================================================

func parseDec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func parseDay(s string) time.Time {
	t, _ := time.Parse(ledger.DateLayout, s)
	return t
}
