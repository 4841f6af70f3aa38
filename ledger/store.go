/*
store.go - Persistence interface for the credit ledger

PURPOSE:
  Defines the interface between the credit engine and the database.
  The engine never sees SQL; everything it reads or writes goes through
  Store. Different implementations can use SQLite, PostgreSQL, or
  in-memory storage.

KEY INTERFACES:
  Store:   All reads plus the ledger's constrained writes
  TxStore: Transactional wrapper (every recompute is one transaction)

WRITE DISCIPLINE:
  The credit tables carry the ledger's invariants in the interface
  shape itself:
  - EnsureBaseline is insert-or-ignore. There is NO UpdateBaseline.
  - AppendAdjustment only appends. DeleteAdjustment exists solely for
    operator-initiated supplement removal (a scoped correction, not an
    edit path).
  - Overrides upsert by their full identity key and never touch the
    underlying generated rows.
  - Audit entries insert at most once per (ro, employee, note).

ORDERING CONTRACT:
  ListTransitions MUST return rows ordered by date ascending with ties
  broken by insertion id. Milestone matching means "first transition in
  log order"; an implementation that orders differently changes which
  bucket value gets frozen as the baseline.

SEE ALSO:
  - engine.go:          the only writer of baselines/adjustments
  - store/sqlite:       production implementation
*/
package ledger

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// STORE - Full persistence surface used by the engine
// =============================================================================

// Store is the persistence interface of the credit ledger. Credit-table
// writes are constrained: baselines insert-or-ignore, adjustments
// append, audit entries are unique per (ro, employee, note).
type Store interface {
	// ----- repair orders (collaborator-owned; ledger writes hours back) -----

	// GetRepairOrder returns the RO or ErrRONotFound.
	GetRepairOrder(ctx context.Context, ro RONumber) (*RepairOrder, error)
	ListRepairOrders(ctx context.Context) ([]RepairOrder, error)
	PutRepairOrder(ctx context.Context, ro *RepairOrder) error
	// DeleteRepairOrder removes the RO and cascades to its transitions,
	// baselines, adjustments, overrides, allocations and audit entries.
	DeleteRepairOrder(ctx context.Context, ro RONumber) error
	// UpdateROHours writes back the derived hours_taken/hours_remaining.
	UpdateROHours(ctx context.Context, ro RONumber, taken, remaining decimal.Decimal) error
	// UpdateROStage and UpdateROStatus mutate the live pointer fields only.
	UpdateROStage(ctx context.Context, ro RONumber, stage string) error
	UpdateROStatus(ctx context.Context, ro RONumber, status Status) error

	// ----- stage transitions (append-only event log) -----

	// AppendTransition records one stage change and returns its log id.
	AppendTransition(ctx context.Context, t StageTransition) (int64, error)
	// ListTransitions returns the RO's transitions ordered by date ASC,
	// id ASC. The ordering is part of the contract.
	ListTransitions(ctx context.Context, ro RONumber) ([]StageTransition, error)

	// ----- credit baselines (write-once) -----

	// GetBaseline returns nil (no error) when no baseline exists yet.
	GetBaseline(ctx context.Context, ro RONumber, milestone string) (*CreditBaseline, error)
	// EnsureBaseline inserts the baseline if absent and reports whether
	// this call created it. An existing row is left untouched.
	EnsureBaseline(ctx context.Context, b CreditBaseline) (created bool, err error)

	// ----- credit adjustments (append-only, scoped delete) -----

	AppendAdjustment(ctx context.Context, a CreditAdjustment) error
	ListAdjustments(ctx context.Context, ro RONumber, milestone string) ([]CreditAdjustment, error)
	ListAdjustmentsForRO(ctx context.Context, ro RONumber) ([]CreditAdjustment, error)
	// DeleteAdjustment removes one adjustment by id (supplement deletion).
	DeleteAdjustment(ctx context.Context, id int64) error

	// ----- credit overrides (upsert by identity key) -----

	UpsertOverride(ctx context.Context, o CreditOverride) error
	GetOverride(ctx context.Context, key OverrideKey) (*CreditOverride, error)
	ListOverrides(ctx context.Context, ro RONumber) ([]CreditOverride, error)
	DeleteOverride(ctx context.Context, key OverrideKey) error

	// ----- credit audit log -----

	InsertAuditEntry(ctx context.Context, e CreditAuditEntry) error
	// AuditEntryExists keys on (ro, employee, note), the idempotency tuple.
	AuditEntryExists(ctx context.Context, ro RONumber, employee, note string) (bool, error)
	ListAuditEntries(ctx context.Context, ro RONumber) ([]CreditAuditEntry, error)
	// SumAuditHours totals posted hours per employee for one RO.
	SumAuditHours(ctx context.Context, ro RONumber) (map[string]decimal.Decimal, error)
	// DeleteAuditEntry removes the entry matching the idempotency tuple.
	DeleteAuditEntry(ctx context.Context, ro RONumber, employee, note string) error

	// ----- allocations (percent/fixed credit source) -----

	ListAllocations(ctx context.Context, ro RONumber) ([]Allocation, error)
	ReplaceAllocations(ctx context.Context, ro RONumber, allocs []Allocation) error

	// ----- employees and timeclock -----

	ListEmployees(ctx context.Context) ([]Employee, error)
	PutEmployee(ctx context.Context, e Employee) error
	DeleteEmployee(ctx context.Context, name string) error

	AppendWorked(ctx context.Context, entries []WorkedEntry) error
	// SumWorkedHours totals timeclock hours per employee in [from, to].
	SumWorkedHours(ctx context.Context, from, to time.Time) (map[string]decimal.Decimal, error)
}

// Employee is a directory row used for crediting identity.
type Employee struct {
	Name string
	Role Role
}

// =============================================================================
// TRANSACTIONAL STORE
// =============================================================================

// TxStore wraps Store with transaction support. Every recompute pass
// runs inside exactly one WithTx so baseline, adjustments, audit rows
// and the hours writeback land atomically.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction.
	// If fn returns error, the transaction is rolled back.
	WithTx(ctx context.Context, fn func(Store) error) error
}
