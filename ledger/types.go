/*
Package ledger implements the production credit ledger for a body shop.

PURPOSE:
  Repair orders move through a fixed sequence of workshop stages. Crossing
  certain stage boundaries ("milestones") pays the responsible employee a
  share of one of the RO's hour buckets (body hours, refinish hours, ...).
  Those buckets are edited by humans for the whole life of the repair, so
  crediting has to reconcile a mutable external quantity against an
  append-only ledger:

    baseline   = bucket value frozen the first time a milestone is reached
    adjustment = signed residual appended whenever the bucket moves later

  At any point base_hours + sum(adjustments) equals the current bucket
  value, and every past payout stays exactly as it was paid.

KEY CONCEPTS IN THIS FILE (types.go):
  - RepairOrder:      collaborator-owned record with named hour buckets
  - StageTransition:  immutable stage-change event (the matching input)
  - CreditBaseline:   frozen first-seen bucket value, written at most once
  - CreditAdjustment: append-only signed delta against a baseline
  - CreditOverride:   operator correction of a generated credit row
  - CreditAuditEntry: posted ledger line, unique per (ro, employee, note)
  - CreditRow:        generated display/aggregation row, post-override

DESIGN PRINCIPLES:
  1. Precision: decimal.Decimal for every hour value
  2. Immutability: baselines never update, adjustments never edit in place
  3. Idempotency: recompute may run any number of times with no new effect
  4. Auditability: every credited hour traces to a baseline or adjustment

SEE ALSO:
  - milestone.go: transition pattern matching against the stage order
  - engine.go:    the recompute pass (baseline/adjustment/override)
  - audit.go:     idempotent audit log writer
  - reconcile.go: close-time true-up
*/
package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// TOLERANCES
// =============================================================================

var (
	// ResidualEpsilon guards the baseline/adjustment residual check against
	// float noise in bucket edits. Residuals below it produce no ledger row.
	ResidualEpsilon = decimal.NewFromFloat(1e-6)

	// CloseTolerance is the close-time reconciliation threshold in hours.
	CloseTolerance = decimal.NewFromFloat(0.01)

	// adjustmentMatchTolerance is used when deleting a supplement row: the
	// stored delta is recovered from displayed share-multiplied hours, so
	// the match allows a small rounding band.
	adjustmentMatchTolerance = decimal.NewFromFloat(1e-5)
)

// DateLayout is the day-granularity format used on credit rows and
// stage transitions.
const DateLayout = "2006-01-02"

// =============================================================================
// IDENTIFIERS
// =============================================================================

type RONumber string

// Role names a responsibility on a repair order (body_tech, painter,
// mechanic, estimator). Roles are configuration, not an enum.
type Role string

// Bucket names an hour bucket on a repair order (body_hours,
// refinish_hours, mechanical_hours).
type Bucket string

type Status string

const (
	StatusOpen   Status = "open"
	StatusOnHold Status = "on_hold"
	StatusClosed Status = "closed"
)

// =============================================================================
// REPAIR ORDER - owned by the collaborator layer, read by the ledger
// =============================================================================

// RepairOrder is the collaborator-owned record. The ledger reads it and
// writes back only HoursTaken/HoursRemaining.
type RepairOrder struct {
	RONumber   RONumber
	Date       time.Time
	TotalHours decimal.Decimal

	// Named hour buckets, edited over the RO's life.
	Buckets map[Bucket]decimal.Decimal

	// Responsible employee per role. Empty string = unassigned.
	Assignments map[Role]string

	HoursTaken     decimal.Decimal
	HoursRemaining decimal.Decimal

	Stage  string
	Status Status
}

// BucketHours returns the named bucket value, zero when absent.
func (ro *RepairOrder) BucketHours(b Bucket) decimal.Decimal {
	if ro.Buckets == nil {
		return decimal.Zero
	}
	return ro.Buckets[b]
}

// Assigned returns the employee for a role, empty when unassigned.
func (ro *RepairOrder) Assigned(r Role) string {
	if ro.Assignments == nil {
		return ""
	}
	return ro.Assignments[r]
}

// =============================================================================
// STAGE TRANSITION - immutable event log row
// =============================================================================

// StageTransition is immutable once written. Ordering is by date
// ascending, ties broken by insertion order (the auto-increment id),
// never by timestamp precision: "first transition matching pattern P"
// depends on it.
type StageTransition struct {
	ID        int64
	RONumber  RONumber
	FromStage string
	ToStage   string
	Date      time.Time
}

// =============================================================================
// CREDIT LEDGER ROWS
// =============================================================================

// CreditBaseline freezes the bucket value observed the first time a
// milestone's generating transition is found. Written at most once per
// (ro, milestone); never updated.
type CreditBaseline struct {
	RONumber  RONumber
	Milestone string
	BaseHours decimal.Decimal
}

// CreditAdjustment is an append-only signed delta against a baseline.
// DeltaHours is in bucket hours before the share multiplier; Share is
// stored alongside for audit/export.
type CreditAdjustment struct {
	ID         int64
	RONumber   RONumber
	Milestone  string
	FromStage  string
	ToStage    string
	Date       time.Time
	Tech       string
	DeltaHours decimal.Decimal
	Share      decimal.Decimal
}

// OverrideKey identifies a generated credit row: the same tuple keys
// credit_overrides and audit idempotency.
type OverrideKey struct {
	RONumber  RONumber
	FromStage string
	ToStage   string
	Note      string
}

// CreditOverride replaces the displayed date/tech/hours of one generated
// row. Nil fields keep the generated value. At most one per key.
type CreditOverride struct {
	Key   OverrideKey
	Date  *time.Time
	Tech  *string
	Hours *decimal.Decimal
}

// CreditAuditEntry is an immutable posted ledger line. The writer
// guarantees at most one entry per (ro, employee, note).
type CreditAuditEntry struct {
	ID       string
	RONumber RONumber
	Date     time.Time
	Employee string
	Hours    decimal.Decimal
	Note     string
}

// =============================================================================
// GENERATED CREDIT ROW - derived, post-override
// =============================================================================

// RowOrigin tags how a credit row was produced. Baseline rows are never
// deletable; supplement rows delete through their adjustment.
type RowOrigin string

const (
	OriginBaseline   RowOrigin = "baseline"
	OriginSupplement RowOrigin = "supplement"
	OriginAllocation RowOrigin = "allocation"
)

// CreditRow is one generated credit line for display and aggregation.
// Identity is (RONumber, FromStage, ToStage, Note); overrides substitute
// Date/Tech/Hours but never the identity fields.
type CreditRow struct {
	Date      time.Time
	RONumber  RONumber
	FromStage string
	ToStage   string
	Tech      string
	Hours     decimal.Decimal
	Note      string
	Origin    RowOrigin
}

// Key returns the row's override/audit identity.
func (r CreditRow) Key() OverrideKey {
	return OverrideKey{RONumber: r.RONumber, FromStage: r.FromStage, ToStage: r.ToStage, Note: r.Note}
}

// =============================================================================
// ALLOCATIONS - percent-per-employee credit source (newer schema)
// =============================================================================

// Allocation assigns an employee a fraction of the RO's total hours for
// one phase. Hours, when non-zero, is a fixed amount that wins over the
// percent computation.
type Allocation struct {
	ID       int64
	RONumber RONumber
	Employee string
	Role     Role
	Phase    string
	Percent  decimal.Decimal
	Hours    decimal.Decimal
}

// CreditedHours resolves the allocation amount: fixed hours if set,
// otherwise totalHours * percent / 100.
func (a Allocation) CreditedHours(totalHours decimal.Decimal) decimal.Decimal {
	if !a.Hours.IsZero() {
		return a.Hours
	}
	return totalHours.Mul(a.Percent).Div(decimal.NewFromInt(100))
}

// =============================================================================
// WORKED HOURS - external timeclock source
// =============================================================================

// WorkedEntry is one timeclock record. The ledger stores and sums these;
// it does not validate or import them.
type WorkedEntry struct {
	ID       int64
	Date     time.Time
	Employee string
	ClockIn  string
	ClockOut string
	Hours    decimal.Decimal
}

// EmployeeSummary is one row of the worked-vs-credited view.
type EmployeeSummary struct {
	Employee      string
	WorkedHours   decimal.Decimal
	CreditedHours decimal.Decimal
	// Efficiency = credited / worked, zero when nothing was worked.
	Efficiency decimal.Decimal
}
