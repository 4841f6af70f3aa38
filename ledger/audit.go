/*
audit.go - The posted-credit audit log writer

PURPOSE:
  The audit log is the immutable record of credit actually granted.
  Everything else in this package is derivable; audit entries are what
  payroll exports read, so posting has to be safe to call from any
  trigger, any number of times.

SKIP SEMANTICS:
  Posting silently skips (no error, nothing written) when:
  - the employee is empty (unassigned role)
  - the hours are zero (nothing to record)
  - the RO no longer exists (deletion races benignly with triggers)

IDEMPOTENCY:
  PostCreditOnce keys on (ro, employee, note). The note formats in
  notes.go make that tuple unique per generated row, so recompute can
  re-post every row on every pass and the log never duplicates.
  PostCredit skips the existence check; close reconciliation uses it
  because its amounts are self-damping (each post shrinks the next
  diff below tolerance).
*/
package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PostCredit appends one audit entry unconditionally (after the skip
// checks). Returns whether an entry was written.
func PostCredit(ctx context.Context, s Store, ron RONumber, date time.Time, employee string, hours decimal.Decimal, note string) (bool, error) {
	if employee == "" || hours.IsZero() {
		return false, nil
	}
	if _, err := s.GetRepairOrder(ctx, ron); err != nil {
		if IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	err := s.InsertAuditEntry(ctx, CreditAuditEntry{
		ID:       uuid.NewString(),
		RONumber: ron,
		Date:     date,
		Employee: employee,
		Hours:    hours,
		Note:     note,
	})
	if err != nil {
		return false, err
	}
	return true, nil
}

// PostCreditOnce posts at most one entry per (ro, employee, note).
// A repeat call with the same tuple is a no-op even if the hours
// differ; the first posting wins, corrections go through overrides.
func PostCreditOnce(ctx context.Context, s Store, ron RONumber, date time.Time, employee string, hours decimal.Decimal, note string) (bool, error) {
	if employee == "" || hours.IsZero() {
		return false, nil
	}
	exists, err := s.AuditEntryExists(ctx, ron, employee, note)
	if err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}
	return PostCredit(ctx, s, ron, date, employee, hours, note)
}
