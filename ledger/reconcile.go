/*
reconcile.go - Close-time credit true-up

PURPOSE:
  When an RO closes, whatever credit the milestone flow missed (late
  assignments, skipped stages, allocation phases never logged) gets
  trued up in one pass: compute what each employee SHOULD have been
  credited for the whole RO, subtract what the audit log says was
  posted, and post the signed difference. Over-credit (an override that
  lowered the bucket after posting) trues down the same way, with a
  negative entry.

EXPECTED CREDIT, PER EMPLOYEE:
  - allocation-backed roles: the sum of their allocation amounts
    (fixed hours, else total x percent / 100), every phase counted
    because close means the work is done
  - fixed-role otherwise: bucket x share summed over the role's
    milestones (body tech: 60% + 40% = the full body bucket)

IDEMPOTENCY:
  No flag is stored. The diff is recomputed from the current audit
  sums, so the posting itself closes the gap: a repeat close sees a
  diff under the 0.01h tolerance and writes nothing.
*/
package ledger

import (
	"context"

	"github.com/shopspring/decimal"
)

// CloseReconcile runs the close-time true-up in its own transaction.
// ChangeStatus calls the same pass automatically when an RO moves into
// closed; this entry point exists for manual re-runs.
func (e *Engine) CloseReconcile(ctx context.Context, ron RONumber) error {
	cfg := e.cfg.Current()
	return e.store.WithTx(ctx, func(s Store) error {
		return e.closeReconcileTx(ctx, s, cfg, ron)
	})
}

func (e *Engine) closeReconcileTx(ctx context.Context, s Store, cfg Config, ron RONumber) error {
	ro, err := s.GetRepairOrder(ctx, ron)
	if err != nil {
		return err
	}
	allocs, err := s.ListAllocations(ctx, ron)
	if err != nil {
		return err
	}

	expected := make(map[string]decimal.Decimal)
	allocRoles := allocationRoles(allocs)
	for _, a := range allocs {
		if a.Employee == "" {
			continue
		}
		expected[a.Employee] = expected[a.Employee].Add(a.CreditedHours(ro.TotalHours))
	}
	for _, m := range cfg.Milestones {
		if allocRoles[m.Role] {
			continue
		}
		emp := ro.Assigned(m.Role)
		if emp == "" {
			continue
		}
		expected[emp] = expected[emp].Add(ro.BucketHours(m.Bucket).Mul(m.Share))
	}

	posted, err := s.SumAuditHours(ctx, ron)
	if err != nil {
		return err
	}
	for emp, exp := range expected {
		diff := exp.Sub(posted[emp])
		if diff.Abs().LessThanOrEqual(CloseTolerance) {
			continue
		}
		if _, err := PostCredit(ctx, s, ron, e.today(), emp, diff, CloseNote); err != nil {
			return err
		}
	}
	return nil
}
