/*
engine.go - The credit recompute pass

PURPOSE:
  Engine owns every write to the credit tables. The single entry point
  is Recompute: a deterministic, idempotent pass that reconciles the
  RO's current hour buckets against the frozen baselines and appends at
  most one adjustment per milestone when they diverge.

THE PASS, PER MILESTONE:
  1. Find the FIRST transition in log order matching the milestone.
     No match, no responsible employee, or a non-positive bucket:
     nothing happens.
  2. Freeze the baseline (insert-or-ignore) at the current bucket value.
  3. unapplied = bucket - (base + sum(adjustments)).
  4. |unapplied| >= epsilon: append ONE adjustment carrying the whole
     residual. Otherwise append nothing.

  Running the pass twice in a row is a no-op: the second run sees
  unapplied == 0. Editing the bucket between runs yields exactly one
  new adjustment for the net difference, never a rewrite of history.

CREDIT SOURCES:
  A role is credited from exactly one source per RO:
  - allocation rows for the role exist: employee and hours come from
    the allocation table, credited per completed phase
  - otherwise: the fixed-role source above (bucket x share to the
    RO's role assignment)

TRANSACTION BOUNDARY:
  One Recompute = one store transaction. Baselines, adjustments, audit
  postings and the hours writeback land together or not at all.

SEE ALSO:
  - milestone.go: the matching rule
  - rows.go:      generated credit rows and the override layer
  - reconcile.go: close-time true-up
*/
package ledger

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// ENGINE
// =============================================================================

// Engine computes and persists production credit. All writes to the
// credit tables go through it.
type Engine struct {
	store TxStore
	cfg   Source

	// now is injectable for tests; adjustments and audit entries are
	// dated at day granularity.
	now func() time.Time
}

func NewEngine(store TxStore, cfg Source) *Engine {
	return &Engine{store: store, cfg: cfg, now: time.Now}
}

// today returns the current date truncated to day granularity.
func (e *Engine) today() time.Time {
	t := e.now()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// =============================================================================
// RECOMPUTE - the only path that creates baselines and adjustments
// =============================================================================

// Recompute runs one reconciliation pass for the RO inside a single
// transaction. A missing RO is a silent no-op: deletion races benignly
// with recompute triggers.
func (e *Engine) Recompute(ctx context.Context, ro RONumber) error {
	cfg := e.cfg.Current()
	return e.store.WithTx(ctx, func(s Store) error {
		err := e.recomputeTx(ctx, s, cfg, ro)
		if IsNotFound(err) {
			return nil
		}
		return err
	})
}

func (e *Engine) recomputeTx(ctx context.Context, s Store, cfg Config, ron RONumber) error {
	ro, err := s.GetRepairOrder(ctx, ron)
	if err != nil {
		return err
	}
	transitions, err := s.ListTransitions(ctx, ron)
	if err != nil {
		return err
	}
	allocs, err := s.ListAllocations(ctx, ron)
	if err != nil {
		return err
	}
	allocRoles := allocationRoles(allocs)

	for _, m := range cfg.Milestones {
		// Roles backed by allocation rows are credited from those rows,
		// never from the fixed-role bucket.
		if allocRoles[m.Role] {
			continue
		}
		if err := e.reconcileMilestone(ctx, s, cfg, ro, m, transitions); err != nil {
			return err
		}
	}

	if err := e.postAllocationCredits(ctx, s, cfg, ro, transitions, allocs); err != nil {
		return err
	}

	// Audit postings and the hours writeback both derive from the
	// post-override rows, so recompute leaves everything consistent.
	rows, err := e.rowsTx(ctx, s, cfg, ro, transitions, allocs)
	if err != nil {
		return err
	}
	for _, r := range rows {
		if _, err := PostCreditOnce(ctx, s, r.RONumber, r.Date, r.Tech, r.Hours, r.Note); err != nil {
			return err
		}
	}
	return writebackHours(ctx, s, ro, rows)
}

// reconcileMilestone applies steps 1-4 of the pass for one milestone.
func (e *Engine) reconcileMilestone(ctx context.Context, s Store, cfg Config, ro *RepairOrder, m Milestone, transitions []StageTransition) error {
	t := m.FirstMatch(cfg.Stages, transitions)
	if t == nil {
		return nil
	}
	tech := ro.Assigned(m.Role)
	bucket := ro.BucketHours(m.Bucket)
	if tech == "" || !bucket.IsPositive() {
		return nil
	}

	if _, err := s.EnsureBaseline(ctx, CreditBaseline{
		RONumber:  ro.RONumber,
		Milestone: m.ID,
		BaseHours: bucket,
	}); err != nil {
		return err
	}
	base, err := s.GetBaseline(ctx, ro.RONumber, m.ID)
	if err != nil {
		return err
	}
	adjustments, err := s.ListAdjustments(ctx, ro.RONumber, m.ID)
	if err != nil {
		return err
	}

	applied := base.BaseHours
	for _, a := range adjustments {
		applied = applied.Add(a.DeltaHours)
	}
	unapplied := bucket.Sub(applied)
	if unapplied.Abs().LessThan(ResidualEpsilon) {
		return nil
	}
	return s.AppendAdjustment(ctx, CreditAdjustment{
		RONumber:   ro.RONumber,
		Milestone:  m.ID,
		FromStage:  t.FromStage,
		ToStage:    t.ToStage,
		Date:       e.today(),
		Tech:       tech,
		DeltaHours: unapplied,
		Share:      m.Share,
	})
}

// postAllocationCredits posts one idempotent audit credit per
// allocation whose phase the RO has moved past.
func (e *Engine) postAllocationCredits(ctx context.Context, s Store, cfg Config, ro *RepairOrder, transitions []StageTransition, allocs []Allocation) error {
	for _, a := range allocs {
		passed, at := phasePassed(cfg.Stages, a.Phase, ro, transitions)
		if !passed || a.Employee == "" {
			continue
		}
		hours := a.CreditedHours(ro.TotalHours)
		if _, err := PostCreditOnce(ctx, s, ro.RONumber, at, a.Employee, hours, AllocationNote(a.Phase)); err != nil {
			return err
		}
	}
	return nil
}

// phasePassed reports whether the RO has moved strictly beyond the
// phase stage, and the date of the first transition that did so. Falls
// back to the live stage field when the log is sparse.
func phasePassed(order StageOrder, phase string, ro *RepairOrder, transitions []StageTransition) (bool, time.Time) {
	pi := order.Index(phase)
	if pi < 0 {
		return false, time.Time{}
	}
	for _, t := range transitions {
		if order.Index(t.ToStage) > pi {
			return true, t.Date
		}
	}
	if order.Index(ro.Stage) > pi {
		return true, ro.Date
	}
	return false, time.Time{}
}

func allocationRoles(allocs []Allocation) map[Role]bool {
	roles := make(map[Role]bool, len(allocs))
	for _, a := range allocs {
		roles[a.Role] = true
	}
	return roles
}

// writebackHours derives hours_taken from the post-override rows and
// clamps hours_remaining at zero.
func writebackHours(ctx context.Context, s Store, ro *RepairOrder, rows []CreditRow) error {
	taken := decimal.Zero
	for _, r := range rows {
		taken = taken.Add(r.Hours)
	}
	remaining := ro.TotalHours.Sub(taken)
	if remaining.IsNegative() {
		remaining = decimal.Zero
	}
	return s.UpdateROHours(ctx, ro.RONumber, taken, remaining)
}

// =============================================================================
// STAGE AND STATUS CHANGES
// =============================================================================

// RecordTransition appends a stage-change event, moves the RO's live
// stage field and recomputes. Both stages must be in the configured
// order.
func (e *Engine) RecordTransition(ctx context.Context, ron RONumber, fromStage, toStage string, date time.Time) error {
	cfg := e.cfg.Current()
	if !cfg.Stages.Contains(fromStage) {
		return &StageError{Stage: fromStage}
	}
	if !cfg.Stages.Contains(toStage) {
		return &StageError{Stage: toStage}
	}
	return e.store.WithTx(ctx, func(s Store) error {
		if _, err := s.GetRepairOrder(ctx, ron); err != nil {
			return err
		}
		if _, err := s.AppendTransition(ctx, StageTransition{
			RONumber:  ron,
			FromStage: fromStage,
			ToStage:   toStage,
			Date:      date,
		}); err != nil {
			return err
		}
		if err := s.UpdateROStage(ctx, ron, toStage); err != nil {
			return err
		}
		return e.recomputeTx(ctx, s, cfg, ron)
	})
}

// ChangeStatus updates the RO's status. Moving INTO closed runs the
// close reconciliation once; the reconcile itself is idempotent, so a
// repeated close posts nothing new.
func (e *Engine) ChangeStatus(ctx context.Context, ron RONumber, status Status) error {
	cfg := e.cfg.Current()
	return e.store.WithTx(ctx, func(s Store) error {
		ro, err := s.GetRepairOrder(ctx, ron)
		if err != nil {
			return err
		}
		closing := status == StatusClosed && ro.Status != StatusClosed
		if err := s.UpdateROStatus(ctx, ron, status); err != nil {
			return err
		}
		if !closing {
			return nil
		}
		if err := e.recomputeTx(ctx, s, cfg, ron); err != nil {
			return err
		}
		return e.closeReconcileTx(ctx, s, cfg, ron)
	})
}

// =============================================================================
// OVERRIDES
// =============================================================================

// SetOverride upserts an operator correction keyed by the row identity
// and re-derives the hours writeback. The generated row underneath is
// untouched; clearing the override restores it exactly.
func (e *Engine) SetOverride(ctx context.Context, o CreditOverride) error {
	cfg := e.cfg.Current()
	return e.store.WithTx(ctx, func(s Store) error {
		if _, err := s.GetRepairOrder(ctx, o.Key.RONumber); err != nil {
			return err
		}
		if err := s.UpsertOverride(ctx, o); err != nil {
			return err
		}
		return e.recomputeTx(ctx, s, cfg, o.Key.RONumber)
	})
}

// DeleteOverride removes a correction; the generated row shows through
// again on the next read.
func (e *Engine) DeleteOverride(ctx context.Context, key OverrideKey) error {
	cfg := e.cfg.Current()
	return e.store.WithTx(ctx, func(s Store) error {
		if err := s.DeleteOverride(ctx, key); err != nil {
			return err
		}
		err := e.recomputeTx(ctx, s, cfg, key.RONumber)
		if IsNotFound(err) {
			return nil
		}
		return err
	})
}

// =============================================================================
// ROW DELETION - supplements only, baselines are frozen
// =============================================================================

// DeleteCreditRow removes the adjustment behind a supplement row, plus
// its audit entry. Baseline rows return ErrBaselineNotDeletable. The
// bucket is NOT touched, so the next recompute re-detects the residual
// if the bucket still diverges; deliberately so, deletion is an
// operator statement that THIS adjustment was wrong, not that the
// hours changed back.
func (e *Engine) DeleteCreditRow(ctx context.Context, row CreditRow) error {
	cfg := e.cfg.Current()
	if !IsSupplementNote(row.Note) {
		if row.Origin == OriginBaseline || row.Origin == "" {
			return ErrBaselineNotDeletable
		}
		return ErrRowNotDeletable
	}
	label, negative, ok := ParseSupplementNote(row.Note)
	if !ok {
		return ErrRowNotDeletable
	}
	m, ok := cfg.MilestoneByLabel(label)
	if !ok {
		return ErrUnknownMilestone
	}
	// Displayed hours carry the share multiplier; divide it back out to
	// recover the stored delta.
	delta := row.Hours.Abs().Div(m.Share)
	if negative {
		delta = delta.Neg()
	}

	return e.store.WithTx(ctx, func(s Store) error {
		adjustments, err := s.ListAdjustments(ctx, row.RONumber, m.ID)
		if err != nil {
			return err
		}
		match := findAdjustment(adjustments, row, delta)
		if match == nil {
			return ErrRowNotDeletable
		}
		if err := s.DeleteAdjustment(ctx, match.ID); err != nil {
			return err
		}
		if err := s.DeleteAuditEntry(ctx, row.RONumber, row.Tech, row.Note); err != nil {
			return err
		}
		ro, err := s.GetRepairOrder(ctx, row.RONumber)
		if err != nil {
			return err
		}
		rows, err := e.creditRows(ctx, s, cfg, ro)
		if err != nil {
			return err
		}
		return writebackHours(ctx, s, ro, rows)
	})
}

func findAdjustment(adjustments []CreditAdjustment, row CreditRow, delta decimal.Decimal) *CreditAdjustment {
	day := row.Date.Format(DateLayout)
	for i := range adjustments {
		a := &adjustments[i]
		if a.FromStage != row.FromStage || a.ToStage != row.ToStage {
			continue
		}
		if a.Tech != row.Tech || a.Date.Format(DateLayout) != day {
			continue
		}
		if a.DeltaHours.Sub(delta).Abs().LessThan(adjustmentMatchTolerance) {
			return a
		}
	}
	return nil
}
