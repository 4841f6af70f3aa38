/*
rows.go - Generated credit rows and the override layer

PURPOSE:
  Credit rows are DERIVED, never stored. Each read regenerates them
  from the durable state (baselines, adjustments, allocations) and then
  lays operator overrides on top. Per milestone the shape is:

    1 baseline row                 base_hours x share
    0..n supplement rows           delta_hours x share, signed

  plus one allocation row per completed phase when the RO credits a
  role from the allocation table.

OVERRIDES:
  An override substitutes the displayed date, tech or hours of exactly
  one row, matched by the identity tuple (ro, from, to, note). Nil
  fields keep the generated value. The row identity itself is never
  overridable, so clearing the override restores the generated row
  bit for bit.
*/
package ledger

import (
	"context"
)

// =============================================================================
// PUBLIC READ PATH
// =============================================================================

// CreditRows returns the RO's generated credit rows with overrides
// applied. Read-only; the durable state is untouched.
func (e *Engine) CreditRows(ctx context.Context, ron RONumber) ([]CreditRow, error) {
	cfg := e.cfg.Current()
	ro, err := e.store.GetRepairOrder(ctx, ron)
	if err != nil {
		return nil, err
	}
	return e.creditRows(ctx, e.store, cfg, ro)
}

// creditRows loads the row inputs and delegates to rowsTx. Usable both
// inside and outside a transaction.
func (e *Engine) creditRows(ctx context.Context, s Store, cfg Config, ro *RepairOrder) ([]CreditRow, error) {
	transitions, err := s.ListTransitions(ctx, ro.RONumber)
	if err != nil {
		return nil, err
	}
	allocs, err := s.ListAllocations(ctx, ro.RONumber)
	if err != nil {
		return nil, err
	}
	return e.rowsTx(ctx, s, cfg, ro, transitions, allocs)
}

func (e *Engine) rowsTx(ctx context.Context, s Store, cfg Config, ro *RepairOrder, transitions []StageTransition, allocs []Allocation) ([]CreditRow, error) {
	rows, err := generateRows(ctx, s, cfg, ro, transitions, allocs)
	if err != nil {
		return nil, err
	}
	overrides, err := s.ListOverrides(ctx, ro.RONumber)
	if err != nil {
		return nil, err
	}
	return applyOverrides(rows, overrides), nil
}

// =============================================================================
// GENERATION
// =============================================================================

func generateRows(ctx context.Context, s Store, cfg Config, ro *RepairOrder, transitions []StageTransition, allocs []Allocation) ([]CreditRow, error) {
	var rows []CreditRow
	allocRoles := allocationRoles(allocs)

	for _, m := range cfg.Milestones {
		if allocRoles[m.Role] {
			continue
		}
		t := m.FirstMatch(cfg.Stages, transitions)
		if t == nil {
			continue
		}
		tech := ro.Assigned(m.Role)
		bucket := ro.BucketHours(m.Bucket)
		if tech == "" || !bucket.IsPositive() {
			continue
		}

		// Before the first recompute freezes a baseline the current
		// bucket stands in for it; recompute would freeze exactly this
		// value, so the view never flickers.
		base := bucket
		if b, err := s.GetBaseline(ctx, ro.RONumber, m.ID); err != nil {
			return nil, err
		} else if b != nil {
			base = b.BaseHours
		}
		rows = append(rows, CreditRow{
			Date:      t.Date,
			RONumber:  ro.RONumber,
			FromStage: t.FromStage,
			ToStage:   t.ToStage,
			Tech:      tech,
			Hours:     base.Mul(m.Share),
			Note:      BaselineNote(m.Label, base, t.FromStage, t.ToStage),
			Origin:    OriginBaseline,
		})

		adjustments, err := s.ListAdjustments(ctx, ro.RONumber, m.ID)
		if err != nil {
			return nil, err
		}
		for _, a := range adjustments {
			// Adjustments written before the role was staffed fall back
			// to the RO's current assignee for display.
			adjTech := a.Tech
			if adjTech == "" {
				adjTech = tech
			}
			rows = append(rows, CreditRow{
				Date:      a.Date,
				RONumber:  ro.RONumber,
				FromStage: a.FromStage,
				ToStage:   a.ToStage,
				Tech:      adjTech,
				Hours:     a.DeltaHours.Mul(m.Share),
				Note:      SupplementNote(m.Label, a.DeltaHours),
				Origin:    OriginSupplement,
			})
		}
	}

	for _, a := range allocs {
		passed, at := phasePassed(cfg.Stages, a.Phase, ro, transitions)
		if !passed || a.Employee == "" {
			continue
		}
		rows = append(rows, CreditRow{
			Date:      at,
			RONumber:  ro.RONumber,
			FromStage: a.Phase,
			Tech:      a.Employee,
			Hours:     a.CreditedHours(ro.TotalHours),
			Note:      AllocationNote(a.Phase),
			Origin:    OriginAllocation,
		})
	}
	return rows, nil
}

// =============================================================================
// OVERRIDE APPLICATION
// =============================================================================

// applyOverrides substitutes the overridden fields of matching rows.
// Identity fields are never substituted.
func applyOverrides(rows []CreditRow, overrides []CreditOverride) []CreditRow {
	if len(overrides) == 0 {
		return rows
	}
	byKey := make(map[OverrideKey]CreditOverride, len(overrides))
	for _, o := range overrides {
		byKey[o.Key] = o
	}
	for i := range rows {
		o, ok := byKey[rows[i].Key()]
		if !ok {
			continue
		}
		if o.Date != nil {
			rows[i].Date = *o.Date
		}
		if o.Tech != nil {
			rows[i].Tech = *o.Tech
		}
		if o.Hours != nil {
			rows[i].Hours = *o.Hours
		}
	}
	return rows
}
