/*
summary.go - Worked vs credited reporting

PURPOSE:
  The efficiency view: for a date range, what each employee clocked
  (timeclock records) against what the ledger credited them (generated
  rows, post-override). Efficiency above 1.0 means the tech beat book
  time.

  Credited hours come from the derived rows rather than the audit log
  so overrides show through in the report; the audit log stays the
  untouched payroll record.
*/
package ledger

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// Summary returns one row per employee seen in either the timeclock or
// the credit rows inside [from, to], sorted by name.
func (e *Engine) Summary(ctx context.Context, from, to time.Time) ([]EmployeeSummary, error) {
	cfg := e.cfg.Current()
	worked, err := e.store.SumWorkedHours(ctx, from, to)
	if err != nil {
		return nil, err
	}

	credited := make(map[string]decimal.Decimal)
	ros, err := e.store.ListRepairOrders(ctx)
	if err != nil {
		return nil, err
	}
	for i := range ros {
		rows, err := e.creditRows(ctx, e.store, cfg, &ros[i])
		if err != nil {
			return nil, err
		}
		for _, r := range rows {
			if r.Date.Before(from) || r.Date.After(to) {
				continue
			}
			credited[r.Tech] = credited[r.Tech].Add(r.Hours)
		}
	}

	names := make(map[string]bool)
	for n := range worked {
		names[n] = true
	}
	for n := range credited {
		names[n] = true
	}

	out := make([]EmployeeSummary, 0, len(names))
	for n := range names {
		s := EmployeeSummary{
			Employee:      n,
			WorkedHours:   worked[n],
			CreditedHours: credited[n],
		}
		if s.WorkedHours.IsPositive() {
			s.Efficiency = s.CreditedHours.Div(s.WorkedHours)
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Employee < out[j].Employee })
	return out, nil
}

// StageCount is one dashboard row: active ROs sitting in a stage.
type StageCount struct {
	Stage string
	Count int
}

// Dashboard counts non-closed ROs per configured stage, in stage
// order. Stages with no ROs still appear with a zero count.
func (e *Engine) Dashboard(ctx context.Context) ([]StageCount, error) {
	cfg := e.cfg.Current()
	ros, err := e.store.ListRepairOrders(ctx)
	if err != nil {
		return nil, err
	}
	counts := make(map[int]int)
	for _, ro := range ros {
		if ro.Status == StatusClosed {
			continue
		}
		if i := cfg.Stages.Index(ro.Stage); i >= 0 {
			counts[i]++
		}
	}
	out := make([]StageCount, len(cfg.Stages))
	for i, s := range cfg.Stages {
		out[i] = StageCount{Stage: s, Count: counts[i]}
	}
	return out, nil
}
