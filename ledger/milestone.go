/*
milestone.go - Milestone policy and transition matching

PURPOSE:
  A milestone is a configured credit-triggering rule: crossing from stage
  A into (or past) stage B pays a share of one hour bucket to one role.
  Matching is a single deterministic rule: scan the transition log in
  order and take the FIRST transition whose from-stage equals the
  pattern's origin and whose to-stage satisfies the pattern's predicate
  in the canonical stage order.

PREDICATES:
  at_or_after - credits as soon as the RO merely enters a later stage
  after       - requires the RO to have fully left the target stage

  Body 60% uses at_or_after Paint (entering Paint is enough); Paint 100%
  uses strictly-after Paint (the car must have left the booth).

STAGE ORDER:
  The ordered stage list is injected configuration and may change at
  runtime. Nothing here caches indices: every lookup resolves against
  the order passed in, so renaming/reordering stages needs no restart.
*/
package ledger

import (
	"strings"

	"github.com/shopspring/decimal"
)

// =============================================================================
// STAGE ORDER - canonical ordering, resolved per call
// =============================================================================

// StageOrder is the configured ordered stage list. Comparison is by
// position in this list, never alphabetical. Stage names are plain
// strings matched exactly; membership validation is the caller's job.
type StageOrder []string

// Index returns the position of a stage, or -1 when unknown.
func (o StageOrder) Index(stage string) int {
	for i, s := range o {
		if s == stage {
			return i
		}
	}
	return -1
}

// Contains reports whether the stage is in the configured order.
func (o StageOrder) Contains(stage string) bool { return o.Index(stage) >= 0 }

// AtOrAfter reports stage >= target in the canonical order. Unknown
// stages never satisfy the predicate.
func (o StageOrder) AtOrAfter(stage, target string) bool {
	si, ti := o.Index(stage), o.Index(target)
	return si >= 0 && ti >= 0 && si >= ti
}

// After reports stage > target in the canonical order.
func (o StageOrder) After(stage, target string) bool {
	si, ti := o.Index(stage), o.Index(target)
	return si >= 0 && ti >= 0 && si > ti
}

// =============================================================================
// MILESTONE - static configuration, not persisted per RO
// =============================================================================

// MatchKind selects the to-stage predicate of a milestone pattern.
type MatchKind string

const (
	MatchAtOrAfter MatchKind = "at_or_after"
	MatchAfter     MatchKind = "after"
)

// Milestone binds a transition pattern to an hour bucket, a responsible
// role and a payout share in (0, 1].
type Milestone struct {
	ID          string
	Label       string // note prefix, e.g. "Body 60%"
	FromStage   string
	TargetStage string
	Match       MatchKind
	Bucket      Bucket
	Role        Role
	Share       decimal.Decimal
}

// Matches reports whether a single transition satisfies the pattern
// under the given stage order.
func (m Milestone) Matches(order StageOrder, t StageTransition) bool {
	if t.FromStage != m.FromStage {
		return false
	}
	switch m.Match {
	case MatchAfter:
		return order.After(t.ToStage, m.TargetStage)
	default:
		return order.AtOrAfter(t.ToStage, m.TargetStage)
	}
}

// FirstMatch scans transitions in log order and returns the first one
// matching the pattern, or nil. Log order (date, then insertion) is
// load-bearing: the baseline freezes at this transition.
func (m Milestone) FirstMatch(order StageOrder, transitions []StageTransition) *StageTransition {
	for i := range transitions {
		if m.Matches(order, transitions[i]) {
			return &transitions[i]
		}
	}
	return nil
}

// =============================================================================
// SHOP CONFIG - injected, versioned, re-resolved on each use
// =============================================================================

// Config is the shop configuration the ledger consumes: the canonical
// stage order, the allowed statuses and the milestone table.
type Config struct {
	Stages     StageOrder
	Statuses   []Status
	Milestones []Milestone
}

// MilestoneByLabel finds a milestone by its note label.
func (c Config) MilestoneByLabel(label string) (Milestone, bool) {
	for _, m := range c.Milestones {
		if strings.EqualFold(m.Label, label) {
			return m, true
		}
	}
	return Milestone{}, false
}

// RoleShare returns the total payout fraction a role earns from a
// bucket across all milestones (1.0 for body_tech on body_hours with
// the default 60/40 split). Close reconciliation uses it as the
// expected-credit multiplier under the fixed-role model.
func (c Config) RoleShare(bucket Bucket, role Role) decimal.Decimal {
	total := decimal.Zero
	for _, m := range c.Milestones {
		if m.Bucket == bucket && m.Role == role {
			total = total.Add(m.Share)
		}
	}
	return total
}

// BucketsForRole lists the distinct buckets a role draws from.
func (c Config) BucketsForRole(role Role) []Bucket {
	var out []Bucket
	seen := make(map[Bucket]bool)
	for _, m := range c.Milestones {
		if m.Role == role && !seen[m.Bucket] {
			seen[m.Bucket] = true
			out = append(out, m.Bucket)
		}
	}
	return out
}

// Roles lists the distinct responsible roles in the milestone table.
func (c Config) Roles() []Role {
	var out []Role
	seen := make(map[Role]bool)
	for _, m := range c.Milestones {
		if !seen[m.Role] {
			seen[m.Role] = true
			out = append(out, m.Role)
		}
	}
	return out
}

// Source supplies the current configuration. The engine calls Current()
// on every pass instead of holding a Config so runtime edits to the
// stage list or milestone table take effect immediately.
type Source interface {
	Current() Config
}

// StaticSource is a Source for a fixed configuration (tests, defaults).
type StaticSource struct {
	Config Config
}

func (s StaticSource) Current() Config { return s.Config }
