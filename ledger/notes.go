/*
notes.go - Credit row note construction and parsing

PURPOSE:
  The note string is part of a credit row's identity: overrides key on
  (ro, from, to, note) and audit idempotency keys on (ro, employee,
  note). These formats are therefore load-bearing. Changing them orphans
  stored overrides and re-posts audit entries.

FORMATS:
  baseline:    "Body 60% of 40.00h on Body→Paint"
  supplement:  "Supplement +10.00h (Body 60%)"
  close:       "Adjustment on close (recalc)"
  allocation:  "Paint phase completed"

  Hours always render with two decimals; the supplement sign is always
  explicit so the original delta direction survives the round trip.
*/
package ledger

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// CloseNote marks the close-time reconciliation audit entry.
const CloseNote = "Adjustment on close (recalc)"

// BaselineNote renders the note of a baseline credit row.
func BaselineNote(label string, base decimal.Decimal, fromStage, toStage string) string {
	return fmt.Sprintf("%s of %sh on %s→%s", label, base.StringFixed(2), fromStage, toStage)
}

// SupplementNote renders the note of a supplement credit row. The sign
// of delta (in bucket hours, before the share multiplier) is encoded
// explicitly.
func SupplementNote(label string, delta decimal.Decimal) string {
	sign := "+"
	if delta.IsNegative() {
		sign = "-"
	}
	return fmt.Sprintf("Supplement %s%sh (%s)", sign, delta.Abs().StringFixed(2), label)
}

// AllocationNote renders the note of an allocation phase credit.
func AllocationNote(phase string) string {
	return phase + " phase completed"
}

// IsSupplementNote reports whether the note is a supplement row note.
func IsSupplementNote(note string) bool {
	return strings.HasPrefix(note, "Supplement ")
}

// ParseSupplementNote recovers the milestone label and delta sign from
// a supplement note. The magnitude is NOT recovered here: the displayed
// hours carry it (already share-multiplied), so deletion divides those
// back out by the milestone share.
func ParseSupplementNote(note string) (label string, negative bool, ok bool) {
	rest, found := strings.CutPrefix(note, "Supplement ")
	if !found || rest == "" {
		return "", false, false
	}
	negative = rest[0] == '-'
	open := strings.LastIndexByte(rest, '(')
	end := strings.LastIndexByte(rest, ')')
	if open < 0 || end <= open+1 {
		return "", false, false
	}
	return rest[open+1 : end], negative, true
}
