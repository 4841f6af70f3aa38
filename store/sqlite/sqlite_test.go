package sqlite_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/production-ledger/ledger"
	"github.com/warp/production-ledger/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func seedRO(t *testing.T, store *sqlite.Store, ron string) {
	t.Helper()
	require.NoError(t, store.PutRepairOrder(context.Background(), &ledger.RepairOrder{
		RONumber:   ledger.RONumber(ron),
		Date:       day(2026, 3, 1),
		TotalHours: decimal.NewFromInt(40),
		Buckets:    map[ledger.Bucket]decimal.Decimal{"body_hours": decimal.NewFromInt(40)},
		Assignments: map[ledger.Role]string{
			"body_tech": "Alice",
		},
		Stage: "Body",
	}))
}

// =============================================================================
// REPAIR ORDERS
// =============================================================================

func TestRepairOrder_RoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedRO(t, store, "RO-1001")

	ro, err := store.GetRepairOrder(ctx, "RO-1001")
	require.NoError(t, err)
	assert.Equal(t, ledger.RONumber("RO-1001"), ro.RONumber)
	assert.Equal(t, day(2026, 3, 1), ro.Date)
	assert.True(t, ro.TotalHours.Equal(decimal.NewFromInt(40)))
	assert.True(t, ro.BucketHours("body_hours").Equal(decimal.NewFromInt(40)))
	assert.Equal(t, "Alice", ro.Assigned("body_tech"))
	assert.Equal(t, "Body", ro.Stage)
	// Status defaults to open when the caller leaves it empty.
	assert.Equal(t, ledger.StatusOpen, ro.Status)
}

func TestRepairOrder_NotFound(t *testing.T) {
	store := newTestStore(t)
	_, err := store.GetRepairOrder(context.Background(), "RO-GONE")
	assert.True(t, errors.Is(err, ledger.ErrRONotFound))
	assert.True(t, ledger.IsNotFound(err))
}

func TestRepairOrder_UpsertPreservesWrittenBackHours(t *testing.T) {
	// GIVEN: hours_taken written back by the ledger
	// WHEN: the collaborator re-saves the RO (fresh struct, zero hours)
	// THEN: the written-back values survive the upsert

	store := newTestStore(t)
	ctx := context.Background()
	seedRO(t, store, "RO-1001")

	require.NoError(t, store.UpdateROHours(ctx, "RO-1001", decimal.NewFromInt(24), decimal.NewFromInt(16)))
	seedRO(t, store, "RO-1001")

	ro, err := store.GetRepairOrder(ctx, "RO-1001")
	require.NoError(t, err)
	assert.True(t, ro.HoursTaken.Equal(decimal.NewFromInt(24)))
	assert.True(t, ro.HoursRemaining.Equal(decimal.NewFromInt(16)))
}

func TestRepairOrder_DeleteCascades(t *testing.T) {
	// GIVEN: an RO with rows in every child table
	// WHEN: the RO is deleted
	// THEN: transitions, baseline, adjustments, overrides, audit entries
	//       and allocations all go with it

	store := newTestStore(t)
	ctx := context.Background()
	seedRO(t, store, "RO-1001")

	_, err := store.AppendTransition(ctx, ledger.StageTransition{
		RONumber: "RO-1001", FromStage: "Body", ToStage: "Paint", Date: day(2026, 3, 10),
	})
	require.NoError(t, err)
	_, err = store.EnsureBaseline(ctx, ledger.CreditBaseline{
		RONumber: "RO-1001", Milestone: "body_60", BaseHours: decimal.NewFromInt(40),
	})
	require.NoError(t, err)
	require.NoError(t, store.AppendAdjustment(ctx, ledger.CreditAdjustment{
		RONumber: "RO-1001", Milestone: "body_60", FromStage: "Body", ToStage: "Paint",
		Date: day(2026, 3, 12), Tech: "Alice",
		DeltaHours: decimal.NewFromInt(10), Share: decimal.NewFromFloat(0.6),
	}))
	require.NoError(t, store.UpsertOverride(ctx, ledger.CreditOverride{
		Key: ledger.OverrideKey{RONumber: "RO-1001", FromStage: "Body", ToStage: "Paint", Note: "n"},
	}))
	require.NoError(t, store.InsertAuditEntry(ctx, ledger.CreditAuditEntry{
		ID: "a1", RONumber: "RO-1001", Date: day(2026, 3, 10),
		Employee: "Alice", Hours: decimal.NewFromInt(24), Note: "n",
	}))
	require.NoError(t, store.ReplaceAllocations(ctx, "RO-1001", []ledger.Allocation{
		{RONumber: "RO-1001", Employee: "Carol", Role: "body_tech", Phase: "Body", Percent: decimal.NewFromInt(50)},
	}))

	require.NoError(t, store.DeleteRepairOrder(ctx, "RO-1001"))

	_, err = store.GetRepairOrder(ctx, "RO-1001")
	assert.True(t, ledger.IsNotFound(err))

	transitions, err := store.ListTransitions(ctx, "RO-1001")
	require.NoError(t, err)
	assert.Empty(t, transitions)

	b, err := store.GetBaseline(ctx, "RO-1001", "body_60")
	require.NoError(t, err)
	assert.Nil(t, b)

	adjustments, err := store.ListAdjustmentsForRO(ctx, "RO-1001")
	require.NoError(t, err)
	assert.Empty(t, adjustments)

	overrides, err := store.ListOverrides(ctx, "RO-1001")
	require.NoError(t, err)
	assert.Empty(t, overrides)

	entries, err := store.ListAuditEntries(ctx, "RO-1001")
	require.NoError(t, err)
	assert.Empty(t, entries)

	allocs, err := store.ListAllocations(ctx, "RO-1001")
	require.NoError(t, err)
	assert.Empty(t, allocs)
}

func TestRepairOrder_DeleteMissing(t *testing.T) {
	store := newTestStore(t)
	err := store.DeleteRepairOrder(context.Background(), "RO-GONE")
	assert.True(t, errors.Is(err, ledger.ErrRONotFound))
}

// =============================================================================
// STAGE TRANSITIONS
// =============================================================================

func TestTransitions_OrderByDateThenInsertion(t *testing.T) {
	// GIVEN: transitions inserted out of date order, plus a same-day pair
	// WHEN: listed
	// THEN: date ascending, insertion id breaking the tie

	store := newTestStore(t)
	ctx := context.Background()
	seedRO(t, store, "RO-1001")

	add := func(from, to string, d time.Time) int64 {
		id, err := store.AppendTransition(ctx, ledger.StageTransition{
			RONumber: "RO-1001", FromStage: from, ToStage: to, Date: d,
		})
		require.NoError(t, err)
		return id
	}
	idLate := add("Paint", "Reassembly", day(2026, 3, 20))
	idEarly := add("Body", "Paint", day(2026, 3, 10))
	idSameDayA := add("Reassembly", "Detail", day(2026, 3, 20))

	got, err := store.ListTransitions(ctx, "RO-1001")
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, idEarly, got[0].ID)
	assert.Equal(t, idLate, got[1].ID)
	assert.Equal(t, idSameDayA, got[2].ID)
	assert.Equal(t, "Paint", got[0].ToStage)
}

// =============================================================================
// BASELINES
// =============================================================================

func TestBaseline_WriteOnce(t *testing.T) {
	// GIVEN: a frozen 40h baseline
	// WHEN: a second ensure arrives with 50h
	// THEN: the first value stays and the call reports created=false

	store := newTestStore(t)
	ctx := context.Background()
	seedRO(t, store, "RO-1001")

	created, err := store.EnsureBaseline(ctx, ledger.CreditBaseline{
		RONumber: "RO-1001", Milestone: "body_60", BaseHours: decimal.NewFromInt(40),
	})
	require.NoError(t, err)
	assert.True(t, created)

	created, err = store.EnsureBaseline(ctx, ledger.CreditBaseline{
		RONumber: "RO-1001", Milestone: "body_60", BaseHours: decimal.NewFromInt(50),
	})
	require.NoError(t, err)
	assert.False(t, created)

	b, err := store.GetBaseline(ctx, "RO-1001", "body_60")
	require.NoError(t, err)
	require.NotNil(t, b)
	assert.True(t, b.BaseHours.Equal(decimal.NewFromInt(40)))
}

func TestBaseline_AbsentIsNilNotError(t *testing.T) {
	store := newTestStore(t)
	seedRO(t, store, "RO-1001")

	b, err := store.GetBaseline(context.Background(), "RO-1001", "body_60")
	require.NoError(t, err)
	assert.Nil(t, b)
}

// =============================================================================
// OVERRIDES
// =============================================================================

func TestOverride_UpsertAndNilFields(t *testing.T) {
	// GIVEN: an override carrying only an hours correction
	// WHEN: stored, re-read, then upserted again with a tech
	// THEN: nil fields stay nil and the upsert replaces the whole value

	store := newTestStore(t)
	ctx := context.Background()
	seedRO(t, store, "RO-1001")

	key := ledger.OverrideKey{RONumber: "RO-1001", FromStage: "Body", ToStage: "Paint", Note: "n"}
	hours := decimal.NewFromInt(30)
	require.NoError(t, store.UpsertOverride(ctx, ledger.CreditOverride{Key: key, Hours: &hours}))

	o, err := store.GetOverride(ctx, key)
	require.NoError(t, err)
	require.NotNil(t, o)
	assert.Nil(t, o.Date)
	assert.Nil(t, o.Tech)
	require.NotNil(t, o.Hours)
	assert.True(t, o.Hours.Equal(decimal.NewFromInt(30)))

	tech := "Bob"
	require.NoError(t, store.UpsertOverride(ctx, ledger.CreditOverride{Key: key, Tech: &tech}))
	o, err = store.GetOverride(ctx, key)
	require.NoError(t, err)
	require.NotNil(t, o.Tech)
	assert.Equal(t, "Bob", *o.Tech)
	// The second upsert carried no hours, so the column was cleared.
	assert.Nil(t, o.Hours)

	require.NoError(t, store.DeleteOverride(ctx, key))
	o, err = store.GetOverride(ctx, key)
	require.NoError(t, err)
	assert.Nil(t, o)
}

// =============================================================================
// AUDIT LOG
// =============================================================================

func TestAudit_ExistsAndDeleteByTuple(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedRO(t, store, "RO-1001")

	entry := ledger.CreditAuditEntry{
		ID: "a1", RONumber: "RO-1001", Date: day(2026, 3, 10),
		Employee: "Alice", Hours: decimal.NewFromInt(24), Note: "n1",
	}
	require.NoError(t, store.InsertAuditEntry(ctx, entry))
	require.NoError(t, store.InsertAuditEntry(ctx, ledger.CreditAuditEntry{
		ID: "a2", RONumber: "RO-1001", Date: day(2026, 3, 11),
		Employee: "Alice", Hours: decimal.NewFromInt(6), Note: "n2",
	}))

	exists, err := store.AuditEntryExists(ctx, "RO-1001", "Alice", "n1")
	require.NoError(t, err)
	assert.True(t, exists)
	exists, err = store.AuditEntryExists(ctx, "RO-1001", "Bob", "n1")
	require.NoError(t, err)
	assert.False(t, exists)

	sums, err := store.SumAuditHours(ctx, "RO-1001")
	require.NoError(t, err)
	assert.True(t, sums["Alice"].Equal(decimal.NewFromInt(30)))

	require.NoError(t, store.DeleteAuditEntry(ctx, "RO-1001", "Alice", "n1"))
	exists, err = store.AuditEntryExists(ctx, "RO-1001", "Alice", "n1")
	require.NoError(t, err)
	assert.False(t, exists)
	exists, err = store.AuditEntryExists(ctx, "RO-1001", "Alice", "n2")
	require.NoError(t, err)
	assert.True(t, exists)
}

// =============================================================================
// TIMECLOCK
// =============================================================================

func TestWorked_SumsWithinRange(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.AppendWorked(ctx, []ledger.WorkedEntry{
		{Date: day(2026, 3, 10), Employee: "Alice", Hours: decimal.NewFromInt(8)},
		{Date: day(2026, 3, 11), Employee: "Alice", Hours: decimal.NewFromInt(9)},
		{Date: day(2026, 4, 1), Employee: "Alice", Hours: decimal.NewFromInt(8)},
		{Date: day(2026, 3, 10), Employee: "Bob", Hours: decimal.NewFromFloat(7.5)},
	}))

	sums, err := store.SumWorkedHours(ctx, day(2026, 3, 1), day(2026, 3, 31))
	require.NoError(t, err)
	assert.True(t, sums["Alice"].Equal(decimal.NewFromInt(17)))
	assert.True(t, sums["Bob"].Equal(decimal.NewFromFloat(7.5)))
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

func TestWithTx_RollsBackOnError(t *testing.T) {
	// GIVEN: a transaction that writes an RO and then fails
	// WHEN: WithTx returns the error
	// THEN: the write is gone

	store := newTestStore(t)
	ctx := context.Background()

	boom := errors.New("boom")
	err := store.WithTx(ctx, func(s ledger.Store) error {
		if err := s.PutRepairOrder(ctx, &ledger.RepairOrder{
			RONumber: "RO-TX", Date: day(2026, 3, 1), Stage: "Body",
		}); err != nil {
			return err
		}
		return boom
	})
	assert.True(t, errors.Is(err, boom))

	_, err = store.GetRepairOrder(ctx, "RO-TX")
	assert.True(t, ledger.IsNotFound(err))
}

func TestWithTx_ReadsSeeUncommittedWrites(t *testing.T) {
	// The store handed to fn routes reads through the transaction, so a
	// recompute pass observes its own writes before commit.

	store := newTestStore(t)
	ctx := context.Background()

	err := store.WithTx(ctx, func(s ledger.Store) error {
		if err := s.PutRepairOrder(ctx, &ledger.RepairOrder{
			RONumber: "RO-TX", Date: day(2026, 3, 1), Stage: "Body",
		}); err != nil {
			return err
		}
		ro, err := s.GetRepairOrder(ctx, "RO-TX")
		if err != nil {
			return err
		}
		assert.Equal(t, "Body", ro.Stage)
		return nil
	})
	require.NoError(t, err)

	ro, err := store.GetRepairOrder(ctx, "RO-TX")
	require.NoError(t, err)
	assert.Equal(t, "Body", ro.Stage)
}
