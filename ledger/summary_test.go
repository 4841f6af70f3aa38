package ledger_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/production-ledger/ledger"
)

// =============================================================================
// WORKED VS CREDITED SUMMARY
// =============================================================================

func TestSummary_WorkedVsCredited(t *testing.T) {
	// GIVEN: Alice credited 24h on a body job and clocked 20h; Bob only
	//        clocked 8h with no credit
	// WHEN: the March summary runs
	// THEN: Alice's efficiency is 1.2, Bob's is zero, rows sort by name

	eng, store := newTestEngine(t)
	ctx := context.Background()

	require.NoError(t, store.PutRepairOrder(ctx, newBodyRO("RO-7001", 40, "Alice")))
	require.NoError(t, eng.RecordTransition(ctx, "RO-7001", "Body", "Paint", day(2026, 3, 10)))

	require.NoError(t, store.AppendWorked(ctx, []ledger.WorkedEntry{
		{Date: day(2026, 3, 9), Employee: "Alice", ClockIn: "07:00", ClockOut: "17:00", Hours: decimal.NewFromInt(10)},
		{Date: day(2026, 3, 10), Employee: "Alice", ClockIn: "07:00", ClockOut: "17:00", Hours: decimal.NewFromInt(10)},
		{Date: day(2026, 3, 10), Employee: "Bob", ClockIn: "08:00", ClockOut: "16:00", Hours: decimal.NewFromInt(8)},
	}))

	rows, err := eng.Summary(ctx, day(2026, 3, 1), day(2026, 3, 31))
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, "Alice", rows[0].Employee)
	assert.True(t, rows[0].WorkedHours.Equal(decimal.NewFromInt(20)))
	assert.True(t, rows[0].CreditedHours.Equal(decimal.NewFromInt(24)))
	assert.True(t, rows[0].Efficiency.Equal(decimal.NewFromFloat(1.2)), "got %s", rows[0].Efficiency)

	assert.Equal(t, "Bob", rows[1].Employee)
	assert.True(t, rows[1].WorkedHours.Equal(decimal.NewFromInt(8)))
	assert.True(t, rows[1].CreditedHours.IsZero())
	assert.True(t, rows[1].Efficiency.IsZero())
}

func TestSummary_RangeFiltersBothSides(t *testing.T) {
	// GIVEN: credit and timeclock activity entirely inside March
	// WHEN: the April summary runs
	// THEN: nothing shows up

	eng, store := newTestEngine(t)
	ctx := context.Background()

	require.NoError(t, store.PutRepairOrder(ctx, newBodyRO("RO-7002", 40, "Alice")))
	require.NoError(t, eng.RecordTransition(ctx, "RO-7002", "Body", "Paint", day(2026, 3, 10)))
	require.NoError(t, store.AppendWorked(ctx, []ledger.WorkedEntry{
		{Date: day(2026, 3, 10), Employee: "Alice", Hours: decimal.NewFromInt(10)},
	}))

	rows, err := eng.Summary(ctx, day(2026, 4, 1), day(2026, 4, 30))
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestSummary_CreditedWithoutTimeclock(t *testing.T) {
	// GIVEN: a tech credited through the ledger with no timeclock import
	// THEN: they still appear, with zero worked hours and zero efficiency

	eng, store := newTestEngine(t)
	ctx := context.Background()

	require.NoError(t, store.PutRepairOrder(ctx, newBodyRO("RO-7003", 40, "Alice")))
	require.NoError(t, eng.RecordTransition(ctx, "RO-7003", "Body", "Paint", day(2026, 3, 10)))

	rows, err := eng.Summary(ctx, day(2026, 3, 1), day(2026, 3, 31))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Alice", rows[0].Employee)
	assert.True(t, rows[0].WorkedHours.IsZero())
	assert.True(t, rows[0].CreditedHours.Equal(decimal.NewFromInt(24)))
	assert.True(t, rows[0].Efficiency.IsZero())
}

// =============================================================================
// DASHBOARD
// =============================================================================

func TestDashboard_CountsActiveROsPerStage(t *testing.T) {
	// GIVEN: two ROs in Body, one closed RO in Paint, one on-hold in QC
	// WHEN: the dashboard is built
	// THEN: every configured stage appears in order, closed ROs are
	//       excluded, empty stages read zero

	eng, store := newTestEngine(t)
	ctx := context.Background()

	put := func(ron, stage string, status ledger.Status) {
		ro := newBodyRO(ron, 10, "Alice")
		ro.Stage = stage
		ro.Status = status
		require.NoError(t, store.PutRepairOrder(ctx, ro))
	}
	put("RO-A", "Body", ledger.StatusOpen)
	put("RO-B", "Body", ledger.StatusOpen)
	put("RO-C", "Paint", ledger.StatusClosed)
	put("RO-D", "QC", ledger.StatusOnHold)

	counts, err := eng.Dashboard(ctx)
	require.NoError(t, err)
	require.Len(t, counts, 10)

	byStage := make(map[string]int, len(counts))
	for _, c := range counts {
		byStage[c.Stage] = c.Count
	}
	assert.Equal(t, 2, byStage["Body"])
	assert.Equal(t, 0, byStage["Paint"])
	assert.Equal(t, 1, byStage["QC"])
	assert.Equal(t, 0, byStage["Delivered"])

	// Order follows the configured stage list.
	assert.Equal(t, "New Entry", counts[0].Stage)
	assert.Equal(t, "Delivered", counts[9].Stage)
}
