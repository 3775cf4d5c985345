package generic_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/court-engine/generic"
)

// =============================================================================
// RESOLVE AT - Pure resolution over a version list
// =============================================================================

func TestResolveAt_Boundaries(t *testing.T) {
	split := at("2026-01-16T00:00:00Z")
	versions := []generic.PriceVersion{
		{ID: 1, Amount: decimal.NewFromInt(20), Start: at("2026-01-01T00:00:00Z"), End: &split},
		{ID: 2, Amount: decimal.NewFromInt(30), Start: split},
	}

	tests := []struct {
		name   string
		at     time.Time
		wantID generic.PriceVersionID
		found  bool
	}{
		{"before history", at("2025-12-31T23:59:59Z"), 0, false},
		{"start is inclusive", at("2026-01-01T00:00:00Z"), 1, true},
		{"inside old version", at("2026-01-15T20:00:00Z"), 1, true},
		{"end is exclusive", split, 2, true},
		{"open-ended current", at("2030-06-01T10:00:00Z"), 2, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, ok := generic.ResolveAt(versions, tt.at)
			assert.Equal(t, tt.found, ok)
			assert.Equal(t, tt.wantID, v.ID)
		})
	}
}

func TestResolveAt_OverlapPicksLatestStart(t *testing.T) {
	// Overlap violates the partition invariant; resolution still returns one
	versions := []generic.PriceVersion{
		{ID: 1, Start: at("2026-01-01T00:00:00Z")},
		{ID: 2, Start: at("2026-01-10T00:00:00Z")},
	}
	v, ok := generic.ResolveAt(versions, at("2026-01-12T00:00:00Z"))
	require.True(t, ok)
	assert.Equal(t, generic.PriceVersionID(2), v.ID)
}

func TestResolveAt_IgnoresActiveFlag(t *testing.T) {
	end := at("2026-02-01T00:00:00Z")
	versions := []generic.PriceVersion{
		{ID: 7, Start: at("2026-01-01T00:00:00Z"), End: &end, Active: false},
	}
	v, ok := generic.ResolveAt(versions, at("2026-01-20T00:00:00Z"))
	require.True(t, ok)
	assert.Equal(t, generic.PriceVersionID(7), v.ID)
}

// =============================================================================
// PRICE LEDGER - Supersession
// =============================================================================

func TestPriceLedger_Update_OldPriceBeforeNewPriceAfter(t *testing.T) {
	// GIVEN: medium costs 20.00 since 2025-01-01
	// WHEN: 30.00 is scheduled from 2026-01-16
	// THEN: 2026-01-15T20:00 still resolves 20.00, 2026-01-16T20:00 resolves 30.00

	e := newTestEngine(t)
	ctx := context.Background()

	newID, err := e.prices.Update(ctx, e.medium, decimal.NewFromInt(30), at("2026-01-16T00:00:00Z"))
	require.NoError(t, err)

	before, err := e.prices.Resolve(ctx, e.medium, at("2026-01-15T20:00:00Z"))
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(20).Equal(before.Amount), "got %s", before.Amount)

	after, err := e.prices.Resolve(ctx, e.medium, at("2026-01-16T20:00:00Z"))
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(30).Equal(after.Amount), "got %s", after.Amount)
	assert.Equal(t, newID, after.ID)
}

func TestPriceLedger_Update_HistoryStaysPartitioned(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	_, err := e.prices.Update(ctx, e.high, decimal.NewFromInt(35), at("2026-02-01T00:00:00Z"))
	require.NoError(t, err)
	_, err = e.prices.Update(ctx, e.high, decimal.RequireFromString("32.50"), at("2026-03-01T00:00:00Z"))
	require.NoError(t, err)

	history, err := e.prices.History(ctx, e.high)
	require.NoError(t, err)
	require.Len(t, history, 3)

	// Each ended version ends exactly where the next starts; only the last is open
	for i := 0; i < len(history)-1; i++ {
		require.NotNil(t, history[i].End)
		assert.True(t, history[i].End.Equal(history[i+1].Start))
		assert.False(t, history[i].Active)
	}
	last := history[len(history)-1]
	assert.Nil(t, last.End)
	assert.True(t, last.Active)
	assert.Equal(t, "high demand", last.Description)
}

func TestPriceLedger_Update_RejectsEmptyInterval(t *testing.T) {
	e := newTestEngine(t)

	_, err := e.prices.Update(context.Background(), e.low, decimal.NewFromInt(12), priceEpoch)
	assert.ErrorIs(t, err, generic.ErrInvalidEffectiveFrom)

	_, err = e.prices.Update(context.Background(), e.low, decimal.NewFromInt(12), priceEpoch.Add(-time.Hour))
	assert.ErrorIs(t, err, generic.ErrInvalidEffectiveFrom)
}

func TestPriceLedger_Update_SubSecondAfterCurrentIsEmptyInterval(t *testing.T) {
	// GIVEN: medium moved to 30 from 2026-01-16 00:00:00
	// WHEN: Another update takes effect 500ms later
	// THEN: It is rejected, since whole seconds are stored, and no zero-length version exists

	e := newTestEngine(t)
	ctx := context.Background()
	from := at("2026-01-16T00:00:00Z")

	_, err := e.prices.Update(ctx, e.medium, decimal.NewFromInt(30), from)
	require.NoError(t, err)
	_, err = e.prices.Update(ctx, e.medium, decimal.NewFromInt(40), from.Add(500*time.Millisecond))
	assert.ErrorIs(t, err, generic.ErrInvalidEffectiveFrom)

	history, err := e.prices.History(ctx, e.medium)
	require.NoError(t, err)
	require.Len(t, history, 2)
	for _, v := range history {
		if v.End != nil {
			assert.True(t, v.End.After(v.Start), "version %d is empty", v.ID)
		}
	}
	current := history[len(history)-1]
	assert.True(t, current.Amount.Equal(decimal.NewFromInt(30)))
	assert.Nil(t, current.End)

	// A full second later the update goes through, starting on the second
	id, err := e.prices.Update(ctx, e.medium, decimal.NewFromInt(40), from.Add(1500*time.Millisecond))
	require.NoError(t, err)
	v, err := e.prices.Resolve(ctx, e.medium, from.Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, id, v.ID)
}

func TestPriceLedger_Update_RejectsNegativeAmount(t *testing.T) {
	e := newTestEngine(t)

	_, err := e.prices.Update(context.Background(), e.low, decimal.NewFromInt(-1), at("2026-02-01T00:00:00Z"))
	assert.ErrorIs(t, err, generic.ErrInvalidAmount)
}

func TestPriceLedger_Update_NoCurrentVersion(t *testing.T) {
	// GIVEN: A demand class that never had a price
	// THEN: Update fails as not found and writes nothing

	e := newTestEngine(t)
	ctx := context.Background()

	orphan, err := e.store.SaveDemandClass(ctx, generic.DemandClass{Code: "orphan", Active: true})
	require.NoError(t, err)

	_, err = e.prices.Update(ctx, orphan, decimal.NewFromInt(5), at("2026-02-01T00:00:00Z"))
	assert.ErrorIs(t, err, generic.ErrPriceNotFound)

	history, err := e.prices.History(ctx, orphan)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestPriceLedger_Resolve_NotFound(t *testing.T) {
	e := newTestEngine(t)

	_, err := e.prices.Resolve(context.Background(), e.low, priceEpoch.Add(-time.Second))
	assert.ErrorIs(t, err, generic.ErrPriceNotFound)
}
