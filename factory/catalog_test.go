package factory

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/court-engine/courts"
	"github.com/warp/court-engine/generic"
)

func TestParseCatalog_StandardRoundTrip(t *testing.T) {
	// GIVEN: The built-in catalog rendered as JSON
	// WHEN: It is parsed back
	// THEN: Courts, prices and the expanded schedule match the Go preset

	want := courts.StandardCatalog()
	got, err := ParseCatalog(courts.StandardCatalogJSON())
	require.NoError(t, err)

	assert.Equal(t, want.Courts, got.Courts)
	assert.True(t, want.PricesFrom.Equal(got.PricesFrom))
	assert.Equal(t, want.Admin, got.Admin)
	require.Len(t, got.Demand, len(want.Demand))
	for i := range want.Demand {
		assert.Equal(t, want.Demand[i].Code, got.Demand[i].Code)
		assert.True(t, want.Demand[i].Amount.Equal(got.Demand[i].Amount))
	}

	ids := map[string]generic.DemandClassID{courts.DemandHigh: 1, courts.DemandMedium: 2, courts.DemandLow: 3}
	wantSlots, err := courts.ExpandSchedule(want, ids)
	require.NoError(t, err)
	gotSlots, err := courts.ExpandSchedule(got, ids)
	require.NoError(t, err)
	assert.Equal(t, wantSlots, gotSlots)
}

func TestParseCatalog_Defaults(t *testing.T) {
	c, err := ParseCatalog(`{
		"courts": [{"id": 3}],
		"demand_classes": [{"code": "LOW", "amount": "7.5"}],
		"rules": [{"days": ["Mon", "sunday"], "demand": "low"}]
	}`)
	require.NoError(t, err)

	assert.Equal(t, "Court 3", c.Courts[0].Name)
	assert.Equal(t, "low", c.Demand[0].Code)
	assert.True(t, decimal.RequireFromString("7.50").Equal(c.Demand[0].Amount))
	assert.Equal(t, []int{courts.Monday, courts.Sunday}, c.Rules[0].Days)
	assert.Equal(t, courts.StandardPricesFrom, c.PricesFrom)
	assert.Equal(t, generic.StandardSlotTimes, c.Slots())
	assert.Nil(t, c.Admin)
}

func TestParseCatalog_Errors(t *testing.T) {
	tests := []struct {
		name string
		json string
	}{
		{"malformed", `{"courts": [`},
		{"no courts", `{"courts": [], "demand_classes": [], "rules": []}`},
		{"unknown day", `{"courts": [{"id": 1}], "demand_classes": [{"code": "low", "amount": "1"}], "rules": [{"days": ["funday"], "demand": "low"}]}`},
		{"unknown demand", `{"courts": [{"id": 1}], "demand_classes": [{"code": "low", "amount": "1"}], "rules": [{"days": ["mon"], "demand": "peak"}]}`},
		{"negative price", `{"courts": [{"id": 1}], "demand_classes": [{"code": "low", "amount": "-1"}], "rules": []}`},
		{"bad prices_from", `{"courts": [{"id": 1}], "demand_classes": [], "rules": [], "prices_from": "01/01/2025"}`},
		{"inverted range", `{"courts": [{"id": 1}], "demand_classes": [{"code": "low", "amount": "1"}], "rules": [{"days": ["mon"], "from": "17:00", "until": "08:00", "demand": "low"}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseCatalog(tt.json)
			assert.Error(t, err)
		})
	}
}

func TestLoadCatalog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.json")
	require.NoError(t, os.WriteFile(path, []byte(courts.StandardCatalogJSON()), 0o600))

	c, err := LoadCatalog(path)
	require.NoError(t, err)
	assert.Len(t, c.Courts, 8)

	_, err = LoadCatalog(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}
