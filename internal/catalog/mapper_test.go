package catalog

import (
	"testing"

	"github.com/noot-app/nutrient-engine/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapper_Map(t *testing.T) {
	c, err := New(testData())
	require.NoError(t, err)
	m := c.Mapper()

	tests := []struct {
		name     string
		code     string
		amount   float64
		expected []Contribution
	}{
		{"single mapping", "VITC", 60, []Contribution{{Ref: vitaminC, Amount: 60}}},
		{"conversion factor applied", "CARTB", 120, []Contribution{{Ref: vitaminA, Amount: 10}}},
		{"unmapped code emits nothing", "WATER", 80, nil},
		{"unknown code emits nothing", "NOPE", 1, nil},
		{"negative amount counts as zero", "VITC", -5, []Contribution{{Ref: vitaminC, Amount: 0}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, m.Map(tt.code, tt.amount))
		})
	}
}

func TestMapper_MapIsDeterministic(t *testing.T) {
	d := testData()
	d.Mappings = append(d.Mappings, types.NutrientMapping{
		NutrientCode: "FIBTG", CategoryType: types.CategoryVitamin, CategoryID: 3, ConversionFactor: 0.25,
	})
	c, err := New(d)
	require.NoError(t, err)
	m := c.Mapper()

	first := m.Map("FIBTG", 8)
	for i := 0; i < 20; i++ {
		assert.Equal(t, first, m.Map("FIBTG", 8))
	}

	var sum, factors float64
	for _, contribution := range first {
		sum += contribution.Amount
	}
	for _, mp := range c.MappingsFor("FIBTG") {
		factors += mp.ConversionFactor
	}
	assert.InDelta(t, 8*factors, sum, 1e-12)
}

func TestMapper_MapAll(t *testing.T) {
	c, err := New(testData())
	require.NoError(t, err)

	comps := []types.FoodComposition{
		{FoodID: 1, NutrientCode: "VITA_RAE", AmountPer100g: 50},
		{FoodID: 1, NutrientCode: "CARTB", AmountPer100g: 600},
		{FoodID: 1, NutrientCode: "VITC", AmountPer100g: 60},
		{FoodID: 1, NutrientCode: "WATER", AmountPer100g: 80},
		{FoodID: 1, NutrientCode: "FIBTG", AmountPer100g: 0},
	}

	deltas := c.Mapper().MapAll(comps, 200)
	require.Len(t, deltas, 2)
	assert.Equal(t, vitaminA, deltas[0].CategoryRef)
	assert.InDelta(t, (50+50)*2, deltas[0].Amount, 1e-9)
	assert.Equal(t, vitaminC, deltas[1].CategoryRef)
	assert.InDelta(t, 120, deltas[1].Amount, 1e-9)

	assert.Empty(t, c.Mapper().MapAll(nil, 100), "missing composition contributes nothing")
}

func TestNegate(t *testing.T) {
	in := []types.Delta{{CategoryRef: vitaminC, Amount: 3}}
	out := Negate(in)
	assert.Equal(t, -3.0, out[0].Amount)
	assert.Equal(t, 3.0, in[0].Amount, "input untouched")
}
