package catalog

import "github.com/noot-app/nutrient-engine/internal/types"

// Contribution is the amount a raw nutrient contributes to one category
type Contribution struct {
	Ref    types.CategoryRef
	Amount float64
}

// Mapper translates raw nutrient amounts into category contributions.
// It is a value type with no per-call state.
type Mapper struct {
	catalog *Catalog
}

// Map emits raw_amount × conversion_factor for every mapping of code.
// Codes without a mapping emit nothing. Negative or NaN amounts count as zero.
func (m Mapper) Map(code string, amount float64) []Contribution {
	mappings := m.catalog.mappings[types.NormalizeCode(code)]
	if len(mappings) == 0 {
		return nil
	}
	if !(amount > 0) {
		amount = 0
	}

	out := make([]Contribution, 0, len(mappings))
	for _, mp := range mappings {
		out = append(out, Contribution{
			Ref:    mp.Ref(),
			Amount: amount * mp.ConversionFactor,
		})
	}
	return out
}

// MapAll maps a composition (per 100 g) eaten at weightG grams and sums the
// contributions per category. The result is ordered by category and excludes
// zero contributions.
func (m Mapper) MapAll(compositions []types.FoodComposition, weightG float64) []types.Delta {
	scale := weightG / 100
	sums := make(map[types.CategoryRef]float64)
	for _, fc := range compositions {
		for _, c := range m.Map(fc.NutrientCode, fc.AmountPer100g) {
			sums[c.Ref] += c.Amount * scale
		}
	}

	out := make([]types.Delta, 0, len(sums))
	for ref, amount := range sums {
		out = append(out, types.Delta{CategoryRef: ref, Amount: amount})
	}
	return types.MergeDeltas(out)
}

// Negate returns deltas with every amount sign-flipped
func Negate(deltas []types.Delta) []types.Delta {
	out := make([]types.Delta, len(deltas))
	for i, d := range deltas {
		out[i] = types.Delta{CategoryRef: d.CategoryRef, Amount: -d.Amount}
	}
	return out
}
