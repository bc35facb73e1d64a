package composition

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/noot-app/nutrient-engine/internal/types"
)

// Source is the reference data the resolver reads
type Source interface {
	Food(ctx context.Context, foodID int64) (*types.Food, error)
	Composite(ctx context.Context, itemType types.ItemType, id int64) (*types.Composite, error)
	FoodCompositions(ctx context.Context, foodIDs []int64) ([]types.FoodComposition, error)
}

// Item is a resolved catalog item with its per-100 g composition.
// For dishes and drinks the composition is the weighted blend of the
// ingredients and FoodID on each row is zero.
type Item struct {
	Type        types.ItemType
	ID          int64
	Name        string
	Ingredients []types.Ingredient
	Composition []types.FoodComposition
}

// FoodIDs returns the foods the item is made of
func (it *Item) FoodIDs() []int64 {
	if it.Type == types.ItemFood {
		return []int64{it.ID}
	}
	ids := make([]int64, 0, len(it.Ingredients))
	seen := make(map[int64]bool, len(it.Ingredients))
	for _, ing := range it.Ingredients {
		if !seen[ing.FoodID] {
			seen[ing.FoodID] = true
			ids = append(ids, ing.FoodID)
		}
	}
	return ids
}

// Resolver turns foods, dishes and drinks into per-100 g compositions
type Resolver struct {
	src Source
	log *slog.Logger
}

// NewResolver creates a resolver over src
func NewResolver(src Source, logger *slog.Logger) *Resolver {
	return &Resolver{src: src, log: logger}
}

// ForItem resolves an item. Unknown items return the source's not-found
// error; missing composition rows are not an error.
func (r *Resolver) ForItem(ctx context.Context, itemType types.ItemType, id int64) (*Item, error) {
	switch itemType {
	case types.ItemFood:
		return r.food(ctx, id)
	case types.ItemDish, types.ItemDrink:
		return r.composite(ctx, itemType, id)
	}
	return nil, fmt.Errorf("unknown item type %q", itemType)
}

func (r *Resolver) food(ctx context.Context, id int64) (*Item, error) {
	f, err := r.src.Food(ctx, id)
	if err != nil {
		return nil, err
	}

	comps, err := r.src.FoodCompositions(ctx, []int64{id})
	if err != nil {
		return nil, err
	}
	if len(comps) == 0 {
		r.log.Debug("Food has no composition rows", "food_id", id)
	}

	return &Item{Type: types.ItemFood, ID: id, Name: f.Name, Composition: comps}, nil
}

func (r *Resolver) composite(ctx context.Context, itemType types.ItemType, id int64) (*Item, error) {
	c, err := r.src.Composite(ctx, itemType, id)
	if err != nil {
		return nil, err
	}

	item := &Item{Type: itemType, ID: id, Name: c.Name, Ingredients: c.Ingredients}
	comps, err := r.src.FoodCompositions(ctx, item.FoodIDs())
	if err != nil {
		return nil, err
	}
	item.Composition = Blend(c.Ingredients, comps)
	return item, nil
}

// Blend computes the per-100 g composition of a mixture:
// Σ(amount_per_100g × weight_g / 100) × 100 / Σ weight_g per nutrient code.
// Ingredients with non-positive weight are ignored; a mixture with no
// weight has an empty composition.
func Blend(ingredients []types.Ingredient, comps []types.FoodComposition) []types.FoodComposition {
	byFood := make(map[int64][]types.FoodComposition)
	for _, fc := range comps {
		byFood[fc.FoodID] = append(byFood[fc.FoodID], fc)
	}

	var totalWeight float64
	sums := make(map[string]float64)
	for _, ing := range ingredients {
		if !(ing.WeightG > 0) {
			continue
		}
		totalWeight += ing.WeightG
		for _, fc := range byFood[ing.FoodID] {
			sums[types.NormalizeCode(fc.NutrientCode)] += fc.AmountPer100g * ing.WeightG / 100
		}
	}
	if totalWeight == 0 {
		return nil
	}

	out := make([]types.FoodComposition, 0, len(sums))
	for code, amount := range sums {
		out = append(out, types.FoodComposition{NutrientCode: code, AmountPer100g: amount * 100 / totalWeight})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].NutrientCode < out[j].NutrientCode })
	return out
}
