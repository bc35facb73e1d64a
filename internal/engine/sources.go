package engine

import (
	"context"
	"sort"
	"time"

	"github.com/noot-app/nutrient-engine/internal/types"
)

// NutrientSource is one entry's share of a category's daily total
type NutrientSource struct {
	EntryID  string         `json:"entry_id"`
	ItemType types.ItemType `json:"item_type"`
	ItemID   int64          `json:"item_id"`
	ItemName string         `json:"item_name"`
	MealType types.MealType `json:"meal_type,omitempty"`
	WeightG  float64        `json:"weight_g"`
	Amount   float64        `json:"contributed_amount"`
}

// CategorySources breaks a category's consumed amount down by entry.
// Total is the sum of the recorded deltas, which matches the persisted
// total unless the totals drifted.
type CategorySources struct {
	CategoryType types.CategoryType `json:"category_type"`
	CategoryID   int64              `json:"category_id"`
	Code         string             `json:"code,omitempty"`
	Name         string             `json:"name,omitempty"`
	Unit         string             `json:"unit,omitempty"`
	Total        float64            `json:"total"`
	Sources      []NutrientSource   `json:"sources"`
}

// Ref returns the category
func (c CategorySources) Ref() types.CategoryRef {
	return types.CategoryRef{Type: c.CategoryType, ID: c.CategoryID}
}

// GetNutrientSources lists, per category, which of the day's entries
// contributed and how much. Categories are ordered like GetDailyIntake and
// sources by amount, largest first.
func (e *Engine) GetNutrientSources(ctx context.Context, userID int64, day time.Time) ([]CategorySources, error) {
	day = e.dayOrToday(day)
	if err := e.validateUser(ctx, userID); err != nil {
		return nil, err
	}

	contributions, err := e.store.EntryContributions(ctx, userID, day)
	if err != nil {
		return nil, err
	}

	cat := e.catalogs.Load()
	byRef := make(map[types.CategoryRef]*CategorySources)
	for _, c := range contributions {
		if c.Amount == 0 {
			continue
		}
		cs, ok := byRef[c.CategoryRef]
		if !ok {
			cs = &CategorySources{CategoryType: c.Type, CategoryID: c.ID}
			if info, ok := cat.Category(c.CategoryRef); ok {
				cs.Code = info.Code
				cs.Name = info.Name
				cs.Unit = info.Unit
			}
			byRef[c.CategoryRef] = cs
		}
		cs.Total += c.Amount
		cs.Sources = append(cs.Sources, NutrientSource{
			EntryID:  c.EntryID,
			ItemType: c.ItemType,
			ItemID:   c.ItemID,
			ItemName: c.ItemName,
			MealType: c.MealType,
			WeightG:  c.WeightG,
			Amount:   c.Amount,
		})
	}

	out := make([]CategorySources, 0, len(byRef))
	for _, cs := range byRef {
		sort.SliceStable(cs.Sources, func(i, j int) bool {
			a, b := cs.Sources[i], cs.Sources[j]
			if a.Amount != b.Amount {
				return a.Amount > b.Amount
			}
			return a.EntryID < b.EntryID
		})
		out = append(out, *cs)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ref().Less(out[j].Ref()) })
	return out, nil
}
