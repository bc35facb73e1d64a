package types

import (
	"fmt"
	"math"
	"sort"
	"time"
)

// DateLayout is the wire format of calendar days
const DateLayout = "2006-01-02"

// Day truncates t to its calendar day, expressed as midnight UTC
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a YYYY-MM-DD calendar day
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q (expected YYYY-MM-DD): %w", s, err)
	}
	return t, nil
}

// FormatDate renders a calendar day as YYYY-MM-DD
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// ItemType is the kind of catalog item a meal entry refers to
type ItemType string

const (
	ItemFood  ItemType = "food"
	ItemDish  ItemType = "dish"
	ItemDrink ItemType = "drink"
)

// Valid reports whether t is a known item type
func (t ItemType) Valid() bool {
	return t == ItemFood || t == ItemDish || t == ItemDrink
}

// Food is a catalog food
type Food struct {
	ID   int64  `json:"food_id"`
	Name string `json:"name"`
}

// Composite is a dish or drink made of foods
type Composite struct {
	Type        ItemType     `json:"item_type"`
	ID          int64        `json:"id"`
	Name        string       `json:"name"`
	Ingredients []Ingredient `json:"ingredients"`
}

// Ingredient is one food in a dish or drink
type Ingredient struct {
	FoodID  int64   `json:"food_id"`
	WeightG float64 `json:"weight_g"`
}

// MergeIngredients folds repeated foods into one ingredient with the summed
// weight, keeping first-seen order. Blending is unchanged by the merge.
func MergeIngredients(ingredients []Ingredient) []Ingredient {
	index := make(map[int64]int, len(ingredients))
	out := make([]Ingredient, 0, len(ingredients))
	for _, ing := range ingredients {
		if i, ok := index[ing.FoodID]; ok {
			out[i].WeightG += ing.WeightG
			continue
		}
		index[ing.FoodID] = len(out)
		out = append(out, ing)
	}
	return out
}

// MealType tags the meal an entry belongs to. Empty means unspecified.
type MealType string

const (
	MealBreakfast MealType = "breakfast"
	MealLunch     MealType = "lunch"
	MealDinner    MealType = "dinner"
	MealSnack     MealType = "snack"
)

// MealTypes lists the accepted meal types in day order
var MealTypes = []MealType{MealBreakfast, MealLunch, MealDinner, MealSnack}

// Valid reports whether t is empty or a known meal type
func (t MealType) Valid() bool {
	if t == "" {
		return true
	}
	for _, mt := range MealTypes {
		if mt == t {
			return true
		}
	}
	return false
}

// MealEntry is the atomic unit of consumption
type MealEntry struct {
	ID        string    `json:"entry_id"`
	UserID    int64     `json:"user_id"`
	Date      time.Time `json:"date"`
	MealType  MealType  `json:"meal_type,omitempty"`
	ItemType  ItemType  `json:"item_type"`
	ItemID    int64     `json:"item_id"`
	WeightG   float64   `json:"weight_g"`
	CreatedAt time.Time `json:"created_at"`
}

// EntryContribution is the recorded delta one entry made to one category,
// with enough of the entry to say where the amount came from
type EntryContribution struct {
	CategoryRef
	Amount   float64  `json:"amount"`
	EntryID  string   `json:"entry_id"`
	MealType MealType `json:"meal_type,omitempty"`
	ItemType ItemType `json:"item_type"`
	ItemID   int64    `json:"item_id"`
	ItemName string   `json:"item_name"`
	WeightG  float64  `json:"weight_g"`
}

// Delta is the signed contribution of one entry to one category total
type Delta struct {
	CategoryRef
	Amount float64 `json:"amount"`
}

// DailyCategoryTotal is the running consumed amount for a user, day and category
type DailyCategoryTotal struct {
	UserID         int64        `json:"user_id"`
	Date           time.Time    `json:"date"`
	CategoryType   CategoryType `json:"category_type"`
	CategoryID     int64        `json:"category_id"`
	ConsumedAmount float64      `json:"consumed_amount"`
	UpdatedAt      time.Time    `json:"updated_at"`
}

// Ref returns the category's address
func (t DailyCategoryTotal) Ref() CategoryRef {
	return CategoryRef{Type: t.CategoryType, ID: t.CategoryID}
}

// MergeDeltas sums deltas per category, drops zero and NaN sums and orders
// the result by category
func MergeDeltas(deltas []Delta) []Delta {
	sums := make(map[CategoryRef]float64, len(deltas))
	for _, d := range deltas {
		sums[d.CategoryRef] += d.Amount
	}

	out := make([]Delta, 0, len(sums))
	for ref, amount := range sums {
		if amount == 0 || math.IsNaN(amount) {
			continue
		}
		out = append(out, Delta{CategoryRef: ref, Amount: amount})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CategoryRef.Less(out[j].CategoryRef) })
	return out
}
