package types

import (
	"fmt"
	"strings"
)

// NutrientGroup is the semantic group a raw nutrient code belongs to
type NutrientGroup string

const (
	GroupMacronutrient NutrientGroup = "macronutrient"
	GroupVitamin       NutrientGroup = "vitamin"
	GroupMineral       NutrientGroup = "mineral"
	GroupFiber         NutrientGroup = "fiber"
	GroupFattyAcid     NutrientGroup = "fatty-acid"
	GroupAminoAcid     NutrientGroup = "amino-acid"
	GroupOther         NutrientGroup = "other"
)

// Valid reports whether g is one of the known nutrient groups
func (g NutrientGroup) Valid() bool {
	switch g {
	case GroupMacronutrient, GroupVitamin, GroupMineral, GroupFiber,
		GroupFattyAcid, GroupAminoAcid, GroupOther:
		return true
	}
	return false
}

// CategoryType identifies the kind of bucket a user-facing target is defined against
type CategoryType string

const (
	CategoryVitamin   CategoryType = "vitamin"
	CategoryMineral   CategoryType = "mineral"
	CategoryFiber     CategoryType = "fiber"
	CategoryFattyAcid CategoryType = "fatty_acid"
	CategoryAminoAcid CategoryType = "amino_acid"
)

// CategoryTypes lists every category type in display order
var CategoryTypes = []CategoryType{
	CategoryVitamin,
	CategoryMineral,
	CategoryFiber,
	CategoryFattyAcid,
	CategoryAminoAcid,
}

// Valid reports whether t is one of the known category types
func (t CategoryType) Valid() bool {
	return t.rank() >= 0
}

func (t CategoryType) rank() int {
	for i, ct := range CategoryTypes {
		if ct == t {
			return i
		}
	}
	return -1
}

// CategoryRef addresses a single category entity
type CategoryRef struct {
	Type CategoryType `json:"category_type"`
	ID   int64        `json:"category_id"`
}

func (r CategoryRef) String() string {
	return fmt.Sprintf("%s:%d", r.Type, r.ID)
}

// Less orders refs by category type display order, then id
func (r CategoryRef) Less(o CategoryRef) bool {
	if r.Type != o.Type {
		return r.Type.rank() < o.Type.rank()
	}
	return r.ID < o.ID
}

// NutrientDefinition is immutable reference data for a raw nutrient code
type NutrientDefinition struct {
	Code  string        `json:"code"`
	Name  string        `json:"name"`
	Unit  string        `json:"unit"`
	Group NutrientGroup `json:"group"`
}

// Category is a named, coded semantic bucket (e.g. "Vitamin C", "Soluble Fiber")
type Category struct {
	Type CategoryType `json:"category_type"`
	ID   int64        `json:"category_id"`
	Code string       `json:"code"`
	Name string       `json:"name"`
	Unit string       `json:"unit"`
}

// Ref returns the category's address
func (c Category) Ref() CategoryRef {
	return CategoryRef{Type: c.Type, ID: c.ID}
}

// NutrientMapping maps a raw nutrient code onto a category with a conversion factor
type NutrientMapping struct {
	NutrientCode     string       `json:"nutrient_code"`
	CategoryType     CategoryType `json:"category_type"`
	CategoryID       int64        `json:"category_id"`
	ConversionFactor float64      `json:"conversion_factor"`
}

// Ref returns the target category's address
func (m NutrientMapping) Ref() CategoryRef {
	return CategoryRef{Type: m.CategoryType, ID: m.CategoryID}
}

// FoodComposition is a per-100g nutrient amount attached to a food
type FoodComposition struct {
	FoodID        int64   `json:"food_id"`
	NutrientCode  string  `json:"nutrient_code"`
	AmountPer100g float64 `json:"amount_per_100g"`
}

// NormalizeCode canonicalizes a nutrient code for lookups
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
