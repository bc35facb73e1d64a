package pgstore

import (
	"time"

	"github.com/noot-app/nutrient-engine/internal/types"
)

type nutrientRow struct {
	Code  string `gorm:"column:code;primaryKey"`
	Name  string `gorm:"column:name;not null"`
	Unit  string `gorm:"column:unit;not null"`
	Group string `gorm:"column:nutrient_group;not null"`
}

func (nutrientRow) TableName() string { return "nutrient" }

type categoryRow struct {
	CategoryType string `gorm:"column:category_type;primaryKey"`
	CategoryID   int64  `gorm:"column:category_id;primaryKey;autoIncrement:false"`
	Code         string `gorm:"column:code;not null"`
	Name         string `gorm:"column:name;not null"`
	Unit         string `gorm:"column:unit;not null"`
}

func (categoryRow) TableName() string { return "category" }

type mappingRow struct {
	NutrientCode     string  `gorm:"column:nutrient_code;primaryKey"`
	CategoryType     string  `gorm:"column:category_type;primaryKey"`
	CategoryID       int64   `gorm:"column:category_id;not null"`
	ConversionFactor float64 `gorm:"column:conversion_factor;not null;check:conversion_factor > 0"`
}

func (mappingRow) TableName() string { return "nutrient_mapping" }

type requirementRow struct {
	CategoryType string  `gorm:"column:category_type;primaryKey"`
	CategoryID   int64   `gorm:"column:category_id;primaryKey;autoIncrement:false"`
	Sex          string  `gorm:"column:sex;primaryKey"`
	LifeStage    string  `gorm:"column:life_stage;primaryKey"`
	AgeMin       int     `gorm:"column:age_min;primaryKey;autoIncrement:false"`
	AgeMax       int     `gorm:"column:age_max;not null"`
	Amount       float64 `gorm:"column:amount;not null"`
	Unit         string  `gorm:"column:unit;not null"`
	PerKg        bool    `gorm:"column:per_kg;not null;default:false"`
}

func (requirementRow) TableName() string { return "base_requirement" }

type conditionRow struct {
	ConditionID int64  `gorm:"column:condition_id;primaryKey;autoIncrement:false"`
	Name        string `gorm:"column:name;not null"`
}

func (conditionRow) TableName() string { return "health_condition" }

type effectRow struct {
	EffectID          int64   `gorm:"column:effect_id;primaryKey;autoIncrement:false"`
	ConditionID       int64   `gorm:"column:condition_id;not null;index"`
	CategoryType      string  `gorm:"column:category_type;not null"`
	CategoryID        int64   `gorm:"column:category_id;not null"`
	EffectType        string  `gorm:"column:effect_type;not null"`
	AdjustmentPercent float64 `gorm:"column:adjustment_percent;not null"`
}

func (effectRow) TableName() string { return "condition_nutrient_effect" }

type recommendationRow struct {
	ConditionID        int64  `gorm:"column:condition_id;primaryKey;autoIncrement:false"`
	FoodID             int64  `gorm:"column:food_id;primaryKey;autoIncrement:false"`
	RecommendationType string `gorm:"column:recommendation_type;not null"`
	Notes              string `gorm:"column:notes;not null;default:''"`
}

func (recommendationRow) TableName() string { return "condition_food_recommendation" }

type foodRow struct {
	FoodID int64  `gorm:"column:food_id;primaryKey;autoIncrement:false"`
	Name   string `gorm:"column:name;not null"`
}

func (foodRow) TableName() string { return "food" }

type compositionRow struct {
	FoodID        int64   `gorm:"column:food_id;primaryKey;autoIncrement:false"`
	NutrientCode  string  `gorm:"column:nutrient_code;primaryKey"`
	AmountPer100g float64 `gorm:"column:amount_per_100g;not null"`
}

func (compositionRow) TableName() string { return "food_composition" }

type compositeRow struct {
	ItemType string `gorm:"column:item_type;primaryKey"`
	ItemID   int64  `gorm:"column:item_id;primaryKey;autoIncrement:false"`
	Name     string `gorm:"column:name;not null"`
}

func (compositeRow) TableName() string { return "composite" }

type ingredientRow struct {
	ItemType string  `gorm:"column:item_type;primaryKey"`
	ItemID   int64   `gorm:"column:item_id;primaryKey;autoIncrement:false"`
	FoodID   int64   `gorm:"column:food_id;primaryKey;autoIncrement:false"`
	WeightG  float64 `gorm:"column:weight_g;not null"`
}

func (ingredientRow) TableName() string { return "composite_ingredient" }

type profileRow struct {
	UserID        int64   `gorm:"column:user_id;primaryKey;autoIncrement:false"`
	Age           int     `gorm:"column:age;not null"`
	Sex           string  `gorm:"column:sex;not null"`
	WeightKg      float64 `gorm:"column:weight_kg;not null"`
	ActivityLevel string  `gorm:"column:activity_level;not null;default:''"`
	LifeStage     string  `gorm:"column:life_stage;not null;default:''"`
}

func (profileRow) TableName() string { return "user_profile" }

type userConditionRow struct {
	UserConditionID int64      `gorm:"column:user_condition_id;primaryKey;autoIncrement:false"`
	UserID          int64      `gorm:"column:user_id;not null;index"`
	ConditionID     int64      `gorm:"column:condition_id;not null"`
	StartDate       time.Time  `gorm:"column:start_date;type:date;not null"`
	EndDate         *time.Time `gorm:"column:end_date;type:date"`
	Status          string     `gorm:"column:status;not null"`
}

func (userConditionRow) TableName() string { return "user_health_condition" }

type mealEntryRow struct {
	EntryID   string    `gorm:"column:entry_id;primaryKey"`
	UserID    int64     `gorm:"column:user_id;not null;index:idx_meal_entry_user_date,priority:1"`
	EntryDate time.Time `gorm:"column:entry_date;type:date;not null;index:idx_meal_entry_user_date,priority:2"`
	MealType  string    `gorm:"column:meal_type;not null;default:''"`
	ItemType  string    `gorm:"column:item_type;not null"`
	ItemID    int64     `gorm:"column:item_id;not null"`
	WeightG   float64   `gorm:"column:weight_g;not null;check:weight_g > 0"`
	CreatedAt time.Time `gorm:"column:created_at;not null"`
}

func (mealEntryRow) TableName() string { return "meal_entry" }

type entryDeltaRow struct {
	EntryID      string  `gorm:"column:entry_id;primaryKey"`
	CategoryType string  `gorm:"column:category_type;primaryKey"`
	CategoryID   int64   `gorm:"column:category_id;primaryKey;autoIncrement:false"`
	Amount       float64 `gorm:"column:amount;not null"`
}

func (entryDeltaRow) TableName() string { return "meal_entry_delta" }

type dailyTotalRow struct {
	UserID         int64     `gorm:"column:user_id;primaryKey;autoIncrement:false"`
	EntryDate      time.Time `gorm:"column:entry_date;type:date;primaryKey"`
	CategoryType   string    `gorm:"column:category_type;primaryKey"`
	CategoryID     int64     `gorm:"column:category_id;primaryKey;autoIncrement:false"`
	ConsumedAmount float64   `gorm:"column:consumed_amount;not null;check:consumed_amount >= 0"`
	UpdatedAt      time.Time `gorm:"column:updated_at;not null"`
}

func (dailyTotalRow) TableName() string { return "daily_category_total" }

func (r dailyTotalRow) toType() types.DailyCategoryTotal {
	return types.DailyCategoryTotal{
		UserID:         r.UserID,
		Date:           types.Day(r.EntryDate),
		CategoryType:   types.CategoryType(r.CategoryType),
		CategoryID:     r.CategoryID,
		ConsumedAmount: r.ConsumedAmount,
		UpdatedAt:      r.UpdatedAt,
	}
}

func (r mealEntryRow) toType() types.MealEntry {
	return types.MealEntry{
		ID:        r.EntryID,
		UserID:    r.UserID,
		Date:      types.Day(r.EntryDate),
		MealType:  types.MealType(r.MealType),
		ItemType:  types.ItemType(r.ItemType),
		ItemID:    r.ItemID,
		WeightG:   r.WeightG,
		CreatedAt: r.CreatedAt,
	}
}

func fromMealEntry(e types.MealEntry) mealEntryRow {
	return mealEntryRow{
		EntryID:   e.ID,
		UserID:    e.UserID,
		EntryDate: types.Day(e.Date),
		MealType:  string(e.MealType),
		ItemType:  string(e.ItemType),
		ItemID:    e.ItemID,
		WeightG:   e.WeightG,
		CreatedAt: e.CreatedAt.UTC(),
	}
}

// allModels lists every table in migration order
func allModels() []any {
	return []any{
		&nutrientRow{},
		&categoryRow{},
		&mappingRow{},
		&requirementRow{},
		&conditionRow{},
		&effectRow{},
		&recommendationRow{},
		&foodRow{},
		&compositionRow{},
		&compositeRow{},
		&ingredientRow{},
		&profileRow{},
		&userConditionRow{},
		&mealEntryRow{},
		&entryDeltaRow{},
		&dailyTotalRow{},
	}
}
