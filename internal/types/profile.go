package types

import "time"

// Sex used for RDA stratification
type Sex string

const (
	SexMale   Sex = "male"
	SexFemale Sex = "female"
	SexAny    Sex = "any"
)

// LifeStage selects pregnancy/lactation specific RDA rows
type LifeStage string

const (
	LifeStageNone      LifeStage = ""
	LifeStagePregnancy LifeStage = "pregnancy"
	LifeStageLactation LifeStage = "lactation"
)

// UserProfile holds the demographic inputs of the requirement calculator
type UserProfile struct {
	UserID        int64     `json:"user_id"`
	Age           int       `json:"age"`
	Sex           Sex       `json:"sex"`
	WeightKg      float64   `json:"weight_kg"`
	ActivityLevel string    `json:"activity_level,omitempty"`
	LifeStage     LifeStage `json:"life_stage,omitempty"`
}

// HealthCondition is a reference condition (e.g. "Gout")
type HealthCondition struct {
	ID   int64  `json:"condition_id"`
	Name string `json:"name"`
}

// ConditionStatus is the lifecycle status of a condition assignment
type ConditionStatus string

const (
	ConditionActive   ConditionStatus = "active"
	ConditionInactive ConditionStatus = "inactive"
)

// UserHealthCondition assigns a condition to a user
type UserHealthCondition struct {
	ID            int64           `json:"user_condition_id"`
	UserID        int64           `json:"user_id"`
	ConditionID   int64           `json:"condition_id"`
	ConditionName string          `json:"condition_name,omitempty"`
	StartDate     time.Time       `json:"start_date"`
	EndDate       *time.Time      `json:"end_date,omitempty"`
	Status        ConditionStatus `json:"status"`
}

// InEffectOn reports whether the condition applies on the given calendar day:
// status is active and there is no end date or the end date is not before day.
func (c UserHealthCondition) InEffectOn(day time.Time) bool {
	if c.Status != ConditionActive {
		return false
	}
	if c.EndDate == nil {
		return true
	}
	return !Day(*c.EndDate).Before(Day(day))
}

// EffectType is the direction of a condition nutrient effect
type EffectType string

const (
	EffectIncrease EffectType = "increase"
	EffectDecrease EffectType = "decrease"
)

// ConditionNutrientEffect adjusts a category's target by a percentage
type ConditionNutrientEffect struct {
	ID                int64        `json:"effect_id"`
	ConditionID       int64        `json:"condition_id"`
	CategoryType      CategoryType `json:"category_type"`
	CategoryID        int64        `json:"category_id"`
	EffectType        EffectType   `json:"effect_type"`
	AdjustmentPercent float64      `json:"adjustment_percent"`
}

// Ref returns the adjusted category's address
func (e ConditionNutrientEffect) Ref() CategoryRef {
	return CategoryRef{Type: e.CategoryType, ID: e.CategoryID}
}

// Factor returns the multiplier the effect applies to a running target
func (e ConditionNutrientEffect) Factor() float64 {
	if e.EffectType == EffectDecrease {
		return 1 - e.AdjustmentPercent/100
	}
	return 1 + e.AdjustmentPercent/100
}

// ConditionFoodRecommendation drives the recommendation filter
type ConditionFoodRecommendation struct {
	ConditionID int64  `json:"condition_id"`
	FoodID      int64  `json:"food_id"`
	Type        Status `json:"type"`
	Notes       string `json:"notes,omitempty"`
}

// BaseRequirement is a population RDA row
type BaseRequirement struct {
	CategoryType CategoryType `json:"category_type"`
	CategoryID   int64        `json:"category_id"`
	Sex          Sex          `json:"sex"`
	LifeStage    LifeStage    `json:"life_stage,omitempty"`
	AgeMin       int          `json:"age_min"`
	AgeMax       int          `json:"age_max"`
	Amount       float64      `json:"amount"`
	Unit         string       `json:"unit"`
	PerKg        bool         `json:"per_kg"`
}

// Ref returns the category's address
func (r BaseRequirement) Ref() CategoryRef {
	return CategoryRef{Type: r.CategoryType, ID: r.CategoryID}
}

// CoversAge reports whether age falls in the row's inclusive range
func (r BaseRequirement) CoversAge(age int) bool {
	return age >= r.AgeMin && age <= r.AgeMax
}
