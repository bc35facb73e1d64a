package pgstore

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/noot-app/nutrient-engine/internal/types"
)

// LoadCatalog reads nutrient definitions, categories and mappings
func (s *Store) LoadCatalog(ctx context.Context) (types.CatalogData, error) {
	return loadCatalog(s.db.WithContext(ctx))
}

func loadCatalog(db *gorm.DB) (types.CatalogData, error) {
	var data types.CatalogData

	var nutrients []nutrientRow
	if err := db.Order("code").Find(&nutrients).Error; err != nil {
		return data, fmt.Errorf("failed to query nutrients: %w", err)
	}
	for _, n := range nutrients {
		data.Nutrients = append(data.Nutrients, types.NutrientDefinition{
			Code: n.Code, Name: n.Name, Unit: n.Unit, Group: types.NutrientGroup(n.Group),
		})
	}

	var categories []categoryRow
	if err := db.Order("category_type, category_id").Find(&categories).Error; err != nil {
		return data, fmt.Errorf("failed to query categories: %w", err)
	}
	for _, c := range categories {
		data.Categories = append(data.Categories, types.Category{
			Type: types.CategoryType(c.CategoryType), ID: c.CategoryID, Code: c.Code, Name: c.Name, Unit: c.Unit,
		})
	}

	var mappings []mappingRow
	if err := db.Order("nutrient_code, category_type").Find(&mappings).Error; err != nil {
		return data, fmt.Errorf("failed to query nutrient mappings: %w", err)
	}
	for _, m := range mappings {
		data.Mappings = append(data.Mappings, types.NutrientMapping{
			NutrientCode:     m.NutrientCode,
			CategoryType:     types.CategoryType(m.CategoryType),
			CategoryID:       m.CategoryID,
			ConversionFactor: m.ConversionFactor,
		})
	}

	return data, nil
}

// Food looks up a catalog food
func (s *Store) Food(ctx context.Context, foodID int64) (*types.Food, error) {
	var row foodRow
	if err := s.db.WithContext(ctx).Take(&row, "food_id = ?", foodID).Error; err != nil {
		return nil, notFound(err, fmt.Sprintf("food %d", foodID))
	}
	return &types.Food{ID: row.FoodID, Name: row.Name}, nil
}

// Composite looks up a dish or drink with its ingredients
func (s *Store) Composite(ctx context.Context, itemType types.ItemType, id int64) (*types.Composite, error) {
	db := s.db.WithContext(ctx)

	var row compositeRow
	if err := db.Take(&row, "item_type = ? AND item_id = ?", string(itemType), id).Error; err != nil {
		return nil, notFound(err, fmt.Sprintf("%s %d", itemType, id))
	}

	var ingredients []ingredientRow
	if err := db.Where("item_type = ? AND item_id = ?", string(itemType), id).
		Order("food_id").Find(&ingredients).Error; err != nil {
		return nil, fmt.Errorf("failed to query ingredients of %s %d: %w", itemType, id, err)
	}

	c := &types.Composite{Type: itemType, ID: id, Name: row.Name}
	for _, ing := range ingredients {
		c.Ingredients = append(c.Ingredients, types.Ingredient{FoodID: ing.FoodID, WeightG: ing.WeightG})
	}
	return c, nil
}

// FoodCompositions returns the per-100g compositions of the given foods
func (s *Store) FoodCompositions(ctx context.Context, foodIDs []int64) ([]types.FoodComposition, error) {
	if len(foodIDs) == 0 {
		return nil, nil
	}

	var rows []compositionRow
	if err := s.db.WithContext(ctx).Where("food_id IN ?", foodIDs).
		Order("food_id, nutrient_code").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to query food compositions: %w", err)
	}

	out := make([]types.FoodComposition, 0, len(rows))
	for _, r := range rows {
		out = append(out, types.FoodComposition{FoodID: r.FoodID, NutrientCode: r.NutrientCode, AmountPer100g: r.AmountPer100g})
	}
	return out, nil
}

// UserProfile looks up a user's demographic profile
func (s *Store) UserProfile(ctx context.Context, userID int64) (*types.UserProfile, error) {
	var row profileRow
	if err := s.db.WithContext(ctx).Take(&row, "user_id = ?", userID).Error; err != nil {
		return nil, notFound(err, fmt.Sprintf("user profile %d", userID))
	}
	return &types.UserProfile{
		UserID:        row.UserID,
		Age:           row.Age,
		Sex:           types.Sex(row.Sex),
		WeightKg:      row.WeightKg,
		ActivityLevel: row.ActivityLevel,
		LifeStage:     types.LifeStage(row.LifeStage),
	}, nil
}

type userConditionJoin struct {
	userConditionRow
	ConditionName string `gorm:"column:condition_name"`
}

// UserConditions returns every condition assignment of a user, active or not
func (s *Store) UserConditions(ctx context.Context, userID int64) ([]types.UserHealthCondition, error) {
	var rows []userConditionJoin
	err := s.db.WithContext(ctx).
		Table("user_health_condition AS uhc").
		Select("uhc.*, COALESCE(hc.name, '') AS condition_name").
		Joins("LEFT JOIN health_condition hc ON hc.condition_id = uhc.condition_id").
		Where("uhc.user_id = ?", userID).
		Order("uhc.condition_id, uhc.user_condition_id").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query user conditions: %w", err)
	}

	out := make([]types.UserHealthCondition, 0, len(rows))
	for _, r := range rows {
		c := types.UserHealthCondition{
			ID:            r.UserConditionID,
			UserID:        r.UserID,
			ConditionID:   r.ConditionID,
			ConditionName: r.ConditionName,
			StartDate:     types.Day(r.StartDate),
			Status:        types.ConditionStatus(r.Status),
		}
		if r.EndDate != nil {
			d := types.Day(*r.EndDate)
			c.EndDate = &d
		}
		out = append(out, c)
	}
	return out, nil
}

// ConditionEffects returns the nutrient effects of the given conditions
func (s *Store) ConditionEffects(ctx context.Context, conditionIDs []int64) ([]types.ConditionNutrientEffect, error) {
	if len(conditionIDs) == 0 {
		return nil, nil
	}

	var rows []effectRow
	if err := s.db.WithContext(ctx).Where("condition_id IN ?", conditionIDs).
		Order("condition_id, effect_id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to query condition effects: %w", err)
	}

	out := make([]types.ConditionNutrientEffect, 0, len(rows))
	for _, r := range rows {
		out = append(out, types.ConditionNutrientEffect{
			ID:                r.EffectID,
			ConditionID:       r.ConditionID,
			CategoryType:      types.CategoryType(r.CategoryType),
			CategoryID:        r.CategoryID,
			EffectType:        types.EffectType(r.EffectType),
			AdjustmentPercent: r.AdjustmentPercent,
		})
	}
	return out, nil
}

// FoodRecommendations returns the recommendations linking the given
// conditions to the given foods
func (s *Store) FoodRecommendations(ctx context.Context, conditionIDs []int64, foodIDs []int64) ([]types.ConditionFoodRecommendation, error) {
	if len(conditionIDs) == 0 || len(foodIDs) == 0 {
		return nil, nil
	}

	var rows []recommendationRow
	if err := s.db.WithContext(ctx).
		Where("condition_id IN ? AND food_id IN ?", conditionIDs, foodIDs).
		Order("food_id, condition_id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to query food recommendations: %w", err)
	}

	out := make([]types.ConditionFoodRecommendation, 0, len(rows))
	for _, r := range rows {
		status, err := types.ParseStatus(r.RecommendationType)
		if err != nil {
			return nil, err
		}
		out = append(out, types.ConditionFoodRecommendation{
			ConditionID: r.ConditionID,
			FoodID:      r.FoodID,
			Type:        status,
			Notes:       r.Notes,
		})
	}
	return out, nil
}

// BaseRequirements returns every RDA row
func (s *Store) BaseRequirements(ctx context.Context) ([]types.BaseRequirement, error) {
	return baseRequirements(s.db.WithContext(ctx))
}

func baseRequirements(db *gorm.DB) ([]types.BaseRequirement, error) {
	var rows []requirementRow
	if err := db.Order("category_type, category_id, sex, life_stage, age_min").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to query base requirements: %w", err)
	}

	out := make([]types.BaseRequirement, 0, len(rows))
	for _, r := range rows {
		out = append(out, types.BaseRequirement{
			CategoryType: types.CategoryType(r.CategoryType),
			CategoryID:   r.CategoryID,
			Sex:          types.Sex(r.Sex),
			LifeStage:    types.LifeStage(r.LifeStage),
			AgeMin:       r.AgeMin,
			AgeMax:       r.AgeMax,
			Amount:       r.Amount,
			Unit:         r.Unit,
			PerKg:        r.PerKg,
		})
	}
	return out, nil
}

// DailyTotals returns the persisted totals of (user, day)
func (s *Store) DailyTotals(ctx context.Context, userID int64, day time.Time) ([]types.DailyCategoryTotal, error) {
	return dailyTotals(s.db.WithContext(ctx), userID, day)
}

func dailyTotals(db *gorm.DB, userID int64, day time.Time) ([]types.DailyCategoryTotal, error) {
	var rows []dailyTotalRow
	if err := db.Where("user_id = ? AND entry_date = ?", userID, types.Day(day)).
		Order("category_type, category_id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to query daily totals: %w", err)
	}

	out := make([]types.DailyCategoryTotal, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toType())
	}
	return out, nil
}

type contributionJoin struct {
	CategoryType string  `gorm:"column:category_type"`
	CategoryID   int64   `gorm:"column:category_id"`
	Amount       float64 `gorm:"column:amount"`
	EntryID      string  `gorm:"column:entry_id"`
	MealType     string  `gorm:"column:meal_type"`
	ItemType     string  `gorm:"column:item_type"`
	ItemID       int64   `gorm:"column:item_id"`
	WeightG      float64 `gorm:"column:weight_g"`
	ItemName     string  `gorm:"column:item_name"`
}

// EntryContributions returns what each of the day's entries added to each
// category, largest first within a category
func (s *Store) EntryContributions(ctx context.Context, userID int64, day time.Time) ([]types.EntryContribution, error) {
	var rows []contributionJoin
	err := s.db.WithContext(ctx).
		Table("meal_entry AS e").
		Select("d.category_type, d.category_id, d.amount, e.entry_id, e.meal_type, e.item_type, e.item_id, e.weight_g, "+
			"COALESCE(f.name, c.name, '') AS item_name").
		Joins("JOIN meal_entry_delta d ON d.entry_id = e.entry_id").
		Joins("LEFT JOIN food f ON e.item_type = 'food' AND f.food_id = e.item_id").
		Joins("LEFT JOIN composite c ON c.item_type = e.item_type AND c.item_id = e.item_id").
		Where("e.user_id = ? AND e.entry_date = ?", userID, types.Day(day)).
		Order("d.category_type, d.category_id, d.amount DESC, e.entry_id").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query entry contributions: %w", err)
	}

	out := make([]types.EntryContribution, 0, len(rows))
	for _, r := range rows {
		out = append(out, types.EntryContribution{
			CategoryRef: types.CategoryRef{Type: types.CategoryType(r.CategoryType), ID: r.CategoryID},
			Amount:      r.Amount,
			EntryID:     r.EntryID,
			MealType:    types.MealType(r.MealType),
			ItemType:    types.ItemType(r.ItemType),
			ItemID:      r.ItemID,
			WeightG:     r.WeightG,
			ItemName:    r.ItemName,
		})
	}
	return out, nil
}
