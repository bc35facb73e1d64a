package duckstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/noot-app/nutrient-engine/internal/store"
	"github.com/noot-app/nutrient-engine/internal/types"
)

// LoadCatalog reads nutrient definitions, categories and mappings
func (s *Store) LoadCatalog(ctx context.Context) (types.CatalogData, error) {
	return loadCatalog(ctx, s.db)
}

func loadCatalog(ctx context.Context, q queryer) (types.CatalogData, error) {
	var data types.CatalogData

	rows, err := q.QueryContext(ctx, `SELECT code, name, unit, nutrient_group FROM nutrient ORDER BY code`)
	if err != nil {
		return data, fmt.Errorf("failed to query nutrients: %w", err)
	}
	for rows.Next() {
		var d types.NutrientDefinition
		if err := rows.Scan(&d.Code, &d.Name, &d.Unit, &d.Group); err != nil {
			rows.Close()
			return data, fmt.Errorf("failed to scan nutrient: %w", err)
		}
		data.Nutrients = append(data.Nutrients, d)
	}
	if err := closeRows(rows); err != nil {
		return data, err
	}

	rows, err = q.QueryContext(ctx, `SELECT category_type, category_id, code, name, unit FROM category ORDER BY category_type, category_id`)
	if err != nil {
		return data, fmt.Errorf("failed to query categories: %w", err)
	}
	for rows.Next() {
		var c types.Category
		if err := rows.Scan(&c.Type, &c.ID, &c.Code, &c.Name, &c.Unit); err != nil {
			rows.Close()
			return data, fmt.Errorf("failed to scan category: %w", err)
		}
		data.Categories = append(data.Categories, c)
	}
	if err := closeRows(rows); err != nil {
		return data, err
	}

	rows, err = q.QueryContext(ctx, `SELECT nutrient_code, category_type, category_id, conversion_factor FROM nutrient_mapping ORDER BY nutrient_code, category_type`)
	if err != nil {
		return data, fmt.Errorf("failed to query nutrient mappings: %w", err)
	}
	for rows.Next() {
		var m types.NutrientMapping
		if err := rows.Scan(&m.NutrientCode, &m.CategoryType, &m.CategoryID, &m.ConversionFactor); err != nil {
			rows.Close()
			return data, fmt.Errorf("failed to scan nutrient mapping: %w", err)
		}
		data.Mappings = append(data.Mappings, m)
	}
	if err := closeRows(rows); err != nil {
		return data, err
	}

	return data, nil
}

// Food looks up a catalog food
func (s *Store) Food(ctx context.Context, foodID int64) (*types.Food, error) {
	f := types.Food{ID: foodID}
	err := s.db.QueryRowContext(ctx, `SELECT name FROM food WHERE food_id = ?`, foodID).Scan(&f.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("food %d: %w", foodID, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query food %d: %w", foodID, err)
	}
	return &f, nil
}

// Composite looks up a dish or drink with its ingredients
func (s *Store) Composite(ctx context.Context, itemType types.ItemType, id int64) (*types.Composite, error) {
	c := types.Composite{Type: itemType, ID: id}
	err := s.db.QueryRowContext(ctx,
		`SELECT name FROM composite WHERE item_type = ? AND item_id = ?`, string(itemType), id).Scan(&c.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s %d: %w", itemType, id, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query %s %d: %w", itemType, id, err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT food_id, weight_g
		FROM composite_ingredient
		WHERE item_type = ? AND item_id = ?
		ORDER BY food_id`, string(itemType), id)
	if err != nil {
		return nil, fmt.Errorf("failed to query ingredients of %s %d: %w", itemType, id, err)
	}
	for rows.Next() {
		var ing types.Ingredient
		if err := rows.Scan(&ing.FoodID, &ing.WeightG); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan ingredient: %w", err)
		}
		c.Ingredients = append(c.Ingredients, ing)
	}
	if err := closeRows(rows); err != nil {
		return nil, err
	}
	return &c, nil
}

// FoodCompositions returns the per-100g compositions of the given foods
func (s *Store) FoodCompositions(ctx context.Context, foodIDs []int64) ([]types.FoodComposition, error) {
	if len(foodIDs) == 0 {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT food_id, nutrient_code, amount_per_100g
		FROM food_composition
		WHERE food_id IN (%s)
		ORDER BY food_id, nutrient_code`, placeholders(len(foodIDs))), int64Args(foodIDs)...)
	if err != nil {
		return nil, fmt.Errorf("failed to query food compositions: %w", err)
	}

	var out []types.FoodComposition
	for rows.Next() {
		var fc types.FoodComposition
		if err := rows.Scan(&fc.FoodID, &fc.NutrientCode, &fc.AmountPer100g); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan food composition: %w", err)
		}
		out = append(out, fc)
	}
	return out, closeRows(rows)
}

// UserProfile looks up a user's demographic profile
func (s *Store) UserProfile(ctx context.Context, userID int64) (*types.UserProfile, error) {
	p := types.UserProfile{UserID: userID}
	err := s.db.QueryRowContext(ctx, `
		SELECT age, sex, weight_kg, activity_level, life_stage
		FROM user_profile WHERE user_id = ?`, userID).
		Scan(&p.Age, &p.Sex, &p.WeightKg, &p.ActivityLevel, &p.LifeStage)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user profile %d: %w", userID, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query user profile %d: %w", userID, err)
	}
	return &p, nil
}

// UserConditions returns every condition assignment of a user, active or not
func (s *Store) UserConditions(ctx context.Context, userID int64) ([]types.UserHealthCondition, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT uhc.user_condition_id, uhc.condition_id, COALESCE(hc.name, ''),
		       uhc.start_date, uhc.end_date, uhc.status
		FROM user_health_condition uhc
		LEFT JOIN health_condition hc ON hc.condition_id = uhc.condition_id
		WHERE uhc.user_id = ?
		ORDER BY uhc.condition_id, uhc.user_condition_id`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query user conditions: %w", err)
	}

	var out []types.UserHealthCondition
	for rows.Next() {
		c := types.UserHealthCondition{UserID: userID}
		var end sql.NullTime
		if err := rows.Scan(&c.ID, &c.ConditionID, &c.ConditionName, &c.StartDate, &end, &c.Status); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan user condition: %w", err)
		}
		c.StartDate = types.Day(c.StartDate)
		if end.Valid {
			d := types.Day(end.Time)
			c.EndDate = &d
		}
		out = append(out, c)
	}
	return out, closeRows(rows)
}

// ConditionEffects returns the nutrient effects of the given conditions
func (s *Store) ConditionEffects(ctx context.Context, conditionIDs []int64) ([]types.ConditionNutrientEffect, error) {
	if len(conditionIDs) == 0 {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT effect_id, condition_id, category_type, category_id, effect_type, adjustment_percent
		FROM condition_nutrient_effect
		WHERE condition_id IN (%s)
		ORDER BY condition_id, effect_id`, placeholders(len(conditionIDs))), int64Args(conditionIDs)...)
	if err != nil {
		return nil, fmt.Errorf("failed to query condition effects: %w", err)
	}

	var out []types.ConditionNutrientEffect
	for rows.Next() {
		var e types.ConditionNutrientEffect
		if err := rows.Scan(&e.ID, &e.ConditionID, &e.CategoryType, &e.CategoryID, &e.EffectType, &e.AdjustmentPercent); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan condition effect: %w", err)
		}
		out = append(out, e)
	}
	return out, closeRows(rows)
}

// FoodRecommendations returns the recommendations linking the given
// conditions to the given foods
func (s *Store) FoodRecommendations(ctx context.Context, conditionIDs []int64, foodIDs []int64) ([]types.ConditionFoodRecommendation, error) {
	if len(conditionIDs) == 0 || len(foodIDs) == 0 {
		return nil, nil
	}

	args := append(int64Args(conditionIDs), int64Args(foodIDs)...)
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT condition_id, food_id, recommendation_type, notes
		FROM condition_food_recommendation
		WHERE condition_id IN (%s) AND food_id IN (%s)
		ORDER BY food_id, condition_id`,
		placeholders(len(conditionIDs)), placeholders(len(foodIDs))), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query food recommendations: %w", err)
	}

	var out []types.ConditionFoodRecommendation
	for rows.Next() {
		var r types.ConditionFoodRecommendation
		var kind string
		if err := rows.Scan(&r.ConditionID, &r.FoodID, &kind, &r.Notes); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan food recommendation: %w", err)
		}
		if r.Type, err = types.ParseStatus(kind); err != nil {
			rows.Close()
			return nil, err
		}
		out = append(out, r)
	}
	return out, closeRows(rows)
}

// BaseRequirements returns every RDA row
func (s *Store) BaseRequirements(ctx context.Context) ([]types.BaseRequirement, error) {
	return baseRequirements(ctx, s.db)
}

func baseRequirements(ctx context.Context, q queryer) ([]types.BaseRequirement, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT category_type, category_id, sex, life_stage, age_min, age_max, amount, unit, per_kg
		FROM base_requirement
		ORDER BY category_type, category_id, sex, life_stage, age_min`)
	if err != nil {
		return nil, fmt.Errorf("failed to query base requirements: %w", err)
	}

	var out []types.BaseRequirement
	for rows.Next() {
		var r types.BaseRequirement
		if err := rows.Scan(&r.CategoryType, &r.CategoryID, &r.Sex, &r.LifeStage, &r.AgeMin, &r.AgeMax, &r.Amount, &r.Unit, &r.PerKg); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan base requirement: %w", err)
		}
		out = append(out, r)
	}
	return out, closeRows(rows)
}

// DailyTotals returns the persisted totals of (user, day)
func (s *Store) DailyTotals(ctx context.Context, userID int64, day time.Time) ([]types.DailyCategoryTotal, error) {
	return dailyTotals(ctx, s.db, userID, day)
}

func dailyTotals(ctx context.Context, q queryer, userID int64, day time.Time) ([]types.DailyCategoryTotal, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT category_type, category_id, consumed_amount, updated_at
		FROM daily_category_total
		WHERE user_id = ? AND entry_date = CAST(? AS DATE)
		ORDER BY category_type, category_id`, userID, dateArg(day))
	if err != nil {
		return nil, fmt.Errorf("failed to query daily totals: %w", err)
	}

	var out []types.DailyCategoryTotal
	for rows.Next() {
		t := types.DailyCategoryTotal{UserID: userID, Date: types.Day(day)}
		if err := rows.Scan(&t.CategoryType, &t.CategoryID, &t.ConsumedAmount, &t.UpdatedAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan daily total: %w", err)
		}
		out = append(out, t)
	}
	return out, closeRows(rows)
}

// EntryContributions returns what each of the day's entries added to each
// category, largest first within a category
func (s *Store) EntryContributions(ctx context.Context, userID int64, day time.Time) ([]types.EntryContribution, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT d.category_type, d.category_id, d.amount,
		       e.entry_id, COALESCE(e.meal_type, ''), e.item_type, e.item_id, e.weight_g,
		       COALESCE(f.name, c.name, '')
		FROM meal_entry e
		JOIN meal_entry_delta d ON d.entry_id = e.entry_id
		LEFT JOIN food f ON e.item_type = 'food' AND f.food_id = e.item_id
		LEFT JOIN composite c ON c.item_type = e.item_type AND c.item_id = e.item_id
		WHERE e.user_id = ? AND e.entry_date = CAST(? AS DATE)
		ORDER BY d.category_type, d.category_id, d.amount DESC, e.entry_id`, userID, dateArg(day))
	if err != nil {
		return nil, fmt.Errorf("failed to query entry contributions: %w", err)
	}

	var out []types.EntryContribution
	for rows.Next() {
		var c types.EntryContribution
		if err := rows.Scan(&c.Type, &c.ID, &c.Amount,
			&c.EntryID, &c.MealType, &c.ItemType, &c.ItemID, &c.WeightG, &c.ItemName); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan entry contribution: %w", err)
		}
		out = append(out, c)
	}
	return out, closeRows(rows)
}

func closeRows(rows *sql.Rows) error {
	if err := rows.Err(); err != nil {
		rows.Close()
		return fmt.Errorf("row iteration failed: %w", err)
	}
	return rows.Close()
}
