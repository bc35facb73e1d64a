package duckstore

import (
	"context"
	"fmt"
	"time"

	"github.com/noot-app/nutrient-engine/internal/catalog"
	"github.com/noot-app/nutrient-engine/internal/requirement"
	"github.com/noot-app/nutrient-engine/internal/store"
	"github.com/noot-app/nutrient-engine/internal/types"
)

// ImportReference upserts a reference bundle in one transaction. Composite
// ingredient lists are replaced wholesale, with repeated foods merged. The
// merged catalog and RDA table are validated before commit; an invalid
// result rolls the import back with store.ErrInvalidReference.
func (s *Store) ImportReference(ctx context.Context, data *types.ReferenceData) error {
	start := time.Now()
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin import: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	exec := func(what, query string, args ...any) error {
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("failed to import %s: %w", what, err)
		}
		return nil
	}

	for _, n := range data.Nutrients {
		group := n.Group
		if group == "" {
			group = types.GroupOther
		}
		if err := exec("nutrient", `INSERT OR REPLACE INTO nutrient (code, name, unit, nutrient_group) VALUES (?, ?, ?, ?)`,
			types.NormalizeCode(n.Code), n.Name, n.Unit, string(group)); err != nil {
			return err
		}
	}
	for _, c := range data.Categories {
		if err := exec("category", `INSERT OR REPLACE INTO category (category_type, category_id, code, name, unit) VALUES (?, ?, ?, ?, ?)`,
			string(c.Type), c.ID, c.Code, c.Name, c.Unit); err != nil {
			return err
		}
	}
	for _, m := range data.Mappings {
		if err := exec("nutrient mapping", `INSERT OR REPLACE INTO nutrient_mapping (nutrient_code, category_type, category_id, conversion_factor) VALUES (?, ?, ?, ?)`,
			types.NormalizeCode(m.NutrientCode), string(m.CategoryType), m.CategoryID, m.ConversionFactor); err != nil {
			return err
		}
	}
	for _, r := range data.Requirements {
		if err := exec("base requirement", `INSERT OR REPLACE INTO base_requirement
			(category_type, category_id, sex, life_stage, age_min, age_max, amount, unit, per_kg)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			string(r.CategoryType), r.CategoryID, string(r.Sex), string(r.LifeStage), r.AgeMin, r.AgeMax, r.Amount, r.Unit, r.PerKg); err != nil {
			return err
		}
	}
	for _, c := range data.Conditions {
		if err := exec("health condition", `INSERT OR REPLACE INTO health_condition (condition_id, name) VALUES (?, ?)`,
			c.ID, c.Name); err != nil {
			return err
		}
	}
	for _, e := range data.Effects {
		if err := exec("condition effect", `INSERT OR REPLACE INTO condition_nutrient_effect
			(effect_id, condition_id, category_type, category_id, effect_type, adjustment_percent)
			VALUES (?, ?, ?, ?, ?, ?)`,
			e.ID, e.ConditionID, string(e.CategoryType), e.CategoryID, string(e.EffectType), e.AdjustmentPercent); err != nil {
			return err
		}
	}
	for _, r := range data.Recommendations {
		if err := exec("food recommendation", `INSERT OR REPLACE INTO condition_food_recommendation
			(condition_id, food_id, recommendation_type, notes) VALUES (?, ?, ?, ?)`,
			r.ConditionID, r.FoodID, r.Type.String(), r.Notes); err != nil {
			return err
		}
	}
	for _, f := range data.Foods {
		if err := exec("food", `INSERT OR REPLACE INTO food (food_id, name) VALUES (?, ?)`, f.ID, f.Name); err != nil {
			return err
		}
	}
	for _, fc := range data.Compositions {
		if err := exec("food composition", `INSERT OR REPLACE INTO food_composition (food_id, nutrient_code, amount_per_100g) VALUES (?, ?, ?)`,
			fc.FoodID, types.NormalizeCode(fc.NutrientCode), fc.AmountPer100g); err != nil {
			return err
		}
	}
	for _, c := range data.Composites {
		if err := exec("composite", `INSERT OR REPLACE INTO composite (item_type, item_id, name) VALUES (?, ?, ?)`,
			string(c.Type), c.ID, c.Name); err != nil {
			return err
		}
		if err := exec("composite ingredients", `DELETE FROM composite_ingredient WHERE item_type = ? AND item_id = ?`,
			string(c.Type), c.ID); err != nil {
			return err
		}
		for _, ing := range types.MergeIngredients(c.Ingredients) {
			if err := exec("composite ingredient", `INSERT INTO composite_ingredient (item_type, item_id, food_id, weight_g) VALUES (?, ?, ?, ?)`,
				string(c.Type), c.ID, ing.FoodID, ing.WeightG); err != nil {
				return err
			}
		}
	}
	for _, p := range data.Profiles {
		if err := exec("user profile", `INSERT OR REPLACE INTO user_profile
			(user_id, age, sex, weight_kg, activity_level, life_stage) VALUES (?, ?, ?, ?, ?, ?)`,
			p.UserID, p.Age, string(p.Sex), p.WeightKg, p.ActivityLevel, string(p.LifeStage)); err != nil {
			return err
		}
	}
	for _, c := range data.UserConditions {
		var end any
		if c.EndDate != nil {
			end = dateArg(*c.EndDate)
		}
		if err := exec("user condition", `INSERT OR REPLACE INTO user_health_condition
			(user_condition_id, user_id, condition_id, start_date, end_date, status)
			VALUES (?, ?, ?, CAST(? AS DATE), CAST(? AS DATE), ?)`,
			c.ID, c.UserID, c.ConditionID, dateArg(c.StartDate), end, string(c.Status)); err != nil {
			return err
		}
	}

	if err := checkReference(ctx, tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return classify(fmt.Errorf("failed to commit import: %w", err))
	}

	s.log.Info("Reference data imported",
		"nutrients", len(data.Nutrients),
		"categories", len(data.Categories),
		"foods", len(data.Foods),
		"composites", len(data.Composites),
		"duration", time.Since(start))
	return nil
}

// checkReference validates the reference tables as seen inside q
func checkReference(ctx context.Context, q queryer) error {
	data, err := loadCatalog(ctx, q)
	if err != nil {
		return err
	}
	if _, err := catalog.New(data); err != nil {
		return fmt.Errorf("%w: %w", store.ErrInvalidReference, err)
	}
	rows, err := baseRequirements(ctx, q)
	if err != nil {
		return err
	}
	if _, err := requirement.NewTable(rows); err != nil {
		return fmt.Errorf("%w: %w", store.ErrInvalidReference, err)
	}
	return nil
}
