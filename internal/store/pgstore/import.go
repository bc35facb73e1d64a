package pgstore

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/noot-app/nutrient-engine/internal/catalog"
	"github.com/noot-app/nutrient-engine/internal/requirement"
	"github.com/noot-app/nutrient-engine/internal/store"
	"github.com/noot-app/nutrient-engine/internal/types"
)

// ImportReference upserts a reference bundle in one transaction. Composite
// ingredient lists are replaced wholesale, with repeated foods merged. The
// merged catalog and RDA table are validated before commit.
func (s *Store) ImportReference(ctx context.Context, data *types.ReferenceData) error {
	start := time.Now()

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		save := func(what string, rows any) error {
			if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(rows).Error; err != nil {
				return fmt.Errorf("failed to import %s: %w", what, err)
			}
			return nil
		}

		if len(data.Nutrients) > 0 {
			rows := make([]nutrientRow, 0, len(data.Nutrients))
			for _, n := range data.Nutrients {
				group := n.Group
				if group == "" {
					group = types.GroupOther
				}
				rows = append(rows, nutrientRow{Code: types.NormalizeCode(n.Code), Name: n.Name, Unit: n.Unit, Group: string(group)})
			}
			if err := save("nutrients", &rows); err != nil {
				return err
			}
		}

		if len(data.Categories) > 0 {
			rows := make([]categoryRow, 0, len(data.Categories))
			for _, c := range data.Categories {
				rows = append(rows, categoryRow{CategoryType: string(c.Type), CategoryID: c.ID, Code: c.Code, Name: c.Name, Unit: c.Unit})
			}
			if err := save("categories", &rows); err != nil {
				return err
			}
		}

		if len(data.Mappings) > 0 {
			rows := make([]mappingRow, 0, len(data.Mappings))
			for _, m := range data.Mappings {
				rows = append(rows, mappingRow{
					NutrientCode:     types.NormalizeCode(m.NutrientCode),
					CategoryType:     string(m.CategoryType),
					CategoryID:       m.CategoryID,
					ConversionFactor: m.ConversionFactor,
				})
			}
			if err := save("nutrient mappings", &rows); err != nil {
				return err
			}
		}

		if len(data.Requirements) > 0 {
			rows := make([]requirementRow, 0, len(data.Requirements))
			for _, r := range data.Requirements {
				rows = append(rows, requirementRow{
					CategoryType: string(r.CategoryType),
					CategoryID:   r.CategoryID,
					Sex:          string(r.Sex),
					LifeStage:    string(r.LifeStage),
					AgeMin:       r.AgeMin,
					AgeMax:       r.AgeMax,
					Amount:       r.Amount,
					Unit:         r.Unit,
					PerKg:        r.PerKg,
				})
			}
			if err := save("base requirements", &rows); err != nil {
				return err
			}
		}

		if len(data.Conditions) > 0 {
			rows := make([]conditionRow, 0, len(data.Conditions))
			for _, c := range data.Conditions {
				rows = append(rows, conditionRow{ConditionID: c.ID, Name: c.Name})
			}
			if err := save("health conditions", &rows); err != nil {
				return err
			}
		}

		if len(data.Effects) > 0 {
			rows := make([]effectRow, 0, len(data.Effects))
			for _, e := range data.Effects {
				rows = append(rows, effectRow{
					EffectID:          e.ID,
					ConditionID:       e.ConditionID,
					CategoryType:      string(e.CategoryType),
					CategoryID:        e.CategoryID,
					EffectType:        string(e.EffectType),
					AdjustmentPercent: e.AdjustmentPercent,
				})
			}
			if err := save("condition effects", &rows); err != nil {
				return err
			}
		}

		if len(data.Recommendations) > 0 {
			rows := make([]recommendationRow, 0, len(data.Recommendations))
			for _, r := range data.Recommendations {
				rows = append(rows, recommendationRow{ConditionID: r.ConditionID, FoodID: r.FoodID, RecommendationType: r.Type.String(), Notes: r.Notes})
			}
			if err := save("food recommendations", &rows); err != nil {
				return err
			}
		}

		if len(data.Foods) > 0 {
			rows := make([]foodRow, 0, len(data.Foods))
			for _, f := range data.Foods {
				rows = append(rows, foodRow{FoodID: f.ID, Name: f.Name})
			}
			if err := save("foods", &rows); err != nil {
				return err
			}
		}

		if len(data.Compositions) > 0 {
			rows := make([]compositionRow, 0, len(data.Compositions))
			for _, fc := range data.Compositions {
				rows = append(rows, compositionRow{FoodID: fc.FoodID, NutrientCode: types.NormalizeCode(fc.NutrientCode), AmountPer100g: fc.AmountPer100g})
			}
			if err := save("food compositions", &rows); err != nil {
				return err
			}
		}

		for _, c := range data.Composites {
			row := compositeRow{ItemType: string(c.Type), ItemID: c.ID, Name: c.Name}
			if err := save("composite", &row); err != nil {
				return err
			}
			if err := tx.Where("item_type = ? AND item_id = ?", string(c.Type), c.ID).Delete(&ingredientRow{}).Error; err != nil {
				return fmt.Errorf("failed to clear ingredients: %w", err)
			}
			if len(c.Ingredients) == 0 {
				continue
			}
			ingredients := types.MergeIngredients(c.Ingredients)
			rows := make([]ingredientRow, 0, len(ingredients))
			for _, ing := range ingredients {
				rows = append(rows, ingredientRow{ItemType: string(c.Type), ItemID: c.ID, FoodID: ing.FoodID, WeightG: ing.WeightG})
			}
			if err := save("ingredients", &rows); err != nil {
				return err
			}
		}

		if len(data.Profiles) > 0 {
			rows := make([]profileRow, 0, len(data.Profiles))
			for _, p := range data.Profiles {
				rows = append(rows, profileRow{
					UserID:        p.UserID,
					Age:           p.Age,
					Sex:           string(p.Sex),
					WeightKg:      p.WeightKg,
					ActivityLevel: p.ActivityLevel,
					LifeStage:     string(p.LifeStage),
				})
			}
			if err := save("user profiles", &rows); err != nil {
				return err
			}
		}

		if len(data.UserConditions) > 0 {
			rows := make([]userConditionRow, 0, len(data.UserConditions))
			for _, c := range data.UserConditions {
				row := userConditionRow{
					UserConditionID: c.ID,
					UserID:          c.UserID,
					ConditionID:     c.ConditionID,
					StartDate:       types.Day(c.StartDate),
					Status:          string(c.Status),
				}
				if c.EndDate != nil {
					end := types.Day(*c.EndDate)
					row.EndDate = &end
				}
				rows = append(rows, row)
			}
			if err := save("user conditions", &rows); err != nil {
				return err
			}
		}

		return checkReference(tx)
	})
	if err != nil {
		return classify(err)
	}

	s.log.Info("Reference data imported",
		"nutrients", len(data.Nutrients),
		"categories", len(data.Categories),
		"foods", len(data.Foods),
		"composites", len(data.Composites),
		"duration", time.Since(start))
	return nil
}

// checkReference validates the reference tables as seen inside tx
func checkReference(tx *gorm.DB) error {
	data, err := loadCatalog(tx)
	if err != nil {
		return err
	}
	if _, err := catalog.New(data); err != nil {
		return fmt.Errorf("%w: %w", store.ErrInvalidReference, err)
	}
	rows, err := baseRequirements(tx)
	if err != nil {
		return err
	}
	if _, err := requirement.NewTable(rows); err != nil {
		return fmt.Errorf("%w: %w", store.ErrInvalidReference, err)
	}
	return nil
}
