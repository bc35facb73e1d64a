package requirement

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/noot-app/nutrient-engine/internal/types"
)

// Source is the data the calculator reads
type Source interface {
	UserProfile(ctx context.Context, userID int64) (*types.UserProfile, error)
	UserConditions(ctx context.Context, userID int64) ([]types.UserHealthCondition, error)
	ConditionEffects(ctx context.Context, conditionIDs []int64) ([]types.ConditionNutrientEffect, error)
	BaseRequirements(ctx context.Context) ([]types.BaseRequirement, error)
}

// Target is a personalized daily target for one category
type Target struct {
	types.CategoryRef
	Amount     float64 `json:"amount"`
	BaseAmount float64 `json:"base_amount"`
	Unit       string  `json:"unit"`
}

// Calculator produces personalized daily targets. It has no side effects.
// The RDA table is validated once by Reload and shared by every request.
type Calculator struct {
	src   Source
	table atomic.Pointer[Table]
	log   *slog.Logger
}

// NewCalculator creates a calculator over src
func NewCalculator(src Source, logger *slog.Logger) *Calculator {
	return &Calculator{src: src, log: logger}
}

// Reload reads and validates the RDA rows and publishes the new table. On
// error the previous table stays in place.
func (c *Calculator) Reload(ctx context.Context) error {
	rows, err := c.src.BaseRequirements(ctx)
	if err != nil {
		return fmt.Errorf("failed to load requirements: %w", err)
	}
	table, err := NewTable(rows)
	if err != nil {
		return err
	}
	c.table.Store(table)
	c.log.Info("Requirement table loaded", "rows", len(rows), "categories", len(table.Refs()))
	return nil
}

func (c *Calculator) currentTable(ctx context.Context) (*Table, error) {
	if t := c.table.Load(); t != nil {
		return t, nil
	}
	if err := c.Reload(ctx); err != nil {
		return nil, err
	}
	return c.table.Load(), nil
}

// Targets returns the target of every category that has an applicable RDA
// row for the user on day, ordered by category
func (c *Calculator) Targets(ctx context.Context, userID int64, day time.Time) ([]Target, error) {
	start := time.Now()

	profile, err := c.src.UserProfile(ctx, userID)
	if err != nil {
		return nil, err
	}

	table, err := c.currentTable(ctx)
	if err != nil {
		return nil, err
	}

	effects, err := c.effectsInEffect(ctx, userID, day)
	if err != nil {
		return nil, err
	}

	targets := Compute(table, *profile, effects)
	c.log.Debug("Targets computed",
		"user_id", userID,
		"date", types.FormatDate(day),
		"targets", len(targets),
		"effects", len(effects),
		"duration", time.Since(start))
	return targets, nil
}

// Target returns the target for a single category, or nil when the category
// has no applicable RDA row
func (c *Calculator) Target(ctx context.Context, userID int64, day time.Time, ref types.CategoryRef) (*Target, error) {
	targets, err := c.Targets(ctx, userID, day)
	if err != nil {
		return nil, err
	}
	for i := range targets {
		if targets[i].CategoryRef == ref {
			return &targets[i], nil
		}
	}
	return nil, nil
}

// effectsInEffect loads the nutrient effects of the distinct conditions in
// effect for the user on day
func (c *Calculator) effectsInEffect(ctx context.Context, userID int64, day time.Time) ([]types.ConditionNutrientEffect, error) {
	conditions, err := c.src.UserConditions(ctx, userID)
	if err != nil {
		return nil, err
	}
	ids := ActiveConditionIDs(conditions, day)
	if len(ids) == 0 {
		return nil, nil
	}
	return c.src.ConditionEffects(ctx, ids)
}

// ActiveConditionIDs returns the sorted distinct ids of conditions in effect on day
func ActiveConditionIDs(conditions []types.UserHealthCondition, day time.Time) []int64 {
	seen := make(map[int64]bool)
	var ids []int64
	for _, uc := range conditions {
		if uc.InEffectOn(day) && !seen[uc.ConditionID] {
			seen[uc.ConditionID] = true
			ids = append(ids, uc.ConditionID)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Compute derives targets from an RDA table, a profile and the effects of
// the conditions in effect. Effects compound in ascending (condition id,
// effect id) order and the running value is floored at zero after each step.
func Compute(table *Table, profile types.UserProfile, effects []types.ConditionNutrientEffect) []Target {
	ordered := make([]types.ConditionNutrientEffect, len(effects))
	copy(ordered, effects)
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].ConditionID != ordered[j].ConditionID {
			return ordered[i].ConditionID < ordered[j].ConditionID
		}
		return ordered[i].ID < ordered[j].ID
	})

	byRef := make(map[types.CategoryRef][]types.ConditionNutrientEffect)
	for _, e := range ordered {
		byRef[e.Ref()] = append(byRef[e.Ref()], e)
	}

	var out []Target
	for _, ref := range table.Refs() {
		row, ok := table.Lookup(ref, profile.Sex, profile.LifeStage, profile.Age)
		if !ok {
			continue
		}

		base := row.Amount
		unit := row.Unit
		if row.PerKg {
			base *= profile.WeightKg
			unit = strings.TrimSuffix(unit, "/kg")
		}

		amount := math.Max(base, 0)
		for _, e := range byRef[ref] {
			amount = math.Max(amount*e.Factor(), 0)
		}

		out = append(out, Target{CategoryRef: ref, Amount: amount, BaseAmount: base, Unit: unit})
	}
	return out
}
