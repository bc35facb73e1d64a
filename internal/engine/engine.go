package engine

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/noot-app/nutrient-engine/internal/catalog"
	"github.com/noot-app/nutrient-engine/internal/composition"
	"github.com/noot-app/nutrient-engine/internal/intake"
	"github.com/noot-app/nutrient-engine/internal/recommend"
	"github.com/noot-app/nutrient-engine/internal/requirement"
	"github.com/noot-app/nutrient-engine/internal/store"
	"github.com/noot-app/nutrient-engine/internal/types"
)

// Options tune an Engine
type Options struct {
	// MaxRetries bounds conflict retries of write transactions
	MaxRetries int
	// Location defines the calendar day of "today"; defaults to UTC
	Location *time.Location
	// Now overrides the clock
	Now func() time.Time
}

// Engine is the entry point collaborators call. It validates inputs and
// wires the catalog, aggregator, calculator and filter over one store.
type Engine struct {
	store    store.Store
	catalogs *catalog.Holder
	resolver *composition.Resolver
	agg      *intake.Aggregator
	calc     *requirement.Calculator
	filter   *recommend.Filter
	loc      *time.Location
	now      func() time.Time
	log      *slog.Logger
}

// New builds an engine and loads the nutrient catalog and RDA table from st.
// Reference data that does not validate fails construction.
func New(ctx context.Context, st store.Store, opts Options, logger *slog.Logger) (*Engine, error) {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = store.DefaultMaxRetries
	}

	catalogs := &catalog.Holder{}
	resolver := composition.NewResolver(st, logger)
	e := &Engine{
		store:    st,
		catalogs: catalogs,
		resolver: resolver,
		agg:      intake.NewAggregator(st, resolver, catalogs, opts.MaxRetries, logger),
		calc:     requirement.NewCalculator(st, logger),
		filter:   recommend.NewFilter(st, logger),
		loc:      opts.Location,
		now:      opts.Now,
		log:      logger,
	}

	if err := e.ReloadCatalog(ctx); err != nil {
		return nil, err
	}
	return e, nil
}

// ReloadCatalog rebuilds the nutrient catalog and the RDA table from the
// store and publishes them. In-flight requests keep the snapshot they
// started with, and a failed reload leaves the previous snapshot in place.
func (e *Engine) ReloadCatalog(ctx context.Context) error {
	data, err := e.store.LoadCatalog(ctx)
	if err != nil {
		return fmt.Errorf("failed to load catalog: %w", err)
	}
	c, err := catalog.New(data)
	if err != nil {
		return err
	}
	if err := e.calc.Reload(ctx); err != nil {
		return err
	}
	e.catalogs.Store(c)

	e.log.Info("Nutrient catalog loaded",
		"nutrients", len(data.Nutrients),
		"categories", len(data.Categories),
		"mappings", len(data.Mappings))
	return nil
}

// Catalog returns the current catalog snapshot
func (e *Engine) Catalog() *catalog.Catalog {
	return e.catalogs.Load()
}

// Today is the current calendar day in the engine's location
func (e *Engine) Today() time.Time {
	return types.Day(e.now().In(e.loc))
}

func (e *Engine) dayOrToday(day time.Time) time.Time {
	if day.IsZero() {
		return e.Today()
	}
	return types.Day(day)
}

// MealEntryInput describes a meal entry to record
type MealEntryInput struct {
	UserID   int64
	Date     time.Time
	MealType types.MealType
	ItemType types.ItemType
	ItemID   int64
	WeightG  float64
}

// RecordResult is the outcome of recording or updating an entry
type RecordResult struct {
	EntryID string          `json:"entry_id"`
	Entry   types.MealEntry `json:"entry"`
	Deltas  []types.Delta   `json:"per_category_deltas"`
}

// RecordMealEntry validates and records an entry, applying its deltas to
// the day's totals in the same transaction
func (e *Engine) RecordMealEntry(ctx context.Context, in MealEntryInput) (*RecordResult, error) {
	if in.ItemType == "" {
		in.ItemType = types.ItemFood
	}
	if err := validateWeight(in.WeightG); err != nil {
		return nil, err
	}
	if !in.MealType.Valid() {
		return nil, invalid("meal_type", "must be one of %v, got %q", types.MealTypes, in.MealType)
	}
	if err := e.validateUser(ctx, in.UserID); err != nil {
		return nil, err
	}
	if err := e.validateItem(ctx, in.ItemType, in.ItemID); err != nil {
		return nil, err
	}

	entry, deltas, err := e.agg.Record(ctx, types.MealEntry{
		UserID:   in.UserID,
		Date:     e.dayOrToday(in.Date),
		MealType: in.MealType,
		ItemType: in.ItemType,
		ItemID:   in.ItemID,
		WeightG:  in.WeightG,
	})
	if err != nil {
		return nil, err
	}
	return &RecordResult{EntryID: entry.ID, Entry: *entry, Deltas: nonNil(deltas)}, nil
}

// RemoveMealEntry deletes an entry and reverses the deltas it applied
func (e *Engine) RemoveMealEntry(ctx context.Context, entryID string) error {
	if entryID == "" {
		return invalid("entry_id", "must not be empty")
	}
	_, err := e.agg.Remove(ctx, entryID)
	return notFoundAs(err, "entry_id", "unknown meal entry %q", entryID)
}

// UpdateMealEntry changes an entry's item or weight by reversing its old
// deltas and applying freshly computed ones. Date and meal type are kept.
func (e *Engine) UpdateMealEntry(ctx context.Context, entryID string, itemType types.ItemType, itemID int64, weightG float64) (*RecordResult, error) {
	if entryID == "" {
		return nil, invalid("entry_id", "must not be empty")
	}
	if itemType == "" {
		itemType = types.ItemFood
	}
	if err := validateWeight(weightG); err != nil {
		return nil, err
	}
	if err := e.validateItem(ctx, itemType, itemID); err != nil {
		return nil, err
	}

	entry, deltas, err := e.agg.Update(ctx, entryID, itemType, itemID, weightG)
	if err != nil {
		return nil, notFoundAs(err, "entry_id", "unknown meal entry %q", entryID)
	}
	return &RecordResult{EntryID: entry.ID, Entry: *entry, Deltas: nonNil(deltas)}, nil
}

// RepairDailyTotals rebuilds the day's totals from the entry log
func (e *Engine) RepairDailyTotals(ctx context.Context, userID int64, day time.Time) error {
	return e.agg.Repair(ctx, userID, e.dayOrToday(day))
}

// CheckDailyTotals reports totals that drifted from the entry log
func (e *Engine) CheckDailyTotals(ctx context.Context, userID int64, day time.Time) (*intake.DriftReport, error) {
	return e.agg.Check(ctx, userID, e.dayOrToday(day))
}

// GetFoodRecommendation classifies a food for the user's conditions in effect today
func (e *Engine) GetFoodRecommendation(ctx context.Context, userID, foodID int64) (*recommend.FoodResult, error) {
	if _, err := e.store.Food(ctx, foodID); err != nil {
		return nil, notFoundAs(err, "food_id", "unknown food %d", foodID)
	}
	return e.filter.Food(ctx, userID, foodID, e.Today())
}

// GetDishRecommendation classifies a dish from its ingredients
func (e *Engine) GetDishRecommendation(ctx context.Context, userID, dishID int64) (*recommend.CompositeResult, error) {
	return e.compositeRecommendation(ctx, userID, types.ItemDish, dishID)
}

// GetDrinkRecommendation classifies a drink from its ingredients
func (e *Engine) GetDrinkRecommendation(ctx context.Context, userID, drinkID int64) (*recommend.CompositeResult, error) {
	return e.compositeRecommendation(ctx, userID, types.ItemDrink, drinkID)
}

func (e *Engine) compositeRecommendation(ctx context.Context, userID int64, itemType types.ItemType, id int64) (*recommend.CompositeResult, error) {
	c, err := e.store.Composite(ctx, itemType, id)
	if err != nil {
		return nil, notFoundAs(err, string(itemType)+"_id", "unknown %s %d", itemType, id)
	}
	return e.filter.Composite(ctx, userID, c, e.Today())
}

func validateWeight(w float64) error {
	if math.IsNaN(w) || math.IsInf(w, 0) || w <= 0 {
		return invalid("weight_g", "must be a positive number of grams, got %v", w)
	}
	return nil
}

func (e *Engine) validateUser(ctx context.Context, userID int64) error {
	if _, err := e.store.UserProfile(ctx, userID); err != nil {
		return notFoundAs(err, "user_id", "unknown user %d", userID)
	}
	return nil
}

func (e *Engine) validateItem(ctx context.Context, itemType types.ItemType, id int64) error {
	switch itemType {
	case types.ItemFood:
		if _, err := e.store.Food(ctx, id); err != nil {
			return notFoundAs(err, "item_id", "unknown food %d", id)
		}
	case types.ItemDish, types.ItemDrink:
		if _, err := e.store.Composite(ctx, itemType, id); err != nil {
			return notFoundAs(err, "item_id", "unknown %s %d", itemType, id)
		}
	default:
		return invalid("item_type", "must be food, dish or drink, got %q", itemType)
	}
	return nil
}

func nonNil(deltas []types.Delta) []types.Delta {
	if deltas == nil {
		return []types.Delta{}
	}
	return deltas
}

// HealthCheck reports whether the backing store answers queries
func (e *Engine) HealthCheck(ctx context.Context) error {
	return e.store.HealthCheck(ctx)
}
