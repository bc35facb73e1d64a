package store

import (
	"context"
	"errors"
	"time"

	"github.com/noot-app/nutrient-engine/internal/types"
)

var (
	// ErrNotFound is returned when a looked-up row does not exist
	ErrNotFound = errors.New("not found")

	// ErrTxConflict marks a transaction aborted by a concurrent writer; the
	// whole transaction can be retried
	ErrTxConflict = errors.New("transaction conflict")

	// ErrInvalidReference marks a reference import rejected because the
	// resulting catalog or RDA table would not validate
	ErrInvalidReference = errors.New("invalid reference data")
)

// Reader is the read side of reference and profile data
type Reader interface {
	LoadCatalog(ctx context.Context) (types.CatalogData, error)
	Food(ctx context.Context, foodID int64) (*types.Food, error)
	Composite(ctx context.Context, itemType types.ItemType, id int64) (*types.Composite, error)
	FoodCompositions(ctx context.Context, foodIDs []int64) ([]types.FoodComposition, error)
	UserProfile(ctx context.Context, userID int64) (*types.UserProfile, error)
	UserConditions(ctx context.Context, userID int64) ([]types.UserHealthCondition, error)
	ConditionEffects(ctx context.Context, conditionIDs []int64) ([]types.ConditionNutrientEffect, error)
	FoodRecommendations(ctx context.Context, conditionIDs []int64, foodIDs []int64) ([]types.ConditionFoodRecommendation, error)
	BaseRequirements(ctx context.Context) ([]types.BaseRequirement, error)
	DailyTotals(ctx context.Context, userID int64, day time.Time) ([]types.DailyCategoryTotal, error)
	// EntryContributions joins the day's entries with their recorded deltas
	EntryContributions(ctx context.Context, userID int64, day time.Time) ([]types.EntryContribution, error)
}

// Tx is the write side. Every DailyCategoryTotal mutation goes through a Tx
// obtained from Store.InTx, so the entry log and the totals commit together.
type Tx interface {
	InsertMealEntry(ctx context.Context, e types.MealEntry) error
	MealEntry(ctx context.Context, entryID string) (*types.MealEntry, error)
	UpdateMealEntry(ctx context.Context, e types.MealEntry) error
	DeleteMealEntry(ctx context.Context, entryID string) error
	MealEntries(ctx context.Context, userID int64, day time.Time) ([]types.MealEntry, error)

	// EntryDeltas returns the deltas recorded for an entry when it was applied
	EntryDeltas(ctx context.Context, entryID string) ([]types.Delta, error)
	// SetEntryDeltas replaces the recorded deltas of an entry
	SetEntryDeltas(ctx context.Context, entryID string, deltas []types.Delta) error

	// AddDeltas atomically adds each delta to its (user, day, category) total,
	// creating the row when missing and clamping the result at zero
	AddDeltas(ctx context.Context, userID int64, day time.Time, deltas []types.Delta) error
	// ReplaceTotals overwrites every total of (user, day) with totals
	ReplaceTotals(ctx context.Context, userID int64, day time.Time, totals []types.Delta) error
	DailyTotals(ctx context.Context, userID int64, day time.Time) ([]types.DailyCategoryTotal, error)
}

// Store is a storage backend
type Store interface {
	Reader

	// InTx runs fn in a single database transaction. A returned error rolls
	// the transaction back. Conflicts are reported wrapped in ErrTxConflict.
	InTx(ctx context.Context, fn func(tx Tx) error) error

	// ImportReference upserts reference data. The import is rolled back with
	// ErrInvalidReference when the merged tables do not validate.
	ImportReference(ctx context.Context, data *types.ReferenceData) error
	HealthCheck(ctx context.Context) error
	Close() error
}
