package intake

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/noot-app/nutrient-engine/internal/catalog"
	"github.com/noot-app/nutrient-engine/internal/composition"
	"github.com/noot-app/nutrient-engine/internal/store"
	"github.com/noot-app/nutrient-engine/internal/types"
)

// DriftTolerance is the relative difference above which a stored total is
// reported as drifted
const DriftTolerance = 1e-6

// Aggregator is the only writer of daily category totals. Every mutation of
// the entry log and the totals commits in one transaction.
type Aggregator struct {
	store      store.Store
	resolver   *composition.Resolver
	catalogs   *catalog.Holder
	maxRetries int
	log        *slog.Logger

	now   func() time.Time
	newID func() string
}

// NewAggregator creates an aggregator
func NewAggregator(st store.Store, resolver *composition.Resolver, catalogs *catalog.Holder, maxRetries int, logger *slog.Logger) *Aggregator {
	return &Aggregator{
		store:      st,
		resolver:   resolver,
		catalogs:   catalogs,
		maxRetries: maxRetries,
		log:        logger,
		now:        time.Now,
		newID:      uuid.NewString,
	}
}

// Deltas returns the per-category contributions of eating weightG grams of an item
func (a *Aggregator) Deltas(ctx context.Context, itemType types.ItemType, itemID int64, weightG float64) ([]types.Delta, error) {
	item, err := a.resolver.ForItem(ctx, itemType, itemID)
	if err != nil {
		return nil, err
	}
	return a.catalogs.Load().Mapper().MapAll(item.Composition, weightG), nil
}

// Record stores a new entry and adds its deltas to the day's totals
func (a *Aggregator) Record(ctx context.Context, e types.MealEntry) (*types.MealEntry, []types.Delta, error) {
	start := time.Now()

	deltas, err := a.Deltas(ctx, e.ItemType, e.ItemID, e.WeightG)
	if err != nil {
		return nil, nil, err
	}

	if e.ID == "" {
		e.ID = a.newID()
	}
	e.Date = types.Day(e.Date)
	if e.CreatedAt.IsZero() {
		e.CreatedAt = a.now().UTC()
	}

	err = store.RunInTx(ctx, a.store, a.maxRetries, a.log, func(tx store.Tx) error {
		if err := tx.InsertMealEntry(ctx, e); err != nil {
			return err
		}
		if err := tx.SetEntryDeltas(ctx, e.ID, deltas); err != nil {
			return err
		}
		return tx.AddDeltas(ctx, e.UserID, e.Date, deltas)
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to record meal entry: %w", err)
	}

	a.log.Info("Meal entry recorded",
		"entry_id", e.ID,
		"user_id", e.UserID,
		"date", types.FormatDate(e.Date),
		"item_type", e.ItemType,
		"item_id", e.ItemID,
		"categories", len(deltas),
		"duration", time.Since(start))
	return &e, deltas, nil
}

// Remove deletes an entry and subtracts exactly the deltas recorded for it
func (a *Aggregator) Remove(ctx context.Context, entryID string) (*types.MealEntry, error) {
	start := time.Now()

	var removed *types.MealEntry
	err := store.RunInTx(ctx, a.store, a.maxRetries, a.log, func(tx store.Tx) error {
		e, err := tx.MealEntry(ctx, entryID)
		if err != nil {
			return err
		}
		deltas, err := tx.EntryDeltas(ctx, entryID)
		if err != nil {
			return err
		}
		if err := tx.DeleteMealEntry(ctx, entryID); err != nil {
			return err
		}
		if err := tx.AddDeltas(ctx, e.UserID, e.Date, catalog.Negate(deltas)); err != nil {
			return err
		}
		removed = e
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to remove meal entry %s: %w", entryID, err)
	}

	a.log.Info("Meal entry removed",
		"entry_id", entryID,
		"user_id", removed.UserID,
		"date", types.FormatDate(removed.Date),
		"duration", time.Since(start))
	return removed, nil
}

// Update changes an entry's item or weight. The old deltas are reversed in
// full and the new deltas applied in full, in one transaction; the entry
// keeps its id and date.
func (a *Aggregator) Update(ctx context.Context, entryID string, itemType types.ItemType, itemID int64, weightG float64) (*types.MealEntry, []types.Delta, error) {
	start := time.Now()

	deltas, err := a.Deltas(ctx, itemType, itemID, weightG)
	if err != nil {
		return nil, nil, err
	}

	var updated *types.MealEntry
	err = store.RunInTx(ctx, a.store, a.maxRetries, a.log, func(tx store.Tx) error {
		e, err := tx.MealEntry(ctx, entryID)
		if err != nil {
			return err
		}
		old, err := tx.EntryDeltas(ctx, entryID)
		if err != nil {
			return err
		}
		if err := tx.AddDeltas(ctx, e.UserID, e.Date, catalog.Negate(old)); err != nil {
			return err
		}

		e.ItemType = itemType
		e.ItemID = itemID
		e.WeightG = weightG
		if err := tx.UpdateMealEntry(ctx, *e); err != nil {
			return err
		}
		if err := tx.SetEntryDeltas(ctx, entryID, deltas); err != nil {
			return err
		}
		if err := tx.AddDeltas(ctx, e.UserID, e.Date, deltas); err != nil {
			return err
		}
		updated = e
		return nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to update meal entry %s: %w", entryID, err)
	}

	a.log.Info("Meal entry updated",
		"entry_id", entryID,
		"user_id", updated.UserID,
		"date", types.FormatDate(updated.Date),
		"duration", time.Since(start))
	return updated, deltas, nil
}

// Totals returns the stored totals of (user, day)
func (a *Aggregator) Totals(ctx context.Context, userID int64, day time.Time) ([]types.DailyCategoryTotal, error) {
	return a.store.DailyTotals(ctx, userID, types.Day(day))
}

// Repair recomputes every entry's deltas from current reference data and
// rebuilds the day's totals from them. Running it twice is a no-op.
func (a *Aggregator) Repair(ctx context.Context, userID int64, day time.Time) error {
	start := time.Now()
	day = types.Day(day)

	var entries int
	err := store.RunInTx(ctx, a.store, a.maxRetries, a.log, func(tx store.Tx) error {
		perEntry, totals, err := a.recompute(ctx, tx, userID, day)
		if err != nil {
			return err
		}
		for id, deltas := range perEntry {
			if err := tx.SetEntryDeltas(ctx, id, deltas); err != nil {
				return err
			}
		}
		entries = len(perEntry)
		return tx.ReplaceTotals(ctx, userID, day, totals)
	})
	if err != nil {
		return fmt.Errorf("failed to repair totals for user %d on %s: %w", userID, types.FormatDate(day), err)
	}

	a.log.Info("Daily totals repaired",
		"user_id", userID,
		"date", types.FormatDate(day),
		"entries", entries,
		"duration", time.Since(start))
	return nil
}

// Drift is one category whose stored total differs from a fresh sum
type Drift struct {
	types.CategoryRef
	Stored     float64 `json:"stored"`
	Expected   float64 `json:"expected"`
	Difference float64 `json:"difference"`
}

// DriftReport is the outcome of comparing stored totals with the entry log
type DriftReport struct {
	UserID     int64     `json:"user_id"`
	Date       time.Time `json:"date"`
	Entries    int       `json:"entries"`
	Consistent bool      `json:"consistent"`
	Drifts     []Drift   `json:"drifts,omitempty"`
}

// Check compares stored totals with a fresh sum over the entry log. It never
// writes; drift is reported, not fixed.
func (a *Aggregator) Check(ctx context.Context, userID int64, day time.Time) (*DriftReport, error) {
	day = types.Day(day)
	report := &DriftReport{UserID: userID, Date: day}

	err := a.store.InTx(ctx, func(tx store.Tx) error {
		perEntry, fresh, err := a.recompute(ctx, tx, userID, day)
		if err != nil {
			return err
		}
		stored, err := tx.DailyTotals(ctx, userID, day)
		if err != nil {
			return err
		}
		report.Entries = len(perEntry)
		report.Drifts = compare(stored, fresh)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to check totals for user %d on %s: %w", userID, types.FormatDate(day), err)
	}

	report.Consistent = len(report.Drifts) == 0
	if !report.Consistent {
		a.log.Warn("Daily totals drifted from entry log",
			"user_id", userID,
			"date", types.FormatDate(day),
			"categories", len(report.Drifts))
	}
	return report, nil
}

// recompute derives every entry's deltas and the day's summed totals from
// current reference data. Entries whose item no longer exists contribute
// nothing.
func (a *Aggregator) recompute(ctx context.Context, tx store.Tx, userID int64, day time.Time) (map[string][]types.Delta, []types.Delta, error) {
	entries, err := tx.MealEntries(ctx, userID, day)
	if err != nil {
		return nil, nil, err
	}

	perEntry := make(map[string][]types.Delta, len(entries))
	var all []types.Delta
	for _, e := range entries {
		deltas, err := a.Deltas(ctx, e.ItemType, e.ItemID, e.WeightG)
		if errors.Is(err, store.ErrNotFound) {
			a.log.Debug("Entry item no longer in catalog", "entry_id", e.ID, "item_type", e.ItemType, "item_id", e.ItemID)
			deltas, err = nil, nil
		}
		if err != nil {
			return nil, nil, err
		}
		perEntry[e.ID] = deltas
		all = append(all, deltas...)
	}
	return perEntry, types.MergeDeltas(all), nil
}

func compare(stored []types.DailyCategoryTotal, fresh []types.Delta) []Drift {
	expected := make(map[types.CategoryRef]float64, len(fresh))
	for _, d := range fresh {
		expected[d.CategoryRef] = math.Max(d.Amount, 0)
	}
	actual := make(map[types.CategoryRef]float64, len(stored))
	for _, t := range stored {
		actual[t.Ref()] = t.ConsumedAmount
	}

	refs := make([]types.CategoryRef, 0, len(expected)+len(actual))
	for ref := range expected {
		refs = append(refs, ref)
	}
	for ref := range actual {
		if _, ok := expected[ref]; !ok {
			refs = append(refs, ref)
		}
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].Less(refs[j]) })

	var drifts []Drift
	for _, ref := range refs {
		want, got := expected[ref], actual[ref]
		if math.Abs(got-want) > DriftTolerance*math.Max(1, math.Abs(want)) {
			drifts = append(drifts, Drift{CategoryRef: ref, Stored: got, Expected: want, Difference: got - want})
		}
	}
	return drifts
}
