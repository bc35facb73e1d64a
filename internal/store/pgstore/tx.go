package pgstore

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/noot-app/nutrient-engine/internal/store"
	"github.com/noot-app/nutrient-engine/internal/types"
)

// txn implements store.Tx on top of a gorm transaction
type txn struct {
	db *gorm.DB
}

var _ store.Tx = (*txn)(nil)

var totalKey = []clause.Column{
	{Name: "user_id"},
	{Name: "entry_date"},
	{Name: "category_type"},
	{Name: "category_id"},
}

func (t *txn) InsertMealEntry(ctx context.Context, e types.MealEntry) error {
	row := fromMealEntry(e)
	if err := t.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("failed to insert meal entry: %w", err)
	}
	return nil
}

func (t *txn) MealEntry(ctx context.Context, entryID string) (*types.MealEntry, error) {
	var row mealEntryRow
	if err := t.db.WithContext(ctx).Take(&row, "entry_id = ?", entryID).Error; err != nil {
		return nil, notFound(err, "meal entry "+entryID)
	}
	e := row.toType()
	return &e, nil
}

func (t *txn) UpdateMealEntry(ctx context.Context, e types.MealEntry) error {
	res := t.db.WithContext(ctx).Model(&mealEntryRow{}).
		Where("entry_id = ?", e.ID).
		Updates(map[string]any{
			"meal_type": string(e.MealType),
			"item_type": string(e.ItemType),
			"item_id":   e.ItemID,
			"weight_g":  e.WeightG,
		})
	if res.Error != nil {
		return fmt.Errorf("failed to update meal entry: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("meal entry %s: %w", e.ID, store.ErrNotFound)
	}
	return nil
}

func (t *txn) DeleteMealEntry(ctx context.Context, entryID string) error {
	db := t.db.WithContext(ctx)
	if err := db.Where("entry_id = ?", entryID).Delete(&entryDeltaRow{}).Error; err != nil {
		return fmt.Errorf("failed to delete entry deltas: %w", err)
	}
	res := db.Where("entry_id = ?", entryID).Delete(&mealEntryRow{})
	if res.Error != nil {
		return fmt.Errorf("failed to delete meal entry: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("meal entry %s: %w", entryID, store.ErrNotFound)
	}
	return nil
}

func (t *txn) MealEntries(ctx context.Context, userID int64, day time.Time) ([]types.MealEntry, error) {
	var rows []mealEntryRow
	if err := t.db.WithContext(ctx).
		Where("user_id = ? AND entry_date = ?", userID, types.Day(day)).
		Order("created_at, entry_id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to query meal entries: %w", err)
	}

	out := make([]types.MealEntry, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toType())
	}
	return out, nil
}

func (t *txn) EntryDeltas(ctx context.Context, entryID string) ([]types.Delta, error) {
	var rows []entryDeltaRow
	if err := t.db.WithContext(ctx).Where("entry_id = ?", entryID).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to query entry deltas: %w", err)
	}

	out := make([]types.Delta, 0, len(rows))
	for _, r := range rows {
		out = append(out, types.Delta{
			CategoryRef: types.CategoryRef{Type: types.CategoryType(r.CategoryType), ID: r.CategoryID},
			Amount:      r.Amount,
		})
	}
	return out, nil
}

func (t *txn) SetEntryDeltas(ctx context.Context, entryID string, deltas []types.Delta) error {
	db := t.db.WithContext(ctx)
	if err := db.Where("entry_id = ?", entryID).Delete(&entryDeltaRow{}).Error; err != nil {
		return fmt.Errorf("failed to clear entry deltas: %w", err)
	}

	merged := types.MergeDeltas(deltas)
	if len(merged) == 0 {
		return nil
	}
	rows := make([]entryDeltaRow, 0, len(merged))
	for _, d := range merged {
		rows = append(rows, entryDeltaRow{EntryID: entryID, CategoryType: string(d.Type), CategoryID: d.ID, Amount: d.Amount})
	}
	if err := db.Create(&rows).Error; err != nil {
		return fmt.Errorf("failed to insert entry deltas: %w", err)
	}
	return nil
}

// AddDeltas increments totals in place. Positive deltas upsert so the first
// contribution creates the row; negative deltas only shrink existing rows.
func (t *txn) AddDeltas(ctx context.Context, userID int64, day time.Time, deltas []types.Delta) error {
	db := t.db.WithContext(ctx)
	now := time.Now().UTC()

	for _, d := range types.MergeDeltas(deltas) {
		var err error
		if d.Amount > 0 {
			row := dailyTotalRow{
				UserID:         userID,
				EntryDate:      types.Day(day),
				CategoryType:   string(d.Type),
				CategoryID:     d.ID,
				ConsumedAmount: d.Amount,
				UpdatedAt:      now,
			}
			err = incrementTotal(db, &row).Error
		} else {
			err = decrementTotal(db, userID, day, d, now).Error
		}
		if err != nil {
			return fmt.Errorf("failed to apply delta to %s: %w", d.CategoryRef, err)
		}
	}
	return nil
}

func incrementTotal(db *gorm.DB, row *dailyTotalRow) *gorm.DB {
	return db.Clauses(clause.OnConflict{
		Columns: totalKey,
		DoUpdates: clause.Assignments(map[string]any{
			"consumed_amount": gorm.Expr("GREATEST(daily_category_total.consumed_amount + EXCLUDED.consumed_amount, 0)"),
			"updated_at":      gorm.Expr("EXCLUDED.updated_at"),
		}),
	}).Create(row)
}

func decrementTotal(db *gorm.DB, userID int64, day time.Time, d types.Delta, now time.Time) *gorm.DB {
	return db.Model(&dailyTotalRow{}).
		Where("user_id = ? AND entry_date = ? AND category_type = ? AND category_id = ?",
			userID, types.Day(day), string(d.Type), d.ID).
		Updates(map[string]any{
			"consumed_amount": gorm.Expr("GREATEST(consumed_amount + ?, 0)", d.Amount),
			"updated_at":      now,
		})
}

// ReplaceTotals deletes every total of (user, day) and writes totals
func (t *txn) ReplaceTotals(ctx context.Context, userID int64, day time.Time, totals []types.Delta) error {
	db := t.db.WithContext(ctx)
	if err := db.Where("user_id = ? AND entry_date = ?", userID, types.Day(day)).
		Delete(&dailyTotalRow{}).Error; err != nil {
		return fmt.Errorf("failed to clear daily totals: %w", err)
	}

	now := time.Now().UTC()
	var rows []dailyTotalRow
	for _, d := range types.MergeDeltas(totals) {
		if d.Amount <= 0 {
			continue
		}
		rows = append(rows, dailyTotalRow{
			UserID:         userID,
			EntryDate:      types.Day(day),
			CategoryType:   string(d.Type),
			CategoryID:     d.ID,
			ConsumedAmount: d.Amount,
			UpdatedAt:      now,
		})
	}
	if len(rows) == 0 {
		return nil
	}
	if err := db.Create(&rows).Error; err != nil {
		return fmt.Errorf("failed to write daily totals: %w", err)
	}
	return nil
}

func (t *txn) DailyTotals(ctx context.Context, userID int64, day time.Time) ([]types.DailyCategoryTotal, error) {
	return dailyTotals(t.db.WithContext(ctx), userID, day)
}
