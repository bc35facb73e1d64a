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

// txn implements store.Tx on top of a DuckDB transaction
type txn struct {
	tx *sql.Tx
}

var _ store.Tx = (*txn)(nil)

func (t *txn) InsertMealEntry(ctx context.Context, e types.MealEntry) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO meal_entry (entry_id, user_id, entry_date, meal_type, item_type, item_id, weight_g, created_at)
		VALUES (?, ?, CAST(? AS DATE), ?, ?, ?, ?, ?)`,
		e.ID, e.UserID, dateArg(e.Date), string(e.MealType), string(e.ItemType), e.ItemID, e.WeightG, e.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to insert meal entry: %w", err)
	}
	return nil
}

func (t *txn) MealEntry(ctx context.Context, entryID string) (*types.MealEntry, error) {
	e := types.MealEntry{ID: entryID}
	err := t.tx.QueryRowContext(ctx, `
		SELECT user_id, entry_date, COALESCE(meal_type, ''), item_type, item_id, weight_g, created_at
		FROM meal_entry WHERE entry_id = ?`, entryID).
		Scan(&e.UserID, &e.Date, &e.MealType, &e.ItemType, &e.ItemID, &e.WeightG, &e.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("meal entry %s: %w", entryID, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query meal entry %s: %w", entryID, err)
	}
	e.Date = types.Day(e.Date)
	return &e, nil
}

func (t *txn) UpdateMealEntry(ctx context.Context, e types.MealEntry) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE meal_entry SET meal_type = ?, item_type = ?, item_id = ?, weight_g = ?
		WHERE entry_id = ?`, string(e.MealType), string(e.ItemType), e.ItemID, e.WeightG, e.ID)
	if err != nil {
		return fmt.Errorf("failed to update meal entry: %w", err)
	}
	return expectRow(res, "meal entry "+e.ID)
}

func (t *txn) DeleteMealEntry(ctx context.Context, entryID string) error {
	if _, err := t.tx.ExecContext(ctx, `DELETE FROM meal_entry_delta WHERE entry_id = ?`, entryID); err != nil {
		return fmt.Errorf("failed to delete entry deltas: %w", err)
	}
	res, err := t.tx.ExecContext(ctx, `DELETE FROM meal_entry WHERE entry_id = ?`, entryID)
	if err != nil {
		return fmt.Errorf("failed to delete meal entry: %w", err)
	}
	return expectRow(res, "meal entry "+entryID)
}

func (t *txn) MealEntries(ctx context.Context, userID int64, day time.Time) ([]types.MealEntry, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT entry_id, COALESCE(meal_type, ''), item_type, item_id, weight_g, created_at
		FROM meal_entry
		WHERE user_id = ? AND entry_date = CAST(? AS DATE)
		ORDER BY created_at, entry_id`, userID, dateArg(day))
	if err != nil {
		return nil, fmt.Errorf("failed to query meal entries: %w", err)
	}

	var out []types.MealEntry
	for rows.Next() {
		e := types.MealEntry{UserID: userID, Date: types.Day(day)}
		if err := rows.Scan(&e.ID, &e.MealType, &e.ItemType, &e.ItemID, &e.WeightG, &e.CreatedAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan meal entry: %w", err)
		}
		out = append(out, e)
	}
	return out, closeRows(rows)
}

func (t *txn) EntryDeltas(ctx context.Context, entryID string) ([]types.Delta, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT category_type, category_id, amount
		FROM meal_entry_delta
		WHERE entry_id = ?`, entryID)
	if err != nil {
		return nil, fmt.Errorf("failed to query entry deltas: %w", err)
	}

	var out []types.Delta
	for rows.Next() {
		var d types.Delta
		if err := rows.Scan(&d.Type, &d.ID, &d.Amount); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan entry delta: %w", err)
		}
		out = append(out, d)
	}
	return out, closeRows(rows)
}

func (t *txn) SetEntryDeltas(ctx context.Context, entryID string, deltas []types.Delta) error {
	if _, err := t.tx.ExecContext(ctx, `DELETE FROM meal_entry_delta WHERE entry_id = ?`, entryID); err != nil {
		return fmt.Errorf("failed to clear entry deltas: %w", err)
	}
	for _, d := range deltas {
		if _, err := t.tx.ExecContext(ctx, `
			INSERT INTO meal_entry_delta (entry_id, category_type, category_id, amount)
			VALUES (?, ?, ?, ?)`, entryID, string(d.Type), d.ID, d.Amount); err != nil {
			return fmt.Errorf("failed to insert entry delta: %w", err)
		}
	}
	return nil
}

// AddDeltas increments totals in place. Positive deltas upsert so the first
// contribution creates the row; negative deltas only ever shrink an
// existing row, and a missing row is already at the zero floor.
func (t *txn) AddDeltas(ctx context.Context, userID int64, day time.Time, deltas []types.Delta) error {
	for _, d := range types.MergeDeltas(deltas) {
		var err error
		if d.Amount > 0 {
			_, err = t.tx.ExecContext(ctx, `
				INSERT INTO daily_category_total
					(user_id, entry_date, category_type, category_id, consumed_amount, updated_at)
				VALUES (?, CAST(? AS DATE), ?, ?, ?, now())
				ON CONFLICT (user_id, entry_date, category_type, category_id) DO UPDATE SET
					consumed_amount = GREATEST(consumed_amount + EXCLUDED.consumed_amount, 0),
					updated_at = EXCLUDED.updated_at`,
				userID, dateArg(day), string(d.Type), d.ID, d.Amount)
		} else {
			_, err = t.tx.ExecContext(ctx, `
				UPDATE daily_category_total
				SET consumed_amount = GREATEST(consumed_amount + ?, 0), updated_at = now()
				WHERE user_id = ? AND entry_date = CAST(? AS DATE)
				  AND category_type = ? AND category_id = ?`,
				d.Amount, userID, dateArg(day), string(d.Type), d.ID)
		}
		if err != nil {
			return fmt.Errorf("failed to apply delta to %s: %w", d.CategoryRef, err)
		}
	}
	return nil
}

// ReplaceTotals touches every affected row exactly once: fresh totals are
// upserted with overwrite semantics and stale rows are deleted.
func (t *txn) ReplaceTotals(ctx context.Context, userID int64, day time.Time, totals []types.Delta) error {
	var keep []types.Delta
	fresh := make(map[types.CategoryRef]bool, len(totals))
	for _, d := range types.MergeDeltas(totals) {
		if d.Amount > 0 {
			keep = append(keep, d)
			fresh[d.CategoryRef] = true
		}
	}

	existing, err := dailyTotals(ctx, t.tx, userID, day)
	if err != nil {
		return err
	}
	for _, row := range existing {
		if fresh[row.Ref()] {
			continue
		}
		if _, err := t.tx.ExecContext(ctx, `
			DELETE FROM daily_category_total
			WHERE user_id = ? AND entry_date = CAST(? AS DATE)
			  AND category_type = ? AND category_id = ?`,
			userID, dateArg(day), string(row.CategoryType), row.CategoryID); err != nil {
			return fmt.Errorf("failed to delete stale total: %w", err)
		}
	}

	for _, d := range keep {
		if _, err := t.tx.ExecContext(ctx, `
			INSERT INTO daily_category_total
				(user_id, entry_date, category_type, category_id, consumed_amount, updated_at)
			VALUES (?, CAST(? AS DATE), ?, ?, ?, now())
			ON CONFLICT (user_id, entry_date, category_type, category_id) DO UPDATE SET
				consumed_amount = EXCLUDED.consumed_amount,
				updated_at = EXCLUDED.updated_at`,
			userID, dateArg(day), string(d.Type), d.ID, d.Amount); err != nil {
			return fmt.Errorf("failed to write total for %s: %w", d.CategoryRef, err)
		}
	}
	return nil
}

func (t *txn) DailyTotals(ctx context.Context, userID int64, day time.Time) ([]types.DailyCategoryTotal, error) {
	return dailyTotals(ctx, t.tx, userID, day)
}

func expectRow(res sql.Result, what string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", what, store.ErrNotFound)
	}
	return nil
}
