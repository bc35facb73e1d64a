package pgstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/noot-app/nutrient-engine/internal/config"
	"github.com/noot-app/nutrient-engine/internal/store"
	"github.com/noot-app/nutrient-engine/internal/types"
)

func dryRunDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(postgres.New(postgres.Config{DSN: "host=localhost user=test dbname=test sslmode=disable"}), &gorm.Config{
		DryRun:                 true,
		DisableAutomaticPing:   true,
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)
	return db
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		conflict bool
	}{
		{"nil", nil, false},
		{"serialization failure", &pgconn.PgError{Code: "40001"}, true},
		{"deadlock", fmt.Errorf("commit: %w", &pgconn.PgError{Code: "40P01"}), true},
		{"unique violation", &pgconn.PgError{Code: "23505"}, false},
		{"plain error", errors.New("boom"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.conflict, errors.Is(classify(tt.err), store.ErrTxConflict))
		})
	}
}

func TestNotFound(t *testing.T) {
	assert.ErrorIs(t, notFound(gorm.ErrRecordNotFound, "food 1"), store.ErrNotFound)
	assert.NotErrorIs(t, notFound(errors.New("boom"), "food 1"), store.ErrNotFound)
}

func TestIncrementTotal_SQL(t *testing.T) {
	db := dryRunDB(t)
	row := dailyTotalRow{
		UserID:         1,
		EntryDate:      time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC),
		CategoryType:   "vitamin",
		CategoryID:     3,
		ConsumedAmount: 12.5,
		UpdatedAt:      time.Now(),
	}

	result := incrementTotal(db, &row)
	require.NoError(t, result.Error)
	sql := result.Statement.SQL.String()
	require.NotEmpty(t, sql)
	assert.Contains(t, sql, `INSERT INTO "daily_category_total"`)
	assert.Contains(t, sql, `ON CONFLICT ("user_id","entry_date","category_type","category_id") DO UPDATE SET`)
	assert.Contains(t, sql, "GREATEST(daily_category_total.consumed_amount + EXCLUDED.consumed_amount, 0)")
}

func TestDecrementTotal_SQL(t *testing.T) {
	db := dryRunDB(t)
	d := types.Delta{CategoryRef: types.CategoryRef{Type: types.CategoryFiber, ID: 1}, Amount: -4}

	result := decrementTotal(db, 1, time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC), d, time.Now())
	require.NoError(t, result.Error)
	sql := result.Statement.SQL.String()
	require.NotEmpty(t, sql)
	assert.Contains(t, sql, `UPDATE "daily_category_total" SET`)
	assert.Contains(t, sql, "GREATEST(consumed_amount + $")
	assert.NotContains(t, sql, "INSERT")
}

func TestRowConversions(t *testing.T) {
	created := time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)
	entry := types.MealEntry{
		ID:        "e1",
		UserID:    4,
		Date:      time.Date(2025, 3, 14, 17, 0, 0, 0, time.UTC),
		MealType:  types.MealSnack,
		ItemType:  types.ItemDrink,
		ItemID:    8,
		WeightG:   250,
		CreatedAt: created,
	}

	row := fromMealEntry(entry)
	assert.Equal(t, "drink", row.ItemType)
	assert.Equal(t, "snack", row.MealType)
	assert.Equal(t, time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC), row.EntryDate)

	back := row.toType()
	assert.Equal(t, entry.ID, back.ID)
	assert.Equal(t, types.ItemDrink, back.ItemType)
	assert.Equal(t, types.MealSnack, back.MealType)
	assert.Equal(t, row.EntryDate, back.Date)
	assert.Equal(t, created, back.CreatedAt)
}

func TestAllModels_TableNames(t *testing.T) {
	names := map[string]bool{}
	for _, m := range allModels() {
		tn, ok := m.(interface{ TableName() string })
		require.True(t, ok, "%T has no table name", m)
		assert.False(t, names[tn.TableName()], "duplicate table %s", tn.TableName())
		names[tn.TableName()] = true
	}
	assert.True(t, names["daily_category_total"])
	assert.True(t, names["meal_entry_delta"])
}

// openTestStore connects to the database named by TEST_DATABASE_URL
func openTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	s, err := Open(context.Background(), dsn, config.NewTestLogger(io.Discard, "debug"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestPostgres_AddDeltasIsAdditiveAndReversible(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	userID := time.Now().UnixNano()
	day := time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC)
	vitaminC := types.CategoryRef{Type: types.CategoryVitamin, ID: 3}
	fiber := types.CategoryRef{Type: types.CategoryFiber, ID: 1}

	apply := func(deltas ...types.Delta) {
		require.NoError(t, s.InTx(ctx, func(tx store.Tx) error {
			return tx.AddDeltas(ctx, userID, day, deltas)
		}))
	}
	totals := func() map[types.CategoryRef]float64 {
		rows, err := s.DailyTotals(ctx, userID, day)
		require.NoError(t, err)
		out := make(map[types.CategoryRef]float64, len(rows))
		for _, r := range rows {
			out[r.Ref()] = r.ConsumedAmount
		}
		return out
	}

	apply(types.Delta{CategoryRef: vitaminC, Amount: 10}, types.Delta{CategoryRef: fiber, Amount: 2})
	apply(types.Delta{CategoryRef: vitaminC, Amount: 5})
	got := totals()
	assert.InDelta(t, 15, got[vitaminC], 1e-9)
	assert.InDelta(t, 2, got[fiber], 1e-9)

	apply(types.Delta{CategoryRef: vitaminC, Amount: -5})
	apply(types.Delta{CategoryRef: vitaminC, Amount: -10}, types.Delta{CategoryRef: fiber, Amount: -3})
	got = totals()
	assert.InDelta(t, 0, got[vitaminC], 1e-9)
	assert.InDelta(t, 0, got[fiber], 1e-9, "decrements clamp at zero")
}

func TestPostgres_ImportRejectsOverlappingRequirements(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	categoryID := time.Now().UnixNano()

	err := s.ImportReference(ctx, &types.ReferenceData{
		Requirements: []types.BaseRequirement{
			{CategoryType: types.CategoryAminoAcid, CategoryID: categoryID, Sex: types.SexAny, AgeMin: 19, AgeMax: 50, Amount: 1, Unit: "g"},
			{CategoryType: types.CategoryAminoAcid, CategoryID: categoryID, Sex: types.SexAny, AgeMin: 40, AgeMax: 120, Amount: 1, Unit: "g"},
		},
	})
	assert.ErrorIs(t, err, store.ErrInvalidReference)

	reqs, err := s.BaseRequirements(ctx)
	require.NoError(t, err)
	for _, r := range reqs {
		assert.NotEqual(t, categoryID, r.CategoryID)
	}
}

func TestPostgres_EntryContributions(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	id := time.Now().UnixNano()
	day := time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC)
	vitaminC := types.CategoryRef{Type: types.CategoryVitamin, ID: 3}

	require.NoError(t, s.ImportReference(ctx, &types.ReferenceData{
		Foods: []types.Food{{ID: id, Name: "Orange"}},
	}))

	entry := types.MealEntry{
		ID: fmt.Sprintf("e-%d", id), UserID: id, Date: day, MealType: types.MealLunch,
		ItemType: types.ItemFood, ItemID: id, WeightG: 100, CreatedAt: time.Now(),
	}
	require.NoError(t, s.InTx(ctx, func(tx store.Tx) error {
		if err := tx.InsertMealEntry(ctx, entry); err != nil {
			return err
		}
		return tx.SetEntryDeltas(ctx, entry.ID, []types.Delta{{CategoryRef: vitaminC, Amount: 53}})
	}))

	got, err := s.EntryContributions(ctx, id, day)
	require.NoError(t, err)
	assert.Equal(t, []types.EntryContribution{{
		CategoryRef: vitaminC, Amount: 53, EntryID: entry.ID, MealType: types.MealLunch,
		ItemType: types.ItemFood, ItemID: id, ItemName: "Orange", WeightG: 100,
	}}, got)
}
