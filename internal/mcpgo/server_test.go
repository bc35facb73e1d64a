package mcpgo

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/noot-app/nutrient-engine/internal/auth"
	"github.com/noot-app/nutrient-engine/internal/config"
	"github.com/noot-app/nutrient-engine/internal/engine"
	"github.com/noot-app/nutrient-engine/internal/intake"
	"github.com/noot-app/nutrient-engine/internal/recommend"
	"github.com/noot-app/nutrient-engine/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var today = time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)

// fakeEngine records the arguments it receives and returns canned results
type fakeEngine struct {
	mu        sync.Mutex
	healthErr error
	err       error

	lastInput engine.MealEntryInput
	lastDay   time.Time
	lastIDs   []int64
}

func (f *fakeEngine) setHealthError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.healthErr = err
}

func (f *fakeEngine) HealthCheck(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.healthErr
}

func (f *fakeEngine) Today() time.Time { return today }

func (f *fakeEngine) RecordMealEntry(ctx context.Context, in engine.MealEntryInput) (*engine.RecordResult, error) {
	f.lastInput = in
	if f.err != nil {
		return nil, f.err
	}
	entry := types.MealEntry{ID: "e-1", UserID: in.UserID, Date: today, ItemType: in.ItemType, ItemID: in.ItemID, WeightG: in.WeightG}
	return &engine.RecordResult{
		EntryID: entry.ID,
		Entry:   entry,
		Deltas:  []types.Delta{{CategoryRef: types.CategoryRef{Type: types.CategoryVitamin, ID: 1}, Amount: 12}},
	}, nil
}

func (f *fakeEngine) RemoveMealEntry(ctx context.Context, entryID string) error {
	return f.err
}

func (f *fakeEngine) UpdateMealEntry(ctx context.Context, entryID string, itemType types.ItemType, itemID int64, weightG float64) (*engine.RecordResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	entry := types.MealEntry{ID: entryID, ItemType: itemType, ItemID: itemID, WeightG: weightG}
	return &engine.RecordResult{EntryID: entryID, Entry: entry, Deltas: []types.Delta{}}, nil
}

func (f *fakeEngine) GetDailyIntake(ctx context.Context, userID int64, day time.Time) ([]engine.IntakeRow, error) {
	f.lastDay = day
	if f.err != nil {
		return nil, f.err
	}
	target := 90.0
	return []engine.IntakeRow{{CategoryType: types.CategoryVitamin, CategoryID: 1, ConsumedAmount: 45, TargetAmount: &target, Unit: "mg"}}, nil
}

func (f *fakeEngine) GetNutrientSummary(ctx context.Context, userID int64, day time.Time) (*engine.NutrientSummary, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &engine.NutrientSummary{UserID: userID, Date: types.FormatDate(today)}, nil
}

func (f *fakeEngine) GetNutrientSources(ctx context.Context, userID int64, day time.Time) ([]engine.CategorySources, error) {
	f.lastDay = day
	if f.err != nil {
		return nil, f.err
	}
	return []engine.CategorySources{{
		CategoryType: types.CategoryVitamin,
		CategoryID:   1,
		Total:        45,
		Sources: []engine.NutrientSource{
			{EntryID: "e-1", ItemType: types.ItemFood, ItemID: 10, ItemName: "Orange", MealType: types.MealBreakfast, WeightG: 90, Amount: 45},
		},
	}}, nil
}

func (f *fakeEngine) GetFoodRecommendation(ctx context.Context, userID, foodID int64) (*recommend.FoodResult, error) {
	f.lastIDs = []int64{userID, foodID}
	if f.err != nil {
		return nil, f.err
	}
	return &recommend.FoodResult{FoodID: foodID, Status: types.StatusAvoid, Reasons: []string{"Gout"}}, nil
}

func (f *fakeEngine) GetDishRecommendation(ctx context.Context, userID, dishID int64) (*recommend.CompositeResult, error) {
	f.lastIDs = []int64{userID, dishID}
	if f.err != nil {
		return nil, f.err
	}
	return &recommend.CompositeResult{Type: types.ItemDish, ID: dishID, Status: types.StatusNeutral}, nil
}

func (f *fakeEngine) GetDrinkRecommendation(ctx context.Context, userID, drinkID int64) (*recommend.CompositeResult, error) {
	f.lastIDs = []int64{userID, drinkID}
	if f.err != nil {
		return nil, f.err
	}
	return &recommend.CompositeResult{Type: types.ItemDrink, ID: drinkID, Status: types.StatusRecommend}, nil
}

func (f *fakeEngine) RepairDailyTotals(ctx context.Context, userID int64, day time.Time) error {
	f.lastDay = day
	return f.err
}

func (f *fakeEngine) CheckDailyTotals(ctx context.Context, userID int64, day time.Time) (*intake.DriftReport, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &intake.DriftReport{UserID: userID, Date: today, Consistent: false, Drifts: []intake.Drift{{Stored: 1, Expected: 2, Difference: -1}}}, nil
}

func newTestServer(t *testing.T) (*Server, *fakeEngine) {
	t.Helper()
	logger := config.NewTestLogger(io.Discard, "debug")
	fake := &fakeEngine{}
	return NewServer(fake, auth.NewBearerTokenAuth("test-token"), logger), fake
}

func callRequest(name string, args map[string]any) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, result.Content)
	text, ok := result.Content[0].(mcp.TextContent)
	require.True(t, ok, "expected text content, got %T", result.Content[0])
	return text.Text
}

func TestServer_checkHealthWithCache(t *testing.T) {
	t.Run("first call performs health check", func(t *testing.T) {
		server, _ := newTestServer(t)

		err := server.checkHealthWithCache(context.Background())
		assert.NoError(t, err)
		assert.False(t, server.lastHealthCheck.IsZero())
		assert.NoError(t, server.lastHealthError)
	})

	t.Run("subsequent calls within 10 seconds use cache", func(t *testing.T) {
		server, _ := newTestServer(t)
		ctx := context.Background()

		require.NoError(t, server.checkHealthWithCache(ctx))
		firstCheckTime := server.lastHealthCheck

		require.NoError(t, server.checkHealthWithCache(ctx))
		assert.Equal(t, firstCheckTime, server.lastHealthCheck)
	})

	t.Run("caches error results", func(t *testing.T) {
		server, fake := newTestServer(t)
		ctx := context.Background()
		testError := errors.New("database connection failed")
		fake.setHealthError(testError)

		err1 := server.checkHealthWithCache(ctx)
		assert.Equal(t, testError, err1)
		assert.Equal(t, testError, server.lastHealthError)

		fake.setHealthError(nil)

		err2 := server.checkHealthWithCache(ctx)
		assert.Equal(t, testError, err2)
	})

	t.Run("cache expires after 10 seconds", func(t *testing.T) {
		server, _ := newTestServer(t)
		ctx := context.Background()

		require.NoError(t, server.checkHealthWithCache(ctx))
		server.lastHealthCheck = time.Now().Add(-11 * time.Second)

		require.NoError(t, server.checkHealthWithCache(ctx))
		assert.True(t, time.Since(server.lastHealthCheck) < time.Second)
	})

	t.Run("concurrent calls handle race conditions safely", func(t *testing.T) {
		server, _ := newTestServer(t)
		ctx := context.Background()
		server.lastHealthCheck = time.Now().Add(-11 * time.Second)

		errChan := make(chan error, 10)
		for i := 0; i < 10; i++ {
			go func() {
				errChan <- server.checkHealthWithCache(ctx)
			}()
		}
		for i := 0; i < 10; i++ {
			assert.NoError(t, <-errChan)
		}
		assert.True(t, time.Since(server.lastHealthCheck) < time.Second)
	})
}

func TestServer_Handler(t *testing.T) {
	t.Run("health endpoint reports healthy", func(t *testing.T) {
		server, _ := newTestServer(t)

		rec := httptest.NewRecorder()
		server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
		var body map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "healthy", body["status"])
	})

	t.Run("health endpoint reports unhealthy", func(t *testing.T) {
		server, fake := newTestServer(t)
		fake.setHealthError(errors.New("database is down"))

		rec := httptest.NewRecorder()
		server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Contains(t, rec.Body.String(), "database is down")
	})

	t.Run("health endpoint rejects other methods", func(t *testing.T) {
		server, _ := newTestServer(t)

		rec := httptest.NewRecorder()
		server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/health", nil))

		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	})

	t.Run("mcp endpoint requires bearer token", func(t *testing.T) {
		server, _ := newTestServer(t)

		req := httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader(`{}`))
		req.Header.Set("Authorization", "Bearer wrong")
		rec := httptest.NewRecorder()
		server.Handler().ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, `Bearer realm="nutrient-engine"`, rec.Header().Get("WWW-Authenticate"))
	})

	t.Run("health endpoint uses cached results", func(t *testing.T) {
		server, fake := newTestServer(t)
		require.NoError(t, server.checkHealthWithCache(context.Background()))

		fake.setHealthError(errors.New("database is down"))

		rec := httptest.NewRecorder()
		server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestServer_handleRecordMealEntry(t *testing.T) {
	t.Run("records entry and returns deltas", func(t *testing.T) {
		server, fake := newTestServer(t)

		result, err := server.handleRecordMealEntry(context.Background(), callRequest("record_meal_entry", map[string]any{
			"user_id":   float64(1),
			"item_type": "dish",
			"item_id":   float64(20),
			"weight_g":  150.5,
			"date":      "2024-03-09",
			"meal_type": "dinner",
		}))
		require.NoError(t, err)
		assert.False(t, result.IsError)

		assert.Equal(t, int64(1), fake.lastInput.UserID)
		assert.Equal(t, types.ItemDish, fake.lastInput.ItemType)
		assert.Equal(t, int64(20), fake.lastInput.ItemID)
		assert.Equal(t, 150.5, fake.lastInput.WeightG)
		assert.Equal(t, types.MealDinner, fake.lastInput.MealType)
		assert.Equal(t, time.Date(2024, 3, 9, 0, 0, 0, 0, time.UTC), fake.lastInput.Date)

		structured, ok := result.StructuredContent.(*engine.RecordResult)
		require.True(t, ok)
		assert.Equal(t, "e-1", structured.EntryID)
		assert.Contains(t, resultText(t, result), `"per_category_deltas"`)
	})

	t.Run("defaults item type to food and date to today", func(t *testing.T) {
		server, fake := newTestServer(t)

		result, err := server.handleRecordMealEntry(context.Background(), callRequest("record_meal_entry", map[string]any{
			"user_id":  float64(1),
			"item_id":  float64(10),
			"weight_g": float64(100),
		}))
		require.NoError(t, err)
		assert.False(t, result.IsError)
		assert.Equal(t, types.ItemFood, fake.lastInput.ItemType)
		assert.Empty(t, fake.lastInput.MealType)
		assert.True(t, fake.lastInput.Date.IsZero())
	})

	tests := []struct {
		name string
		args map[string]any
		want string
	}{
		{"missing user", map[string]any{"item_id": float64(1), "weight_g": float64(1)}, "user_id"},
		{"fractional item id", map[string]any{"user_id": float64(1), "item_id": 1.5, "weight_g": float64(1)}, "item_id must be a positive integer"},
		{"user id past int64", map[string]any{"user_id": float64(math.MaxInt64), "item_id": float64(1), "weight_g": float64(1)}, "user_id must be a positive integer"},
		{"missing weight", map[string]any{"user_id": float64(1), "item_id": float64(1)}, "weight_g"},
		{"bad date", map[string]any{"user_id": float64(1), "item_id": float64(1), "weight_g": float64(1), "date": "10/03/2024"}, "invalid date"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server, _ := newTestServer(t)

			result, err := server.handleRecordMealEntry(context.Background(), callRequest("record_meal_entry", tt.args))
			require.NoError(t, err)
			assert.True(t, result.IsError)
			assert.Contains(t, resultText(t, result), tt.want)
		})
	}
}

func TestServer_toolErrors(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		want    string
		notWant string
	}{
		{
			name:    "validation errors are returned verbatim",
			err:     &engine.ValidationError{Field: "weight_g", Reason: "must be a positive number of grams, got 0"},
			want:    "weight_g: must be a positive number of grams",
			notWant: "failed",
		},
		{
			name: "internal errors are wrapped with the tool name",
			err:  errors.New("connection reset"),
			want: "remove_meal_entry failed: connection reset",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server, fake := newTestServer(t)
			fake.err = tt.err

			result, err := server.handleRemoveMealEntry(context.Background(), callRequest("remove_meal_entry", map[string]any{
				"entry_id": "e-1",
			}))
			require.NoError(t, err)
			assert.True(t, result.IsError)
			text := resultText(t, result)
			assert.Contains(t, text, tt.want)
			if tt.notWant != "" {
				assert.NotContains(t, text, tt.notWant)
			}
		})
	}
}

func TestServer_handleGetDailyIntake(t *testing.T) {
	server, fake := newTestServer(t)

	result, err := server.handleGetDailyIntake(context.Background(), callRequest("get_daily_intake", map[string]any{
		"user_id": float64(7),
	}))
	require.NoError(t, err)
	require.False(t, result.IsError)
	assert.True(t, fake.lastDay.IsZero())

	response, ok := result.StructuredContent.(DailyIntakeResponse)
	require.True(t, ok)
	assert.Equal(t, int64(7), response.UserID)
	assert.Equal(t, "2024-03-10", response.Date)
	assert.Equal(t, 1, response.Count)
	assert.Equal(t, 45.0, response.Nutrients[0].ConsumedAmount)
}

func TestServer_handleGetNutrientSources(t *testing.T) {
	server, fake := newTestServer(t)

	result, err := server.handleGetNutrientSources(context.Background(), callRequest("get_nutrient_sources", map[string]any{
		"user_id": float64(7), "date": "2024-03-09",
	}))
	require.NoError(t, err)
	require.False(t, result.IsError)
	assert.Equal(t, time.Date(2024, 3, 9, 0, 0, 0, 0, time.UTC), fake.lastDay)

	response, ok := result.StructuredContent.(NutrientSourcesResponse)
	require.True(t, ok)
	assert.Equal(t, int64(7), response.UserID)
	assert.Equal(t, "2024-03-09", response.Date)
	require.Len(t, response.Categories, 1)
	assert.Equal(t, "Orange", response.Categories[0].Sources[0].ItemName)
	assert.Contains(t, resultText(t, result), `"contributed_amount": 45`)
	assert.Contains(t, resultText(t, result), `"meal_type": "breakfast"`)

	result, err = server.handleGetNutrientSources(context.Background(), callRequest("get_nutrient_sources", map[string]any{
		"user_id": float64(0),
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestServer_recommendationHandlers(t *testing.T) {
	ctx := context.Background()
	server, fake := newTestServer(t)

	result, err := server.handleGetFoodRecommendation(ctx, callRequest("get_food_recommendation", map[string]any{
		"user_id": float64(1), "food_id": float64(10),
	}))
	require.NoError(t, err)
	require.False(t, result.IsError)
	assert.Equal(t, []int64{1, 10}, fake.lastIDs)
	assert.Contains(t, resultText(t, result), `"avoid"`)

	result, err = server.handleGetDishRecommendation(ctx, callRequest("get_dish_recommendation", map[string]any{
		"user_id": float64(1), "dish_id": float64(20),
	}))
	require.NoError(t, err)
	require.False(t, result.IsError)
	assert.Equal(t, []int64{1, 20}, fake.lastIDs)

	result, err = server.handleGetDrinkRecommendation(ctx, callRequest("get_drink_recommendation", map[string]any{
		"user_id": float64(1), "drink_id": float64(30),
	}))
	require.NoError(t, err)
	require.False(t, result.IsError)
	assert.Equal(t, []int64{1, 30}, fake.lastIDs)

	result, err = server.handleGetDrinkRecommendation(ctx, callRequest("get_drink_recommendation", map[string]any{
		"user_id": float64(1),
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestServer_maintenanceHandlers(t *testing.T) {
	ctx := context.Background()
	server, fake := newTestServer(t)

	result, err := server.handleRepairDailyTotals(ctx, callRequest("repair_daily_totals", map[string]any{
		"user_id": float64(3), "date": "2024-03-01",
	}))
	require.NoError(t, err)
	require.False(t, result.IsError)
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), fake.lastDay)
	response, ok := result.StructuredContent.(RepairDailyTotalsResponse)
	require.True(t, ok)
	assert.Equal(t, "2024-03-01", response.Date)
	assert.True(t, response.Repaired)

	result, err = server.handleCheckDailyTotals(ctx, callRequest("check_daily_totals", map[string]any{
		"user_id": float64(3),
	}))
	require.NoError(t, err)
	require.False(t, result.IsError)
	report, ok := result.StructuredContent.(*intake.DriftReport)
	require.True(t, ok)
	assert.False(t, report.Consistent)
	assert.Len(t, report.Drifts, 1)
}
