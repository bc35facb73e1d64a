package mcpgo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/noot-app/nutrient-engine/internal/engine"
	"github.com/noot-app/nutrient-engine/internal/intake"
	"github.com/noot-app/nutrient-engine/internal/recommend"
	"github.com/noot-app/nutrient-engine/internal/types"
)

// RemoveMealEntryResponse represents the response from remove_meal_entry
type RemoveMealEntryResponse struct {
	EntryID string `json:"entry_id"`
	Removed bool   `json:"removed"`
}

// DailyIntakeResponse represents the response from get_daily_intake
type DailyIntakeResponse struct {
	UserID    int64              `json:"user_id"`
	Date      string             `json:"date"`
	Count     int                `json:"count"`
	Nutrients []engine.IntakeRow `json:"nutrients"`
}

// RepairDailyTotalsResponse represents the response from repair_daily_totals
type RepairDailyTotalsResponse struct {
	UserID   int64  `json:"user_id"`
	Date     string `json:"date"`
	Repaired bool   `json:"repaired"`
}

// NutrientSourcesResponse represents the response from get_nutrient_sources
type NutrientSourcesResponse struct {
	UserID     int64                    `json:"user_id"`
	Date       string                   `json:"date"`
	Categories []engine.CategorySources `json:"categories"`
}

func userParam() mcp.ToolOption {
	return mcp.WithNumber("user_id",
		mcp.Required(),
		mcp.Min(1),
		mcp.Description("Identifier of the user profile"),
	)
}

func dateParam() mcp.ToolOption {
	return mcp.WithString("date",
		mcp.Description("Calendar day as YYYY-MM-DD (default: today in the server timezone)"),
		mcp.Pattern(`^\d{4}-\d{2}-\d{2}$`),
	)
}

func (s *Server) addTools() {
	recordTool := mcp.NewTool("record_meal_entry",
		mcp.WithDescription("Record that a user consumed a weight of a food, dish or drink on a day. Updates the user's daily nutrient totals and returns the per-category amounts added."),
		userParam(),
		mcp.WithString("item_type",
			mcp.Description("Kind of item consumed"),
			mcp.Enum(string(types.ItemFood), string(types.ItemDish), string(types.ItemDrink)),
			mcp.DefaultString(string(types.ItemFood)),
		),
		mcp.WithNumber("item_id",
			mcp.Required(),
			mcp.Min(1),
			mcp.Description("Identifier of the food, dish or drink"),
		),
		mcp.WithNumber("weight_g",
			mcp.Required(),
			mcp.Description("Consumed weight in grams. Must be greater than zero."),
		),
		mcp.WithString("meal_type",
			mcp.Description("Meal the entry belongs to (optional)"),
			mcp.Enum(string(types.MealBreakfast), string(types.MealLunch), string(types.MealDinner), string(types.MealSnack)),
		),
		dateParam(),
		mcp.WithOutputSchema[engine.RecordResult](),
	)
	s.mcpServer.AddTool(recordTool, s.handleRecordMealEntry)

	removeTool := mcp.NewTool("remove_meal_entry",
		mcp.WithDescription("Delete a meal entry and subtract its contribution from the daily totals"),
		mcp.WithString("entry_id",
			mcp.Required(),
			mcp.MinLength(1),
			mcp.Description("Identifier returned by record_meal_entry"),
		),
		mcp.WithOutputSchema[RemoveMealEntryResponse](),
	)
	s.mcpServer.AddTool(removeTool, s.handleRemoveMealEntry)

	updateTool := mcp.NewTool("update_meal_entry",
		mcp.WithDescription("Change the item or weight of an existing meal entry. The old contribution is reversed and the new one applied."),
		mcp.WithString("entry_id",
			mcp.Required(),
			mcp.MinLength(1),
			mcp.Description("Identifier returned by record_meal_entry"),
		),
		mcp.WithString("item_type",
			mcp.Description("Kind of item consumed"),
			mcp.Enum(string(types.ItemFood), string(types.ItemDish), string(types.ItemDrink)),
			mcp.DefaultString(string(types.ItemFood)),
		),
		mcp.WithNumber("item_id",
			mcp.Required(),
			mcp.Min(1),
			mcp.Description("Identifier of the food, dish or drink"),
		),
		mcp.WithNumber("weight_g",
			mcp.Required(),
			mcp.Description("Consumed weight in grams. Must be greater than zero."),
		),
		mcp.WithOutputSchema[engine.RecordResult](),
	)
	s.mcpServer.AddTool(updateTool, s.handleUpdateMealEntry)

	intakeTool := mcp.NewTool("get_daily_intake",
		mcp.WithDescription("List every nutrient category the user consumed or has a target for on a day, with consumed amount, personalized target and percent of target"),
		userParam(),
		dateParam(),
		mcp.WithOutputSchema[DailyIntakeResponse](),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithReadOnlyHintAnnotation(true),
	)
	s.mcpServer.AddTool(intakeTool, s.handleGetDailyIntake)

	summaryTool := mcp.NewTool("get_nutrient_summary",
		mcp.WithDescription("Summarize a user's day per category type and list the most deficient categories"),
		userParam(),
		dateParam(),
		mcp.WithOutputSchema[engine.NutrientSummary](),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithReadOnlyHintAnnotation(true),
	)
	s.mcpServer.AddTool(summaryTool, s.handleGetNutrientSummary)

	sourcesTool := mcp.NewTool("get_nutrient_sources",
		mcp.WithDescription("Break a user's day down per nutrient category into the meal entries that contributed, with item name, meal type, weight and contributed amount"),
		userParam(),
		dateParam(),
		mcp.WithOutputSchema[NutrientSourcesResponse](),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithReadOnlyHintAnnotation(true),
	)
	s.mcpServer.AddTool(sourcesTool, s.handleGetNutrientSources)

	foodTool := mcp.NewTool("get_food_recommendation",
		mcp.WithDescription("Classify a food as recommend, avoid or neutral for the user's health conditions in effect today"),
		userParam(),
		mcp.WithNumber("food_id",
			mcp.Required(),
			mcp.Min(1),
			mcp.Description("Identifier of the food"),
		),
		mcp.WithOutputSchema[recommend.FoodResult](),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithReadOnlyHintAnnotation(true),
	)
	s.mcpServer.AddTool(foodTool, s.handleGetFoodRecommendation)

	dishTool := mcp.NewTool("get_dish_recommendation",
		mcp.WithDescription("Classify a dish from its ingredients for the user's health conditions in effect today"),
		userParam(),
		mcp.WithNumber("dish_id",
			mcp.Required(),
			mcp.Min(1),
			mcp.Description("Identifier of the dish"),
		),
		mcp.WithOutputSchema[recommend.CompositeResult](),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithReadOnlyHintAnnotation(true),
	)
	s.mcpServer.AddTool(dishTool, s.handleGetDishRecommendation)

	drinkTool := mcp.NewTool("get_drink_recommendation",
		mcp.WithDescription("Classify a drink from its ingredients for the user's health conditions in effect today"),
		userParam(),
		mcp.WithNumber("drink_id",
			mcp.Required(),
			mcp.Min(1),
			mcp.Description("Identifier of the drink"),
		),
		mcp.WithOutputSchema[recommend.CompositeResult](),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithReadOnlyHintAnnotation(true),
	)
	s.mcpServer.AddTool(drinkTool, s.handleGetDrinkRecommendation)

	repairTool := mcp.NewTool("repair_daily_totals",
		mcp.WithDescription("Rebuild a user's daily totals from the recorded meal entries"),
		userParam(),
		dateParam(),
		mcp.WithOutputSchema[RepairDailyTotalsResponse](),
		mcp.WithIdempotentHintAnnotation(true),
	)
	s.mcpServer.AddTool(repairTool, s.handleRepairDailyTotals)

	checkTool := mcp.NewTool("check_daily_totals",
		mcp.WithDescription("Compare a user's stored daily totals with the recorded meal entries and report any drift without changing anything"),
		userParam(),
		dateParam(),
		mcp.WithOutputSchema[intake.DriftReport](),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithReadOnlyHintAnnotation(true),
	)
	s.mcpServer.AddTool(checkTool, s.handleCheckDailyTotals)
}

func (s *Server) handleRecordMealEntry(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s.log.Debug("handleRecordMealEntry: Starting tool call", "arguments", request.GetArguments())

	userID, err := requireID(request, "user_id")
	if err != nil {
		return s.paramError("record_meal_entry", err), nil
	}
	itemID, err := requireID(request, "item_id")
	if err != nil {
		return s.paramError("record_meal_entry", err), nil
	}
	weight, err := request.RequireFloat("weight_g")
	if err != nil {
		return s.paramError("record_meal_entry", err), nil
	}
	day, err := optionalDate(request)
	if err != nil {
		return s.paramError("record_meal_entry", err), nil
	}

	result, err := s.engine.RecordMealEntry(ctx, engine.MealEntryInput{
		UserID:   userID,
		Date:     day,
		MealType: types.MealType(request.GetString("meal_type", "")),
		ItemType: types.ItemType(request.GetString("item_type", string(types.ItemFood))),
		ItemID:   itemID,
		WeightG:  weight,
	})
	if err != nil {
		return s.toolError("record_meal_entry", err), nil
	}

	s.log.Debug("handleRecordMealEntry: Recorded entry",
		"entry_id", result.EntryID,
		"deltas", len(result.Deltas))

	return s.structured("record_meal_entry", result), nil
}

func (s *Server) handleRemoveMealEntry(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s.log.Debug("handleRemoveMealEntry: Starting tool call", "arguments", request.GetArguments())

	entryID, err := request.RequireString("entry_id")
	if err != nil {
		return s.paramError("remove_meal_entry", err), nil
	}

	if err := s.engine.RemoveMealEntry(ctx, entryID); err != nil {
		return s.toolError("remove_meal_entry", err), nil
	}

	return s.structured("remove_meal_entry", RemoveMealEntryResponse{EntryID: entryID, Removed: true}), nil
}

func (s *Server) handleUpdateMealEntry(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s.log.Debug("handleUpdateMealEntry: Starting tool call", "arguments", request.GetArguments())

	entryID, err := request.RequireString("entry_id")
	if err != nil {
		return s.paramError("update_meal_entry", err), nil
	}
	itemID, err := requireID(request, "item_id")
	if err != nil {
		return s.paramError("update_meal_entry", err), nil
	}
	weight, err := request.RequireFloat("weight_g")
	if err != nil {
		return s.paramError("update_meal_entry", err), nil
	}
	itemType := types.ItemType(request.GetString("item_type", string(types.ItemFood)))

	result, err := s.engine.UpdateMealEntry(ctx, entryID, itemType, itemID, weight)
	if err != nil {
		return s.toolError("update_meal_entry", err), nil
	}

	return s.structured("update_meal_entry", result), nil
}

func (s *Server) handleGetDailyIntake(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s.log.Debug("handleGetDailyIntake: Starting tool call", "arguments", request.GetArguments())

	userID, day, err := userDayArgs(request)
	if err != nil {
		return s.paramError("get_daily_intake", err), nil
	}

	rows, err := s.engine.GetDailyIntake(ctx, userID, day)
	if err != nil {
		return s.toolError("get_daily_intake", err), nil
	}

	response := DailyIntakeResponse{
		UserID:    userID,
		Date:      types.FormatDate(s.effectiveDay(day)),
		Count:     len(rows),
		Nutrients: rows,
	}

	s.log.Debug("handleGetDailyIntake: Returning structured result",
		"user_id", userID,
		"date", response.Date,
		"count", response.Count)

	return s.structured("get_daily_intake", response), nil
}

func (s *Server) handleGetNutrientSummary(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s.log.Debug("handleGetNutrientSummary: Starting tool call", "arguments", request.GetArguments())

	userID, day, err := userDayArgs(request)
	if err != nil {
		return s.paramError("get_nutrient_summary", err), nil
	}

	summary, err := s.engine.GetNutrientSummary(ctx, userID, day)
	if err != nil {
		return s.toolError("get_nutrient_summary", err), nil
	}

	return s.structured("get_nutrient_summary", summary), nil
}

func (s *Server) handleGetNutrientSources(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s.log.Debug("handleGetNutrientSources: Starting tool call", "arguments", request.GetArguments())

	userID, day, err := userDayArgs(request)
	if err != nil {
		return s.paramError("get_nutrient_sources", err), nil
	}

	categories, err := s.engine.GetNutrientSources(ctx, userID, day)
	if err != nil {
		return s.toolError("get_nutrient_sources", err), nil
	}

	return s.structured("get_nutrient_sources", NutrientSourcesResponse{
		UserID:     userID,
		Date:       types.FormatDate(s.effectiveDay(day)),
		Categories: categories,
	}), nil
}

func (s *Server) handleGetFoodRecommendation(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s.log.Debug("handleGetFoodRecommendation: Starting tool call", "arguments", request.GetArguments())

	userID, err := requireID(request, "user_id")
	if err != nil {
		return s.paramError("get_food_recommendation", err), nil
	}
	foodID, err := requireID(request, "food_id")
	if err != nil {
		return s.paramError("get_food_recommendation", err), nil
	}

	result, err := s.engine.GetFoodRecommendation(ctx, userID, foodID)
	if err != nil {
		return s.toolError("get_food_recommendation", err), nil
	}

	return s.structured("get_food_recommendation", result), nil
}

func (s *Server) handleGetDishRecommendation(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s.log.Debug("handleGetDishRecommendation: Starting tool call", "arguments", request.GetArguments())

	userID, err := requireID(request, "user_id")
	if err != nil {
		return s.paramError("get_dish_recommendation", err), nil
	}
	dishID, err := requireID(request, "dish_id")
	if err != nil {
		return s.paramError("get_dish_recommendation", err), nil
	}

	result, err := s.engine.GetDishRecommendation(ctx, userID, dishID)
	if err != nil {
		return s.toolError("get_dish_recommendation", err), nil
	}

	return s.structured("get_dish_recommendation", result), nil
}

func (s *Server) handleGetDrinkRecommendation(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s.log.Debug("handleGetDrinkRecommendation: Starting tool call", "arguments", request.GetArguments())

	userID, err := requireID(request, "user_id")
	if err != nil {
		return s.paramError("get_drink_recommendation", err), nil
	}
	drinkID, err := requireID(request, "drink_id")
	if err != nil {
		return s.paramError("get_drink_recommendation", err), nil
	}

	result, err := s.engine.GetDrinkRecommendation(ctx, userID, drinkID)
	if err != nil {
		return s.toolError("get_drink_recommendation", err), nil
	}

	return s.structured("get_drink_recommendation", result), nil
}

func (s *Server) handleRepairDailyTotals(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s.log.Debug("handleRepairDailyTotals: Starting tool call", "arguments", request.GetArguments())

	userID, day, err := userDayArgs(request)
	if err != nil {
		return s.paramError("repair_daily_totals", err), nil
	}

	if err := s.engine.RepairDailyTotals(ctx, userID, day); err != nil {
		return s.toolError("repair_daily_totals", err), nil
	}

	return s.structured("repair_daily_totals", RepairDailyTotalsResponse{
		UserID:   userID,
		Date:     types.FormatDate(s.effectiveDay(day)),
		Repaired: true,
	}), nil
}

func (s *Server) handleCheckDailyTotals(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s.log.Debug("handleCheckDailyTotals: Starting tool call", "arguments", request.GetArguments())

	userID, day, err := userDayArgs(request)
	if err != nil {
		return s.paramError("check_daily_totals", err), nil
	}

	report, err := s.engine.CheckDailyTotals(ctx, userID, day)
	if err != nil {
		return s.toolError("check_daily_totals", err), nil
	}

	if !report.Consistent {
		s.log.Warn("Daily totals drifted from entry log",
			"user_id", userID,
			"date", types.FormatDate(report.Date),
			"drifts", len(report.Drifts))
	}

	return s.structured("check_daily_totals", report), nil
}

func (s *Server) effectiveDay(day time.Time) time.Time {
	if day.IsZero() {
		return s.engine.Today()
	}
	return day
}

// structured returns both structured content and an indented JSON text fallback
func (s *Server) structured(tool string, response any) *mcp.CallToolResult {
	responseJSON, err := json.MarshalIndent(response, "", "  ")
	if err != nil {
		s.log.Error("Failed to marshal response", "tool", tool, "error", err)
		return mcp.NewToolResultError(fmt.Sprintf("Failed to marshal response: %v", err))
	}
	return mcp.NewToolResultStructured(response, string(responseJSON))
}

func (s *Server) paramError(tool string, err error) *mcp.CallToolResult {
	s.log.Warn("Invalid tool parameters", "tool", tool, "error", err)
	return mcp.NewToolResultError(fmt.Sprintf("Invalid parameters: %v", err))
}

// toolError reports caller mistakes verbatim and wraps everything else
func (s *Server) toolError(tool string, err error) *mcp.CallToolResult {
	if errors.Is(err, engine.ErrValidation) {
		s.log.Warn("Tool call rejected", "tool", tool, "error", err)
		return mcp.NewToolResultError(err.Error())
	}
	s.log.Error("Tool call failed", "tool", tool, "error", err)
	return mcp.NewToolResultError(fmt.Sprintf("%s failed: %v", tool, err))
}

func requireID(request mcp.CallToolRequest, name string) (int64, error) {
	v, err := request.RequireFloat(name)
	if err != nil {
		return 0, err
	}
	if v < 1 || v != math.Trunc(v) || v >= math.MaxInt64 {
		return 0, fmt.Errorf("%s must be a positive integer, got %v", name, v)
	}
	return int64(v), nil
}

func optionalDate(request mcp.CallToolRequest) (time.Time, error) {
	raw := request.GetString("date", "")
	if raw == "" {
		return time.Time{}, nil
	}
	return types.ParseDate(raw)
}

func userDayArgs(request mcp.CallToolRequest) (int64, time.Time, error) {
	userID, err := requireID(request, "user_id")
	if err != nil {
		return 0, time.Time{}, err
	}
	day, err := optionalDate(request)
	if err != nil {
		return 0, time.Time{}, err
	}
	return userID, day, nil
}
