package recommend

import (
	"context"
	"log/slog"
	"sort"
	"strconv"
	"time"

	"github.com/noot-app/nutrient-engine/internal/requirement"
	"github.com/noot-app/nutrient-engine/internal/types"
)

// Source is the data the filter reads
type Source interface {
	UserConditions(ctx context.Context, userID int64) ([]types.UserHealthCondition, error)
	FoodRecommendations(ctx context.Context, conditionIDs []int64, foodIDs []int64) ([]types.ConditionFoodRecommendation, error)
}

// FoodResult classifies a single food
type FoodResult struct {
	FoodID  int64        `json:"food_id"`
	Status  types.Status `json:"status"`
	Reasons []string     `json:"reasons"`
}

// CompositeResult classifies a dish or drink. ContributingFoodIDs are the
// ingredients whose own status equals the composite's status.
type CompositeResult struct {
	Type                types.ItemType `json:"item_type"`
	ID                  int64          `json:"id"`
	Status              types.Status   `json:"status"`
	ContributingFoodIDs []int64        `json:"contributing_food_ids"`
	Reasons             []string       `json:"reasons"`
}

// Filter classifies foods and composites as avoid, recommend or neutral for
// a user. Results are computed on demand and never stored.
type Filter struct {
	src Source
	log *slog.Logger
}

// NewFilter creates a filter over src
func NewFilter(src Source, logger *slog.Logger) *Filter {
	return &Filter{src: src, log: logger}
}

// Food classifies one food for the conditions in effect on day
func (f *Filter) Food(ctx context.Context, userID, foodID int64, day time.Time) (*FoodResult, error) {
	results, err := f.classify(ctx, userID, []int64{foodID}, day)
	if err != nil {
		return nil, err
	}
	r := results[foodID]
	return &r, nil
}

// Composite classifies a dish or drink from its ingredients: avoid if any
// ingredient is avoid, else recommend if any is recommend, else neutral
func (f *Filter) Composite(ctx context.Context, userID int64, c *types.Composite, day time.Time) (*CompositeResult, error) {
	var foodIDs []int64
	seen := make(map[int64]bool)
	for _, ing := range c.Ingredients {
		if !seen[ing.FoodID] {
			seen[ing.FoodID] = true
			foodIDs = append(foodIDs, ing.FoodID)
		}
	}

	results, err := f.classify(ctx, userID, foodIDs, day)
	if err != nil {
		return nil, err
	}

	out := &CompositeResult{Type: c.Type, ID: c.ID, ContributingFoodIDs: []int64{}, Reasons: []string{}}
	for _, id := range foodIDs {
		out.Status = out.Status.Combine(results[id].Status)
	}
	if out.Status != types.StatusNeutral {
		reasons := make(map[string]bool)
		for _, id := range foodIDs {
			r := results[id]
			if r.Status != out.Status {
				continue
			}
			out.ContributingFoodIDs = append(out.ContributingFoodIDs, id)
			for _, name := range r.Reasons {
				reasons[name] = true
			}
		}
		sort.Slice(out.ContributingFoodIDs, func(i, j int) bool { return out.ContributingFoodIDs[i] < out.ContributingFoodIDs[j] })
		out.Reasons = sortedKeys(reasons)
	}

	f.log.Debug("Composite classified",
		"user_id", userID,
		"item_type", c.Type,
		"item_id", c.ID,
		"status", out.Status.String(),
		"contributing", len(out.ContributingFoodIDs))
	return out, nil
}

// classify resolves the status of each food in one round trip
func (f *Filter) classify(ctx context.Context, userID int64, foodIDs []int64, day time.Time) (map[int64]FoodResult, error) {
	out := make(map[int64]FoodResult, len(foodIDs))
	for _, id := range foodIDs {
		out[id] = FoodResult{FoodID: id, Reasons: []string{}}
	}

	conditions, err := f.src.UserConditions(ctx, userID)
	if err != nil {
		return nil, err
	}
	active := requirement.ActiveConditionIDs(conditions, day)
	if len(active) == 0 || len(foodIDs) == 0 {
		return out, nil
	}

	names := make(map[int64]string, len(conditions))
	for _, c := range conditions {
		if c.ConditionName != "" {
			names[c.ConditionID] = c.ConditionName
		}
	}

	recs, err := f.src.FoodRecommendations(ctx, active, foodIDs)
	if err != nil {
		return nil, err
	}

	byFood := make(map[int64][]types.ConditionFoodRecommendation)
	for _, r := range recs {
		byFood[r.FoodID] = append(byFood[r.FoodID], r)
	}

	for id, rs := range byFood {
		status := types.StatusNeutral
		for _, r := range rs {
			status = status.Combine(r.Type)
		}
		reasons := make(map[string]bool)
		if status != types.StatusNeutral {
			for _, r := range rs {
				if r.Type == status {
					reasons[conditionName(names, r.ConditionID)] = true
				}
			}
		}
		out[id] = FoodResult{FoodID: id, Status: status, Reasons: sortedKeys(reasons)}
	}
	return out, nil
}

func conditionName(names map[int64]string, id int64) string {
	if name, ok := names[id]; ok {
		return name
	}
	return "condition " + strconv.FormatInt(id, 10)
}

func sortedKeys(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
