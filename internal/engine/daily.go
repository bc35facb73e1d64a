package engine

import (
	"context"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/noot-app/nutrient-engine/internal/requirement"
	"github.com/noot-app/nutrient-engine/internal/types"
)

// IntakeRow joins a day's consumed amount with the personalized target.
// TargetAmount is nil when the category has no defined requirement, and
// PercentOfTarget is omitted when there is no non-zero target.
type IntakeRow struct {
	CategoryType    types.CategoryType `json:"category_type"`
	CategoryID      int64              `json:"category_id"`
	Code            string             `json:"code,omitempty"`
	Name            string             `json:"name,omitempty"`
	ConsumedAmount  float64            `json:"consumed_amount"`
	TargetAmount    *float64           `json:"target_amount"`
	Unit            string             `json:"unit"`
	PercentOfTarget *float64           `json:"percent_of_target,omitempty"`
}

// Ref returns the row's category
func (r IntakeRow) Ref() types.CategoryRef {
	return types.CategoryRef{Type: r.CategoryType, ID: r.CategoryID}
}

// GetDailyIntake returns one row per category that has a consumed total or a
// target for the day, ordered by category
func (e *Engine) GetDailyIntake(ctx context.Context, userID int64, day time.Time) ([]IntakeRow, error) {
	start := time.Now()
	day = e.dayOrToday(day)

	if err := e.validateUser(ctx, userID); err != nil {
		return nil, err
	}

	var (
		totals  []types.DailyCategoryTotal
		targets []requirement.Target
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		totals, err = e.agg.Totals(gctx, userID, day)
		return err
	})
	g.Go(func() error {
		var err error
		targets, err = e.calc.Targets(gctx, userID, day)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, notFoundAs(err, "user_id", "unknown user %d", userID)
	}

	rows := e.joinIntake(totals, targets)
	e.log.Debug("Daily intake computed",
		"user_id", userID,
		"date", types.FormatDate(day),
		"rows", len(rows),
		"duration", time.Since(start))
	return rows, nil
}

func (e *Engine) joinIntake(totals []types.DailyCategoryTotal, targets []requirement.Target) []IntakeRow {
	cat := e.catalogs.Load()
	byRef := make(map[types.CategoryRef]*IntakeRow)

	row := func(ref types.CategoryRef) *IntakeRow {
		if r, ok := byRef[ref]; ok {
			return r
		}
		r := &IntakeRow{CategoryType: ref.Type, CategoryID: ref.ID}
		if c, ok := cat.Category(ref); ok {
			r.Code = c.Code
			r.Name = c.Name
			r.Unit = c.Unit
		}
		byRef[ref] = r
		return r
	}

	for _, t := range totals {
		row(t.Ref()).ConsumedAmount = t.ConsumedAmount
	}
	for _, t := range targets {
		r := row(t.CategoryRef)
		amount := t.Amount
		r.TargetAmount = &amount
		if r.Unit == "" {
			r.Unit = t.Unit
		}
	}

	out := make([]IntakeRow, 0, len(byRef))
	for _, r := range byRef {
		if r.TargetAmount != nil && *r.TargetAmount > 0 {
			pct := r.ConsumedAmount / *r.TargetAmount * 100
			r.PercentOfTarget = &pct
		}
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ref().Less(out[j].Ref()) })
	return out
}

// GroupSummary aggregates the rows of one category type
type GroupSummary struct {
	CategoryType   types.CategoryType `json:"category_type"`
	Categories     int                `json:"categories"`
	WithTarget     int                `json:"with_target"`
	Achieved       int                `json:"achieved"`
	AveragePercent *float64           `json:"average_percent,omitempty"`
}

// NutrientSummary is a per-type digest of a day's intake
type NutrientSummary struct {
	UserID        int64          `json:"user_id"`
	Date          string         `json:"date"`
	Groups        []GroupSummary `json:"groups"`
	MostDeficient []IntakeRow    `json:"most_deficient"`
}

const mostDeficientCount = 3

// GetNutrientSummary groups the day's intake by category type and lists the
// categories furthest below target
func (e *Engine) GetNutrientSummary(ctx context.Context, userID int64, day time.Time) (*NutrientSummary, error) {
	day = e.dayOrToday(day)
	rows, err := e.GetDailyIntake(ctx, userID, day)
	if err != nil {
		return nil, err
	}
	return summarize(userID, day, rows), nil
}

func summarize(userID int64, day time.Time, rows []IntakeRow) *NutrientSummary {
	s := &NutrientSummary{UserID: userID, Date: types.FormatDate(day), Groups: []GroupSummary{}, MostDeficient: []IntakeRow{}}

	sums := make(map[types.CategoryType]float64)
	groups := make(map[types.CategoryType]*GroupSummary)
	var withPercent []IntakeRow
	for _, r := range rows {
		g, ok := groups[r.CategoryType]
		if !ok {
			g = &GroupSummary{CategoryType: r.CategoryType}
			groups[r.CategoryType] = g
		}
		g.Categories++
		if r.PercentOfTarget == nil {
			continue
		}
		g.WithTarget++
		sums[r.CategoryType] += *r.PercentOfTarget
		if *r.PercentOfTarget >= 100 {
			g.Achieved++
		}
		withPercent = append(withPercent, r)
	}

	for _, ct := range types.CategoryTypes {
		g, ok := groups[ct]
		if !ok {
			continue
		}
		if g.WithTarget > 0 {
			avg := sums[ct] / float64(g.WithTarget)
			g.AveragePercent = &avg
		}
		s.Groups = append(s.Groups, *g)
	}

	sort.SliceStable(withPercent, func(i, j int) bool {
		return *withPercent[i].PercentOfTarget < *withPercent[j].PercentOfTarget
	})
	for _, r := range withPercent {
		if len(s.MostDeficient) == mostDeficientCount || *r.PercentOfTarget >= 100 {
			break
		}
		s.MostDeficient = append(s.MostDeficient, r)
	}
	return s
}
