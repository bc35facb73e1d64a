package requirement

import (
	"errors"
	"fmt"
	"sort"

	"github.com/noot-app/nutrient-engine/internal/types"
)

// ErrInvalidTable is returned when RDA rows do not partition age space
var ErrInvalidTable = errors.New("invalid requirement table")

type bucket struct {
	ref       types.CategoryRef
	sex       types.Sex
	lifeStage types.LifeStage
}

// Table indexes base RDA rows by category, sex and life stage. Within one
// bucket the inclusive age ranges never overlap, so at most one row covers
// any age.
type Table struct {
	rows map[bucket][]types.BaseRequirement
	refs []types.CategoryRef
}

// NewTable validates and indexes rows
func NewTable(rows []types.BaseRequirement) (*Table, error) {
	t := &Table{rows: make(map[bucket][]types.BaseRequirement)}
	seen := make(map[types.CategoryRef]bool)

	for _, r := range rows {
		if !r.CategoryType.Valid() {
			return nil, fmt.Errorf("%w: unknown category type %q", ErrInvalidTable, r.CategoryType)
		}
		if r.AgeMin > r.AgeMax {
			return nil, fmt.Errorf("%w: %s age range %d-%d is empty", ErrInvalidTable, r.Ref(), r.AgeMin, r.AgeMax)
		}
		if r.Amount < 0 {
			return nil, fmt.Errorf("%w: %s has negative amount", ErrInvalidTable, r.Ref())
		}
		sex := r.Sex
		if sex == "" {
			sex = types.SexAny
		}
		r.Sex = sex
		b := bucket{ref: r.Ref(), sex: sex, lifeStage: r.LifeStage}
		t.rows[b] = append(t.rows[b], r)
		if !seen[r.Ref()] {
			seen[r.Ref()] = true
			t.refs = append(t.refs, r.Ref())
		}
	}

	for b, rs := range t.rows {
		sort.Slice(rs, func(i, j int) bool { return rs[i].AgeMin < rs[j].AgeMin })
		for i := 1; i < len(rs); i++ {
			if rs[i].AgeMin <= rs[i-1].AgeMax {
				return nil, fmt.Errorf("%w: %s (%s%s) ranges %d-%d and %d-%d overlap",
					ErrInvalidTable, b.ref, b.sex, lifeStageSuffix(b.lifeStage),
					rs[i-1].AgeMin, rs[i-1].AgeMax, rs[i].AgeMin, rs[i].AgeMax)
			}
		}
	}

	sort.Slice(t.refs, func(i, j int) bool { return t.refs[i].Less(t.refs[j]) })
	return t, nil
}

func lifeStageSuffix(ls types.LifeStage) string {
	if ls == types.LifeStageNone {
		return ""
	}
	return ", " + string(ls)
}

// Refs returns every category with at least one RDA row
func (t *Table) Refs() []types.CategoryRef {
	return t.refs
}

// Lookup finds the row that applies to a person. A row for the person's life
// stage wins over a general row, and a sex-specific row over an "any" row.
func (t *Table) Lookup(ref types.CategoryRef, sex types.Sex, lifeStage types.LifeStage, age int) (types.BaseRequirement, bool) {
	stages := []types.LifeStage{types.LifeStageNone}
	if lifeStage != types.LifeStageNone {
		stages = []types.LifeStage{lifeStage, types.LifeStageNone}
	}
	sexes := []types.Sex{types.SexAny}
	if sex != "" && sex != types.SexAny {
		sexes = []types.Sex{sex, types.SexAny}
	}

	for _, ls := range stages {
		for _, s := range sexes {
			for _, r := range t.rows[bucket{ref: ref, sex: s, lifeStage: ls}] {
				if r.CoversAge(age) {
					return r, true
				}
			}
		}
	}
	return types.BaseRequirement{}, false
}
