package catalog

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/noot-app/nutrient-engine/internal/types"
)

// ErrInvalidCatalog is wrapped by every validation failure returned from New
var ErrInvalidCatalog = errors.New("invalid nutrient catalog")

// Catalog is an immutable, validated snapshot of nutrient definitions,
// category entities and nutrient mappings. It is safe for concurrent use.
type Catalog struct {
	definitions map[string]types.NutrientDefinition
	categories  map[types.CategoryRef]types.Category
	mappings    map[string][]types.NutrientMapping
	ordered     []types.Category
}

// New validates data and builds the lookup indexes
func New(data types.CatalogData) (*Catalog, error) {
	c := &Catalog{
		definitions: make(map[string]types.NutrientDefinition, len(data.Nutrients)),
		categories:  make(map[types.CategoryRef]types.Category, len(data.Categories)),
		mappings:    make(map[string][]types.NutrientMapping),
	}

	for _, def := range data.Nutrients {
		code := types.NormalizeCode(def.Code)
		if code == "" {
			return nil, fmt.Errorf("%w: nutrient with empty code", ErrInvalidCatalog)
		}
		if _, dup := c.definitions[code]; dup {
			return nil, fmt.Errorf("%w: duplicate nutrient code %q", ErrInvalidCatalog, code)
		}
		if def.Group == "" {
			def.Group = types.GroupOther
		}
		if !def.Group.Valid() {
			return nil, fmt.Errorf("%w: nutrient %q has unknown group %q", ErrInvalidCatalog, code, def.Group)
		}
		def.Code = code
		c.definitions[code] = def
	}

	for _, cat := range data.Categories {
		if !cat.Type.Valid() {
			return nil, fmt.Errorf("%w: category %d has unknown type %q", ErrInvalidCatalog, cat.ID, cat.Type)
		}
		if _, dup := c.categories[cat.Ref()]; dup {
			return nil, fmt.Errorf("%w: duplicate category %s", ErrInvalidCatalog, cat.Ref())
		}
		c.categories[cat.Ref()] = cat
		c.ordered = append(c.ordered, cat)
	}
	sort.Slice(c.ordered, func(i, j int) bool { return c.ordered[i].Ref().Less(c.ordered[j].Ref()) })

	for _, m := range data.Mappings {
		code := types.NormalizeCode(m.NutrientCode)
		if code == "" {
			return nil, fmt.Errorf("%w: mapping with empty nutrient code", ErrInvalidCatalog)
		}
		if !(m.ConversionFactor > 0) || math.IsInf(m.ConversionFactor, 0) {
			return nil, fmt.Errorf("%w: mapping %s -> %s has conversion factor %v (must be > 0)",
				ErrInvalidCatalog, code, m.Ref(), m.ConversionFactor)
		}
		if _, ok := c.categories[m.Ref()]; !ok {
			return nil, fmt.Errorf("%w: mapping %s references unknown category %s", ErrInvalidCatalog, code, m.Ref())
		}
		for _, existing := range c.mappings[code] {
			if existing.CategoryType == m.CategoryType {
				return nil, fmt.Errorf("%w: nutrient %s maps to more than one %s", ErrInvalidCatalog, code, m.CategoryType)
			}
		}
		m.NutrientCode = code
		c.mappings[code] = append(c.mappings[code], m)
	}
	for code := range c.mappings {
		ms := c.mappings[code]
		sort.Slice(ms, func(i, j int) bool { return ms[i].Ref().Less(ms[j].Ref()) })
	}

	return c, nil
}

// Definition looks up a nutrient definition by code
func (c *Catalog) Definition(code string) (types.NutrientDefinition, bool) {
	def, ok := c.definitions[types.NormalizeCode(code)]
	return def, ok
}

// Category looks up a category entity
func (c *Catalog) Category(ref types.CategoryRef) (types.Category, bool) {
	cat, ok := c.categories[ref]
	return cat, ok
}

// Categories returns every category ordered by type then id
func (c *Catalog) Categories() []types.Category {
	out := make([]types.Category, len(c.ordered))
	copy(out, c.ordered)
	return out
}

// MappingsFor returns the mappings of a nutrient code, ordered by category
func (c *Catalog) MappingsFor(code string) []types.NutrientMapping {
	ms := c.mappings[types.NormalizeCode(code)]
	out := make([]types.NutrientMapping, len(ms))
	copy(out, ms)
	return out
}

// Mapper returns the nutrient mapper backed by this catalog
func (c *Catalog) Mapper() Mapper {
	return Mapper{catalog: c}
}
