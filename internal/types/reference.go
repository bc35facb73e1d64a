package types

// ReferenceData is the full set of reference tables the engine consumes.
// Every slice is optional; importing a bundle upserts what it contains.
type ReferenceData struct {
	Nutrients       []NutrientDefinition          `json:"nutrients"`
	Categories      []Category                    `json:"categories"`
	Mappings        []NutrientMapping             `json:"mappings"`
	Requirements    []BaseRequirement             `json:"requirements"`
	Conditions      []HealthCondition             `json:"conditions"`
	Effects         []ConditionNutrientEffect     `json:"effects"`
	Recommendations []ConditionFoodRecommendation `json:"recommendations"`
	Foods           []Food                        `json:"foods"`
	Compositions    []FoodComposition             `json:"compositions"`
	Composites      []Composite                   `json:"composites"`
	Profiles        []UserProfile                 `json:"profiles"`
	UserConditions  []UserHealthCondition         `json:"user_conditions"`
}

// CatalogData is the subset of reference data the nutrient catalog is built from
type CatalogData struct {
	Nutrients  []NutrientDefinition
	Categories []Category
	Mappings   []NutrientMapping
}
