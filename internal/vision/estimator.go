package vision

import "context"

// Estimate is a structured nutrition estimate for one photo. Numeric
// fields are integers: kcal for calories, grams for the macros.
type Estimate struct {
	FoodName string `json:"food_name"`
	Calories int    `json:"calories"`
	Protein  int    `json:"protein"`
	Carbs    int    `json:"carbs"`
	Fat      int    `json:"fat"`
}

// Estimator maps normalized image bytes to a nutrition estimate.
// Implementations either return a fully populated estimate or an
// error; fields are never partially filled.
type Estimator interface {
	Estimate(ctx context.Context, imageJPEG []byte) (Estimate, error)
}

// FallbackEstimate is the fixed tuple substituted when the provider
// is unconfigured, unreachable, or returns unparseable output. The
// values are constant so callers can assert on them.
func FallbackEstimate() Estimate {
	return Estimate{
		FoodName: "Unknown food",
		Calories: 300,
		Protein:  15,
		Carbs:    30,
		Fat:      10,
	}
}
