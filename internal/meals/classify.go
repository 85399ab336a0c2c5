package meals

// ClassifyHour maps a local hour of day to a meal-type bucket.
// Hours between the named windows fall through to Snack.
func ClassifyHour(hour int) MealType {
	switch {
	case hour >= 5 && hour < 10:
		return MealTypeBreakfast
	case hour >= 11 && hour < 14:
		return MealTypeLunch
	case hour >= 17 && hour < 21:
		return MealTypeDinner
	default:
		return MealTypeSnack
	}
}
