package meals

import "errors"

// MealType buckets a meal by time of day.
type MealType string

const (
	MealTypeBreakfast MealType = "Breakfast"
	MealTypeLunch     MealType = "Lunch"
	MealTypeDinner    MealType = "Dinner"
	MealTypeSnack     MealType = "Snack"
)

// ErrMealNotFound indicates that no meal exists for the requested identifier.
var ErrMealNotFound = errors.New("meals: meal not found")

// Meal models one logged meal: the photo reference, the nutrition
// estimate, and the capture-time snapshot taken at ingestion.
// Date and MealType are derived from the resolved capture time once,
// at ingestion; editing PhotoTakenAt afterward does not recompute them.
type Meal struct {
	ID           string   `gorm:"column:id;primaryKey;size:190;not null" json:"id"`
	Date         string   `gorm:"column:date;size:10;not null;index:idx_meals_date" json:"date"`
	MealType     MealType `gorm:"column:meal_type;size:20;not null" json:"meal_type"`
	PhotoPath    string   `gorm:"column:photo_path;size:190;not null" json:"photo_path"`
	FoodName     string   `gorm:"column:food_name;not null" json:"food_name"`
	Calories     int      `gorm:"column:calories;not null" json:"calories"`
	Protein      int      `gorm:"column:protein;not null;default:0" json:"protein"`
	Carbs        int      `gorm:"column:carbs;not null;default:0" json:"carbs"`
	Fat          int      `gorm:"column:fat;not null;default:0" json:"fat"`
	Notes        string   `gorm:"column:notes;default:''" json:"notes"`
	PhotoTakenAt *string  `gorm:"column:photo_taken_at" json:"photo_taken_at"`
	CreatedAt    string   `gorm:"column:created_at;not null" json:"created_at"`
}

// TableName provides the explicit table binding for GORM.
func (Meal) TableName() string {
	return "meals"
}
