package domain

import "time"

// Difficulty levels accepted for a tour.
const (
	DifficultyEasy      = "easy"
	DifficultyMedium    = "medium"
	DifficultyDifficult = "difficult"
)

// Rating aggregate defaults applied when a tour has no reviews.
const (
	DefaultRatingsAverage  = 4.5
	DefaultRatingsQuantity = 0
)

// Tour represents the canonical tour entity in the database/service.
type Tour struct {
	ID              string
	Name            string
	Slug            string
	Duration        int
	MaxGroupSize    int
	Difficulty      string
	RatingsAverage  float64
	RatingsQuantity int64
	Price           float64
	PriceDiscount   *float64
	Summary         string
	Description     *string
	ImageCover      string
	Images          []string
	StartDates      []time.Time
	SecretTour      bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// DifficultyStats summarises tours sharing a difficulty level.
type DifficultyStats struct {
	Difficulty string
	NumTours   int64
	NumRatings int64
	AvgRating  float64
	AvgPrice   float64
	MinPrice   float64
	MaxPrice   float64
}
