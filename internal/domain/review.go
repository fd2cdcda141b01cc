package domain

import "time"

// Review represents a single user's rating of a tour.
type Review struct {
	ID        string
	Review    string
	Rating    float64
	TourID    string
	UserID    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// RatingAggregate provides average and count for a tour's reviews.
type RatingAggregate struct {
	Average float64
	Count   int64
}
