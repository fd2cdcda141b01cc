// Package ratings keeps a tour's cached rating aggregate in step with its
// reviews. Every review write runs through Service, which invokes the
// recompute explicitly once the write has returned.
//
// The read-recompute-write sequence is not atomic: two concurrent writers on
// the same tour may each read a stale review set and the last write wins until
// the next review write on that tour corrects it. The aggregate is display
// data, so this is accepted.
package ratings

import (
	"context"
	"fmt"
	"math"

	"github.com/Clark-Hu/tour-booking/internal/domain"
)

// Aggregator computes the count and raw mean of a tour's review ratings.
type Aggregator interface {
	Aggregate(ctx context.Context, tourID string) (domain.RatingAggregate, error)
}

// AggregateWriter persists the derived rating fields on a tour.
type AggregateWriter interface {
	UpdateRatings(ctx context.Context, tourID string, agg domain.RatingAggregate) error
}

// RecomputeError reports that the post-write recompute failed. The review
// write it followed has already been committed.
type RecomputeError struct {
	TourID string
	Err    error
}

func (e *RecomputeError) Error() string {
	return fmt.Sprintf("ratings: recompute tour %s: %v", e.TourID, e.Err)
}

func (e *RecomputeError) Unwrap() error { return e.Err }

// Maintainer recomputes and stores tour rating aggregates.
type Maintainer struct {
	reviews Aggregator
	tours   AggregateWriter
}

// NewMaintainer wires a Maintainer to its store collaborators.
func NewMaintainer(reviews Aggregator, tours AggregateWriter) *Maintainer {
	return &Maintainer{reviews: reviews, tours: tours}
}

// Recompute derives the aggregate for tourID from its reviews and writes it.
// A tour without reviews is reset to the defaults.
func (m *Maintainer) Recompute(ctx context.Context, tourID string) (domain.RatingAggregate, error) {
	stats, err := m.reviews.Aggregate(ctx, tourID)
	if err != nil {
		return domain.RatingAggregate{}, &RecomputeError{TourID: tourID, Err: err}
	}

	agg := Derive(stats)
	if err := m.tours.UpdateRatings(ctx, tourID, agg); err != nil {
		return domain.RatingAggregate{}, &RecomputeError{TourID: tourID, Err: err}
	}
	return agg, nil
}

// Derive turns raw review statistics into the stored aggregate.
func Derive(stats domain.RatingAggregate) domain.RatingAggregate {
	if stats.Count <= 0 {
		return domain.RatingAggregate{
			Count:   domain.DefaultRatingsQuantity,
			Average: domain.DefaultRatingsAverage,
		}
	}
	return domain.RatingAggregate{
		Count:   stats.Count,
		Average: RoundToOneDecimal(stats.Average),
	}
}

// RoundToOneDecimal rounds half away from zero to one decimal place.
func RoundToOneDecimal(value float64) float64 {
	return math.Round(value*10) / 10
}
