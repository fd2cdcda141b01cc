package repository

import (
	"context"
	"errors"
	"net/url"

	"github.com/doug-martin/goqu/v9"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Clark-Hu/tour-booking/internal/domain"
	"github.com/Clark-Hu/tour-booking/internal/listquery"
)

// ReviewsRepository provides helpers for tour reviews.
type ReviewsRepository struct {
	pool *pgxpool.Pool
}

var reviewColumns = []interface{}{"id", "review", "rating", "tour_id", "user_id", "created_at", "updated_at"}

// ReviewSchema exposes review fields to list requests.
var ReviewSchema = listquery.NewSchema("id", "createdAt",
	listquery.Field{Name: "id", Column: "id", Kind: listquery.KindString},
	listquery.Field{Name: "review", Column: "review", Kind: listquery.KindString},
	listquery.Field{Name: "rating", Column: "rating", Kind: listquery.KindNumber},
	listquery.Field{Name: "tour", Column: "tour_id", Kind: listquery.KindString},
	listquery.Field{Name: "user", Column: "user_id", Kind: listquery.KindString},
	listquery.Field{Name: "createdAt", Column: "created_at", Kind: listquery.KindTime},
	listquery.Field{Name: "updatedAt", Column: "updated_at", Kind: listquery.KindTime},
)

// ReviewCreateParams captures the payload required to create a review.
type ReviewCreateParams struct {
	TourID string
	UserID string
	Review string
	Rating float64
}

// ReviewUpdateParams carries a partial update; the tour and author are fixed.
type ReviewUpdateParams struct {
	Review *string
	Rating *float64
}

// List runs a list request against reviews, scoped to tourID when non-empty.
func (r *ReviewsRepository) List(ctx context.Context, tourID string, values url.Values, opts listquery.Options) ([]map[string]any, error) {
	base := dialect.From("reviews")
	if tourID != "" {
		base = base.Where(goqu.C("tour_id").Eq(tourID))
	}
	ds, err := listquery.New(base, ReviewSchema, values, opts).Apply()
	if err != nil {
		return nil, err
	}
	items, err := collectMaps(ctx, r.pool, ds)
	if err != nil {
		return nil, classify("list reviews", err, nil)
	}
	return items, nil
}

// Create inserts a review. A second review by the same user on the same tour
// fails with ErrDuplicateReview; an unknown tour fails with ErrNotFound.
func (r *ReviewsRepository) Create(ctx context.Context, params ReviewCreateParams) (domain.Review, error) {
	query, args, err := render(dialect.Insert("reviews").
		Rows(goqu.Record{
			"id":      uuid.NewString(),
			"review":  params.Review,
			"rating":  params.Rating,
			"tour_id": params.TourID,
			"user_id": params.UserID,
		}).
		Returning(reviewColumns...).
		Prepared(true))
	if err != nil {
		return domain.Review{}, err
	}
	review, err := scanReview(r.pool.QueryRow(ctx, query, args...))
	if err != nil {
		return domain.Review{}, classify("create review", err, ErrDuplicateReview)
	}
	return review, nil
}

// Get retrieves a review by id.
func (r *ReviewsRepository) Get(ctx context.Context, id string) (domain.Review, error) {
	query, args, err := render(dialect.From("reviews").
		Select(reviewColumns...).
		Where(goqu.C("id").Eq(id)).
		Prepared(true))
	if err != nil {
		return domain.Review{}, err
	}
	review, err := scanReview(r.pool.QueryRow(ctx, query, args...))
	if err != nil {
		return domain.Review{}, classify("get review", err, nil)
	}
	return review, nil
}

// Update applies a partial update and returns the new state.
func (r *ReviewsRepository) Update(ctx context.Context, id string, params ReviewUpdateParams) (domain.Review, error) {
	set := goqu.Record{"updated_at": goqu.L("now()")}
	if params.Review != nil {
		set["review"] = *params.Review
	}
	if params.Rating != nil {
		set["rating"] = *params.Rating
	}

	query, args, err := render(dialect.Update("reviews").
		Set(set).
		Where(goqu.C("id").Eq(id)).
		Returning(reviewColumns...).
		Prepared(true))
	if err != nil {
		return domain.Review{}, err
	}
	review, err := scanReview(r.pool.QueryRow(ctx, query, args...))
	if err != nil {
		return domain.Review{}, classify("update review", err, nil)
	}
	return review, nil
}

// Delete removes a review and returns the deleted row.
func (r *ReviewsRepository) Delete(ctx context.Context, id string) (domain.Review, error) {
	query, args, err := render(dialect.Delete("reviews").
		Where(goqu.C("id").Eq(id)).
		Returning(reviewColumns...).
		Prepared(true))
	if err != nil {
		return domain.Review{}, err
	}
	review, err := scanReview(r.pool.QueryRow(ctx, query, args...))
	if err != nil {
		return domain.Review{}, classify("delete review", err, nil)
	}
	return review, nil
}

// Aggregate groups the tour's reviews and returns their count and raw mean.
// A tour without reviews yields a zero aggregate.
func (r *ReviewsRepository) Aggregate(ctx context.Context, tourID string) (domain.RatingAggregate, error) {
	query, args, err := render(dialect.From("reviews").
		Select(
			goqu.COUNT(goqu.Star()).As("n_rating"),
			goqu.AVG("rating").As("avg_rating"),
		).
		Where(goqu.C("tour_id").Eq(tourID)).
		GroupBy("tour_id").
		Prepared(true))
	if err != nil {
		return domain.RatingAggregate{}, err
	}

	var agg domain.RatingAggregate
	err = r.pool.QueryRow(ctx, query, args...).Scan(&agg.Count, &agg.Average)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.RatingAggregate{}, nil
	}
	if err != nil {
		return domain.RatingAggregate{}, classify("aggregate ratings", err, nil)
	}
	return agg, nil
}

func scanReview(row pgx.Row) (domain.Review, error) {
	var review domain.Review
	err := row.Scan(
		&review.ID,
		&review.Review,
		&review.Rating,
		&review.TourID,
		&review.UserID,
		&review.CreatedAt,
		&review.UpdatedAt,
	)
	if err != nil {
		return domain.Review{}, err
	}
	return review, nil
}
