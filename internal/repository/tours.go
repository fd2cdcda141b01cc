package repository

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"
	"unicode"

	"github.com/doug-martin/goqu/v9"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/Clark-Hu/tour-booking/internal/domain"
	"github.com/Clark-Hu/tour-booking/internal/listquery"
)

// ToursRepository provides persistence helpers for tour entities.
type ToursRepository struct {
	pool *pgxpool.Pool
}

const tourColumns = `
    id,
    name,
    slug,
    duration,
    max_group_size,
    difficulty,
    ratings_average,
    ratings_quantity,
    price,
    price_discount,
    summary,
    description,
    image_cover,
    images,
    start_dates,
    secret_tour,
    created_at,
    updated_at
`

// TourSchema exposes tour fields to list requests. The version column is
// internal and deliberately absent.
var TourSchema = listquery.NewSchema("id", "createdAt",
	listquery.Field{Name: "id", Column: "id", Kind: listquery.KindString},
	listquery.Field{Name: "name", Column: "name", Kind: listquery.KindString},
	listquery.Field{Name: "slug", Column: "slug", Kind: listquery.KindString},
	listquery.Field{Name: "duration", Column: "duration", Kind: listquery.KindInteger, Bits: 32},
	listquery.Field{Name: "maxGroupSize", Column: "max_group_size", Kind: listquery.KindInteger, Bits: 32},
	listquery.Field{Name: "difficulty", Column: "difficulty", Kind: listquery.KindString},
	listquery.Field{Name: "ratingsAverage", Column: "ratings_average", Kind: listquery.KindNumber},
	listquery.Field{Name: "ratingsQuantity", Column: "ratings_quantity", Kind: listquery.KindInteger},
	listquery.Field{Name: "price", Column: "price", Kind: listquery.KindNumber},
	listquery.Field{Name: "priceDiscount", Column: "price_discount", Kind: listquery.KindNumber},
	listquery.Field{Name: "summary", Column: "summary", Kind: listquery.KindString},
	listquery.Field{Name: "description", Column: "description", Kind: listquery.KindString},
	listquery.Field{Name: "imageCover", Column: "image_cover", Kind: listquery.KindString},
	listquery.Field{Name: "images", Column: "images", Kind: listquery.KindList},
	listquery.Field{Name: "startDates", Column: "start_dates", Kind: listquery.KindList},
	listquery.Field{Name: "createdAt", Column: "created_at", Kind: listquery.KindTime},
	listquery.Field{Name: "updatedAt", Column: "updated_at", Kind: listquery.KindTime},
)

// TourCreateParams bundles the fields required to create a tour.
type TourCreateParams struct {
	Name          string
	Duration      int
	MaxGroupSize  int
	Difficulty    string
	Price         float64
	PriceDiscount *float64
	Summary       string
	Description   *string
	ImageCover    string
	Images        []string
	StartDates    []time.Time
	SecretTour    bool
}

// TourUpdateParams carries a partial update; nil fields are left untouched.
// Rating aggregates are not updatable here.
type TourUpdateParams struct {
	Name          *string
	Duration      *int
	MaxGroupSize  *int
	Difficulty    *string
	Price         *float64
	PriceDiscount *float64
	Summary       *string
	Description   *string
	ImageCover    *string
	Images        []string
	StartDates    []time.Time
	SecretTour    *bool
}

// visibleTours is the base query for every public tour read.
func visibleTours() *goqu.SelectDataset {
	return dialect.From("tours").Where(goqu.C("secret_tour").IsFalse())
}

// List runs a list request against visible tours.
func (r *ToursRepository) List(ctx context.Context, values url.Values, opts listquery.Options) ([]map[string]any, error) {
	ds, err := listquery.New(visibleTours(), TourSchema, values, opts).Apply()
	if err != nil {
		return nil, err
	}
	items, err := collectMaps(ctx, r.pool, ds)
	if err != nil {
		return nil, classify("list tours", err, nil)
	}
	return items, nil
}

// Create inserts a new tour row and returns the stored entity.
func (r *ToursRepository) Create(ctx context.Context, params TourCreateParams) (domain.Tour, error) {
	query := fmt.Sprintf(`
        INSERT INTO tours (id, name, slug, duration, max_group_size, difficulty, price, price_discount,
                           summary, description, image_cover, images, start_dates, secret_tour)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
        RETURNING %s
    `, tourColumns)

	images := params.Images
	if images == nil {
		images = []string{}
	}
	startDates := params.StartDates
	if startDates == nil {
		startDates = []time.Time{}
	}

	row := r.pool.QueryRow(ctx, query,
		uuid.NewString(),
		params.Name,
		Slugify(params.Name),
		params.Duration,
		params.MaxGroupSize,
		params.Difficulty,
		params.Price,
		params.PriceDiscount,
		params.Summary,
		params.Description,
		params.ImageCover,
		images,
		startDates,
		params.SecretTour,
	)
	tour, err := scanTour(row)
	if err != nil {
		return domain.Tour{}, classify("create tour", err, ErrDuplicateTour)
	}
	return tour, nil
}

// GetByID fetches a visible tour by its identifier.
func (r *ToursRepository) GetByID(ctx context.Context, id string) (domain.Tour, error) {
	query := fmt.Sprintf(`SELECT %s FROM tours WHERE id = $1 AND NOT secret_tour`, tourColumns)
	tour, err := scanTour(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		return domain.Tour{}, classify("get tour", err, nil)
	}
	return tour, nil
}

// Update applies a partial update and bumps the internal version. Secret tours
// are included so an admin can reveal them again.
func (r *ToursRepository) Update(ctx context.Context, id string, params TourUpdateParams) (domain.Tour, error) {
	set := make([]string, 0)
	args := []interface{}{id}
	arg := func(value interface{}) string {
		args = append(args, value)
		return fmt.Sprintf("$%d", len(args))
	}

	if params.Name != nil {
		set = append(set, "name = "+arg(*params.Name), "slug = "+arg(Slugify(*params.Name)))
	}
	if params.Duration != nil {
		set = append(set, "duration = "+arg(*params.Duration))
	}
	if params.MaxGroupSize != nil {
		set = append(set, "max_group_size = "+arg(*params.MaxGroupSize))
	}
	if params.Difficulty != nil {
		set = append(set, "difficulty = "+arg(*params.Difficulty))
	}
	if params.Price != nil {
		set = append(set, "price = "+arg(*params.Price))
	}
	if params.PriceDiscount != nil {
		set = append(set, "price_discount = "+arg(*params.PriceDiscount))
	}
	if params.Summary != nil {
		set = append(set, "summary = "+arg(*params.Summary))
	}
	if params.Description != nil {
		set = append(set, "description = "+arg(*params.Description))
	}
	if params.ImageCover != nil {
		set = append(set, "image_cover = "+arg(*params.ImageCover))
	}
	if params.Images != nil {
		set = append(set, "images = "+arg(params.Images))
	}
	if params.StartDates != nil {
		set = append(set, "start_dates = "+arg(params.StartDates))
	}
	if params.SecretTour != nil {
		set = append(set, "secret_tour = "+arg(*params.SecretTour))
	}
	set = append(set, "version = version + 1", "updated_at = now()")

	query := fmt.Sprintf(`
        UPDATE tours
        SET %s
        WHERE id = $1
        RETURNING %s
    `, strings.Join(set, ", "), tourColumns)

	tour, err := scanTour(r.pool.QueryRow(ctx, query, args...))
	if err != nil {
		return domain.Tour{}, classify("update tour", err, ErrDuplicateTour)
	}
	return tour, nil
}

// Delete removes a tour, secret or not; its reviews cascade.
func (r *ToursRepository) Delete(ctx context.Context, id string) error {
	query, args, err := render(dialect.Delete("tours").
		Where(goqu.C("id").Eq(id)).
		Prepared(true))
	if err != nil {
		return err
	}
	tag, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return classify("delete tour", err, nil)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateRatings writes the derived rating fields only. Secret tours are
// included since their reviews still count.
func (r *ToursRepository) UpdateRatings(ctx context.Context, id string, agg domain.RatingAggregate) error {
	query, args, err := render(dialect.Update("tours").
		Set(goqu.Record{
			"ratings_quantity": agg.Count,
			"ratings_average":  agg.Average,
		}).
		Where(goqu.C("id").Eq(id)).
		Prepared(true))
	if err != nil {
		return err
	}
	tag, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return classify("update tour ratings", err, nil)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Stats groups well-rated visible tours by difficulty.
func (r *ToursRepository) Stats(ctx context.Context, minAverage float64) ([]domain.DifficultyStats, error) {
	ds := visibleTours().
		Select(
			goqu.C("difficulty"),
			goqu.COUNT(goqu.Star()).As("num_tours"),
			goqu.L("COALESCE(SUM(ratings_quantity), 0)::bigint").As("num_ratings"),
			goqu.AVG("ratings_average").As("avg_rating"),
			goqu.AVG("price").As("avg_price"),
			goqu.MIN("price").As("min_price"),
			goqu.MAX("price").As("max_price"),
		).
		Where(goqu.C("ratings_average").Gte(minAverage)).
		GroupBy("difficulty").
		Order(goqu.C("avg_price").Asc())

	query, args, err := render(ds.Prepared(true))
	if err != nil {
		return nil, err
	}
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, classify("tour stats", err, nil)
	}
	defer rows.Close()

	stats := make([]domain.DifficultyStats, 0)
	for rows.Next() {
		var s domain.DifficultyStats
		if err := rows.Scan(&s.Difficulty, &s.NumTours, &s.NumRatings, &s.AvgRating, &s.AvgPrice, &s.MinPrice, &s.MaxPrice); err != nil {
			return nil, classify("tour stats", err, nil)
		}
		stats = append(stats, s)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("tour stats", err, nil)
	}
	return stats, nil
}

func scanTour(row pgx.Row) (domain.Tour, error) {
	var tour domain.Tour
	err := row.Scan(
		&tour.ID,
		&tour.Name,
		&tour.Slug,
		&tour.Duration,
		&tour.MaxGroupSize,
		&tour.Difficulty,
		&tour.RatingsAverage,
		&tour.RatingsQuantity,
		&tour.Price,
		&tour.PriceDiscount,
		&tour.Summary,
		&tour.Description,
		&tour.ImageCover,
		&tour.Images,
		&tour.StartDates,
		&tour.SecretTour,
		&tour.CreatedAt,
		&tour.UpdatedAt,
	)
	if err != nil {
		return domain.Tour{}, err
	}
	return tour, nil
}

// Slugify lower-cases name, strips accents and joins words with hyphens.
func Slugify(name string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, name)
	if err != nil {
		folded = name
	}

	var b strings.Builder
	pendingDash := false
	for _, r := range strings.ToLower(folded) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if pendingDash && b.Len() > 0 {
				b.WriteByte('-')
			}
			b.WriteRune(r)
			pendingDash = false
			continue
		}
		pendingDash = true
	}
	return b.String()
}
